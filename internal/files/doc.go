// Package files catalogs the dataset inputs under the data directory and the
// reports written under the reports directory.
//
//	discovery := files.NewDiscovery(paths)
//	datasets, err := discovery.ListDatasets()
//	report, err := discovery.Report("005930_merton.csv")
package files
