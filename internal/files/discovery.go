package files

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"mertoncli/internal/config"
	apierrors "mertoncli/internal/errors"
)

// Kind classifies a discovered file
type Kind string

const (
	KindCSV      Kind = "csv"
	KindWorkbook Kind = "workbook"
)

// FileInfo represents information about a discovered file. Name is relative
// to the directory that was listed, with forward slashes.
type FileInfo struct {
	Name    string    `json:"name"`
	Kind    Kind      `json:"kind"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modified_at"`
	Path    string    `json:"-"`
}

// Discovery lists dataset inputs and generated reports
type Discovery struct {
	paths *config.Paths
}

// NewDiscovery creates a new file discovery instance
func NewDiscovery(paths *config.Paths) *Discovery {
	return &Discovery{paths: paths}
}

// ListDatasets returns the CSV and xlsx files under the data directory,
// skipping the reports directory, newest first
func (d *Discovery) ListDatasets() ([]FileInfo, error) {
	return d.walk(d.paths.DataDir, d.paths.ReportsDir)
}

// ListReports returns the generated reports, newest first
func (d *Discovery) ListReports() ([]FileInfo, error) {
	return d.walk(d.paths.ReportsDir, "")
}

// Report resolves a report name to its path. Names that leave the reports
// directory or do not exist are reported as not found.
func (d *Discovery) Report(name string) (FileInfo, error) {
	if !filepath.IsLocal(filepath.FromSlash(name)) {
		return FileInfo{}, apierrors.NotFoundError("report")
	}
	path := d.paths.GetReportPath(filepath.FromSlash(name))
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return FileInfo{}, apierrors.NotFoundError("report")
	}
	kind, ok := classify(path)
	if !ok {
		return FileInfo{}, apierrors.NotFoundError("report")
	}
	return FileInfo{Name: name, Kind: kind, Size: info.Size(), ModTime: info.ModTime(), Path: path}, nil
}

func (d *Discovery) walk(root, skip string) ([]FileInfo, error) {
	var files []FileInfo
	err := filepath.WalkDir(root, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			if path == root && os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}
		if entry.IsDir() {
			if skip != "" && path == skip {
				return filepath.SkipDir
			}
			return nil
		}
		kind, ok := classify(path)
		if !ok {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, FileInfo{
			Name:    filepath.ToSlash(rel),
			Kind:    kind,
			Size:    info.Size(),
			ModTime: info.ModTime(),
			Path:    path,
		})
		return nil
	})
	if err != nil {
		return nil, apierrors.NewStorageError(fmt.Sprintf("failed to list %s", root), err)
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].ModTime.Equal(files[j].ModTime) {
			return files[i].Name < files[j].Name
		}
		return files[i].ModTime.After(files[j].ModTime)
	})
	return files, nil
}

func classify(path string) (Kind, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return KindCSV, true
	case ".xlsx":
		return KindWorkbook, true
	}
	return "", false
}

// GetLatestFile returns the most recently modified file from a list
func GetLatestFile(files []FileInfo) (FileInfo, bool) {
	if len(files) == 0 {
		return FileInfo{}, false
	}

	latest := files[0]
	for _, file := range files[1:] {
		if file.ModTime.After(latest.ModTime) {
			latest = file
		}
	}
	return latest, true
}
