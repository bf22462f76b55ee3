// Package operations runs asynchronous calibration batches.
//
// A JobRequest lists firms, each as a single-point, time-series or dataset
// calibration request. JobQueue stores the batch as a pending Job in a
// JobStore, hands its ID to a fixed pool of worker goroutines through a
// buffered channel and records one ItemResult per firm as it goes:
//
//	queue := operations.NewJobQueue(operations.QueueConfig{Workers: 4, QueueSize: 100},
//	    operations.NewMemoryJobStore(), calibrationService, metrics, logger)
//	queue.Start(ctx)
//	defer queue.Stop(30 * time.Second)
//
//	job, err := queue.Submit(ctx, operations.JobRequest{Items: items})
//
// A failing firm never stops the batch; its error is kept on the item.
// Non-convergence is an ok item with Converged=false and is counted in
// Job.NonConverged.
//
// Jobs can be cancelled while pending or running. Stop lets running jobs
// finish within its timeout and cancels them afterwards. Finished jobs are
// dropped from the store once they are older than QueueConfig.Retention.
package operations
