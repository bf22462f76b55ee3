package operations

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "mertoncli/internal/errors"
)

func TestMemoryJobStore_CRUD(t *testing.T) {
	store := NewMemoryJobStore()
	job := &Job{ID: "a", Status: JobStatusPending, Total: 1, CreatedAt: time.Now()}

	require.NoError(t, store.CreateJob(job))
	assert.Error(t, store.CreateJob(job), "duplicate id")

	got, err := store.GetJob("a")
	require.NoError(t, err)
	got.Status = JobStatusRunning
	again, _ := store.GetJob("a")
	assert.Equal(t, JobStatusPending, again.Status, "store hands out copies")

	require.NoError(t, store.UpdateJob(got))
	again, _ = store.GetJob("a")
	assert.Equal(t, JobStatusRunning, again.Status)

	_, err = store.GetJob("b")
	assert.ErrorIs(t, err, apierrors.ErrJobNotFound)
	assert.ErrorIs(t, store.UpdateJob(&Job{ID: "b"}), apierrors.ErrJobNotFound)
}

func TestMemoryJobStore_ResultsAreCopied(t *testing.T) {
	store := NewMemoryJobStore()
	job := &Job{ID: "a", Results: []ItemResult{{Index: 0, Status: ItemStatusOK}}}
	require.NoError(t, store.CreateJob(job))

	job.Results[0].Status = ItemStatusError
	got, err := store.GetJob("a")
	require.NoError(t, err)
	assert.Equal(t, ItemStatusOK, got.Results[0].Status)
}

func TestMemoryJobStore_ListJobs(t *testing.T) {
	store := NewMemoryJobStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, status := range []JobStatus{JobStatusPending, JobStatusCompleted, JobStatusCompleted, JobStatusFailed} {
		require.NoError(t, store.CreateJob(&Job{
			ID:        string(rune('a' + i)),
			Status:    status,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			Results:   []ItemResult{{Index: 0}},
		}))
	}

	tests := []struct {
		name    string
		filter  JobFilter
		wantIDs []string
	}{
		{"all newest first", JobFilter{}, []string{"d", "c", "b", "a"}},
		{"by status", JobFilter{Status: JobStatusCompleted}, []string{"c", "b"}},
		{"since", JobFilter{Since: base.Add(2 * time.Minute)}, []string{"d", "c"}},
		{"limit", JobFilter{Limit: 1}, []string{"d"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs, err := store.ListJobs(tt.filter)
			require.NoError(t, err)
			ids := make([]string, len(jobs))
			for i, j := range jobs {
				ids[i] = j.ID
				assert.Nil(t, j.Results, "listing returns summaries")
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestMemoryJobStore_CleanupOldJobs(t *testing.T) {
	store := NewMemoryJobStore()
	old := time.Now().Add(-2 * time.Hour)
	recent := time.Now()

	require.NoError(t, store.CreateJob(&Job{ID: "old-done", Status: JobStatusCompleted, CreatedAt: old, CompletedAt: &old}))
	require.NoError(t, store.CreateJob(&Job{ID: "old-pending", Status: JobStatusPending, CreatedAt: old}))
	require.NoError(t, store.CreateJob(&Job{ID: "new-done", Status: JobStatusFailed, CreatedAt: old, CompletedAt: &recent}))

	deleted, err := store.CleanupOldJobs(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	assert.Equal(t, map[JobStatus]int{JobStatusPending: 1, JobStatusFailed: 1}, store.CountByStatus())
}
