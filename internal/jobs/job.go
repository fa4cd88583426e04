package jobs

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"kmlc/internal/api"
)

// Stats mirrors the server's processing counters.
type Stats struct {
	TotalTasks  int
	CacheHits   int
	APICalls    int
	Failed      int
	SuccessRate float64
}

// Job is one row of a view snapshot.
type Job struct {
	ID        string
	User      string
	TopicID   string
	TopicName string
	Filename  string
	Rows      int
	Status    Status
	Progress  float64
	Stats     *Stats
	Error     string
	CreatedAt time.Time
}

// ErrUnknownStatus is returned when the server reports a status outside the known set.
type ErrUnknownStatus struct {
	JobID  string
	Status string
}

func (e *ErrUnknownStatus) Error() string {
	return fmt.Sprintf("job %s: unknown status %q", e.JobID, e.Status)
}

// FromTask converts a wire task into a Job.
func FromTask(task api.Task) (Job, error) {
	status, ok := ParseStatus(task.Status)
	if !ok {
		return Job{}, &ErrUnknownStatus{JobID: task.JobID, Status: task.Status}
	}
	job := Job{
		ID:        task.JobID,
		User:      task.User,
		TopicID:   task.TopicID,
		TopicName: task.TopicName,
		Filename:  task.Filename,
		Rows:      task.Rows,
		Status:    status,
		Progress:  task.Progress,
		CreatedAt: parseTimestamp(task.CreatedAt),
	}
	if task.Stats != nil {
		job.Stats = &Stats{
			TotalTasks:  task.Stats.TotalTasks,
			CacheHits:   task.Stats.CacheHits,
			APICalls:    task.Stats.APICalls,
			Failed:      task.Stats.Failed,
			SuccessRate: task.Stats.SuccessRate,
		}
	}
	if task.Error != nil {
		job.Error = *task.Error
	}
	return job, nil
}

// FromTasks converts a poll response. Any unknown status fails the whole batch.
func FromTasks(tasks []api.Task) ([]Job, error) {
	out := make([]Job, 0, len(tasks))
	for _, task := range tasks {
		job, err := FromTask(task)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, nil
}

// DisplayProgress clamps the reported progress to [0, 100].
func (j Job) DisplayProgress() float64 {
	switch {
	case j.Progress < 0:
		return 0
	case j.Progress > 100:
		return 100
	default:
		return j.Progress
	}
}

// ResultFilename is the local name for the classified workbook.
func (j Job) ResultFilename() string {
	base := filepath.Base(j.Filename)
	if base == "." || base == string(filepath.Separator) {
		base = j.ID
	}
	return strings.TrimSuffix(base, ".xlsx") + "_classified.xlsx"
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// parseTimestamp accepts the server's zone-less ISO-8601 values as UTC.
func parseTimestamp(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC()
		}
	}
	return time.Time{}
}
