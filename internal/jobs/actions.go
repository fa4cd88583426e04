package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"kmlc/internal/api"
	"kmlc/internal/fileutil"
	"kmlc/internal/logging"
	"kmlc/internal/metrics"
)

// Actions lists what may be offered for a job in its current status.
type Actions struct {
	Start    bool
	Download bool
	Cancel   bool
}

// Offered returns the actions a view offers for job.
func Offered(job Job) Actions {
	return Actions{
		Start:    job.Status == StatusUploaded,
		Download: job.Status == StatusCompleted,
		Cancel:   job.Status != StatusProcessing && job.Status != StatusCompleted,
	}
}

// StartProcessing asks the server to queue job. The server decides whether
// the transition is allowed.
func (t *Tracker) StartProcessing(ctx context.Context, job Job) error {
	err := mapActionError(job.ID, t.client.Classify(ctx, job.ID))
	metrics.JobAction("start", err)
	if err != nil {
		return err
	}
	t.logger.Info("job queued", logging.String(logging.FieldJobID, job.ID))
	t.refreshAll()
	return nil
}

// CancelOrDelete removes job, or cancels it if the server still has it
// processing. A job shown as processing is refused without a request.
func (t *Tracker) CancelOrDelete(ctx context.Context, job Job) (string, error) {
	if job.Status == StatusProcessing {
		err := &JobError{Kind: InvalidTransition, JobID: job.ID, Detail: "job is processing and cannot be cancelled from here"}
		metrics.JobAction("cancel", err)
		return "", err
	}
	message, err := t.client.DeleteTask(ctx, job.ID)
	err = mapActionError(job.ID, err)
	metrics.JobAction("cancel", err)
	if err != nil {
		return "", err
	}
	t.logger.Info("job removed", logging.String(logging.FieldJobID, job.ID), logging.String("message", message))
	t.refreshAll()
	return message, nil
}

// Download writes the classified workbook for a completed job into dir and
// returns the written path.
func (t *Tracker) Download(ctx context.Context, job Job, dir string) (string, error) {
	if job.Status != StatusCompleted {
		err := &JobError{Kind: InvalidTransition, JobID: job.ID, Detail: fmt.Sprintf("job is %s, not completed", job.Status)}
		metrics.JobAction("download", err)
		return "", err
	}
	path, err := t.download(ctx, job, dir)
	metrics.JobAction("download", err)
	return path, err
}

func (t *Tracker) download(ctx context.Context, job Job, dir string) (string, error) {
	target := filepath.Join(dir, job.ResultFilename())
	n, err := fileutil.WriteAtomic(target, 0o644, func(w io.Writer) (int64, error) {
		return t.client.Download(ctx, job.ID, w)
	})
	if err != nil {
		return "", mapActionError(job.ID, err)
	}
	t.logger.Info("result downloaded",
		logging.String(logging.FieldJobID, job.ID),
		logging.String("path", target),
		logging.Any("bytes", n),
	)
	return target, nil
}

// Lookup finds a job by ID or unique ID prefix in the current job list.
func (t *Tracker) Lookup(ctx context.Context, id string) (Job, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Job{}, &JobError{Kind: NotFound, Detail: "job id is required"}
	}
	jobs, err := t.List(ctx, FilterAll)
	if err != nil {
		return Job{}, err
	}
	var matches []Job
	for _, job := range jobs {
		if job.ID == id {
			return job, nil
		}
		if strings.HasPrefix(job.ID, id) {
			matches = append(matches, job)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return Job{}, &JobError{Kind: NotFound, JobID: id, Detail: "Task not found"}
	default:
		return Job{}, &JobError{Kind: NotFound, JobID: id, Detail: fmt.Sprintf("prefix matches %d jobs", len(matches))}
	}
}

// Upload sends a workbook for classification under topicID.
func (t *Tracker) Upload(ctx context.Context, path, topicID string) (api.UploadResult, error) {
	result, err := t.upload(ctx, path, topicID)
	metrics.JobAction("upload", err)
	return result, err
}

func (t *Tracker) upload(ctx context.Context, path, topicID string) (api.UploadResult, error) {
	if !strings.HasSuffix(path, ".xlsx") {
		return api.UploadResult{}, ErrUnsupportedFile
	}
	if strings.TrimSpace(topicID) == "" {
		return api.UploadResult{}, errors.New("topic id is required")
	}
	file, err := os.Open(path)
	if err != nil {
		return api.UploadResult{}, fmt.Errorf("open workbook: %w", err)
	}
	defer file.Close()

	result, err := t.client.Upload(ctx, path, file, topicID)
	if err != nil {
		return api.UploadResult{}, err
	}
	t.logger.Info("workbook uploaded",
		logging.String(logging.FieldJobID, result.JobID),
		logging.String("filename", result.Filename),
		logging.Int("rows", result.Rows),
	)
	t.refreshAll()
	return result, nil
}
