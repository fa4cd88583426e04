package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"kmlc/internal/jobs"
)

const (
	progressBarWidth = 20
	shortIDLength    = 8
)

func buildJobRows(list []jobs.Job, colorize bool) [][]string {
	if len(list) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(list))
	for _, job := range list {
		rows = append(rows, []string{
			shortID(job.ID),
			job.Filename,
			job.TopicName,
			fmt.Sprintf("%d", job.Rows),
			colorizeStatus(job.Status, colorize),
			formatProgress(job),
			formatCreated(job.CreatedAt),
			jobDetail(job),
		})
	}
	return rows
}

// formatProgress draws a bar only while the server reports processing.
func formatProgress(job jobs.Job) string {
	if job.Status != jobs.StatusProcessing {
		return ""
	}
	pct := job.DisplayProgress()
	filled := int(pct / 100 * progressBarWidth)
	return fmt.Sprintf("%s%s %3.0f%%",
		strings.Repeat("#", filled),
		strings.Repeat(".", progressBarWidth-filled),
		pct,
	)
}

// jobDetail shows the server error for failed jobs and the offered actions otherwise.
func jobDetail(job jobs.Job) string {
	if job.Status == jobs.StatusFailed && job.Error != "" {
		return job.Error
	}
	offered := jobs.Offered(job)
	var actions []string
	if offered.Start {
		actions = append(actions, "start")
	}
	if offered.Download {
		actions = append(actions, "download")
	}
	if offered.Cancel {
		actions = append(actions, "cancel")
	}
	return strings.Join(actions, ", ")
}

func formatCreated(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format("2006-01-02 15:04")
}

func shortID(id string) string {
	if len(id) > shortIDLength {
		return id[:shortIDLength]
	}
	return id
}

func renderJobTable(list []jobs.Job, colorize bool) string {
	return jobListing.render(buildJobRows(list, colorize))
}

func renderJobStats(job jobs.Job) []string {
	if job.Stats == nil {
		return nil
	}
	return []string{
		renderStatusLine("Total tasks", statusInfo, fmt.Sprintf("%d", job.Stats.TotalTasks), false),
		renderStatusLine("Cache hits", statusInfo, fmt.Sprintf("%d", job.Stats.CacheHits), false),
		renderStatusLine("API calls", statusInfo, fmt.Sprintf("%d", job.Stats.APICalls), false),
		renderStatusLine("Failed", statusInfo, fmt.Sprintf("%d", job.Stats.Failed), false),
		renderStatusLine("Success rate", statusInfo, fmt.Sprintf("%.1f%%", job.Stats.SuccessRate), false),
	}
}

// writeJSON prints v for --json output: jobs, topics and accounts.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// jobJSON is the --json shape of a job.
type jobJSON struct {
	ID        string      `json:"job_id"`
	User      string      `json:"user"`
	TopicID   string      `json:"topic_id"`
	TopicName string      `json:"topic_name"`
	Filename  string      `json:"filename"`
	Rows      int         `json:"rows"`
	Status    string      `json:"status"`
	Progress  float64     `json:"progress"`
	Stats     *jobs.Stats `json:"stats,omitempty"`
	Error     string      `json:"error,omitempty"`
	CreatedAt string      `json:"created_at,omitempty"`
}

func toJobJSON(list []jobs.Job) []jobJSON {
	out := make([]jobJSON, 0, len(list))
	for _, job := range list {
		created := ""
		if !job.CreatedAt.IsZero() {
			created = job.CreatedAt.Format(time.RFC3339)
		}
		out = append(out, jobJSON{
			ID:        job.ID,
			User:      job.User,
			TopicID:   job.TopicID,
			TopicName: job.TopicName,
			Filename:  job.Filename,
			Rows:      job.Rows,
			Status:    string(job.Status),
			Progress:  job.DisplayProgress(),
			Stats:     job.Stats,
			Error:     job.Error,
			CreatedAt: created,
		})
	}
	return out
}
