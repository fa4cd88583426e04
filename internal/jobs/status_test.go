package jobs

import (
	"errors"
	"testing"

	"kmlc/internal/api"
)

func TestParseStatusClosedSet(t *testing.T) {
	for _, s := range AllStatuses() {
		got, ok := ParseStatus(string(s))
		if !ok || got != s {
			t.Fatalf("ParseStatus(%q) = %q, %v", s, got, ok)
		}
	}
	if got, ok := ParseStatus(" Completed "); !ok || got != StatusCompleted {
		t.Fatalf("expected normalized status, got %q %v", got, ok)
	}
	if _, ok := ParseStatus("archived"); ok {
		t.Fatal("expected unknown status rejected")
	}
}

func TestParseFilter(t *testing.T) {
	tests := []struct {
		in   string
		want Filter
		ok   bool
	}{
		{"", FilterAll, true},
		{"all", FilterAll, true},
		{"processing", FilterProcessing, true},
		{"FAILED", FilterFailed, true},
		{"bogus", FilterAll, false},
	}
	for _, tc := range tests {
		got, ok := ParseFilter(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("ParseFilter(%q) = %q, %v; want %q, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestStatusLabel(t *testing.T) {
	if got := StatusProcessing.Label(); got != "Processing" {
		t.Fatalf("Label = %q", got)
	}
}

func TestOfferedActions(t *testing.T) {
	tests := []struct {
		status Status
		want   Actions
	}{
		{StatusUploaded, Actions{Start: true, Cancel: true}},
		{StatusPending, Actions{Cancel: true}},
		{StatusProcessing, Actions{}},
		{StatusCompleted, Actions{Download: true}},
		{StatusFailed, Actions{Cancel: true}},
		{StatusCancelled, Actions{Cancel: true}},
	}
	for _, tc := range tests {
		if got := Offered(Job{Status: tc.status}); got != tc.want {
			t.Fatalf("Offered(%s) = %+v, want %+v", tc.status, got, tc.want)
		}
	}
}

func TestFromTaskCarriesServerFields(t *testing.T) {
	detail := "LLM quota exceeded"
	job, err := FromTask(api.Task{
		JobID:     "j1",
		Status:    "failed",
		Progress:  140,
		Filename:  "q3.report.xlsx",
		Error:     &detail,
		Stats:     &api.TaskStats{TotalTasks: 10, CacheHits: 4, APICalls: 6, Failed: 1, SuccessRate: 90},
		CreatedAt: "2025-03-01T10:20:30.123456",
	})
	if err != nil {
		t.Fatalf("FromTask: %v", err)
	}
	if job.Error != detail || job.Stats == nil || job.Stats.CacheHits != 4 {
		t.Fatalf("unexpected job %+v", job)
	}
	if job.DisplayProgress() != 100 {
		t.Fatalf("expected progress clamped to 100, got %v", job.DisplayProgress())
	}
	if job.Progress != 140 {
		t.Fatal("raw progress must stay as reported")
	}
	if job.CreatedAt.IsZero() || job.CreatedAt.Year() != 2025 {
		t.Fatalf("expected parsed timestamp, got %v", job.CreatedAt)
	}
	if got := job.ResultFilename(); got != "q3.report_classified.xlsx" {
		t.Fatalf("ResultFilename = %q", got)
	}
}

func TestFromTasksRejectsUnknownStatus(t *testing.T) {
	_, err := FromTasks([]api.Task{{JobID: "a", Status: "uploaded"}, {JobID: "b", Status: "archived"}})
	var unknown *ErrUnknownStatus
	if !errors.As(err, &unknown) || unknown.JobID != "b" {
		t.Fatalf("expected unknown status error for b, got %v", err)
	}
}

func TestResultFilenameStripsDirectories(t *testing.T) {
	job := Job{ID: "j9", Filename: "../../etc/data.xlsx"}
	if got := job.ResultFilename(); got != "data_classified.xlsx" {
		t.Fatalf("ResultFilename = %q", got)
	}
}

func TestJobErrorMatchesKind(t *testing.T) {
	err := mapActionError("j1", &api.APIError{StatusCode: 400, Detail: "Task is already completed"})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatal("kinds must not cross-match")
	}
	if err.Error() != "job j1: Task is already completed" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
