package jobs

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Status is the server-assigned job state.
type Status string

const (
	StatusUploaded   Status = "uploaded"
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

var allStatuses = []Status{
	StatusUploaded,
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	m := make(map[Status]struct{}, len(allStatuses))
	for _, s := range allStatuses {
		m[s] = struct{}{}
	}
	return m
}()

// AllStatuses returns every known status in lifecycle order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus converts a wire value into a Status.
func ParseStatus(value string) (Status, bool) {
	s := Status(strings.ToLower(strings.TrimSpace(value)))
	_, ok := statusSet[s]
	return s, ok
}

// Terminal reports whether the server will not move the job any further.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Label is the human-readable status name.
func (s Status) Label() string {
	return cases.Title(language.English).String(string(s))
}

// Filter selects which jobs a view shows.
type Filter string

const (
	FilterAll        Filter = ""
	FilterPending    Filter = Filter(StatusPending)
	FilterProcessing Filter = Filter(StatusProcessing)
	FilterCompleted  Filter = Filter(StatusCompleted)
	FilterFailed     Filter = Filter(StatusFailed)
)

// ParseFilter accepts "all", "" or any status name.
func ParseFilter(value string) (Filter, bool) {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	if trimmed == "" || trimmed == "all" {
		return FilterAll, true
	}
	s, ok := ParseStatus(trimmed)
	if !ok {
		return FilterAll, false
	}
	return Filter(s), true
}

func (f Filter) String() string {
	if f == FilterAll {
		return "all"
	}
	return string(f)
}
