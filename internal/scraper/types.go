package scraper

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// StatusOK is the metrics status recorded for a successful fetch.
const StatusOK = "OK"

// StatusUnknown is recorded when a failure carries no wire-level status.
const StatusUnknown = "unknown"

// ErrNoTargets is returned by Run when there is nothing to scan.
var ErrNoTargets = errors.New("no targets to scrape")

// StatusError reports a fetch that completed at the transport level with a
// non-success HTTP status. Code is zero when no status was received.
type StatusError struct {
	Code int
	Err  error
}

func (e *StatusError) Error() string {
	if e.Code == 0 {
		return fmt.Sprintf("fetch failed: %v", e.Err)
	}
	if e.Err == nil {
		return fmt.Sprintf("fetch failed with status %d", e.Code)
	}
	return fmt.Sprintf("fetch failed with status %d: %v", e.Code, e.Err)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// StatusOf classifies a fetch error into a metrics status string: the HTTP
// status code when one is carried, "unknown" otherwise. A nil error is "OK".
func StatusOf(err error) string {
	if err == nil {
		return StatusOK
	}
	var se *StatusError
	if errors.As(err, &se) && se.Code > 0 {
		return strconv.Itoa(se.Code)
	}
	return StatusUnknown
}

// TargetResult summarizes what happened to one target during a run.
type TargetResult struct {
	URI       string `json:"uri"`
	Text      string `json:"text"`
	Status    string `json:"status"`
	Fragments int    `json:"fragments"`
	New       int    `json:"new"`
	Notified  int    `json:"notified"`
	Error     string `json:"error,omitempty"`
}

// Report is returned by Run. Targets appear in the order their fetches completed.
type Report struct {
	RunID         string         `json:"run_id"`
	StartedAt     time.Time      `json:"started_at"`
	FinishedAt    time.Time      `json:"finished_at"`
	Targets       []TargetResult `json:"targets"`
	Notifications int            `json:"notifications"`
	Failures      int            `json:"failures"`
}
