package metrics

import (
	"bytes"
	"encoding/csv"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// KindIncRequest marks one completed fetch attempt for a target.
const KindIncRequest = "inc_req"

// Event is one line of the request log.
type Event struct {
	// TS is when the event was recorded; it is written as unix seconds.
	TS time.Time
	// Kind is the event type, currently always KindIncRequest.
	Kind string
	// Target is the fetched URI.
	Target string
	// Status is "OK", an HTTP status code, or "unknown".
	Status string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	if e.Kind == "" {
		return errors.New("kind is required")
	}
	if e.Status == "" {
		return errors.New("status is required")
	}
	return nil
}

// CSV encodes the event as `timestamp,kind,target,status\n`. Fields are only
// quoted when they contain a comma, quote or newline.
func (e Event) CSV() []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	// Writing to a bytes.Buffer cannot fail.
	_ = w.Write([]string{strconv.FormatInt(e.TS.Unix(), 10), e.Kind, e.Target, e.Status})
	w.Flush()
	return buf.Bytes()
}

// SanitizeSite extracts a lowercase hostname from a URL.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
