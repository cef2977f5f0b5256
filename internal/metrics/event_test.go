package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEventCSV(t *testing.T) {
	t.Parallel()

	evt := Event{TS: time.Unix(1700000000, 0), Kind: KindIncRequest, Target: "https://example.com/x", Status: "404"}
	require.Equal(t, "1700000000,inc_req,https://example.com/x,404\n", string(evt.CSV()))
}

func TestEventCSVQuotesCommas(t *testing.T) {
	t.Parallel()

	evt := Event{TS: time.Unix(1, 0), Kind: KindIncRequest, Target: "https://example.com/a,b", Status: "OK"}
	require.Equal(t, "1,inc_req,\"https://example.com/a,b\",OK\n", string(evt.CSV()))
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, sampleEvent().Validate())
	require.Error(t, Event{Kind: KindIncRequest, Status: "OK"}.Validate())
	require.Error(t, Event{TS: time.Unix(1, 0), Status: "OK"}.Validate())
	require.Error(t, Event{TS: time.Unix(1, 0), Kind: KindIncRequest}.Validate())
}

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	for _, tc := range []string{"http://example.com", "https://google.com", "ftp://example.com"} {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if SanitizeSite(orig) == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
