package target

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestCacheKeyIsColonJoined(t *testing.T) {
	t.Parallel()

	tgt := Target{URI: "https://example.com/jobs", Text: "Curator"}
	require.Equal(t, "https://example.com/jobs:Curator", tgt.CacheKey())
	require.Equal(t, tgt.CacheKey(), Target{URI: tgt.URI, Text: tgt.Text, Description: "other"}.CacheKey())
}

func TestCacheKeyDistinguishesText(t *testing.T) {
	t.Parallel()

	a := Target{URI: "https://example.com", Text: "meow"}
	b := Target{URI: "https://example.com", Text: "cat"}
	require.NotEqual(t, a.CacheKey(), b.CacheKey())
}

// Colons are not escaped, so these two distinct rules share a key.
func TestCacheKeyColonCollision(t *testing.T) {
	t.Parallel()

	a := Target{URI: "a:b", Text: "c"}
	b := Target{URI: "a", Text: "b:c"}
	require.Equal(t, a.CacheKey(), b.CacheKey())
}

func TestParseTargets(t *testing.T) {
	t.Parallel()

	data := []byte(`
- uri: https://www.brooklynmuseum.org/about/careers
  text: Curator
  description: Brooklyn museum careers
- uri: https://whitney.org/about/job-postings
  text: Curator
`)
	targets, err := Parse(data)
	require.NoError(t, err)
	require.Len(t, targets, 2)
	require.Equal(t, "Curator", targets[0].Text)
	require.Equal(t, "Brooklyn museum careers", targets[0].Description)
	require.Empty(t, targets[1].Description)
}

func TestParseRejectsEmptyList(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("[]"))
	require.ErrorIs(t, err, ErrEmptyTargetList)

	_, err = Parse([]byte(""))
	require.ErrorIs(t, err, ErrEmptyTargetList)
}

func TestParseRejectsMissingFields(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("- uri: https://example.com\n"))
	require.ErrorContains(t, err, "text is required")

	_, err = Parse([]byte("- text: meow\n"))
	require.ErrorContains(t, err, "uri is required")
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "targets.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- uri: a\n  text: b\n"), 0o600))

	targets, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, []Target{{URI: "a", Text: "b"}}, targets)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestYAMLRoundTripKeepsFieldNames(t *testing.T) {
	t.Parallel()

	out, err := yaml.Marshal([]Target{{URI: "a", Text: "b"}, {URI: "c", Text: "d"}})
	require.NoError(t, err)
	require.Contains(t, string(out), "uri: a")
	require.Contains(t, string(out), "text: d")
	require.NotContains(t, string(out), "description")
}
