// Package target defines the monitored (page, substring) rules and loads them
// from a YAML target list.
package target

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrEmptyTargetList is returned when a target list contains no entries.
var ErrEmptyTargetList = errors.New("target list is empty")

// Target is one rule to monitor: fragments of the page at URI that contain Text.
type Target struct {
	// URI is the page the scraper fetches.
	URI string `yaml:"uri" json:"uri"`
	// Text is the literal, case-sensitive substring searched in the page's text nodes.
	Text string `yaml:"text" json:"text"`
	// Description is only for humans.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// CacheKey returns the identity under which the target's last-seen fragments
// are stored. URI and Text are joined with a bare colon and are not escaped,
// so a colon inside either field can collide with another target's key.
func (t Target) CacheKey() string {
	return t.URI + ":" + t.Text
}

// String implements fmt.Stringer for log output.
func (t Target) String() string {
	return fmt.Sprintf("%s [%s]", t.URI, t.Text)
}

// Validate checks the fields required to scrape the target.
func (t Target) Validate() error {
	if t.URI == "" {
		return errors.New("uri is required")
	}
	if t.Text == "" {
		return errors.New("text is required")
	}
	return nil
}

// LoadFile reads a YAML sequence of targets from path.
func LoadFile(path string) ([]Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read target list: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML sequence of targets and validates every entry.
func Parse(data []byte) ([]Target, error) {
	var targets []Target
	if err := yaml.Unmarshal(data, &targets); err != nil {
		return nil, fmt.Errorf("decode target list: %w", err)
	}
	if len(targets) == 0 {
		return nil, ErrEmptyTargetList
	}
	for i, t := range targets {
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("target %d: %w", i, err)
		}
	}
	return targets, nil
}
