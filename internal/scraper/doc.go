// Package scraper implements the fetch-and-diff engine: every target is
// fetched concurrently, results funnel into a single consumer that extracts
// matching text fragments, notifies on fragments absent from the previous
// run, and replaces the cached fragment set.
package scraper
