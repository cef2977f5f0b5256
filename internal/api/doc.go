// Package api hosts the optional HTTP surface used in watch mode. Routes:
//   - GET /healthz and /readyz for liveness and readiness checks; readyz pings the cache when it can.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/runs triggers a scan immediately and returns its report.
//   - GET /v1/runs/last returns the most recent report.
package api
