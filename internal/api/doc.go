// Package api hosts the HTTP server, middleware and REST handlers of the
// brand scan service. Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/scans to submit a scan.
//   - GET /v1/scans/{scan_id}/status, /result, /progress and
//     /exports/{name} to follow and download it.
//   - POST /v1/scans/{scan_id}/cancel.
package api
