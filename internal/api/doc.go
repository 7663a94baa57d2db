// Package api hosts the ops HTTP server that runs alongside the scheduler. Routes:
//   - GET /healthz and /readyz for liveness and readiness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/runs/latest for the summary of the last finished run.
//   - POST /v1/runs to start a run outside the schedule.
package api
