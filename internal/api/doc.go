// Package api hosts the HTTP server, middleware, and REST handlers. Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - /v1/tasks for creating, listing, inspecting, cancelling and deleting
//     discovery tasks.
//   - POST /v1/tasks/{id}/export and /prefetch for bulk export and cache warm-up.
package api
