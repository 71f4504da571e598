// Package health provides liveness, readiness and version endpoints for the
// corsgate admin listener.
//
// # Endpoints
//
//   - /health: liveness, 200 while the process is serving
//   - /ready: readiness, 503 when any registered check fails
//   - /version: build information
//
// # Usage
//
//	checker := health.New(2 * time.Second)
//	checker.RegisterCheck("policy", health.PolicyCheck(store))
//	checker.RegisterCheck("history", historyStore.Ping)
//	checker.Mount(router, health.VersionInfo{Version: version})
//
// Checks run concurrently, each bounded by the checker timeout.
package health
