// Package health provides liveness and readiness endpoints for signgate.
//
// Liveness (/healthz) only reports that the process serves requests.
// Readiness (/readyz) runs every registered dependency check, such as the
// redis nonce store or the SQL key source, with a per-check timeout. A
// failing critical check makes the service unhealthy (503); a failing
// non-critical check only degrades it.
//
// # Usage
//
//	checker := health.NewChecker(version, health.WithTimeout(2*time.Second))
//	checker.Register(health.PingCheck("redis", store))
//
//	mux := http.NewServeMux()
//	mux.HandleFunc("/healthz", checker.LivenessHandler())
//	mux.HandleFunc("/readyz", checker.ReadinessHandler())
package health
