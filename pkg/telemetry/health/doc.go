// Package health provides liveness, readiness and version endpoints.
//
// Readiness aggregates component checks registered at startup:
//
//	checker := health.New(5 * time.Second)
//	checker.RegisterCheck("providers", health.ProvidersCheck(registry))
//	checker.RegisterCheck("cache", health.PingCheck(redisCache))
//	checker.RegisterCheck("archive", health.PingCheck(store))
//
//	r.Get("/health", checker.LivenessHandler())
//	r.Get("/ready", checker.ReadinessHandler())
//	r.Get("/version", health.VersionHandler(version, commit, buildTime))
//
// Liveness only reports that the process is up; it never runs checks.
package health
