// Package providerfactory builds the provider side of the service from
// configuration.
//
// NewTransport picks the transport for one provider (an HTTP AI gateway or
// Gemini through the genai SDK). Manager registers every configured provider
// in a routing.Registry, routes calls through a providers.Mux, applies
// selector weights and runs the optional health monitor:
//
//	m := providerfactory.NewManager(routing.NewRegistry(), logger)
//	defer m.Close()
//	if err := m.LoadFromConfig(ctx, cfg.Providers, cfg.Selector); err != nil {
//	    logger.Warn("some providers failed to load", "error", err)
//	}
//	m.StartHealthMonitor(ctx, 30*time.Second)
//	orch, err := orchestrator.New(&cfg.Orchestrator, m.Selector(), m.Transport())
//
// Calling LoadFromConfig again with a reloaded configuration updates
// providers in place.
package providerfactory
