package server

import (
	"sort"

	"github.com/apistarter/apistarter/internal/server/handlers"
)

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes() {
	s.router.Get("/", s.deps.Build.RootHandler)

	s.deps.Health.RegisterReadinessChecker("shutdown", handlers.ShutdownChecker(s.deps.Coordinator))
	s.router.Get("/health", s.deps.Health.HealthHandler)
	s.router.Get("/health/live", s.deps.Health.LivenessHandler)
	s.router.Get("/health/ready", s.deps.Health.ReadinessHandler)

	s.router.Get("/version", s.deps.Build.VersionHandler)
	s.router.Method("GET", "/metrics", handlers.NewMetricsProxy(s.deps.MetricsPort, s.logger))

	prefixes := make([]string, 0, len(s.deps.Mounts))
	for prefix := range s.deps.Mounts {
		prefixes = append(prefixes, prefix)
	}
	sort.Strings(prefixes)
	for _, prefix := range prefixes {
		s.router.Route(prefix, s.deps.Mounts[prefix])
	}
}
