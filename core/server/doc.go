// Package server runs the operational HTTP endpoint of a service:
// Prometheus metrics plus liveness and readiness probes.
//
//	srv := server.New(":9090", server.WithLogger(log))
//	g.Go(srv.Run(ctx, server.Handler(reg, log, svc.Healthcheck)))
//
// Run fits errgroup: it serves until the context is canceled, then shuts
// down within the configured timeout.
package server
