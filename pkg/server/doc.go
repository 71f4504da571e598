// Package server runs the corsgate HTTP listeners.
//
// # Listeners
//
// The public listener serves the application through the request pipeline:
//
//	Recovery -> RequestID -> AccessLog -> TimeoutGuard -> Gate -> application
//
// The application is a reverse proxy to server.upstream, or a 404 handler
// when no upstream is configured. Embedders may supply their own handler in
// Dependencies.App.
//
// The admin listener (server.admin_address, empty disables it) serves the
// policy admin API, the cache and history views, /metrics and the health
// endpoints. It is not behind the CORS gate and should stay on a private
// address.
//
// # Basic Usage
//
//	store := config.NewStore(config.WithPolicyFile(cfg.Policy.File))
//	srv, err := server.New(&cfg.Server, server.Dependencies{
//	    Policies: store,
//	    Logger:   logger,
//	})
//	if err != nil {
//	    return err
//	}
//	return srv.Start(ctx) // returns after ctx is canceled and shutdown completes
//
// # Admin API
//
//	curl -X PATCH localhost:9091/admin/cors/policy \
//	    -d '{"allowedOrigins":["https://app.example.com"]}'
//
// answers 200 with {"success":true,"policy":{...}} or 422 with the
// validation errors; the active policy only changes on success.
package server
