// Package handlers contains HTTP middleware, authentication and response
// helpers for the API server.
//
// # Authentication
//
// Three schemes are used, one per audience:
//
//	jwtAuth := handlers.NewJWTAuth(secret, "campusmart", 24*time.Hour)
//	r.With(jwtAuth.Middleware).Get("/api/v1/me/standing", ...)
//
//	admin := handlers.NewAPIKeyAuth("X-Admin-Key", bcryptHashes)
//	r.With(admin.Middleware).Post("/internal/jobs/graduation-sweep", ...)
//
//	verifier := handlers.NewSignatureVerifier(webhookSecret)
//	event, err := verifier.ReadPaymentEvent(r)
//
// # Errors
//
// WriteError maps domain error kinds to status codes:
//
//	ErrInvalidArgument            -> 400
//	ErrUnauthorized               -> 401
//	ErrForbidden                  -> 403
//	ErrNotFound                   -> 404
//	ErrAlreadyClaimed, ErrConflict,
//	ErrSweepInProgress            -> 409
//	ErrTransientStore             -> 503
//
// # Health Checks
//
//	checker := handlers.NewCompositeHealthChecker(version)
//	checker.AddCheck("postgres", handlers.PingCheck(pool))
//	checker.AddCheck("redis", handlers.PingCheck(cache))
package handlers
