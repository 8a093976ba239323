// Package server composes the signgate HTTP and gRPC servers.
//
// Routes are declared as a plain ordered list of RouteSpec values. New
// registers every route that names a scheme, plus the protected patterns
// from configuration, on the route protection registry, freezes it and
// builds the gin engine behind the signature gate:
//
//	srv, err := server.New(cfg, deps)
//	if err != nil {
//	    return err
//	}
//	if err := srv.Start(ctx); err != nil {
//	    return err
//	}
//	defer srv.Shutdown(context.Background())
//
// The collected route catalog is served read-only at GET /endpoints.
package server
