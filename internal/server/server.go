package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"

	"github.com/vyrodovalexey/signgate/internal/apikey"
	"github.com/vyrodovalexey/signgate/internal/config"
	"github.com/vyrodovalexey/signgate/internal/health"
	"github.com/vyrodovalexey/signgate/internal/middleware"
	"github.com/vyrodovalexey/signgate/internal/observability"
	"github.com/vyrodovalexey/signgate/internal/protect"
)

// Server errors.
var (
	ErrAlreadyRunning   = errors.New("server is already running")
	ErrConflictingRoute = errors.New("path is bound to more than one scheme")
)

const readHeaderTimeout = 10 * time.Second

// Deps holds the components the server is composed from.
type Deps struct {
	Logger observability.Logger

	// Metrics, when set, records HTTP request metrics and is served at
	// MetricsPath if that is non-empty.
	Metrics     *observability.Metrics
	MetricsPath string

	GateMetrics *middleware.Metrics
	Validators  []apikey.Validator
	Health      *health.Checker

	// Tracer, when set, wraps each request except probes and metrics
	// scrapes in a server span.
	Tracer middleware.SpanStarter

	// Routes are application routes appended after the built-in ones.
	Routes []RouteSpec

	// GRPCServices are registered when a gRPC address is configured.
	GRPCServices []GRPCRegistrar
}

// Server serves the composed routes over HTTP and, optionally, gRPC.
type Server struct {
	cfg       config.ServerConfig
	logger    observability.Logger
	specs     []RouteSpec
	routes    *protect.Registry
	gate      *middleware.Gate
	limiter   *middleware.RateLimiter
	engine    *gin.Engine
	handler   http.Handler
	endpoints []Endpoint

	grpcServer *grpc.Server
	grpcHealth *grpchealth.Server

	mu         sync.Mutex
	running    bool
	httpServer *http.Server
	httpAddr   net.Addr
	grpcAddr   net.Addr
}

// New composes the routes, freezes the protection registry and builds the
// engine. It fails when a path is bound to two schemes, a configured
// scheme is unknown or a bound scheme has no validator.
func New(cfg *config.Config, deps Deps) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}

	s := &Server{
		cfg:    cfg.Server,
		logger: logger,
		specs:  Compose(deps),
	}

	routes, err := protectRoutes(s.specs, cfg.ProtectedRoutes)
	if err != nil {
		return nil, err
	}
	s.routes = routes

	s.gate, err = middleware.NewGate(routes, deps.Validators,
		middleware.WithGateLogger(logger),
		middleware.WithGateMetrics(deps.GateMetrics),
	)
	if err != nil {
		return nil, err
	}

	s.limiter = middleware.NewRateLimiterFromConfig(cfg.RateLimit, logger, deps.GateMetrics)

	s.specs = append(s.specs, RouteSpec{
		Method:  http.MethodGet,
		Path:    PathEndpoints,
		Handler: s.endpointsHandler,
		Summary: "Route catalog",
		Group:   "endpoints",
	})
	s.endpoints = buildEndpoints(s.specs, routes)

	if err := s.buildEngine(); err != nil {
		s.limiter.Stop()
		return nil, err
	}

	var inner http.Handler = withRouteHolder(
		middleware.LoggingWithRoute(logger, deps.Metrics, routeLabel)(s.engine),
	)
	if deps.Tracer != nil {
		inner = middleware.Tracing(deps.Tracer, PathLiveness, PathReadiness, deps.MetricsPath)(inner)
	}
	s.handler = middleware.Recovery(logger, deps.GateMetrics)(middleware.RequestID()(inner))

	if cfg.Server.GRPCAddress != "" {
		s.grpcServer, s.grpcHealth = newGRPCServer(s.gate, logger, deps.GRPCServices)
	}

	logger.Info("routes composed",
		observability.Int("routes", len(s.specs)),
		observability.Int("protected_patterns", routes.Len()),
	)

	return s, nil
}

// protectRoutes binds every route with a scheme and every configured
// pattern, then freezes the registry. A path repeated with the same
// scheme (for example under several methods) is bound once.
func protectRoutes(specs []RouteSpec, configured []config.ProtectedRoute) (*protect.Registry, error) {
	routes := protect.NewRegistry()
	bound := make(map[string]apikey.Scheme)

	bind := func(pattern string, scheme apikey.Scheme) error {
		if prev, ok := bound[pattern]; ok {
			if prev != scheme {
				return fmt.Errorf("%w: %s (%s, %s)", ErrConflictingRoute, pattern, prev, scheme)
			}
			return nil
		}
		if err := routes.Protect(pattern, scheme); err != nil {
			return fmt.Errorf("protect %s: %w", pattern, err)
		}
		bound[pattern] = scheme
		return nil
	}

	for _, spec := range specs {
		if spec.Scheme == "" {
			continue
		}
		if err := bind(protectPattern(spec.Path), spec.Scheme); err != nil {
			return nil, err
		}
	}

	for _, pr := range configured {
		scheme, err := apikey.ParseScheme(pr.Scheme)
		if err != nil {
			return nil, fmt.Errorf("protect %s: %w", pr.Path, err)
		}
		if err := bind(pr.Path, scheme); err != nil {
			return nil, err
		}
	}

	routes.Freeze()
	return routes, nil
}

func (s *Server) buildEngine() (err error) {
	// gin panics on conflicting route registrations
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to register routes: %v", r)
		}
	}()

	engine := gin.New()
	engine.Use(captureRoute())
	if s.limiter != nil {
		engine.Use(s.limiter.Gin())
	}
	engine.Use(s.gate.Gin())
	engine.NoRoute(notFound)

	for _, spec := range s.specs {
		handlers := make([]gin.HandlerFunc, 0, len(spec.Layers)+1)
		handlers = append(handlers, spec.Layers...)
		handlers = append(handlers, spec.Handler)
		engine.Handle(spec.Method, spec.Path, handlers...)
	}

	s.engine = engine
	return nil
}

// Start starts the listeners and returns once they accept connections.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Address, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadTimeout:       s.cfg.ReadTimeout.Duration(),
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      s.cfg.WriteTimeout.Duration(),
		IdleTimeout:       s.cfg.IdleTimeout.Duration(),
		MaxHeaderBytes:    1 << 20,
	}
	s.httpAddr = ln.Addr()
	go s.serveHTTP(ln)

	if s.grpcServer != nil {
		gln, err := lc.Listen(ctx, "tcp", s.cfg.GRPCAddress)
		if err != nil {
			_ = s.httpServer.Close()
			return fmt.Errorf("failed to listen on %s: %w", s.cfg.GRPCAddress, err)
		}
		s.grpcAddr = gln.Addr()
		go s.serveGRPC(gln)
	}

	s.running = true
	s.logger.Info("server started",
		observability.String("http_address", s.httpAddr.String()),
		observability.String("grpc_address", addrString(s.grpcAddr)),
	)
	return nil
}

func (s *Server) serveHTTP(ln net.Listener) {
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("http server error", observability.Error(err))
	}
}

func (s *Server) serveGRPC(ln net.Listener) {
	if err := s.grpcServer.Serve(ln); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		s.logger.Error("grpc server error", observability.Error(err))
	}
}

// Shutdown stops the listeners gracefully. Calls past the ctx deadline
// close remaining connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		s.limiter.Stop()
		return nil
	}
	s.running = false

	if _, ok := ctx.Deadline(); !ok && s.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownTimeout.Duration())
		defer cancel()
	}

	s.logger.Info("stopping server")

	if s.grpcServer != nil {
		s.grpcHealth.Shutdown()
		stopped := make(chan struct{})
		go func() {
			s.grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-ctx.Done():
			s.grpcServer.Stop()
		}
	}

	var err error
	if shutdownErr := s.httpServer.Shutdown(ctx); shutdownErr != nil {
		err = fmt.Errorf("failed to shutdown http server gracefully: %w", shutdownErr)
		_ = s.httpServer.Close()
	}

	s.limiter.Stop()
	s.logger.Info("server stopped")
	return err
}

// Handler returns the complete HTTP handler chain.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Gate returns the signature gate shared by HTTP and gRPC.
func (s *Server) Gate() *middleware.Gate {
	return s.gate
}

// Endpoints returns the route catalog.
func (s *Server) Endpoints() []Endpoint {
	out := make([]Endpoint, len(s.endpoints))
	copy(out, s.endpoints)
	return out
}

// Protected returns the protection bindings in registration order.
func (s *Server) Protected() []protect.Binding {
	return s.routes.Routes()
}

// Addr returns the bound HTTP address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.httpAddr
}

// GRPCAddr returns the bound gRPC address, or nil when gRPC is off.
func (s *Server) GRPCAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.grpcAddr
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}

type routeHolderKey struct{}

type routeHolder struct {
	route string
}

// withRouteHolder gives the gin engine a place to report the matched
// route template back to the access log.
func withRouteHolder(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), routeHolderKey{}, &routeHolder{})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func captureRoute() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h, ok := c.Request.Context().Value(routeHolderKey{}).(*routeHolder); ok {
			h.route = c.FullPath()
		}
		c.Next()
	}
}

func routeLabel(r *http.Request) string {
	if h, ok := r.Context().Value(routeHolderKey{}).(*routeHolder); ok {
		return h.route
	}
	return ""
}
