package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/signgate/internal/apikey"
	"github.com/vyrodovalexey/signgate/internal/observability"
	"github.com/vyrodovalexey/signgate/internal/protect"
)

// Gate errors.
var (
	// ErrNoValidator is returned when a protected route names a scheme
	// without a validator.
	ErrNoValidator = errors.New("no validator for scheme")

	// ErrDuplicateValidator is returned when two validators enforce the
	// same scheme.
	ErrDuplicateValidator = errors.New("duplicate validator for scheme")
)

// Rejection is the JSON body of a rejected request.
type Rejection struct {
	ErrorKind string `json:"error_kind"`
	Message   string `json:"message"`
}

// NewRejection builds the response body for a validation error.
func NewRejection(verr *apikey.ValidationError) Rejection {
	return Rejection{ErrorKind: string(verr.Kind), Message: verr.Message}
}

// Gate enforces API key schemes on protected routes.
type Gate struct {
	routes     *protect.Registry
	validators map[apikey.Scheme]apikey.Validator
	logger     observability.Logger
	metrics    *Metrics
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithGateLogger sets the logger.
func WithGateLogger(logger observability.Logger) GateOption {
	return func(g *Gate) {
		g.logger = logger
	}
}

// WithGateMetrics sets the metrics.
func WithGateMetrics(m *Metrics) GateOption {
	return func(g *Gate) {
		g.metrics = m
	}
}

// NewGate creates a gate over routes. Every scheme bound in routes must
// have a validator.
func NewGate(routes *protect.Registry, validators []apikey.Validator, opts ...GateOption) (*Gate, error) {
	g := &Gate{
		routes:     routes,
		validators: make(map[apikey.Scheme]apikey.Validator, len(validators)),
		logger:     observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(g)
	}

	for _, v := range validators {
		if _, ok := g.validators[v.Scheme()]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateValidator, v.Scheme())
		}
		g.validators[v.Scheme()] = v
	}

	for _, b := range routes.Routes() {
		if _, ok := g.validators[b.Scheme]; !ok {
			return nil, fmt.Errorf("%w: %s (route %s)", ErrNoValidator, b.Scheme, b.Pattern)
		}
	}

	return g, nil
}

// Check validates the request at path. protected is false when no binding
// matches; then both the identity and the error are nil.
func (g *Gate) Check(
	ctx context.Context,
	path string,
	fields apikey.FieldSource,
) (id *apikey.Identity, verr *apikey.ValidationError, protected bool) {
	return g.check(ctx, path, func(string) apikey.FieldSource { return fields })
}

func (g *Gate) check(
	ctx context.Context,
	path string,
	fields func(source string) apikey.FieldSource,
) (*apikey.Identity, *apikey.ValidationError, bool) {
	binding, ok := g.routes.Match(path)
	if !ok {
		g.metrics.recordDecision("", outcomeUnprotected)
		return nil, nil, false
	}

	v, ok := g.validators[binding.Scheme]
	if !ok {
		verr := &apikey.ValidationError{
			Kind:    apikey.KindStoreUnavailable,
			Message: "scheme not configured",
		}
		g.logger.Error("protected route has no validator",
			observability.String("path", path),
			observability.String("scheme", string(binding.Scheme)),
		)
		g.metrics.recordDecision(binding.Scheme, outcomeRejected)
		return nil, verr, true
	}

	id, err := v.Validate(ctx, fields(v.Source()))
	if err != nil {
		verr, ok := apikey.AsValidationError(err)
		if !ok {
			verr = &apikey.ValidationError{
				Kind:    apikey.KindStoreUnavailable,
				Message: "validation failed",
				Cause:   err,
			}
		}

		logFields := []observability.Field{
			observability.String("error_kind", string(verr.Kind)),
			observability.String("key_id", verr.KeyID),
			observability.String("path", path),
			observability.String("scheme", string(binding.Scheme)),
		}
		if verr.Cause != nil {
			logFields = append(logFields, observability.Error(verr.Cause))
		}
		g.logger.WithContext(ctx).Warn("request rejected", logFields...)
		g.metrics.recordDecision(binding.Scheme, outcomeRejected)
		return nil, verr, true
	}

	g.logger.WithContext(ctx).Debug("request admitted",
		observability.String("key_id", id.LogID()),
		observability.String("path", path),
		observability.String("scheme", string(id.Scheme)),
	)
	g.metrics.recordDecision(binding.Scheme, outcomeAllowed)
	return id, nil, true
}

// HTTP returns the gate as net/http middleware.
func (g *Gate) HTTP() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, verr, _ := g.check(r.Context(), r.URL.Path, func(source string) apikey.FieldSource {
				return apikey.RequestFields(r, source)
			})
			if verr != nil {
				WriteRejection(w, verr)
				return
			}
			if id != nil {
				r = r.WithContext(apikey.ContextWithIdentity(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Gin returns the gate as a gin handler. Admitted requests carry the key
// id under ContextKeyAPIKeyID.
func (g *Gate) Gin() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, verr, _ := g.check(c.Request.Context(), c.Request.URL.Path, func(source string) apikey.FieldSource {
			return apikey.RequestFields(c.Request, source)
		})
		if verr != nil {
			c.AbortWithStatusJSON(verr.HTTPStatus(), NewRejection(verr))
			return
		}
		if id != nil {
			c.Request = c.Request.WithContext(apikey.ContextWithIdentity(c.Request.Context(), id))
			c.Set(ContextKeyAPIKeyID, id.KeyID)
		}
		c.Next()
	}
}

// WriteRejection writes the JSON rejection for verr.
func WriteRejection(w http.ResponseWriter, verr *apikey.ValidationError) {
	w.Header().Set(HeaderContentType, ContentTypeJSON)
	w.WriteHeader(verr.HTTPStatus())
	_ = json.NewEncoder(w).Encode(NewRejection(verr))
}
