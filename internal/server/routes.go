package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/signgate/internal/apikey"
	"github.com/vyrodovalexey/signgate/internal/middleware"
)

// Route paths served by every instance.
const (
	PathSimpleSandbox  = "/sandbox/simple-api-key"
	PathComplexSandbox = "/sandbox/complex-api-key"
	PathLiveness       = "/healthz"
	PathReadiness      = "/readyz"
	PathEndpoints      = "/endpoints"
)

// RouteSpec declares one route. A non-empty Scheme protects the route
// with that validation scheme.
type RouteSpec struct {
	Method  string
	Path    string
	Handler gin.HandlerFunc
	Scheme  apikey.Scheme
	Layers  []gin.HandlerFunc
	Summary string
	Group   string
}

// Compose returns the built-in routes followed by deps.Routes, in
// registration order.
func Compose(deps Deps) []RouteSpec {
	specs := []RouteSpec{
		{
			Method:  http.MethodGet,
			Path:    PathSimpleSandbox,
			Handler: sandboxHandler,
			Scheme:  apikey.SchemeSimple,
			Summary: "Simple API key sandbox",
			Group:   "sandbox",
		},
		{
			Method:  http.MethodGet,
			Path:    PathComplexSandbox,
			Handler: sandboxHandler,
			Scheme:  apikey.SchemeComplex,
			Summary: "Signed request sandbox",
			Group:   "sandbox",
		},
	}

	if deps.Health != nil {
		specs = append(specs,
			RouteSpec{
				Method:  http.MethodGet,
				Path:    PathLiveness,
				Handler: gin.WrapF(deps.Health.LivenessHandler()),
				Summary: "Liveness probe",
				Group:   "health",
			},
			RouteSpec{
				Method:  http.MethodGet,
				Path:    PathReadiness,
				Handler: gin.WrapF(deps.Health.ReadinessHandler()),
				Summary: "Readiness probe",
				Group:   "health",
			},
		)
	}

	if deps.Metrics != nil && deps.MetricsPath != "" {
		specs = append(specs, RouteSpec{
			Method:  http.MethodGet,
			Path:    deps.MetricsPath,
			Handler: gin.WrapH(deps.Metrics.Handler()),
			Summary: "Prometheus metrics",
			Group:   "metrics",
		})
	}

	return append(specs, deps.Routes...)
}

// sandboxHandler echoes the admitted identity.
func sandboxHandler(c *gin.Context) {
	id, ok := apikey.IdentityFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "ok",
		"key_id":  c.GetString(middleware.ContextKeyAPIKeyID),
		"scheme":  id.Scheme,
	})
}

// notFound answers requests that match no route.
func notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, middleware.Rejection{
		ErrorKind: "NotFound",
		Message:   "nothing to see here",
	})
}

// protectPattern converts a gin route path into a protection pattern:
// ":name" becomes "{name}" and a trailing "*name" becomes "**".
func protectPattern(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		switch {
		case strings.HasPrefix(seg, ":"):
			segments[i] = "{" + seg[1:] + "}"
		case strings.HasPrefix(seg, "*"):
			segments[i] = "**"
		}
	}
	return strings.Join(segments, "/")
}
