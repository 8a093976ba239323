package server

import (
	"hash/fnv"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/signgate/internal/protect"
)

// Endpoint is one entry of the route catalog.
type Endpoint struct {
	ID       string `json:"id"`
	Method   string `json:"method"`
	Path     string `json:"path"`
	Resource string `json:"resource"`
	Action   string `json:"action"`
	Group    string `json:"group,omitempty"`
	Scheme   string `json:"scheme,omitempty"`
	Summary  string `json:"summary,omitempty"`
}

// endpointAction is the access action recorded for every route.
const endpointAction = "rw"

// endpointID is a stable identifier for a route, derived from its path
// and method.
func endpointID(path, method string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(path + method))
	return strconv.FormatUint(h.Sum64(), 16)
}

// resourceOf returns the first path segment.
func resourceOf(path string) string {
	parts := strings.SplitN(path, "/", 3)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

func buildEndpoints(specs []RouteSpec, routes *protect.Registry) []Endpoint {
	out := make([]Endpoint, 0, len(specs))
	for _, spec := range specs {
		ep := Endpoint{
			ID:       endpointID(spec.Path, spec.Method),
			Method:   spec.Method,
			Path:     spec.Path,
			Resource: resourceOf(spec.Path),
			Action:   endpointAction,
			Group:    spec.Group,
			Summary:  spec.Summary,
		}
		if b, ok := routes.Match(spec.Path); ok {
			ep.Scheme = string(b.Scheme)
		}
		out = append(out, ep)
	}
	return out
}

func (s *Server) endpointsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"count":     len(s.endpoints),
		"endpoints": s.endpoints,
	})
}
