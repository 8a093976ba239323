package apikey

import (
	"net/http"
	"strings"

	"google.golang.org/grpc/metadata"
)

// Field sources.
const (
	SourceHeader   = "header"
	SourceQuery    = "query"
	SourceMetadata = "metadata"
)

// FieldSource resolves a named credential field of one request.
// An absent field yields the empty string.
type FieldSource interface {
	Get(name string) string
}

// HeaderSource reads fields from HTTP headers.
type HeaderSource http.Header

// Get implements FieldSource.
func (h HeaderSource) Get(name string) string {
	return strings.TrimSpace(http.Header(h).Get(name))
}

// QuerySource reads fields from URL query parameters.
type QuerySource map[string][]string

// Get implements FieldSource.
func (q QuerySource) Get(name string) string {
	if vs := q[name]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// MetadataSource reads fields from gRPC metadata. Keys are matched
// case-insensitively.
type MetadataSource metadata.MD

// Get implements FieldSource.
func (m MetadataSource) Get(name string) string {
	if vs := metadata.MD(m).Get(name); len(vs) > 0 {
		return strings.TrimSpace(vs[0])
	}
	return ""
}

// MapSource is a FieldSource over a plain map, mostly useful in tests and
// in the signing CLI.
type MapSource map[string]string

// Get implements FieldSource.
func (m MapSource) Get(name string) string {
	return m[name]
}

// RequestFields returns the FieldSource of r for the configured source.
// Metadata falls back to headers for plain HTTP requests.
func RequestFields(r *http.Request, source string) FieldSource {
	if source == SourceQuery {
		return QuerySource(r.URL.Query())
	}
	return HeaderSource(r.Header)
}
