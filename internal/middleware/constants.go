package middleware

// HTTP header constants.
const (
	// HeaderContentType is the Content-Type header name.
	HeaderContentType = "Content-Type"

	// HeaderRetryAfter is the Retry-After header name.
	HeaderRetryAfter = "Retry-After"

	// HeaderXRequestID is the X-Request-ID header name.
	HeaderXRequestID = "X-Request-ID"
)

// ContentTypeJSON is the JSON content type.
const ContentTypeJSON = "application/json"

// ContextKeyAPIKeyID is the gin context key holding the admitted key id.
const ContextKeyAPIKeyID = "api_key_id"

// Error response constants.
const (
	// ErrRateLimitExceeded is the error body for rate limited requests.
	ErrRateLimitExceeded = `{"error_kind":"RateLimited","message":"rate limit exceeded"}`

	// ErrInternalServerError is the error body for recovered panics.
	ErrInternalServerError = `{"error_kind":"Internal","message":"internal server error"}`
)

// Gate outcome labels.
const (
	outcomeAllowed     = "allowed"
	outcomeRejected    = "rejected"
	outcomeUnprotected = "unprotected"
)
