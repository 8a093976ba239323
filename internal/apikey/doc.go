// Package apikey implements API key request authentication.
//
// Two schemes are supported:
//
//   - simple: the request carries a token that must be a registered key.
//   - complex: the request carries a key id, a unix-seconds timestamp, a
//     nonce and a hex HMAC over "id|timestamp|nonce". The timestamp must
//     fall inside the configured skew and the nonce must not have been
//     seen for that key within its TTL.
//
// Keys live in a Registry. Validators report rejections as
// *ValidationError values whose Kind maps onto an HTTP status.
package apikey
