package apikey

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"
)

// Signature algorithms.
const (
	AlgHMACSHA256  = "hmac-sha256"
	AlgHMACSHA512  = "hmac-sha512"
	AlgHMACSHA3256 = "hmac-sha3-256"
)

// canonicalSeparator joins the signed values.
const canonicalSeparator = "|"

// Signer computes request signatures.
type Signer struct {
	alg     string
	newHash func() hash.Hash
}

// NewSigner returns the signer for an algorithm name. An empty name selects
// hmac-sha256.
func NewSigner(alg string) (*Signer, error) {
	switch alg {
	case "", AlgHMACSHA256:
		return &Signer{alg: AlgHMACSHA256, newHash: sha256.New}, nil
	case AlgHMACSHA512:
		return &Signer{alg: AlgHMACSHA512, newHash: sha512.New}, nil
	case AlgHMACSHA3256:
		return &Signer{alg: AlgHMACSHA3256, newHash: sha3.New256}, nil
	default:
		return nil, fmt.Errorf("unsupported signature algorithm %q", alg)
	}
}

// Algorithm returns the algorithm name.
func (s *Signer) Algorithm() string {
	return s.alg
}

// Sign returns the raw MAC of canonical under secret.
func (s *Signer) Sign(secret, canonical string) []byte {
	mac := hmac.New(s.newHash, []byte(secret))
	mac.Write([]byte(canonical))
	return mac.Sum(nil)
}

// SignHex returns the lowercase hex encoding of Sign.
func (s *Signer) SignHex(secret, canonical string) string {
	return hex.EncodeToString(s.Sign(secret, canonical))
}

// Verify reports whether the hex signature matches canonical under secret.
// Hex is accepted in either case. Comparison is constant time.
func (s *Signer) Verify(secret, canonical, signature string) bool {
	supplied, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(s.Sign(secret, canonical), supplied)
}

// CanonicalString builds the signed string: id|timestamp|nonce followed by
// any extra values in order.
func CanonicalString(id, timestamp, nonce string, extra ...string) string {
	parts := make([]string, 0, 3+len(extra))
	parts = append(parts, id, timestamp, nonce)
	parts = append(parts, extra...)
	return strings.Join(parts, canonicalSeparator)
}

// SignedFields are the values a client sends for the complex scheme.
type SignedFields struct {
	ID        string
	Timestamp string
	Nonce     string
	Signature string
	Extra     []string
}

// SignRequest produces the fields for a signed request issued at now.
func SignRequest(s *Signer, id, secret, nonce string, now time.Time, extra ...string) SignedFields {
	ts := strconv.FormatInt(now.Unix(), 10)
	return SignedFields{
		ID:        id,
		Timestamp: ts,
		Nonce:     nonce,
		Signature: s.SignHex(secret, CanonicalString(id, ts, nonce, extra...)),
		Extra:     extra,
	}
}
