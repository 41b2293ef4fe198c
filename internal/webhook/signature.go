// Package webhook verifies and decodes signed task API deliveries.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
)

const (
	HeaderID        = "webhook-id"
	HeaderTimestamp = "webhook-timestamp"
	HeaderSignature = "webhook-signature"

	signatureVersion = "v1"
)

var (
	ErrMissingHeaders   = errors.New("missing webhook headers")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// Delivery carries the signing headers of one webhook request.
type Delivery struct {
	ID        string
	Timestamp string
	Signature string
}

// DeliveryFromHeaders extracts the three signing headers. All of them must
// be present and non-empty.
func DeliveryFromHeaders(h http.Header) (Delivery, error) {
	d := Delivery{
		ID:        h.Get(HeaderID),
		Timestamp: h.Get(HeaderTimestamp),
		Signature: h.Get(HeaderSignature),
	}
	if d.ID == "" || d.Timestamp == "" || d.Signature == "" {
		return Delivery{}, ErrMissingHeaders
	}
	return d, nil
}

// Sign returns the base64 HMAC-SHA256 of "{id}.{timestamp}.{body}".
// body must be the exact bytes received.
func Sign(secret, id, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(id))
	mac.Write([]byte{'.'})
	mac.Write([]byte(timestamp))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify reports whether any "v1,<sig>" entry in the space separated
// signature header matches the expected signature. Entries with other
// versions are skipped so keys can be rotated.
func Verify(secret, id, timestamp string, body []byte, header string) bool {
	expected := []byte(Sign(secret, id, timestamp, body))
	ok := false
	for _, entry := range strings.Fields(header) {
		version, sig, found := strings.Cut(entry, ",")
		if !found || version != signatureVersion {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(sig), expected) == 1 {
			ok = true
		}
	}
	return ok
}

// Verifier checks deliveries against one shared secret.
type Verifier struct {
	secret string
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret}
}

// Check validates the request headers and body. It returns ErrMissingHeaders
// before computing any HMAC, and ErrInvalidSignature on mismatch.
func (v *Verifier) Check(h http.Header, body []byte) (Delivery, error) {
	d, err := DeliveryFromHeaders(h)
	if err != nil {
		return Delivery{}, err
	}
	if !Verify(v.secret, d.ID, d.Timestamp, body, d.Signature) {
		return Delivery{}, ErrInvalidSignature
	}
	return d, nil
}

// SignatureHeader formats a signature as a single v1 header value.
func SignatureHeader(sig string) string {
	return signatureVersion + "," + sig
}
