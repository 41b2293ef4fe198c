// Package identity resolves caller credentials to stable user ids using an
// external identity provider.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrUnauthenticated means the caller sent no credential or one the
	// provider does not recognize.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrUnavailable means the provider could not be asked.
	ErrUnavailable = errors.New("identity provider unavailable")
)

// SessionCookie is the cookie that carries the session credential.
const SessionCookie = "session"

// Resolver turns a credential into a stable user id.
type Resolver interface {
	Resolve(ctx context.Context, credential string) (string, error)
}

// CredentialFromRequest returns the session cookie value, or the bearer
// token when there is no cookie.
func CredentialFromRequest(r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		return strings.TrimSpace(auth[len(prefix):])
	}
	return ""
}

// HTTPResolver asks a userinfo endpoint who owns a bearer credential.
type HTTPResolver struct {
	url        string
	httpClient *http.Client
}

func NewHTTPResolver(userInfoURL string) *HTTPResolver {
	return &HTTPResolver{
		url:        userInfoURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type userInfo struct {
	Sub string          `json:"sub"`
	ID  json.RawMessage `json:"id"`
}

func (u userInfo) userID() string {
	if u.Sub != "" {
		return u.Sub
	}
	raw := strings.TrimSpace(string(u.ID))
	if raw == "" || raw == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(u.ID, &s); err == nil {
		return s
	}
	// Numeric ids are kept in their literal form.
	return raw
}

func (h *HTTPResolver) Resolve(ctx context.Context, credential string) (string, error) {
	if credential == "" {
		return "", ErrUnauthenticated
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return "", fmt.Errorf("creating userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+credential)
	req.Header.Set("Accept", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", ErrUnauthenticated
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: userinfo returned %d: %s", ErrUnavailable, resp.StatusCode, body)
	}

	var info userInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", fmt.Errorf("%w: decoding userinfo: %v", ErrUnavailable, err)
	}
	id := info.userID()
	if id == "" {
		return "", ErrUnauthenticated
	}
	return id, nil
}

// Disabled rejects every credential. It stands in when no identity
// provider is configured.
type Disabled struct{}

func (Disabled) Resolve(context.Context, string) (string, error) {
	return "", ErrUnauthenticated
}
