package client

import (
	"net/http"
)

// SessionTransport wraps an http.RoundTripper to add the session cookie.
type SessionTransport struct {
	Base       http.RoundTripper
	CookieName string
	Token      string
}

// RoundTrip implements http.RoundTripper
func (t *SessionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Token != "" {
		// Clone the request to avoid mutating the original
		req2 := req.Clone(req.Context())
		req2.AddCookie(&http.Cookie{Name: t.CookieName, Value: t.Token})
		req = req2
	}

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}
