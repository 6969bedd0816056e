package engineapi

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/couchcryptid/malaria-risk-index/internal/domain"
)

// Scope requested for the service account.
const Scope = "https://www.googleapis.com/auth/earthengine"

// Session performs the service-account handshake and returns an HTTP client
// that attaches and refreshes the access token. Any failure wraps
// domain.ErrUpstreamAuth.
func Session(ctx context.Context, credentialsJSON []byte, timeout time.Duration) (*http.Client, error) {
	conf, err := google.JWTConfigFromJSON(credentialsJSON, Scope)
	if err != nil {
		return nil, fmt.Errorf("%w: parse credentials: %v", domain.ErrUpstreamAuth, err)
	}

	ts := conf.TokenSource(ctx)
	if _, err := ts.Token(); err != nil {
		return nil, fmt.Errorf("%w: fetch token: %v", domain.ErrUpstreamAuth, err)
	}

	client := oauth2.NewClient(ctx, ts)
	client.Timeout = timeout
	return client, nil
}

// SessionFromFile reads a service-account key file and calls Session. An
// empty path yields an unauthenticated client, for gateways that sit behind
// their own auth proxy.
func SessionFromFile(ctx context.Context, path string, timeout time.Duration) (*http.Client, error) {
	if path == "" {
		return &http.Client{Timeout: timeout}, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read credentials: %v", domain.ErrUpstreamAuth, err)
	}
	return Session(ctx, b, timeout)
}
