// Package gateway is the only component that talks to the backend over HTTP.
//
// Every request carries the persisted bearer token when one exists, and every
// failure comes back as an *auth.Error. A 401 outside the login call revokes
// the session that sent the request and redirects to the public entry route.
// Each live session is revoked, and so redirected, at most once; 401s that
// revoke nothing redirect only if no redirect has happened yet.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/courseforge/gatekeeper/auth"
	"github.com/courseforge/gatekeeper/navigation"
	"github.com/courseforge/gatekeeper/session"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "gatekeeper"
	LoginPath        = "/auth/login"

	maxResponseBytes = 1 << 20
)

// TokenSource provides the current bearer token without mutating storage.
// credstore.Store satisfies it.
type TokenSource interface {
	Token() (string, bool)
}

// Revoker is the part of the session machine the gateway drives on a 401.
// Revoke must report true at most once per live session.
type Revoker interface {
	Revoke(token string) bool
}

// Gateway issues authenticated JSON requests against one backend.
type Gateway struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	logger     *slog.Logger
	timeout    time.Duration
	userAgent  string
	nav        navigation.Navigator
	routes     navigation.Routes

	mu      sync.Mutex
	revoker Revoker

	// redirected is set by every redirect. It only gates 401s that did not
	// revoke a session.
	redirected atomic.Bool
}

var _ session.Authenticator = (*Gateway)(nil)

// Option configures a Gateway.
type Option func(*Gateway)

// WithHTTPClient sets the HTTP client. http.DefaultClient is used otherwise.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) {
		g.httpClient = c
	}
}

// WithNavigator registers the navigation port used for the revocation
// redirect.
func WithNavigator(nav navigation.Navigator, routes navigation.Routes) Option {
	return func(g *Gateway) {
		g.nav = nav
		g.routes = routes.WithDefaults()
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithTimeout bounds each request. Zero disables the per-request deadline.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		g.timeout = d
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(g *Gateway) {
		g.userAgent = ua
	}
}

// New creates a Gateway for baseURL, e.g. "http://localhost:8080/api".
func New(baseURL string, tokens TokenSource, opts ...Option) (*Gateway, error) {
	if baseURL == "" {
		return nil, errors.New("gateway: base URL is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("gateway: invalid base URL %q: %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("gateway: base URL %q must be absolute", baseURL)
	}
	if tokens == nil {
		return nil, errors.New("gateway: token source is required")
	}

	g := &Gateway{
		baseURL:   strings.TrimRight(baseURL, "/"),
		tokens:    tokens,
		timeout:   DefaultTimeout,
		userAgent: DefaultUserAgent,
		routes:    navigation.DefaultRoutes(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.httpClient == nil {
		g.httpClient = http.DefaultClient
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	g.logger = g.logger.With("component", "gateway")
	return g, nil
}

// Bind attaches the session machine. It replaces any earlier binding.
func (g *Gateway) Bind(r Revoker) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.revoker = r
}

func (g *Gateway) bound() Revoker {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.revoker
}

// Get issues a GET and decodes the response into out, if non-nil.
func (g *Gateway) Get(ctx context.Context, path string, out any) error {
	return g.Do(ctx, http.MethodGet, path, nil, out)
}

// Post encodes in as JSON, issues a POST and decodes the response into out.
func (g *Gateway) Post(ctx context.Context, path string, in, out any) error {
	return g.Do(ctx, http.MethodPost, path, in, out)
}

// Put encodes in as JSON, issues a PUT and decodes the response into out.
func (g *Gateway) Put(ctx context.Context, path string, in, out any) error {
	return g.Do(ctx, http.MethodPut, path, in, out)
}

// Delete issues a DELETE and decodes the response into out, if non-nil.
func (g *Gateway) Delete(ctx context.Context, path string, out any) error {
	return g.Do(ctx, http.MethodDelete, path, nil, out)
}

// Do performs one request. It never retries. A 401 triggers the revocation
// path and returns a SessionExpired error.
func (g *Gateway) Do(ctx context.Context, method, path string, in, out any) error {
	token, status, body, err := g.roundTrip(ctx, method, path, in)
	if err != nil {
		return err
	}
	switch {
	case status >= 200 && status < 300:
		return decodeBody(body, out)
	case status == http.StatusUnauthorized:
		g.revoke(token)
		return &auth.Error{Kind: auth.KindSessionExpired, Status: status}
	default:
		return auth.Rejected(status, serverMessage(body))
	}
}

// Login posts credentials to the login endpoint. Rejections of the
// credentials come back as InvalidCredentials and never revoke anything.
func (g *Gateway) Login(ctx context.Context, email, password string) (*auth.LoginResult, error) {
	req := auth.LoginRequest{Email: email, Password: password}
	_, status, body, err := g.roundTrip(ctx, http.MethodPost, LoginPath, req)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusUnprocessableEntity:
		return nil, &auth.Error{Kind: auth.KindInvalidCredentials, Status: status, Message: serverMessage(body)}
	}
	if status < 200 || status >= 300 {
		return nil, auth.Rejected(status, serverMessage(body))
	}

	var res auth.LoginResult
	if err := decodeBody(body, &res); err != nil {
		return nil, err
	}
	if res.Token == "" {
		return nil, auth.Rejected(status, "login response carried no token")
	}
	if err := res.User.Validate(); err != nil {
		return nil, &auth.Error{Kind: auth.KindServerRejected, Status: status, Message: "login response carried an invalid user", Err: err}
	}
	return &res, nil
}

// roundTrip sends the request and returns the token it carried along with
// the response status and body. Transport failures are NetworkFailure.
func (g *Gateway) roundTrip(ctx context.Context, method, path string, in any) (string, int, []byte, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	var bodyReader io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return "", 0, nil, fmt.Errorf("gateway: encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.url(path), bodyReader)
	if err != nil {
		return "", 0, nil, fmt.Errorf("gateway: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", g.userAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	token, ok := g.tokens.Token()
	if ok {
		req.Header.Set("Authorization", "Bearer "+token)
	} else {
		token = ""
	}

	start := time.Now()
	resp, err := g.httpClient.Do(req)
	if err != nil {
		g.logger.Debug("request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()))
		return token, 0, nil, &auth.Error{Kind: auth.KindNetworkFailure, Err: fmt.Errorf("%s %s: %w", method, path, err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return token, 0, nil, &auth.Error{Kind: auth.KindNetworkFailure, Err: fmt.Errorf("%s %s: read response: %w", method, path, err)}
	}

	g.logger.Debug("request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)))
	return token, resp.StatusCode, body, nil
}

func (g *Gateway) url(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return g.baseURL + path
}

// revoke runs the revocation path for a 401 received on a request that
// carried token. A 401 for a token that is no longer the live session's is
// stale and changes nothing.
func (g *Gateway) revoke(token string) {
	revoked := false
	if token != "" {
		if r := g.bound(); r != nil {
			if !r.Revoke(token) {
				g.logger.Debug("ignoring stale unauthorized response")
				return
			}
			revoked = true
		}
	}
	g.logger.Info("session expired")

	if g.nav == nil {
		return
	}
	if g.nav.CurrentRoute() == g.routes.PublicEntry {
		return
	}
	if revoked {
		g.redirected.Store(true)
	} else if !g.redirected.CompareAndSwap(false, true) {
		return
	}
	g.nav.Navigate(g.routes.PublicEntry)
}

func decodeBody(body []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &auth.Error{Kind: auth.KindServerRejected, Message: "malformed response body", Err: err}
	}
	return nil
}

// serverMessage extracts {"message": ...} or {"error": ...} from an error
// body. It returns "" when neither is present.
func serverMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Message != "" {
		return payload.Message
	}
	return payload.Error
}
