// internal/auth/bootstrap.go
package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/xkilldash9x/autoapply/api/schemas"
	"github.com/xkilldash9x/autoapply/internal/config"
)

// Session is an authenticated browsing context. Authenticated is derived from
// what the working surface rendered after the cookies were injected.
type Session struct {
	Origin         string
	SurfaceURL     string
	Cookies        []schemas.Cookie
	Authenticated  bool
	BlockMarkers   []string
	ExpiredCookies []ExpiredCookie
	Surface        schemas.SessionContext
}

// Bootstrapper injects externally supplied cookies into a browsing context and
// checks that the working surface is reachable.
type Bootstrapper struct {
	surface      schemas.SessionContext
	cfg          config.AuthConfig
	postLoadWait time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

// NewBootstrapper creates a bootstrapper for one browsing context.
func NewBootstrapper(surface schemas.SessionContext, cfg config.Interface, logger *zap.Logger) *Bootstrapper {
	return &Bootstrapper{
		surface:      surface,
		cfg:          cfg.Auth(),
		postLoadWait: cfg.Network().PostLoadWait,
		logger:       logger.Named("auth"),
		now:          time.Now,
	}
}

// Establish authenticates the browsing context and loads the working surface.
//
// The origin is loaded before the cookies are set so that their domain scoping
// resolves against it; the surface is then loaded and left to go network idle.
// If the surface renders a known denial marker the returned session has
// Authenticated=false; that is not an error.
func (b *Bootstrapper) Establish(ctx context.Context, rawCookies []schemas.Cookie, originURL, surfaceURL string) (*Session, error) {
	if len(rawCookies) == 0 {
		return nil, &AuthenticationError{Reason: ReasonMissingCredentials}
	}
	origin, err := url.Parse(originURL)
	if err != nil || origin.Host == "" {
		return nil, fmt.Errorf("invalid target origin %q", originURL)
	}

	cookies, err := b.normalize(rawCookies, origin)
	if err != nil {
		return nil, err
	}

	session := &Session{
		Origin:         originURL,
		SurfaceURL:     surfaceURL,
		Cookies:        cookies,
		ExpiredCookies: findExpired(cookies, b.now()),
		Surface:        b.surface,
	}
	for _, exp := range session.ExpiredCookies {
		b.logger.Warn("Supplied credential is already expired.",
			zap.String("cookie", exp.Name),
			zap.String("source", exp.Source),
			zap.Time("expired_at", exp.ExpiredAt))
	}

	if err := b.surface.Navigate(ctx, originURL, schemas.WaitDOMReady); err != nil {
		return nil, fmt.Errorf("failed to load origin: %w", err)
	}
	if err := b.surface.SetCookies(ctx, cookies); err != nil {
		return nil, fmt.Errorf("failed to inject cookies: %w", err)
	}
	b.logger.Debug("Cookies injected.", zap.Int("count", len(cookies)))

	if err := b.surface.Navigate(ctx, surfaceURL, schemas.WaitNetworkIdle); err != nil {
		return nil, fmt.Errorf("failed to load working surface: %w", err)
	}
	if b.postLoadWait > 0 {
		if err := b.surface.Sleep(ctx, b.postLoadWait); err != nil {
			return nil, err
		}
	}

	markers, err := b.detectBlocking(ctx)
	if err != nil {
		return nil, err
	}
	session.BlockMarkers = markers
	session.Authenticated = len(markers) == 0

	if session.Authenticated {
		b.logger.Info("Session established.", zap.String("surface", surfaceURL))
	} else {
		b.logger.Warn("Working surface shows blocking markers; session may not be authenticated.",
			zap.Strings("markers", markers))
	}
	return session, nil
}

// normalize validates each record and fills in a missing domain and path.
func (b *Bootstrapper) normalize(raw []schemas.Cookie, origin *url.URL) ([]schemas.Cookie, error) {
	domain := b.cfg.DefaultDomain
	if domain == "" {
		domain = DefaultDomain(origin.Hostname())
	}
	out := make([]schemas.Cookie, 0, len(raw))
	for i, c := range raw {
		if !c.Valid() {
			return nil, &AuthenticationError{
				Reason: ReasonMalformedCredentials,
				Err:    fmt.Errorf("cookie %d is missing a name or value", i),
			}
		}
		if c.Domain == "" {
			c.Domain = domain
		}
		if c.Path == "" {
			c.Path = "/"
		}
		out = append(out, c)
	}
	return out, nil
}

// DefaultDomain returns the cookie domain for a host: its registrable domain
// with a leading dot, or the bare host for IPs and single-label hosts.
func DefaultDomain(host string) string {
	if net.ParseIP(host) != nil {
		return host
	}
	etld1, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return "." + etld1
}

// detectBlocking scans the rendered body for the configured denial markers.
// Failing to read the body counts as a blocked surface, except when the
// browsing context itself is gone.
func (b *Bootstrapper) detectBlocking(ctx context.Context) ([]string, error) {
	if len(b.cfg.BlockMarkers) == 0 {
		return nil, nil
	}
	text, err := b.surface.BodyText(ctx)
	if err != nil {
		if errors.Is(err, schemas.ErrContextLost) || ctx.Err() != nil {
			return nil, err
		}
		b.logger.Warn("Could not read the working surface for the authentication check.", zap.Error(err))
		return []string{"unreadable surface"}, nil
	}
	lower := strings.ToLower(text)
	var found []string
	for _, m := range b.cfg.BlockMarkers {
		if m = strings.TrimSpace(m); m != "" && strings.Contains(lower, strings.ToLower(m)) {
			found = append(found, m)
		}
	}
	return found, nil
}
