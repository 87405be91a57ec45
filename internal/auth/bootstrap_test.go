package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/autoapply/api/schemas"
	"github.com/xkilldash9x/autoapply/internal/browser/simsurface"
	"github.com/xkilldash9x/autoapply/internal/config"
	"github.com/xkilldash9x/autoapply/internal/mocks"
)

const (
	origin  = "https://www.example.co.uk"
	surface = "https://www.example.co.uk/candidate/opportunities/?matching=true"
)

func TestEstablish_MissingCredentials(t *testing.T) {
	for _, cookies := range [][]schemas.Cookie{nil, {}} {
		m := mocks.NewMockSessionContext()
		b := NewBootstrapper(m, config.NewDefaultConfig(), zaptest.NewLogger(t))

		session, err := b.Establish(context.Background(), cookies, origin, surface)
		assert.Nil(t, session)
		var authErr *AuthenticationError
		require.True(t, errors.As(err, &authErr))
		assert.Equal(t, ReasonMissingCredentials, authErr.Reason)
		m.AssertNotCalled(t, "Navigate", mock.Anything, mock.Anything, mock.Anything)
		m.AssertNotCalled(t, "SetCookies", mock.Anything, mock.Anything)
	}
}

func TestEstablish_MalformedCredentials(t *testing.T) {
	m := mocks.NewMockSessionContext()
	b := NewBootstrapper(m, config.NewDefaultConfig(), zaptest.NewLogger(t))

	_, err := b.Establish(context.Background(), []schemas.Cookie{{Name: "sessionid"}}, origin, surface)
	var authErr *AuthenticationError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, ReasonMalformedCredentials, authErr.Reason)
	m.AssertNotCalled(t, "Navigate", mock.Anything, mock.Anything, mock.Anything)
}

func TestEstablish_SequenceAndDefaults(t *testing.T) {
	ctx := context.Background()
	s := simsurface.New(simsurface.Options{}, simsurface.Item{Title: "Backend Engineer"})
	cfg := config.NewDefaultConfig()
	b := NewBootstrapper(s, cfg, zaptest.NewLogger(t))

	session, err := b.Establish(ctx, []schemas.Cookie{
		{Name: "sessionid", Value: "abc"},
		{Name: "csrftoken", Value: "xyz", Domain: "www.example.co.uk", Path: "/candidate"},
	}, origin, surface)
	require.NoError(t, err)
	assert.True(t, session.Authenticated)
	assert.Empty(t, session.BlockMarkers)

	stats := s.Stats()
	assert.Equal(t, []string{origin, surface}, stats.Navigations)
	require.Len(t, stats.Cookies, 2)
	assert.Equal(t, ".example.co.uk", stats.Cookies[0].Domain)
	assert.Equal(t, "/", stats.Cookies[0].Path)
	assert.Equal(t, "www.example.co.uk", stats.Cookies[1].Domain)
	assert.Equal(t, "/candidate", stats.Cookies[1].Path)
	assert.Equal(t, cfg.Network().PostLoadWait, s.Elapsed())
}

func TestEstablish_NavigationOrder(t *testing.T) {
	ctx := context.Background()
	m := mocks.NewMockSessionContext()
	var order []string
	m.On("Navigate", mock.Anything, origin, schemas.WaitDOMReady).Run(func(mock.Arguments) { order = append(order, "origin") }).Return(nil).Once()
	m.On("SetCookies", mock.Anything, mock.Anything).Run(func(mock.Arguments) { order = append(order, "cookies") }).Return(nil).Once()
	m.On("Navigate", mock.Anything, surface, schemas.WaitNetworkIdle).Run(func(mock.Arguments) { order = append(order, "surface") }).Return(nil).Once()
	m.On("Sleep", mock.Anything, mock.Anything).Return(nil)
	m.On("BodyText", mock.Anything).Return("Welcome back", nil)

	b := NewBootstrapper(m, config.NewDefaultConfig(), zaptest.NewLogger(t))
	session, err := b.Establish(ctx, []schemas.Cookie{{Name: "a", Value: "b"}}, origin, surface)
	require.NoError(t, err)
	assert.True(t, session.Authenticated)
	assert.Equal(t, []string{"origin", "cookies", "surface"}, order)
	m.AssertExpectations(t)
}

func TestEstablish_BlockedSurface(t *testing.T) {
	ctx := context.Background()
	s := simsurface.New(simsurface.Options{BlockedText: "Access Denied. Please verify you are human."})
	b := NewBootstrapper(s, config.NewDefaultConfig(), zaptest.NewLogger(t))

	session, err := b.Establish(ctx, []schemas.Cookie{{Name: "a", Value: "b"}}, origin, surface)
	require.NoError(t, err, "blocking markers are reported, not raised")
	assert.False(t, session.Authenticated)
	assert.ElementsMatch(t, []string{"access denied", "verify you are human"}, session.BlockMarkers)
}

func TestEstablish_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("origin navigation fails", func(t *testing.T) {
		m := mocks.NewMockSessionContext()
		m.On("Navigate", mock.Anything, origin, schemas.WaitDOMReady).Return(errors.New("net::ERR_NAME_NOT_RESOLVED"))
		b := NewBootstrapper(m, config.NewDefaultConfig(), zaptest.NewLogger(t))

		_, err := b.Establish(ctx, []schemas.Cookie{{Name: "a", Value: "b"}}, origin, surface)
		assert.ErrorContains(t, err, "failed to load origin")
		m.AssertNotCalled(t, "SetCookies", mock.Anything, mock.Anything)
	})

	t.Run("context lost during check", func(t *testing.T) {
		m := mocks.NewMockSessionContext()
		m.On("Navigate", mock.Anything, mock.Anything, mock.Anything).Return(nil)
		m.On("SetCookies", mock.Anything, mock.Anything).Return(nil)
		m.On("Sleep", mock.Anything, mock.Anything).Return(nil)
		m.On("BodyText", mock.Anything).Return("", schemas.ErrContextLost)
		b := NewBootstrapper(m, config.NewDefaultConfig(), zaptest.NewLogger(t))

		_, err := b.Establish(ctx, []schemas.Cookie{{Name: "a", Value: "b"}}, origin, surface)
		assert.ErrorIs(t, err, schemas.ErrContextLost)
	})

	t.Run("unreadable body counts as blocked", func(t *testing.T) {
		m := mocks.NewMockSessionContext()
		m.On("Navigate", mock.Anything, mock.Anything, mock.Anything).Return(nil)
		m.On("SetCookies", mock.Anything, mock.Anything).Return(nil)
		m.On("Sleep", mock.Anything, mock.Anything).Return(nil)
		m.On("BodyText", mock.Anything).Return("", errors.New("script timed out"))
		b := NewBootstrapper(m, config.NewDefaultConfig(), zaptest.NewLogger(t))

		session, err := b.Establish(ctx, []schemas.Cookie{{Name: "a", Value: "b"}}, origin, surface)
		require.NoError(t, err)
		assert.False(t, session.Authenticated)
	})

	t.Run("invalid origin", func(t *testing.T) {
		b := NewBootstrapper(mocks.NewMockSessionContext(), config.NewDefaultConfig(), zaptest.NewLogger(t))
		_, err := b.Establish(ctx, []schemas.Cookie{{Name: "a", Value: "b"}}, "not a url", surface)
		assert.Error(t, err)
		var authErr *AuthenticationError
		assert.False(t, errors.As(err, &authErr))
	})
}

func TestEstablish_ReportsExpiredCredentials(t *testing.T) {
	ctx := context.Background()
	s := simsurface.New(simsurface.Options{})
	b := NewBootstrapper(s, config.NewDefaultConfig(), zaptest.NewLogger(t))
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }

	session, err := b.Establish(ctx, []schemas.Cookie{
		{Name: "old", Value: "v", Expires: now.Add(-time.Hour)},
		{Name: "fresh", Value: "v", Expires: now.Add(time.Hour)},
	}, origin, surface)
	require.NoError(t, err)
	require.Len(t, session.ExpiredCookies, 1)
	assert.Equal(t, "old", session.ExpiredCookies[0].Name)
	assert.Equal(t, "cookie", session.ExpiredCookies[0].Source)
}

func TestDefaultDomain(t *testing.T) {
	assert.Equal(t, ".instahyre.com", DefaultDomain("www.instahyre.com"))
	assert.Equal(t, ".example.co.uk", DefaultDomain("a.b.example.co.uk"))
	assert.Equal(t, "127.0.0.1", DefaultDomain("127.0.0.1"))
	assert.Equal(t, "localhost", DefaultDomain("localhost"))
}
