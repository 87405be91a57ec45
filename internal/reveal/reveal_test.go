package reveal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/autoapply/api/schemas"
	"github.com/xkilldash9x/autoapply/internal/browser/simsurface"
	"github.com/xkilldash9x/autoapply/internal/config"
	"github.com/xkilldash9x/autoapply/internal/humanoid"
	"github.com/xkilldash9x/autoapply/internal/mocks"
)

func items(n int) []simsurface.Item {
	out := make([]simsurface.Item, n)
	return out
}

func TestReveal_StabilizesAfterLazyLoad(t *testing.T) {
	ctx := context.Background()
	s := simsurface.New(simsurface.Options{InitialRendered: 2, PageSize: 2}, items(7)...)
	r := New(s, humanoid.New(config.HumanoidConfig{}), zaptest.NewLogger(t))

	stabilized, err := r.Reveal(ctx, Options{StepBudget: 10, IdleThreshold: 1, Pause: 900 * time.Millisecond})
	require.NoError(t, err)
	assert.True(t, stabilized)

	// 2 -> 4 -> 6 -> 7 -> 7: the fourth scroll sees no growth.
	assert.Equal(t, 4, s.Stats().Scrolls)
	assert.Equal(t, 4*900*time.Millisecond, s.Elapsed())
	count := 0
	cands, err := s.QueryCandidates(ctx)
	require.NoError(t, err)
	for _, c := range cands {
		if c.Text == "View" {
			count++
		}
	}
	assert.Equal(t, 7, count)
}

func TestReveal_IdleThreshold(t *testing.T) {
	ctx := context.Background()
	s := simsurface.New(simsurface.Options{}, items(3)...)
	r := New(s, nil, zaptest.NewLogger(t))

	stabilized, err := r.Reveal(ctx, Options{StepBudget: 10, IdleThreshold: 3})
	require.NoError(t, err)
	assert.True(t, stabilized)
	assert.Equal(t, 3, s.Stats().Scrolls)
}

func TestReveal_BudgetExhaustedIsNotAnError(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zapcore.WarnLevel)
	s := simsurface.New(simsurface.Options{InitialRendered: 1, PageSize: 1}, items(20)...)
	r := New(s, nil, zap.New(core))

	stabilized, err := r.Reveal(ctx, Options{StepBudget: 3, Pause: time.Second})
	require.NoError(t, err)
	assert.False(t, stabilized)
	assert.Equal(t, 3, s.Stats().Scrolls)
	assert.Equal(t, 1, logs.FilterMessageSnippet("step budget exhausted").Len())
}

func TestReveal_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("context lost while scrolling", func(t *testing.T) {
		surface := mocks.NewMockSessionContext()
		surface.On("ContentExtent", mock.Anything).Return(int64(1000), nil)
		surface.On("ScrollBy", mock.Anything, 0.9).Return(schemas.ErrContextLost)
		r := New(surface, nil, zaptest.NewLogger(t))

		stabilized, err := r.Reveal(ctx, Options{})
		assert.False(t, stabilized)
		assert.True(t, errors.Is(err, schemas.ErrContextLost))
	})

	t.Run("cancelled during pause", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		surface := mocks.NewMockSessionContext()
		surface.On("ContentExtent", mock.Anything).Return(int64(1000), nil)
		surface.On("ScrollBy", mock.Anything, mock.Anything).Return(nil)
		surface.On("Sleep", mock.Anything, 500*time.Millisecond).Run(func(mock.Arguments) { cancel() }).Return(context.Canceled)
		r := New(surface, nil, zaptest.NewLogger(t))

		_, err := r.Reveal(cancelled, Options{Pause: 500 * time.Millisecond})
		assert.ErrorIs(t, err, context.Canceled)
		surface.AssertNumberOfCalls(t, "ScrollBy", 1)
	})
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.NewDefaultConfig().Reveal()
	opts := OptionsFromConfig(cfg)
	assert.Equal(t, 40, opts.StepBudget)
	assert.Equal(t, 1, opts.IdleThreshold)
	assert.Equal(t, 900*time.Millisecond, opts.Pause)
	assert.InDelta(t, 0.9, opts.ViewportFraction, 1e-9)
}
