package artifacts

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/autoapply/api/schemas"
	"github.com/xkilldash9x/autoapply/internal/browser/simsurface"
	"github.com/xkilldash9x/autoapply/internal/mocks"
)

func TestRecorder_Capture(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRecorder(dir, zaptest.NewLogger(t))
	require.NoError(t, err)

	s := simsurface.New(simsurface.Options{}, simsurface.Item{Title: "SRE"})
	require.NoError(t, s.Navigate(context.Background(), "https://example.com/list", schemas.WaitDOMReady))

	paths, err := r.Capture(context.Background(), s, "run-1", "item 002/failed")
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, filepath.Join(dir, "run-1", "001-item_002_failed.png"), paths[0])
	assert.Equal(t, filepath.Join(dir, "run-1", "001-item_002_failed.html"), paths[1])

	html, err := os.ReadFile(paths[1])
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(html), "<!-- url: https://example.com/list"))
	assert.Contains(t, string(html), "SRE")

	second, err := r.Capture(context.Background(), s, "run-1", "final")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "run-1", "002-final.png"), second[0])
}

func TestRecorder_SnapshotError(t *testing.T) {
	r, err := NewRecorder(t.TempDir(), zaptest.NewLogger(t))
	require.NoError(t, err)
	m := mocks.NewMockSessionContext()
	m.On("Snapshot", mock.Anything).Return(nil, schemas.ErrContextLost)

	_, err = r.Capture(context.Background(), m, "run", "x")
	assert.ErrorIs(t, err, schemas.ErrContextLost)
}

func TestNewRecorder(t *testing.T) {
	_, err := NewRecorder(" ", zaptest.NewLogger(t))
	assert.Error(t, err)

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	r, err := NewRecorder("~/.autoapply/artifacts", zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".autoapply", "artifacts"), r.Dir())
	assert.Equal(t, "snapshot", sanitize(".."))
}
