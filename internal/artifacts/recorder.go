// internal/artifacts/recorder.go
package artifacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autoapply/api/schemas"
)

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Recorder writes point-in-time snapshots of the surface to disk as
// <dir>/<run id>/<seq>-<name>.png and .html. The files are opaque diagnostics.
type Recorder struct {
	dir    string
	seq    atomic.Int64
	logger *zap.Logger
}

// NewRecorder creates a recorder rooted at dir. A leading ~ is expanded.
func NewRecorder(dir string, logger *zap.Logger) (*Recorder, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("artifacts directory must not be empty")
	}
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to expand artifacts directory %q: %w", dir, err)
	}
	return &Recorder{dir: expanded, logger: logger.Named("artifacts")}, nil
}

// Dir returns the expanded root directory.
func (r *Recorder) Dir() string { return r.dir }

// Capture snapshots surface and returns the paths written.
func (r *Recorder) Capture(ctx context.Context, surface schemas.SessionContext, runID, name string) ([]string, error) {
	snap, err := surface.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	runDir := filepath.Join(r.dir, sanitize(runID))
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifacts directory: %w", err)
	}
	base := fmt.Sprintf("%03d-%s", r.seq.Add(1), sanitize(name))

	var paths []string
	if len(snap.Screenshot) > 0 {
		p := filepath.Join(runDir, base+".png")
		if err := os.WriteFile(p, snap.Screenshot, 0o644); err != nil {
			return paths, fmt.Errorf("failed to write screenshot: %w", err)
		}
		paths = append(paths, p)
	}
	if snap.HTML != "" {
		p := filepath.Join(runDir, base+".html")
		html := fmt.Sprintf("<!-- url: %s captured: %s -->\n%s", snap.URL, snap.CapturedAt.Format("2006-01-02T15:04:05Z07:00"), snap.HTML)
		if err := os.WriteFile(p, []byte(html), 0o644); err != nil {
			return paths, fmt.Errorf("failed to write document: %w", err)
		}
		paths = append(paths, p)
	}
	r.logger.Debug("Snapshot written.", zap.String("run_id", runID), zap.Strings("paths", paths))
	return paths, nil
}

func sanitize(s string) string {
	s = unsafeName.ReplaceAllString(s, "_")
	if s == "" || s == "." || s == ".." {
		return "snapshot"
	}
	return s
}
