// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autoapply/internal/config"
)

// Manager owns the Chrome process for one run and hands out tabs.
type Manager struct {
	cfg    config.Interface
	logger *zap.Logger

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu    sync.Mutex
	pages []*Page
}

// ExecOptions translates the application config into chromedp allocator options.
func ExecOptions(cfg config.Interface) []chromedp.ExecAllocatorOption {
	bc := cfg.Browser()
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		// Required on hardened hosts and inside containers.
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
	)

	// DefaultExecAllocatorOptions already runs headless; a headed run clears it.
	if !bc.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if bc.DisableCache {
		opts = append(opts, chromedp.Flag("disk-cache-size", "1"))
	}
	if bc.IgnoreTLSErrors {
		opts = append(opts, chromedp.IgnoreCertErrors)
	}
	if bc.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(bc.ExecPath))
	}
	if bc.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(bc.UserAgent))
	}
	if w, h := bc.Viewport["width"], bc.Viewport["height"]; w > 0 && h > 0 {
		opts = append(opts, chromedp.WindowSize(w, h))
	}

	// Extra flags from the config file's 'args' slice.
	for _, arg := range bc.Args {
		arg = strings.TrimPrefix(arg, "--")
		if key, value, ok := strings.Cut(arg, "="); ok {
			opts = append(opts, chromedp.Flag(key, value))
			continue
		}
		opts = append(opts, chromedp.Flag(arg, true))
	}
	return opts
}

// NewManager launches Chrome. The returned manager must be shut down to release
// the process.
func NewManager(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Manager, error) {
	log := logger.Named("browser_manager")
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, ExecOptions(cfg)...)

	ctxOpts := []chromedp.ContextOption{chromedp.WithErrorf(log.Sugar().Debugf)}
	if cfg.Browser().Debug {
		ctxOpts = append(ctxOpts, chromedp.WithDebugf(log.Sugar().Debugf))
	}
	browserCtx, browserCancel := chromedp.NewContext(allocCtx, ctxOpts...)

	// Running with no actions starts the browser process.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	log.Info("Browser launched.", zap.Bool("headless", cfg.Browser().Headless))
	return &Manager{
		cfg:           cfg,
		logger:        log,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// NewPage opens a fresh tab with network tracking enabled.
func (m *Manager) NewPage(ctx context.Context) (*Page, error) {
	tabCtx, tabCancel := chromedp.NewContext(m.browserCtx)
	// The first Run attaches the target and binds its lifetime to the context
	// it is given, so it must not carry a deadline.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to create tab: %w", err)
	}
	page := newPage(tabCtx, tabCancel, m.cfg.Network(), m.logger)
	page.listen()

	setup := []chromedp.Action{network.Enable()}
	if w, h := m.cfg.Browser().Viewport["width"], m.cfg.Browser().Viewport["height"]; w > 0 && h > 0 {
		setup = append(setup, emulation.SetDeviceMetricsOverride(int64(w), int64(h), 1, false))
	}
	if err := page.withTimeout(ctx, "open_tab", m.cfg.Network().NavigationTimeout, func(opCtx context.Context) error {
		return page.runActions(opCtx, setup...)
	}); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}

	m.mu.Lock()
	m.pages = append(m.pages, page)
	m.mu.Unlock()
	m.logger.Debug("Tab opened.", zap.String("page_id", page.ID()))
	return page, nil
}

// Shutdown closes every tab and terminates the browser process. It is safe to
// call more than once.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	pages := m.pages
	m.pages = nil
	m.mu.Unlock()

	for _, p := range pages {
		_ = p.Close(ctx)
	}
	if m.browserCancel != nil {
		// Cancel asks Chrome to close gracefully before the allocator kills it.
		if err := chromedp.Cancel(m.browserCtx); err != nil {
			m.logger.Debug("Graceful browser close failed.", zap.Error(err))
		}
		m.browserCancel()
		m.browserCancel = nil
	}
	if m.allocCancel != nil {
		m.allocCancel()
		m.allocCancel = nil
	}
	m.logger.Info("Browser shut down.")
	return nil
}
