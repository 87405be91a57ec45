// File: internal/service/factory.go
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/autoapply/api/schemas"
	"github.com/xkilldash9x/autoapply/internal/artifacts"
	"github.com/xkilldash9x/autoapply/internal/auth"
	"github.com/xkilldash9x/autoapply/internal/browser"
	"github.com/xkilldash9x/autoapply/internal/config"
	"github.com/xkilldash9x/autoapply/internal/humanoid"
	"github.com/xkilldash9x/autoapply/internal/locator"
	"github.com/xkilldash9x/autoapply/internal/orchestrator"
	"github.com/xkilldash9x/autoapply/internal/reporting"
	"github.com/xkilldash9x/autoapply/internal/reveal"
	"github.com/xkilldash9x/autoapply/internal/workflow"
)

// ComponentFactory defines the interface for creating the set of components
// needed for a run. This abstraction is what makes the run command testable.
type ComponentFactory interface {
	Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error)
}

// SurfaceOpener produces the browsing context for a run together with the
// host that must be shut down afterwards. The host may be nil.
type SurfaceOpener func(ctx context.Context, cfg config.Interface, logger *zap.Logger) (schemas.SessionContext, BrowserHost, error)

// concreteFactory is the production implementation of the ComponentFactory.
type concreteFactory struct {
	open SurfaceOpener
}

// NewComponentFactory creates a factory that launches Chrome.
func NewComponentFactory() ComponentFactory {
	return &concreteFactory{open: LaunchBrowser}
}

// NewComponentFactoryWithOpener creates a factory over a custom surface, such
// as a simulated one.
func NewComponentFactoryWithOpener(open SurfaceOpener) ComponentFactory {
	return &concreteFactory{open: open}
}

// LaunchBrowser starts Chrome and opens the single tab a run drives.
func LaunchBrowser(ctx context.Context, cfg config.Interface, logger *zap.Logger) (schemas.SessionContext, BrowserHost, error) {
	// The browser outlives any one command context; Shutdown ends it.
	manager, err := browser.NewManager(browser.Detach(ctx), cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	page, err := manager.NewPage(ctx)
	if err != nil {
		return nil, manager, err
	}
	return page, manager, nil
}

// Create handles the full dependency injection and initialization of run
// components.
func (f *concreteFactory) Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error) {
	components := &Components{Config: cfg, logger: logger}

	// Ensure cleanup happens if initialization fails midway.
	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			components.Shutdown()
		}
	}()

	// 1. Labels. Validated first so a typo fails before Chrome starts.
	labels, err := workflow.LabelsFromConfig(cfg.Labels())
	if err != nil {
		initializationErr = fmt.Errorf("invalid label configuration: %w", err)
		return nil, initializationErr
	}

	// 2. Run history store (optional).
	st, pool, err := InitializeStore(ctx, cfg.Database(), logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize run history store: %w", err)
		return nil, initializationErr
	}
	components.Store = st
	components.DBPool = pool

	// 3. Browsing context.
	surface, host, err := f.open(ctx, cfg, logger)
	components.browser = host
	if err != nil {
		initializationErr = fmt.Errorf("failed to open browsing context: %w", err)
		return nil, initializationErr
	}
	components.Surface = surface
	logger.Debug("Browsing context ready.", zap.String("surface_id", surface.ID()))

	// 4. Workflow stack.
	wf := cfg.Workflow()
	loc := locator.New(surface, logger, wf.PollInterval)
	pacer := humanoid.New(cfg.Humanoid())
	revealer := reveal.New(surface, pacer, logger)
	driver := workflow.NewDriver(surface, loc, pacer, labels, wf, logger)
	components.Bootstrapper = auth.NewBootstrapper(surface, cfg, logger)

	// 5. Orchestrator.
	orch, err := orchestrator.New(cfg, logger, loc, revealer, driver, labels.Open)
	if err != nil {
		initializationErr = fmt.Errorf("failed to create orchestrator: %w", err)
		return nil, initializationErr
	}
	if ac := cfg.Artifacts(); ac.Enabled {
		rec, err := artifacts.NewRecorder(ac.Dir, logger)
		if err != nil {
			initializationErr = fmt.Errorf("failed to initialize artifacts: %w", err)
			return nil, initializationErr
		}
		orch.WithSnapshots(rec)
	}
	components.Orchestrator = orch

	// 6. Summary sinks.
	components.Sinks = []reporting.Sink{reporting.NewLogSink(logger)}
	if rc := cfg.Report(); rc.Format != "" {
		components.Sinks = append(components.Sinks, reporting.NewReporterSink(rc.Format, rc.Output))
	}
	if st != nil {
		components.Sinks = append(components.Sinks, reporting.NewStoreSink(st))
	}

	logger.Info("All run components initialized successfully.")
	return components, nil
}
