// File: internal/service/components.go
package service

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autoapply/api/schemas"
	"github.com/xkilldash9x/autoapply/internal/auth"
	"github.com/xkilldash9x/autoapply/internal/config"
	"github.com/xkilldash9x/autoapply/internal/orchestrator"
	"github.com/xkilldash9x/autoapply/internal/reporting"
	"github.com/xkilldash9x/autoapply/internal/store"
)

// BrowserHost owns the browser process behind the surface.
// *browser.Manager implements it.
type BrowserHost interface {
	Shutdown(ctx context.Context) error
}

// Components holds all the initialized services required for a run and
// centralizes their lifecycle.
type Components struct {
	Config       config.Interface
	Surface      schemas.SessionContext
	Bootstrapper *auth.Bootstrapper
	Orchestrator *orchestrator.Orchestrator
	Store        *store.Store
	Sinks        []reporting.Sink
	DBPool       *pgxpool.Pool

	browser BrowserHost
	logger  *zap.Logger
}

// Shutdown releases the browser and the database pool. It runs on every exit
// path, including after an authentication failure, and is safe to call twice.
func (c *Components) Shutdown() {
	logger := c.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug("Beginning components shutdown sequence.")

	// Use a separate context so shutdown completes even if the main
	// application context was canceled.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if c.Surface != nil {
		if err := c.Surface.Close(shutdownCtx); err != nil {
			logger.Warn("Error closing browsing context.", zap.Error(err))
		}
	}
	if c.browser != nil {
		if err := c.browser.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error during browser shutdown.", zap.Error(err))
		} else {
			logger.Debug("Browser shut down.")
		}
		c.browser = nil
	}
	if c.DBPool != nil {
		c.DBPool.Close()
		c.DBPool = nil
		logger.Debug("Database connection pool closed.")
	}
	logger.Info("All run components shut down.")
}
