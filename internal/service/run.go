// File: internal/service/run.go
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/autoapply/api/schemas"
	"github.com/xkilldash9x/autoapply/internal/auth"
	"github.com/xkilldash9x/autoapply/internal/browser"
	"github.com/xkilldash9x/autoapply/internal/reporting"
)

const emitTimeout = 30 * time.Second

// Execute authenticates the surface and runs the orchestrator. The summary is
// emitted to every sink whenever a run took place, even an aborted one.
func (c *Components) Execute(ctx context.Context, cookies []schemas.Cookie) (*schemas.RunSummary, error) {
	target := c.Config.Target()
	session, err := c.Bootstrapper.Establish(ctx, cookies, target.Origin, target.SurfaceURL)
	if err != nil {
		return nil, err
	}
	if !session.Authenticated && c.Config.Auth().AbortOnBlocked {
		return nil, &auth.AuthenticationError{
			Reason: auth.ReasonBlocked,
			Err:    fmt.Errorf("working surface shows %s", strings.Join(session.BlockMarkers, ", ")),
		}
	}

	summary, runErr := c.Orchestrator.Run(ctx, session)
	if summary != nil {
		// Sinks still run after a cancelled run.
		emitCtx, cancel := context.WithTimeout(browser.Detach(ctx), emitTimeout)
		defer cancel()
		if err := reporting.Fanout(emitCtx, c.logger, summary, c.Sinks...); err != nil {
			c.logger.Warn("Run summary was not delivered to every sink.", zap.Error(err))
		}
	}
	return summary, runErr
}
