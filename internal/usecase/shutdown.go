package usecase

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/vitos/crypto_trend_breakout/internal/domain"
	"go.uber.org/zap"
)

const shutdownFlattenTimeout = 30 * time.Second

// ShutdownController turns SIGINT/SIGTERM (or an internal trigger) into a single
// stop: latch, cancel the run loop, flatten.
type ShutdownController struct {
	cancel    context.CancelFunc
	flattener Flattener
	journal   *EventJournal
	logger    *zap.Logger

	once         sync.Once
	shuttingDown atomic.Bool
	done         chan struct{}
}

func NewShutdownController(cancel context.CancelFunc, flattener Flattener, journal *EventJournal, logger *zap.Logger) *ShutdownController {
	return &ShutdownController{
		cancel:    cancel,
		flattener: flattener,
		journal:   journal,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// Listen installs the SIGINT/SIGTERM handler and keeps it installed until the
// returned stop func is called. Signals after the first are no-ops, so a second
// Ctrl-C never kills the process while flattening is still in progress.
func (c *ShutdownController) Listen() (stop func()) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	go func() {
		for sig := range sigs {
			if c.ShuttingDown() {
				c.logger.Warn("Shutdown already in progress, ignoring signal", zap.String("signal", sig.String()))
			}
			c.Trigger(sig.String())
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(sigs)
			close(sigs)
		})
	}
}

// Trigger runs the shutdown sequence once. Later calls return immediately.
func (c *ShutdownController) Trigger(reason string) {
	c.once.Do(func() {
		c.shuttingDown.Store(true)
		c.logger.Warn("Shutdown requested", zap.String("reason", reason))
		if c.cancel != nil {
			c.cancel()
		}

		ctx, cancel := context.WithTimeout(context.Background(), shutdownFlattenTimeout)
		defer cancel()
		if err := c.flattener.FlattenAll(ctx, ExitShutdown); err != nil {
			c.logger.Error("Failed to flatten on shutdown", zap.Error(err))
		}
		c.journal.Record(ctx, &domain.TradeSessionLog{Event: domain.EventShutdown, Reason: reason})
		close(c.done)
	})
}

func (c *ShutdownController) ShuttingDown() bool {
	return c.shuttingDown.Load()
}

// Done is closed once Trigger has finished flattening.
func (c *ShutdownController) Done() <-chan struct{} {
	return c.done
}
