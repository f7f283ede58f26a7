package drain

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// RunShutdownSequence blocks until SIGINT/SIGTERM, then drives the
// shutdown sequence of spec §4.4: enter draining, race the deadline
// against in-flight requests draining to zero, invoke stop (which
// should run every registered OnStop hook — heartbeat, cleanup,
// idempotency sweep, connection force-close — in reverse registration
// order), then return. A second signal during the sequence forces an
// immediate os.Exit(1), in keeping with spec §4.4's "A second signal
// forces immediate exit 1."
func RunShutdownSequence(logger *slog.Logger, c *Controller, deadlineSeconds int, stop func(context.Context) error) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	<-sigCh
	logger.Info("drain: shutdown signal received, entering draining mode", "deadline_seconds", deadlineSeconds)
	if err := c.StartDraining(deadlineSeconds, "process exit"); err != nil {
		logger.Warn("drain: startDraining failed", "error", err)
	}

	drained := make(chan struct{})
	go func() {
		deadline := time.Now().Add(time.Duration(deadlineSeconds) * time.Second)
		if c.WaitForDrain(deadline) {
			logger.Info("drain: all in-flight requests completed before deadline")
		} else {
			logger.Warn("drain: deadline reached with requests still in flight", "inflight", c.InflightRequests())
		}
		close(drained)
	}()

	select {
	case <-sigCh:
		logger.Warn("drain: second signal received, forcing immediate exit")
		os.Exit(1)
	case <-drained:
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(deadlineSeconds)*time.Second)
	defer cancel()
	if err := stop(ctx); err != nil {
		logger.Error("drain: stop sequence returned an error", "error", err)
	}
}
