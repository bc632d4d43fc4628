package shutdown

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// BackgroundWorker runs one long-lived goroutine that stops when its
// context is cancelled.
type BackgroundWorker struct {
	name     string
	logger   *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewBackgroundWorker creates a new background worker
func NewBackgroundWorker(name string, logger *zap.Logger) *BackgroundWorker {
	ctx, cancel := context.WithCancel(context.Background())
	return &BackgroundWorker{
		name:   name,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins the background worker.
// The work function should respect ctx.Done() for cancellation.
func (bw *BackgroundWorker) Start(work func(ctx context.Context)) {
	bw.wg.Add(1)
	go func() {
		defer bw.wg.Done()
		bw.logger.Info("Background worker started", zap.String("worker", bw.name))
		work(bw.ctx)
		bw.logger.Info("Background worker stopped", zap.String("worker", bw.name))
	}()
}

// Shutdown cancels the worker and waits for it, up to ctx's deadline
func (bw *BackgroundWorker) Shutdown(ctx context.Context) error {
	bw.stopOnce.Do(bw.cancel)

	done := make(chan struct{})
	go func() {
		bw.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		bw.logger.Warn("Background worker shutdown timeout", zap.String("worker", bw.name))
		return ctx.Err()
	}
}
