package imagestack

import (
	"runtime"
	"time"

	"github.com/hupe1980/imagestack/container"
)

// leaked is what the cleanup needs to release a stack that was never
// closed. It must not reference the ImageStack itself.
type leaked struct {
	c      *container.File
	logger *Logger
}

func (s *ImageStack) track() {
	s.cleanup = runtime.AddCleanup(s, func(l leaked) {
		l.logger.Warn("stack garbage collected without Close, flushing")
		if err := l.c.Close(); err != nil {
			l.logger.Error("closing leaked stack failed", "error", err)
		}
	}, leaked{c: s.c, logger: s.logger})
}

// Close flushes pending appends and releases the file. Every other
// operation fails with ErrClosed afterwards. Close is idempotent and safe
// on a nil receiver.
func (s *ImageStack) Close() error {
	if s == nil || s.closed {
		return nil
	}
	s.closed = true
	s.cleanup.Stop()

	start := time.Now()
	err := translateError(s.c.Close())
	if s.mode.Writable() {
		s.opts.metricsCollector.RecordFlush(time.Since(start), err)
	}
	s.logger.LogClose(s.images.Len(), err)
	return err
}
