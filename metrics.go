package imagestack

import (
	"sync/atomic"
	"time"
)

// Misalignment names the way an append left images and metadata rows out
// of step under AlignLenient.
type Misalignment string

const (
	// MisalignmentDropped means metadata was supplied to a stack without a
	// metadata table and discarded.
	MisalignmentDropped Misalignment = "metadata_dropped"
	// MisalignmentMissing means an image was appended without metadata to a
	// stack with a metadata table.
	MisalignmentMissing Misalignment = "metadata_missing"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordAppend is called after each AddImage call.
	RecordAppend(duration time.Duration, err error)

	// RecordRead is called after each image or metadata read. count is the
	// number of items returned.
	RecordRead(count int, duration time.Duration, err error)

	// RecordFlush is called after each explicit or closing flush.
	RecordFlush(duration time.Duration, err error)

	// RecordMisalignment is called whenever AlignLenient accepts an append
	// that breaks image/metadata alignment.
	RecordMisalignment(kind Misalignment)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordAppend(time.Duration, error)    {}
func (NoopMetricsCollector) RecordRead(int, time.Duration, error) {}
func (NoopMetricsCollector) RecordFlush(time.Duration, error)     {}
func (NoopMetricsCollector) RecordMisalignment(Misalignment)      {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	AppendCount      atomic.Int64
	AppendErrors     atomic.Int64
	AppendTotalNanos atomic.Int64
	ReadCount        atomic.Int64
	ReadItems        atomic.Int64
	ReadErrors       atomic.Int64
	FlushCount       atomic.Int64
	FlushErrors      atomic.Int64
	Dropped          atomic.Int64
	Missing          atomic.Int64
}

// RecordAppend implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAppend(duration time.Duration, err error) {
	b.AppendCount.Add(1)
	b.AppendTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.AppendErrors.Add(1)
	}
}

// RecordRead implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRead(count int, _ time.Duration, err error) {
	b.ReadCount.Add(1)
	b.ReadItems.Add(int64(count))
	if err != nil {
		b.ReadErrors.Add(1)
	}
}

// RecordFlush implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFlush(_ time.Duration, err error) {
	b.FlushCount.Add(1)
	if err != nil {
		b.FlushErrors.Add(1)
	}
}

// RecordMisalignment implements MetricsCollector.
func (b *BasicMetricsCollector) RecordMisalignment(kind Misalignment) {
	switch kind {
	case MisalignmentDropped:
		b.Dropped.Add(1)
	case MisalignmentMissing:
		b.Missing.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		AppendCount:    b.AppendCount.Load(),
		AppendErrors:   b.AppendErrors.Load(),
		AppendAvgNanos: b.getAvgAppendNanos(),
		ReadCount:      b.ReadCount.Load(),
		ReadItems:      b.ReadItems.Load(),
		ReadErrors:     b.ReadErrors.Load(),
		FlushCount:     b.FlushCount.Load(),
		FlushErrors:    b.FlushErrors.Load(),
		Misalignments:  b.Dropped.Load() + b.Missing.Load(),
		Dropped:        b.Dropped.Load(),
		Missing:        b.Missing.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgAppendNanos() int64 {
	count := b.AppendCount.Load()
	if count == 0 {
		return 0
	}
	return b.AppendTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	AppendCount    int64
	AppendErrors   int64
	AppendAvgNanos int64
	ReadCount      int64
	ReadItems      int64
	ReadErrors     int64
	FlushCount     int64
	FlushErrors    int64
	Misalignments  int64
	Dropped        int64
	Missing        int64
}
