package sound2scene

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordClassify is called after each classification.
	// duration is the total time taken, err is nil if successful.
	RecordClassify(duration time.Duration, err error)

	// RecordGenerate is called after each image generation.
	RecordGenerate(duration time.Duration, err error)

	// RecordInsert is called after each index insert.
	RecordInsert(duration time.Duration, err error)

	// RecordSearch is called after each similarity search.
	// k is the number of neighbors requested.
	RecordSearch(k int, duration time.Duration, err error)

	// RecordSnapshot is called after each snapshot save.
	RecordSnapshot(duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordClassify(time.Duration, error)    {}
func (NoopMetricsCollector) RecordGenerate(time.Duration, error)    {}
func (NoopMetricsCollector) RecordInsert(time.Duration, error)      {}
func (NoopMetricsCollector) RecordSearch(int, time.Duration, error) {}
func (NoopMetricsCollector) RecordSnapshot(time.Duration, error)    {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	ClassifyCount      atomic.Int64
	ClassifyErrors     atomic.Int64
	ClassifyTotalNanos atomic.Int64
	GenerateCount      atomic.Int64
	GenerateErrors     atomic.Int64
	GenerateTotalNanos atomic.Int64
	InsertCount        atomic.Int64
	InsertErrors       atomic.Int64
	SearchCount        atomic.Int64
	SearchErrors       atomic.Int64
	SearchTotalNanos   atomic.Int64
	SnapshotCount      atomic.Int64
	SnapshotErrors     atomic.Int64
}

// RecordClassify implements MetricsCollector.
func (b *BasicMetricsCollector) RecordClassify(duration time.Duration, err error) {
	b.ClassifyCount.Add(1)
	b.ClassifyTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.ClassifyErrors.Add(1)
	}
}

// RecordGenerate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordGenerate(duration time.Duration, err error) {
	b.GenerateCount.Add(1)
	b.GenerateTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.GenerateErrors.Add(1)
	}
}

// RecordInsert implements MetricsCollector.
func (b *BasicMetricsCollector) RecordInsert(duration time.Duration, err error) {
	b.InsertCount.Add(1)
	if err != nil {
		b.InsertErrors.Add(1)
	}
}

// RecordSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSearch(k int, duration time.Duration, err error) {
	b.SearchCount.Add(1)
	b.SearchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SearchErrors.Add(1)
	}
}

// RecordSnapshot implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSnapshot(duration time.Duration, err error) {
	b.SnapshotCount.Add(1)
	if err != nil {
		b.SnapshotErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		ClassifyCount:     b.ClassifyCount.Load(),
		ClassifyErrors:    b.ClassifyErrors.Load(),
		ClassifyAvgNanos:  avgNanos(b.ClassifyTotalNanos.Load(), b.ClassifyCount.Load()),
		GenerateCount:     b.GenerateCount.Load(),
		GenerateErrors:    b.GenerateErrors.Load(),
		GenerateAvgNanos:  avgNanos(b.GenerateTotalNanos.Load(), b.GenerateCount.Load()),
		InsertCount:       b.InsertCount.Load(),
		InsertErrors:      b.InsertErrors.Load(),
		SearchCount:       b.SearchCount.Load(),
		SearchErrors:      b.SearchErrors.Load(),
		SearchAvgNanos:    avgNanos(b.SearchTotalNanos.Load(), b.SearchCount.Load()),
		SnapshotCount:     b.SnapshotCount.Load(),
		SnapshotErrors:    b.SnapshotErrors.Load(),
	}
}

func avgNanos(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	ClassifyCount    int64
	ClassifyErrors   int64
	ClassifyAvgNanos int64
	GenerateCount    int64
	GenerateErrors   int64
	GenerateAvgNanos int64
	InsertCount      int64
	InsertErrors     int64
	SearchCount      int64
	SearchErrors     int64
	SearchAvgNanos   int64
	SnapshotCount    int64
	SnapshotErrors   int64
}
