package metrics

import "time"

// TreeStat is one registered tree's point-in-time bookkeeping as
// reported by a StatsSource. It is a plain value type so this package
// carries no dependency on the registry that produces it — the
// instruments here are imported from deep inside the engine, and an
// import back toward the tree registry would be a cycle.
type TreeStat struct {
	Kind            string
	Name            string
	CacheSize       int
	IndexCount      int
	SubscriberCount int
	SinkCount       int
	DedupCacheSize  int
	TrunkType       string
	IsDurable       bool
}

// StatsSource enumerates live trees with their stats. The grove
// registry implements it; tests use a literal slice.
type StatsSource interface {
	TreeStats() []TreeStat
}

// Collector periodically samples a StatsSource into the package's
// per-tree Prometheus gauges, the same ticker-driven poll loop shape
// used throughout AcornDB's background workers.
type Collector struct {
	src    StatsSource
	stopCh chan struct{}
}

// NewCollector builds a collector over src. src may be nil, in which
// case Start is a no-op loop that only services gauges set directly by
// callers.
func NewCollector(src StatsSource) *Collector {
	return &Collector{
		src:    src,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics on a 15-second interval.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	if c.src == nil {
		return
	}

	stats := c.src.TreeStats()
	TreesTotal.Set(float64(len(stats)))

	for _, s := range stats {
		NutsTotal.WithLabelValues(s.Kind, s.Name).Set(float64(s.CacheSize))
		IndexesTotal.WithLabelValues(s.Kind, s.Name).Set(float64(s.IndexCount))
		DedupCacheSize.WithLabelValues(s.Kind, s.Name).Set(float64(s.DedupCacheSize))
		SubscribersTotal.WithLabelValues(s.Kind, s.Name).Set(float64(s.SubscriberCount))
		SinksTotal.WithLabelValues(s.Kind, s.Name).Set(float64(s.SinkCount))
	}
}
