/*
Package metrics provides Prometheus metrics collection and exposition for
AcornDB.

This package defines and registers every AcornDB metric using the
Prometheus client library, plus a JSON-shaped mirror of the same data and a
small health-check subsystem reused across every embedding application.

# Architecture

	┌─────────────────────────────────────────────────┐
	│                   pkg/metrics                    │
	│                                                   │
	│  ┌─────────────┐  ┌──────────────┐  ┌──────────┐ │
	│  │   Collector  │  │   Handler()   │  │  Health  │ │
	│  │ (grove poll) │  │ (/metrics)    │  │ /health  │ │
	│  └──────┬──────┘  └──────┬───────┘  └────┬─────┘ │
	│         │                │                │       │
	│         ▼                ▼                ▼       │
	│  ┌────────────────────────────────────────────┐  │
	│  │      prometheus.DefaultRegisterer           │  │
	│  │  Trees: acorndb_trees_total, nuts, indexes  │  │
	│  │  Trunk: ops, pending writes, flush duration │  │
	│  │  Leaf: sent/received/dropped gossip counts  │  │
	│  │  Ledger: policy evaluations, chain failures │  │
	│  └────────────────────────────────────────────┘  │
	└─────────────────────────────────────────────────┘

The Collector walks a StatsSource (in practice the grove registry) on a
timer and sets per-tree gauges from each Tree's stats snapshot (cache
size, index count, dedup cache occupancy, subscriber/sink counts). The
engine increments the operation counters and histograms itself: the Tree
records every trunk call's op/status/latency, the trunk Base records
pending-write depth and flush cycles, the replication path records leaf
send/receive outcomes, the governed policy engine records evaluations and
violations, and the composed trunks record breaker transitions and tier
migrations.

# Metric Categories

Grove/Tree Metrics:
  - Examples: tree count, per-tree cache size, index count, dedup cache size

acorndb_trees_total:
  - Type: Gauge
  - Description: Total number of Tree instances registered with the grove
  - Example: acorndb_trees_total 4

acorndb_nuts_total{kind, name}:
  - Type: Gauge
  - Description: Current in-memory cache size for a tree
  - Example: acorndb_nuts_total{kind="user",name="primary"} 1200

acorndb_indexes_total{kind, name}:
  - Type: Gauge
  - Description: Number of secondary indexes registered on a tree
  - Example: acorndb_indexes_total{kind="user",name="primary"} 3

acorndb_dedup_cache_size{kind, name}:
  - Type: Gauge
  - Description: Current occupancy of the replication dedup cache
  - Example: acorndb_dedup_cache_size{kind="user",name="primary"} 512

acorndb_subscribers_total{kind, name} / acorndb_sinks_total{kind, name}:
  - Type: Gauge
  - Description: Live Subscribe callbacks / entangled leaf sinks per tree

Trunk Metrics:

acorndb_trunk_operations_total{op, status}:
  - Type: Counter
  - Description: Total Trunk operations by operation name and status
  - Example: acorndb_trunk_operations_total{op="stash",status="ok"} 10042

acorndb_trunk_operation_duration_seconds{op}:
  - Type: Histogram
  - Description: Trunk operation latency

acorndb_trunk_pending_writes{trunk_type}:
  - Type: Gauge
  - Description: Writes currently buffered awaiting the next flush

acorndb_trunk_flush_duration_seconds / acorndb_trunk_flushes_total:
  - Type: Histogram / Counter
  - Description: Time taken per flush cycle, and how many have run

Conflict Resolution Metrics:

acorndb_squabbles_total{direction, outcome}:
  - Type: Counter
  - Description: Conflict resolutions by direction (prefer_local,
    prefer_remote, judge) and outcome (incoming_wins, existing_wins,
    adopted)

Replication ("Leaf Gossip") Metrics:

acorndb_leaves_sent_total / acorndb_leaves_received_total{outcome} /
acorndb_leaves_dropped_total:
  - Type: Counter
  - Description: Leaves delivered to sinks, leaves received by outcome
    (applied, deduped, dropped, failed), and leaves dropped because a
    sink subscriber's buffer was full

Ledger (Policy Governance) Metrics:

acorndb_policy_evaluations_total{outcome} / acorndb_policy_violations_total{policy}:
  - Type: Counter
  - Description: Policy evaluation outcomes and per-policy violation counts

acorndb_ledger_chain_integrity_failures_total:
  - Type: Counter
  - Description: Ledger hash chain verification failures

Composed Trunk Metrics:

acorndb_circuit_breaker_state{name}:
  - Type: Gauge
  - Description: 0=closed, 1=half-open, 2=open

acorndb_tier_migrations_total:
  - Type: Counter
  - Description: Documents migrated from a hot tier to a cold tier

# Usage

Register a grove and start the collector once, near process start:

	import "github.com/acorndb/acorndb/pkg/metrics"

	g := acorn.NewGrove()
	collector := metrics.NewCollector(g)
	collector.Start()
	defer collector.Stop()
	metrics.WireStats(g)

	http.Handle("/metrics", metrics.Handler())
	http.HandleFunc("/health", metrics.HealthHandler())

Trunk operations, flush cycles, leaf gossip, policy evaluations, and
breaker transitions are recorded by the engine itself; embedding
applications only need the wiring above. A custom backend outside this
module can record its own operations the same way:

	timer := metrics.NewTimer()
	err := t.Stash(ctx, payload)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.TrunkOpsTotal.WithLabelValues("stash", status).Inc()
	timer.ObserveDurationVec(metrics.TrunkOpDuration, "stash")

# Memory Overhead

Each Gauge/Counter is a handful of atomic fields; HistogramVecs allocate one
bucket set per unique label combination actually observed. A deployment with
a few dozen trees and a handful of trunk operation names stays well under a
megabyte of metric state.

# Common Queries

Tree health:
  - Total trees: acorndb_trees_total
  - Largest tree by cache size: topk(5, acorndb_nuts_total)
  - Dedup cache pressure: acorndb_dedup_cache_size / 10000

Trunk health:
  - Error rate: rate(acorndb_trunk_operations_total{status="error"}[5m])
  - p95 latency: histogram_quantile(0.95, acorndb_trunk_operation_duration_seconds_bucket)
  - Flush backlog: acorndb_trunk_pending_writes

Replication health:
  - Gossip drop rate: rate(acorndb_leaves_dropped_total[5m])
  - Dedup rate: rate(acorndb_leaves_received_total{outcome="deduped"}[5m])

Ledger health:
  - Violation rate: rate(acorndb_policy_violations_total[5m])
  - Chain integrity: increase(acorndb_ledger_chain_integrity_failures_total[1h]) == 0

# Alerting Guidance

High trunk error rate:
  - Alert: rate(acorndb_trunk_operations_total{status="error"}[5m]) > 0.1
  - Action: check the backing store (disk, SQLite file, bbolt file) is reachable

Circuit breaker open:
  - Alert: acorndb_circuit_breaker_state == 2
  - Action: check the wrapped trunk's health, confirm the fallback trunk is serving reads

Chain integrity failure:
  - Alert: increase(acorndb_ledger_chain_integrity_failures_total[1h]) > 0
  - Description: the policy ledger's hash chain no longer verifies
  - Action: treat as a tamper incident, stop accepting new policy writes
*/
package metrics
