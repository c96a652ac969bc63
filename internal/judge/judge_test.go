package judge

import (
	"testing"
	"time"

	"github.com/acorndb/acorndb/internal/nut"
)

func mkNut(ts time.Time, version int64, origin string) nut.Nut[string] {
	return nut.Nut[string]{ID: "doc-1", Payload: "v", Timestamp: ts, Version: version, OriginNodeID: origin}
}

func TestTimestampJudgeLaterWins(t *testing.T) {
	base := time.Now()
	a := mkNut(base, 1, "node-a")
	b := mkNut(base.Add(time.Second), 1, "node-b")

	if got := Timestamp(a, b); got.OriginNodeID != "node-b" {
		t.Fatalf("expected later timestamp to win, got %s", got.OriginNodeID)
	}
	if got := Timestamp(b, a); got.OriginNodeID != "node-b" {
		t.Fatalf("judge must be symmetric, got %s", got.OriginNodeID)
	}
}

func TestTimestampJudgeTieBreaksOnVersion(t *testing.T) {
	base := time.Now()
	a := mkNut(base, 1, "node-a")
	b := mkNut(base, 2, "node-b")

	if got := Timestamp(a, b); got.Version != 2 {
		t.Fatalf("expected higher version to win tie, got version %d", got.Version)
	}
}

func TestTimestampJudgeTieBreaksOnOriginNodeID(t *testing.T) {
	base := time.Now()
	a := mkNut(base, 1, "node-a")
	b := mkNut(base, 1, "node-z")

	got := Timestamp(a, b)
	if got.OriginNodeID != "node-a" {
		t.Fatalf("expected lexicographically smaller origin to win full tie, got %s", got.OriginNodeID)
	}
	got2 := Timestamp(b, a)
	if got2.OriginNodeID != "node-a" {
		t.Fatalf("judge must be order-independent, got %s", got2.OriginNodeID)
	}
}

func TestTimestampJudgeIsTotal(t *testing.T) {
	base := time.Now()
	cases := []nut.Nut[string]{
		mkNut(base, 1, "node-a"),
		mkNut(base.Add(time.Minute), 3, "node-b"),
		mkNut(base, 1, "node-a"),
	}
	for i := range cases {
		for j := range cases {
			got := Timestamp(cases[i], cases[j])
			if got.ID != cases[i].ID && got.ID != cases[j].ID {
				t.Fatalf("judge produced a value outside its inputs")
			}
		}
	}
}

func TestVersionJudgePrefersHigherVersion(t *testing.T) {
	base := time.Now()
	a := mkNut(base.Add(time.Hour), 1, "node-a")
	b := mkNut(base, 5, "node-b")

	got := Version(a, b)
	if got.Version != 5 {
		t.Fatalf("expected version judge to ignore timestamp and prefer higher version, got %d", got.Version)
	}
}

func TestCustomJudge(t *testing.T) {
	base := time.Now()
	a := mkNut(base, 1, "node-a")
	b := mkNut(base, 1, "node-b")

	preferA := Custom(func(x, y nut.Nut[string]) bool { return x.OriginNodeID == "node-a" })
	if got := preferA(a, b); got.OriginNodeID != "node-a" {
		t.Fatalf("expected custom judge to honor predicate")
	}
	if got := preferA(b, a); got.OriginNodeID != "node-a" {
		t.Fatalf("expected custom judge to honor predicate regardless of argument order")
	}
}
