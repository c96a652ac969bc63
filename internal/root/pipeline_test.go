package root

import (
	"bytes"
	"compress/gzip"
	"testing"
)

// reorderRoot is a no-op transform that records the order it ran in,
// for asserting ascending-write/descending-read sequencing.
type reorderRoot struct {
	name     string
	sequence int
	ran      *[]string
}

func (r reorderRoot) Name() string  { return r.name }
func (r reorderRoot) Sequence() int { return r.sequence }

func (r reorderRoot) OnStash(data []byte, _ *Context) ([]byte, error) {
	*r.ran = append(*r.ran, "stash:"+r.name)
	return data, nil
}

func (r reorderRoot) OnCrack(data []byte, _ *Context) ([]byte, error) {
	*r.ran = append(*r.ran, "crack:"+r.name)
	return data, nil
}

func TestCompressionRootRoundTrips(t *testing.T) {
	for _, level := range []int{gzip.BestSpeed, gzip.DefaultCompression, gzip.BestCompression} {
		c := NewCompression(level)
		in := bytes.Repeat([]byte("acorn"), 200)

		packed, err := c.OnStash(in, NewContext(OpWrite, "d1", "test"))
		if err != nil {
			t.Fatalf("on_stash at level %d: %v", level, err)
		}
		out, err := c.OnCrack(packed, NewContext(OpRead, "d1", "test"))
		if err != nil {
			t.Fatalf("on_crack at level %d: %v", level, err)
		}
		if !bytes.Equal(in, out) {
			t.Fatalf("round trip at level %d lost data", level)
		}
	}
}

func TestEncryptionRootRoundTripsAndScrambles(t *testing.T) {
	key := make([]byte, 32)
	copy(key, "0123456789abcdef0123456789abcdef")
	e, err := NewEncryption(key)
	if err != nil {
		t.Fatalf("new encryption: %v", err)
	}

	in := []byte(`{"name":"Alice"}`)
	sealed, err := e.OnStash(in, NewContext(OpWrite, "d1", "test"))
	if err != nil {
		t.Fatalf("on_stash: %v", err)
	}
	if bytes.Contains(sealed, []byte("Alice")) {
		t.Fatalf("ciphertext leaks plaintext")
	}

	out, err := e.OnCrack(sealed, NewContext(OpRead, "d1", "test"))
	if err != nil {
		t.Fatalf("on_crack: %v", err)
	}
	if !bytes.Equal(in, out) {
		t.Fatalf("round trip lost data")
	}
}

func TestPipelineRunsAscendingOnStashDescendingOnCrack(t *testing.T) {
	var ran []string
	p := NewPipeline(
		reorderRoot{name: "late", sequence: 200, ran: &ran},
		reorderRoot{name: "early", sequence: 10, ran: &ran},
		reorderRoot{name: "mid", sequence: 100, ran: &ran},
	)

	blob, err := p.Stash([]byte("payload"), NewContext(OpWrite, "d1", "test"))
	if err != nil {
		t.Fatalf("stash: %v", err)
	}
	if _, err := p.Crack(blob, NewContext(OpRead, "d1", "test")); err != nil {
		t.Fatalf("crack: %v", err)
	}

	want := []string{"stash:early", "stash:mid", "stash:late", "crack:late", "crack:mid", "crack:early"}
	if len(ran) != len(want) {
		t.Fatalf("expected %v, got %v", want, ran)
	}
	for i := range want {
		if ran[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, ran)
		}
	}
}

func TestPipelineFullChainRoundTrips(t *testing.T) {
	key := make([]byte, 32)
	enc, err := NewEncryption(key)
	if err != nil {
		t.Fatalf("new encryption: %v", err)
	}
	p := NewPipeline(NewCompression(gzip.DefaultCompression), enc)

	in := []byte(`{"id":"u1","payload":{"name":"Alice"}}`)
	ctx := NewContext(OpWrite, "u1", "test")
	blob, err := p.Stash(in, ctx)
	if err != nil {
		t.Fatalf("stash: %v", err)
	}
	if len(ctx.TransformationSignatures) != 2 {
		t.Fatalf("expected both roots to sign, got %v", ctx.TransformationSignatures)
	}

	out, err := p.Crack(blob, NewContext(OpRead, "u1", "test"))
	if err != nil {
		t.Fatalf("crack: %v", err)
	}
	if !bytes.Equal(in, out) {
		t.Fatalf("full chain round trip lost data")
	}
}

func TestPipelineWithoutRootsPassesBytesThrough(t *testing.T) {
	p := NewPipeline()
	in := []byte(`{"plain":"json"}`)

	blob, err := p.Stash(in, NewContext(OpWrite, "d1", "test"))
	if err != nil {
		t.Fatalf("stash: %v", err)
	}
	if !bytes.Equal(blob, in) {
		t.Fatalf("expected raw passthrough with no roots, got %q", blob)
	}

	out, err := p.Crack(blob, NewContext(OpRead, "d1", "test"))
	if err != nil {
		t.Fatalf("crack: %v", err)
	}
	if !bytes.Equal(out, in) {
		t.Fatalf("expected raw passthrough on read, got %q", out)
	}
}

func TestPipelineCrackFallsBackToRawForPreRootBlobs(t *testing.T) {
	// A document written before any root was configured is raw JSON; a
	// reader with a no-op root must still be able to crack it.
	var ran []string
	p := NewPipeline(reorderRoot{name: "noop", sequence: 50, ran: &ran})

	legacy := []byte(`{"written":"before roots existed"}`)
	out, err := p.Crack(legacy, NewContext(OpRead, "d1", "test"))
	if err != nil {
		t.Fatalf("crack legacy blob: %v", err)
	}
	if !bytes.Equal(out, legacy) {
		t.Fatalf("expected legacy blob to pass through, got %q", out)
	}
}

func TestPipelineAddRemoveTakesEffectNextCall(t *testing.T) {
	var ran []string
	p := NewPipeline()
	in := []byte("data")

	blob, err := p.Stash(in, NewContext(OpWrite, "d1", "test"))
	if err != nil {
		t.Fatalf("stash: %v", err)
	}
	if !bytes.Equal(blob, in) {
		t.Fatalf("expected passthrough before any root")
	}

	p.Add(reorderRoot{name: "noop", sequence: 50, ran: &ran})
	if _, err := p.Stash(in, NewContext(OpWrite, "d1", "test")); err != nil {
		t.Fatalf("stash with root: %v", err)
	}
	if len(ran) != 1 {
		t.Fatalf("expected newly added root to run, got %v", ran)
	}

	p.Remove("noop")
	if len(p.Roots()) != 0 {
		t.Fatalf("expected root removed")
	}
}
