package root

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
)

// Compression is the reference gzip root. It is deterministic enough that
// OnCrack(OnStash(b)) == b regardless of the configured level.
type Compression struct {
	sequence int
	level    int
}

// NewCompression builds a gzip root at the default sequence (100) using
// the given compression level (gzip.BestSpeed..gzip.BestCompression, or
// gzip.DefaultCompression).
func NewCompression(level int) *Compression {
	return &Compression{sequence: SequenceCompression, level: level}
}

func (c *Compression) Name() string   { return "compression" }
func (c *Compression) Sequence() int  { return c.sequence }
func (c *Compression) WithSequence(seq int) *Compression {
	c.sequence = seq
	return c
}

func (c *Compression) OnStash(data []byte, ctx *Context) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, c.level)
	if err != nil {
		return nil, fmt.Errorf("gzip writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("gzip write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gzip close: %w", err)
	}
	ctx.Sign(fmt.Sprintf("gzip:%s", levelName(c.level)))
	return buf.Bytes(), nil
}

func (c *Compression) OnCrack(data []byte, ctx *Context) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gzip read: %w", err)
	}
	return out, nil
}

func levelName(level int) string {
	switch level {
	case gzip.BestSpeed:
		return "fastest"
	case gzip.BestCompression:
		return "optimal"
	case gzip.NoCompression:
		return "none"
	default:
		return "default"
	}
}
