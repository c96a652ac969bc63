package root

import (
	"encoding/base64"
	"fmt"
	"sort"
	"sync"
)

// Pipeline is the ordered, mutable collection of Roots a Trunk runs every
// payload through. It is safe for concurrent use; adding or removing a
// root takes effect on the next Stash/Crack call.
type Pipeline struct {
	mu    sync.RWMutex
	roots []Root
}

// NewPipeline builds a Pipeline from an initial (unordered) root set.
func NewPipeline(roots ...Root) *Pipeline {
	p := &Pipeline{}
	for _, r := range roots {
		p.Add(r)
	}
	return p
}

// Add registers a root and keeps the collection sorted by Sequence.
func (p *Pipeline) Add(r Root) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.roots = append(p.roots, r)
	sort.Slice(p.roots, func(i, j int) bool { return p.roots[i].Sequence() < p.roots[j].Sequence() })
}

// Remove drops the first root with the given name, if present.
func (p *Pipeline) Remove(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, r := range p.roots {
		if r.Name() == name {
			p.roots = append(p.roots[:i], p.roots[i+1:]...)
			return
		}
	}
}

// Roots returns a snapshot of the current chain, ascending by sequence.
func (p *Pipeline) Roots() []Root {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Root, len(p.roots))
	copy(out, p.roots)
	return out
}

// Stash runs bytes through OnStash in ascending sequence order. When at
// least one root ran, the result is base64-wrapped so it is safe to store
// in text-only slots; with no roots, the raw serialized bytes pass through
// untouched.
func (p *Pipeline) Stash(data []byte, ctx *Context) ([]byte, error) {
	roots := p.Roots()
	for _, r := range roots {
		var err error
		data, err = r.OnStash(data, ctx)
		if err != nil {
			return nil, fmt.Errorf("acorndb: root %q on_stash: %w", r.Name(), err)
		}
	}
	if len(roots) == 0 {
		return data, nil
	}
	encoded := base64.StdEncoding.EncodeToString(data)
	return []byte(encoded), nil
}

// Crack runs stored bytes through OnCrack in descending sequence order.
// It tries base64 first (the encoding Stash uses whenever roots are
// present) and falls back to treating the bytes as raw UTF-8 for
// documents written before any root was configured.
func (p *Pipeline) Crack(data []byte, ctx *Context) ([]byte, error) {
	roots := p.Roots()
	if len(roots) > 0 {
		if decoded, err := base64.StdEncoding.DecodeString(string(data)); err == nil {
			data = decoded
		}
		// else: fall back to raw bytes, matching the source's tolerance
		// for pre-root-pipeline documents.
	}

	for i := len(roots) - 1; i >= 0; i-- {
		r := roots[i]
		var err error
		data, err = r.OnCrack(data, ctx)
		if err != nil {
			return nil, fmt.Errorf("acorndb: root %q on_crack: %w", r.Name(), err)
		}
	}
	return data, nil
}
