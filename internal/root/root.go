// Package root implements AcornDB's byte-transformation pipeline: the
// ordered chain of "roots" (compress/encrypt/enforce-policy) every
// persisted payload passes through between the serializer and the trunk.
//
// Roots are pure with respect to storage: OnStash and OnCrack never touch
// disk themselves, so the same chain can be reordered or extended at
// runtime without any root needing to know what backend it is feeding.
package root

import "time"

// Operation identifies which half of the pipeline is running.
type Operation string

const (
	OpWrite Operation = "write"
	OpRead  Operation = "read"
)

// ChainState is the cached verdict of the last policy-ledger chain
// verification, threaded through the context so PolicyEnforcement only
// re-verifies when explicitly invalidated.
type ChainState struct {
	Verified  bool
	CheckedAt time.Time
	Err       error
}

// Context accompanies bytes through the pipeline. Metadata is scratch
// space for inter-root communication and is never persisted.
type Context struct {
	Operation                Operation
	CallerIdentity           string
	DocID                    string
	TransformationSignatures []string
	Metadata                 map[string]any
	ChainState               *ChainState
}

// NewContext builds a Context with an initialized Metadata map.
func NewContext(op Operation, docID, caller string) *Context {
	return &Context{
		Operation:      op,
		CallerIdentity: caller,
		DocID:          docID,
		Metadata:       make(map[string]any),
	}
}

// Sign appends a transformation signature, e.g. "gzip:optimal".
func (c *Context) Sign(signature string) {
	c.TransformationSignatures = append(c.TransformationSignatures, signature)
}

// Root is a pure byte transform sequenced into the pipeline by Sequence,
// ascending on write and descending on read.
type Root interface {
	Name() string
	Sequence() int
	OnStash(data []byte, ctx *Context) ([]byte, error)
	OnCrack(data []byte, ctx *Context) ([]byte, error)
}

// Reference sequence numbers; concrete roots default to these but a
// caller may construct a root with a different sequence.
const (
	SequencePolicyEnforcement = 10
	SequenceCompression       = 100
	SequenceEncryption        = 200
)
