package ledger

import "encoding/json"

// PolicyCodec turns a live Policy into a persistable payload and back,
// keyed by the policy's TypeID. A FileLog needs one because a Policy
// carries executable evaluation logic that cannot itself be marshaled;
// the codec is how a process restart gets a working Policy back instead
// of just its signed metadata.
type PolicyCodec interface {
	Encode(p Policy) (json.RawMessage, error)
	Decode(typeID string, data json.RawMessage) (Policy, error)
}

// FuncCodec (de)serializes Func policies whose EvalFunc is looked up by
// TypeID from a caller-supplied registry, since a Go func value itself
// cannot round-trip through JSON.
type FuncCodec struct {
	Evaluators map[string]func(payload any) (bool, string)
}

// NewFuncCodec builds a FuncCodec with an empty evaluator registry.
func NewFuncCodec() *FuncCodec {
	return &FuncCodec{Evaluators: make(map[string]func(payload any) (bool, string))}
}

// Register associates a TypeID with the evaluation logic FileLog should
// wire back in on load.
func (c *FuncCodec) Register(typeID string, fn func(payload any) (bool, string)) {
	c.Evaluators[typeID] = fn
}

type funcPayload struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Priority    int    `json:"priority"`
}

func (c *FuncCodec) Encode(p Policy) (json.RawMessage, error) {
	return json.Marshal(funcPayload{
		Name:        p.Name(),
		Description: p.Description(),
		Priority:    p.Priority(),
	})
}

func (c *FuncCodec) Decode(typeID string, data json.RawMessage) (Policy, error) {
	var fp funcPayload
	if len(data) > 0 {
		if err := json.Unmarshal(data, &fp); err != nil {
			return nil, err
		}
	}
	fn, ok := c.Evaluators[typeID]
	if !ok {
		fn = func(any) (bool, string) { return true, "unregistered policy type: " + typeID }
	}
	return Func{
		PolicyName:        fp.Name,
		PolicyDescription: fp.Description,
		PolicyPriority:    fp.Priority,
		PolicyTypeID:      typeID,
		EvalFunc:          fn,
	}, nil
}
