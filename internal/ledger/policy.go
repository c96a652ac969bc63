package ledger

// Policy is one governed rule: a name/description/priority plus the
// evaluation logic the PolicyEnforcement root (and GovernedEngine) run
// against a document payload. TypeID is a stable identifier for the
// policy's *class* — it is folded into the signed payload so two policies
// with identical Name/Description/Priority but different evaluation logic
// produce different seal signatures (prevents a type-swap tamper from
// verifying against an old signature).
type Policy interface {
	Name() string
	Description() string
	Priority() int
	TypeID() string
	Evaluate(payload any) (ok bool, reason string)
}

// Func adapts a plain function into a Policy, for ad-hoc/test policies.
type Func struct {
	PolicyName        string
	PolicyDescription string
	PolicyPriority    int
	PolicyTypeID      string
	EvalFunc          func(payload any) (bool, string)
}

func (f Func) Name() string        { return f.PolicyName }
func (f Func) Description() string { return f.PolicyDescription }
func (f Func) Priority() int       { return f.PolicyPriority }
func (f Func) TypeID() string {
	if f.PolicyTypeID != "" {
		return f.PolicyTypeID
	}
	return "func"
}
func (f Func) Evaluate(payload any) (bool, string) { return f.EvalFunc(payload) }
