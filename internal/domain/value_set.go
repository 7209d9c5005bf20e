package domain

// ValueSet is the inbound processor's output for one message. A key is present
// only when its external key was present in the message or the rule was fixed or
// context-derived.
type ValueSet struct {
	Parent   Values   `json:"parent"`
	Children []Values `json:"children,omitempty"`
	// Components is nil when the message carried no component list.
	Components *ComponentList `json:"components,omitempty"`
}

// NewValueSet creates a value set with an empty parent mapping.
func NewValueSet() ValueSet {
	return ValueSet{Parent: Values{}}
}

// WithChild returns a copy of the value set with an extra child appended.
func (vs ValueSet) WithChild(child Values) ValueSet {
	children := make([]Values, 0, len(vs.Children)+1)
	children = append(children, vs.Children...)
	children = append(children, child)
	vs.Children = children
	return vs
}

// ComponentLine is one resolved sub-component of a composite record.
type ComponentLine struct {
	RecordID   int64   `json:"record_id"`
	ExternalID string  `json:"external_id"`
	Quantity   float64 `json:"quantity"`
}

// ComponentList is the resolved, validated component list for a composite record.
// An empty Lines slice means the composite has no components.
type ComponentList struct {
	Lines []ComponentLine `json:"lines"`
}

// Outcome is the result of an upsert.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
)

// UpsertResult summarises the effect of one upsert.
type UpsertResult struct {
	Outcome  Outcome        `json:"outcome"`
	Record   Record         `json:"record"`
	Children []UpsertResult `json:"children,omitempty"`
	Message  string         `json:"message"`
}

// Changed reports whether the upsert, or any of its children, wrote something.
func (r UpsertResult) Changed() bool {
	if r.Outcome != OutcomeUnchanged {
		return true
	}
	for _, child := range r.Children {
		if child.Changed() {
			return true
		}
	}
	return false
}
