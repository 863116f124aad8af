package domain

// Transition kinds decide how the next node is chosen after an answer.
const (
	// TransitionFixed moves to a single configured node unconditionally.
	TransitionFixed = "fixed"
	// TransitionClassified routes the answer through an ordered category map,
	// consulting the external classifier when no direct match exists.
	TransitionClassified = "classified"
	// TransitionTerminal marks flow completion.
	TransitionTerminal = "terminal"
)

// Flow types select post-terminal behavior.
const (
	// FlowFormSubmission renders the terminal message plus an answer summary
	// and resets the session for reuse.
	FlowFormSubmission = "form-submission"
	// FlowEligibility hands off to the recommendation step and enters the
	// follow-up loop instead of resetting.
	FlowEligibility = "eligibility"
)

// Input kinds describe what a node expects from the user.
const (
	InputText     = "text"
	InputDigits   = "digits"
	InputDocument = "document"
)

// Route is one entry of a classified transition. Declaration order matters:
// the first route is the deterministic fallback when classification fails.
type Route struct {
	Match string `json:"match" yaml:"match"`
	To    string `json:"to" yaml:"to"`
}

// TransitionSpec is a tagged variant decided at flow-load time, never per turn.
type TransitionSpec struct {
	Kind string `json:"kind" yaml:"kind"`

	// Target is the next node for fixed transitions, or the terminal marker
	// name (e.g. "end_kcc") for terminal ones.
	Target string `json:"target,omitempty" yaml:"target,omitempty"`

	// Routes holds the ordered category map for classified transitions.
	Routes []Route `json:"routes,omitempty" yaml:"routes,omitempty"`

	// FlowType tags terminal transitions with the post-terminal behavior.
	FlowType string `json:"flow_type,omitempty" yaml:"flow_type,omitempty"`
}

// Fallback returns the deterministic fallback target of a classified spec.
// Only valid when Kind == TransitionClassified and Routes is non-empty,
// which the registry guarantees at load time.
func (t TransitionSpec) Fallback() string {
	return t.Routes[0].To
}

// QuestionNode is a single step in a flow.
type QuestionNode struct {
	ID     string `json:"id" yaml:"id"`
	Prompt string `json:"prompt" yaml:"prompt"`

	// FieldKey is the logical key the answer is recorded under.
	// Defaults to the node ID.
	FieldKey string `json:"field_key,omitempty" yaml:"field_key,omitempty"`

	// InputKind hints channel adapters at the expected answer shape.
	InputKind string `json:"input_kind,omitempty" yaml:"input_kind,omitempty"`

	Transition TransitionSpec `json:"transition" yaml:"transition"`

	// Hints carries per-category guidance passed to the classifier.
	Hints map[string]string `json:"hints,omitempty" yaml:"hints,omitempty"`

	// ExpectedDoc describes the required upload. A non-empty value gates the
	// node behind document verification.
	ExpectedDoc string `json:"expected_doc,omitempty" yaml:"expected_doc,omitempty"`

	// AllowSkip lets the literal skip token pass the document gate with an
	// empty recorded value.
	AllowSkip bool `json:"allow_skip,omitempty" yaml:"allow_skip,omitempty"`

	// DTMFOptions maps keypad digits to answer text for the voice channel.
	DTMFOptions map[string]string `json:"dtmf_options,omitempty" yaml:"dtmf_options,omitempty"`
}

// Key returns the logical answer key for this node.
func (n *QuestionNode) Key() string {
	if n.FieldKey != "" {
		return n.FieldKey
	}
	return n.ID
}

// FlowDefinition is a named declarative graph of question nodes.
// Immutable after load and shared read-only across all sessions.
type FlowDefinition struct {
	ID         string
	Name       string
	Start      string
	Nodes      map[string]*QuestionNode
	EndMessage string
}

// Node returns the node with the given id.
func (f *FlowDefinition) Node(id string) (*QuestionNode, bool) {
	n, ok := f.Nodes[id]
	return n, ok
}
