package domain

// TurnRequest is the canonical per-turn input produced by channel adapters.
// The driver owns the session, so adapters never send collected answers or the
// current node; they only identify the session and carry the raw answer.
type TurnRequest struct {
	FlowID     string `json:"flowId"`
	SessionKey string `json:"sessionKey"`
	TurnID     string `json:"turnId,omitempty"`
	RawAnswer  string `json:"rawAnswer"`
	Language   string `json:"language,omitempty"`
	Channel    string `json:"channel,omitempty"`
}

// TurnResponse is the canonical per-turn output returned to channel adapters.
type TurnResponse struct {
	NextNodeID     string            `json:"nextNodeId"`
	PromptText     string            `json:"promptText"`
	Answers        map[string]string `json:"collectedAnswers"`
	Terminal       bool              `json:"terminal,omitempty"`
	Recommendation *Recommendation   `json:"recommendation,omitempty"`
}

// Scheme is one recommended scheme with supporting detail.
type Scheme struct {
	Scheme      string `json:"scheme" mapstructure:"scheme"`
	Reason      string `json:"reason" mapstructure:"reason"`
	KeyFeatures string `json:"key_features,omitempty" mapstructure:"key_features"`
	Documents   string `json:"documents,omitempty" mapstructure:"documents"`
}

// Recommendation is the structured result of the recommendation handoff.
// Fallback is set when the external services could not produce a result; the
// conversation continues either way.
type Recommendation struct {
	EligibleSchemes []Scheme `json:"eligible_schemes" mapstructure:"eligible_schemes"`
	Fallback        bool     `json:"fallback,omitempty" mapstructure:"-"`
	Message         string   `json:"message,omitempty" mapstructure:"message"`
}
