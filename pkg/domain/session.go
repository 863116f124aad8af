package domain

// StartSentinel is the synthetic current-node value of a session that has not
// received its first turn yet.
const StartSentinel = "start"

// Special always-available loop nodes entered after an eligibility terminal.
// They live outside the generic transition table.
const (
	NodeSchemeSelection = "scheme_selection"
	NodeFollowupQA      = "followup_qa"
)

// DefaultTurnCacheSize bounds the per-session set of recently processed turn
// identifiers. Redeliveries older than the window are treated as new turns,
// which is acceptable for webhook retry horizons.
const DefaultTurnCacheSize = 16

// AnswerRecord is one collected answer. Insertion order is the ordering
// guarantee; no wall-clock ordering is kept.
type AnswerRecord struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// TurnRecord caches the response produced for a processed turn identifier so
// redelivered turns replay byte-identical responses.
type TurnRecord struct {
	ID       string       `json:"id"`
	Response TurnResponse `json:"response"`
}

// Session is the per-user conversational state tracked across turns.
// It is exclusively owned by the conversation driver; channel adapters only
// touch it through the driver's turn operation.
type Session struct {
	Key         string         `json:"key"`
	FlowID      string         `json:"flow_id"`
	CurrentNode string         `json:"current_node"`
	Language    string         `json:"language,omitempty"`
	Answers     []AnswerRecord `json:"answers,omitempty"`
	RecentTurns []TurnRecord   `json:"recent_turns,omitempty"`
}

// NewSession creates a session awaiting its first turn.
func NewSession(key, flowID string) *Session {
	return &Session{
		Key:         key,
		FlowID:      flowID,
		CurrentNode: StartSentinel,
	}
}

// SetAnswer records an answer under key, overwriting in place if the key was
// already answered so insertion order is preserved.
func (s *Session) SetAnswer(key, value string) {
	for i := range s.Answers {
		if s.Answers[i].Key == key {
			s.Answers[i].Value = value
			return
		}
	}
	s.Answers = append(s.Answers, AnswerRecord{Key: key, Value: value})
}

// Answer returns the recorded answer for key.
func (s *Session) Answer(key string) (string, bool) {
	for i := range s.Answers {
		if s.Answers[i].Key == key {
			return s.Answers[i].Value, true
		}
	}
	return "", false
}

// AnswerMap returns the collected answers as a map for responses.
func (s *Session) AnswerMap() map[string]string {
	m := make(map[string]string, len(s.Answers))
	for _, a := range s.Answers {
		m[a.Key] = a.Value
	}
	return m
}

// SeenTurn returns the cached response for a previously processed turn id.
func (s *Session) SeenTurn(turnID string) (*TurnResponse, bool) {
	if turnID == "" {
		return nil, false
	}
	for i := range s.RecentTurns {
		if s.RecentTurns[i].ID == turnID {
			return &s.RecentTurns[i].Response, true
		}
	}
	return nil, false
}

// RememberTurn records a processed turn id with its response, evicting the
// oldest entry once the bounded window is full.
func (s *Session) RememberTurn(turnID string, resp TurnResponse, limit int) {
	if turnID == "" {
		return
	}
	if limit <= 0 {
		limit = DefaultTurnCacheSize
	}
	s.RecentTurns = append(s.RecentTurns, TurnRecord{ID: turnID, Response: resp})
	if len(s.RecentTurns) > limit {
		s.RecentTurns = s.RecentTurns[len(s.RecentTurns)-limit:]
	}
}

// Reset reinitializes the session for a fresh conversation while keeping the
// recent-turn window so redeliveries of the final turn still replay.
func (s *Session) Reset() {
	s.CurrentNode = StartSentinel
	s.Answers = nil
}
