// Package driver runs the per-turn conversation state machine. It is the only
// component that mutates sessions: channel adapters hand it a raw answer and
// get back the next prompt, with document gating, transition resolution,
// translation and the recommendation handoff applied along the way.
package driver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/agrivaani/agrivaani/internal/docgate"
	"github.com/agrivaani/agrivaani/internal/logging"
	"github.com/agrivaani/agrivaani/internal/recommend"
	"github.com/agrivaani/agrivaani/internal/resolver"
	"github.com/agrivaani/agrivaani/pkg/domain"
	"github.com/agrivaani/agrivaani/pkg/flow"
	"github.com/agrivaani/agrivaani/pkg/ports"
	"github.com/agrivaani/agrivaani/pkg/session"
)

// uploadPlaceholder masks document markers in the terminal summary.
const uploadPlaceholder = "Document upload received"

// schemeInterestQuestion opens the post-recommendation loop.
const schemeInterestQuestion = "Which scheme are you interested in?"

// resetCommands restart the conversation from any node.
var resetCommands = map[string]bool{
	"reset":   true,
	"restart": true,
}

// Driver processes turns against the flow registry and session store.
type Driver struct {
	registry *flow.Registry
	sessions *session.Manager
	resolver *resolver.Resolver
	gate     *docgate.Gate

	translator       ports.Translator
	handoff          *recommend.Handoff
	translateTimeout time.Duration
	turnCacheSize    int
	hooks            domain.LifecycleHooks
	logger           *slog.Logger
}

// Option configures the Driver.
type Option func(*Driver)

// WithTranslator enables prompt translation. Failures fall back silently to
// the untranslated text.
func WithTranslator(t ports.Translator) Option {
	return func(d *Driver) {
		d.translator = t
	}
}

// WithHandoff wires the recommendation handoff used by eligibility flows.
func WithHandoff(h *recommend.Handoff) Option {
	return func(d *Driver) {
		d.handoff = h
	}
}

// WithHooks wires lifecycle hooks for turn observability.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(d *Driver) {
		d.hooks = hooks
	}
}

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) {
		d.logger = logger
	}
}

// WithTurnCacheSize overrides the per-session duplicate-turn window.
func WithTurnCacheSize(n int) Option {
	return func(d *Driver) {
		d.turnCacheSize = n
	}
}

// New creates a driver.
func New(registry *flow.Registry, sessions *session.Manager, res *resolver.Resolver, gate *docgate.Gate, opts ...Option) *Driver {
	d := &Driver{
		registry:         registry,
		sessions:         sessions,
		resolver:         res,
		gate:             gate,
		translateTimeout: 10 * time.Second,
		turnCacheSize:    domain.DefaultTurnCacheSize,
		logger:           logging.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Turn processes one turn atomically. A redelivered turn id replays the
// cached response without touching conversation state.
func (d *Driver) Turn(ctx context.Context, req domain.TurnRequest) (*domain.TurnResponse, error) {
	def, err := d.registry.Get(req.FlowID)
	if err != nil {
		return nil, err
	}

	var resp *domain.TurnResponse
	var duplicate bool
	err = d.sessions.Update(ctx, req.SessionKey, func(s *domain.Session) (*domain.Session, error) {
		if s == nil || s.FlowID != req.FlowID {
			s = domain.NewSession(req.SessionKey, req.FlowID)
		}
		if req.Language != "" {
			s.Language = req.Language
		}

		if cached, ok := s.SeenTurn(req.TurnID); ok {
			resp = cached
			duplicate = true
			return nil, nil
		}

		r, err := d.process(ctx, def, s, req)
		if err != nil {
			return nil, err
		}
		resp = r
		s.RememberTurn(req.TurnID, *r, d.turnCacheSize)
		return s, nil
	})
	if err != nil {
		return nil, err
	}

	d.hooks.EmitTurn(ctx, &domain.TurnEvent{
		SessionKey: req.SessionKey,
		FlowID:     req.FlowID,
		NodeID:     resp.NextNodeID,
		Channel:    req.Channel,
		Terminal:   resp.Terminal,
		Duplicate:  duplicate,
	})
	return resp, nil
}

func (d *Driver) process(ctx context.Context, def *domain.FlowDefinition, s *domain.Session, req domain.TurnRequest) (*domain.TurnResponse, error) {
	if resetCommands[strings.ToLower(strings.TrimSpace(req.RawAnswer))] {
		s.Reset()
	}

	if s.CurrentNode == domain.StartSentinel {
		start, ok := def.Node(def.Start)
		if !ok {
			return nil, fmt.Errorf("start node %q missing in flow %q: %w", def.Start, def.ID, domain.ErrInvalidState)
		}
		s.CurrentNode = def.Start
		return d.respond(ctx, s, def.Start, start.Prompt), nil
	}

	// Post-recommendation loop, outside the flow's transition table.
	switch s.CurrentNode {
	case domain.NodeSchemeSelection:
		scheme := strings.TrimSpace(req.RawAnswer)
		s.SetAnswer("selected_scheme", scheme)
		s.CurrentNode = domain.NodeFollowupQA
		ask := fmt.Sprintf("What would you like to know about %s?", scheme)
		return d.respond(ctx, s, domain.NodeFollowupQA, ask), nil
	case domain.NodeFollowupQA:
		scheme, _ := s.Answer("selected_scheme")
		reply := d.followUp(ctx, req.RawAnswer, scheme, s)
		return &domain.TurnResponse{
			NextNodeID: domain.NodeFollowupQA,
			PromptText: reply,
			Answers:    s.AnswerMap(),
		}, nil
	}

	node, ok := def.Node(s.CurrentNode)
	if !ok {
		return nil, fmt.Errorf("node %q not in flow %q: %w", s.CurrentNode, def.ID, domain.ErrInvalidState)
	}

	if node.InputKind == domain.InputDocument {
		res := d.gate.Check(ctx, node, req.RawAnswer)
		if !res.Accepted {
			// Re-ask without advancing or recording.
			return d.respond(ctx, s, node.ID, res.Reason+"\n\n"+node.Prompt), nil
		}
		s.SetAnswer(node.Key(), res.Value)
	} else {
		s.SetAnswer(node.Key(), req.RawAnswer)
	}

	if node.Transition.Kind == domain.TransitionTerminal {
		return d.finish(ctx, def, s, node)
	}

	nextID := d.resolver.Next(ctx, node, req.RawAnswer)
	next, ok := def.Node(nextID)
	if !ok {
		return nil, fmt.Errorf("transition target %q not in flow %q: %w", nextID, def.ID, domain.ErrInvalidState)
	}
	s.CurrentNode = nextID
	return d.respond(ctx, s, nextID, next.Prompt), nil
}

func (d *Driver) finish(ctx context.Context, def *domain.FlowDefinition, s *domain.Session, node *domain.QuestionNode) (*domain.TurnResponse, error) {
	switch node.Transition.FlowType {
	case domain.FlowEligibility:
		rec := d.recommendation(ctx, s)
		prompt := d.translate(ctx, def.EndMessage+"\n\n"+schemeInterestQuestion, s.Language)
		answers := s.AnswerMap()
		s.CurrentNode = domain.NodeSchemeSelection
		return &domain.TurnResponse{
			NextNodeID:     domain.NodeSchemeSelection,
			PromptText:     prompt,
			Answers:        answers,
			Terminal:       true,
			Recommendation: rec,
		}, nil
	default:
		text := d.translate(ctx, def.EndMessage+summarize(s.Answers), s.Language)
		resp := &domain.TurnResponse{
			NextNodeID: node.Transition.Target,
			PromptText: text,
			Answers:    s.AnswerMap(),
			Terminal:   true,
		}
		// Ready for the next application; the turn window survives the
		// reset so redeliveries of this turn still replay.
		s.Reset()
		return resp, nil
	}
}

func (d *Driver) recommendation(ctx context.Context, s *domain.Session) *domain.Recommendation {
	if d.handoff == nil {
		return &domain.Recommendation{Fallback: true, Message: recommend.FallbackMessage}
	}
	return d.handoff.Recommend(ctx, s.Answers, languageOrDefault(s.Language))
}

func (d *Driver) followUp(ctx context.Context, question, scheme string, s *domain.Session) string {
	if d.handoff == nil {
		return recommend.FallbackMessage
	}
	return d.handoff.FollowUp(ctx, question, scheme, s.Answers, languageOrDefault(s.Language))
}

func (d *Driver) respond(ctx context.Context, s *domain.Session, nodeID, text string) *domain.TurnResponse {
	return &domain.TurnResponse{
		NextNodeID: nodeID,
		PromptText: d.translate(ctx, text, s.Language),
		Answers:    s.AnswerMap(),
	}
}

// translate renders text in the session language, falling back silently to
// the original on any failure.
func (d *Driver) translate(ctx context.Context, text, language string) string {
	if d.translator == nil || language == "" || strings.EqualFold(language, "english") {
		return text
	}

	tctx, cancel := context.WithTimeout(ctx, d.translateTimeout)
	defer cancel()

	started := time.Now()
	translated, err := d.translator.Translate(tctx, text, language)
	event := &domain.ExternalCallEvent{Service: "translator", Duration: time.Since(started)}
	if err != nil {
		event.Err = true
		event.Fallback = true
		d.hooks.EmitExternalCall(ctx, event)
		d.logger.Warn("translation failed, using original text", "language", language, "err", err)
		return text
	}
	d.hooks.EmitExternalCall(ctx, event)
	return strings.TrimSpace(translated)
}

func languageOrDefault(language string) string {
	if language == "" {
		return "english"
	}
	return language
}

// summarize renders the collected answers in insertion order with humanized
// labels, masking raw upload markers.
func summarize(answers []domain.AnswerRecord) string {
	var b strings.Builder
	b.WriteString("\n\nApplication Summary collected securely:\n")
	for _, a := range answers {
		value := a.Value
		if docgate.HasMarker(value) {
			value = uploadPlaceholder
		}
		fmt.Fprintf(&b, "- %s: %s\n", humanize(a.Key), value)
	}
	return b.String()
}

// humanize turns a field key like "land_record" into "Land Record".
func humanize(key string) string {
	words := strings.Split(key, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
