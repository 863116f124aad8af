// Package recommend turns a completed eligibility questionnaire into scheme
// recommendations. It builds a profile from the collected answers, gathers
// supporting evidence from the vector store, and asks the completion service
// for a strict-JSON verdict. Every external failure degrades to a neutral
// fallback payload; a finished questionnaire always gets an answer.
package recommend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/agrivaani/agrivaani/internal/logging"
	"github.com/agrivaani/agrivaani/pkg/domain"
	"github.com/agrivaani/agrivaani/pkg/ports"
)

// evidenceLimit is how many retrieved chunks back one recommendation.
const evidenceLimit = 12

// FallbackMessage is returned when no recommendation could be produced.
const FallbackMessage = "We could not generate scheme recommendations right now. " +
	"Please consult your local agriculture office, or try again later."

// Handoff produces recommendations and answers follow-up questions.
type Handoff struct {
	completer ports.Completer
	retriever ports.EvidenceRetriever
	timeout   time.Duration
	hooks     domain.LifecycleHooks
	logger    *slog.Logger
}

// Option configures the Handoff.
type Option func(*Handoff)

// WithRetriever wires the evidence store. Without one, recommendations are
// produced from the profile alone.
func WithRetriever(r ports.EvidenceRetriever) Option {
	return func(h *Handoff) {
		h.retriever = r
	}
}

// WithTimeout bounds each external call.
func WithTimeout(d time.Duration) Option {
	return func(h *Handoff) {
		h.timeout = d
	}
}

// WithHooks wires lifecycle hooks for external-call observability.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(h *Handoff) {
		h.hooks = hooks
	}
}

// WithLogger configures a logger for fallback decisions.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handoff) {
		h.logger = logger
	}
}

// New creates a handoff backed by the given completion service.
func New(completer ports.Completer, opts ...Option) *Handoff {
	h := &Handoff{
		completer: completer,
		timeout:   30 * time.Second,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Recommend maps the farmer's answers to eligible schemes. It never fails:
// when the external services are unreachable or return garbage, the result is
// a fallback payload the conversation can present and move on from.
func (h *Handoff) Recommend(ctx context.Context, answers []domain.AnswerRecord, language string) *domain.Recommendation {
	profile := profileJSON(answers)
	evidence := h.retrieve(ctx, profile)

	if h.completer == nil {
		return fallback()
	}

	prompt := buildPrompt(profile, evidence, language)

	cctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	started := time.Now()
	raw, err := h.completer.Complete(cctx, prompt)
	event := &domain.ExternalCallEvent{Service: "recommender", Duration: time.Since(started)}
	if err != nil {
		event.Err = true
		event.Fallback = true
		h.hooks.EmitExternalCall(ctx, event)
		h.logger.Warn("recommendation service unavailable, returning fallback", "err", err)
		return fallback()
	}

	rec, err := decode(raw)
	if err != nil {
		event.Fallback = true
		h.hooks.EmitExternalCall(ctx, event)
		h.logger.Warn("unparseable recommendation payload, returning fallback", "err", err)
		return fallback()
	}
	h.hooks.EmitExternalCall(ctx, event)
	return rec
}

// FollowUp answers a free-form question about a chosen scheme using the
// farmer's profile for context. Errors degrade to a static apology so the
// loop never breaks.
func (h *Handoff) FollowUp(ctx context.Context, question, scheme string, answers []domain.AnswerRecord, language string) string {
	if h.completer == nil {
		return FallbackMessage
	}

	var b strings.Builder
	b.WriteString("You are an advisor for Indian government farmer schemes.\n")
	fmt.Fprintf(&b, "The farmer is asking about the scheme: %s\n\n", scheme)
	fmt.Fprintf(&b, "Farmer profile (JSON):\n%s\n\n", profileJSON(answers))
	fmt.Fprintf(&b, "Question: %s\n\n", question)
	b.WriteString("Answer concisely and factually. Do not quote numbers, percentages or monetary values. " +
		"Do not invent schemes or documents.\n")
	fmt.Fprintf(&b, "Respond entirely in this language: %s.\n", strings.ToUpper(language))

	cctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	started := time.Now()
	reply, err := h.completer.Complete(cctx, b.String())
	event := &domain.ExternalCallEvent{Service: "recommender", Duration: time.Since(started)}
	if err != nil {
		event.Err = true
		event.Fallback = true
		h.hooks.EmitExternalCall(ctx, event)
		h.logger.Warn("follow-up completion failed", "scheme", scheme, "err", err)
		return FallbackMessage
	}
	h.hooks.EmitExternalCall(ctx, event)
	return strings.TrimSpace(reply)
}

func (h *Handoff) retrieve(ctx context.Context, query string) []ports.Evidence {
	if h.retriever == nil {
		return nil
	}

	rctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	started := time.Now()
	evidence, err := h.retriever.Retrieve(rctx, query, evidenceLimit)
	event := &domain.ExternalCallEvent{Service: "retriever", Duration: time.Since(started)}
	if err != nil {
		event.Err = true
		event.Fallback = true
		h.hooks.EmitExternalCall(ctx, event)
		h.logger.Warn("evidence retrieval failed, recommending on profile alone", "err", err)
		return nil
	}
	h.hooks.EmitExternalCall(ctx, event)
	return evidence
}

// profileJSON serializes the answers as a JSON object in insertion order.
func profileJSON(answers []domain.AnswerRecord) string {
	var b strings.Builder
	b.WriteString("{")
	for i, a := range answers {
		if i > 0 {
			b.WriteString(", ")
		}
		k, _ := json.Marshal(a.Key)
		v, _ := json.Marshal(a.Value)
		b.Write(k)
		b.WriteString(": ")
		b.Write(v)
	}
	b.WriteString("}")
	return b.String()
}

func buildPrompt(profile string, evidence []ports.Evidence, language string) string {
	var chunks strings.Builder
	for i, e := range evidence {
		fmt.Fprintf(&chunks, "[%d] %s\n", i+1, e.Text)
	}
	if chunks.Len() == 0 {
		chunks.WriteString("(no documents retrieved)\n")
	}

	return fmt.Sprintf(`SYSTEM ROLE:
You are an eligibility advisor for Indian government farmer schemes.

INPUTS:
1) Farmer profile (JSON):
%s

2) Retrieved document chunks (may include forms, annexures, or guidelines):
%s
YOUR TASK:
- Decide which schemes the farmer is likely ELIGIBLE for.
- Use the farmer profile as the PRIMARY source for eligibility.
- Use the retrieved chunks ONLY to support or explain (not to block eligibility).

IMPORTANT PERMISSIONS (explicitly allowed):
- You MAY infer eligibility using well-known scheme rules
  (e.g., land ownership, crop type, livestock activity).
- You MAY describe scheme features in HIGH-LEVEL terms (no numbers).

STRICT LIMITS (do not violate):
- Do NOT quote numbers, percentages, limits, or monetary values.
- Do NOT invent documents, schemes, or implementation details.

OUTPUT REQUIREMENTS:
- Output VALID JSON only.
- You MUST respond ENTIRELY in this language: %s.
- Be concise and factual.

OUTPUT FORMAT:
{
  "eligible_schemes": [
    {
      "scheme": "<scheme name>",
      "reason": "<factual reason, addressed directly to the farmer>",
      "key_features": "<key features of the scheme in brief>",
      "documents": "<documents required for the scheme>"
    }
  ]
}`, profile, chunks.String(), strings.ToUpper(language))
}

// decode parses a completion into the typed payload, tolerating code fences
// and surrounding prose.
func decode(raw string) (*domain.Recommendation, error) {
	objText, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}

	var loose map[string]any
	if err := json.Unmarshal([]byte(objText), &loose); err != nil {
		return nil, fmt.Errorf("invalid recommendation JSON: %w", err)
	}

	var rec domain.Recommendation
	if err := mapstructure.Decode(loose, &rec); err != nil {
		return nil, fmt.Errorf("unexpected recommendation shape: %w", err)
	}
	return &rec, nil
}

// extractJSON pulls the first JSON object out of a sloppy completion.
func extractJSON(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return "", fmt.Errorf("no JSON object in completion")
	}
	return s[start : end+1], nil
}

func fallback() *domain.Recommendation {
	return &domain.Recommendation{
		Fallback: true,
		Message:  FallbackMessage,
	}
}
