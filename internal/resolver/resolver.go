// Package resolver decides which node a conversation moves to after an
// answer. Fixed transitions are a table lookup; classified transitions first
// try a literal route match and only then consult the external classifier.
package resolver

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/agrivaani/agrivaani/internal/logging"
	"github.com/agrivaani/agrivaani/pkg/domain"
	"github.com/agrivaani/agrivaani/pkg/ports"
)

// DefaultTimeout bounds one classifier call.
const DefaultTimeout = 10 * time.Second

// Resolver maps (node, answer) to the next node id.
type Resolver struct {
	classifier ports.Classifier
	timeout    time.Duration
	hooks      domain.LifecycleHooks
	logger     *slog.Logger
}

// Option configures the Resolver.
type Option func(*Resolver)

// WithTimeout overrides the per-call classifier timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		r.timeout = d
	}
}

// WithHooks wires lifecycle hooks for external-call observability.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(r *Resolver) {
		r.hooks = hooks
	}
}

// WithLogger configures a logger for fallback decisions.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// New creates a resolver. The classifier may be nil, in which case classified
// transitions without a literal match take the fallback route.
func New(classifier ports.Classifier, opts ...Option) *Resolver {
	r := &Resolver{
		classifier: classifier,
		timeout:    DefaultTimeout,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Next resolves the node the conversation moves to after answer. It never
// fails: classifier errors and unmatchable answers resolve to the fallback
// route, which is the first declared one.
func (r *Resolver) Next(ctx context.Context, node *domain.QuestionNode, answer string) string {
	t := node.Transition
	switch t.Kind {
	case domain.TransitionFixed, domain.TransitionTerminal:
		return t.Target
	case domain.TransitionClassified:
		return r.classify(ctx, node, answer)
	default:
		// Unreachable for registry-validated flows.
		return t.Target
	}
}

func (r *Resolver) classify(ctx context.Context, node *domain.QuestionNode, answer string) string {
	t := node.Transition

	// Literal answers bypass the classifier entirely.
	normalized := strings.ToLower(strings.TrimSpace(answer))
	for _, route := range t.Routes {
		if normalized == strings.ToLower(route.Match) {
			return route.To
		}
	}

	if r.classifier == nil {
		return t.Fallback()
	}

	categories := make([]string, 0, len(t.Routes))
	for _, route := range t.Routes {
		categories = append(categories, route.Match)
	}

	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	started := time.Now()
	verdict, err := r.classifier.Classify(cctx, ports.ClassifyRequest{
		Prompt:     node.Prompt,
		Answer:     answer,
		Categories: categories,
		Hints:      node.Hints,
	})
	if err != nil {
		r.hooks.EmitExternalCall(ctx, &domain.ExternalCallEvent{
			Service:  "classifier",
			Duration: time.Since(started),
			Err:      true,
			Fallback: true,
		})
		r.logger.Warn("classifier unavailable, taking fallback route",
			"node", node.ID,
			"fallback", t.Fallback(),
			"err", err,
		)
		return t.Fallback()
	}

	// The verdict is free-form text; match categories by substring in
	// declaration order so earlier routes win on ambiguous output.
	verdict = strings.ToLower(verdict)
	for _, route := range t.Routes {
		if strings.Contains(verdict, strings.ToLower(route.Match)) {
			r.hooks.EmitExternalCall(ctx, &domain.ExternalCallEvent{
				Service:  "classifier",
				Duration: time.Since(started),
			})
			return route.To
		}
	}

	r.hooks.EmitExternalCall(ctx, &domain.ExternalCallEvent{
		Service:  "classifier",
		Duration: time.Since(started),
		Fallback: true,
	})
	r.logger.Warn("classifier verdict matched no route, taking fallback",
		"node", node.ID,
		"verdict", verdict,
		"fallback", t.Fallback(),
	)
	return t.Fallback()
}
