package agrivaani

import (
	"context"
	"io/fs"
	"log/slog"
	"os"

	"github.com/agrivaani/agrivaani/flows"
	"github.com/agrivaani/agrivaani/internal/docgate"
	"github.com/agrivaani/agrivaani/internal/driver"
	"github.com/agrivaani/agrivaani/internal/recommend"
	"github.com/agrivaani/agrivaani/internal/resolver"
	"github.com/agrivaani/agrivaani/pkg/adapters/memory"
	"github.com/agrivaani/agrivaani/pkg/domain"
	"github.com/agrivaani/agrivaani/pkg/flow"
	"github.com/agrivaani/agrivaani/pkg/ports"
	"github.com/agrivaani/agrivaani/pkg/session"
)

// Assistant is the high-level entry point for embedding AgriVaani as a
// library. It bundles the flow registry, session manager and conversation
// driver behind a single Turn method; channel adapters in cmd/agrivaani build
// on the same pieces directly.
type Assistant struct {
	registry *flow.Registry
	driver   *driver.Driver

	flowFS     fs.FS
	store      ports.SessionStore
	locker     ports.DistributedLocker
	classifier ports.Classifier
	translator ports.Translator
	verifier   ports.DocumentVerifier
	completer  ports.Completer
	retriever  ports.EvidenceRetriever
	hooks      domain.LifecycleHooks
	logger     *slog.Logger
}

// Option defines a functional option for configuring the Assistant.
type Option func(*Assistant)

// WithFlowsDir loads flow definitions from a directory instead of the
// bundled set.
func WithFlowsDir(dir string) Option {
	return func(a *Assistant) {
		a.flowFS = os.DirFS(dir)
	}
}

// WithFlowFS loads flow definitions from an arbitrary filesystem.
func WithFlowFS(fsys fs.FS) Option {
	return func(a *Assistant) {
		a.flowFS = fsys
	}
}

// WithStore injects a session store (default: in-memory).
func WithStore(store ports.SessionStore) Option {
	return func(a *Assistant) {
		a.store = store
	}
}

// WithLocker enables cross-process session locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(a *Assistant) {
		a.locker = locker
	}
}

// WithClassifier routes classified transitions through the given service.
// Without one, classified questions always take their fallback route.
func WithClassifier(c ports.Classifier) Option {
	return func(a *Assistant) {
		a.classifier = c
	}
}

// WithTranslator translates prompts into the session language.
func WithTranslator(t ports.Translator) Option {
	return func(a *Assistant) {
		a.translator = t
	}
}

// WithVerifier checks uploaded documents at document nodes.
func WithVerifier(v ports.DocumentVerifier) Option {
	return func(a *Assistant) {
		a.verifier = v
	}
}

// WithCompleter enables scheme recommendations at the end of eligibility
// flows, and free-form follow-up answers after them.
func WithCompleter(c ports.Completer) Option {
	return func(a *Assistant) {
		a.completer = c
	}
}

// WithRetriever grounds recommendations on retrieved scheme documents.
func WithRetriever(r ports.EvidenceRetriever) Option {
	return func(a *Assistant) {
		a.retriever = r
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(a *Assistant) {
		a.hooks = hooks
	}
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Assistant) {
		a.logger = logger
	}
}

// New builds an Assistant. With no options it serves the bundled flows from
// an in-memory store with no external services wired.
func New(opts ...Option) (*Assistant, error) {
	a := &Assistant{flowFS: flows.FS}
	for _, opt := range opts {
		opt(a)
	}

	reg, err := flow.NewFromFS(a.flowFS)
	if err != nil {
		return nil, err
	}
	a.registry = reg

	if a.store == nil {
		a.store = memory.NewStore()
	}
	sessionOpts := []session.Option{}
	if a.locker != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(a.locker))
	}
	if a.logger != nil {
		sessionOpts = append(sessionOpts, session.WithLogger(a.logger))
	}
	sessions := session.NewManager(a.store, sessionOpts...)

	resOpts := []resolver.Option{resolver.WithHooks(a.hooks)}
	gateOpts := []docgate.Option{docgate.WithHooks(a.hooks)}
	driverOpts := []driver.Option{driver.WithHooks(a.hooks)}
	if a.logger != nil {
		resOpts = append(resOpts, resolver.WithLogger(a.logger))
		gateOpts = append(gateOpts, docgate.WithLogger(a.logger))
		driverOpts = append(driverOpts, driver.WithLogger(a.logger))
	}
	if a.verifier != nil {
		gateOpts = append(gateOpts, docgate.WithVerifier(a.verifier))
	}
	if a.translator != nil {
		driverOpts = append(driverOpts, driver.WithTranslator(a.translator))
	}
	if a.completer != nil {
		handoffOpts := []recommend.Option{recommend.WithHooks(a.hooks)}
		if a.retriever != nil {
			handoffOpts = append(handoffOpts, recommend.WithRetriever(a.retriever))
		}
		if a.logger != nil {
			handoffOpts = append(handoffOpts, recommend.WithLogger(a.logger))
		}
		driverOpts = append(driverOpts, driver.WithHandoff(recommend.New(a.completer, handoffOpts...)))
	}

	a.driver = driver.New(reg, sessions,
		resolver.New(a.classifier, resOpts...),
		docgate.New(gateOpts...),
		driverOpts...,
	)
	return a, nil
}

// Turn processes one conversation turn. The first turn of a session returns
// the flow's start prompt and ignores the answer text; "reset" at any point
// starts the flow over.
func (a *Assistant) Turn(ctx context.Context, req domain.TurnRequest) (*domain.TurnResponse, error) {
	return a.driver.Turn(ctx, req)
}

// Flows lists the loaded flow IDs.
func (a *Assistant) Flows() []string {
	return a.registry.IDs()
}

// Registry exposes the underlying flow registry for hosts that need node
// metadata (the voice adapter reads DTMF hints from it, for example).
func (a *Assistant) Registry() *flow.Registry {
	return a.registry
}
