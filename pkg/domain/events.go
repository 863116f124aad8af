package domain

import (
	"context"
	"time"
)

// TurnEvent describes one processed turn.
type TurnEvent struct {
	SessionKey string
	FlowID     string
	NodeID     string
	Channel    string
	Terminal   bool
	Duplicate  bool
}

// ExternalCallEvent describes one call to an external collaborator
// (classifier, translator, verifier, retriever, completion service).
type ExternalCallEvent struct {
	Service  string
	Duration time.Duration
	Err      bool
	// Fallback is set when the failure was absorbed by a local fallback.
	Fallback bool
}

// LifecycleHooks lets hosts observe the engine (logging, metrics) without the
// core importing either.
type LifecycleHooks struct {
	OnTurn         func(context.Context, *TurnEvent)
	OnExternalCall func(context.Context, *ExternalCallEvent)
}

// EmitTurn fires OnTurn if configured.
func (h LifecycleHooks) EmitTurn(ctx context.Context, e *TurnEvent) {
	if h.OnTurn != nil {
		h.OnTurn(ctx, e)
	}
}

// EmitExternalCall fires OnExternalCall if configured.
func (h LifecycleHooks) EmitExternalCall(ctx context.Context, e *ExternalCallEvent) {
	if h.OnExternalCall != nil {
		h.OnExternalCall(ctx, e)
	}
}

// CombineHooks fans each event out to every hook set, so hosts can stack
// logging and metrics.
func CombineHooks(hooks ...LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnTurn: func(ctx context.Context, e *TurnEvent) {
			for _, h := range hooks {
				h.EmitTurn(ctx, e)
			}
		},
		OnExternalCall: func(ctx context.Context, e *ExternalCallEvent) {
			for _, h := range hooks {
				h.EmitExternalCall(ctx, e)
			}
		},
	}
}
