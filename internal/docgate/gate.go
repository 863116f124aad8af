// Package docgate screens answers to document-upload questions. Channel
// adapters normalize uploads into a textual marker; the gate validates the
// marker, optionally checks the document against the expected description,
// and decides whether the conversation may advance.
package docgate

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/agrivaani/agrivaani/internal/logging"
	"github.com/agrivaani/agrivaani/pkg/domain"
	"github.com/agrivaani/agrivaani/pkg/ports"
)

// SkipToken lets a farmer move past an optional upload.
const SkipToken = "skip"

// markerPattern matches the upload marker adapters emit, capturing the
// document reference (a URL or a data URI).
var markerPattern = regexp.MustCompile(`\[DOCUMENT_UPLOADED\]\s*\((.*?)\)`)

// UploadMarker renders the marker for a document reference.
func UploadMarker(ref string) string {
	return fmt.Sprintf("[DOCUMENT_UPLOADED] (%s)", ref)
}

// HasMarker reports whether the answer carries an upload marker.
func HasMarker(answer string) bool {
	return markerPattern.MatchString(answer)
}

// Result is the gate's decision for one answer.
type Result struct {
	Accepted bool
	// Value is the answer to record when accepted. Empty for a skip.
	Value string
	// Reason explains a rejection, phrased for the farmer.
	Reason string
}

// Gate validates document-upload answers.
type Gate struct {
	verifier ports.DocumentVerifier
	timeout  time.Duration
	hooks    domain.LifecycleHooks
	logger   *slog.Logger
}

// Option configures the Gate.
type Option func(*Gate)

// WithVerifier enables advisory visual verification of uploads.
func WithVerifier(v ports.DocumentVerifier) Option {
	return func(g *Gate) {
		g.verifier = v
	}
}

// WithHooks wires lifecycle hooks for external-call observability.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(g *Gate) {
		g.hooks = hooks
	}
}

// WithLogger configures a logger for verification fallbacks.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		g.logger = logger
	}
}

// New creates a gate. Without a verifier every well-formed upload is accepted.
func New(opts ...Option) *Gate {
	g := &Gate{
		timeout: 15 * time.Second,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Check decides whether answer satisfies a document-upload question.
// Verification is advisory: if the verifier is unavailable or fails, the
// upload is accepted rather than trapping the farmer on the question.
func (g *Gate) Check(ctx context.Context, node *domain.QuestionNode, answer string) Result {
	if node.AllowSkip && strings.EqualFold(strings.TrimSpace(answer), SkipToken) {
		return Result{Accepted: true}
	}

	match := markerPattern.FindStringSubmatch(answer)
	if match == nil {
		return Result{
			Reason: fmt.Sprintf("Please upload an image of the expected document: %s.", node.ExpectedDoc),
		}
	}

	if g.verifier != nil {
		ref, err := parseRef(match[1])
		if err != nil {
			g.logger.Warn("unreadable document reference, accepting upload unverified",
				"node", node.ID,
				"err", err,
			)
		} else {
			ok, verr := g.verify(ctx, ref, node)
			if verr == nil && !ok {
				return Result{
					Reason: fmt.Sprintf("This document does not look like a valid %s. Please try again.", node.ExpectedDoc),
				}
			}
		}
	}

	return Result{Accepted: true, Value: answer}
}

func (g *Gate) verify(ctx context.Context, ref ports.DocumentRef, node *domain.QuestionNode) (bool, error) {
	vctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	started := time.Now()
	ok, err := g.verifier.Verify(vctx, ref, node.ExpectedDoc)
	event := &domain.ExternalCallEvent{
		Service:  "document_verifier",
		Duration: time.Since(started),
	}
	if err != nil {
		event.Err = true
		event.Fallback = true
		g.logger.Warn("document verification unavailable, accepting upload",
			"node", node.ID,
			"err", err,
		)
	}
	g.hooks.EmitExternalCall(ctx, event)
	return ok, err
}

// parseRef interprets the captured reference as either a data URI carrying
// the document inline or a fetchable URL.
func parseRef(ref string) (ports.DocumentRef, error) {
	ref = strings.TrimSpace(ref)
	if !strings.HasPrefix(ref, "data:") {
		if ref == "" {
			return ports.DocumentRef{}, fmt.Errorf("empty document reference")
		}
		return ports.DocumentRef{URL: ref}, nil
	}

	// data:<mime>;base64,<payload>
	rest := strings.TrimPrefix(ref, "data:")
	meta, payload, found := strings.Cut(rest, ",")
	if !found || !strings.HasSuffix(meta, ";base64") {
		return ports.DocumentRef{}, fmt.Errorf("malformed data uri")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return ports.DocumentRef{}, fmt.Errorf("decoding data uri payload: %w", err)
	}
	return ports.DocumentRef{
		MIME: strings.TrimSuffix(meta, ";base64"),
		Data: data,
	}, nil
}
