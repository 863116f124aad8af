package resolver_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrivaani/agrivaani/internal/resolver"
	"github.com/agrivaani/agrivaani/pkg/domain"
	"github.com/agrivaani/agrivaani/pkg/ports"
)

type classifierFunc func(ctx context.Context, req ports.ClassifyRequest) (string, error)

func (f classifierFunc) Classify(ctx context.Context, req ports.ClassifyRequest) (string, error) {
	return f(ctx, req)
}

func classifiedNode() *domain.QuestionNode {
	return &domain.QuestionNode{
		ID:     "owns_land",
		Prompt: "Do you own farm land?",
		Transition: domain.TransitionSpec{
			Kind: domain.TransitionClassified,
			Routes: []domain.Route{
				{Match: "yes", To: "land_size"},
				{Match: "no", To: "activity"},
			},
		},
		Hints: map[string]string{
			"yes": "Mentions owning land",
			"no":  "Landless or leased",
		},
	}
}

func TestResolver_FixedTransition(t *testing.T) {
	r := resolver.New(nil)
	node := &domain.QuestionNode{
		ID:         "state",
		Transition: domain.TransitionSpec{Kind: domain.TransitionFixed, Target: "district"},
	}
	assert.Equal(t, "district", r.Next(context.Background(), node, "Maharashtra"))
}

func TestResolver_LiteralMatchSkipsClassifier(t *testing.T) {
	called := false
	r := resolver.New(classifierFunc(func(ctx context.Context, req ports.ClassifyRequest) (string, error) {
		called = true
		return "yes", nil
	}))

	assert.Equal(t, "activity", r.Next(context.Background(), classifiedNode(), "  NO "))
	assert.False(t, called, "exact answers must not reach the classifier")
}

func TestResolver_ClassifierVerdictRoutes(t *testing.T) {
	var got ports.ClassifyRequest
	r := resolver.New(classifierFunc(func(ctx context.Context, req ports.ClassifyRequest) (string, error) {
		got = req
		return "The category is: yes", nil
	}))

	next := r.Next(context.Background(), classifiedNode(), "I have two acres near Nashik")
	assert.Equal(t, "land_size", next)
	require.Equal(t, []string{"yes", "no"}, got.Categories)
	assert.Equal(t, "I have two acres near Nashik", got.Answer)
	assert.Contains(t, got.Hints, "yes")
}

func TestResolver_ClassifierErrorTakesFallback(t *testing.T) {
	var event *domain.ExternalCallEvent
	r := resolver.New(
		classifierFunc(func(ctx context.Context, req ports.ClassifyRequest) (string, error) {
			return "", errors.New("upstream 503")
		}),
		resolver.WithHooks(domain.LifecycleHooks{
			OnExternalCall: func(ctx context.Context, e *domain.ExternalCallEvent) { event = e },
		}),
	)

	assert.Equal(t, "land_size", r.Next(context.Background(), classifiedNode(), "hmm"))
	require.NotNil(t, event)
	assert.True(t, event.Err)
	assert.True(t, event.Fallback)
}

func TestResolver_UnmatchableVerdictTakesFallback(t *testing.T) {
	r := resolver.New(classifierFunc(func(ctx context.Context, req ports.ClassifyRequest) (string, error) {
		return "maybe", nil
	}))
	assert.Equal(t, "land_size", r.Next(context.Background(), classifiedNode(), "hmm"))
}

func TestResolver_EarlierRouteWinsOnAmbiguousVerdict(t *testing.T) {
	// "no" is a substring of "i know"; with verdict mentioning both words the
	// first declared route must win.
	r := resolver.New(classifierFunc(func(ctx context.Context, req ports.ClassifyRequest) (string, error) {
		return "yes, though arguably no", nil
	}))
	assert.Equal(t, "land_size", r.Next(context.Background(), classifiedNode(), "complicated"))
}

func TestResolver_NilClassifierFallsBack(t *testing.T) {
	r := resolver.New(nil)
	assert.Equal(t, "land_size", r.Next(context.Background(), classifiedNode(), "I farm on rented land"))
}
