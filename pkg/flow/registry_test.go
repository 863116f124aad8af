package flow_test

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrivaani/agrivaani/flows"
	"github.com/agrivaani/agrivaani/pkg/domain"
	"github.com/agrivaani/agrivaani/pkg/flow"
)

func TestRegistry_LoadsBundledFlows(t *testing.T) {
	reg, err := flow.NewFromFS(flows.FS)
	require.NoError(t, err)

	assert.Equal(t, []string{"eligibility", "kcc", "nlm", "pm_kisan", "pmfby"}, reg.IDs())

	def, err := reg.Get("kcc")
	require.NoError(t, err)
	assert.Equal(t, "state", def.Start)

	node, ok := def.Node("upload_land_record")
	require.True(t, ok)
	assert.Equal(t, "land_record", node.Key())
	assert.True(t, node.AllowSkip)
	assert.Equal(t, domain.TransitionTerminal, node.Transition.Kind)
	assert.Equal(t, "end_kcc", node.Transition.Target)
	assert.Equal(t, domain.FlowFormSubmission, node.Transition.FlowType)
}

func TestRegistry_UnknownFlow(t *testing.T) {
	reg, err := flow.NewFromFS(flows.FS)
	require.NoError(t, err)

	_, err = reg.Get("soil_health_card")
	assert.ErrorIs(t, err, domain.ErrUnknownFlow)
}

func TestRegistry_ClassifiedFallbackIsFirstRoute(t *testing.T) {
	reg, err := flow.NewFromFS(flows.FS)
	require.NoError(t, err)

	def, err := reg.Get("eligibility")
	require.NoError(t, err)

	node, ok := def.Node("owns_land")
	require.True(t, ok)
	require.Equal(t, domain.TransitionClassified, node.Transition.Kind)
	assert.Equal(t, "land_size", node.Transition.Fallback())
}

func TestRegistry_RejectsDanglingTarget(t *testing.T) {
	fsys := fstest.MapFS{
		"broken.yaml": &fstest.MapFile{Data: []byte(`
id: broken
start: a
nodes:
  - id: a
    prompt: Question A
    next: nowhere
`)},
	}

	_, err := flow.NewFromFS(fsys)
	assert.ErrorIs(t, err, domain.ErrMalformedFlow)
}

func TestRegistry_RejectsDanglingRoute(t *testing.T) {
	fsys := fstest.MapFS{
		"broken.yaml": &fstest.MapFile{Data: []byte(`
id: broken
start: a
nodes:
  - id: a
    prompt: Question A
    routes:
      - match: "yes"
        to: missing
`)},
	}

	_, err := flow.NewFromFS(fsys)
	assert.ErrorIs(t, err, domain.ErrMalformedFlow)
}

func TestRegistry_RejectsAmbiguousTransition(t *testing.T) {
	fsys := fstest.MapFS{
		"broken.yaml": &fstest.MapFile{Data: []byte(`
id: broken
start: a
nodes:
  - id: a
    prompt: Question A
    next: b
    end: end_broken
  - id: b
    prompt: Question B
    end: end_broken
`)},
	}

	_, err := flow.NewFromFS(fsys)
	assert.ErrorIs(t, err, domain.ErrMalformedFlow)
}

func TestRegistry_RejectsMissingStart(t *testing.T) {
	fsys := fstest.MapFS{
		"broken.yaml": &fstest.MapFile{Data: []byte(`
id: broken
start: ghost
nodes:
  - id: a
    prompt: Question A
    end: end_broken
`)},
	}

	_, err := flow.NewFromFS(fsys)
	assert.ErrorIs(t, err, domain.ErrMalformedFlow)
}
