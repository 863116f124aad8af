package flow

import (
	"fmt"
	"io/fs"
	"path"

	"gopkg.in/yaml.v3"

	"github.com/agrivaani/agrivaani/pkg/domain"
)

// flowFile is the on-disk YAML shape of a flow definition.
type flowFile struct {
	ID         string     `yaml:"id"`
	Name       string     `yaml:"name"`
	Start      string     `yaml:"start"`
	FlowType   string     `yaml:"flow_type"`
	EndMessage string     `yaml:"end_message"`
	Nodes      []nodeFile `yaml:"nodes"`
}

// nodeFile declares exactly one of next (fixed), routes (classified) or
// end (terminal). Routes are a list so declaration order survives decoding;
// the first route doubles as the classification fallback.
type nodeFile struct {
	ID          string            `yaml:"id"`
	Prompt      string            `yaml:"prompt"`
	FieldKey    string            `yaml:"field_key"`
	InputKind   string            `yaml:"input_kind"`
	Next        string            `yaml:"next"`
	Routes      []domain.Route    `yaml:"routes"`
	End         string            `yaml:"end"`
	Hints       map[string]string `yaml:"hints"`
	ExpectedDoc string            `yaml:"expected_doc"`
	AllowSkip   bool              `yaml:"allow_skip"`
	DTMFOptions map[string]string `yaml:"dtmf_options"`
}

// Parse decodes a single YAML flow definition. The result is not yet
// validated; the registry validates on load.
func Parse(data []byte) (*domain.FlowDefinition, error) {
	var f flowFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedFlow, err)
	}
	return buildDefinition(&f)
}

func buildDefinition(f *flowFile) (*domain.FlowDefinition, error) {
	def := &domain.FlowDefinition{
		ID:         f.ID,
		Name:       f.Name,
		Start:      f.Start,
		EndMessage: f.EndMessage,
		Nodes:      make(map[string]*domain.QuestionNode, len(f.Nodes)),
	}

	for _, n := range f.Nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("%w: flow %q has a node without an id", domain.ErrMalformedFlow, f.ID)
		}
		if _, dup := def.Nodes[n.ID]; dup {
			return nil, fmt.Errorf("%w: flow %q declares node %q twice", domain.ErrMalformedFlow, f.ID, n.ID)
		}

		spec, err := buildTransition(f, &n)
		if err != nil {
			return nil, err
		}

		def.Nodes[n.ID] = &domain.QuestionNode{
			ID:          n.ID,
			Prompt:      n.Prompt,
			FieldKey:    n.FieldKey,
			InputKind:   n.InputKind,
			Transition:  spec,
			Hints:       n.Hints,
			ExpectedDoc: n.ExpectedDoc,
			AllowSkip:   n.AllowSkip,
			DTMFOptions: n.DTMFOptions,
		}
	}
	return def, nil
}

func buildTransition(f *flowFile, n *nodeFile) (domain.TransitionSpec, error) {
	declared := 0
	if n.Next != "" {
		declared++
	}
	if len(n.Routes) > 0 {
		declared++
	}
	if n.End != "" {
		declared++
	}
	if declared != 1 {
		return domain.TransitionSpec{}, fmt.Errorf(
			"%w: flow %q node %q must declare exactly one of next, routes or end",
			domain.ErrMalformedFlow, f.ID, n.ID)
	}

	switch {
	case n.Next != "":
		return domain.TransitionSpec{Kind: domain.TransitionFixed, Target: n.Next}, nil
	case len(n.Routes) > 0:
		return domain.TransitionSpec{Kind: domain.TransitionClassified, Routes: n.Routes}, nil
	default:
		flowType := f.FlowType
		if flowType == "" {
			flowType = domain.FlowFormSubmission
		}
		return domain.TransitionSpec{Kind: domain.TransitionTerminal, Target: n.End, FlowType: flowType}, nil
	}
}

// loadDir parses every YAML file in fsys.
func loadDir(fsys fs.FS) ([]*domain.FlowDefinition, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("reading flow directory: %w", err)
	}

	var defs []*domain.FlowDefinition
	for _, e := range entries {
		ext := path.Ext(e.Name())
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		data, err := fs.ReadFile(fsys, e.Name())
		if err != nil {
			return nil, fmt.Errorf("reading flow file %s: %w", e.Name(), err)
		}
		def, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", e.Name(), err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}
