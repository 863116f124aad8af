// Package flows embeds the default flow definitions shipped with the engine:
// the eligibility questionnaire and the scheme application forms.
package flows

import "embed"

// FS holds the bundled YAML flow definitions.
//
//go:embed *.yaml
var FS embed.FS
