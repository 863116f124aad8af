package ports

import (
	"context"
	"io"
)

// ClassifyRequest carries everything the external classifier needs to map a
// free-form answer onto one of the candidate category keys.
type ClassifyRequest struct {
	Prompt     string
	Answer     string
	Categories []string
	Hints      map[string]string
}

// Classifier resolves ambiguous free-form answers into category keys.
// The returned text is free-form; the caller normalizes and matches it.
type Classifier interface {
	Classify(ctx context.Context, req ClassifyRequest) (string, error)
}

// Translator renders text into the given language. Implementations return the
// input unchanged for the default language.
type Translator interface {
	Translate(ctx context.Context, text, language string) (string, error)
}

// Completer is the general-purpose completion service used by the
// recommendation handoff and the follow-up question loop.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// DocumentRef is a retrievable image or document reference extracted from an
// upload marker: either a remote URL or inline data with a MIME type.
type DocumentRef struct {
	URL  string
	MIME string
	Data []byte
}

// DocumentVerifier checks whether an uploaded document visually matches the
// expected description. This is an advisory check; callers fail open on error.
type DocumentVerifier interface {
	Verify(ctx context.Context, doc DocumentRef, expected string) (bool, error)
}

// Evidence is one retrieved chunk supporting a recommendation.
type Evidence struct {
	Text   string  `json:"text"`
	Source string  `json:"source,omitempty"`
	Score  float64 `json:"score,omitempty"`
}

// EvidenceRetriever queries the external vector-similarity store.
type EvidenceRetriever interface {
	Retrieve(ctx context.Context, query string, limit int) ([]Evidence, error)
}

// Transcriber converts recorded audio to text. The hint carries the current
// question and expected-answer guidance to steer recognition.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, language, hint string) (string, error)
}

// Speech synthesizes spoken audio for a text and returns a playable URL.
type Speech interface {
	Synthesize(ctx context.Context, text, language string) (string, error)
}
