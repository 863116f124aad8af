package ivr_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrivaani/agrivaani/flows"
	"github.com/agrivaani/agrivaani/internal/adapters/ivr"
	"github.com/agrivaani/agrivaani/pkg/domain"
	"github.com/agrivaani/agrivaani/pkg/flow"
)

type engineFunc func(ctx context.Context, req domain.TurnRequest) (*domain.TurnResponse, error)

func (f engineFunc) Turn(ctx context.Context, req domain.TurnRequest) (*domain.TurnResponse, error) {
	return f(ctx, req)
}

type transcriberFunc func(ctx context.Context, audio io.Reader, language, hint string) (string, error)

func (f transcriberFunc) Transcribe(ctx context.Context, audio io.Reader, language, hint string) (string, error) {
	return f(ctx, audio, language, hint)
}

type fetcherFunc func(ctx context.Context, url string) ([]byte, error)

func (f fetcherFunc) Fetch(ctx context.Context, url string) ([]byte, error) {
	return f(ctx, url)
}

func registry(t *testing.T) *flow.Registry {
	t.Helper()
	reg, err := flow.NewFromFS(flows.FS)
	require.NoError(t, err)
	return reg
}

func post(t *testing.T, h http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler_StartOffersLanguageMenu(t *testing.T) {
	h := ivr.NewHandler(engineFunc(
		func(ctx context.Context, req domain.TurnRequest) (*domain.TurnResponse, error) {
			return nil, nil
		},
	), registry(t), "https://example.com")

	rec := post(t, h.Routes(), "/start", url.Values{"CallSid": {"CA1"}})
	body := rec.Body.String()
	assert.Contains(t, body, "Press 1 for English.")
	assert.Contains(t, body, `action="https://example.com/ivr/language"`)
	assert.Contains(t, body, "<Gather")
}

func TestHandler_LanguageChoiceStartsFlowAndRecords(t *testing.T) {
	var got domain.TurnRequest
	h := ivr.NewHandler(engineFunc(
		func(ctx context.Context, req domain.TurnRequest) (*domain.TurnResponse, error) {
			got = req
			return &domain.TurnResponse{NextNodeID: "state", PromptText: "Which state do you farm in?"}, nil
		},
	), registry(t), "https://example.com")

	rec := post(t, h.Routes(), "/language", url.Values{"CallSid": {"CA1"}, "Digits": {"2"}})
	body := rec.Body.String()

	assert.Equal(t, "hindi", got.Language)
	assert.Equal(t, "reset", got.RawAnswer)
	assert.Equal(t, "ivr", got.Channel)

	// The state question takes voice input, so the reply records.
	assert.Contains(t, body, "Which state do you farm in?")
	assert.Contains(t, body, "<Record")
	assert.Contains(t, body, `action="https://example.com/ivr/handle-voice"`)
}

func TestHandler_DTMFNodeGathersDigits(t *testing.T) {
	h := ivr.NewHandler(engineFunc(
		func(ctx context.Context, req domain.TurnRequest) (*domain.TurnResponse, error) {
			return &domain.TurnResponse{NextNodeID: "owns_land", PromptText: "Do you own farm land?"}, nil
		},
	), registry(t), "https://example.com")

	rec := post(t, h.Routes(), "/language", url.Values{"CallSid": {"CA1"}, "Digits": {"1"}})
	body := rec.Body.String()
	assert.Contains(t, body, `input="dtmf"`)
	assert.Contains(t, body, `action="https://example.com/ivr/handle-dtmf"`)
	assert.Contains(t, body, "No input detected. Let me repeat.")
}

func TestHandler_DTMFDigitMappedThroughNodeOptions(t *testing.T) {
	answers := make([]string, 0, 2)
	h := ivr.NewHandler(engineFunc(
		func(ctx context.Context, req domain.TurnRequest) (*domain.TurnResponse, error) {
			answers = append(answers, req.RawAnswer)
			return &domain.TurnResponse{NextNodeID: "owns_land", PromptText: "Do you own farm land?"}, nil
		},
	), registry(t), "https://example.com")

	post(t, h.Routes(), "/language", url.Values{"CallSid": {"CA1"}, "Digits": {"1"}})
	post(t, h.Routes(), "/handle-dtmf", url.Values{"CallSid": {"CA1"}, "Digits": {"1"}})

	require.Len(t, answers, 2)
	assert.Equal(t, "yes", answers[1], "digit 1 on owns_land maps to yes")
}

func TestHandler_VoiceAnswerTranscribed(t *testing.T) {
	var lastAnswer string
	var gotHint string
	h := ivr.NewHandler(engineFunc(
		func(ctx context.Context, req domain.TurnRequest) (*domain.TurnResponse, error) {
			lastAnswer = req.RawAnswer
			return &domain.TurnResponse{NextNodeID: "owns_land", PromptText: "Do you own farm land?"}, nil
		},
	), registry(t), "https://example.com",
		ivr.WithTranscriber(transcriberFunc(
			func(ctx context.Context, audio io.Reader, language, hint string) (string, error) {
				gotHint = hint
				return "Maharashtra", nil
			},
		)),
		ivr.WithRecordingFetcher(fetcherFunc(
			func(ctx context.Context, u string) ([]byte, error) {
				assert.True(t, strings.HasSuffix(u, ".wav"))
				return []byte("audio"), nil
			},
		)),
	)

	post(t, h.Routes(), "/language", url.Values{"CallSid": {"CA1"}, "Digits": {"1"}})
	post(t, h.Routes(), "/handle-voice", url.Values{
		"CallSid":      {"CA1"},
		"RecordingUrl": {"https://api.twilio.com/recordings/RE1"},
	})

	assert.Equal(t, "Maharashtra", lastAnswer)
	assert.Contains(t, gotHint, "Farmer answering:")
}

func TestHandler_HallucinatedTranscriptionReasks(t *testing.T) {
	turns := 0
	h := ivr.NewHandler(engineFunc(
		func(ctx context.Context, req domain.TurnRequest) (*domain.TurnResponse, error) {
			turns++
			return &domain.TurnResponse{NextNodeID: "state", PromptText: "Which state do you farm in?"}, nil
		},
	), registry(t), "https://example.com",
		ivr.WithTranscriber(transcriberFunc(
			func(ctx context.Context, audio io.Reader, language, hint string) (string, error) {
				return "Thank you for watching.", nil
			},
		)),
		ivr.WithRecordingFetcher(fetcherFunc(
			func(ctx context.Context, u string) ([]byte, error) { return []byte("audio"), nil },
		)),
	)

	post(t, h.Routes(), "/language", url.Values{"CallSid": {"CA1"}, "Digits": {"1"}})
	rec := post(t, h.Routes(), "/handle-voice", url.Values{
		"CallSid":      {"CA1"},
		"RecordingUrl": {"https://api.twilio.com/recordings/RE1"},
	})

	assert.Equal(t, 1, turns, "a filtered transcription must not produce a turn")
	assert.Contains(t, rec.Body.String(), "Sorry, I could not understand.")
	assert.Contains(t, rec.Body.String(), "/ivr/ask-next")
}

func TestHandler_RecommendationSpokenOnTerminal(t *testing.T) {
	h := ivr.NewHandler(engineFunc(
		func(ctx context.Context, req domain.TurnRequest) (*domain.TurnResponse, error) {
			if req.RawAnswer == "reset" {
				return &domain.TurnResponse{NextNodeID: "category", PromptText: "Do you belong to SC, ST, OBC, or General category?"}, nil
			}
			return &domain.TurnResponse{
				NextNodeID: domain.NodeSchemeSelection,
				PromptText: "Which scheme are you interested in?",
				Terminal:   true,
				Recommendation: &domain.Recommendation{
					EligibleSchemes: []domain.Scheme{{Scheme: "PM-KISAN", Reason: "You own farm land."}},
				},
			}, nil
		},
	), registry(t), "https://example.com")

	post(t, h.Routes(), "/language", url.Values{"CallSid": {"CA1"}, "Digits": {"1"}})
	rec := post(t, h.Routes(), "/handle-dtmf", url.Values{"CallSid": {"CA1"}, "Digits": {"4"}})

	body := rec.Body.String()
	assert.Contains(t, body, "PM-KISAN")
	assert.Contains(t, body, "/ivr/ask-next", "the loop keeps the call alive after the recommendation")
}

func TestHandler_UnknownCallHangsUp(t *testing.T) {
	h := ivr.NewHandler(engineFunc(
		func(ctx context.Context, req domain.TurnRequest) (*domain.TurnResponse, error) {
			return nil, nil
		},
	), registry(t), "https://example.com")

	rec := post(t, h.Routes(), "/handle-dtmf", url.Values{"CallSid": {"CA-unknown"}, "Digits": {"1"}})
	assert.Contains(t, rec.Body.String(), "<Hangup")
	assert.Contains(t, rec.Body.String(), "Session not found")
}
