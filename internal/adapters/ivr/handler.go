// Package ivr bridges Twilio voice calls to the conversation driver. Answers
// arrive as DTMF digits or voice recordings; prompts go back as TwiML with
// text-to-speech, or recorded audio when a speech synthesizer is configured.
package ivr

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/agrivaani/agrivaani/internal/logging"
	"github.com/agrivaani/agrivaani/pkg/domain"
	"github.com/agrivaani/agrivaani/pkg/flow"
	"github.com/agrivaani/agrivaani/pkg/ports"
)

// Engine is the conversation driver surface the handler needs.
type Engine interface {
	Turn(ctx context.Context, req domain.TurnRequest) (*domain.TurnResponse, error)
}

// RecordingFetcher downloads a call recording for transcription.
type RecordingFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// voiceConfig selects the TTS voice per language.
type voiceConfig struct {
	voice   string
	ttsLang string
}

var voices = map[string]voiceConfig{
	"english": {voice: "Polly.Joanna", ttsLang: "en-US"},
	"hindi":   {voice: "Polly.Aditi", ttsLang: "hi-IN"},
	"marathi": {voice: "Polly.Aditi", ttsLang: "hi-IN"},
}

// languageDigits maps the opening DTMF menu to languages.
var languageDigits = map[string]string{
	"1": "english",
	"2": "hindi",
	"3": "marathi",
}

// hallucinations are stock phrases speech models emit on silence. A whole
// answer matching one of these is discarded and the question repeated.
var hallucinations = map[string]bool{
	"thank you": true, "thanks": true, "bye": true, "take care": true,
	"you": true, "thank you for watching": true, "thanks for watching": true,
	"please": true, "good luck": true, "my name is": true, "hello": true,
	"goodbye": true, "see you": true, "welcome": true, "okay": true,
}

// callState is the channel-side state of one active call.
type callState struct {
	language string
	node     string
	prompt   string
}

// Handler serves the voice webhook routes.
type Handler struct {
	engine      Engine
	registry    *flow.Registry
	transcriber ports.Transcriber
	speech      ports.Speech
	fetcher     RecordingFetcher
	flowID      string
	baseURL     string
	logger      *slog.Logger

	mu    sync.Mutex
	calls map[string]*callState
}

// Option configures the Handler.
type Option func(*Handler)

// WithFlow sets the flow voice calls run. Defaults to the eligibility
// questionnaire.
func WithFlow(flowID string) Option {
	return func(h *Handler) {
		h.flowID = flowID
	}
}

// WithTranscriber enables voice answers.
func WithTranscriber(t ports.Transcriber) Option {
	return func(h *Handler) {
		h.transcriber = t
	}
}

// WithSpeech plays synthesized audio instead of TTS markup.
func WithSpeech(s ports.Speech) Option {
	return func(h *Handler) {
		h.speech = s
	}
}

// WithRecordingFetcher sets the recording downloader.
func WithRecordingFetcher(f RecordingFetcher) Option {
	return func(h *Handler) {
		h.fetcher = f
	}
}

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// NewHandler creates the voice webhook handler. baseURL is the public URL
// Twilio posts callbacks to.
func NewHandler(engine Engine, registry *flow.Registry, baseURL string, opts ...Option) *Handler {
	h := &Handler{
		engine:   engine,
		registry: registry,
		flowID:   "eligibility",
		baseURL:  strings.TrimRight(baseURL, "/"),
		logger:   logging.NewNop(),
		calls:    make(map[string]*callState),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the webhook router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/start", h.handleStart)
	r.Post("/language", h.handleLanguage)
	r.Post("/handle-dtmf", h.handleDTMF)
	r.Post("/handle-voice", h.handleVoice)
	r.Post("/ask-next", h.handleAskNext)
	return r
}

func (h *Handler) url(path string) string {
	return h.baseURL + "/ivr" + path
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	gather := Gather{
		NumDigits: 1,
		Action:    h.url("/language"),
		Method:    http.MethodPost,
		Timeout:   5,
		Verbs: []any{
			Say{Voice: "Polly.Joanna", Language: "en-US", Text: "Welcome to the Farmer Scheme Assistant."},
			Say{Voice: "Polly.Joanna", Language: "en-US", Text: "Press 1 for English."},
			Say{Voice: "Polly.Aditi", Language: "hi-IN", Text: "Hindi ke liye 2 dabaye."},
			Say{Voice: "Polly.Aditi", Language: "hi-IN", Text: "Marathi sathi 3 daba."},
		},
	}
	h.writeTwiML(w, &Response{Verbs: []any{gather, Redirect{Method: http.MethodPost, URL: h.url("/start")}}})
}

func (h *Handler) handleLanguage(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	callSid := r.PostFormValue("CallSid")
	language, ok := languageDigits[r.PostFormValue("Digits")]
	if !ok {
		language = "english"
	}

	state := &callState{language: language}
	h.setCall(callSid, state)

	// A reset turn clears any stale session and emits the first prompt.
	resp, err := h.turn(r.Context(), callSid, "reset", language)
	if err != nil {
		h.hangupError(w, state, err)
		return
	}
	state.node = resp.NextNodeID
	state.prompt = resp.PromptText
	h.writeTwiML(w, h.questionTwiML(r.Context(), state))
}

func (h *Handler) handleDTMF(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	callSid := r.PostFormValue("CallSid")
	digits := r.PostFormValue("Digits")

	state := h.call(callSid)
	if state == nil {
		h.hangupLost(w)
		return
	}

	// DTMF digits map to declared answers where the node defines options.
	answer := digits
	if node := h.node(state.node); node != nil {
		if mapped, ok := node.DTMFOptions[digits]; ok {
			answer = mapped
		}
	}

	h.advance(w, r, callSid, state, answer)
}

func (h *Handler) handleVoice(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	callSid := r.PostFormValue("CallSid")
	recordingURL := r.PostFormValue("RecordingUrl")

	state := h.call(callSid)
	if state == nil {
		h.hangupLost(w)
		return
	}

	answer := h.transcribe(r.Context(), state, recordingURL)
	if answer == "" {
		h.writeTwiML(w, &Response{Verbs: []any{
			h.speak(r.Context(), state, "Sorry, I could not understand. Let me ask again."),
			Redirect{Method: http.MethodPost, URL: h.url("/ask-next")},
		}})
		return
	}

	h.advance(w, r, callSid, state, answer)
}

func (h *Handler) handleAskNext(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	state := h.call(r.PostFormValue("CallSid"))
	if state == nil {
		h.hangupLost(w)
		return
	}
	h.writeTwiML(w, h.questionTwiML(r.Context(), state))
}

// advance submits the answer as a turn and renders the next question.
func (h *Handler) advance(w http.ResponseWriter, r *http.Request, callSid string, state *callState, answer string) {
	resp, err := h.engine.Turn(r.Context(), domain.TurnRequest{
		FlowID:     h.flowID,
		SessionKey: callSid,
		TurnID:     uniqueTurnID(callSid, state.node, answer),
		RawAnswer:  answer,
		Language:   state.language,
		Channel:    "ivr",
	})
	if err != nil {
		h.hangupError(w, state, err)
		return
	}

	state.node = resp.NextNodeID
	state.prompt = resp.PromptText

	verbs := []any{}
	if resp.Recommendation != nil {
		verbs = append(verbs, h.speak(r.Context(), state, spokenRecommendation(resp.Recommendation)))
	}

	if resp.Terminal && resp.Recommendation == nil {
		// Form flows finish the call with the confirmation message.
		verbs = append(verbs, h.speak(r.Context(), state, resp.PromptText), Hangup{})
		h.dropCall(callSid)
		h.writeTwiML(w, &Response{Verbs: verbs})
		return
	}

	verbs = append(verbs, Redirect{Method: http.MethodPost, URL: h.url("/ask-next")})
	h.writeTwiML(w, &Response{Verbs: verbs})
}

// questionTwiML asks the current question, gathering digits for DTMF nodes
// and recording voice otherwise.
func (h *Handler) questionTwiML(ctx context.Context, state *callState) *Response {
	node := h.node(state.node)

	if node != nil && node.InputKind == domain.InputDigits && len(node.DTMFOptions) > 0 {
		gather := Gather{
			Input:     "dtmf",
			NumDigits: 1,
			Action:    h.url("/handle-dtmf"),
			Method:    http.MethodPost,
			Timeout:   10,
			Verbs:     []any{h.speak(ctx, state, state.prompt)},
		}
		return &Response{Verbs: []any{
			gather,
			h.speak(ctx, state, "No input detected. Let me repeat."),
			Redirect{Method: http.MethodPost, URL: h.url("/ask-next")},
		}}
	}

	return &Response{Verbs: []any{
		h.speak(ctx, state, state.prompt),
		Record{
			Action:    h.url("/handle-voice"),
			Method:    http.MethodPost,
			MaxLength: 10,
			Timeout:   5,
			PlayBeep:  true,
			Trim:      "trim-silence",
		},
	}}
}

// speak prefers synthesized audio and falls back to TTS markup.
func (h *Handler) speak(ctx context.Context, state *callState, text string) any {
	if h.speech != nil {
		url, err := h.speech.Synthesize(ctx, text, state.language)
		if err == nil && url != "" {
			return Play{URL: url}
		}
		h.logger.Warn("speech synthesis failed, using tts markup", "err", err)
	}
	cfg, ok := voices[state.language]
	if !ok {
		cfg = voices["english"]
	}
	return Say{Voice: cfg.voice, Language: cfg.ttsLang, Text: text}
}

// transcribe turns a recording into text, filtering silence hallucinations.
func (h *Handler) transcribe(ctx context.Context, state *callState, recordingURL string) string {
	if h.transcriber == nil || h.fetcher == nil || recordingURL == "" {
		return ""
	}

	audio, err := h.fetcher.Fetch(ctx, recordingURL+".wav")
	if err != nil {
		h.logger.Warn("failed to fetch recording", "err", err)
		return ""
	}

	hint := "Farmer answering: " + state.prompt
	if node := h.node(state.node); node != nil && len(node.Hints) > 0 {
		var parts []string
		for _, v := range node.Hints {
			parts = append(parts, v)
		}
		hint += " Expected answers: " + strings.Join(parts, "; ")
	}

	text, err := h.transcriber.Transcribe(ctx, bytes.NewReader(audio), state.language, hint)
	if err != nil {
		h.logger.Warn("transcription failed", "err", err)
		return ""
	}

	cleaned := strings.ToLower(strings.Trim(strings.TrimSpace(text), ".!?, "))
	if len(cleaned) < 2 || hallucinations[cleaned] {
		return ""
	}
	return strings.TrimSpace(text)
}

func (h *Handler) node(id string) *domain.QuestionNode {
	def, err := h.registry.Get(h.flowID)
	if err != nil {
		return nil
	}
	node, ok := def.Node(id)
	if !ok {
		return nil
	}
	return node
}

func (h *Handler) turn(ctx context.Context, callSid, answer, language string) (*domain.TurnResponse, error) {
	return h.engine.Turn(ctx, domain.TurnRequest{
		FlowID:     h.flowID,
		SessionKey: callSid,
		RawAnswer:  answer,
		Language:   language,
		Channel:    "ivr",
	})
}

func (h *Handler) call(sid string) *callState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[sid]
}

func (h *Handler) setCall(sid string, s *callState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls[sid] = s
}

func (h *Handler) dropCall(sid string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.calls, sid)
}

func (h *Handler) hangupLost(w http.ResponseWriter) {
	h.writeTwiML(w, &Response{Verbs: []any{
		Say{Voice: "Polly.Joanna", Language: "en-US", Text: "Session not found. Goodbye."},
		Hangup{},
	}})
}

func (h *Handler) hangupError(w http.ResponseWriter, state *callState, err error) {
	h.logger.Error("ivr turn failed", "err", err)
	h.writeTwiML(w, &Response{Verbs: []any{
		h.speak(context.Background(), state, "An error occurred. Please call again later."),
		Hangup{},
	}})
}

func (h *Handler) writeTwiML(w http.ResponseWriter, resp *Response) {
	data, err := resp.Marshal()
	if err != nil {
		http.Error(w, "twiml encoding failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	_, _ = w.Write(data)
}

// uniqueTurnID derives a stable id so a re-posted webhook for the same node
// and answer replays instead of double-advancing.
func uniqueTurnID(callSid, node, answer string) string {
	return fmt.Sprintf("%s:%s:%s", callSid, node, answer)
}

// spokenRecommendation flattens the structured result into speakable text.
func spokenRecommendation(rec *domain.Recommendation) string {
	if rec.Fallback || len(rec.EligibleSchemes) == 0 {
		if rec.Message != "" {
			return rec.Message
		}
		return "Based on your answers, we could not find specific schemes right now."
	}

	var b strings.Builder
	b.WriteString("Based on your answers, you may be eligible for: ")
	for i, s := range rec.EligibleSchemes {
		if i > 0 {
			b.WriteString(" Also, ")
		}
		b.WriteString(s.Scheme)
		if s.Reason != "" {
			b.WriteString(". ")
			b.WriteString(s.Reason)
		}
	}
	return b.String()
}
