// Package whatsapp bridges Twilio WhatsApp webhooks to the conversation
// driver. Incoming form posts become turns; replies go back as TwiML.
//
// Language selection is a channel concern handled here: a new or reset sender
// first picks a language from a menu, then the conversation proper starts.
package whatsapp

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/agrivaani/agrivaani/internal/docgate"
	"github.com/agrivaani/agrivaani/internal/logging"
	"github.com/agrivaani/agrivaani/pkg/domain"
)

// Engine is the conversation driver surface the handler needs.
type Engine interface {
	Turn(ctx context.Context, req domain.TurnRequest) (*domain.TurnResponse, error)
}

// languageOptions maps menu digits to languages.
var languageOptions = map[string]string{
	"0": "english",
	"1": "hindi",
	"2": "marathi",
	"3": "tamil",
	"4": "telugu",
}

// resetKeywords restart the conversation and re-show the language menu.
var resetKeywords = map[string]bool{
	"reset":   true,
	"restart": true,
	"hi":      true,
	"hello":   true,
}

const languageMenu = "Welcome to the Farmer Assistant Chatbot! Please select your language:\n" +
	"किसान सहायक चैटबॉट में आपका स्वागत है! कृपया अपनी भाषा चुनें:\n" +
	"शेतकरी सहाय्यक चॅटबॉटमध्ये आपले स्वागत आहे! कृपया तुमची भाषा निवडा:\n\n" +
	"0 - English\n" +
	"1 - हिन्दी (Hindi)\n" +
	"2 - मराठी (Marathi)\n" +
	"3 - தமிழ் (Tamil)\n" +
	"4 - తెలుగు (Telugu)"

const invalidSelection = "Invalid selection / अमान्य विकल्प / चुकीची निवड."

// senderState tracks the channel-side phase of one WhatsApp number.
type senderState struct {
	awaitingLanguage bool
	language         string
}

// Handler serves the WhatsApp webhook.
type Handler struct {
	engine Engine
	flowID string
	logger *slog.Logger

	mu      sync.Mutex
	senders map[string]*senderState
}

// Option configures the Handler.
type Option func(*Handler)

// WithFlow sets the flow WhatsApp conversations run. Defaults to the
// eligibility questionnaire.
func WithFlow(flowID string) Option {
	return func(h *Handler) {
		h.flowID = flowID
	}
}

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// NewHandler creates a WhatsApp webhook handler.
func NewHandler(engine Engine, opts ...Option) *Handler {
	h := &Handler{
		engine:  engine,
		flowID:  "eligibility",
		logger:  logging.NewNop(),
		senders: make(map[string]*senderState),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP handles one incoming message webhook.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form body", http.StatusBadRequest)
		return
	}

	from := r.PostFormValue("From")
	body := strings.TrimSpace(r.PostFormValue("Body"))
	messageSid := r.PostFormValue("MessageSid")
	mediaURL := r.PostFormValue("MediaUrl0")

	if from == "" {
		http.Error(w, "missing From", http.StatusBadRequest)
		return
	}

	state := h.sender(from)

	// New senders and reset keywords get the language menu.
	if state == nil || resetKeywords[strings.ToLower(body)] {
		h.setSender(from, &senderState{awaitingLanguage: true})
		writeTwiML(w, languageMenu)
		return
	}

	if state.awaitingLanguage {
		lang, ok := languageOptions[body]
		if !ok {
			writeTwiML(w, invalidSelection+"\n\n"+languageMenu)
			return
		}
		h.setSender(from, &senderState{language: lang})

		// A reset turn clears any stale session and emits the first prompt.
		resp, err := h.turn(r.Context(), from, messageSid, "reset", lang)
		if err != nil {
			h.replyError(w, from, err)
			return
		}
		writeTwiML(w, resp.PromptText)
		return
	}

	answer := body
	if mediaURL != "" {
		answer = docgate.UploadMarker(mediaURL)
	}

	resp, err := h.turn(r.Context(), from, messageSid, answer, state.language)
	if err != nil {
		h.replyError(w, from, err)
		return
	}

	text := resp.PromptText
	if resp.Recommendation != nil {
		text = formatRecommendation(resp.Recommendation) + "\n\n" + text
	}
	writeTwiML(w, text)
}

func (h *Handler) turn(ctx context.Context, from, messageSid, answer, language string) (*domain.TurnResponse, error) {
	return h.engine.Turn(ctx, domain.TurnRequest{
		FlowID:     h.flowID,
		SessionKey: from,
		TurnID:     messageSid,
		RawAnswer:  answer,
		Language:   language,
		Channel:    "whatsapp",
	})
}

func (h *Handler) replyError(w http.ResponseWriter, from string, err error) {
	h.logger.Error("whatsapp turn failed", "from", from, "err", err)
	writeTwiML(w, "Sorry, something went wrong. Please send 'reset' to start over.")
}

func (h *Handler) sender(from string) *senderState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.senders[from]
}

func (h *Handler) setSender(from string, s *senderState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.senders[from] = s
}

// formatRecommendation renders schemes with WhatsApp text styling.
func formatRecommendation(rec *domain.Recommendation) string {
	if rec.Fallback || len(rec.EligibleSchemes) == 0 {
		if rec.Message != "" {
			return rec.Message
		}
		return "Based on your answers, we couldn't find specific schemes, or further verification is required."
	}

	var b strings.Builder
	b.WriteString("✅ *Eligible Schemes:*")
	for _, s := range rec.EligibleSchemes {
		fmt.Fprintf(&b, "\n\n🟢 *%s*\n_%s_", s.Scheme, s.Reason)
		if s.KeyFeatures != "" {
			fmt.Fprintf(&b, "\n➔ *Key Features:* %s", s.KeyFeatures)
		}
		if s.Documents != "" {
			fmt.Fprintf(&b, "\n➔ *Documents Required:* %s", s.Documents)
		}
	}
	return b.String()
}

// messagingResponse is the TwiML reply document.
type messagingResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message"`
}

func writeTwiML(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(xml.Header))
	_ = xml.NewEncoder(w).Encode(messagingResponse{Message: text})
}
