// Package genai adapts an OpenAI-compatible endpoint to the external-service
// ports: classification, translation, completion, document verification and
// speech transcription. Any provider exposing the chat-completions API works
// via the base URL.
package genai

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/agrivaani/agrivaani/pkg/ports"
)

// Config holds endpoint and model settings.
type Config struct {
	APIKey  string
	BaseURL string
	// Model handles classification, translation and recommendations.
	Model string
	// VisionModel handles document verification. Defaults to Model.
	VisionModel string
	// TranscribeModel handles speech-to-text.
	TranscribeModel string
}

// Client implements the Classifier, Translator, Completer, DocumentVerifier
// and Transcriber ports on one OpenAI-compatible endpoint.
type Client struct {
	api             openai.Client
	model           string
	visionModel     string
	transcribeModel string
}

// NewClient creates a client for the configured endpoint.
func NewClient(cfg Config) *Client {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	vision := cfg.VisionModel
	if vision == "" {
		vision = cfg.Model
	}
	transcribe := cfg.TranscribeModel
	if transcribe == "" {
		transcribe = "whisper-large-v3"
	}

	return &Client{
		api:             openai.NewClient(opts...),
		model:           cfg.Model,
		visionModel:     vision,
		transcribeModel: transcribe,
	}
}

// Complete sends one prompt and returns the completion text.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	return c.chat(ctx, c.model,
		openai.SystemMessage("You are a helpful assistant."),
		openai.UserMessage(prompt),
	)
}

// Classify asks the model which candidate category an answer belongs to.
// The raw completion is returned; the resolver normalizes and matches it.
func (c *Client) Classify(ctx context.Context, req ports.ClassifyRequest) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "The user was asked: %q\n", req.Prompt)
	fmt.Fprintf(&b, "The user responded with: %q\n\n", req.Answer)
	fmt.Fprintf(&b, "Which of these categories applies best to the response: %s?\n", strings.Join(req.Categories, ", "))
	if len(req.Hints) > 0 {
		b.WriteString("Classification hints:\n")
		for _, cat := range req.Categories {
			if hint, ok := req.Hints[cat]; ok {
				fmt.Fprintf(&b, "- %s: %s\n", cat, hint)
			}
		}
	}
	fmt.Fprintf(&b, "\nReturn ONLY the exact category name from: %s.", strings.Join(req.Categories, ", "))

	return c.chat(ctx, c.model,
		openai.SystemMessage("You classify answers in a guided conversation."),
		openai.UserMessage(b.String()),
	)
}

// Translate renders text into the given language. The default language is
// passed through untouched.
func (c *Client) Translate(ctx context.Context, text, language string) (string, error) {
	if language == "" || strings.EqualFold(language, "english") {
		return text, nil
	}
	prompt := fmt.Sprintf("Translate the following text to %s. Return only the translation:\n\n%s", language, text)
	return c.chat(ctx, c.model,
		openai.SystemMessage("You are a translator for an Indian farmer assistance service."),
		openai.UserMessage(prompt),
	)
}

// Verify asks the vision model whether the document matches the expected
// description. Only an explicit NO counts as a mismatch.
func (c *Client) Verify(ctx context.Context, doc ports.DocumentRef, expected string) (bool, error) {
	url := doc.URL
	if url == "" {
		mime := doc.MIME
		if mime == "" {
			mime = "image/jpeg"
		}
		url = fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(doc.Data))
	}

	prompt := fmt.Sprintf(
		"The user was asked to upload an image of: %s. Does this image visually depict a %s or a document directly satisfying this purpose? Reply ONLY with YES or NO.",
		expected, expected,
	)

	verdict, err := c.chat(ctx, c.visionModel,
		openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
			openai.TextContentPart(prompt),
			openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: url}),
		}),
	)
	if err != nil {
		return false, err
	}
	return !strings.Contains(strings.ToUpper(verdict), "NO"), nil
}

// whisperLangs maps spoken-language names to ISO codes for transcription.
var whisperLangs = map[string]string{
	"english": "en",
	"hindi":   "hi",
	"marathi": "mr",
	"tamil":   "ta",
	"telugu":  "te",
}

// Transcribe converts recorded audio to text, steering recognition with the
// current question as a prompt hint.
func (c *Client) Transcribe(ctx context.Context, audio io.Reader, language, hint string) (string, error) {
	params := openai.AudioTranscriptionNewParams{
		File:  audio,
		Model: openai.AudioModel(c.transcribeModel),
	}
	if code, ok := whisperLangs[strings.ToLower(language)]; ok {
		params.Language = openai.String(code)
	}
	if hint != "" {
		params.Prompt = openai.String(hint)
	}

	res, err := c.api.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("transcribing audio: %w", err)
	}
	return strings.TrimSpace(res.Text), nil
}

func (c *Client) chat(ctx context.Context, model string, messages ...openai.ChatCompletionMessageParamUnion) (string, error) {
	res, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(res.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return strings.TrimSpace(res.Choices[0].Message.Content), nil
}
