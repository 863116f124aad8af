// Package cli runs an interactive terminal conversation against the driver,
// mainly for trying flows out locally.
package cli

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/google/uuid"

	"github.com/agrivaani/agrivaani/internal/docgate"
	"github.com/agrivaani/agrivaani/pkg/domain"
)

// Engine is the conversation driver surface the chat needs.
type Engine interface {
	Turn(ctx context.Context, req domain.TurnRequest) (*domain.TurnResponse, error)
}

// Chat is an interactive stdin/stdout conversation loop.
type Chat struct {
	engine   Engine
	flowID   string
	language string
	in       io.Reader
	out      io.Writer
	render   func(string) (string, error)
}

// NewChat creates a chat bound to one flow and language.
func NewChat(engine Engine, flowID, language string, in io.Reader, out io.Writer) *Chat {
	render := func(s string) (string, error) { return s + "\n", nil }
	if r, err := glamour.NewTermRenderer(glamour.WithAutoStyle()); err == nil {
		render = r.Render
	}
	return &Chat{
		engine:   engine,
		flowID:   flowID,
		language: language,
		in:       in,
		out:      out,
		render:   render,
	}
}

// Run drives the conversation until EOF or an exit command.
func (c *Chat) Run(ctx context.Context) error {
	sessionKey := "cli-" + uuid.NewString()

	resp, err := c.turn(ctx, sessionKey, "reset")
	if err != nil {
		return err
	}
	c.print(resp)

	fmt.Fprintln(c.out, "(type /upload <path> to attach a document, /quit to exit)")

	scanner := bufio.NewScanner(c.in)
	for {
		fmt.Fprint(c.out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			continue
		case line == "/quit" || line == "/exit":
			return nil
		case strings.HasPrefix(line, "/upload "):
			marker, err := uploadMarker(strings.TrimSpace(strings.TrimPrefix(line, "/upload ")))
			if err != nil {
				fmt.Fprintf(c.out, "cannot attach document: %v\n", err)
				continue
			}
			line = marker
		}

		resp, err := c.turn(ctx, sessionKey, line)
		if err != nil {
			return err
		}
		c.print(resp)
	}
}

func (c *Chat) turn(ctx context.Context, sessionKey, answer string) (*domain.TurnResponse, error) {
	return c.engine.Turn(ctx, domain.TurnRequest{
		FlowID:     c.flowID,
		SessionKey: sessionKey,
		TurnID:     uuid.NewString(),
		RawAnswer:  answer,
		Language:   c.language,
		Channel:    "cli",
	})
}

func (c *Chat) print(resp *domain.TurnResponse) {
	text := resp.PromptText
	if resp.Recommendation != nil {
		text = recommendationMarkdown(resp.Recommendation) + "\n\n" + text
	}

	rendered, err := c.render(text)
	if err != nil {
		rendered = text + "\n"
	}
	fmt.Fprint(c.out, rendered)
}

func recommendationMarkdown(rec *domain.Recommendation) string {
	if rec.Fallback || len(rec.EligibleSchemes) == 0 {
		if rec.Message != "" {
			return rec.Message
		}
		return "Based on your answers, we couldn't find specific schemes, or further verification is required."
	}

	var b strings.Builder
	b.WriteString("## Eligible Schemes\n")
	for _, s := range rec.EligibleSchemes {
		fmt.Fprintf(&b, "\n### %s\n%s\n", s.Scheme, s.Reason)
		if s.KeyFeatures != "" {
			fmt.Fprintf(&b, "- **Key Features:** %s\n", s.KeyFeatures)
		}
		if s.Documents != "" {
			fmt.Fprintf(&b, "- **Documents Required:** %s\n", s.Documents)
		}
	}
	return b.String()
}

// uploadMarker reads a local file into an inline data reference.
func uploadMarker(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	ref := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
	return docgate.UploadMarker(ref), nil
}
