package cli_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrivaani/agrivaani/internal/adapters/cli"
	"github.com/agrivaani/agrivaani/pkg/domain"
)

type engineFunc func(ctx context.Context, req domain.TurnRequest) (*domain.TurnResponse, error)

func (f engineFunc) Turn(ctx context.Context, req domain.TurnRequest) (*domain.TurnResponse, error) {
	return f(ctx, req)
}

func TestChat_RunsTurnsUntilQuit(t *testing.T) {
	var answers []string
	engine := engineFunc(func(ctx context.Context, req domain.TurnRequest) (*domain.TurnResponse, error) {
		answers = append(answers, req.RawAnswer)
		assert.Equal(t, "cli", req.Channel)
		assert.Equal(t, "kcc", req.FlowID)
		assert.NotEmpty(t, req.TurnID)
		return &domain.TurnResponse{NextNodeID: "state", PromptText: "Which state do you farm in?"}, nil
	})

	in := strings.NewReader("Maharashtra\n/quit\n")
	var out bytes.Buffer

	chat := cli.NewChat(engine, "kcc", "english", in, &out)
	require.NoError(t, chat.Run(context.Background()))

	require.Equal(t, []string{"reset", "Maharashtra"}, answers)
	assert.Contains(t, out.String(), "/upload")
}

func TestChat_SessionKeyStableAcrossTurns(t *testing.T) {
	keys := map[string]bool{}
	engine := engineFunc(func(ctx context.Context, req domain.TurnRequest) (*domain.TurnResponse, error) {
		keys[req.SessionKey] = true
		return &domain.TurnResponse{PromptText: "next"}, nil
	})

	in := strings.NewReader("a\nb\n/quit\n")
	var out bytes.Buffer
	chat := cli.NewChat(engine, "kcc", "english", in, &out)
	require.NoError(t, chat.Run(context.Background()))

	assert.Len(t, keys, 1, "one chat run keeps one session")
}
