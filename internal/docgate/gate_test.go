package docgate_test

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrivaani/agrivaani/internal/docgate"
	"github.com/agrivaani/agrivaani/pkg/domain"
	"github.com/agrivaani/agrivaani/pkg/ports"
)

type verifierFunc func(ctx context.Context, doc ports.DocumentRef, expected string) (bool, error)

func (f verifierFunc) Verify(ctx context.Context, doc ports.DocumentRef, expected string) (bool, error) {
	return f(ctx, doc, expected)
}

func uploadNode() *domain.QuestionNode {
	return &domain.QuestionNode{
		ID:          "upload_land_record",
		FieldKey:    "land_record",
		InputKind:   domain.InputDocument,
		ExpectedDoc: "Land record document",
		AllowSkip:   true,
	}
}

func TestGate_RejectsPlainText(t *testing.T) {
	g := docgate.New()
	res := g.Check(context.Background(), uploadNode(), "here is my document")
	assert.False(t, res.Accepted)
	assert.Contains(t, res.Reason, "Land record document")
}

func TestGate_SkipAcceptedWithoutValue(t *testing.T) {
	g := docgate.New()
	res := g.Check(context.Background(), uploadNode(), "  Skip ")
	assert.True(t, res.Accepted)
	assert.Empty(t, res.Value)
}

func TestGate_SkipIgnoredWhenNotAllowed(t *testing.T) {
	node := uploadNode()
	node.AllowSkip = false
	g := docgate.New()
	res := g.Check(context.Background(), node, "skip")
	assert.False(t, res.Accepted)
}

func TestGate_AcceptsMarkerWithoutVerifier(t *testing.T) {
	g := docgate.New()
	answer := docgate.UploadMarker("https://cdn.example.com/media/123")
	res := g.Check(context.Background(), uploadNode(), answer)
	assert.True(t, res.Accepted)
	assert.Equal(t, answer, res.Value)
}

func TestGate_VerifierMismatchRejects(t *testing.T) {
	g := docgate.New(docgate.WithVerifier(verifierFunc(
		func(ctx context.Context, doc ports.DocumentRef, expected string) (bool, error) {
			assert.Equal(t, "https://cdn.example.com/media/123", doc.URL)
			assert.Equal(t, "Land record document", expected)
			return false, nil
		},
	)))

	res := g.Check(context.Background(), uploadNode(), docgate.UploadMarker("https://cdn.example.com/media/123"))
	assert.False(t, res.Accepted)
	assert.Contains(t, res.Reason, "does not look like a valid Land record document")
}

func TestGate_VerifierErrorFailsOpen(t *testing.T) {
	g := docgate.New(docgate.WithVerifier(verifierFunc(
		func(ctx context.Context, doc ports.DocumentRef, expected string) (bool, error) {
			return false, errors.New("vision service down")
		},
	)))

	answer := docgate.UploadMarker("https://cdn.example.com/media/123")
	res := g.Check(context.Background(), uploadNode(), answer)
	assert.True(t, res.Accepted, "verification is advisory and must not block the farmer")
	assert.Equal(t, answer, res.Value)
}

func TestGate_DataURIDecoded(t *testing.T) {
	payload := []byte{0xFF, 0xD8, 0xFF} // jpeg magic
	ref := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(payload)

	var got ports.DocumentRef
	g := docgate.New(docgate.WithVerifier(verifierFunc(
		func(ctx context.Context, doc ports.DocumentRef, expected string) (bool, error) {
			got = doc
			return true, nil
		},
	)))

	res := g.Check(context.Background(), uploadNode(), docgate.UploadMarker(ref))
	require.True(t, res.Accepted)
	assert.Equal(t, "image/jpeg", got.MIME)
	assert.Equal(t, payload, got.Data)
	assert.Empty(t, got.URL)
}

func TestHasMarker(t *testing.T) {
	assert.True(t, docgate.HasMarker("[DOCUMENT_UPLOADED] (https://x)"))
	assert.True(t, docgate.HasMarker("[DOCUMENT_UPLOADED](https://x)"))
	assert.False(t, docgate.HasMarker("document uploaded"))
}
