package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/storage"
	"google.golang.org/genai"
)

const transcriptionPrompt = "Transcribe this audio file. Return only the transcript text, without any additional commentary or formatting."

// BlobOpener reads stored audio.
type BlobOpener interface {
	Open(ctx context.Context, key string) (storage.Blob, error)
}

// Transcriber turns stored audio into a single-line transcript.
type Transcriber struct {
	client *Client
	blobs  BlobOpener
}

// NewTranscriber reads audio from blobs and transcribes it with client.
func NewTranscriber(client *Client, blobs BlobOpener) (*Transcriber, error) {
	if client == nil {
		return nil, errors.New("gemini: client is required")
	}
	if blobs == nil {
		return nil, errors.New("gemini: blob store is required")
	}
	return &Transcriber{client: client, blobs: blobs}, nil
}

// Transcribe uploads the blob at audioPath inline and returns the transcript with
// whitespace collapsed to single spaces.
func (t *Transcriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	if strings.TrimSpace(audioPath) == "" {
		return "", errors.New("audio path is required")
	}

	blob, err := t.blobs.Open(ctx, audioPath)
	if err != nil {
		return "", fmt.Errorf("failed to download audio: %w", err)
	}
	defer blob.Body.Close()

	data, err := io.ReadAll(blob.Body)
	if err != nil {
		return "", fmt.Errorf("failed to download audio: %w", err)
	}
	if len(data) == 0 {
		return "", errors.New("failed to download audio: no data returned")
	}

	mimeType := blob.ContentType
	if mimeType == "" {
		mimeType = storage.ContentTypeForKey("")
	}

	text, err := t.client.GenerateText(ctx,
		genai.NewPartFromText(transcriptionPrompt),
		genai.NewPartFromBytes(data, mimeType),
	)
	if err != nil {
		return "", err
	}

	transcript := strings.Join(strings.Fields(text), " ")
	if transcript == "" {
		return "", errors.New("transcription returned empty result")
	}
	return transcript, nil
}
