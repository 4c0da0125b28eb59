package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const (
	// EmptySummary is returned for blank input without calling the API.
	EmptySummary = "No content to summarize."
	bullet       = "•"
)

const summaryPrompt = `Summarize the following text in 3-5 concise bullet points. Be factual and only include information present in the text. Do not add any information not in the source text. Format each point with a bullet (•) followed by a space.

Text to summarize:
%s

Summary:`

// Summarizer produces bullet-point summaries.
type Summarizer struct {
	client *Client
}

// NewSummarizer builds a Summarizer over client.
func NewSummarizer(client *Client) (*Summarizer, error) {
	if client == nil {
		return nil, errors.New("gemini: client is required")
	}
	return &Summarizer{client: client}, nil
}

// Summarize returns 3-5 bullet points for text, or EmptySummary for blank input.
func (s *Summarizer) Summarize(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return EmptySummary, nil
	}

	raw, err := s.client.GenerateText(ctx, genai.NewPartFromText(fmt.Sprintf(summaryPrompt, text)))
	if err != nil {
		return "", err
	}

	summary := NormalizeBullets(raw)
	if summary == "" {
		return "", errors.New("summary generation returned empty result")
	}
	return summary, nil
}

// NormalizeBullets drops blank lines and makes every remaining line start with "• ".
// Lines led by "-" or "*" have that marker replaced.
func NormalizeBullets(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	normalized := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, bullet):
		case strings.HasPrefix(line, "-"), strings.HasPrefix(line, "*"):
			line = bullet + " " + strings.TrimLeft(line[1:], " \t")
		default:
			line = bullet + " " + line
		}
		normalized = append(normalized, line)
	}
	return strings.Join(normalized, "\n")
}
