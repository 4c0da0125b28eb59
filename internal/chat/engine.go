// Package chat answers free-text questions by ranking stored notes with weighted keyword matches.
package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/apperr"
	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/notes"
	"go.uber.org/zap"
)

const (
	// MessageEmptyQuery answers a blank query.
	MessageEmptyQuery = "Please ask a question about your notes."
	// MessageNoNotes answers any query while no notes exist.
	MessageNoNotes = "You don't have any notes yet. Create some notes first to search through them."

	noMatchesFormat = `I couldn't find any notes matching "%s". Try asking about something else, or check your notes list.`

	opQuery         = "chat.query"
	maxResults      = 5
	previewRunes    = 200
	titleWeight     = 3
	summaryWeight   = 2
	contentWeight   = 1
	answerDateStyle = "Jan 2, 2006"
)

// NoteLister returns every stored note, newest first.
type NoteLister interface {
	ListNotes(ctx context.Context) ([]notes.Note, error)
}

type field uint8

const (
	fieldTitle field = 1 << iota
	fieldSummary
	fieldContent
)

type match struct {
	note    notes.Note
	score   int
	matched field
}

// Engine ranks notes against a query and renders a fixed-format answer.
// It only repeats stored note data.
type Engine struct {
	notes  NoteLister
	logger *zap.Logger
}

// NewEngine builds an Engine reading notes from lister. A nil logger is replaced with a no-op.
func NewEngine(lister NoteLister, logger *zap.Logger) (*Engine, error) {
	if lister == nil {
		return nil, errors.New("chat: note lister is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{notes: lister, logger: logger}, nil
}

// Query answers the question. A blank query is answered without reading notes.
func (e *Engine) Query(ctx context.Context, query string) (string, error) {
	if strings.TrimSpace(query) == "" {
		return MessageEmptyQuery, nil
	}

	all, err := e.notes.ListNotes(ctx)
	if err != nil {
		e.logger.Error("chat engine error",
			zap.String("operation", opQuery),
			zap.String("reason", "list_failed"),
			zap.Error(err))
		if apperr.CodeOf(err) != "" {
			return "", err
		}
		return "", apperr.Internal(opQuery, "list_failed", err)
	}
	if len(all) == 0 {
		return MessageNoNotes, nil
	}

	matches := rank(tokenize(query), all)
	e.logger.Debug("chat query ranked",
		zap.Int("notes", len(all)),
		zap.Int("matches", len(matches)))
	if len(matches) == 0 {
		return fmt.Sprintf(noMatchesFormat, query), nil
	}
	return render(matches), nil
}

func tokenize(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

func rank(words []string, all []notes.Note) []match {
	matches := make([]match, 0, len(all))
	for _, note := range all {
		candidate := match{note: note}
		candidate.add(fieldTitle, note.Title, words, titleWeight)
		candidate.add(fieldSummary, note.Summary, words, summaryWeight)
		candidate.add(fieldContent, note.Content, words, contentWeight)
		if candidate.score > 0 {
			matches = append(matches, candidate)
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})
	if len(matches) > maxResults {
		matches = matches[:maxResults]
	}
	return matches
}

func (m *match) add(f field, value *string, words []string, weight int) {
	if value == nil || *value == "" {
		return
	}
	haystack := strings.ToLower(*value)
	count := 0
	for _, word := range words {
		if strings.Contains(haystack, word) {
			count++
		}
	}
	if count == 0 {
		return
	}
	m.score += count * weight
	m.matched |= f
}

func render(matches []match) string {
	noun := "notes"
	if len(matches) == 1 {
		noun = "note"
	}

	var builder strings.Builder
	fmt.Fprintf(&builder, "I found %d %s related to your query:\n\n", len(matches), noun)
	for i, m := range matches {
		fmt.Fprintf(&builder, "%d. **%s** (%s, %s)\n",
			i+1, displayTitle(m.note), m.note.CreatedAt.UTC().Format(answerDateStyle), m.note.Type)
		switch {
		case m.matched&fieldSummary != 0:
			fmt.Fprintf(&builder, "   Summary: %s\n", *m.note.Summary)
		case m.matched&fieldContent != 0:
			fmt.Fprintf(&builder, "   Content: %s\n", preview(*m.note.Content))
		}
		builder.WriteString("\n")
	}
	return strings.TrimSpace(builder.String())
}

func displayTitle(note notes.Note) string {
	if note.Title != nil && *note.Title != "" {
		return *note.Title
	}
	return fmt.Sprintf("Untitled %s note", note.Type)
}

func preview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewRunes {
		return content
	}
	return string(runes[:previewRunes]) + "..."
}
