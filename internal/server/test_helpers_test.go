package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/audio"
	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/chat"
	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/notes"
	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/storage"
	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type sequenceIDGenerator struct {
	mu     sync.Mutex
	prefix string
	next   int
}

func (g *sequenceIDGenerator) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("%s-%d", g.prefix, g.next), nil
}

type steppingClock struct {
	mu      sync.Mutex
	current time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(time.Second)
	return c.current
}

type stubTranscriber struct {
	mu   sync.Mutex
	text string
	err  error
}

func (s *stubTranscriber) Transcribe(_ context.Context, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text, s.err
}

type stubSummarizer struct {
	text string
	err  error
}

func (s *stubSummarizer) Summarize(_ context.Context, _ string) (string, error) {
	return s.text, s.err
}

type testServer struct {
	handler     http.Handler
	db          *gorm.DB
	fs          afero.Fs
	realtime    *RealtimeDispatcher
	transcriber *stubTranscriber
	summarizer  *stubSummarizer
}

type testServerOptions struct {
	maxUploadBytes int64
	heartbeat      time.Duration
	logger         *zap.Logger
}

func newTestServer(t *testing.T, options testServerOptions) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:voicenotes_server_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&notes.NoteRow{}, &audio.JobRow{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	clock := &steppingClock{current: time.Date(2024, time.March, 9, 12, 0, 0, 0, time.UTC)}
	notesService, err := notes.NewService(notes.ServiceConfig{
		Database:   db,
		Clock:      clock.Now,
		IDProvider: &sequenceIDGenerator{prefix: "note"},
	})
	if err != nil {
		t.Fatalf("failed to construct notes service: %v", err)
	}

	fs := afero.NewMemMapFs()
	blobs, err := storage.NewBlobStore(fs)
	if err != nil {
		t.Fatalf("failed to construct blob store: %v", err)
	}
	audioService, err := audio.NewService(audio.ServiceConfig{
		Database:   db,
		Notes:      notesService,
		Blobs:      blobs,
		Clock:      clock.Now,
		IDProvider: &sequenceIDGenerator{prefix: "job"},
	})
	if err != nil {
		t.Fatalf("failed to construct audio service: %v", err)
	}

	realtime := NewRealtimeDispatcher()
	transcriber := &stubTranscriber{text: "we agreed to ship the budget plan on friday"}
	summarizer := &stubSummarizer{text: "• Budget plan ships Friday"}
	processor, err := audio.NewProcessor(audio.ProcessorConfig{
		Jobs:        audioService,
		Notes:       notesService,
		Transcriber: transcriber,
		Summarizer:  summarizer,
		Listener:    realtime,
	})
	if err != nil {
		t.Fatalf("failed to construct processor: %v", err)
	}
	engine, err := chat.NewEngine(notesService, nil)
	if err != nil {
		t.Fatalf("failed to construct chat engine: %v", err)
	}

	maxUpload := options.maxUploadBytes
	if maxUpload == 0 {
		maxUpload = 25 << 20
	}
	handler, err := NewHTTPHandler(Dependencies{
		NotesService:      notesService,
		AudioService:      audioService,
		Processor:         processor,
		ChatEngine:        engine,
		Realtime:          realtime,
		Logger:            options.logger,
		MaxUploadBytes:    maxUpload,
		HeartbeatInterval: options.heartbeat,
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}

	return &testServer{
		handler:     handler,
		db:          db,
		fs:          fs,
		realtime:    realtime,
		transcriber: transcriber,
		summarizer:  summarizer,
	}
}

func (s *testServer) doJSON(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	request := httptest.NewRequest(method, path, reader)
	if body != "" {
		request.Header.Set("Content-Type", "application/json")
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

func (s *testServer) uploadAudio(t *testing.T, noteID, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, audioFormField, filename, content)
	request := httptest.NewRequest(http.MethodPost, "/notes/"+noteID+"/audio", body)
	request.Header.Set("Content-Type", contentType)
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

func (s *testServer) createNote(t *testing.T, body string) notes.Note {
	t.Helper()
	recorder := s.doJSON(t, http.MethodPost, "/notes", body)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("failed to create note: %d %s", recorder.Code, recorder.Body.String())
	}
	var note notes.Note
	decodeBody(t, recorder, &note)
	return note
}

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	buffer := &bytes.Buffer{}
	writer := multipart.NewWriter(buffer)
	part, err := writer.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}
	return buffer, writer.FormDataContentType()
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
}

func errorMessage(t *testing.T, recorder *httptest.ResponseRecorder) string {
	t.Helper()
	var payload map[string]any
	decodeBody(t, recorder, &payload)
	message, ok := payload["error"].(string)
	if !ok {
		t.Fatalf("expected error message in %s", recorder.Body.String())
	}
	if len(payload) != 1 {
		t.Fatalf("expected error body to carry only the message, got %s", recorder.Body.String())
	}
	return message
}

func stringValue(value *string) string {
	if value == nil {
		return "<nil>"
	}
	return *value
}

var errProviderDown = errors.New("provider unavailable")
