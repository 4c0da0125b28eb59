package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/notes"
	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/storage"
	sqlite "github.com/glebarez/sqlite"
	"github.com/spf13/afero"
	"gorm.io/gorm"
)

type staticIDGenerator struct {
	ids   []string
	index int
}

func (g *staticIDGenerator) NewID() (string, error) {
	if g.index >= len(g.ids) {
		return "", errors.New("exhausted ids")
	}
	id := g.ids[g.index]
	g.index++
	return id, nil
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

type fakeTranscriber struct {
	mu    sync.Mutex
	text  string
	err   error
	calls []string
}

func (f *fakeTranscriber) Transcribe(_ context.Context, audioPath string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, audioPath)
	return f.text, f.err
}

func (f *fakeTranscriber) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeSummarizer struct {
	mu    sync.Mutex
	text  string
	err   error
	calls []string
}

func (f *fakeSummarizer) Summarize(_ context.Context, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, text)
	return f.text, f.err
}

func (f *fakeSummarizer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// doneRejectingTracker fails the final transition to done and delegates everything else.
type doneRejectingTracker struct {
	*Service
}

func (d doneRejectingTracker) TransitionStatus(ctx context.Context, id string, target JobStatus) (AudioJob, error) {
	if target == JobStatusDone {
		return AudioJob{}, errors.New("database is locked")
	}
	return d.Service.TransitionStatus(ctx, id, target)
}

type recordingListener struct {
	mu       sync.Mutex
	statuses []JobStatus
}

func (l *recordingListener) JobStatusChanged(job AudioJob) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.statuses = append(l.statuses, job.Status)
}

func (l *recordingListener) snapshot() []JobStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]JobStatus(nil), l.statuses...)
}

type testEnv struct {
	db     *gorm.DB
	fs     afero.Fs
	notes  *notes.Service
	audio  *Service
	clock  *steppingClock
	blobs  *storage.BlobStore
	noteID string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:voicenotes_audio_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&notes.NoteRow{}, &JobRow{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	clock := &steppingClock{current: time.Unix(1700000000, 0).UTC()}
	notesService, err := notes.NewService(notes.ServiceConfig{
		Database:   db,
		Clock:      clock.Now,
		IDProvider: &staticIDGenerator{ids: []string{"note-1", "note-2", "note-3"}},
	})
	if err != nil {
		t.Fatalf("failed to construct notes service: %v", err)
	}

	fs := afero.NewMemMapFs()
	blobs, err := storage.NewBlobStore(fs)
	if err != nil {
		t.Fatalf("failed to construct blob store: %v", err)
	}

	audioService, err := NewService(ServiceConfig{
		Database:   db,
		Notes:      notesService,
		Blobs:      blobs,
		Clock:      clock.Now,
		IDProvider: &staticIDGenerator{ids: []string{"job-1", "job-2", "job-3"}},
	})
	if err != nil {
		t.Fatalf("failed to construct audio service: %v", err)
	}

	note, err := notesService.CreateNote(context.Background(), notes.CreateInput{Type: "voice", Title: "Standup"})
	if err != nil {
		t.Fatalf("failed to seed note: %v", err)
	}

	return &testEnv{
		db:     db,
		fs:     fs,
		notes:  notesService,
		audio:  audioService,
		clock:  clock,
		blobs:  blobs,
		noteID: note.ID,
	}
}

func (e *testEnv) newProcessor(t *testing.T, transcriber Transcriber, summarizer Summarizer, listener StatusListener) *Processor {
	t.Helper()
	processor, err := NewProcessor(ProcessorConfig{
		Jobs:        e.audio,
		Notes:       e.notes,
		Transcriber: transcriber,
		Summarizer:  summarizer,
		Listener:    listener,
	})
	if err != nil {
		t.Fatalf("failed to construct processor: %v", err)
	}
	return processor
}

func stringValue(value *string) string {
	if value == nil {
		return "<nil>"
	}
	return *value
}
