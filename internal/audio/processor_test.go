package audio

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/apperr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func uploadTestJob(t *testing.T, env *testEnv) AudioJob {
	t.Helper()
	job, err := env.audio.UploadAudio(context.Background(), env.noteID, Upload{Filename: "memo.webm", Body: strings.NewReader("audio")})
	if err != nil {
		t.Fatalf("failed to upload audio: %v", err)
	}
	return job
}

func TestProcessStoresTranscriptAndSummary(t *testing.T) {
	env := newTestEnv(t)
	job := uploadTestJob(t, env)
	transcriber := &fakeTranscriber{text: "we shipped the release"}
	summarizer := &fakeSummarizer{text: "• Release shipped"}
	listener := &recordingListener{}
	processor := env.newProcessor(t, transcriber, summarizer, listener)

	done, err := processor.Process(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if done.Status != JobStatusDone {
		t.Fatalf("expected done, got %s", done.Status)
	}
	if len(transcriber.calls) != 1 || transcriber.calls[0] != job.AudioPath {
		t.Fatalf("expected transcriber to read %s, got %v", job.AudioPath, transcriber.calls)
	}
	if len(summarizer.calls) != 1 || summarizer.calls[0] != "we shipped the release" {
		t.Fatalf("unexpected summarizer input %v", summarizer.calls)
	}

	note, err := env.notes.GetNote(context.Background(), env.noteID)
	if err != nil {
		t.Fatalf("failed to reload note: %v", err)
	}
	if stringValue(note.Content) != "we shipped the release" {
		t.Fatalf("unexpected content %s", stringValue(note.Content))
	}
	if stringValue(note.Summary) != "• Release shipped" {
		t.Fatalf("unexpected summary %s", stringValue(note.Summary))
	}
	if stringValue(note.Title) != "Standup" {
		t.Fatalf("title should be untouched, got %s", stringValue(note.Title))
	}

	statuses := listener.snapshot()
	if len(statuses) != 2 || statuses[0] != JobStatusProcessing || statuses[1] != JobStatusDone {
		t.Fatalf("unexpected status notifications %v", statuses)
	}
}

func TestProcessRejectsNonPendingJob(t *testing.T) {
	env := newTestEnv(t)
	job := uploadTestJob(t, env)
	transcriber := &fakeTranscriber{text: "hello"}
	processor := env.newProcessor(t, transcriber, &fakeSummarizer{text: "• hi"}, nil)

	if _, err := processor.Process(context.Background(), job.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := processor.Process(context.Background(), job.ID)
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if len(transcriber.calls) != 1 {
		t.Fatalf("expected a single transcription, got %d", len(transcriber.calls))
	}

	stored, err := env.audio.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.Status != JobStatusDone {
		t.Fatalf("expected job to stay done, got %s", stored.Status)
	}
}

func TestProcessConcurrentCallsRunOnce(t *testing.T) {
	env := newTestEnv(t)
	sqlDB, err := env.db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	job := uploadTestJob(t, env)
	transcriber := &fakeTranscriber{text: "hello team"}
	summarizer := &fakeSummarizer{text: "• Hello team"}
	processor := env.newProcessor(t, transcriber, summarizer, nil)

	const callers = 8
	results := make([]error, callers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for index := 0; index < callers; index++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			<-start
			_, results[index] = processor.Process(context.Background(), job.ID)
		}(index)
	}
	close(start)
	wg.Wait()

	succeeded, conflicts := 0, 0
	for _, result := range results {
		switch {
		case result == nil:
			succeeded++
		case apperr.Is(result, apperr.KindConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", result)
		}
	}
	if succeeded != 1 || conflicts != callers-1 {
		t.Fatalf("expected one success and %d conflicts, got %d and %d", callers-1, succeeded, conflicts)
	}
	if transcriber.callCount() != 1 || summarizer.callCount() != 1 {
		t.Fatalf("expected the pipeline to run once, got %d transcriptions and %d summaries",
			transcriber.callCount(), summarizer.callCount())
	}

	stored, err := env.audio.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.Status != JobStatusDone {
		t.Fatalf("expected done, got %s", stored.Status)
	}
}

func TestProcessMarksFailedWhenCompletionCannotBeSaved(t *testing.T) {
	env := newTestEnv(t)
	job := uploadTestJob(t, env)
	listener := &recordingListener{}
	processor, err := NewProcessor(ProcessorConfig{
		Jobs:        doneRejectingTracker{Service: env.audio},
		Notes:       env.notes,
		Transcriber: &fakeTranscriber{text: "hello"},
		Summarizer:  &fakeSummarizer{text: "• hi"},
		Listener:    listener,
	})
	if err != nil {
		t.Fatalf("failed to construct processor: %v", err)
	}

	_, err = processor.Process(context.Background(), job.ID)
	if err == nil || !strings.Contains(err.Error(), "database is locked") {
		t.Fatalf("expected completion error, got %v", err)
	}

	stored, err := env.audio.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.Status != JobStatusFailed {
		t.Fatalf("expected failed, got %s", stored.Status)
	}
	statuses := listener.snapshot()
	if len(statuses) != 2 || statuses[0] != JobStatusProcessing || statuses[1] != JobStatusFailed {
		t.Fatalf("unexpected status notifications %v", statuses)
	}
}

func TestProcessUnknownJob(t *testing.T) {
	env := newTestEnv(t)
	processor := env.newProcessor(t, &fakeTranscriber{}, &fakeSummarizer{}, nil)

	_, err := processor.Process(context.Background(), "job-missing")
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestProcessFailsWhenTranscriptIsEmpty(t *testing.T) {
	env := newTestEnv(t)
	job := uploadTestJob(t, env)
	summarizer := &fakeSummarizer{text: "• unused"}
	listener := &recordingListener{}
	processor := env.newProcessor(t, &fakeTranscriber{text: "   "}, summarizer, listener)

	_, err := processor.Process(context.Background(), job.ID)
	if !apperr.Is(err, apperr.KindProvider) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if apperr.CodeOf(err) != "audio.process.transcription_failed" {
		t.Fatalf("unexpected code %s", apperr.CodeOf(err))
	}
	if len(summarizer.calls) != 0 {
		t.Fatalf("summarizer should not run on an empty transcript")
	}

	stored, err := env.audio.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.Status != JobStatusFailed {
		t.Fatalf("expected failed, got %s", stored.Status)
	}

	note, err := env.notes.GetNote(context.Background(), env.noteID)
	if err != nil {
		t.Fatalf("failed to reload note: %v", err)
	}
	if note.Content != nil || note.Summary != nil {
		t.Fatalf("note should be unchanged, got content=%s summary=%s", stringValue(note.Content), stringValue(note.Summary))
	}

	statuses := listener.snapshot()
	if len(statuses) != 2 || statuses[1] != JobStatusFailed {
		t.Fatalf("unexpected status notifications %v", statuses)
	}
}

func TestProcessFailsWhenSummarizerErrors(t *testing.T) {
	env := newTestEnv(t)
	job := uploadTestJob(t, env)
	core, logs := observer.New(zapcore.DebugLevel)
	processor, err := NewProcessor(ProcessorConfig{
		Jobs:        env.audio,
		Notes:       env.notes,
		Transcriber: &fakeTranscriber{text: "meeting notes"},
		Summarizer:  &fakeSummarizer{err: errors.New("quota exceeded")},
		Logger:      zap.New(core),
	})
	if err != nil {
		t.Fatalf("failed to construct processor: %v", err)
	}

	_, err = processor.Process(context.Background(), job.ID)
	if apperr.CodeOf(err) != "audio.process.summary_failed" {
		t.Fatalf("unexpected error %v", err)
	}
	if !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("expected provider cause in message, got %q", err.Error())
	}

	stored, _ := env.audio.GetJob(context.Background(), job.ID)
	if stored.Status != JobStatusFailed {
		t.Fatalf("expected failed, got %s", stored.Status)
	}
	note, _ := env.notes.GetNote(context.Background(), env.noteID)
	if note.Content != nil {
		t.Fatalf("transcript must not be saved when the summary fails")
	}

	entries := logs.FilterMessage("audio job failed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one failure log entry, got %d", len(entries))
	}
	if entries[0].ContextMap()["job_id"] != job.ID {
		t.Fatalf("expected job_id field, got %v", entries[0].ContextMap())
	}
}

func TestProcessFailsWhenNoteWasDeleted(t *testing.T) {
	env := newTestEnv(t)
	job := uploadTestJob(t, env)
	transcriber := &fakeTranscriber{text: "hello"}
	processor := env.newProcessor(t, transcriber, &fakeSummarizer{text: "• hi"}, nil)

	if err := env.notes.DeleteNote(context.Background(), env.noteID); err != nil {
		t.Fatalf("failed to delete note: %v", err)
	}

	_, err := processor.Process(context.Background(), job.ID)
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if len(transcriber.calls) != 0 {
		t.Fatalf("transcriber should not run for a deleted note")
	}
	stored, _ := env.audio.GetJob(context.Background(), job.ID)
	if stored.Status != JobStatusFailed {
		t.Fatalf("expected failed, got %s", stored.Status)
	}
}

func TestProcessIgnoresCallerCancellation(t *testing.T) {
	env := newTestEnv(t)
	job := uploadTestJob(t, env)
	processor := env.newProcessor(t, &fakeTranscriber{text: "hello"}, &fakeSummarizer{text: "• hi"}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done, err := processor.Process(ctx, job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if done.Status != JobStatusDone {
		t.Fatalf("expected done, got %s", done.Status)
	}
}

func TestNewProcessorValidatesDependencies(t *testing.T) {
	env := newTestEnv(t)
	if _, err := NewProcessor(ProcessorConfig{Notes: env.notes, Transcriber: &fakeTranscriber{}, Summarizer: &fakeSummarizer{}}); err == nil {
		t.Fatalf("expected error without job tracker")
	}
	if _, err := NewProcessor(ProcessorConfig{Jobs: env.audio, Notes: env.notes, Summarizer: &fakeSummarizer{}}); err == nil {
		t.Fatalf("expected error without transcriber")
	}
}
