package audio

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/apperr"
	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/notes"
	"go.uber.org/zap"
)

const (
	opProcess          = "audio.process"
	opProcessorNew     = "audio.processor.new"
	reasonTranscribe   = "transcription_failed"
	reasonSummarize    = "summary_failed"
	reasonNoteMissing  = "note_not_found"
	reasonNoteUpdate   = "note_update_failed"
	reasonMarkFailed   = "mark_failed_failed"
	msgTranscription   = "transcription failed"
	msgSummary         = "summary generation failed"
	msgEmptyTranscript = "transcription returned empty result"
	msgEmptySummary    = "summary generation returned empty result"
)

var (
	errMissingJobs        = errors.New("job tracker is required")
	errMissingTranscriber = errors.New("transcriber is required")
	errMissingSummarizer  = errors.New("summarizer is required")
)

// Transcriber converts a stored audio blob into transcript text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// Summarizer condenses transcript text into bullet points.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// StatusListener is notified after every persisted job transition.
type StatusListener interface {
	JobStatusChanged(job AudioJob)
}

// JobTracker loads jobs and applies guarded status transitions.
type JobTracker interface {
	GetJob(ctx context.Context, id string) (AudioJob, error)
	TransitionStatus(ctx context.Context, id string, target JobStatus) (AudioJob, error)
}

// NoteWriter loads and partially updates notes.
type NoteWriter interface {
	GetNote(ctx context.Context, id string) (notes.Note, error)
	UpdateNote(ctx context.Context, id string, input notes.UpdateInput) (notes.Note, error)
}

// ProcessorConfig wires the pipeline. Listener and Logger are optional.
type ProcessorConfig struct {
	Jobs        JobTracker
	Notes       NoteWriter
	Transcriber Transcriber
	Summarizer  Summarizer
	Listener    StatusListener
	Logger      *zap.Logger
}

// Processor runs the transcribe-then-summarize pipeline for one job at a time.
type Processor struct {
	jobs        JobTracker
	notes       NoteWriter
	transcriber Transcriber
	summarizer  Summarizer
	listener    StatusListener
	logger      *zap.Logger
}

// NewProcessor validates cfg and returns a ready Processor.
func NewProcessor(cfg ProcessorConfig) (*Processor, error) {
	if cfg.Jobs == nil {
		return nil, apperr.Internal(opProcessorNew, "missing_jobs", errMissingJobs)
	}
	if cfg.Notes == nil {
		return nil, apperr.Internal(opProcessorNew, "missing_notes", errMissingNotes)
	}
	if cfg.Transcriber == nil {
		return nil, apperr.Internal(opProcessorNew, "missing_transcriber", errMissingTranscriber)
	}
	if cfg.Summarizer == nil {
		return nil, apperr.Internal(opProcessorNew, "missing_summarizer", errMissingSummarizer)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Processor{
		jobs:        cfg.Jobs,
		notes:       cfg.Notes,
		transcriber: cfg.Transcriber,
		summarizer:  cfg.Summarizer,
		listener:    cfg.Listener,
		logger:      logger,
	}, nil
}

// Process runs the pipeline for jobID synchronously and returns the final job.
// Only pending jobs are processed; any other status yields a conflict error and
// leaves the job untouched. Once started, the run ignores caller cancellation.
func (p *Processor) Process(ctx context.Context, jobID string) (AudioJob, error) {
	ctx = context.WithoutCancel(ctx)
	started := time.Now()

	job, err := p.jobs.GetJob(ctx, jobID)
	if err != nil {
		return AudioJob{}, err
	}

	job, err = p.jobs.TransitionStatus(ctx, job.ID, JobStatusProcessing)
	if err != nil {
		return job, err
	}
	p.notify(job)

	err = p.run(ctx, job)
	if err == nil {
		done, doneErr := p.jobs.TransitionStatus(ctx, job.ID, JobStatusDone)
		if doneErr == nil {
			p.notify(done)
			p.logger.Info("audio job processed",
				zap.String(fieldJobID, done.ID),
				zap.String(fieldNoteID, done.NoteID),
				zap.Duration("elapsed", time.Since(started)))
			return done, nil
		}
		err = doneErr
	}

	p.markFailed(ctx, job)
	p.logger.Warn("audio job failed",
		zap.String(fieldJobID, job.ID),
		zap.String(fieldNoteID, job.NoteID),
		zap.String("code", apperr.CodeOf(err)),
		zap.Duration("elapsed", time.Since(started)),
		zap.Error(err))
	return AudioJob{}, err
}

func (p *Processor) markFailed(ctx context.Context, job AudioJob) {
	failed, err := p.jobs.TransitionStatus(ctx, job.ID, JobStatusFailed)
	if err != nil {
		p.logger.Error("failed to mark audio job failed",
			zap.String("operation", opProcess),
			zap.String("reason", reasonMarkFailed),
			zap.String(fieldJobID, job.ID),
			zap.Error(err))
		return
	}
	p.notify(failed)
}

func (p *Processor) run(ctx context.Context, job AudioJob) error {
	if _, err := p.notes.GetNote(ctx, job.NoteID); err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return apperr.NotFound(opProcess, reasonNoteMissing, "note not found: "+job.NoteID)
		}
		return err
	}

	transcript, err := p.transcriber.Transcribe(ctx, job.AudioPath)
	if err != nil {
		return apperr.Provider(opProcess, reasonTranscribe, msgTranscription, err)
	}
	if strings.TrimSpace(transcript) == "" {
		return apperr.Provider(opProcess, reasonTranscribe, msgEmptyTranscript, nil)
	}

	summary, err := p.summarizer.Summarize(ctx, transcript)
	if err != nil {
		return apperr.Provider(opProcess, reasonSummarize, msgSummary, err)
	}
	if strings.TrimSpace(summary) == "" {
		return apperr.Provider(opProcess, reasonSummarize, msgEmptySummary, nil)
	}

	_, err = p.notes.UpdateNote(ctx, job.NoteID, notes.UpdateInput{
		Content: notes.Set(transcript),
		Summary: notes.Set(summary),
	})
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return apperr.NotFound(opProcess, reasonNoteMissing, "note not found: "+job.NoteID)
		}
		return apperr.New(apperr.KindInternal, opProcess, reasonNoteUpdate, "failed to save transcript", err)
	}
	return nil
}

func (p *Processor) notify(job AudioJob) {
	if p.listener == nil {
		return
	}
	p.listener.JobStatusChanged(job)
}
