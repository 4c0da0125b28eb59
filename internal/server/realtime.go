package server

import (
	"context"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/audio"
)

const (
	RealtimeEventJobStatus = "job-status"
	realtimeEventHeartbeat = "heartbeat"
	realtimeSourceBackend  = "voicenotes-backend"
)

type RealtimeMessage struct {
	NoteID    string
	EventType string
	Job       audio.AudioJob
	Timestamp time.Time
}

// RealtimeDispatcher fans job status changes out to subscribers of the owning note.
// Slow subscribers miss messages rather than block publishers.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
	clock       func() time.Time
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[string]map[int64]*realtimeSubscriber),
		bufferSize:  16,
		clock:       time.Now,
	}
}

func (d *RealtimeDispatcher) Subscribe(ctx context.Context, noteID string) (<-chan RealtimeMessage, func()) {
	if noteID == "" {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(noteID, subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(noteID, subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.NoteID == "" || message.EventType == "" {
		return
	}
	d.mu.RLock()
	subscribers := d.subscribers[message.NoteID]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*realtimeSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// JobStatusChanged publishes the job under its note.
func (d *RealtimeDispatcher) JobStatusChanged(job audio.AudioJob) {
	d.Publish(RealtimeMessage{
		NoteID:    job.NoteID,
		EventType: RealtimeEventJobStatus,
		Job:       job,
		Timestamp: d.clock().UTC(),
	})
}

// SubscriberCount reports the number of open subscriptions for the note.
func (d *RealtimeDispatcher) SubscriberCount(noteID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[noteID])
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(noteID string, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[noteID]; !ok {
		d.subscribers[noteID] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[noteID][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(noteID string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[noteID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, noteID)
		}
	}
	d.mu.Unlock()
}
