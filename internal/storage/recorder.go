package storage

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/dyike/RightOfWay/models"
)

var ErrRecorderClosed = errors.New("recorder is closed")

// Archive is where finished negotiations end up.
type Archive interface {
	SaveNegotiation(ctx context.Context, rec models.NegotiationRecord) error
}

// Recorder writes negotiation records to an archive from a single
// background goroutine, so callers never wait on the database.
type Recorder struct {
	archive Archive

	mu     sync.RWMutex
	closed bool
	events chan models.NegotiationRecord
	once   sync.Once
	wg     sync.WaitGroup

	statsMu sync.Mutex
	saved   int
	failed  int
}

func NewRecorder(archive Archive, buffer int) (*Recorder, error) {
	if archive == nil {
		return nil, errors.New("archive is required")
	}
	if buffer <= 0 {
		buffer = 64
	}
	r := &Recorder{
		archive: archive,
		events:  make(chan models.NegotiationRecord, buffer),
	}
	r.wg.Add(1)
	go r.loop()
	return r, nil
}

func (r *Recorder) loop() {
	defer r.wg.Done()
	ctx := context.Background()
	for rec := range r.events {
		err := r.archive.SaveNegotiation(ctx, rec)
		r.statsMu.Lock()
		if err != nil {
			r.failed++
		} else {
			r.saved++
		}
		r.statsMu.Unlock()
		if err != nil {
			log.Printf("[Recorder] save %s: %v", rec.ID, err)
		}
	}
}

// SaveNegotiation queues rec. It blocks only while the queue is full.
func (r *Recorder) SaveNegotiation(ctx context.Context, rec models.NegotiationRecord) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrRecorderClosed
	}
	select {
	case r.events <- rec:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting records and waits until the queue is written.
func (r *Recorder) Close() {
	r.once.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.events)
		r.mu.Unlock()
		r.wg.Wait()
	})
}

// Stats reports how many records were written and how many failed.
func (r *Recorder) Stats() (saved, failed int) {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	return r.saved, r.failed
}
