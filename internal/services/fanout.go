package services

import (
	"log"
	"sync"
	"time"

	"emergency-backend/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Push event names.
const (
	EventAlertCreated  = "alert.created"
	EventAlertAccepted = "alert.accepted"
	EventStatusChanged = "alert.status_changed"
)

// PushSender delivers a single event to a single user, best-effort. An
// error means that user was not notified; it is never retried.
type PushSender interface {
	Send(userID string, event string, payload interface{}) error
}

type dispatch struct {
	event      string
	recipients []primitive.ObjectID
	payload    interface{}
}

// FanoutEngine resolves alert events into per-recipient sends, decoupled
// from the coordinator's critical path by a buffered job channel and a
// fixed worker pool. A full channel drops the dispatch rather than block
// the caller; each recipient's delivery is independent of the others.
type FanoutEngine struct {
	sender  PushSender
	jobs    chan dispatch
	workers int
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	stopped bool
}

func NewFanoutEngine(sender PushSender, workers, buffer int) *FanoutEngine {
	if workers < 1 {
		workers = 4
	}
	if buffer < 1 {
		buffer = 256
	}
	return &FanoutEngine{
		sender:  sender,
		jobs:    make(chan dispatch, buffer),
		workers: workers,
	}
}

// Start launches the worker pool.
func (e *FanoutEngine) Start() {
	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}
	log.Printf("Fan-out engine started with %d workers", e.workers)
}

// Stop drains queued dispatches and waits for the workers to exit. Events
// arriving after Stop are dropped, not sent on the closed channel.
func (e *FanoutEngine) Stop() {
	e.once.Do(func() {
		e.mu.Lock()
		e.stopped = true
		e.mu.Unlock()
		close(e.jobs)
	})
	e.wg.Wait()
	log.Println("Fan-out engine stopped")
}

func (e *FanoutEngine) worker() {
	defer e.wg.Done()
	for d := range e.jobs {
		for _, recipient := range d.recipients {
			if err := e.sender.Send(recipient.Hex(), d.event, d.payload); err != nil {
				log.Printf("Failed to deliver %s to %s: %v", d.event, recipient.Hex(), err)
			}
		}
	}
}

func (e *FanoutEngine) enqueue(d dispatch) {
	// The read lock pins the channel open: Stop sets stopped under the write
	// lock before closing jobs.
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.stopped {
		log.Printf("Fan-out engine stopped, dropping %s for %d recipients", d.event, len(d.recipients))
		return
	}
	select {
	case e.jobs <- d:
	default:
		log.Printf("Fan-out queue full, dropping %s for %d recipients", d.event, len(d.recipients))
	}
}

// AlertCreated fans the new alert out to its notified-recipient snapshot.
func (e *FanoutEngine) AlertCreated(alert *models.Alert) {
	if len(alert.NotifiedUserIDs) == 0 {
		return
	}
	e.enqueue(dispatch{
		event:      EventAlertCreated,
		recipients: alert.NotifiedUserIDs,
		payload:    alertPayload(alert),
	})
}

// AlertAccepted tells the sender, and only the sender, who accepted.
func (e *FanoutEngine) AlertAccepted(alert *models.Alert) {
	e.enqueue(dispatch{
		event:      EventAlertAccepted,
		recipients: []primitive.ObjectID{alert.SenderID},
		payload:    alertPayload(alert),
	})
}

// StatusChanged notifies the counterpart of a lifecycle transition.
func (e *FanoutEngine) StatusChanged(alert *models.Alert, recipient primitive.ObjectID) {
	e.enqueue(dispatch{
		event:      EventStatusChanged,
		recipients: []primitive.ObjectID{recipient},
		payload:    alertPayload(alert),
	})
}

func alertPayload(alert *models.Alert) map[string]interface{} {
	payload := map[string]interface{}{
		"alertId":     alert.ID.Hex(),
		"senderId":    alert.SenderID.Hex(),
		"category":    alert.Category,
		"severity":    alert.Severity,
		"description": alert.Description(),
		"status":      alert.Status,
		"location": map[string]interface{}{
			"coordinates": alert.Location.Coordinates,
			"address":     alert.Address,
		},
		"createdAt": alert.CreatedAt,
		"timestamp": time.Now(),
	}
	if alert.AcceptedBy != nil {
		payload["acceptedBy"] = alert.AcceptedBy.Hex()
	}
	return payload
}
