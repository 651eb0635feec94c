package services

import (
	"context"
	"errors"
	"log"
	"time"

	"emergency-backend/internal/models"
	"emergency-backend/internal/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AlertStore is the durable record of alerts. UpdateStatusIf must apply the
// field set atomically, conditioned on the current status matching
// expectedStatus, and report a miss as repository.ErrNotFound.
type AlertStore interface {
	Insert(ctx context.Context, alert *models.Alert) (*models.Alert, error)
	FindByID(ctx context.Context, id string) (*models.Alert, error)
	UpdateStatusIf(ctx context.Context, id string, expectedStatus string, set bson.M) (*models.Alert, error)
	FindNearby(ctx context.Context, center models.GeoPoint, radiusMeters float64, excludeSender primitive.ObjectID, statuses []string) ([]*models.Alert, error)
	FindForUser(ctx context.Context, userID primitive.ObjectID, f repository.UserAlertFilter) ([]*models.Alert, error)
	CountForUser(ctx context.Context, userID primitive.ObjectID, f repository.UserAlertFilter) (int64, error)
}

// Directory resolves user identities and their current locations.
type Directory interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindWithinRadius(ctx context.Context, center models.GeoPoint, radiusMeters float64, excludeID primitive.ObjectID) ([]models.UserRef, error)
}

// Notifier dispatches alert events. Implementations must not block the
// caller; delivery failures are theirs to log, never to return.
type Notifier interface {
	AlertCreated(alert *models.Alert)
	AlertAccepted(alert *models.Alert)
	StatusChanged(alert *models.Alert, recipient primitive.ObjectID)
}

// Coordinator is the single authority over alert creation and lifecycle
// transitions. All status changes go through its conditional updates; no
// other component writes alert state.
type Coordinator struct {
	store        AlertStore
	directory    Directory
	notifier     Notifier
	radiusMeters float64
}

// DefaultFanoutRadiusMeters is how far around an alert the directory is
// searched for recipients.
const DefaultFanoutRadiusMeters = 2000

func NewCoordinator(store AlertStore, directory Directory, notifier Notifier, radiusMeters float64) *Coordinator {
	if radiusMeters <= 0 {
		radiusMeters = DefaultFanoutRadiusMeters
	}
	return &Coordinator{
		store:        store,
		directory:    directory,
		notifier:     notifier,
		radiusMeters: radiusMeters,
	}
}

type CreateAlertRequest struct {
	Category          string    `json:"category" validate:"required,oneof=health accident fire security natural_disaster other"`
	CustomDescription string    `json:"customDescription" validate:"max=150"`
	Severity          string    `json:"severity" validate:"omitempty,oneof=low medium high critical"`
	Coordinates       []float64 `json:"coordinates" validate:"required,len=2"`
	Address           string    `json:"address"`
}

// Create validates the report, captures the notified-recipient snapshot,
// persists the alert in pending status and hands it to the fan-out engine.
// It returns once the store write has succeeded; delivery happens afterward.
func (c *Coordinator) Create(ctx context.Context, senderID string, req *CreateAlertRequest) (*models.Alert, error) {
	switch req.Category {
	case models.CategoryHealth, models.CategoryAccident, models.CategoryFire,
		models.CategorySecurity, models.CategoryNaturalDisaster, models.CategoryOther:
	default:
		return nil, newError(KindValidation, "unknown alert category")
	}
	if req.Category == models.CategoryOther && req.CustomDescription == "" {
		return nil, newError(KindValidation, "description is required for category 'other'")
	}
	severity := req.Severity
	switch severity {
	case "":
		severity = models.SeverityMedium
	case models.SeverityLow, models.SeverityMedium, models.SeverityHigh, models.SeverityCritical:
	default:
		return nil, newError(KindValidation, "unknown severity")
	}
	if len(req.Coordinates) != 2 {
		return nil, newError(KindValidation, "coordinates must be a [longitude, latitude] pair")
	}

	point := models.NewGeoPoint(req.Coordinates[0], req.Coordinates[1])
	if !point.Valid() {
		return nil, newError(KindValidation, "coordinates out of range")
	}

	senderOID, err := primitive.ObjectIDFromHex(senderID)
	if err != nil {
		return nil, newError(KindValidation, "invalid sender id")
	}

	if _, err := c.directory.FindByID(ctx, senderID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, newError(KindNotFound, "sender not found in directory")
		}
		return nil, wrapDependency("directory lookup failed", err)
	}

	// Recipient snapshot is captured once, here. A directory outage degrades
	// to an empty set rather than failing the alert.
	var notified []primitive.ObjectID
	recipients, err := c.directory.FindWithinRadius(ctx, point, c.radiusMeters, senderOID)
	if err != nil {
		log.Printf("directory radius query failed, alert will not be fanned out: %v", err)
	} else {
		notified = make([]primitive.ObjectID, 0, len(recipients))
		for _, ref := range recipients {
			notified = append(notified, ref.ID)
		}
	}
	if notified == nil {
		notified = []primitive.ObjectID{}
	}

	alert := &models.Alert{
		SenderID:          senderOID,
		Category:          req.Category,
		CustomDescription: req.CustomDescription,
		Severity:          severity,
		Location:          point,
		Address:           req.Address,
		Status:            models.StatusPending,
		NotifiedUserIDs:   notified,
		CreatedAt:         time.Now(),
	}

	created, err := c.store.Insert(ctx, alert)
	if err != nil {
		return nil, wrapDependency("failed to persist alert", err)
	}

	c.notifier.AlertCreated(created)
	return created, nil
}

// Accept applies the pending -> accepted transition with at-most-one-winner
// semantics. The precondition checks on the read are advisory; the
// conditional update on status == pending is what closes the race.
func (c *Coordinator) Accept(ctx context.Context, alertID, responderID string) (*models.Alert, error) {
	responderOID, err := primitive.ObjectIDFromHex(responderID)
	if err != nil {
		return nil, newError(KindValidation, "invalid responder id")
	}

	alert, err := c.store.FindByID(ctx, alertID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(KindNotFound, "alert not found")
		}
		return nil, wrapDependency("failed to load alert", err)
	}

	if alert.SenderID == responderOID {
		return nil, newError(KindValidation, "cannot accept own alert")
	}
	if alert.Status != models.StatusPending {
		return nil, newError(KindInvalidState, "alert is already accepted or closed")
	}
	if !alert.WasNotified(responderOID) {
		return nil, newError(KindAuthorization, "you were not notified about this alert")
	}

	now := time.Now()
	updated, err := c.store.UpdateStatusIf(ctx, alertID, models.StatusPending, bson.M{
		"status":      models.StatusAccepted,
		"accepted_by": responderOID,
		"accepted_at": now,
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Another responder won the race between our read and the update.
			return nil, newError(KindInvalidState, "alert is already accepted or closed")
		}
		return nil, wrapDependency("failed to accept alert", err)
	}

	c.notifier.AlertAccepted(updated)
	return updated, nil
}

// UpdateStatus transitions the alert per the lifecycle graph. Cancellation
// is the sender's alone; resolution is open to the sender or the accepted
// responder. The counterpart is notified, never the whole radius.
func (c *Coordinator) UpdateStatus(ctx context.Context, alertID, actorID, newStatus string) (*models.Alert, error) {
	actorOID, err := primitive.ObjectIDFromHex(actorID)
	if err != nil {
		return nil, newError(KindValidation, "invalid actor id")
	}
	if !models.ValidStatus(newStatus) {
		return nil, newError(KindValidation, "unknown status")
	}
	// Entering accepted goes through Accept and its arbitration; pending is
	// never re-entered. Status updates only close an alert out.
	if newStatus != models.StatusResolved && newStatus != models.StatusCancelled {
		return nil, newError(KindValidation, "status can only be updated to resolved or cancelled")
	}

	alert, err := c.store.FindByID(ctx, alertID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(KindNotFound, "alert not found")
		}
		return nil, wrapDependency("failed to load alert", err)
	}

	isSender := alert.SenderID == actorOID
	isResponder := alert.AcceptedBy != nil && *alert.AcceptedBy == actorOID
	if !isSender && !isResponder {
		return nil, newError(KindAuthorization, "only the sender or the accepted responder may update this alert")
	}
	if newStatus == models.StatusCancelled && !isSender {
		return nil, newError(KindAuthorization, "only the sender may cancel an alert")
	}
	if !models.CanTransition(alert.Status, newStatus) {
		return nil, newError(KindInvalidState, "cannot transition from "+alert.Status+" to "+newStatus)
	}

	set := bson.M{"status": newStatus}
	if newStatus == models.StatusResolved {
		set["resolved_at"] = time.Now()
	}

	updated, err := c.store.UpdateStatusIf(ctx, alertID, alert.Status, set)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(KindInvalidState, "alert state changed concurrently")
		}
		return nil, wrapDependency("failed to update alert status", err)
	}

	if recipient, ok := updated.Counterpart(actorOID); ok {
		c.notifier.StatusChanged(updated, recipient)
	}
	return updated, nil
}

// Get returns the alert to its sender, its accepted responder, or to anyone
// while it is still pending (pending alerts are discoverable).
func (c *Coordinator) Get(ctx context.Context, alertID, requesterID string) (*models.Alert, error) {
	requesterOID, err := primitive.ObjectIDFromHex(requesterID)
	if err != nil {
		return nil, newError(KindValidation, "invalid requester id")
	}

	alert, err := c.store.FindByID(ctx, alertID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(KindNotFound, "alert not found")
		}
		return nil, wrapDependency("failed to load alert", err)
	}

	if alert.Status == models.StatusPending ||
		alert.SenderID == requesterOID ||
		(alert.AcceptedBy != nil && *alert.AcceptedBy == requesterOID) {
		return alert, nil
	}
	return nil, newError(KindAuthorization, "not authorized to view this alert")
}

// ListNearby returns open alerts around the requester's current location,
// newest first, excluding the requester's own.
func (c *Coordinator) ListNearby(ctx context.Context, requesterID string, radiusMeters float64) ([]*models.Alert, error) {
	requesterOID, err := primitive.ObjectIDFromHex(requesterID)
	if err != nil {
		return nil, newError(KindValidation, "invalid requester id")
	}

	user, err := c.directory.FindByID(ctx, requesterID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, newError(KindNotFound, "requester not found in directory")
		}
		return nil, wrapDependency("directory lookup failed", err)
	}
	if !user.Location.Valid() {
		return nil, newError(KindNotFound, "requester location unknown")
	}

	if radiusMeters <= 0 {
		radiusMeters = c.radiusMeters
	}

	alerts, err := c.store.FindNearby(ctx, user.Location, radiusMeters, requesterOID,
		[]string{models.StatusPending, models.StatusAccepted})
	if err != nil {
		return nil, wrapDependency("failed to query nearby alerts", err)
	}
	return alerts, nil
}

// ListForUser returns the user's alert history (sent or responded),
// optionally filtered and paginated.
func (c *Coordinator) ListForUser(ctx context.Context, userID string, f repository.UserAlertFilter) ([]*models.Alert, int64, error) {
	userOID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, 0, newError(KindValidation, "invalid user id")
	}
	if f.Status != "" && !models.ValidStatus(f.Status) {
		return nil, 0, newError(KindValidation, "unknown status filter")
	}

	alerts, err := c.store.FindForUser(ctx, userOID, f)
	if err != nil {
		return nil, 0, wrapDependency("failed to query user alerts", err)
	}
	total, err := c.store.CountForUser(ctx, userOID, f)
	if err != nil {
		return nil, 0, wrapDependency("failed to count user alerts", err)
	}
	return alerts, total, nil
}

// RouteData is what an accepted responder needs to reach the scene.
type RouteData struct {
	Destination struct {
		Coordinates []float64 `json:"coordinates"`
		Address     string    `json:"address,omitempty"`
	} `json:"destination"`
	Alert struct {
		Category    string    `json:"category"`
		Severity    string    `json:"severity"`
		Description string    `json:"description"`
		CreatedAt   time.Time `json:"createdAt"`
	} `json:"alert"`
	Contact struct {
		Name  string `json:"name"`
		Phone string `json:"phone"`
	} `json:"contact"`
}

// GetRoute returns destination and sender contact details to the accepted
// responder only.
func (c *Coordinator) GetRoute(ctx context.Context, alertID, requesterID string) (*RouteData, error) {
	requesterOID, err := primitive.ObjectIDFromHex(requesterID)
	if err != nil {
		return nil, newError(KindValidation, "invalid requester id")
	}

	alert, err := c.store.FindByID(ctx, alertID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(KindNotFound, "alert not found")
		}
		return nil, wrapDependency("failed to load alert", err)
	}

	if alert.AcceptedBy == nil || *alert.AcceptedBy != requesterOID {
		return nil, newError(KindAuthorization, "accept the alert first to get route data")
	}

	sender, err := c.directory.FindByID(ctx, alert.SenderID.Hex())
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, newError(KindNotFound, "sender not found in directory")
		}
		return nil, wrapDependency("directory lookup failed", err)
	}

	route := &RouteData{}
	route.Destination.Coordinates = alert.Location.Coordinates
	route.Destination.Address = alert.Address
	route.Alert.Category = alert.Category
	route.Alert.Severity = alert.Severity
	route.Alert.Description = alert.Description()
	route.Alert.CreatedAt = alert.CreatedAt
	route.Contact.Name = sender.FullName
	route.Contact.Phone = sender.ContactNumber
	return route, nil
}
