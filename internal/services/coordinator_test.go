package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"emergency-backend/internal/models"
	"emergency-backend/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// fakeStore is an in-memory AlertStore. UpdateStatusIf takes the lock for
// the whole check-and-set, mirroring the atomicity the Mongo adapter gets
// from FindOneAndUpdate.
type fakeStore struct {
	mu     sync.Mutex
	alerts map[string]*models.Alert

	insertErr error
	findErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{alerts: make(map[string]*models.Alert)}
}

func (s *fakeStore) Insert(ctx context.Context, alert *models.Alert) (*models.Alert, error) {
	if s.insertErr != nil {
		return nil, s.insertErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	alert.ID = primitive.NewObjectID()
	cp := *alert
	s.alerts[alert.ID.Hex()] = &cp
	return alert, nil
}

func (s *fakeStore) FindByID(ctx context.Context, id string) (*models.Alert, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	alert, ok := s.alerts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *alert
	return &cp, nil
}

func (s *fakeStore) UpdateStatusIf(ctx context.Context, id string, expectedStatus string, set bson.M) (*models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	alert, ok := s.alerts[id]
	if !ok || alert.Status != expectedStatus {
		return nil, repository.ErrNotFound
	}

	if status, ok := set["status"].(string); ok {
		alert.Status = status
	}
	if acceptedBy, ok := set["accepted_by"].(primitive.ObjectID); ok {
		alert.AcceptedBy = &acceptedBy
	}
	if acceptedAt, ok := set["accepted_at"].(time.Time); ok {
		alert.AcceptedAt = &acceptedAt
	}
	if resolvedAt, ok := set["resolved_at"].(time.Time); ok {
		alert.ResolvedAt = &resolvedAt
	}

	cp := *alert
	return &cp, nil
}

func (s *fakeStore) FindNearby(ctx context.Context, center models.GeoPoint, radiusMeters float64, excludeSender primitive.ObjectID, statuses []string) ([]*models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*models.Alert
	for _, alert := range s.alerts {
		if alert.SenderID == excludeSender {
			continue
		}
		for _, status := range statuses {
			if alert.Status == status {
				cp := *alert
				result = append(result, &cp)
				break
			}
		}
	}
	return result, nil
}

func (s *fakeStore) FindForUser(ctx context.Context, userID primitive.ObjectID, f repository.UserAlertFilter) ([]*models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*models.Alert
	for _, alert := range s.alerts {
		if alert.SenderID != userID && (alert.AcceptedBy == nil || *alert.AcceptedBy != userID) {
			continue
		}
		if f.Status != "" && alert.Status != f.Status {
			continue
		}
		if f.Category != "" && alert.Category != f.Category {
			continue
		}
		cp := *alert
		result = append(result, &cp)
	}
	return result, nil
}

func (s *fakeStore) CountForUser(ctx context.Context, userID primitive.ObjectID, f repository.UserAlertFilter) (int64, error) {
	alerts, _ := s.FindForUser(ctx, userID, f)
	return int64(len(alerts)), nil
}

// fakeDirectory serves a fixed set of users.
type fakeDirectory struct {
	users     map[string]*models.User
	nearby    []models.UserRef
	radiusErr error
	lookupErr error
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{users: make(map[string]*models.User)}
}

func (d *fakeDirectory) FindByID(ctx context.Context, id string) (*models.User, error) {
	if d.lookupErr != nil {
		return nil, d.lookupErr
	}
	user, ok := d.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return user, nil
}

func (d *fakeDirectory) FindWithinRadius(ctx context.Context, center models.GeoPoint, radiusMeters float64, excludeID primitive.ObjectID) ([]models.UserRef, error) {
	if d.radiusErr != nil {
		return nil, d.radiusErr
	}
	return d.nearby, nil
}

// fakeNotifier records dispatches.
type fakeNotifier struct {
	mu       sync.Mutex
	created  []*models.Alert
	accepted []*models.Alert
	changed  []primitive.ObjectID
}

func (n *fakeNotifier) AlertCreated(alert *models.Alert) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.created = append(n.created, alert)
}

func (n *fakeNotifier) AlertAccepted(alert *models.Alert) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.accepted = append(n.accepted, alert)
}

func (n *fakeNotifier) StatusChanged(alert *models.Alert, recipient primitive.ObjectID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changed = append(n.changed, recipient)
}

type fixture struct {
	store       *fakeStore
	directory   *fakeDirectory
	notifier    *fakeNotifier
	coordinator *Coordinator

	sender     primitive.ObjectID
	responder1 primitive.ObjectID
	responder2 primitive.ObjectID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:      newFakeStore(),
		directory:  newFakeDirectory(),
		notifier:   &fakeNotifier{},
		sender:     primitive.NewObjectID(),
		responder1: primitive.NewObjectID(),
		responder2: primitive.NewObjectID(),
	}

	f.directory.users[f.sender.Hex()] = &models.User{
		ID:       f.sender,
		FullName: "Sender",
		Location: models.NewGeoPoint(77.10, 28.60),
	}
	f.directory.nearby = []models.UserRef{
		{ID: f.responder1, FullName: "Responder One"},
		{ID: f.responder2, FullName: "Responder Two"},
	}

	f.coordinator = NewCoordinator(f.store, f.directory, f.notifier, 2000)
	return f
}

func (f *fixture) createAlert(t *testing.T) *models.Alert {
	t.Helper()
	alert, err := f.coordinator.Create(context.Background(), f.sender.Hex(), &CreateAlertRequest{
		Category:    models.CategoryFire,
		Severity:    models.SeverityCritical,
		Coordinates: []float64{77.10, 28.60},
	})
	require.NoError(t, err)
	return alert
}

func TestCreate_PendingWithSnapshot(t *testing.T) {
	f := newFixture(t)

	alert := f.createAlert(t)

	assert.Equal(t, models.StatusPending, alert.Status)
	assert.Equal(t, f.sender, alert.SenderID)
	assert.Equal(t, []primitive.ObjectID{f.responder1, f.responder2}, alert.NotifiedUserIDs)
	assert.False(t, alert.CreatedAt.IsZero())
	assert.Nil(t, alert.AcceptedBy)

	require.Len(t, f.notifier.created, 1)
	assert.Equal(t, alert.ID, f.notifier.created[0].ID)
}

func TestCreate_DefaultsSeverityToMedium(t *testing.T) {
	f := newFixture(t)

	alert, err := f.coordinator.Create(context.Background(), f.sender.Hex(), &CreateAlertRequest{
		Category:    models.CategoryHealth,
		Coordinates: []float64{77.10, 28.60},
	})
	require.NoError(t, err)
	assert.Equal(t, models.SeverityMedium, alert.Severity)
}

func TestCreate_OtherRequiresDescription(t *testing.T) {
	f := newFixture(t)

	_, err := f.coordinator.Create(context.Background(), f.sender.Hex(), &CreateAlertRequest{
		Category:    models.CategoryOther,
		Coordinates: []float64{77.10, 28.60},
	})
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))

	alert, err := f.coordinator.Create(context.Background(), f.sender.Hex(), &CreateAlertRequest{
		Category:          models.CategoryOther,
		CustomDescription: "gas leak in basement",
		Coordinates:       []float64{77.10, 28.60},
	})
	require.NoError(t, err)
	assert.Equal(t, "gas leak in basement", alert.Description())
}

func TestCreate_RejectsBadInput(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name string
		req  CreateAlertRequest
	}{
		{"unknown category", CreateAlertRequest{Category: "flood", Coordinates: []float64{77, 28}}},
		{"unknown severity", CreateAlertRequest{Category: models.CategoryFire, Severity: "urgent", Coordinates: []float64{77, 28}}},
		{"latitude out of range", CreateAlertRequest{Category: models.CategoryFire, Coordinates: []float64{77, 91}}},
		{"longitude out of range", CreateAlertRequest{Category: models.CategoryFire, Coordinates: []float64{-181, 28}}},
		{"missing coordinates", CreateAlertRequest{Category: models.CategoryFire}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.coordinator.Create(context.Background(), f.sender.Hex(), &tc.req)
			require.Error(t, err)
			assert.Equal(t, KindValidation, KindOf(err))
		})
	}
}

func TestCreate_UnknownSender(t *testing.T) {
	f := newFixture(t)

	_, err := f.coordinator.Create(context.Background(), primitive.NewObjectID().Hex(), &CreateAlertRequest{
		Category:    models.CategoryFire,
		Coordinates: []float64{77.10, 28.60},
	})
	require.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestCreate_DirectoryDownStillPersists(t *testing.T) {
	f := newFixture(t)
	f.directory.radiusErr = context.DeadlineExceeded

	alert, err := f.coordinator.Create(context.Background(), f.sender.Hex(), &CreateAlertRequest{
		Category:    models.CategoryFire,
		Coordinates: []float64{77.10, 28.60},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, alert.Status)
	assert.Empty(t, alert.NotifiedUserIDs)
}

func TestCreate_StoreFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.store.insertErr = context.DeadlineExceeded

	_, err := f.coordinator.Create(context.Background(), f.sender.Hex(), &CreateAlertRequest{
		Category:    models.CategoryFire,
		Coordinates: []float64{77.10, 28.60},
	})
	require.Error(t, err)
	assert.Equal(t, KindDependency, KindOf(err))
	assert.Empty(t, f.notifier.created)
}

func TestAccept_Success(t *testing.T) {
	f := newFixture(t)
	alert := f.createAlert(t)

	accepted, err := f.coordinator.Accept(context.Background(), alert.ID.Hex(), f.responder1.Hex())
	require.NoError(t, err)

	assert.Equal(t, models.StatusAccepted, accepted.Status)
	require.NotNil(t, accepted.AcceptedBy)
	assert.Equal(t, f.responder1, *accepted.AcceptedBy)
	require.NotNil(t, accepted.AcceptedAt)
	assert.False(t, accepted.AcceptedAt.Before(accepted.CreatedAt))

	require.Len(t, f.notifier.accepted, 1)
}

func TestAccept_BySenderFailsRegardlessOfState(t *testing.T) {
	f := newFixture(t)
	alert := f.createAlert(t)

	_, err := f.coordinator.Accept(context.Background(), alert.ID.Hex(), f.sender.Hex())
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))

	// Still validation, not invalid-state, after the alert is accepted.
	_, err = f.coordinator.Accept(context.Background(), alert.ID.Hex(), f.responder1.Hex())
	require.NoError(t, err)
	_, err = f.coordinator.Accept(context.Background(), alert.ID.Hex(), f.sender.Hex())
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestAccept_NotNotifiedFails(t *testing.T) {
	f := newFixture(t)
	alert := f.createAlert(t)

	// The outsider exists in the directory and could well be in radius
	// now; the snapshot still excludes them.
	outsider := primitive.NewObjectID()
	f.directory.users[outsider.Hex()] = &models.User{ID: outsider}

	_, err := f.coordinator.Accept(context.Background(), alert.ID.Hex(), outsider.Hex())
	require.Error(t, err)
	assert.Equal(t, KindAuthorization, KindOf(err))
}

func TestAccept_MissingAlert(t *testing.T) {
	f := newFixture(t)

	_, err := f.coordinator.Accept(context.Background(), primitive.NewObjectID().Hex(), f.responder1.Hex())
	require.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestAccept_AlreadyAccepted(t *testing.T) {
	f := newFixture(t)
	alert := f.createAlert(t)

	_, err := f.coordinator.Accept(context.Background(), alert.ID.Hex(), f.responder1.Hex())
	require.NoError(t, err)

	_, err = f.coordinator.Accept(context.Background(), alert.ID.Hex(), f.responder2.Hex())
	require.Error(t, err)
	assert.Equal(t, KindInvalidState, KindOf(err))
}

func TestAccept_ConcurrentRaceHasOneWinner(t *testing.T) {
	f := newFixture(t)

	// Widen the snapshot so every racer is eligible.
	responders := make([]primitive.ObjectID, 8)
	refs := make([]models.UserRef, len(responders))
	for i := range responders {
		responders[i] = primitive.NewObjectID()
		refs[i] = models.UserRef{ID: responders[i]}
	}
	f.directory.nearby = refs

	alert := f.createAlert(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var winners []primitive.ObjectID
	losers := 0

	for _, responder := range responders {
		wg.Add(1)
		go func(r primitive.ObjectID) {
			defer wg.Done()
			_, err := f.coordinator.Accept(context.Background(), alert.ID.Hex(), r.Hex())
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners = append(winners, r)
			} else {
				assert.Equal(t, KindInvalidState, KindOf(err))
				losers++
			}
		}(responder)
	}
	wg.Wait()

	require.Len(t, winners, 1)
	assert.Equal(t, len(responders)-1, losers)

	final, err := f.store.FindByID(context.Background(), alert.ID.Hex())
	require.NoError(t, err)
	require.NotNil(t, final.AcceptedBy)
	assert.Equal(t, winners[0], *final.AcceptedBy)
}

func TestUpdateStatus_ResolveByResponder(t *testing.T) {
	f := newFixture(t)
	alert := f.createAlert(t)

	_, err := f.coordinator.Accept(context.Background(), alert.ID.Hex(), f.responder1.Hex())
	require.NoError(t, err)

	resolved, err := f.coordinator.UpdateStatus(context.Background(), alert.ID.Hex(), f.responder1.Hex(), models.StatusResolved)
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)

	// The sender, not the whole radius, hears about it.
	require.Len(t, f.notifier.changed, 1)
	assert.Equal(t, f.sender, f.notifier.changed[0])
}

func TestUpdateStatus_CancelPendingBySender(t *testing.T) {
	f := newFixture(t)
	alert := f.createAlert(t)

	cancelled, err := f.coordinator.UpdateStatus(context.Background(), alert.ID.Hex(), f.sender.Hex(), models.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)

	// No responder yet, so there is nobody to notify.
	assert.Empty(t, f.notifier.changed)
}

func TestUpdateStatus_CancelAcceptedNotifiesResponder(t *testing.T) {
	f := newFixture(t)
	alert := f.createAlert(t)

	_, err := f.coordinator.Accept(context.Background(), alert.ID.Hex(), f.responder1.Hex())
	require.NoError(t, err)

	_, err = f.coordinator.UpdateStatus(context.Background(), alert.ID.Hex(), f.sender.Hex(), models.StatusCancelled)
	require.NoError(t, err)

	require.Len(t, f.notifier.changed, 1)
	assert.Equal(t, f.responder1, f.notifier.changed[0])
}

func TestUpdateStatus_PendingToResolvedRejected(t *testing.T) {
	f := newFixture(t)
	alert := f.createAlert(t)

	// A sender with no responder cancels; resolving a pending alert is
	// not a legal transition.
	_, err := f.coordinator.UpdateStatus(context.Background(), alert.ID.Hex(), f.sender.Hex(), models.StatusResolved)
	require.Error(t, err)
	assert.Equal(t, KindInvalidState, KindOf(err))
}

func TestUpdateStatus_TerminalStatesAreFinal(t *testing.T) {
	f := newFixture(t)
	alert := f.createAlert(t)

	_, err := f.coordinator.Accept(context.Background(), alert.ID.Hex(), f.responder1.Hex())
	require.NoError(t, err)
	_, err = f.coordinator.UpdateStatus(context.Background(), alert.ID.Hex(), f.sender.Hex(), models.StatusResolved)
	require.NoError(t, err)

	_, err = f.coordinator.UpdateStatus(context.Background(), alert.ID.Hex(), f.sender.Hex(), models.StatusCancelled)
	require.Error(t, err)
	assert.Equal(t, KindInvalidState, KindOf(err))
}

func TestUpdateStatus_OnlyClosingStatusesAllowed(t *testing.T) {
	f := newFixture(t)
	alert := f.createAlert(t)

	// Entering accepted is Accept's job; a sender must not be able to
	// self-accept their pending alert through the update path and then
	// resolve it.
	for _, next := range []string{models.StatusAccepted, models.StatusPending} {
		_, err := f.coordinator.UpdateStatus(context.Background(), alert.ID.Hex(), f.sender.Hex(), next)
		require.Error(t, err, next)
		assert.Equal(t, KindValidation, KindOf(err))
	}

	current, err := f.store.FindByID(context.Background(), alert.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, current.Status)
	assert.Nil(t, current.AcceptedBy)

	// And with the alert untouched, resolving it still fails.
	_, err = f.coordinator.UpdateStatus(context.Background(), alert.ID.Hex(), f.sender.Hex(), models.StatusResolved)
	require.Error(t, err)
	assert.Equal(t, KindInvalidState, KindOf(err))
}

func TestUpdateStatus_CancelByResponderRejected(t *testing.T) {
	f := newFixture(t)
	alert := f.createAlert(t)

	_, err := f.coordinator.Accept(context.Background(), alert.ID.Hex(), f.responder1.Hex())
	require.NoError(t, err)

	_, err = f.coordinator.UpdateStatus(context.Background(), alert.ID.Hex(), f.responder1.Hex(), models.StatusCancelled)
	require.Error(t, err)
	assert.Equal(t, KindAuthorization, KindOf(err))
}

func TestUpdateStatus_StrangerRejected(t *testing.T) {
	f := newFixture(t)
	alert := f.createAlert(t)

	_, err := f.coordinator.UpdateStatus(context.Background(), alert.ID.Hex(), f.responder2.Hex(), models.StatusCancelled)
	require.Error(t, err)
	assert.Equal(t, KindAuthorization, KindOf(err))
}

func TestGet_VisibilityRules(t *testing.T) {
	f := newFixture(t)
	alert := f.createAlert(t)
	stranger := primitive.NewObjectID()

	// Pending alerts are discoverable by anyone.
	_, err := f.coordinator.Get(context.Background(), alert.ID.Hex(), stranger.Hex())
	require.NoError(t, err)

	_, err = f.coordinator.Accept(context.Background(), alert.ID.Hex(), f.responder1.Hex())
	require.NoError(t, err)

	// Once accepted, only the sender and responder may view it.
	_, err = f.coordinator.Get(context.Background(), alert.ID.Hex(), stranger.Hex())
	require.Error(t, err)
	assert.Equal(t, KindAuthorization, KindOf(err))

	_, err = f.coordinator.Get(context.Background(), alert.ID.Hex(), f.sender.Hex())
	require.NoError(t, err)
	_, err = f.coordinator.Get(context.Background(), alert.ID.Hex(), f.responder1.Hex())
	require.NoError(t, err)
}

func TestListNearby_ExcludesOwnAndTerminal(t *testing.T) {
	f := newFixture(t)

	// A second user whose alert the requester should see.
	other := primitive.NewObjectID()
	f.directory.users[other.Hex()] = &models.User{
		ID:       other,
		Location: models.NewGeoPoint(77.11, 28.61),
	}

	own := f.createAlert(t)

	otherAlert, err := f.coordinator.Create(context.Background(), other.Hex(), &CreateAlertRequest{
		Category:    models.CategoryAccident,
		Coordinates: []float64{77.11, 28.61},
	})
	require.NoError(t, err)

	cancelledAlert, err := f.coordinator.Create(context.Background(), other.Hex(), &CreateAlertRequest{
		Category:    models.CategorySecurity,
		Coordinates: []float64{77.11, 28.61},
	})
	require.NoError(t, err)
	_, err = f.coordinator.UpdateStatus(context.Background(), cancelledAlert.ID.Hex(), other.Hex(), models.StatusCancelled)
	require.NoError(t, err)

	alerts, err := f.coordinator.ListNearby(context.Background(), f.sender.Hex(), 0)
	require.NoError(t, err)

	require.Len(t, alerts, 1)
	assert.Equal(t, otherAlert.ID, alerts[0].ID)
	for _, a := range alerts {
		assert.NotEqual(t, own.ID, a.ID)
	}
}

func TestListForUser_FilterValidation(t *testing.T) {
	f := newFixture(t)
	f.createAlert(t)

	_, _, err := f.coordinator.ListForUser(context.Background(), f.sender.Hex(), repository.UserAlertFilter{Status: "bogus"})
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))

	alerts, total, err := f.coordinator.ListForUser(context.Background(), f.sender.Hex(), repository.UserAlertFilter{})
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
	assert.Equal(t, int64(1), total)
}

func TestGetRoute_ResponderOnly(t *testing.T) {
	f := newFixture(t)
	alert := f.createAlert(t)

	f.directory.users[f.responder1.Hex()] = &models.User{ID: f.responder1}

	_, err := f.coordinator.GetRoute(context.Background(), alert.ID.Hex(), f.responder1.Hex())
	require.Error(t, err)
	assert.Equal(t, KindAuthorization, KindOf(err))

	_, err = f.coordinator.Accept(context.Background(), alert.ID.Hex(), f.responder1.Hex())
	require.NoError(t, err)

	route, err := f.coordinator.GetRoute(context.Background(), alert.ID.Hex(), f.responder1.Hex())
	require.NoError(t, err)
	assert.Equal(t, []float64{77.10, 28.60}, route.Destination.Coordinates)
	assert.Equal(t, "Sender", route.Contact.Name)
}
