package repository

import (
	"context"
	"errors"
	"time"

	"emergency-backend/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// earthRadiusMeters converts a radius in meters to the radians
// $centerSphere expects.
const earthRadiusMeters = 6378137.0

// ErrNotFound is returned when no alert matches the query. For conditional
// updates it also covers the lost-race case: the document exists but its
// status no longer matches the expected one.
var ErrNotFound = errors.New("alert not found")

type AlertRepository struct {
	collection *mongo.Collection
}

func NewAlertRepository(db *mongo.Database) *AlertRepository {
	return &AlertRepository{
		collection: db.Collection("alerts"),
	}
}

func (r *AlertRepository) Insert(ctx context.Context, alert *models.Alert) (*models.Alert, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	result, err := r.collection.InsertOne(ctx, alert)
	if err != nil {
		return nil, err
	}

	alert.ID = result.InsertedID.(primitive.ObjectID)
	return alert, nil
}

func (r *AlertRepository) FindByID(ctx context.Context, id string) (*models.Alert, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}

	var alert models.Alert
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&alert)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &alert, nil
}

// UpdateStatusIf applies the given field set only if the alert's current
// status equals expectedStatus. The filter and update run as a single
// FindOneAndUpdate, so two racing callers cannot both observe the expected
// status; the loser gets ErrNotFound.
func (r *AlertRepository) UpdateStatusIf(ctx context.Context, id string, expectedStatus string, set bson.M) (*models.Alert, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}

	filter := bson.M{
		"_id":    objectID,
		"status": expectedStatus,
	}

	result := r.collection.FindOneAndUpdate(
		ctx,
		filter,
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)

	var updated models.Alert
	if err := result.Decode(&updated); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &updated, nil
}

// FindNearby returns alerts in the given statuses within radiusMeters of
// center, excluding those raised by excludeSender, newest first.
func (r *AlertRepository) FindNearby(ctx context.Context, center models.GeoPoint, radiusMeters float64, excludeSender primitive.ObjectID, statuses []string) ([]*models.Alert, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	filter := bson.M{
		"status":    bson.M{"$in": statuses},
		"sender_id": bson.M{"$ne": excludeSender},
		"location": bson.M{
			"$geoWithin": bson.M{
				"$centerSphere": []interface{}{
					center.Coordinates,
					radiusMeters / earthRadiusMeters,
				},
			},
		},
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var alerts []*models.Alert
	for cursor.Next(ctx) {
		var alert models.Alert
		if err := cursor.Decode(&alert); err != nil {
			return nil, err
		}
		alerts = append(alerts, &alert)
	}

	return alerts, cursor.Err()
}

// UserAlertFilter narrows FindForUser results.
type UserAlertFilter struct {
	Status   string
	Category string
	Page     int
	Limit    int
}

// FindForUser returns alerts where the user is the sender or the accepted
// responder, newest first, paginated.
func (r *AlertRepository) FindForUser(ctx context.Context, userID primitive.ObjectID, f UserAlertFilter) ([]*models.Alert, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	filter := bson.M{
		"$or": []bson.M{
			{"sender_id": userID},
			{"accepted_by": userID},
		},
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.Category != "" {
		filter["category"] = f.Category
	}

	page := f.Page
	if page < 1 {
		page = 1
	}
	limit := f.Limit
	if limit < 1 || limit > 100 {
		limit = 20
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var alerts []*models.Alert
	for cursor.Next(ctx) {
		var alert models.Alert
		if err := cursor.Decode(&alert); err != nil {
			return nil, err
		}
		alerts = append(alerts, &alert)
	}

	return alerts, cursor.Err()
}

func (r *AlertRepository) CountForUser(ctx context.Context, userID primitive.ObjectID, f UserAlertFilter) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	filter := bson.M{
		"$or": []bson.M{
			{"sender_id": userID},
			{"accepted_by": userID},
		},
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.Category != "" {
		filter["category"] = f.Category
	}

	return r.collection.CountDocuments(ctx, filter)
}

// CreateIndexes creates the indexes the alert queries rely on.
func (r *AlertRepository) CreateIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "location", Value: "2dsphere"}},
		},
		{
			Keys: bson.D{
				{Key: "status", Value: 1},
				{Key: "created_at", Value: -1},
			},
		},
		{
			Keys: bson.D{{Key: "sender_id", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "accepted_by", Value: 1}},
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	return err
}
