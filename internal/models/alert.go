package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Alert statuses. Transitions only move forward: once an alert leaves
// pending it never returns to it.
const (
	StatusPending   = "pending"
	StatusAccepted  = "accepted"
	StatusResolved  = "resolved"
	StatusCancelled = "cancelled"
)

// Alert categories.
const (
	CategoryHealth          = "health"
	CategoryAccident        = "accident"
	CategoryFire            = "fire"
	CategorySecurity        = "security"
	CategoryNaturalDisaster = "natural_disaster"
	CategoryOther           = "other"
)

// Severity levels, ordered low to critical.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

type Alert struct {
	ID                primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	SenderID          primitive.ObjectID   `bson:"sender_id" json:"senderId"`
	Category          string               `bson:"category" json:"category" validate:"required,oneof=health accident fire security natural_disaster other"`
	CustomDescription string               `bson:"custom_description,omitempty" json:"customDescription,omitempty" validate:"max=150"`
	Severity          string               `bson:"severity" json:"severity" validate:"required,oneof=low medium high critical"`
	Location          GeoPoint             `bson:"location" json:"location"`
	Address           string               `bson:"address,omitempty" json:"address,omitempty"`
	Status            string               `bson:"status" json:"status"`
	AcceptedBy        *primitive.ObjectID  `bson:"accepted_by,omitempty" json:"acceptedBy,omitempty"`
	NotifiedUserIDs   []primitive.ObjectID `bson:"notified_user_ids" json:"notifiedUserIds"`
	CreatedAt         time.Time            `bson:"created_at" json:"createdAt"`
	AcceptedAt        *time.Time           `bson:"accepted_at,omitempty" json:"acceptedAt,omitempty"`
	ResolvedAt        *time.Time           `bson:"resolved_at,omitempty" json:"resolvedAt,omitempty"`
}

// transitions is the full lifecycle graph. Absent entries are illegal,
// which makes resolved and cancelled terminal.
var transitions = map[string][]string{
	StatusPending:  {StatusAccepted, StatusCancelled},
	StatusAccepted: {StatusResolved, StatusCancelled},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidStatus reports whether s is a known alert status.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusAccepted, StatusResolved, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether the status permits no further transitions.
func IsTerminal(status string) bool {
	return len(transitions[status]) == 0
}

// WasNotified reports whether the user is part of the alert's creation-time
// recipient snapshot.
func (a *Alert) WasNotified(userID primitive.ObjectID) bool {
	for _, id := range a.NotifiedUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Description returns the custom description when present, otherwise a
// human-readable fallback for the category.
func (a *Alert) Description() string {
	if a.CustomDescription != "" {
		return a.CustomDescription
	}
	switch a.Category {
	case CategoryHealth:
		return "Medical emergency"
	case CategoryAccident:
		return "Accident occurred"
	case CategoryFire:
		return "Fire emergency"
	case CategorySecurity:
		return "Security threat"
	case CategoryNaturalDisaster:
		return "Natural disaster"
	default:
		return "Emergency situation"
	}
}

// Counterpart returns the identity that should be told about a status change
// made by actor: the responder when the sender acted, the sender otherwise.
func (a *Alert) Counterpart(actorID primitive.ObjectID) (primitive.ObjectID, bool) {
	if actorID == a.SenderID {
		if a.AcceptedBy == nil {
			return primitive.NilObjectID, false
		}
		return *a.AcceptedBy, true
	}
	return a.SenderID, true
}
