package domain

import "time"

// AccountEventType names an account lifecycle change.
type AccountEventType string

const (
	AccountCreated     AccountEventType = "account.created"
	AccountUpdated     AccountEventType = "account.updated"
	AccountDeactivated AccountEventType = "account.deactivated"
)

// AccountEvent is published to notification channels after a successful mutation.
// It never carries credential material.
type AccountEvent struct {
	Type       AccountEventType `json:"type"`
	AccountID  string           `json:"accountId"`
	Email      string           `json:"email"`
	FirstName  string           `json:"firstName"`
	LastName   string           `json:"lastName"`
	Phone      string           `json:"phone"`
	OccurredAt time.Time        `json:"occurredAt"`
}

// NewAccountEvent snapshots a for publication.
func NewAccountEvent(kind AccountEventType, a *Account, at time.Time) AccountEvent {
	return AccountEvent{
		Type:       kind,
		AccountID:  a.ID,
		Email:      a.Email,
		FirstName:  a.FirstName,
		LastName:   a.LastName,
		Phone:      a.Phone,
		OccurredAt: at.UTC(),
	}
}
