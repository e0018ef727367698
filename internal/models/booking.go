package models

import (
	"time"

	"github.com/rinkdesk/ice-booking-api/internal/booking"
)

// Timing is the stored schedule of a request or event. Dates use YYYY-MM-DD
// and times use "H:MM AM|PM". EndDate equals StartDate when not recurring.
type Timing struct {
	StartDate  string       `db:"start_date" json:"start_date"`
	EndDate    string       `db:"end_date" json:"end_date"`
	StartTime  string       `db:"start_time" json:"start_time"`
	EndTime    string       `db:"end_time" json:"end_time"`
	Recurrence booking.Rule `db:"recurrence" json:"recurrence"`
}

// Billing tracks what is owed for a booking.
type Billing struct {
	Amount *float64 `db:"amount" json:"amount,omitempty"`
	Paid   bool     `db:"paid" json:"paid"`
}

// BookingRequest is a renter's ask for ice time.
type BookingRequest struct {
	ID            string         `db:"id" json:"id"`
	OwnerID       string         `db:"owner_id" json:"owner_id"`
	ContactEmail  string         `db:"contact_email" json:"contact_email"`
	Title         string         `db:"title" json:"title"`
	Description   string         `db:"description" json:"description"`
	Status        booking.Status `db:"status" json:"status"`
	DeclineReason *string        `db:"decline_reason" json:"decline_reason,omitempty"`
	Timing
	Billing
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// RequestFilter narrows down request listings.
type RequestFilter struct {
	OwnerID  string
	Status   booking.Status
	From     string
	To       string
	Page     int
	PageSize int
}

// PaymentSummary totals approved request amounts.
type PaymentSummary struct {
	Paid   float64 `db:"paid" json:"paid"`
	Unpaid float64 `db:"unpaid" json:"unpaid"`
	Total  float64 `db:"total" json:"total"`
}

// AdminEvent is rink-owned occupancy, active from creation.
type AdminEvent struct {
	ID          string `db:"id" json:"id"`
	CreatedBy   string `db:"created_by" json:"created_by"`
	Title       string `db:"title" json:"title"`
	Description string `db:"description" json:"description"`
	Timing
	Billing
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// EventFilter narrows down admin event listings.
type EventFilter struct {
	From     string
	To       string
	Page     int
	PageSize int
}
