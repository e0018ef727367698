package models

import (
	"time"

	"github.com/lib/pq"
)

// MonthlyInvoice groups a renter's approved, unpaid bookings for one month.
type MonthlyInvoice struct {
	ID           string         `db:"id" json:"id"`
	OwnerID      string         `db:"owner_id" json:"owner_id"`
	ContactEmail string         `db:"contact_email" json:"contact_email"`
	Year         int            `db:"invoice_year" json:"year"`
	Month        int            `db:"invoice_month" json:"month"`
	Amount       float64        `db:"amount" json:"amount"`
	RequestIDs   pq.StringArray `db:"request_ids" json:"request_ids"`
	Paid         bool           `db:"paid" json:"paid"`
	FilePath     *string        `db:"file_path" json:"-"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// InvoiceFilter narrows down invoice listings.
type InvoiceFilter struct {
	OwnerID string
	Year    int
	Month   int
	Paid    *bool
}

// InvoiceLine is one billable request feeding an invoice.
type InvoiceLine struct {
	RequestID    string  `db:"id"`
	OwnerID      string  `db:"owner_id"`
	ContactEmail string  `db:"contact_email"`
	Title        string  `db:"title"`
	StartDate    string  `db:"start_date"`
	StartTime    string  `db:"start_time"`
	EndTime      string  `db:"end_time"`
	Amount       float64 `db:"amount"`
}
