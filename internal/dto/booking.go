package dto

import "github.com/rinkdesk/ice-booking-api/internal/booking"

// ScheduleInput is the timing block shared by submissions, admin events and
// conflict checks. EndDate is the recurrence end and is ignored when the
// recurrence is "none".
type ScheduleInput struct {
	StartDate  string `json:"start_date" validate:"required"`
	EndDate    string `json:"end_date"`
	StartTime  string `json:"start_time" validate:"required"`
	EndTime    string `json:"end_time" validate:"required"`
	Recurrence string `json:"recurrence" validate:"omitempty,recurrence"`
}

// SubmitRequest is the renter's booking submission.
type SubmitRequest struct {
	Title        string `json:"title" validate:"required,max=200"`
	Description  string `json:"description" validate:"max=2000"`
	ContactEmail string `json:"contact_email" validate:"omitempty,email"`
	ScheduleInput
}

// AdminBookingRequest books ice for a renter directly. The request is approved
// on creation and bills to the renter's monthly invoice.
type AdminBookingRequest struct {
	OwnerID      string   `json:"owner_id" validate:"required"`
	ContactEmail string   `json:"contact_email" validate:"omitempty,email"`
	Title        string   `json:"title" validate:"required,max=200"`
	Description  string   `json:"description" validate:"max=2000"`
	Amount       *float64 `json:"amount" validate:"required,gte=0"`
	ScheduleInput
}

// ApproveRequest carries the price agreed for a request.
type ApproveRequest struct {
	Amount    *float64 `json:"amount" validate:"required,gte=0"`
	SendEmail bool     `json:"send_email"`
}

// DeclineRequest carries the reason shown to the renter.
type DeclineRequest struct {
	Reason    string `json:"reason"`
	SendEmail bool   `json:"send_email"`
}

// UpdateEndDateRequest moves the recurrence end date.
type UpdateEndDateRequest struct {
	EndDate string `json:"end_date" validate:"required"`
}

// UpdateAmountRequest sets a new price.
type UpdateAmountRequest struct {
	Amount *float64 `json:"amount" validate:"required,gte=0"`
}

// CreateEventRequest creates an admin-owned occupancy block.
type CreateEventRequest struct {
	Title       string   `json:"title" validate:"required,max=200"`
	Description string   `json:"description" validate:"max=2000"`
	Amount      *float64 `json:"amount" validate:"omitempty,gte=0"`
	ScheduleInput
}

// ConflictCheckRequest mirrors a submission. ExcludeID skips a record already
// holding occupancy, e.g. when re-checking an edit.
type ConflictCheckRequest struct {
	ExcludeID string `json:"exclude_id"`
	ScheduleInput
}

// ConflictDetail describes one colliding occurrence pair.
type ConflictDetail struct {
	Date             string             `json:"date"`
	StartTime        string             `json:"start_time"`
	EndTime          string             `json:"end_time"`
	ConflictingID    string             `json:"conflicting_id"`
	ConflictingKind  booking.SourceKind `json:"conflicting_kind"`
	ConflictingTitle string             `json:"conflicting_title"`
	ConflictingStart string             `json:"conflicting_start_time"`
	ConflictingEnd   string             `json:"conflicting_end_time"`
}

// ConflictCheckResponse is the advisory result of POST /check_conflicts.
type ConflictCheckResponse struct {
	HasConflicts bool             `json:"has_conflicts"`
	Conflicts    []ConflictDetail `json:"conflicts"`
}

// ListRequestsQuery filters request listings.
type ListRequestsQuery struct {
	Status   string `form:"status" validate:"omitempty,oneof=pending approved declined"`
	OwnerID  string `form:"owner_id"`
	From     string `form:"from"`
	To       string `form:"to"`
	Page     int    `form:"page" validate:"omitempty,min=1"`
	PageSize int    `form:"page_size" validate:"omitempty,min=1,max=200"`
}

// ListEventsQuery filters admin event listings.
type ListEventsQuery struct {
	From     string `form:"from"`
	To       string `form:"to"`
	Page     int    `form:"page" validate:"omitempty,min=1"`
	PageSize int    `form:"page_size" validate:"omitempty,min=1,max=200"`
}
