package dto

import "github.com/rinkdesk/ice-booking-api/internal/booking"

// CalendarQuery selects the projected range. Month (YYYY-MM) wins over Start/End.
type CalendarQuery struct {
	Start string `form:"start"`
	End   string `form:"end"`
	Month string `form:"month"`
}

// CalendarOccurrence is one block of occupied ice.
type CalendarOccurrence struct {
	ID        string             `json:"id"`
	Kind      booking.SourceKind `json:"kind"`
	Title     string             `json:"title"`
	StartTime string             `json:"start_time"`
	EndTime   string             `json:"end_time"`
}

// CalendarDay groups a day's occurrences in start order.
type CalendarDay struct {
	Date        string               `json:"date"`
	Occurrences []CalendarOccurrence `json:"occurrences"`
}

// CalendarResponse is the projection of [Start, End].
type CalendarResponse struct {
	Start string        `json:"start"`
	End   string        `json:"end"`
	Days  []CalendarDay `json:"days"`
}

// OccupancyNotice is pushed to websocket clients after occupancy changes.
type OccupancyNotice struct {
	Type string   `json:"type"`
	Days []string `json:"days"`
}
