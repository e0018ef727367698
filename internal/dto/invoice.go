package dto

import "time"

// GenerateInvoicesRequest selects the billing month. Zero values mean the
// month before the current rink-local month.
type GenerateInvoicesRequest struct {
	Year  int `json:"year" validate:"omitempty,min=2000,max=9999"`
	Month int `json:"month" validate:"omitempty,min=1,max=12"`
}

// InvoiceRunResult summarises a generation run.
type InvoiceRunResult struct {
	Year       int      `json:"year"`
	Month      int      `json:"month"`
	Created    int      `json:"created"`
	Skipped    int      `json:"skipped"`
	InvoiceIDs []string `json:"invoice_ids"`
}

// ListInvoicesQuery filters invoice listings.
type ListInvoicesQuery struct {
	OwnerID string `form:"owner_id"`
	Year    int    `form:"year" validate:"omitempty,min=2000,max=9999"`
	Month   int    `form:"month" validate:"omitempty,min=1,max=12"`
	Paid    *bool  `form:"paid"`
}

// InvoiceDocumentResponse points at a rendered invoice PDF.
type InvoiceDocumentResponse struct {
	DownloadURL string    `json:"download_url"`
	ExpiresAt   time.Time `json:"expires_at"`
}
