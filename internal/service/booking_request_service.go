package service

import (
	"context"
	"math"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/rinkdesk/ice-booking-api/internal/booking"
	"github.com/rinkdesk/ice-booking-api/internal/dto"
	"github.com/rinkdesk/ice-booking-api/internal/models"
	"github.com/rinkdesk/ice-booking-api/internal/repository"
	appErrors "github.com/rinkdesk/ice-booking-api/pkg/errors"
)

type bookingRequestRepository interface {
	List(ctx context.Context, filter models.RequestFilter) ([]models.BookingRequest, int, error)
	GetByID(ctx context.Context, id string) (*models.BookingRequest, error)
	GetForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.BookingRequest, error)
	Create(ctx context.Context, exec sqlx.ExtContext, req *models.BookingRequest) error
	UpdateReview(ctx context.Context, exec sqlx.ExtContext, req *models.BookingRequest) error
	UpdateEndDate(ctx context.Context, exec sqlx.ExtContext, id, endDate string) error
	UpdateAmount(ctx context.Context, exec sqlx.ExtContext, id string, amount float64) error
	MarkPaid(ctx context.Context, exec sqlx.ExtContext, ids []string) (int64, error)
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
	PaymentSummary(ctx context.Context, ownerID string) (*models.PaymentSummary, error)
}

type openInvoiceAdjuster interface {
	AdjustOpenForRequest(ctx context.Context, exec sqlx.ExtContext, requestID string, delta float64) (int64, error)
}

type reviewNotifier interface {
	RequestApproved(ctx context.Context, req *models.BookingRequest)
	RequestDeclined(ctx context.Context, req *models.BookingRequest)
}

// BookingRequestService implements the renter request lifecycle.
type BookingRequestService struct {
	repo      bookingRequestRepository
	occupancy *OccupancyService
	lifecycle *booking.Lifecycle
	notifier  reviewNotifier
	invoices  openInvoiceAdjuster
	validator *validator.Validate
	logger    *zap.Logger
}

// NewBookingRequestService constructs the service. invoices may be nil when
// monthly invoicing is not wired.
func NewBookingRequestService(repo bookingRequestRepository, occupancy *OccupancyService, lifecycle *booking.Lifecycle, notifier reviewNotifier, invoices openInvoiceAdjuster, validate *validator.Validate, logger *zap.Logger) *BookingRequestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookingRequestService{
		repo:      repo,
		occupancy: occupancy,
		lifecycle: lifecycle,
		notifier:  notifier,
		invoices:  invoices,
		validator: newValidator(validate),
		logger:    logger,
	}
}

// List returns requests visible to the caller with the matching payment summary.
func (s *BookingRequestService) List(ctx context.Context, p models.Principal, q dto.ListRequestsQuery) ([]models.BookingRequest, *models.Pagination, *models.PaymentSummary, error) {
	if err := s.validator.Struct(q); err != nil {
		return nil, nil, nil, validationError(err, "invalid request filters")
	}
	filter := models.RequestFilter{
		OwnerID:  q.OwnerID,
		Status:   booking.Status(q.Status),
		Page:     q.Page,
		PageSize: q.PageSize,
	}
	if !p.IsAdmin() {
		filter.OwnerID = p.UserID
	}
	var err error
	if filter.From, err = normaliseDate(q.From); err != nil {
		return nil, nil, nil, err
	}
	if filter.To, err = normaliseDate(q.To); err != nil {
		return nil, nil, nil, err
	}

	requests, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list booking requests")
	}
	summary, err := s.repo.PaymentSummary(ctx, filter.OwnerID)
	if err != nil {
		return nil, nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to summarise payments")
	}

	page, size := q.Page, q.PageSize
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 50
	}
	return requests, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, summary, nil
}

// Get returns one request. Renters only see their own.
func (s *BookingRequestService) Get(ctx context.Context, p models.Principal, id string) (*models.BookingRequest, error) {
	req, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, requestLookupError(err)
	}
	if !p.IsAdmin() && req.OwnerID != p.UserID {
		return nil, appErrors.ErrForbidden
	}
	return req, nil
}

// Submit creates a pending request after checking it against current occupancy.
func (s *BookingRequestService) Submit(ctx context.Context, p models.Principal, in dto.SubmitRequest) (*models.BookingRequest, error) {
	if err := s.validator.Struct(in); err != nil {
		return nil, validationError(err, "invalid booking request")
	}
	sched, err := s.occupancy.ScheduleFromInput(in.ScheduleInput)
	if err != nil {
		return nil, err
	}
	if err := s.lifecycle.Submit(sched); err != nil {
		return nil, err
	}

	contact := in.ContactEmail
	if contact == "" {
		contact = p.Email
	}
	req := &models.BookingRequest{
		OwnerID:      p.UserID,
		ContactEmail: contact,
		Title:        in.Title,
		Description:  in.Description,
		Status:       booking.StatusPending,
		Timing:       timingOf(sched),
	}

	err = s.occupancy.Write(ctx, "submit", func(w *Write) error {
		res, err := w.Check(booking.Candidate{Schedule: sched})
		if err != nil {
			return err
		}
		if res.HasConflicts {
			return conflictError(res)
		}
		if err := s.repo.Create(ctx, w.Tx(), req); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create booking request")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("booking request submitted", zap.String("id", req.ID), zap.String("owner_id", req.OwnerID))
	return req, nil
}

// BookForRenter creates an already approved request on a renter's behalf. It
// holds occupancy as soon as it commits and the renter is notified.
func (s *BookingRequestService) BookForRenter(ctx context.Context, p models.Principal, in dto.AdminBookingRequest) (*models.BookingRequest, error) {
	if err := s.validator.Struct(in); err != nil {
		return nil, validationError(err, "invalid admin booking")
	}
	sched, err := s.occupancy.ScheduleFromInput(in.ScheduleInput)
	if err != nil {
		return nil, err
	}
	if err := s.lifecycle.Submit(sched); err != nil {
		return nil, err
	}

	req := &models.BookingRequest{
		OwnerID:      in.OwnerID,
		ContactEmail: in.ContactEmail,
		Title:        in.Title,
		Description:  in.Description,
		Status:       booking.StatusApproved,
		Billing:      models.Billing{Amount: in.Amount},
		Timing:       timingOf(sched),
	}

	err = s.occupancy.Write(ctx, "admin_book", func(w *Write) error {
		res, err := w.Check(booking.Candidate{Schedule: sched})
		if err != nil {
			return err
		}
		if res.HasConflicts {
			return conflictError(res)
		}
		if err := s.repo.Create(ctx, w.Tx(), req); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create booking request")
		}
		w.AfterCommit(func(idx *booking.Index) {
			idx.Insert(requestSource(req), res.Occurrences)
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("booking created for renter",
		zap.String("id", req.ID),
		zap.String("owner_id", req.OwnerID),
		zap.String("admin_id", p.UserID),
		zap.Float64("amount", *req.Amount),
	)
	if s.notifier != nil {
		s.notifier.RequestApproved(ctx, req)
	}
	return req, nil
}

// Approve prices a pending request and adds it to occupancy. The conflict
// check and the status change commit together.
func (s *BookingRequestService) Approve(ctx context.Context, id string, in dto.ApproveRequest) (*models.BookingRequest, error) {
	if err := s.validator.Struct(in); err != nil {
		return nil, validationError(err, "invalid approval")
	}

	var approved *models.BookingRequest
	err := s.occupancy.Write(ctx, "approve", func(w *Write) error {
		req, err := s.lockRequest(ctx, w, id)
		if err != nil {
			return err
		}
		sched, err := s.occupancy.Schedule(req.Timing)
		if err != nil {
			return err
		}
		if err := s.lifecycle.Approve(req.Status, sched); err != nil {
			return err
		}
		res, err := w.Check(booking.Candidate{SourceID: req.ID, Schedule: sched})
		if err != nil {
			return err
		}
		if res.HasConflicts {
			return conflictError(res)
		}

		req.Status = booking.StatusApproved
		req.Amount = in.Amount
		req.DeclineReason = nil
		if err := s.repo.UpdateReview(ctx, w.Tx(), req); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve booking request")
		}
		w.AfterCommit(func(idx *booking.Index) {
			idx.Insert(requestSource(req), res.Occurrences)
		})
		approved = req
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("booking request approved", zap.String("id", approved.ID), zap.Float64("amount", *approved.Amount))
	if in.SendEmail && s.notifier != nil {
		s.notifier.RequestApproved(ctx, approved)
	}
	return approved, nil
}

// Decline rejects a pending or approved request. Declining an approved
// request releases its occupancy.
func (s *BookingRequestService) Decline(ctx context.Context, id string, in dto.DeclineRequest) (*models.BookingRequest, error) {
	var declined *models.BookingRequest
	err := s.occupancy.Write(ctx, "decline", func(w *Write) error {
		req, err := s.lockRequest(ctx, w, id)
		if err != nil {
			return err
		}
		sched, err := s.occupancy.Schedule(req.Timing)
		if err != nil {
			return err
		}
		reason, wasApproved, err := s.lifecycle.Decline(req.Status, sched, in.Reason)
		if err != nil {
			return err
		}
		if wasApproved {
			if err := w.Release(req.ID, sched); err != nil {
				return err
			}
		}

		req.Status = booking.StatusDeclined
		req.DeclineReason = &reason
		if err := s.repo.UpdateReview(ctx, w.Tx(), req); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decline booking request")
		}
		declined = req
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("booking request declined", zap.String("id", declined.ID))
	if in.SendEmail && s.notifier != nil {
		s.notifier.RequestDeclined(ctx, declined)
	}
	return declined, nil
}

// UpdateEndDate moves the recurrence end of a pending or approved request.
// Approved requests are re-checked over the new range.
func (s *BookingRequestService) UpdateEndDate(ctx context.Context, id string, in dto.UpdateEndDateRequest) (*models.BookingRequest, error) {
	if err := s.validator.Struct(in); err != nil {
		return nil, validationError(err, "invalid end date")
	}
	newEnd, err := booking.ParseDate(in.EndDate)
	if err != nil {
		return nil, err
	}

	var updated *models.BookingRequest
	err = s.occupancy.Write(ctx, "edit_end_date", func(w *Write) error {
		req, err := s.lockRequest(ctx, w, id)
		if err != nil {
			return err
		}
		sched, err := s.occupancy.Schedule(req.Timing)
		if err != nil {
			return err
		}
		next, err := s.lifecycle.EditRequestEndDate(req.Status, sched, newEnd)
		if err != nil {
			return err
		}
		if req.Status == booking.StatusApproved {
			if err := w.Replace(requestSource(req), sched, next); err != nil {
				return err
			}
		} else if _, err := s.occupancy.Expand(next); err != nil {
			return err
		}

		if err := s.repo.UpdateEndDate(ctx, w.Tx(), req.ID, newEnd.String()); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update end date")
		}
		req.EndDate = newEnd.String()
		updated = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// UpdateAmount re-prices an approved, unpaid request inside the edit window.
func (s *BookingRequestService) UpdateAmount(ctx context.Context, id string, in dto.UpdateAmountRequest) (*models.BookingRequest, error) {
	if err := s.validator.Struct(in); err != nil {
		return nil, validationError(err, "invalid amount")
	}

	var updated *models.BookingRequest
	err := s.occupancy.Write(ctx, "edit_amount", func(w *Write) error {
		req, err := s.lockRequest(ctx, w, id)
		if err != nil {
			return err
		}
		sched, err := s.occupancy.Schedule(req.Timing)
		if err != nil {
			return err
		}
		if err := s.lifecycle.EditAmount(req.Status == booking.StatusApproved, req.Paid, sched); err != nil {
			return err
		}
		if err := s.repo.UpdateAmount(ctx, w.Tx(), req.ID, *in.Amount); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update amount")
		}
		if err := s.reprice(ctx, w, req, *in.Amount); err != nil {
			return err
		}
		req.Amount = in.Amount
		updated = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// reprice keeps an already generated, unpaid monthly invoice in step with the
// request's new amount.
func (s *BookingRequestService) reprice(ctx context.Context, w *Write, req *models.BookingRequest, amount float64) error {
	if s.invoices == nil {
		return nil
	}
	var previous float64
	if req.Amount != nil {
		previous = *req.Amount
	}
	delta := math.Round((amount-previous)*100) / 100
	if delta == 0 {
		return nil
	}
	n, err := s.invoices.AdjustOpenForRequest(ctx, w.Tx(), req.ID, delta)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update invoice total")
	}
	if n > 0 {
		s.logger.Info("open invoice repriced", zap.String("request_id", req.ID), zap.Float64("delta", delta), zap.Int64("invoices", n))
	}
	return nil
}

// MarkPaid flags an approved request as paid. Repeating it is a no-op.
func (s *BookingRequestService) MarkPaid(ctx context.Context, id string) (*models.BookingRequest, error) {
	var updated *models.BookingRequest
	err := s.occupancy.Write(ctx, "mark_paid", func(w *Write) error {
		req, err := s.lockRequest(ctx, w, id)
		if err != nil {
			return err
		}
		changed, err := s.lifecycle.MarkPaid(req.Status == booking.StatusApproved, req.Paid)
		if err != nil {
			return err
		}
		if changed {
			if _, err := s.repo.MarkPaid(ctx, w.Tx(), []string{req.ID}); err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark request paid")
			}
		}
		req.Paid = true
		updated = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a pending or declined request. Renters may only delete their own.
func (s *BookingRequestService) Delete(ctx context.Context, p models.Principal, id string) error {
	return s.occupancy.Write(ctx, "delete_request", func(w *Write) error {
		req, err := s.lockRequest(ctx, w, id)
		if err != nil {
			return err
		}
		if !p.IsAdmin() && req.OwnerID != p.UserID {
			return appErrors.ErrForbidden
		}
		if err := s.lifecycle.DeleteRequest(req.Status); err != nil {
			return err
		}
		if err := s.repo.Delete(ctx, w.Tx(), req.ID); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete booking request")
		}
		return nil
	})
}

func (s *BookingRequestService) lockRequest(ctx context.Context, w *Write, id string) (*models.BookingRequest, error) {
	req, err := s.repo.GetForUpdate(ctx, w.Tx(), id)
	if err != nil {
		return nil, requestLookupError(err)
	}
	return req, nil
}

func requestLookupError(err error) error {
	if repository.IsNotFound(err) {
		return appErrors.Clone(appErrors.ErrNotFound, "booking request not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load booking request")
}

// normaliseDate accepts either wire date encoding and returns YYYY-MM-DD.
func normaliseDate(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	d, err := booking.ParseDate(raw)
	if err != nil {
		return "", err
	}
	return d.String(), nil
}
