package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/rinkdesk/ice-booking-api/internal/booking"
	"github.com/rinkdesk/ice-booking-api/internal/dto"
	"github.com/rinkdesk/ice-booking-api/internal/models"
	"github.com/rinkdesk/ice-booking-api/internal/repository"
	appErrors "github.com/rinkdesk/ice-booking-api/pkg/errors"
)

type adminEventRepository interface {
	List(ctx context.Context, filter models.EventFilter) ([]models.AdminEvent, int, error)
	GetByID(ctx context.Context, id string) (*models.AdminEvent, error)
	GetForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.AdminEvent, error)
	Create(ctx context.Context, exec sqlx.ExtContext, event *models.AdminEvent) error
	UpdateEndDate(ctx context.Context, exec sqlx.ExtContext, id, endDate string) error
	UpdateAmount(ctx context.Context, exec sqlx.ExtContext, id string, amount float64) error
	MarkPaid(ctx context.Context, exec sqlx.ExtContext, id string) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
}

// AdminEventService manages rink-owned occupancy. Events hold their slots
// from the moment they are created.
type AdminEventService struct {
	repo      adminEventRepository
	occupancy *OccupancyService
	lifecycle *booking.Lifecycle
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAdminEventService constructs the service.
func NewAdminEventService(repo adminEventRepository, occupancy *OccupancyService, lifecycle *booking.Lifecycle, validate *validator.Validate, logger *zap.Logger) *AdminEventService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminEventService{
		repo:      repo,
		occupancy: occupancy,
		lifecycle: lifecycle,
		validator: newValidator(validate),
		logger:    logger,
	}
}

// List returns admin events intersecting the optional date range.
func (s *AdminEventService) List(ctx context.Context, q dto.ListEventsQuery) ([]models.AdminEvent, *models.Pagination, error) {
	if err := s.validator.Struct(q); err != nil {
		return nil, nil, validationError(err, "invalid event filters")
	}
	filter := models.EventFilter{Page: q.Page, PageSize: q.PageSize}
	var err error
	if filter.From, err = normaliseDate(q.From); err != nil {
		return nil, nil, err
	}
	if filter.To, err = normaliseDate(q.To); err != nil {
		return nil, nil, err
	}

	events, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list admin events")
	}
	page, size := q.Page, q.PageSize
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 50
	}
	return events, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one admin event.
func (s *AdminEventService) Get(ctx context.Context, id string) (*models.AdminEvent, error) {
	event, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, eventLookupError(err)
	}
	return event, nil
}

// Create adds an admin event after checking it against current occupancy.
func (s *AdminEventService) Create(ctx context.Context, p models.Principal, in dto.CreateEventRequest) (*models.AdminEvent, error) {
	if err := s.validator.Struct(in); err != nil {
		return nil, validationError(err, "invalid admin event")
	}
	sched, err := s.occupancy.ScheduleFromInput(in.ScheduleInput)
	if err != nil {
		return nil, err
	}
	if err := s.lifecycle.Submit(sched); err != nil {
		return nil, err
	}

	event := &models.AdminEvent{
		CreatedBy:   p.UserID,
		Title:       in.Title,
		Description: in.Description,
		Timing:      timingOf(sched),
		Billing:     models.Billing{Amount: in.Amount},
	}
	err = s.occupancy.Write(ctx, "create_event", func(w *Write) error {
		res, err := w.Check(booking.Candidate{Schedule: sched})
		if err != nil {
			return err
		}
		if res.HasConflicts {
			return conflictError(res)
		}
		if err := s.repo.Create(ctx, w.Tx(), event); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create admin event")
		}
		w.AfterCommit(func(idx *booking.Index) {
			idx.Insert(eventSource(event), res.Occurrences)
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("admin event created", zap.String("id", event.ID), zap.String("created_by", event.CreatedBy))
	return event, nil
}

// UpdateEndDate moves the recurrence end of an event that has not started.
func (s *AdminEventService) UpdateEndDate(ctx context.Context, id string, in dto.UpdateEndDateRequest) (*models.AdminEvent, error) {
	if err := s.validator.Struct(in); err != nil {
		return nil, validationError(err, "invalid end date")
	}
	newEnd, err := booking.ParseDate(in.EndDate)
	if err != nil {
		return nil, err
	}

	var updated *models.AdminEvent
	err = s.occupancy.Write(ctx, "edit_event_end_date", func(w *Write) error {
		event, err := s.lockEvent(ctx, w, id)
		if err != nil {
			return err
		}
		sched, err := s.occupancy.Schedule(event.Timing)
		if err != nil {
			return err
		}
		next, err := s.lifecycle.EditEventEndDate(sched, newEnd)
		if err != nil {
			return err
		}
		if err := w.Replace(eventSource(event), sched, next); err != nil {
			return err
		}
		if err := s.repo.UpdateEndDate(ctx, w.Tx(), event.ID, newEnd.String()); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update end date")
		}
		event.EndDate = newEnd.String()
		updated = event
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// UpdateAmount re-prices an unpaid event inside the edit window.
func (s *AdminEventService) UpdateAmount(ctx context.Context, id string, in dto.UpdateAmountRequest) (*models.AdminEvent, error) {
	if err := s.validator.Struct(in); err != nil {
		return nil, validationError(err, "invalid amount")
	}

	var updated *models.AdminEvent
	err := s.occupancy.Write(ctx, "edit_event_amount", func(w *Write) error {
		event, err := s.lockEvent(ctx, w, id)
		if err != nil {
			return err
		}
		sched, err := s.occupancy.Schedule(event.Timing)
		if err != nil {
			return err
		}
		if err := s.lifecycle.EditAmount(true, event.Paid, sched); err != nil {
			return err
		}
		if err := s.repo.UpdateAmount(ctx, w.Tx(), event.ID, *in.Amount); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update amount")
		}
		event.Amount = in.Amount
		updated = event
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// MarkPaid flags an event paid. Repeating it is a no-op.
func (s *AdminEventService) MarkPaid(ctx context.Context, id string) (*models.AdminEvent, error) {
	var updated *models.AdminEvent
	err := s.occupancy.Write(ctx, "mark_event_paid", func(w *Write) error {
		event, err := s.lockEvent(ctx, w, id)
		if err != nil {
			return err
		}
		changed, err := s.lifecycle.MarkPaid(true, event.Paid)
		if err != nil {
			return err
		}
		if changed {
			if err := s.repo.MarkPaid(ctx, w.Tx(), event.ID); err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark event paid")
			}
		}
		event.Paid = true
		updated = event
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes an event that has not started and frees its occupancy.
func (s *AdminEventService) Delete(ctx context.Context, id string) error {
	return s.occupancy.Write(ctx, "delete_event", func(w *Write) error {
		event, err := s.lockEvent(ctx, w, id)
		if err != nil {
			return err
		}
		sched, err := s.occupancy.Schedule(event.Timing)
		if err != nil {
			return err
		}
		if err := s.lifecycle.DeleteEvent(sched); err != nil {
			return err
		}
		if err := w.Release(event.ID, sched); err != nil {
			return err
		}
		if err := s.repo.Delete(ctx, w.Tx(), event.ID); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete admin event")
		}
		return nil
	})
}

func (s *AdminEventService) lockEvent(ctx context.Context, w *Write, id string) (*models.AdminEvent, error) {
	event, err := s.repo.GetForUpdate(ctx, w.Tx(), id)
	if err != nil {
		return nil, eventLookupError(err)
	}
	return event, nil
}

func eventLookupError(err error) error {
	if repository.IsNotFound(err) {
		return appErrors.Clone(appErrors.ErrNotFound, "admin event not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load admin event")
}
