package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rinkdesk/ice-booking-api/internal/models"
	"github.com/rinkdesk/ice-booking-api/pkg/jobs"
)

// Notification job types.
const (
	JobRequestApproved = "request_approved"
	JobRequestDeclined = "request_declined"
	JobInvoiceReady    = "invoice_ready"
)

// Message is an outbound notification.
type Message struct {
	Kind    string
	Ref     string
	To      string
	Subject string
	Body    string
}

// Notifier delivers messages.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// LogNotifier writes messages to the log instead of sending them.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger.Named("notify")}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(ctx context.Context, msg Message) error {
	n.logger.Info("notification",
		zap.String("kind", msg.Kind),
		zap.String("ref", msg.Ref),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
	)
	return nil
}

type jobQueue interface {
	Register(jobType string, handler jobs.Handler)
	Enqueue(job jobs.Job) error
}

// NotificationService turns booking outcomes into queued notifications.
// Enqueue failures are logged and never fail the originating operation.
type NotificationService struct {
	queue    jobQueue
	notifier Notifier
	rinkName string
	logger   *zap.Logger
}

// NewNotificationService registers the notification handlers on queue.
func NewNotificationService(queue jobQueue, notifier Notifier, rinkName string, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{queue: queue, notifier: notifier, rinkName: rinkName, logger: logger}
	for _, jobType := range []string{JobRequestApproved, JobRequestDeclined, JobInvoiceReady} {
		queue.Register(jobType, s.deliver)
	}
	return s
}

func (s *NotificationService) deliver(ctx context.Context, job jobs.Job) error {
	msg, ok := job.Payload.(Message)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", job.Payload, job.Type)
	}
	return s.notifier.Notify(ctx, msg)
}

// RequestApproved notifies the renter that their request was approved.
func (s *NotificationService) RequestApproved(ctx context.Context, req *models.BookingRequest) {
	body := fmt.Sprintf("Your booking %q on %s from %s to %s has been approved.", req.Title, req.StartDate, req.StartTime, req.EndTime)
	if req.Amount != nil {
		body += fmt.Sprintf(" Amount due: $%.2f.", *req.Amount)
	}
	s.enqueue(JobRequestApproved, Message{
		Ref:     req.ID,
		To:      req.ContactEmail,
		Subject: fmt.Sprintf("%s: booking approved", s.rinkName),
		Body:    body,
	})
}

// RequestDeclined notifies the renter that their request was declined.
func (s *NotificationService) RequestDeclined(ctx context.Context, req *models.BookingRequest) {
	reason := ""
	if req.DeclineReason != nil {
		reason = *req.DeclineReason
	}
	s.enqueue(JobRequestDeclined, Message{
		Ref:     req.ID,
		To:      req.ContactEmail,
		Subject: fmt.Sprintf("%s: booking declined", s.rinkName),
		Body:    fmt.Sprintf("Your booking %q on %s was declined. Reason: %s", req.Title, req.StartDate, reason),
	})
}

// InvoiceReady notifies the renter of a new monthly invoice.
func (s *NotificationService) InvoiceReady(ctx context.Context, inv *models.MonthlyInvoice) {
	s.enqueue(JobInvoiceReady, Message{
		Ref:     inv.ID,
		To:      inv.ContactEmail,
		Subject: fmt.Sprintf("%s: invoice for %04d-%02d", s.rinkName, inv.Year, inv.Month),
		Body:    fmt.Sprintf("Your invoice for %04d-%02d totals $%.2f across %d booking(s).", inv.Year, inv.Month, inv.Amount, len(inv.RequestIDs)),
	})
}

func (s *NotificationService) enqueue(jobType string, msg Message) {
	if msg.To == "" {
		s.logger.Debug("notification skipped, no recipient", zap.String("type", jobType), zap.String("ref", msg.Ref))
		return
	}
	msg.Kind = jobType
	if err := s.queue.Enqueue(jobs.Job{Type: jobType, Payload: msg}); err != nil {
		s.logger.Warn("failed to enqueue notification", zap.String("type", jobType), zap.String("ref", msg.Ref), zap.Error(err))
	}
}
