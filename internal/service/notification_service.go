package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/formlane/forms-api/internal/models"
	"github.com/formlane/forms-api/pkg/config"
	"github.com/formlane/forms-api/pkg/jobs"
)

// Mailer delivers one notification email. The default implementation logs
// the message; production deployments plug in a real delivery backend.
type Mailer interface {
	Send(ctx context.Context, to []string, subject, body string) error
}

// LogMailer writes notification emails to the structured log instead of
// delivering them. Useful for development and as a safe default.
type LogMailer struct {
	Logger *zap.Logger
}

// Send logs the message.
func (m *LogMailer) Send(_ context.Context, to []string, subject, body string) error {
	logger := m.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("notification email",
		zap.Strings("to", to),
		zap.String("subject", subject),
		zap.Int("body_bytes", len(body)),
	)
	return nil
}

type notificationUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	EmailsByGroup(ctx context.Context, gid int64) ([]string, error)
}

type notificationCategoryRepository interface {
	FindByID(ctx context.Context, id int64) (*models.Category, error)
}

type notificationPayload struct {
	Form   *models.Form
	Result *models.Result
	Values []SubmissionValue
}

// NotificationService fans submission notifications out to the recipients
// selected by the form's on-submit action mask, through a retrying
// background queue so submissions never wait on delivery.
type NotificationService struct {
	users      notificationUserRepository
	categories notificationCategoryRepository
	mailer     Mailer
	metrics    *MetricsService
	queue      *jobs.Queue
	cfg        config.NotificationsConfig
	logger     *zap.Logger
}

// NewNotificationService constructs a NotificationService and its queue.
func NewNotificationService(users notificationUserRepository, categories notificationCategoryRepository, mailer Mailer, metrics *MetricsService, cfg config.NotificationsConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if mailer == nil {
		mailer = &LogMailer{Logger: logger}
	}
	s := &NotificationService{
		users:      users,
		categories: categories,
		mailer:     mailer,
		metrics:    metrics,
		cfg:        cfg,
		logger:     logger,
	}
	s.queue = jobs.NewQueue("notifications", s.process, jobs.QueueConfig{
		Workers:    cfg.WorkerConcurrency,
		MaxRetries: cfg.WorkerRetries,
		Logger:     logger,
	})
	return s
}

// Start launches the delivery workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains and stops the delivery workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// NotifySubmission enqueues delivery for a freshly stored submission.
func (s *NotificationService) NotifySubmission(_ context.Context, form *models.Form, result *models.Result, values []SubmissionValue) error {
	if !s.cfg.Enabled {
		return nil
	}
	return s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    "submission",
		Payload: notificationPayload{Form: form, Result: result, Values: values},
	})
}

func (s *NotificationService) process(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(notificationPayload)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", job.Payload)
	}

	recipients, err := s.recipients(ctx, payload.Form)
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		s.logger.Debug("no notification recipients", zap.String("form_id", payload.Form.ID))
		return nil
	}

	subject := fmt.Sprintf("New submission: %s", payload.Form.Name)
	if err := s.mailer.Send(ctx, recipients, subject, buildNotificationBody(payload)); err != nil {
		return fmt.Errorf("send notification for form %s: %w", payload.Form.ID, err)
	}
	s.metrics.RecordNotification()
	return nil
}

// recipients resolves the on-submit action mask plus the category's default
// notification targets into a deduplicated address list.
func (s *NotificationService) recipients(ctx context.Context, form *models.Form) ([]string, error) {
	seen := map[string]struct{}{}
	var out []string
	add := func(addr string) {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			return
		}
		key := strings.ToLower(addr)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, addr)
	}

	if form.OnSubmit&models.ActionMailOwner != 0 && form.Owner != "" {
		owner, err := s.users.FindByID(ctx, form.Owner)
		if err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("load form owner: %w", err)
			}
		} else {
			add(owner.Email)
		}
	}

	if form.OnSubmit&models.ActionMailGroup != 0 && form.GroupID > 0 {
		emails, err := s.users.EmailsByGroup(ctx, form.GroupID)
		if err != nil {
			return nil, fmt.Errorf("load group emails: %w", err)
		}
		for _, e := range emails {
			add(e)
		}
	}

	if form.OnSubmit&models.ActionMailAddrs != 0 {
		for _, addr := range splitAddrs(form.EmailAddrs) {
			add(addr)
		}
	}

	if form.CategoryID > 0 {
		cat, err := s.categories.FindByID(ctx, form.CategoryID)
		if err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("load category: %w", err)
			}
		} else {
			if cat.NotifyUID != "" {
				user, err := s.users.FindByID(ctx, cat.NotifyUID)
				if err == nil {
					add(user.Email)
				} else if !errors.Is(err, sql.ErrNoRows) {
					return nil, fmt.Errorf("load category notify user: %w", err)
				}
			}
			if cat.NotifyGID > 0 {
				emails, err := s.users.EmailsByGroup(ctx, cat.NotifyGID)
				if err != nil {
					return nil, fmt.Errorf("load category group emails: %w", err)
				}
				for _, e := range emails {
					add(e)
				}
			}
		}
	}

	return out, nil
}

func buildNotificationBody(payload notificationPayload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Form: %s\n", payload.Form.Name)
	if payload.Result != nil {
		fmt.Fprintf(&b, "Submitted: %s\n", payload.Result.SubmittedAt.Format("2006-01-02 15:04:05 MST"))
		if payload.Result.UID != models.AnonymousUID {
			fmt.Fprintf(&b, "Submitter: %s\n", payload.Result.UID)
		} else {
			b.WriteString("Submitter: anonymous\n")
		}
		if payload.Result.IP != "" {
			fmt.Fprintf(&b, "IP: %s\n", payload.Result.IP)
		}
	}
	b.WriteString("\n")
	for _, v := range payload.Values {
		fmt.Fprintf(&b, "%s: %s\n", v.Prompt, v.Value)
	}
	return b.String()
}

func splitAddrs(raw string) []string {
	if raw == "" {
		return nil
	}
	split := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ';' || r == ',' || r == ' '
	})
	return split
}
