package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/studiva/campus-portal-api/internal/models"
	appErrors "github.com/studiva/campus-portal-api/pkg/errors"
	"github.com/studiva/campus-portal-api/pkg/jobs"
)

type notificationStore interface {
	Create(ctx context.Context, notification *models.Notification) error
	CreateBatch(ctx context.Context, notifications []models.Notification) error
	ListByUser(ctx context.Context, userID string, page, pageSize int) ([]models.Notification, int, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, id, userID string) (bool, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

type recipientLister interface {
	ListIDsByRole(ctx context.Context, role models.UserRole) ([]string, error)
}

const (
	jobNotify    = "notify"
	jobBroadcast = "broadcast"
)

type notifyPayload struct {
	Notification models.Notification
}

type broadcastPayload struct {
	Audience models.AnnouncementAudience
	Title    string
	Message  string
	Type     models.NotificationType
}

// NotificationService writes per-user notifications and fans broadcasts
// out to whole audiences through a background worker pool. Delivery is
// asynchronous and best-effort; the durable state transitions it
// announces have already committed.
type NotificationService struct {
	repo      notificationStore
	users     recipientLister
	cache     *CacheService
	queue     *jobs.Queue
	unreadTTL time.Duration
	logger    *zap.Logger
}

// NewNotificationService constructs the service and its queue. Call
// Start before enqueueing and Stop on shutdown.
func NewNotificationService(repo notificationStore, users recipientLister, cache *CacheService, queueCfg jobs.QueueConfig, unreadTTL time.Duration, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if unreadTTL <= 0 {
		unreadTTL = time.Minute
	}
	s := &NotificationService{repo: repo, users: users, cache: cache, unreadTTL: unreadTTL, logger: logger}
	queueCfg.Logger = logger
	s.queue = jobs.NewQueue("notifications", s.handleJob, queueCfg)
	return s
}

// Start launches the worker pool.
func (s *NotificationService) Start(ctx context.Context) { s.queue.Start(ctx) }

// Stop drains the worker pool.
func (s *NotificationService) Stop() { s.queue.Stop() }

// QueueDepth reports jobs waiting in the buffer, for the metrics gauge.
func (s *NotificationService) QueueDepth() int { return s.queue.Depth() }

// Notify enqueues a single notification for a user. Failures are logged
// and swallowed so callers never fail on notification delivery.
func (s *NotificationService) Notify(ctx context.Context, userID, title, message string, ntype models.NotificationType) {
	job := jobs.Job{
		ID:   uuid.NewString(),
		Type: jobNotify,
		Payload: notifyPayload{Notification: models.Notification{
			UserID:  userID,
			Title:   title,
			Message: message,
			Type:    ntype,
		}},
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("failed to enqueue notification", zap.String("user_id", userID), zap.Error(err))
	}
}

// Broadcast enqueues a fan-out to every user in the audience.
func (s *NotificationService) Broadcast(ctx context.Context, audience models.AnnouncementAudience, title, message string, ntype models.NotificationType) {
	job := jobs.Job{
		ID:      uuid.NewString(),
		Type:    jobBroadcast,
		Payload: broadcastPayload{Audience: audience, Title: title, Message: message, Type: ntype},
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("failed to enqueue broadcast", zap.String("audience", string(audience)), zap.Error(err))
	}
}

// ListByUser returns a user's notifications with pagination metadata.
func (s *NotificationService) ListByUser(ctx context.Context, userID string, page, pageSize int) ([]models.Notification, *models.Pagination, error) {
	notifications, total, err := s.repo.ListByUser(ctx, userID, page, pageSize)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	return notifications, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// UnreadCount returns the unread badge count, served from cache when warm.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	key := unreadCountKey(userID)
	var cached int
	if s.cache != nil && s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}

	count, err := s.repo.UnreadCount(ctx, userID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count unread notifications")
	}
	if s.cache != nil {
		s.cache.Set(ctx, key, count, s.unreadTTL)
	}
	return count, nil
}

// MarkRead flags one notification as read for its owner.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID string) error {
	updated, err := s.repo.MarkRead(ctx, id, userID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
	}
	if !updated {
		return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
	}
	s.invalidateUnread(ctx, userID)
	return nil
}

// MarkAllRead flags every unread notification of a user as read.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	affected, err := s.repo.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notifications read")
	}
	s.invalidateUnread(ctx, userID)
	return affected, nil
}

func (s *NotificationService) handleJob(ctx context.Context, job jobs.Job) error {
	switch payload := job.Payload.(type) {
	case notifyPayload:
		notification := payload.Notification
		if err := s.repo.Create(ctx, &notification); err != nil {
			return err
		}
		s.invalidateUnread(ctx, notification.UserID)
		return nil
	case broadcastPayload:
		return s.deliverBroadcast(ctx, payload)
	default:
		s.logger.Error("unknown notification job", zap.String("job_type", job.Type))
		return nil
	}
}

func (s *NotificationService) deliverBroadcast(ctx context.Context, payload broadcastPayload) error {
	var roles []models.UserRole
	switch payload.Audience {
	case models.AnnouncementAudienceStudents:
		roles = []models.UserRole{models.RoleStudent}
	case models.AnnouncementAudienceAdmins:
		roles = []models.UserRole{models.RoleAdmin}
	default:
		roles = []models.UserRole{models.RoleStudent, models.RoleAdmin}
	}

	var recipients []string
	for _, role := range roles {
		ids, err := s.users.ListIDsByRole(ctx, role)
		if err != nil {
			return fmt.Errorf("list %s recipients: %w", role, err)
		}
		recipients = append(recipients, ids...)
	}
	if len(recipients) == 0 {
		return nil
	}

	notifications := make([]models.Notification, 0, len(recipients))
	for _, userID := range recipients {
		notifications = append(notifications, models.Notification{
			UserID:  userID,
			Title:   payload.Title,
			Message: payload.Message,
			Type:    payload.Type,
		})
	}
	if err := s.repo.CreateBatch(ctx, notifications); err != nil {
		return err
	}

	for _, userID := range recipients {
		s.invalidateUnread(ctx, userID)
	}
	s.logger.Info("broadcast delivered",
		zap.String("audience", string(payload.Audience)),
		zap.Int("recipients", len(recipients)))
	return nil
}

func (s *NotificationService) invalidateUnread(ctx context.Context, userID string) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, unreadCountKey(userID))
	}
}

func unreadCountKey(userID string) string {
	return fmt.Sprintf("notifications:unread:%s", userID)
}
