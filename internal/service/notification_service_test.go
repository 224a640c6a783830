package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/studiva/campus-portal-api/internal/models"
	appErrors "github.com/studiva/campus-portal-api/pkg/errors"
	"github.com/studiva/campus-portal-api/pkg/jobs"
)

type notificationStoreStub struct {
	mu            sync.Mutex
	notifications []models.Notification
	seq           int
}

func (s *notificationStoreStub) Create(ctx context.Context, notification *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	notification.ID = fmt.Sprintf("ntf-%d", s.seq)
	s.notifications = append(s.notifications, *notification)
	return nil
}

func (s *notificationStoreStub) CreateBatch(ctx context.Context, notifications []models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, notifications...)
	return nil
}

func (s *notificationStoreStub) ListByUser(ctx context.Context, userID string, page, pageSize int) ([]models.Notification, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.Notification
	for _, notification := range s.notifications {
		if notification.UserID == userID {
			result = append(result, notification)
		}
	}
	return result, len(result), nil
}

func (s *notificationStoreStub) UnreadCount(ctx context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, notification := range s.notifications {
		if notification.UserID == userID && !notification.Read {
			count++
		}
	}
	return count, nil
}

func (s *notificationStoreStub) MarkRead(ctx context.Context, id, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.notifications {
		if s.notifications[i].ID == id && s.notifications[i].UserID == userID && !s.notifications[i].Read {
			s.notifications[i].Read = true
			return true, nil
		}
	}
	return false, nil
}

func (s *notificationStoreStub) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var affected int64
	for i := range s.notifications {
		if s.notifications[i].UserID == userID && !s.notifications[i].Read {
			s.notifications[i].Read = true
			affected++
		}
	}
	return affected, nil
}

func (s *notificationStoreStub) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.notifications)
}

type recipientListerStub struct {
	byRole map[models.UserRole][]string
}

func (s *recipientListerStub) ListIDsByRole(ctx context.Context, role models.UserRole) ([]string, error) {
	return s.byRole[role], nil
}

func startNotificationService(t *testing.T, store *notificationStoreStub, users *recipientListerStub) *NotificationService {
	t.Helper()
	svc := NewNotificationService(store, users, nil, jobs.QueueConfig{Workers: 1, BufferSize: 8}, time.Minute, nil)
	svc.Start(context.Background())
	t.Cleanup(svc.Stop)
	return svc
}

func TestNotificationServiceNotifyDelivers(t *testing.T) {
	store := &notificationStoreStub{}
	svc := startNotificationService(t, store, &recipientListerStub{})

	svc.Notify(context.Background(), "user-1", "Request approved", "Your enrollment request has been approved.", models.NotificationSuccess)

	require.Eventually(t, func() bool { return store.count() == 1 }, time.Second, 10*time.Millisecond)

	notifications, _, err := svc.ListByUser(context.Background(), "user-1", 1, 20)
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	require.Equal(t, "Request approved", notifications[0].Title)
	require.False(t, notifications[0].Read)
}

func TestNotificationServiceBroadcastFansOut(t *testing.T) {
	store := &notificationStoreStub{}
	users := &recipientListerStub{byRole: map[models.UserRole][]string{
		models.RoleStudent: {"user-1", "user-2"},
		models.RoleAdmin:   {"admin-1"},
	}}
	svc := startNotificationService(t, store, users)

	svc.Broadcast(context.Background(), models.AnnouncementAudienceStudents, "Holiday", "Campus closed Friday.", models.NotificationInfo)

	require.Eventually(t, func() bool { return store.count() == 2 }, time.Second, 10*time.Millisecond)

	count, err := svc.UnreadCount(context.Background(), "user-2")
	require.NoError(t, err)
	require.Equal(t, 1, count)

	count, err = svc.UnreadCount(context.Background(), "admin-1")
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestNotificationServiceMarkReadNotFound(t *testing.T) {
	store := &notificationStoreStub{}
	svc := startNotificationService(t, store, &recipientListerStub{})

	err := svc.MarkRead(context.Background(), "missing", "user-1")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestNotificationServiceMarkAllRead(t *testing.T) {
	store := &notificationStoreStub{}
	svc := startNotificationService(t, store, &recipientListerStub{})

	svc.Notify(context.Background(), "user-1", "One", "first", models.NotificationInfo)
	svc.Notify(context.Background(), "user-1", "Two", "second", models.NotificationInfo)
	require.Eventually(t, func() bool { return store.count() == 2 }, time.Second, 10*time.Millisecond)

	affected, err := svc.MarkAllRead(context.Background(), "user-1")
	require.NoError(t, err)
	require.EqualValues(t, 2, affected)

	count, err := svc.UnreadCount(context.Background(), "user-1")
	require.NoError(t, err)
	require.Zero(t, count)
}
