package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifyhq/notification-engine/internal/models"
	"github.com/notifyhq/notification-engine/internal/repository"
)

// stubRepo feeds ClaimDue from a queue and records outcome updates.
type stubRepo struct {
	due      []models.Notification
	claimErr error

	claimedLimit int
	outcomes     map[string]models.Status
}

func (r *stubRepo) ClaimDue(_ context.Context, _ time.Time, limit int) ([]models.Notification, error) {
	if r.claimErr != nil {
		return nil, r.claimErr
	}
	r.claimedLimit = limit
	due := r.due
	r.due = nil
	return due, nil
}

func (r *stubRepo) UpdateDispatchOutcome(_ context.Context, id string, status models.Status, _ time.Time, _ []models.DeliveryResult) (models.Notification, error) {
	if r.outcomes == nil {
		r.outcomes = make(map[string]models.Status)
	}
	r.outcomes[id] = status
	return models.Notification{ID: id, Status: status}, nil
}

func (r *stubRepo) Create(_ context.Context, n models.Notification) (models.Notification, error) {
	return n, nil
}

func (r *stubRepo) GetByID(_ context.Context, _ string) (models.Notification, error) {
	return models.Notification{}, nil
}

func (r *stubRepo) ListHistory(_ context.Context, _ string, _ repository.HistoryFilter) ([]models.Notification, int, error) {
	return nil, 0, nil
}

func (r *stubRepo) Stats(_ context.Context, _ repository.StatsFilter) (models.NotificationStats, error) {
	return models.NotificationStats{}, nil
}

func (r *stubRepo) ApplyDeliveryStatus(_ context.Context, _ string, _ bool, _ string) (bool, error) {
	return false, nil
}

// stubService implements only Redispatch; the scheduler touches nothing else.
type stubService struct {
	redispatched []string
	failIDs      map[string]error
	panicIDs     map[string]bool
}

func (s *stubService) Redispatch(_ context.Context, notif models.Notification) (models.Notification, error) {
	s.redispatched = append(s.redispatched, notif.ID)
	if s.panicIDs[notif.ID] {
		panic("dispatcher blew up")
	}
	if err, ok := s.failIDs[notif.ID]; ok {
		return models.Notification{}, err
	}
	notif.Status = models.StatusSent
	return notif, nil
}

func (s *stubService) Send(_ context.Context, _ models.NotificationRequest) (models.Notification, error) {
	return models.Notification{}, nil
}

func (s *stubService) SendBulk(_ context.Context, _ []models.NotificationRequest) ([]models.BulkItemResult, models.BulkSummary, error) {
	return nil, models.BulkSummary{}, nil
}

func (s *stubService) SendEmailDirect(_ context.Context, _ models.EmailRequest) (models.Notification, error) {
	return models.Notification{}, nil
}

func (s *stubService) SendSMSDirect(_ context.Context, _ models.SMSRequest) (models.Notification, error) {
	return models.Notification{}, nil
}

func (s *stubService) Get(_ context.Context, _ string) (models.Notification, error) {
	return models.Notification{}, nil
}

func (s *stubService) History(_ context.Context, _ string, _ repository.HistoryFilter) ([]models.Notification, int, error) {
	return nil, 0, nil
}

func (s *stubService) Stats(_ context.Context, _ repository.StatsFilter) (models.NotificationStats, error) {
	return models.NotificationStats{}, nil
}

func (s *stubService) GetPreferences(_ context.Context, _ string) (models.NotificationPreference, error) {
	return models.NotificationPreference{}, nil
}

func (s *stubService) UpdatePreferences(_ context.Context, p models.NotificationPreference) (models.NotificationPreference, error) {
	return p, nil
}

func dueNotification(id string) models.Notification {
	return models.Notification{
		ID:       id,
		Type:     "reminder",
		Status:   models.StatusProcessing,
		Channels: []models.Channel{models.ChannelEmail},
	}
}

func TestProcessDue_DispatchesClaimedItems(t *testing.T) {
	repo := &stubRepo{due: []models.Notification{dueNotification("n1"), dueNotification("n2")}}
	svc := &stubService{}
	s := New(repo, svc, time.Minute, 25, zerolog.Nop())

	processed, err := s.ProcessDue(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, processed)
	assert.Equal(t, []string{"n1", "n2"}, svc.redispatched)
	assert.Equal(t, 25, repo.claimedLimit)
	assert.Empty(t, repo.outcomes)
}

func TestProcessDue_NothingDue(t *testing.T) {
	repo := &stubRepo{}
	svc := &stubService{}
	s := New(repo, svc, time.Minute, 100, zerolog.Nop())

	processed, err := s.ProcessDue(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, processed)
	assert.Empty(t, svc.redispatched)
}

func TestProcessDue_ClaimErrorPropagates(t *testing.T) {
	repo := &stubRepo{claimErr: errors.New("connection reset")}
	s := New(repo, &stubService{}, time.Minute, 100, zerolog.Nop())

	_, err := s.ProcessDue(context.Background(), time.Now())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestProcessDue_ItemFailureDoesNotHaltBatch(t *testing.T) {
	repo := &stubRepo{due: []models.Notification{
		dueNotification("ok-1"),
		dueNotification("bad"),
		dueNotification("ok-2"),
	}}
	svc := &stubService{failIDs: map[string]error{"bad": errors.New("smtp down")}}
	s := New(repo, svc, time.Minute, 100, zerolog.Nop())

	processed, err := s.ProcessDue(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 3, processed)
	assert.Equal(t, []string{"ok-1", "bad", "ok-2"}, svc.redispatched)
	assert.Equal(t, models.StatusFailed, repo.outcomes["bad"])
	assert.NotContains(t, repo.outcomes, "ok-1")
	assert.NotContains(t, repo.outcomes, "ok-2")
}

func TestProcessDue_RecoversPanicAndMarksFailed(t *testing.T) {
	repo := &stubRepo{due: []models.Notification{
		dueNotification("explodes"),
		dueNotification("fine"),
	}}
	svc := &stubService{panicIDs: map[string]bool{"explodes": true}}
	s := New(repo, svc, time.Minute, 100, zerolog.Nop())

	processed, err := s.ProcessDue(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, processed)
	assert.Equal(t, models.StatusFailed, repo.outcomes["explodes"])
	assert.NotContains(t, repo.outcomes, "fine")
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	repo := &stubRepo{}
	s := New(repo, &stubService{}, 10*time.Millisecond, 100, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := s.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
