package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/notifyhq/notification-engine/internal/models"
)

// HistoryFilter narrows a user's notification history query.
type HistoryFilter struct {
	Type   string
	Status models.Status
	From   *time.Time
	To     *time.Time
	Page   int
	Limit  int
}

// StatsFilter narrows an aggregate stats query.
type StatsFilter struct {
	UserID      string
	From        *time.Time
	To          *time.Time
	GroupByType bool
}

type NotificationRepository interface {
	Create(ctx context.Context, notif models.Notification) (models.Notification, error)
	GetByID(ctx context.Context, id string) (models.Notification, error)
	UpdateDispatchOutcome(ctx context.Context, id string, status models.Status, sentAt time.Time, results []models.DeliveryResult) (models.Notification, error)
	ListHistory(ctx context.Context, userID string, filter HistoryFilter) ([]models.Notification, int, error)
	Stats(ctx context.Context, filter StatsFilter) (models.NotificationStats, error)
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]models.Notification, error)
	ApplyDeliveryStatus(ctx context.Context, messageID string, success bool, errMsg string) (bool, error)
}

type notificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

const notificationColumns = `id, user_id, type, title, message, channels, template_id, template_data,
	priority, status, scheduled_at, sent_at, delivery_results, metadata, version, created_at, updated_at`

func (r *notificationRepository) Create(ctx context.Context, notif models.Notification) (models.Notification, error) {
	if notif.ID == "" {
		notif.ID = uuid.NewString()
	}
	if notif.Priority == "" {
		notif.Priority = models.PriorityNormal
	}

	channels, err := marshalJSON(notif.Channels)
	if err != nil {
		return models.Notification{}, errors.Wrap(err, "marshal channels")
	}
	templateData, err := marshalJSON(notif.TemplateData)
	if err != nil {
		return models.Notification{}, errors.Wrap(err, "marshal template data")
	}
	results, err := marshalJSON(notif.DeliveryResults)
	if err != nil {
		return models.Notification{}, errors.Wrap(err, "marshal delivery results")
	}
	metadata, err := marshalJSON(notif.Metadata)
	if err != nil {
		return models.Notification{}, errors.Wrap(err, "marshal metadata")
	}

	query := fmt.Sprintf(`
		INSERT INTO notifications (id, user_id, type, title, message, channels, template_id, template_data,
			priority, status, scheduled_at, sent_at, delivery_results, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING %s`, notificationColumns)

	row := r.db.QueryRowContext(ctx, query,
		notif.ID,
		nullableString(notif.UserID),
		notif.Type,
		notif.Title,
		notif.Message,
		channels,
		nullableString(notif.TemplateID),
		templateData,
		notif.Priority,
		notif.Status,
		notif.ScheduledAt,
		notif.SentAt,
		results,
		metadata,
	)
	return scanNotification(row)
}

func (r *notificationRepository) GetByID(ctx context.Context, id string) (models.Notification, error) {
	query := fmt.Sprintf(`SELECT %s FROM notifications WHERE id = $1`, notificationColumns)
	row := r.db.QueryRowContext(ctx, query, strings.TrimSpace(id))
	return scanNotification(row)
}

func (r *notificationRepository) UpdateDispatchOutcome(ctx context.Context, id string, status models.Status, sentAt time.Time, results []models.DeliveryResult) (models.Notification, error) {
	resultsJSON, err := marshalJSON(results)
	if err != nil {
		return models.Notification{}, errors.Wrap(err, "marshal delivery results")
	}

	query := fmt.Sprintf(`
		UPDATE notifications
		SET status = $2, sent_at = $3, delivery_results = $4, version = version + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING %s`, notificationColumns)

	row := r.db.QueryRowContext(ctx, query, id, status, sentAt, resultsJSON)
	return scanNotification(row)
}

func (r *notificationRepository) ListHistory(ctx context.Context, userID string, filter HistoryFilter) ([]models.Notification, int, error) {
	where := []string{"user_id = $1"}
	args := []interface{}{strings.TrimSpace(userID)}

	if filter.Type != "" {
		args = append(args, filter.Type)
		where = append(where, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		where = append(where, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	whereClause := strings.Join(where, " AND ")

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM notifications WHERE %s`, whereClause)
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "count history")
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	args = append(args, limit, (page-1)*limit)

	query := fmt.Sprintf(`
		SELECT %s FROM notifications
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, notificationColumns, whereClause, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var notifications []models.Notification
	for rows.Next() {
		notif, err := scanNotification(rows)
		if err != nil {
			return nil, 0, err
		}
		notifications = append(notifications, notif)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return notifications, total, nil
}

func (r *notificationRepository) Stats(ctx context.Context, filter StatsFilter) (models.NotificationStats, error) {
	where := []string{"1=1"}
	var args []interface{}

	if filter.UserID != "" {
		args = append(args, filter.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		where = append(where, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	whereClause := strings.Join(where, " AND ")

	var stats models.NotificationStats

	query := fmt.Sprintf(`SELECT status, COUNT(*) FROM notifications WHERE %s GROUP BY status`, whereClause)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return models.NotificationStats{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var status models.Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return models.NotificationStats{}, err
		}
		addStatusCount(&stats.StatusCounts, status, count)
	}
	if err := rows.Err(); err != nil {
		return models.NotificationStats{}, err
	}

	if !filter.GroupByType {
		return stats, nil
	}

	typeQuery := fmt.Sprintf(`
		SELECT type, status, COUNT(*) FROM notifications
		WHERE %s
		GROUP BY type, status
		ORDER BY type`, whereClause)
	typeRows, err := r.db.QueryContext(ctx, typeQuery, args...)
	if err != nil {
		return models.NotificationStats{}, err
	}
	defer typeRows.Close()

	byType := make(map[string]*models.TypeStat)
	var order []string
	for typeRows.Next() {
		var notifType string
		var status models.Status
		var count int
		if err := typeRows.Scan(&notifType, &status, &count); err != nil {
			return models.NotificationStats{}, err
		}
		stat, ok := byType[notifType]
		if !ok {
			stat = &models.TypeStat{Type: notifType}
			byType[notifType] = stat
			order = append(order, notifType)
		}
		addStatusCount(&stat.StatusCounts, status, count)
	}
	if err := typeRows.Err(); err != nil {
		return models.NotificationStats{}, err
	}
	for _, notifType := range order {
		stats.ByType = append(stats.ByType, *byType[notifType])
	}
	return stats, nil
}

// ClaimDue transitions due scheduled notifications to processing inside one
// transaction. SKIP LOCKED keeps overlapping scheduler passes from claiming
// the same row.
func (r *notificationRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 100
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin claim transaction")
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`
		SELECT %s FROM notifications
		WHERE status = 'scheduled' AND scheduled_at <= $1
		ORDER BY scheduled_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT $2`, notificationColumns)

	rows, err := tx.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select due notifications")
	}

	var due []models.Notification
	for rows.Next() {
		notif, err := scanNotification(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		due = append(due, notif)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(due) == 0 {
		return nil, tx.Commit()
	}

	ids := make([]string, len(due))
	for i, notif := range due {
		ids[i] = notif.ID
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE notifications
		SET status = 'processing', version = version + 1, updated_at = NOW()
		WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
		return nil, errors.Wrap(err, "mark due notifications processing")
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit claim transaction")
	}
	for i := range due {
		due[i].Status = models.StatusProcessing
	}
	return due, nil
}

// ApplyDeliveryStatus rewrites the delivery result carrying the given
// provider message ID and re-derives the notification status. The row is
// locked for the read-modify-write and the version check guards against a
// concurrent writer that slipped in between. Returns false when no
// notification carries the message ID.
func (r *notificationRepository) ApplyDeliveryStatus(ctx context.Context, messageID string, success bool, errMsg string) (bool, error) {
	match, err := json.Marshal([]map[string]string{{"message_id": messageID}})
	if err != nil {
		return false, errors.Wrap(err, "marshal message id matcher")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, errors.Wrap(err, "begin status transaction")
	}
	defer tx.Rollback()

	var (
		id         string
		resultsRaw []byte
		version    int
	)
	err = tx.QueryRowContext(ctx, `
		SELECT id, delivery_results, version FROM notifications
		WHERE delivery_results @> $1
		FOR UPDATE
		LIMIT 1`, match).Scan(&id, &resultsRaw, &version)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "locate notification by message id")
	}

	var results []models.DeliveryResult
	if err := json.Unmarshal(resultsRaw, &results); err != nil {
		return false, errors.Wrap(err, "unmarshal delivery results")
	}
	for i := range results {
		if results[i].MessageID == messageID {
			results[i].Success = success
			results[i].Error = errMsg
		}
	}
	status := models.StatusFromResults(results)

	updated, err := marshalJSON(results)
	if err != nil {
		return false, errors.Wrap(err, "marshal delivery results")
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE notifications
		SET delivery_results = $2, status = $3, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $4`, id, updated, status, version)
	if err != nil {
		return false, errors.Wrap(err, "update delivery results")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, errors.Errorf("notification %s modified concurrently", id)
	}
	return true, tx.Commit()
}

func addStatusCount(counts *models.StatusCounts, status models.Status, count int) {
	counts.Total += count
	switch status {
	case models.StatusSent:
		counts.Sent += count
	case models.StatusPartial:
		counts.Partial += count
	case models.StatusFailed:
		counts.Failed += count
	case models.StatusScheduled, models.StatusProcessing:
		counts.Scheduled += count
	case models.StatusPending:
		counts.Pending += count
	}
}

func marshalJSON(v interface{}) (interface{}, error) {
	bytes, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(bytes) == "null" {
		return nil, nil
	}
	return bytes, nil
}

func nullableString(s *string) interface{} {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return strings.TrimSpace(*s)
}

func scanNotification(scanner interface {
	Scan(dest ...interface{}) error
}) (models.Notification, error) {
	var (
		notif           models.Notification
		userID          sql.NullString
		channelsRaw     []byte
		templateID      sql.NullString
		templateDataRaw []byte
		scheduledAt     sql.NullTime
		sentAt          sql.NullTime
		resultsRaw      []byte
		metadataRaw     []byte
	)

	if err := scanner.Scan(
		&notif.ID,
		&userID,
		&notif.Type,
		&notif.Title,
		&notif.Message,
		&channelsRaw,
		&templateID,
		&templateDataRaw,
		&notif.Priority,
		&notif.Status,
		&scheduledAt,
		&sentAt,
		&resultsRaw,
		&metadataRaw,
		&notif.Version,
		&notif.CreatedAt,
		&notif.UpdatedAt,
	); err != nil {
		return models.Notification{}, err
	}

	if userID.Valid {
		val := userID.String
		notif.UserID = &val
	}
	if templateID.Valid {
		val := templateID.String
		notif.TemplateID = &val
	}
	if scheduledAt.Valid {
		t := scheduledAt.Time
		notif.ScheduledAt = &t
	}
	if sentAt.Valid {
		t := sentAt.Time
		notif.SentAt = &t
	}
	if len(channelsRaw) > 0 {
		if err := json.Unmarshal(channelsRaw, &notif.Channels); err != nil {
			return models.Notification{}, errors.Wrap(err, "unmarshal channels")
		}
	}
	if len(templateDataRaw) > 0 {
		if err := json.Unmarshal(templateDataRaw, &notif.TemplateData); err != nil {
			return models.Notification{}, errors.Wrap(err, "unmarshal template data")
		}
	}
	if len(resultsRaw) > 0 {
		if err := json.Unmarshal(resultsRaw, &notif.DeliveryResults); err != nil {
			return models.Notification{}, errors.Wrap(err, "unmarshal delivery results")
		}
	}
	if len(metadataRaw) > 0 {
		if err := json.Unmarshal(metadataRaw, &notif.Metadata); err != nil {
			return models.Notification{}, errors.Wrap(err, "unmarshal metadata")
		}
	}
	return notif, nil
}
