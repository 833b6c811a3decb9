package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"github.com/notifyhq/notification-engine/internal/models"
)

type PreferenceRepository interface {
	// Get returns sql.ErrNoRows when the user has no stored preferences.
	Get(ctx context.Context, userID string) (models.NotificationPreference, error)
	Upsert(ctx context.Context, pref models.NotificationPreference) (models.NotificationPreference, error)
}

type preferenceRepository struct {
	db *sql.DB
}

func NewPreferenceRepository(db *sql.DB) PreferenceRepository {
	return &preferenceRepository{db: db}
}

const preferenceColumns = `user_id, email, phone, global_opt_out, channels, notification_types, created_at, updated_at`

func (r *preferenceRepository) Get(ctx context.Context, userID string) (models.NotificationPreference, error) {
	query := `SELECT ` + preferenceColumns + ` FROM notification_preferences WHERE user_id = $1`
	row := r.db.QueryRowContext(ctx, query, strings.TrimSpace(userID))
	return scanPreference(row)
}

func (r *preferenceRepository) Upsert(ctx context.Context, pref models.NotificationPreference) (models.NotificationPreference, error) {
	channels, err := marshalJSON(pref.Channels)
	if err != nil {
		return models.NotificationPreference{}, errors.Wrap(err, "marshal channels")
	}
	types, err := marshalJSON(pref.NotificationTypes)
	if err != nil {
		return models.NotificationPreference{}, errors.Wrap(err, "marshal notification types")
	}

	query := `
		INSERT INTO notification_preferences (user_id, email, phone, global_opt_out, channels, notification_types)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE
		SET email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			global_opt_out = EXCLUDED.global_opt_out,
			channels = EXCLUDED.channels,
			notification_types = EXCLUDED.notification_types,
			updated_at = NOW()
		RETURNING ` + preferenceColumns

	row := r.db.QueryRowContext(ctx, query,
		strings.TrimSpace(pref.UserID),
		pref.Email,
		pref.Phone,
		pref.GlobalOptOut,
		channels,
		types,
	)
	return scanPreference(row)
}

func scanPreference(scanner interface {
	Scan(dest ...interface{}) error
}) (models.NotificationPreference, error) {
	var (
		pref        models.NotificationPreference
		channelsRaw []byte
		typesRaw    []byte
	)

	if err := scanner.Scan(
		&pref.UserID,
		&pref.Email,
		&pref.Phone,
		&pref.GlobalOptOut,
		&channelsRaw,
		&typesRaw,
		&pref.CreatedAt,
		&pref.UpdatedAt,
	); err != nil {
		return models.NotificationPreference{}, err
	}

	if len(channelsRaw) > 0 {
		if err := json.Unmarshal(channelsRaw, &pref.Channels); err != nil {
			return models.NotificationPreference{}, errors.Wrap(err, "unmarshal channels")
		}
	}
	if len(typesRaw) > 0 {
		if err := json.Unmarshal(typesRaw, &pref.NotificationTypes); err != nil {
			return models.NotificationPreference{}, errors.Wrap(err, "unmarshal notification types")
		}
	}
	return pref, nil
}
