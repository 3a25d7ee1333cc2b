package repository

import (
	"context"
	"fmt"
	"time"
)

// Reminded сообщает, отправлено ли напоминание для записи и слота.
func (r *PostgresRepository) Reminded(ctx context.Context, appointmentID, slot string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM reminders WHERE appointment_id = $1 AND time_slot = $2 AND expire_at > now())`,
		appointmentID, slot,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("select reminder: %w", err)
	}
	return exists, nil
}

// MarkReminded сохраняет отметку. Новый слот той же записи заменяет старую отметку.
func (r *PostgresRepository) MarkReminded(ctx context.Context, appointmentID, slot string, expireAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO reminders (appointment_id, time_slot, expire_at) VALUES ($1, $2, $3)
		 ON CONFLICT (appointment_id) DO UPDATE SET time_slot = EXCLUDED.time_slot, sent_at = now(), expire_at = EXCLUDED.expire_at`,
		appointmentID, slot, expireAt,
	)
	if err != nil {
		return fmt.Errorf("insert reminder: %w", err)
	}
	return nil
}

// PruneReminders удаляет отметки записей вне keep и устаревшие отметки.
func (r *PostgresRepository) PruneReminders(ctx context.Context, keep map[string]struct{}) error {
	ids := make([]string, 0, len(keep))
	for id := range keep {
		ids = append(ids, id)
	}

	_, err := r.pool.Exec(ctx,
		`DELETE FROM reminders WHERE NOT (appointment_id = ANY($1)) OR expire_at <= now()`,
		ids,
	)
	if err != nil {
		return fmt.Errorf("prune reminders: %w", err)
	}
	return nil
}
