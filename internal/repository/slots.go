package repository

import (
	"context"
	"fmt"

	"github.com/mmeshcher/branchqueue/internal/model"
)

// BusySlots возвращает занятые слоты отделения, начинающиеся с dayPrefix.
func (r *PostgresRepository) BusySlots(ctx context.Context, branchID, dayPrefix string) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT slot FROM busy_slots WHERE branch_id = $1 AND slot LIKE $2 || '%' ORDER BY slot`,
		branchID, dayPrefix,
	)
	if err != nil {
		return nil, fmt.Errorf("select busy slots: %w", err)
	}
	defer rows.Close()

	var res []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan busy slot: %w", err)
		}
		res = append(res, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ReserveSlot занимает слот. Первичный ключ делает проверку и вставку атомарными.
func (r *PostgresRepository) ReserveSlot(ctx context.Context, branchID, slot string) error {
	return r.withRetry(ctx, func() error {
		tag, err := r.pool.Exec(ctx,
			`INSERT INTO busy_slots (branch_id, slot) VALUES ($1, $2) ON CONFLICT (branch_id, slot) DO NOTHING`,
			branchID, slot,
		)
		if err != nil {
			return fmt.Errorf("reserve slot: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return model.ErrSlotAlreadyBooked
		}
		return nil
	})
}

// ReleaseSlot освобождает слот. Отсутствующий слот не считается ошибкой.
func (r *PostgresRepository) ReleaseSlot(ctx context.Context, branchID, slot string) error {
	return r.withRetry(ctx, func() error {
		if _, err := r.pool.Exec(ctx,
			`DELETE FROM busy_slots WHERE branch_id = $1 AND slot = $2`,
			branchID, slot,
		); err != nil {
			return fmt.Errorf("release slot: %w", err)
		}
		return nil
	})
}

// MoveSlot занимает newSlot и освобождает oldSlot в одной транзакции.
func (r *PostgresRepository) MoveSlot(ctx context.Context, branchID, oldSlot, newSlot string) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		tag, err := tx.Exec(ctx,
			`INSERT INTO busy_slots (branch_id, slot) VALUES ($1, $2) ON CONFLICT (branch_id, slot) DO NOTHING`,
			branchID, newSlot,
		)
		if err != nil {
			return fmt.Errorf("reserve new slot: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return model.ErrSlotAlreadyBooked
		}

		if _, err := tx.Exec(ctx,
			`DELETE FROM busy_slots WHERE branch_id = $1 AND slot = $2`,
			branchID, oldSlot,
		); err != nil {
			return fmt.Errorf("release old slot: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}
