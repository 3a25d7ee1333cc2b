package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/branchqueue/internal/model"
)

const appointmentColumns = `id, branch_id, entity_type, service_type, service_description,
	customer_name, customer_phone, customer_email, company_name, time_slot, access_code, status,
	checkin_time, service_start_time, completion_time, wait_duration, service_duration,
	window_number, notification_sent, notification_time, created_at`

func scanAppointment(row pgx.Row) (*model.Appointment, error) {
	var (
		a      model.Appointment
		status string
	)
	err := row.Scan(
		&a.ID, &a.BranchID, &a.EntityType, &a.Service.Type, &a.Service.Description,
		&a.Customer.Name, &a.Customer.Phone, &a.Customer.Email, &a.Customer.CompanyName,
		&a.TimeSlot, &a.AccessCode, &status,
		&a.CheckinTime, &a.ServiceStartTime, &a.CompletionTime, &a.WaitDuration, &a.ServiceDuration,
		&a.WindowNumber, &a.NotificationSent, &a.NotificationTime, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Status = model.AppointmentStatus(status)
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()

	var res []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		res = append(res, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// CreateAppointment добавляет новую запись.
func (r *PostgresRepository) CreateAppointment(ctx context.Context, a *model.Appointment) error {
	return r.withRetry(ctx, func() error {
		err := r.pool.QueryRow(ctx,
			`INSERT INTO appointments (id, branch_id, entity_type, service_type, service_description,
				customer_name, customer_phone, customer_email, company_name, time_slot, access_code, status)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			 RETURNING created_at`,
			a.ID, a.BranchID, a.EntityType, a.Service.Type, a.Service.Description,
			a.Customer.Name, a.Customer.Phone, a.Customer.Email, a.Customer.CompanyName,
			a.TimeSlot, a.AccessCode, string(a.Status),
		).Scan(&a.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: appointment %s already exists", model.ErrConflict, a.ID)
			}
			return fmt.Errorf("insert appointment: %w", err)
		}
		return nil
	})
}

// GetAppointment возвращает запись по идентификатору.
func (r *PostgresRepository) GetAppointment(ctx context.Context, id string) (*model.Appointment, error) {
	a, err := scanAppointment(r.pool.QueryRow(ctx,
		`SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return a, nil
}

// UpdateAppointment блокирует строку, применяет fn и сохраняет изменяемые поля.
// Одновременные изменения одной записи упорядочиваются блокировкой строки.
func (r *PostgresRepository) UpdateAppointment(ctx context.Context, id string, fn func(a *model.Appointment) error) (*model.Appointment, error) {
	var updated *model.Appointment

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		a, err := scanAppointment(tx.QueryRow(ctx,
			`SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 FOR UPDATE`, id,
		))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return model.ErrAppointmentNotFound
			}
			return fmt.Errorf("lock appointment: %w", err)
		}

		if err := fn(a); err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`UPDATE appointments SET
				time_slot = $2, status = $3, checkin_time = $4, service_start_time = $5,
				completion_time = $6, wait_duration = $7, service_duration = $8, window_number = $9,
				notification_sent = $10, notification_time = $11
			 WHERE id = $1`,
			a.ID, a.TimeSlot, string(a.Status), a.CheckinTime, a.ServiceStartTime,
			a.CompletionTime, a.WaitDuration, a.ServiceDuration, a.WindowNumber,
			a.NotificationSent, a.NotificationTime,
		)
		if err != nil {
			return fmt.Errorf("update appointment: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		updated = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteAppointment удаляет запись.
func (r *PostgresRepository) DeleteAppointment(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrAppointmentNotFound
	}
	return nil
}

// FindAppointmentsByCode возвращает записи отделения с указанным кодом доступа.
func (r *PostgresRepository) FindAppointmentsByCode(ctx context.Context, branchID, code string) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+appointmentColumns+` FROM appointments
		 WHERE branch_id = $1 AND upper(access_code) = upper($2)
		 ORDER BY created_at DESC`,
		branchID, code,
	)
	if err != nil {
		return nil, fmt.Errorf("select appointments by code: %w", err)
	}
	return collectAppointments(rows)
}

// ListAppointmentsByDays возвращает записи отделения, слот которых попадает в один из дней.
func (r *PostgresRepository) ListAppointmentsByDays(ctx context.Context, branchID string, dayPrefixes []string) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+appointmentColumns+` FROM appointments
		 WHERE branch_id = $1 AND substring(time_slot, 1, 8) = ANY($2)
		 ORDER BY created_at`,
		branchID, dayPrefixes,
	)
	if err != nil {
		return nil, fmt.Errorf("select appointments by days: %w", err)
	}
	return collectAppointments(rows)
}

// AppointmentsForDay возвращает записи всех отделений за день.
func (r *PostgresRepository) AppointmentsForDay(ctx context.Context, dayPrefix string) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+appointmentColumns+` FROM appointments
		 WHERE substring(time_slot, 1, 8) = $1
		 ORDER BY time_slot`,
		dayPrefix,
	)
	if err != nil {
		return nil, fmt.Errorf("select appointments for day: %w", err)
	}
	return collectAppointments(rows)
}
