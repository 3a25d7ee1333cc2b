package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/branchqueue/internal/model"
)

// GetBank возвращает банк с каталогом услуг и отделениями.
func (r *PostgresRepository) GetBank(ctx context.Context, bankID string) (*model.Bank, error) {
	var b model.Bank
	err := r.pool.QueryRow(ctx, `SELECT id, name, logo FROM banks WHERE id = $1`, bankID).
		Scan(&b.ID, &b.Name, &b.Logo)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrBankNotFound
		}
		return nil, fmt.Errorf("get bank: %w", err)
	}

	if b.Deals, err = r.bankDeals(ctx, bankID); err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, bank_id, name, address FROM branches WHERE bank_id = $1 ORDER BY name`, bankID,
	)
	if err != nil {
		return nil, fmt.Errorf("select branches: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var br model.Branch
		if err := rows.Scan(&br.ID, &br.BankID, &br.Name, &br.Address); err != nil {
			return nil, fmt.Errorf("scan branch: %w", err)
		}
		b.Branches = append(b.Branches, br)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &b, nil
}

func (r *PostgresRepository) bankDeals(ctx context.Context, bankID string) ([]model.Deal, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT entity_type, name FROM bank_deals WHERE bank_id = $1 ORDER BY entity_type, name`, bankID,
	)
	if err != nil {
		return nil, fmt.Errorf("select deals: %w", err)
	}
	defer rows.Close()

	var res []model.Deal
	for rows.Next() {
		var d model.Deal
		if err := rows.Scan(&d.EntityType, &d.Name); err != nil {
			return nil, fmt.Errorf("scan deal: %w", err)
		}
		res = append(res, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// GetBankByBranch возвращает банк отделения с каталогом услуг.
func (r *PostgresRepository) GetBankByBranch(ctx context.Context, branchID string) (*model.Bank, error) {
	var b model.Bank
	err := r.pool.QueryRow(ctx,
		`SELECT b.id, b.name, b.logo FROM banks b JOIN branches br ON br.bank_id = b.id WHERE br.id = $1`,
		branchID,
	).Scan(&b.ID, &b.Name, &b.Logo)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrBranchNotFound
		}
		return nil, fmt.Errorf("get bank by branch: %w", err)
	}

	if b.Deals, err = r.bankDeals(ctx, b.ID); err != nil {
		return nil, err
	}
	return &b, nil
}

// GetBranch возвращает отделение с его окнами.
func (r *PostgresRepository) GetBranch(ctx context.Context, branchID string) (*model.Branch, error) {
	var b model.Branch
	err := r.pool.QueryRow(ctx,
		`SELECT id, bank_id, name, address, password_hash, checkin_password_hash FROM branches WHERE id = $1`,
		branchID,
	).Scan(&b.ID, &b.BankID, &b.Name, &b.Address, &b.PasswordHash, &b.CheckinPasswordHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrBranchNotFound
		}
		return nil, fmt.Errorf("get branch: %w", err)
	}

	if b.Windows, err = r.ListWindows(ctx, branchID); err != nil {
		return nil, err
	}
	return &b, nil
}

// ReminderContext возвращает названия для текста напоминания.
func (r *PostgresRepository) ReminderContext(ctx context.Context, branchID string) (string, string, error) {
	var bankName, branchName string
	err := r.pool.QueryRow(ctx,
		`SELECT b.name, br.name FROM branches br JOIN banks b ON b.id = br.bank_id WHERE br.id = $1`,
		branchID,
	).Scan(&bankName, &branchName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", model.ErrBranchNotFound
		}
		return "", "", fmt.Errorf("reminder context: %w", err)
	}
	return bankName, branchName, nil
}

// UpdateBranchPassword заменяет хеш пароля администратора отделения.
func (r *PostgresRepository) UpdateBranchPassword(ctx context.Context, branchID string, hash []byte) error {
	tag, err := r.pool.Exec(ctx, `UPDATE branches SET password_hash = $2 WHERE id = $1`, branchID, hash)
	if err != nil {
		return fmt.Errorf("update branch password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrBranchNotFound
	}
	return nil
}

const windowColumns = `branch_id, number, status, deal_types, current_appointment, staff_name, password_hash, last_login_at`

func scanWindow(row pgx.Row) (*model.Window, error) {
	var (
		w      model.Window
		status string
	)
	if err := row.Scan(&w.BranchID, &w.Number, &status, &w.DealTypes, &w.CurrentAppointment, &w.Staff, &w.PasswordHash, &w.LastLogin); err != nil {
		return nil, err
	}
	w.Status = model.WindowStatus(status)
	return &w, nil
}

// ListWindows возвращает окна отделения по возрастанию номера.
func (r *PostgresRepository) ListWindows(ctx context.Context, branchID string) ([]model.Window, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+windowColumns+` FROM windows WHERE branch_id = $1 ORDER BY number`, branchID,
	)
	if err != nil {
		return nil, fmt.Errorf("select windows: %w", err)
	}
	defer rows.Close()

	var res []model.Window
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan window: %w", err)
		}
		res = append(res, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// GetWindow возвращает одно окно.
func (r *PostgresRepository) GetWindow(ctx context.Context, branchID string, number int) (*model.Window, error) {
	w, err := scanWindow(r.pool.QueryRow(ctx,
		`SELECT `+windowColumns+` FROM windows WHERE branch_id = $1 AND number = $2`, branchID, number,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrWindowNotFound
		}
		return nil, fmt.Errorf("get window: %w", err)
	}
	return w, nil
}

// AddWindow добавляет окно. Занятый номер считается конфликтом.
func (r *PostgresRepository) AddWindow(ctx context.Context, w *model.Window) error {
	dealTypes := w.DealTypes
	if dealTypes == nil {
		dealTypes = []string{}
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO windows (branch_id, number, status, deal_types, staff_name, password_hash)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		w.BranchID, w.Number, string(w.Status), dealTypes, w.Staff, w.PasswordHash,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.ErrWindowExists
		}
		return fmt.Errorf("insert window: %w", err)
	}
	return nil
}

func (r *PostgresRepository) updateWindow(ctx context.Context, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update window: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrWindowNotFound
	}
	return nil
}

// UpdateWindowStatus устанавливает статус окна одним условным UPDATE.
// Окно, обслуживающее клиента, не меняется: возвращается model.ErrWindowServing.
func (r *PostgresRepository) UpdateWindowStatus(ctx context.Context, branchID string, number int, status model.WindowStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE windows SET status = $3
		 WHERE branch_id = $1 AND number = $2 AND status <> $4 AND current_appointment IS NULL`,
		branchID, number, string(status), string(model.WindowServing),
	)
	if err != nil {
		return fmt.Errorf("update window status: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	if _, err := r.GetWindow(ctx, branchID, number); err != nil {
		return err
	}
	return model.ErrWindowServing
}

// UpdateWindowDealTypes заменяет типы услуг, которые обслуживает окно.
func (r *PostgresRepository) UpdateWindowDealTypes(ctx context.Context, branchID string, number int, dealTypes []string) error {
	if dealTypes == nil {
		dealTypes = []string{}
	}
	return r.updateWindow(ctx,
		`UPDATE windows SET deal_types = $3 WHERE branch_id = $1 AND number = $2`,
		branchID, number, dealTypes,
	)
}

// SetWindowAppointment связывает окно с записью или снимает связь, если id равен nil.
// Связанное окно обслуживает клиента, после снятия связи оно снова активно.
func (r *PostgresRepository) SetWindowAppointment(ctx context.Context, branchID string, number int, appointmentID *string) error {
	status := model.WindowActive
	if appointmentID != nil {
		status = model.WindowServing
	}
	return r.updateWindow(ctx,
		`UPDATE windows SET current_appointment = $3, status = $4 WHERE branch_id = $1 AND number = $2`,
		branchID, number, appointmentID, string(status),
	)
}

// AssignWindowStaff задаёт имя сотрудника окна.
func (r *PostgresRepository) AssignWindowStaff(ctx context.Context, branchID string, number int, staff string) error {
	return r.updateWindow(ctx,
		`UPDATE windows SET staff_name = $3 WHERE branch_id = $1 AND number = $2`,
		branchID, number, staff,
	)
}

// TouchWindowLogin сохраняет время последнего входа сотрудника.
func (r *PostgresRepository) TouchWindowLogin(ctx context.Context, branchID string, number int, at time.Time) error {
	return r.updateWindow(ctx,
		`UPDATE windows SET last_login_at = $3 WHERE branch_id = $1 AND number = $2`,
		branchID, number, at,
	)
}

// DeleteWindow удаляет окно, если оно не обслуживает клиента.
func (r *PostgresRepository) DeleteWindow(ctx context.Context, branchID string, number int) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM windows
		 WHERE branch_id = $1 AND number = $2 AND status <> $3 AND current_appointment IS NULL`,
		branchID, number, string(model.WindowServing),
	)
	if err != nil {
		return fmt.Errorf("delete window: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	if _, err := r.GetWindow(ctx, branchID, number); err != nil {
		return err
	}
	return model.ErrWindowServing
}

// ClearWindowAppointment снимает привязку окна, только если окно обслуживает указанную запись.
func (r *PostgresRepository) ClearWindowAppointment(ctx context.Context, branchID string, number int, appointmentID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE windows SET current_appointment = NULL, status = $4
		 WHERE branch_id = $1 AND number = $2 AND current_appointment = $3`,
		branchID, number, appointmentID, string(model.WindowActive),
	)
	if err != nil {
		return fmt.Errorf("clear window appointment: %w", err)
	}
	return nil
}

// UpdateWindowPassword заменяет хеш пароля сотрудника окна.
func (r *PostgresRepository) UpdateWindowPassword(ctx context.Context, branchID string, number int, hash []byte) error {
	return r.updateWindow(ctx,
		`UPDATE windows SET password_hash = $3 WHERE branch_id = $1 AND number = $2`,
		branchID, number, hash,
	)
}
