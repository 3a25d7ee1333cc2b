package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/branchqueue/internal/model"
)

const (
	checkinSuffix     = "CheckIn"
	minPasswordLength = 6
)

// ListWindows возвращает окна отделения.
func (s *Service) ListWindows(ctx context.Context, branchID string) ([]model.Window, error) {
	branch, err := s.repo.GetBranch(ctx, branchID)
	if err != nil {
		return nil, err
	}
	return branch.Windows, nil
}

// Window возвращает одно окно отделения.
func (s *Service) Window(ctx context.Context, branchID string, number int) (*model.Window, error) {
	return s.repo.GetWindow(ctx, branchID, number)
}

// WindowInput описывает новое окно.
type WindowInput struct {
	Number    int      `json:"number"`
	DealTypes []string `json:"dealTypes"`
	Staff     string   `json:"staff"`
	Password  string   `json:"password"`
}

// AddWindow добавляет окно. Новое окно закрыто, пока его не откроют.
func (s *Service) AddWindow(ctx context.Context, branchID string, in WindowInput) (*model.Window, error) {
	if in.Number <= 0 {
		return nil, model.Invalid("number", "must be positive")
	}

	dealTypes, err := s.checkDealTypes(ctx, branchID, in.DealTypes)
	if err != nil {
		return nil, err
	}

	w := &model.Window{
		BranchID:  branchID,
		Number:    in.Number,
		DealTypes: dealTypes,
		Status:    model.WindowInactive,
		Staff:     strings.TrimSpace(in.Staff),
	}
	if in.Password != "" {
		if w.PasswordHash, err = hashPassword(in.Password); err != nil {
			return nil, err
		}
	}

	if err := s.repo.AddWindow(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// WindowPatch описывает изменение окна. Пустые поля не меняются.
type WindowPatch struct {
	Status    *model.WindowStatus `json:"status,omitempty"`
	DealTypes []string            `json:"dealTypes,omitempty"`
}

// UpdateWindow меняет статус и типы услуг окна. Каждое поле обновляется отдельно.
func (s *Service) UpdateWindow(ctx context.Context, branchID string, number int, patch WindowPatch) (*model.Window, error) {
	if patch.Status != nil {
		switch *patch.Status {
		case model.WindowActive, model.WindowInactive:
		default:
			return nil, model.Invalid("status", fmt.Sprintf("cannot set window status %q", *patch.Status))
		}
	}

	var dealTypes []string
	if patch.DealTypes != nil {
		var err error
		if dealTypes, err = s.checkDealTypes(ctx, branchID, patch.DealTypes); err != nil {
			return nil, err
		}
	}

	// статус проверяется и меняется одним условным обновлением в хранилище
	if patch.Status != nil {
		if err := s.repo.UpdateWindowStatus(ctx, branchID, number, *patch.Status); err != nil {
			return nil, err
		}
	}

	if dealTypes != nil {
		if err := s.repo.UpdateWindowDealTypes(ctx, branchID, number, dealTypes); err != nil {
			return nil, err
		}
	}

	return s.repo.GetWindow(ctx, branchID, number)
}

// AssignStaff назначает сотрудника окну и, если передан, задаёт его пароль.
func (s *Service) AssignStaff(ctx context.Context, branchID string, number int, staff, password string) (*model.Window, error) {
	staff = strings.TrimSpace(staff)
	if staff == "" {
		return nil, model.Invalid("staff", "required")
	}

	if err := s.repo.AssignWindowStaff(ctx, branchID, number, staff); err != nil {
		return nil, err
	}

	if password != "" {
		hash, err := hashPassword(password)
		if err != nil {
			return nil, err
		}
		if err := s.repo.UpdateWindowPassword(ctx, branchID, number, hash); err != nil {
			return nil, err
		}
	}

	return s.repo.GetWindow(ctx, branchID, number)
}

// DeleteWindow удаляет окно, если оно никого не обслуживает.
func (s *Service) DeleteWindow(ctx context.Context, branchID string, number int) error {
	return s.repo.DeleteWindow(ctx, branchID, number)
}

// checkDealTypes убирает дубликаты и проверяет, что банк предлагает эти услуги.
func (s *Service) checkDealTypes(ctx context.Context, branchID string, dealTypes []string) ([]string, error) {
	bank, err := s.repo.GetBankByBranch(ctx, branchID)
	if err != nil {
		return nil, err
	}

	offered := make(map[string]struct{}, len(bank.Deals))
	for _, d := range bank.Deals {
		offered[d.Name] = struct{}{}
	}

	res := make([]string, 0, len(dealTypes))
	for _, dt := range dealTypes {
		dt = strings.TrimSpace(dt)
		if _, ok := offered[dt]; !ok {
			return nil, model.Invalid("dealTypes", fmt.Sprintf("bank does not offer %q", dt))
		}
		if !slices.Contains(res, dt) {
			res = append(res, dt)
		}
	}
	return res, nil
}

// Login проверяет пароль сотрудника. Логин определяет роль:
// <branchId> для администратора, <branchId>CheckIn для ресепшена,
// <branchId><N> для сотрудника окна N.
func (s *Service) Login(ctx context.Context, login, password string) (*model.StaffIdentity, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return nil, model.Invalid("login", "login and password are required")
	}

	if branchID, ok := strings.CutSuffix(login, checkinSuffix); ok && branchID != "" {
		branch, err := s.repo.GetBranch(ctx, branchID)
		if err != nil {
			return nil, err
		}
		if !checkPassword(branch.CheckinPasswordHash, password) {
			return nil, model.ErrInvalidCredentials
		}
		return s.identity(ctx, branch, model.RoleCheckinStaff, nil)
	}

	branch, err := s.repo.GetBranch(ctx, login)
	switch {
	case err == nil:
		if !checkPassword(branch.PasswordHash, password) {
			return nil, model.ErrInvalidCredentials
		}
		return s.identity(ctx, branch, model.RoleBranchAdmin, nil)
	case !errors.Is(err, model.ErrBranchNotFound):
		return nil, err
	}

	branch, window, err := s.resolveWindowLogin(ctx, login)
	if err != nil {
		return nil, err
	}
	if !checkPassword(window.PasswordHash, password) {
		return nil, model.ErrInvalidCredentials
	}

	if err := s.repo.TouchWindowLogin(ctx, branch.ID, window.Number, s.clock()); err != nil {
		s.logger.Warn("stamp window login", zap.Error(err), zap.Int("window", window.Number))
	}
	return s.identity(ctx, branch, model.RoleWindowStaff, window)
}

// resolveWindowLogin разделяет логин на идентификатор отделения и номер окна.
// Сначала пробуется самый короткий числовой суффикс, поэтому отделение B1
// с окном 2 находится по логину B12.
func (s *Service) resolveWindowLogin(ctx context.Context, login string) (*model.Branch, *model.Window, error) {
	digits := 0
	for i := len(login) - 1; i > 0 && login[i] >= '0' && login[i] <= '9'; i-- {
		digits++
	}
	if digits == 0 {
		return nil, nil, model.ErrBranchNotFound
	}

	for n := 1; n <= digits; n++ {
		branchID, suffix := login[:len(login)-n], login[len(login)-n:]
		number, err := strconv.Atoi(suffix)
		if err != nil || number <= 0 {
			continue
		}

		branch, err := s.repo.GetBranch(ctx, branchID)
		if errors.Is(err, model.ErrBranchNotFound) {
			continue
		}
		if err != nil {
			return nil, nil, err
		}

		for i := range branch.Windows {
			if branch.Windows[i].Number == number {
				return branch, &branch.Windows[i], nil
			}
		}
		return nil, nil, model.ErrWindowNotFound
	}
	return nil, nil, model.ErrBranchNotFound
}

func (s *Service) identity(ctx context.Context, branch *model.Branch, role model.Role, window *model.Window) (*model.StaffIdentity, error) {
	bankName, _, err := s.repo.ReminderContext(ctx, branch.ID)
	if err != nil {
		return nil, err
	}

	id := &model.StaffIdentity{
		BankID:     branch.BankID,
		BankName:   bankName,
		BranchID:   branch.ID,
		BranchName: branch.Name,
		Role:       role,
	}
	if window != nil {
		id.WindowNumber = window.Number
		id.StaffName = window.Staff
		if id.StaffName == "" {
			id.StaffName = "Window Staff"
		}
	}
	return id, nil
}

// ChangeBranchPassword меняет пароль администратора отделения.
func (s *Service) ChangeBranchPassword(ctx context.Context, branchID, current, next string) error {
	if len(next) < minPasswordLength {
		return model.Invalid("newPassword", fmt.Sprintf("must be at least %d characters", minPasswordLength))
	}

	branch, err := s.repo.GetBranch(ctx, branchID)
	if err != nil {
		return err
	}
	if !checkPassword(branch.PasswordHash, current) {
		return model.ErrInvalidCredentials
	}

	hash, err := hashPassword(next)
	if err != nil {
		return err
	}
	return s.repo.UpdateBranchPassword(ctx, branchID, hash)
}

func hashPassword(password string) ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

func checkPassword(hash []byte, password string) bool {
	if len(hash) == 0 {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}
