package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/branchqueue/internal/assignment"
	"github.com/mmeshcher/branchqueue/internal/events"
	"github.com/mmeshcher/branchqueue/internal/lifecycle"
	"github.com/mmeshcher/branchqueue/internal/model"
	"github.com/mmeshcher/branchqueue/internal/notify"
	"github.com/mmeshcher/branchqueue/internal/slot"
)

// CheckIn отмечает приход клиента по идентификатору записи.
func (s *Service) CheckIn(ctx context.Context, branchID, id string) (*model.Appointment, error) {
	return s.transition(ctx, branchID, id, func(a *model.Appointment) error {
		return lifecycle.CheckIn(a, s.clock())
	})
}

// CheckInByCode отмечает приход клиента по коду доступа. Прошедшие записи не принимаются.
func (s *Service) CheckInByCode(ctx context.Context, branchID, code string) (*model.Appointment, error) {
	a, err := s.findByCode(ctx, branchID, code, false)
	if err != nil {
		return nil, err
	}
	return s.CheckIn(ctx, branchID, a.ID)
}

// UpdateStatus применяет запрос сотрудника на смену статуса.
func (s *Service) UpdateStatus(ctx context.Context, branchID, id string, u lifecycle.StatusUpdate) (*model.Appointment, error) {
	if u.Status == model.StatusInProgress && u.WindowNumber != nil {
		if _, err := s.repo.GetWindow(ctx, branchID, *u.WindowNumber); err != nil {
			return nil, err
		}
	}

	var prevWindow *int
	updated, err := s.transition(ctx, branchID, id, func(a *model.Appointment) error {
		if a.WindowNumber != nil {
			n := *a.WindowNumber
			prevWindow = &n
		}
		return lifecycle.Apply(a, u, s.clock())
	})
	if err != nil {
		return nil, err
	}

	// окно, к которому клиента вызвали раньше, больше его не обслуживает
	if prevWindow != nil && (updated.WindowNumber == nil || *prevWindow != *updated.WindowNumber) {
		if err := s.repo.ClearWindowAppointment(ctx, branchID, *prevWindow, updated.ID); err != nil {
			s.logger.Warn("previous window link not cleared",
				zap.Error(err),
				zap.String("appointmentID", updated.ID),
				zap.Int("window", *prevWindow),
			)
		}
	}

	if updated.WindowNumber == nil {
		return updated, nil
	}
	window := *updated.WindowNumber

	switch {
	case updated.Status == model.StatusInProgress:
		err = s.repo.SetWindowAppointment(ctx, branchID, window, &updated.ID)
	case updated.Status.Terminal():
		err = s.repo.ClearWindowAppointment(ctx, branchID, window, updated.ID)
	}
	if err != nil {
		s.logger.Warn("window link not updated",
			zap.Error(err),
			zap.String("appointmentID", updated.ID),
			zap.Int("window", window),
		)
	}
	return updated, nil
}

// transition выполняет переход под блокировкой записи и публикует событие.
func (s *Service) transition(ctx context.Context, branchID, id string, apply func(a *model.Appointment) error) (*model.Appointment, error) {
	var prev model.AppointmentStatus

	updated, err := s.repo.UpdateAppointment(ctx, id, func(a *model.Appointment) error {
		if err := checkOwner(a, branchID); err != nil {
			return err
		}
		prev = a.Status
		return apply(a)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.TypeStatusChanged, updated, func(e *events.Event) {
		e.PreviousStatus = prev
	})
	return updated, nil
}

// CallRequest описывает вызов клиента к окну.
type CallRequest struct {
	WindowNumber int
	Message      string
	Channels     []notify.Channel
}

// NotifyCustomer вызывает клиента к окну. Если доставлен хотя бы один канал,
// запись помечается уведомлённой, а окно переходит в обслуживание.
func (s *Service) NotifyCustomer(ctx context.Context, branchID, id string, req CallRequest) (*model.Appointment, error) {
	if req.WindowNumber <= 0 {
		return nil, model.Invalid("windowNumber", "must be positive")
	}
	if len(req.Channels) == 0 {
		req.Channels = []notify.Channel{notify.ChannelEmail, notify.ChannelSMS}
	}
	for _, ch := range req.Channels {
		if ch != notify.ChannelEmail && ch != notify.ChannelSMS {
			return nil, model.Invalid("notificationType", fmt.Sprintf("unknown channel %q", ch))
		}
	}

	a, err := s.loadOwned(ctx, branchID, id)
	if err != nil {
		return nil, err
	}
	if a.Status.Terminal() {
		return nil, fmt.Errorf("%w: appointment is %s", model.ErrInvalidState, a.Status)
	}
	if _, err := s.repo.GetWindow(ctx, branchID, req.WindowNumber); err != nil {
		return nil, err
	}

	bankName, branchName, err := s.repo.ReminderContext(ctx, branchID)
	if err != nil {
		return nil, err
	}

	message := req.Message
	if message == "" {
		message = fmt.Sprintf("Please proceed to Window %d for your service.", req.WindowNumber)
	}

	note := model.Notification{
		CustomerName:    a.Customer.Name,
		CustomerEmail:   a.Customer.Email,
		CustomerPhone:   a.Customer.Phone,
		BankName:        bankName,
		BranchName:      branchName,
		WindowNumber:    req.WindowNumber,
		Message:         message,
		AppointmentType: a.Service.Type,
		AppointmentTime: a.TimeSlot,
	}
	if err := s.notifier.CallToWindow(ctx, note, req.Channels); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateAppointment(ctx, id, func(a *model.Appointment) error {
		now := s.clock()
		n := req.WindowNumber
		a.NotificationSent = true
		a.NotificationTime = &now
		a.WindowNumber = &n
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.repo.SetWindowAppointment(ctx, branchID, req.WindowNumber, &updated.ID); err != nil {
		return nil, err
	}
	return updated, nil
}

// pendingToday возвращает сегодняшние записи отделения, ожидающие окна.
func (s *Service) pendingToday(ctx context.Context, branchID string) ([]model.Appointment, error) {
	list, err := s.repo.ListAppointmentsByDays(ctx, branchID, []string{slot.DayPrefix(s.today())})
	if err != nil {
		return nil, err
	}

	res := make([]model.Appointment, 0, len(list))
	for _, a := range list {
		if a.Status.Pending() {
			res = append(res, a)
		}
	}
	return res, nil
}

// Assignments распределяет ожидающие записи по открытым окнам отделения.
func (s *Service) Assignments(ctx context.Context, branchID string) (*assignment.Result, error) {
	branch, err := s.repo.GetBranch(ctx, branchID)
	if err != nil {
		return nil, err
	}

	pending, err := s.pendingToday(ctx, branchID)
	if err != nil {
		return nil, err
	}

	res := assignment.Assign(pending, branch.Windows)
	if len(res.Unroutable) > 0 || len(res.Unassignable) > 0 {
		s.logger.Warn("appointments left out of window queues",
			zap.String("branchID", branchID),
			zap.Int("unroutable", len(res.Unroutable)),
			zap.Int("unassignableTypes", len(res.Unassignable)),
		)
	}
	return &res, nil
}

// WindowQueue возвращает очередь одного окна.
func (s *Service) WindowQueue(ctx context.Context, branchID string, number int) ([]model.Appointment, error) {
	branch, err := s.repo.GetBranch(ctx, branchID)
	if err != nil {
		return nil, err
	}

	found := false
	for _, w := range branch.Windows {
		if w.Number == number {
			found = true
			break
		}
	}
	if !found {
		return nil, model.ErrWindowNotFound
	}

	pending, err := s.pendingToday(ctx, branchID)
	if err != nil {
		return nil, err
	}
	return assignment.WindowAppointments(pending, branch.Windows, number), nil
}

// ForceReminder немедленно отправляет напоминание по записи.
func (s *Service) ForceReminder(ctx context.Context, branchID, id string) error {
	if s.reminders == nil {
		return fmt.Errorf("%w: reminders are not configured", model.ErrUpstream)
	}
	if _, err := s.loadOwned(ctx, branchID, id); err != nil {
		return err
	}
	return s.reminders.ForceSend(ctx, id)
}
