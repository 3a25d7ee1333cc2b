package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/branchqueue/internal/events"
	"github.com/mmeshcher/branchqueue/internal/lifecycle"
	"github.com/mmeshcher/branchqueue/internal/model"
	"github.com/mmeshcher/branchqueue/internal/slot"
	"github.com/mmeshcher/branchqueue/internal/validation"
)

// GetBank возвращает банк с каталогом услуг и отделениями.
func (s *Service) GetBank(ctx context.Context, bankID string) (*model.Bank, error) {
	return s.repo.GetBank(ctx, bankID)
}

// Deals возвращает услуги банка, доступные типу клиента.
func (s *Service) Deals(ctx context.Context, bankID, entityType string) ([]string, error) {
	if !slices.Contains(model.EntityTypes, entityType) {
		return nil, model.Invalid("entityType", fmt.Sprintf("unsupported entity type %q", entityType))
	}
	bank, err := s.repo.GetBank(ctx, bankID)
	if err != nil {
		return nil, err
	}
	return bank.DealsFor(entityType), nil
}

// EntityTypes возвращает поддерживаемые типы клиентов.
func (s *Service) EntityTypes() []string {
	return slices.Clone(model.EntityTypes)
}

// AvailableTimes возвращает свободные слоты отделения на дату.
func (s *Service) AvailableTimes(ctx context.Context, branchID, date string) ([]string, error) {
	day, err := s.branchDay(ctx, branchID, date)
	if err != nil {
		return nil, err
	}

	free, err := s.slots.AvailableSlots(ctx, branchID, day)
	if err != nil {
		return nil, err
	}

	res := make([]string, 0, len(free))
	for _, m := range free {
		res = append(res, slot.Format(m))
	}
	return res, nil
}

// BusyTimes возвращает занятые слоты отделения на дату.
func (s *Service) BusyTimes(ctx context.Context, branchID, date string) ([]string, error) {
	day, err := s.branchDay(ctx, branchID, date)
	if err != nil {
		return nil, err
	}
	return s.slots.BusySlots(ctx, branchID, day)
}

func (s *Service) branchDay(ctx context.Context, branchID, date string) (slot.Moment, error) {
	day, err := slot.ParseDate(date)
	if err != nil {
		return slot.Moment{}, model.Invalid("date", "expected YYYY-MM-DD")
	}
	if _, _, err := s.repo.ReminderContext(ctx, branchID); err != nil {
		return slot.Moment{}, err
	}
	return day, nil
}

// bookableSlot разбирает слот и проверяет, что он лежит на сетке дня и не в прошлом.
func (s *Service) bookableSlot(text string) (slot.Moment, error) {
	m, err := slot.Parse(text)
	if err != nil {
		return slot.Moment{}, model.Invalid("time", "expected DD/MM/YY/HH/MM")
	}
	if m.Hour < slot.DayStartHour || m.Hour >= slot.DayEndHour || m.Minute%slot.StepMinutes != 0 {
		return slot.Moment{}, model.Invalid("time", fmt.Sprintf("%s is outside the bookable grid", slot.Format(m)))
	}
	if m.Before(slot.FromTime(s.clock())) {
		return slot.Moment{}, model.Invalid("time", fmt.Sprintf("%s is in the past", slot.Format(m)))
	}
	return m, nil
}

// Book создаёт запись: сначала резервирует слот, затем сохраняет запись.
// Если запись не сохранилась, слот освобождается.
func (s *Service) Book(ctx context.Context, req lifecycle.BookingRequest) (*model.Appointment, error) {
	req.BranchID = strings.TrimSpace(req.BranchID)
	if req.BranchID == "" {
		return nil, model.Invalid("branchId", "required")
	}

	bank, err := s.repo.GetBankByBranch(ctx, req.BranchID)
	if err != nil {
		return nil, err
	}

	if err := lifecycle.ValidateBooking(req, bank.DealsFor(req.EntityType)); err != nil {
		return nil, err
	}

	m, err := s.bookableSlot(req.Time)
	if err != nil {
		return nil, err
	}

	code, err := lifecycle.NewAccessCode()
	if err != nil {
		return nil, err
	}

	customer := req.UserInfo
	if req.EntityType != model.EntityLegal {
		customer.CompanyName = ""
	}

	a := &model.Appointment{
		ID:         uuid.NewString(),
		BranchID:   req.BranchID,
		EntityType: req.EntityType,
		Service:    req.ResolvedService(),
		Customer:   customer,
		TimeSlot:   slot.Format(m),
		AccessCode: code,
		Status:     model.StatusScheduled,
	}

	if err := s.slots.Reserve(ctx, a.BranchID, m); err != nil {
		return nil, err
	}

	if err := s.repo.CreateAppointment(ctx, a); err != nil {
		if relErr := s.slots.Release(ctx, a.BranchID, m); relErr != nil {
			s.logger.Error("release slot after failed booking",
				zap.Error(relErr),
				zap.String("branchID", a.BranchID),
				zap.String("slot", a.TimeSlot),
			)
		}
		return nil, fmt.Errorf("save appointment: %w", err)
	}

	s.logger.Info("appointment booked",
		zap.String("appointmentID", a.ID),
		zap.String("branchID", a.BranchID),
		zap.String("slot", a.TimeSlot),
	)
	s.publish(ctx, events.TypeBooked, a, nil)
	s.confirm(ctx, a, m)
	return a, nil
}

// confirm отправляет клиенту подтверждение с кодом доступа. Ошибка доставки
// не отменяет бронирование и только логируется.
func (s *Service) confirm(ctx context.Context, a *model.Appointment, m slot.Moment) {
	bankName, branchName, err := s.repo.ReminderContext(ctx, a.BranchID)
	if err != nil {
		s.logger.Warn("booking confirmation skipped", zap.Error(err), zap.String("appointmentID", a.ID))
		return
	}

	note := model.Notification{
		CustomerName:    a.Customer.Name,
		CustomerEmail:   a.Customer.Email,
		CustomerPhone:   a.Customer.Phone,
		BankName:        bankName,
		BranchName:      branchName,
		AppointmentType: a.Service.Type,
		AppointmentTime: m.Display(),
		AccessCode:      a.AccessCode,
	}
	if err := s.notifier.SendConfirmation(ctx, note); err != nil {
		s.logger.Warn("booking confirmation not delivered",
			zap.Error(err),
			zap.String("appointmentID", a.ID),
		)
	}
}

// Delay переносит запись на другой слот. Новый слот резервируется до
// освобождения старого, поэтому при конфликте старый слот остаётся за записью.
func (s *Service) Delay(ctx context.Context, id, code, newTimeSlot string) (*model.Appointment, error) {
	newSlot, err := s.bookableSlot(newTimeSlot)
	if err != nil {
		return nil, err
	}

	var (
		moved    bool
		branchID string
		oldSlot  slot.Moment
		prevText string
	)

	updated, err := s.repo.UpdateAppointment(ctx, id, func(a *model.Appointment) error {
		if err := lifecycle.VerifyAccessCode(a, code); err != nil {
			return err
		}
		if !a.Status.Active() {
			return fmt.Errorf("%w: appointment is %s", model.ErrInvalidState, a.Status)
		}

		if !moved {
			cur, err := stored(a)
			if err != nil {
				return err
			}
			if slot.Compare(cur, newSlot) == 0 {
				return nil
			}
			if err := s.slots.Move(ctx, a.BranchID, cur, newSlot); err != nil {
				return err
			}
			moved, branchID, oldSlot, prevText = true, a.BranchID, cur, a.TimeSlot
		}

		a.TimeSlot = slot.Format(newSlot)
		return nil
	})
	if err != nil {
		if moved {
			if backErr := s.slots.Move(ctx, branchID, newSlot, oldSlot); backErr != nil {
				s.logger.Error("restore slot after failed delay",
					zap.Error(backErr),
					zap.String("appointmentID", id),
					zap.String("slot", slot.Format(oldSlot)),
				)
			}
		}
		return nil, err
	}

	if moved {
		s.publish(ctx, events.TypeRescheduled, updated, func(e *events.Event) {
			e.PreviousSlot = prevText
		})
	}
	return updated, nil
}

// Cancel отменяет запись по коду доступа и освобождает её слот.
// Повторная отмена уже отменённой записи снова освобождает слот, поэтому
// после сбоя освобождения запрос можно повторить.
func (s *Service) Cancel(ctx context.Context, id, code string) error {
	var (
		prev  model.AppointmentStatus
		retry bool
	)

	cancelled, err := s.repo.UpdateAppointment(ctx, id, func(a *model.Appointment) error {
		if err := lifecycle.VerifyAccessCode(a, code); err != nil {
			return err
		}
		if a.Status == model.StatusCancelled {
			retry = true
			return nil
		}
		if a.Status.Terminal() {
			return fmt.Errorf("%w: appointment is %s", model.ErrInvalidState, a.Status)
		}
		prev = a.Status
		a.Status = model.StatusCancelled
		return nil
	})
	if err != nil {
		return err
	}

	if !retry {
		s.publish(ctx, events.TypeCancelled, cancelled, func(e *events.Event) {
			e.PreviousStatus = prev
		})
	}

	if m, err := stored(cancelled); err != nil {
		s.logger.Error("cannot release malformed slot", zap.Error(err))
	} else if err := s.releaseCancelled(ctx, cancelled, m, retry); err != nil {
		return err
	}

	if err := s.repo.DeleteAppointment(ctx, id); err != nil {
		s.logger.Warn("cancelled appointment kept", zap.Error(err), zap.String("appointmentID", id))
	}
	return nil
}

// releaseCancelled освобождает слот отменённой записи. При повторной отмене
// слот мог уже перейти к новой записи, тогда он не трогается.
func (s *Service) releaseCancelled(ctx context.Context, a *model.Appointment, m slot.Moment, retry bool) error {
	if retry {
		list, err := s.repo.ListAppointmentsByDays(ctx, a.BranchID, []string{slot.DayPrefix(m)})
		if err != nil {
			return err
		}
		for _, other := range list {
			if other.ID != a.ID && other.TimeSlot == a.TimeSlot && other.Status.Active() {
				return nil
			}
		}
	}

	if err := s.slots.Release(ctx, a.BranchID, m); err != nil {
		return fmt.Errorf("release slot: %w", err)
	}
	return nil
}

// AppointmentByCode находит запись отделения по коду доступа.
// Предпочитается сегодняшняя запись, затем ближайшая будущая, затем последняя прошедшая.
func (s *Service) AppointmentByCode(ctx context.Context, branchID, code string) (*model.Appointment, error) {
	return s.findByCode(ctx, branchID, code, true)
}

func (s *Service) findByCode(ctx context.Context, branchID, code string, allowPast bool) (*model.Appointment, error) {
	code = strings.TrimSpace(code)
	if !validation.IsValidAccessCode(code) {
		return nil, model.Invalid("code", "must be 4 digits")
	}

	list, err := s.repo.FindAppointmentsByCode(ctx, branchID, code)
	if err != nil {
		return nil, err
	}

	a := pickByCode(list, s.today(), slot.FromTime(s.clock()), allowPast)
	if a == nil {
		return nil, model.ErrAppointmentNotFound
	}
	return a, nil
}

func pickByCode(list []model.Appointment, today, now slot.Moment, allowPast bool) *model.Appointment {
	var (
		upcoming, past     *model.Appointment
		upcomingAt, pastAt slot.Moment
	)
	todayPrefix := slot.DayPrefix(today)

	for i := range list {
		a := &list[i]
		m, err := slot.Parse(a.TimeSlot)
		if err != nil {
			continue
		}
		if slot.DayPrefix(m) == todayPrefix {
			return a
		}
		if m.Before(now) {
			if past == nil || pastAt.Before(m) {
				past, pastAt = a, m
			}
			continue
		}
		if upcoming == nil || m.Before(upcomingAt) {
			upcoming, upcomingAt = a, m
		}
	}

	if upcoming != nil {
		return upcoming
	}
	if allowPast {
		return past
	}
	return nil
}
