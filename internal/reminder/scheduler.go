// Package reminder отправляет одно напоминание о скором визите на каждую запись.
package reminder

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/branchqueue/internal/model"
	"github.com/mmeshcher/branchqueue/internal/slot"
)

// Границы окна напоминания в минутах до начала слота.
const (
	WindowFromMinutes = 29
	WindowToMinutes   = 31
)

const reminderMessage = "Please arrive a few minutes early and keep your access code at hand."

// Store читает записи и данные для отображения.
type Store interface {
	AppointmentsForDay(ctx context.Context, dayPrefix string) ([]model.Appointment, error)
	GetAppointment(ctx context.Context, id string) (*model.Appointment, error)
	ReminderContext(ctx context.Context, branchID string) (bankName, branchName string, err error)
}

// Notifier доставляет напоминание.
type Notifier interface {
	SendReminder(ctx context.Context, note model.Notification) error
}

// Markers хранит пары (запись, слот), по которым напоминание уже отправлено.
type Markers interface {
	Reminded(ctx context.Context, appointmentID, slot string) (bool, error)
	MarkReminded(ctx context.Context, appointmentID, slot string, expireAt time.Time) error
	PruneReminders(ctx context.Context, keep map[string]struct{}) error
}

// Config содержит параметры планировщика.
type Config struct {
	Interval time.Duration
	Location *time.Location
}

// Scheduler выполняет проходы напоминаний. Проходы не пересекаются.
type Scheduler struct {
	store    Store
	notifier Notifier
	markers  Markers
	logger   *zap.Logger
	interval time.Duration
	loc      *time.Location
	now      func() time.Time
	running  atomic.Bool
}

// New создаёт планировщик.
func New(store Store, notifier Notifier, markers Markers, logger *zap.Logger, cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Scheduler{
		store:    store,
		notifier: notifier,
		markers:  markers,
		logger:   logger,
		interval: cfg.Interval,
		loc:      cfg.Location,
		now:      time.Now,
	}
}

// Run выполняет проходы до отмены ctx.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	s.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// медленный проход не должен задерживать канал тикера
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.Tick(ctx)
			}()
		}
	}
}

// Tick выполняет один проход. Возвращает false, если уже идёт другой проход.
func (s *Scheduler) Tick(ctx context.Context) bool {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("reminder tick skipped, previous tick still running")
		return false
	}
	defer s.running.Store(false)

	now := s.now().In(s.loc)
	prefix := slot.DayPrefix(slot.FromTime(now))

	appointments, err := s.store.AppointmentsForDay(ctx, prefix)
	if err != nil {
		s.logger.Error("load appointments for reminders", zap.Error(err), zap.String("day", prefix))
		return true
	}

	keep := make(map[string]struct{}, len(appointments))
	for i := range appointments {
		a := &appointments[i]
		keep[a.ID] = struct{}{}

		if a.Status.Terminal() {
			continue
		}

		m, err := slot.Parse(a.TimeSlot)
		if err != nil {
			s.logger.Warn("skip appointment with malformed slot", zap.String("appointmentID", a.ID), zap.String("slot", a.TimeSlot))
			continue
		}

		diff := m.Time(s.loc).Sub(now).Minutes()
		if diff < WindowFromMinutes || diff > WindowToMinutes {
			continue
		}

		reminded, err := s.markers.Reminded(ctx, a.ID, a.TimeSlot)
		if err != nil {
			s.logger.Error("read reminder marker", zap.Error(err), zap.String("appointmentID", a.ID))
			continue
		}
		if reminded {
			continue
		}

		if err := s.send(ctx, a, m); err != nil {
			s.logger.Error("send reminder", zap.Error(err), zap.String("appointmentID", a.ID))
			continue
		}
		s.logger.Info("reminder sent", zap.String("appointmentID", a.ID), zap.String("slot", a.TimeSlot))
	}

	if err := s.markers.PruneReminders(ctx, keep); err != nil {
		s.logger.Error("prune reminder markers", zap.Error(err))
	}
	return true
}

// ForceSend немедленно отправляет напоминание по записи без учёта окна напоминания.
func (s *Scheduler) ForceSend(ctx context.Context, appointmentID string) error {
	a, err := s.store.GetAppointment(ctx, appointmentID)
	if err != nil {
		return err
	}
	m, err := slot.Parse(a.TimeSlot)
	if err != nil {
		return err
	}
	return s.send(ctx, a, m)
}

// send сохраняет отметку только после подтверждения доставки.
func (s *Scheduler) send(ctx context.Context, a *model.Appointment, m slot.Moment) error {
	bankName, branchName, err := s.store.ReminderContext(ctx, a.BranchID)
	if err != nil {
		return fmt.Errorf("resolve branch: %w", err)
	}

	note := model.Notification{
		CustomerName:    a.Customer.Name,
		CustomerEmail:   a.Customer.Email,
		CustomerPhone:   a.Customer.Phone,
		BankName:        bankName,
		BranchName:      branchName,
		Message:         reminderMessage,
		AppointmentType: a.Service.Type,
		AppointmentTime: m.Display(),
	}
	if a.WindowNumber != nil {
		note.WindowNumber = *a.WindowNumber
	}

	if err := s.notifier.SendReminder(ctx, note); err != nil {
		return err
	}

	expireAt := m.Date().Time(s.loc).AddDate(0, 0, 1)
	if err := s.markers.MarkReminded(ctx, a.ID, a.TimeSlot, expireAt); err != nil {
		return fmt.Errorf("record reminder marker: %w", err)
	}
	return nil
}
