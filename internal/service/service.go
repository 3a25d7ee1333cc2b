// Package service реализует бизнес-логику записи в отделения и электронной очереди.
package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/branchqueue/internal/allocator"
	"github.com/mmeshcher/branchqueue/internal/events"
	"github.com/mmeshcher/branchqueue/internal/model"
	"github.com/mmeshcher/branchqueue/internal/notify"
	"github.com/mmeshcher/branchqueue/internal/slot"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error

	CreateAppointment(ctx context.Context, a *model.Appointment) error
	GetAppointment(ctx context.Context, id string) (*model.Appointment, error)
	UpdateAppointment(ctx context.Context, id string, fn func(a *model.Appointment) error) (*model.Appointment, error)
	DeleteAppointment(ctx context.Context, id string) error
	FindAppointmentsByCode(ctx context.Context, branchID, code string) ([]model.Appointment, error)
	ListAppointmentsByDays(ctx context.Context, branchID string, dayPrefixes []string) ([]model.Appointment, error)

	GetBank(ctx context.Context, bankID string) (*model.Bank, error)
	GetBankByBranch(ctx context.Context, branchID string) (*model.Bank, error)
	GetBranch(ctx context.Context, branchID string) (*model.Branch, error)
	ReminderContext(ctx context.Context, branchID string) (bankName, branchName string, err error)
	UpdateBranchPassword(ctx context.Context, branchID string, hash []byte) error

	GetWindow(ctx context.Context, branchID string, number int) (*model.Window, error)
	AddWindow(ctx context.Context, w *model.Window) error
	UpdateWindowStatus(ctx context.Context, branchID string, number int, status model.WindowStatus) error
	UpdateWindowDealTypes(ctx context.Context, branchID string, number int, dealTypes []string) error
	UpdateWindowPassword(ctx context.Context, branchID string, number int, hash []byte) error
	SetWindowAppointment(ctx context.Context, branchID string, number int, appointmentID *string) error
	ClearWindowAppointment(ctx context.Context, branchID string, number int, appointmentID string) error
	AssignWindowStaff(ctx context.Context, branchID string, number int, staff string) error
	TouchWindowLogin(ctx context.Context, branchID string, number int, at time.Time) error
	DeleteWindow(ctx context.Context, branchID string, number int) error
}

// Notifier подтверждает бронирования и вызывает клиентов к окну.
type Notifier interface {
	SendConfirmation(ctx context.Context, note model.Notification) error
	CallToWindow(ctx context.Context, note model.Notification, channels []notify.Channel) error
}

// ReminderSender отправляет напоминание по одной записи вне расписания.
type ReminderSender interface {
	ForceSend(ctx context.Context, appointmentID string) error
}

// Service содержит бизнес-логику записи и очереди.
type Service struct {
	repo      Repository
	slots     *allocator.Allocator
	notifier  Notifier
	reminders ReminderSender
	events    events.Publisher
	logger    *zap.Logger
	loc       *time.Location
	now       func() time.Time
}

// Option настраивает сервис.
type Option func(*Service)

// WithLocation задаёт часовой пояс, в котором интерпретируются слоты.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithEvents задаёт издателя доменных событий.
func WithEvents(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.events = p
		}
	}
}

// WithReminders подключает планировщик напоминаний.
func WithReminders(r ReminderSender) Option {
	return func(s *Service) {
		s.reminders = r
	}
}

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService создаёт новый сервис.
func NewService(repo Repository, slots *allocator.Allocator, notifier Notifier, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		slots:    slots,
		notifier: notifier,
		events:   events.Noop{},
		logger:   logger,
		loc:      time.Local,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if err := s.events.Close(); err != nil {
		s.logger.Warn("close event publisher", zap.Error(err))
	}
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// clock возвращает текущее время в часовом поясе отделений.
func (s *Service) clock() time.Time {
	return s.now().In(s.loc)
}

func (s *Service) today() slot.Moment {
	return slot.FromTime(s.clock()).Date()
}

// publish не влияет на результат операции: ошибка только логируется.
func (s *Service) publish(ctx context.Context, eventType string, a *model.Appointment, adjust func(*events.Event)) {
	e := events.New(eventType, a, s.clock())
	if adjust != nil {
		adjust(&e)
	}
	if err := s.events.Publish(ctx, e); err != nil {
		s.logger.Warn("publish event failed",
			zap.Error(err),
			zap.String("eventType", eventType),
			zap.String("appointmentID", a.ID),
		)
	}
}

// loadOwned возвращает запись, если она принадлежит отделению.
func (s *Service) loadOwned(ctx context.Context, branchID, id string) (*model.Appointment, error) {
	a, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.BranchID != branchID {
		return nil, model.ErrAppointmentNotFound
	}
	return a, nil
}

func checkOwner(a *model.Appointment, branchID string) error {
	if a.BranchID != branchID {
		return model.ErrAppointmentNotFound
	}
	return nil
}

func stored(a *model.Appointment) (slot.Moment, error) {
	m, err := slot.Parse(a.TimeSlot)
	if err != nil {
		return slot.Moment{}, fmt.Errorf("stored slot of %s: %w", a.ID, err)
	}
	return m, nil
}
