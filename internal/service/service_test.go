package service

import (
	"context"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/branchqueue/internal/allocator"
	"github.com/mmeshcher/branchqueue/internal/events"
	"github.com/mmeshcher/branchqueue/internal/model"
	"github.com/mmeshcher/branchqueue/internal/notify"
)

// stubRepo хранит данные в памяти и повторяет семантику ошибок PostgresRepository.
type stubRepo struct {
	mu       sync.Mutex
	bank     model.Bank
	branches map[string]*model.Branch
	appts    map[string]*model.Appointment
	order    []string

	createErr error
	updateErr error
	deleteErr error
}

func mustHash(t *testing.T, password string) []byte {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return h
}

func newStubRepo(t *testing.T) *stubRepo {
	t.Helper()

	return &stubRepo{
		bank: model.Bank{
			ID:   "bank-1",
			Name: "Test Bank",
			Deals: []model.Deal{
				{EntityType: model.EntityIndividual, Name: "Cash Deposit"},
				{EntityType: model.EntityIndividual, Name: "Loan"},
				{EntityType: model.EntityLegal, Name: "Business Account"},
			},
		},
		branches: map[string]*model.Branch{
			"B1": {
				ID:                  "B1",
				BankID:              "bank-1",
				Name:                "Central",
				PasswordHash:        mustHash(t, "admin-pass"),
				CheckinPasswordHash: mustHash(t, "checkin-pass"),
				Windows: []model.Window{
					{BranchID: "B1", Number: 1, DealTypes: []string{"Cash Deposit"}, Status: model.WindowActive, Staff: "Ann", PasswordHash: mustHash(t, "w1-pass")},
					{BranchID: "B1", Number: 2, DealTypes: []string{"Cash Deposit", "Loan"}, Status: model.WindowActive, PasswordHash: mustHash(t, "w2-pass")},
					{BranchID: "B1", Number: 3, DealTypes: []string{"Business Account"}, Status: model.WindowInactive},
				},
			},
		},
		appts: make(map[string]*model.Appointment),
	}
}

func (r *stubRepo) Close() error { return nil }

func cloneAppointment(a *model.Appointment) *model.Appointment {
	c := *a
	return &c
}

func (r *stubRepo) CreateAppointment(_ context.Context, a *model.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.createErr != nil {
		return r.createErr
	}
	a.CreatedAt = time.Now()
	r.appts[a.ID] = cloneAppointment(a)
	r.order = append(r.order, a.ID)
	return nil
}

func (r *stubRepo) GetAppointment(_ context.Context, id string) (*model.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appts[id]
	if !ok {
		return nil, model.ErrAppointmentNotFound
	}
	return cloneAppointment(a), nil
}

func (r *stubRepo) UpdateAppointment(_ context.Context, id string, fn func(a *model.Appointment) error) (*model.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.appts[id]
	if !ok {
		return nil, model.ErrAppointmentNotFound
	}

	a := cloneAppointment(cur)
	if err := fn(a); err != nil {
		return nil, err
	}
	if r.updateErr != nil {
		return nil, r.updateErr
	}
	r.appts[id] = cloneAppointment(a)
	return a, nil
}

func (r *stubRepo) DeleteAppointment(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.appts[id]; !ok {
		return model.ErrAppointmentNotFound
	}
	if r.deleteErr != nil {
		return r.deleteErr
	}
	delete(r.appts, id)
	r.order = slices.DeleteFunc(r.order, func(v string) bool { return v == id })
	return nil
}

func (r *stubRepo) FindAppointmentsByCode(_ context.Context, branchID, code string) ([]model.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []model.Appointment
	for _, id := range r.order {
		a := r.appts[id]
		if a.BranchID == branchID && strings.EqualFold(a.AccessCode, code) {
			res = append(res, *a)
		}
	}
	return res, nil
}

func (r *stubRepo) ListAppointmentsByDays(_ context.Context, branchID string, dayPrefixes []string) ([]model.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []model.Appointment
	for _, id := range r.order {
		a := r.appts[id]
		if a.BranchID == branchID && len(a.TimeSlot) >= 8 && slices.Contains(dayPrefixes, a.TimeSlot[:8]) {
			res = append(res, *a)
		}
	}
	return res, nil
}

func (r *stubRepo) GetBank(_ context.Context, bankID string) (*model.Bank, error) {
	if bankID != r.bank.ID {
		return nil, model.ErrBankNotFound
	}
	b := r.bank
	return &b, nil
}

func (r *stubRepo) GetBankByBranch(_ context.Context, branchID string) (*model.Bank, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.branches[branchID]; !ok {
		return nil, model.ErrBranchNotFound
	}
	b := r.bank
	return &b, nil
}

func (r *stubRepo) GetBranch(_ context.Context, branchID string) (*model.Branch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.branches[branchID]
	if !ok {
		return nil, model.ErrBranchNotFound
	}
	c := *b
	c.Windows = slices.Clone(b.Windows)
	return &c, nil
}

func (r *stubRepo) ReminderContext(_ context.Context, branchID string) (string, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.branches[branchID]
	if !ok {
		return "", "", model.ErrBranchNotFound
	}
	return r.bank.Name, b.Name, nil
}

func (r *stubRepo) UpdateBranchPassword(_ context.Context, branchID string, hash []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.branches[branchID]
	if !ok {
		return model.ErrBranchNotFound
	}
	b.PasswordHash = hash
	return nil
}

// window возвращает указатель на окно; вызывается под r.mu.
func (r *stubRepo) window(branchID string, number int) (*model.Window, error) {
	b, ok := r.branches[branchID]
	if !ok {
		return nil, model.ErrWindowNotFound
	}
	for i := range b.Windows {
		if b.Windows[i].Number == number {
			return &b.Windows[i], nil
		}
	}
	return nil, model.ErrWindowNotFound
}

func (r *stubRepo) editWindow(branchID string, number int, fn func(w *model.Window)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, err := r.window(branchID, number)
	if err != nil {
		return err
	}
	fn(w)
	return nil
}

func (r *stubRepo) GetWindow(_ context.Context, branchID string, number int) (*model.Window, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, err := r.window(branchID, number)
	if err != nil {
		return nil, err
	}
	c := *w
	return &c, nil
}

func (r *stubRepo) AddWindow(_ context.Context, w *model.Window) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.window(w.BranchID, w.Number); err == nil {
		return model.ErrWindowExists
	}
	b := r.branches[w.BranchID]
	b.Windows = append(b.Windows, *w)
	return nil
}

func (r *stubRepo) UpdateWindowStatus(_ context.Context, branchID string, number int, status model.WindowStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, err := r.window(branchID, number)
	if err != nil {
		return err
	}
	if w.Status == model.WindowServing || w.CurrentAppointment != nil {
		return model.ErrWindowServing
	}
	w.Status = status
	return nil
}

func (r *stubRepo) UpdateWindowDealTypes(_ context.Context, branchID string, number int, dealTypes []string) error {
	return r.editWindow(branchID, number, func(w *model.Window) { w.DealTypes = dealTypes })
}

func (r *stubRepo) UpdateWindowPassword(_ context.Context, branchID string, number int, hash []byte) error {
	return r.editWindow(branchID, number, func(w *model.Window) { w.PasswordHash = hash })
}

func (r *stubRepo) SetWindowAppointment(_ context.Context, branchID string, number int, appointmentID *string) error {
	return r.editWindow(branchID, number, func(w *model.Window) {
		w.CurrentAppointment = appointmentID
		w.Status = model.WindowActive
		if appointmentID != nil {
			w.Status = model.WindowServing
		}
	})
}

func (r *stubRepo) ClearWindowAppointment(_ context.Context, branchID string, number int, appointmentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, err := r.window(branchID, number)
	if err != nil {
		return nil
	}
	if w.CurrentAppointment != nil && *w.CurrentAppointment == appointmentID {
		w.CurrentAppointment = nil
		w.Status = model.WindowActive
	}
	return nil
}

func (r *stubRepo) AssignWindowStaff(_ context.Context, branchID string, number int, staff string) error {
	return r.editWindow(branchID, number, func(w *model.Window) { w.Staff = staff })
}

func (r *stubRepo) TouchWindowLogin(_ context.Context, branchID string, number int, at time.Time) error {
	return r.editWindow(branchID, number, func(w *model.Window) { w.LastLogin = &at })
}

func (r *stubRepo) DeleteWindow(_ context.Context, branchID string, number int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, err := r.window(branchID, number)
	if err != nil {
		return err
	}
	if w.Status == model.WindowServing || w.CurrentAppointment != nil {
		return model.ErrWindowServing
	}
	b := r.branches[branchID]
	b.Windows = slices.DeleteFunc(b.Windows, func(w model.Window) bool { return w.Number == number })
	return nil
}

type stubNotifier struct {
	err   error
	calls []model.Notification

	confirmErr    error
	confirmations []model.Notification
}

func (n *stubNotifier) SendConfirmation(_ context.Context, note model.Notification) error {
	n.confirmations = append(n.confirmations, note)
	return n.confirmErr
}

func (n *stubNotifier) CallToWindow(_ context.Context, note model.Notification, _ []notify.Channel) error {
	n.calls = append(n.calls, note)
	return n.err
}

type stubPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *stubPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *stubPublisher) Close() error { return nil }

func (p *stubPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	res := make([]string, 0, len(p.events))
	for _, e := range p.events {
		res = append(res, e.Type)
	}
	return res
}

type stubReminders struct {
	sent []string
	err  error
}

func (r *stubReminders) ForceSend(_ context.Context, id string) error {
	r.sent = append(r.sent, id)
	return r.err
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// slotStore оборачивает MemoryStore и умеет один раз сорвать освобождение слота.
type slotStore struct {
	*allocator.MemoryStore

	mu         sync.Mutex
	releaseErr error
}

func (s *slotStore) failNextRelease(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseErr = err
}

func (s *slotStore) ReleaseSlot(ctx context.Context, branchID, slot string) error {
	s.mu.Lock()
	err := s.releaseErr
	s.releaseErr = nil
	s.mu.Unlock()

	if err != nil {
		return err
	}
	return s.MemoryStore.ReleaseSlot(ctx, branchID, slot)
}

type fixture struct {
	svc       *Service
	repo      *stubRepo
	store     *allocator.MemoryStore
	slots     *slotStore
	notifier  *stubNotifier
	events    *stubPublisher
	reminders *stubReminders
	clock     *fakeClock
}

// newFixture создаёт сервис с часами, стоящими на 01.06.2025 08:00 UTC.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		repo:      newStubRepo(t),
		store:     allocator.NewMemoryStore(),
		notifier:  &stubNotifier{},
		events:    &stubPublisher{},
		reminders: &stubReminders{},
		clock:     &fakeClock{t: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)},
	}
	f.slots = &slotStore{MemoryStore: f.store}
	f.svc = NewService(f.repo, allocator.New(f.slots), f.notifier, zap.NewNop(),
		WithLocation(time.UTC),
		WithEvents(f.events),
		WithReminders(f.reminders),
		WithClock(f.clock.Now),
	)
	return f
}
