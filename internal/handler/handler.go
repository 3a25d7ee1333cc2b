// Package handler содержит HTTP-обработчики API электронной очереди отделений.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/branchqueue/internal/assignment"
	"github.com/mmeshcher/branchqueue/internal/lifecycle"
	"github.com/mmeshcher/branchqueue/internal/middleware"
	"github.com/mmeshcher/branchqueue/internal/model"
	"github.com/mmeshcher/branchqueue/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	GetBank(ctx context.Context, bankID string) (*model.Bank, error)
	Deals(ctx context.Context, bankID, entityType string) ([]string, error)
	EntityTypes() []string
	AvailableTimes(ctx context.Context, branchID, date string) ([]string, error)
	BusyTimes(ctx context.Context, branchID, date string) ([]string, error)

	Book(ctx context.Context, req lifecycle.BookingRequest) (*model.Appointment, error)
	Delay(ctx context.Context, id, code, newTimeSlot string) (*model.Appointment, error)
	Cancel(ctx context.Context, id, code string) error
	AppointmentByCode(ctx context.Context, branchID, code string) (*model.Appointment, error)

	CheckIn(ctx context.Context, branchID, id string) (*model.Appointment, error)
	CheckInByCode(ctx context.Context, branchID, code string) (*model.Appointment, error)
	UpdateStatus(ctx context.Context, branchID, id string, u lifecycle.StatusUpdate) (*model.Appointment, error)
	NotifyCustomer(ctx context.Context, branchID, id string, req service.CallRequest) (*model.Appointment, error)
	Assignments(ctx context.Context, branchID string) (*assignment.Result, error)
	WindowQueue(ctx context.Context, branchID string, number int) ([]model.Appointment, error)
	ForceReminder(ctx context.Context, branchID, id string) error

	ListWindows(ctx context.Context, branchID string) ([]model.Window, error)
	Window(ctx context.Context, branchID string, number int) (*model.Window, error)
	AddWindow(ctx context.Context, branchID string, in service.WindowInput) (*model.Window, error)
	UpdateWindow(ctx context.Context, branchID string, number int, patch service.WindowPatch) (*model.Window, error)
	AssignStaff(ctx context.Context, branchID string, number int, staff, password string) (*model.Window, error)
	DeleteWindow(ctx context.Context, branchID string, number int) error

	Login(ctx context.Context, login, password string) (*model.StaffIdentity, error)
	ChangeBranchPassword(ctx context.Context, branchID, current, next string) error

	Reports(ctx context.Context, branchID, from, to string) (*model.Report, error)
	Metrics(ctx context.Context, branchID, period string) (*model.Metrics, error)
}

// Handler реализует HTTP-обработчики API.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	bookingLimiter func(http.Handler) http.Handler
	publicLimiter  func(http.Handler) http.Handler
}

// Option настраивает обработчик.
type Option func(*Handler)

// WithBookingLimiter ограничивает частоту создания записей.
func WithBookingLimiter(mw func(http.Handler) http.Handler) Option {
	return func(h *Handler) {
		h.bookingLimiter = mw
	}
}

// WithPublicLimiter ограничивает частоту запросов ко всем публичным маршрутам:
// поиску по коду, переносу, отмене и входу сотрудников.
func WithPublicLimiter(mw func(http.Handler) http.Handler) Option {
	return func(h *Handler) {
		h.publicLimiter = mw
	}
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, opts ...Option) *Handler {
	h := &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}

// writeError переводит категорию ошибки сервиса в HTTP-статус.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch {
	case errors.Is(err, model.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, model.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, model.ErrInvalidState):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrUpstream):
		status = http.StatusBadGateway
	case errors.Is(err, context.Canceled):
		return
	default:
		h.logger.Error("request failed",
			zap.Error(err),
			zap.String("method", r.Method),
			zap.String("uri", r.RequestURI),
		)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if status == http.StatusBadGateway {
		h.logger.Warn("upstream failure", zap.Error(err), zap.String("uri", r.RequestURI))
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return model.Invalid("body", "malformed JSON")
	}
	return nil
}

func windowNumber(r *http.Request) (int, error) {
	n, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil || n <= 0 {
		return 0, model.Invalid("number", "must be a positive integer")
	}
	return n, nil
}

// staffBranch возвращает отделение из токена сотрудника.
func staffBranch(r *http.Request) (string, bool) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		return "", false
	}
	return claims.BranchID, true
}
