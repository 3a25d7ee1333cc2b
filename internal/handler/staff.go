package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/branchqueue/internal/lifecycle"
	"github.com/mmeshcher/branchqueue/internal/model"
	"github.com/mmeshcher/branchqueue/internal/notify"
	"github.com/mmeshcher/branchqueue/internal/service"
)

type checkInRequest struct {
	Code          string `json:"code"`
	AppointmentID string `json:"appointmentId"`
}

// CheckInBranch отмечает приход клиента по коду доступа или идентификатору записи.
func (h *Handler) CheckInBranch(w http.ResponseWriter, r *http.Request) {
	var req checkInRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	branchID := chi.URLParam(r, "branchID")

	var (
		a   *model.Appointment
		err error
	)
	switch {
	case req.AppointmentID != "":
		a, err = h.service.CheckIn(r.Context(), branchID, req.AppointmentID)
	case req.Code != "":
		a, err = h.service.CheckInByCode(r.Context(), branchID, req.Code)
	default:
		err = model.Invalid("code", "code or appointmentId is required")
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, a)
}

// CheckInAppointment отмечает приход клиента по идентификатору записи.
func (h *Handler) CheckInAppointment(w http.ResponseWriter, r *http.Request) {
	branchID, ok := staffBranch(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	a, err := h.service.CheckIn(r.Context(), branchID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, a)
}

// UpdateStatus меняет статус записи.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	branchID, ok := staffBranch(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req lifecycle.StatusUpdate
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	a, err := h.service.UpdateStatus(r.Context(), branchID, chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, a)
}

type notifyRequest struct {
	WindowNumber     int    `json:"windowNumber"`
	Message          string `json:"message"`
	NotificationType string `json:"notificationType"`
}

func channelsFor(notificationType string) ([]notify.Channel, error) {
	switch strings.ToLower(strings.TrimSpace(notificationType)) {
	case "", "both":
		return []notify.Channel{notify.ChannelEmail, notify.ChannelSMS}, nil
	case "email":
		return []notify.Channel{notify.ChannelEmail}, nil
	case "sms":
		return []notify.Channel{notify.ChannelSMS}, nil
	}
	return nil, model.Invalid("notificationType", fmt.Sprintf("unknown notification type %q", notificationType))
}

// Notify вызывает клиента к окну.
func (h *Handler) Notify(w http.ResponseWriter, r *http.Request) {
	branchID, ok := staffBranch(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req notifyRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	channels, err := channelsFor(req.NotificationType)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	a, err := h.service.NotifyCustomer(r.Context(), branchID, chi.URLParam(r, "id"), service.CallRequest{
		WindowNumber: req.WindowNumber,
		Message:      req.Message,
		Channels:     channels,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, a)
}

// GetAssignments возвращает распределение очереди по окнам.
func (h *Handler) GetAssignments(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Assignments(r.Context(), chi.URLParam(r, "branchID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// GetWindowQueue возвращает очередь одного окна.
func (h *Handler) GetWindowQueue(w http.ResponseWriter, r *http.Request) {
	number, err := windowNumber(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	queue, err := h.service.WindowQueue(r.Context(), chi.URLParam(r, "branchID"), number)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, queue)
}

// ListWindows возвращает окна отделения.
func (h *Handler) ListWindows(w http.ResponseWriter, r *http.Request) {
	windows, err := h.service.ListWindows(r.Context(), chi.URLParam(r, "branchID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if windows == nil {
		windows = []model.Window{}
	}
	h.writeJSON(w, http.StatusOK, windows)
}

// GetWindow возвращает одно окно.
func (h *Handler) GetWindow(w http.ResponseWriter, r *http.Request) {
	number, err := windowNumber(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	window, err := h.service.Window(r.Context(), chi.URLParam(r, "branchID"), number)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, window)
}

// AddWindow добавляет окно.
func (h *Handler) AddWindow(w http.ResponseWriter, r *http.Request) {
	var req service.WindowInput
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	window, err := h.service.AddWindow(r.Context(), chi.URLParam(r, "branchID"), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, window)
}

// UpdateWindow меняет статус и типы услуг окна.
func (h *Handler) UpdateWindow(w http.ResponseWriter, r *http.Request) {
	number, err := windowNumber(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req service.WindowPatch
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	window, err := h.service.UpdateWindow(r.Context(), chi.URLParam(r, "branchID"), number, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, window)
}

type assignStaffRequest struct {
	Staff    string `json:"staff"`
	Password string `json:"password"`
}

// AssignStaff назначает сотрудника окну.
func (h *Handler) AssignStaff(w http.ResponseWriter, r *http.Request) {
	number, err := windowNumber(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req assignStaffRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	window, err := h.service.AssignStaff(r.Context(), chi.URLParam(r, "branchID"), number, req.Staff, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, window)
}

// DeleteWindow удаляет окно.
func (h *Handler) DeleteWindow(w http.ResponseWriter, r *http.Request) {
	number, err := windowNumber(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.service.DeleteWindow(r.Context(), chi.URLParam(r, "branchID"), number); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetReports возвращает отчёт отделения за диапазон дат.
func (h *Handler) GetReports(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	report, err := h.service.Reports(r.Context(), chi.URLParam(r, "branchID"), q.Get("from"), q.Get("to"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// GetMetrics возвращает метрики отделения за период.
func (h *Handler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.service.Metrics(r.Context(), chi.URLParam(r, "branchID"), r.URL.Query().Get("period"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, metrics)
}

type passwordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// ChangePassword меняет пароль администратора отделения.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.service.ChangeBranchPassword(r.Context(), chi.URLParam(r, "branchID"), req.CurrentPassword, req.NewPassword); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ForceReminder немедленно отправляет напоминание по записи.
func (h *Handler) ForceReminder(w http.ResponseWriter, r *http.Request) {
	branchID, ok := staffBranch(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	if err := h.service.ForceReminder(r.Context(), branchID, chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
