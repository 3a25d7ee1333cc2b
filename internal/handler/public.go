package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/branchqueue/internal/lifecycle"
	"github.com/mmeshcher/branchqueue/internal/middleware"
	"github.com/mmeshcher/branchqueue/internal/model"
)

// GetBank возвращает банк с каталогом услуг и отделениями.
func (h *Handler) GetBank(w http.ResponseWriter, r *http.Request) {
	bank, err := h.service.GetBank(r.Context(), chi.URLParam(r, "bankID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, bank)
}

// GetDeals возвращает услуги банка для типа клиента.
func (h *Handler) GetDeals(w http.ResponseWriter, r *http.Request) {
	deals, err := h.service.Deals(r.Context(), chi.URLParam(r, "bankID"), r.URL.Query().Get("entityType"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if deals == nil {
		deals = []string{}
	}
	h.writeJSON(w, http.StatusOK, deals)
}

// GetEntityTypes возвращает поддерживаемые типы клиентов.
func (h *Handler) GetEntityTypes(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.service.EntityTypes())
}

// GetAvailableTimes возвращает свободные слоты отделения на дату.
func (h *Handler) GetAvailableTimes(w http.ResponseWriter, r *http.Request) {
	times, err := h.service.AvailableTimes(r.Context(), chi.URLParam(r, "branchID"), r.URL.Query().Get("date"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, times)
}

// GetBusyTimes возвращает занятые слоты отделения на дату.
func (h *Handler) GetBusyTimes(w http.ResponseWriter, r *http.Request) {
	times, err := h.service.BusyTimes(r.Context(), chi.URLParam(r, "branchID"), r.URL.Query().Get("date"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if times == nil {
		times = []string{}
	}
	h.writeJSON(w, http.StatusOK, times)
}

type bookingResponse struct {
	Appointment *model.Appointment `json:"appointment"`
	Password    string             `json:"password"`
}

// Book создаёт запись. Код доступа возвращается только в этом ответе.
func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	var req lifecycle.BookingRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	a, err := h.service.Book(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, bookingResponse{Appointment: a, Password: a.AccessCode})
}

type delayRequest struct {
	NewTimeSlot string `json:"newTimeSlot"`
}

// Delay переносит запись. Код доступа передаётся как Bearer-токен.
func (h *Handler) Delay(w http.ResponseWriter, r *http.Request) {
	code, ok := middleware.BearerToken(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req delayRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	a, err := h.service.Delay(r.Context(), chi.URLParam(r, "id"), code, req.NewTimeSlot)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, a)
}

// Cancel отменяет запись. Код доступа передаётся как Bearer-токен.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	code, ok := middleware.BearerToken(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	if err := h.service.Cancel(r.Context(), chi.URLParam(r, "id"), code); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetAppointmentByCode находит запись отделения по коду доступа.
func (h *Handler) GetAppointmentByCode(w http.ResponseWriter, r *http.Request) {
	a, err := h.service.AppointmentByCode(r.Context(), chi.URLParam(r, "branchID"), chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, a)
}

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
	*model.StaffIdentity
}

// Login выполняет вход сотрудника и выдаёт JWT.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	id, err := h.service.Login(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			// неизвестный логин не отличается от неверного пароля
			err = model.ErrInvalidCredentials
		}
		h.writeError(w, r, err)
		return
	}

	token, err := h.authMiddleware.IssueToken(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, loginResponse{Token: token, StaffIdentity: id})
}
