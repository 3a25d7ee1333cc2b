package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/branchqueue/internal/middleware"
	"github.com/mmeshcher/branchqueue/internal/model"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	admin := custommiddleware.RequireRole(model.RoleBranchAdmin)
	desk := custommiddleware.RequireRole(model.RoleBranchAdmin, model.RoleCheckinStaff)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if h.publicLimiter != nil {
				r.Use(h.publicLimiter)
			}

			r.Get("/entity-types", h.GetEntityTypes)
			r.Get("/banks/{bankID}", h.GetBank)
			r.Get("/banks/{bankID}/deals", h.GetDeals)

			r.Get("/branches/{branchID}/available-times", h.GetAvailableTimes)
			r.Get("/branches/{branchID}/busy-times", h.GetBusyTimes)
			r.Get("/branches/{branchID}/appointments/code/{code}", h.GetAppointmentByCode)

			r.Group(func(r chi.Router) {
				if h.bookingLimiter != nil {
					r.Use(h.bookingLimiter)
				}
				r.Post("/appointments", h.Book)
			})
			r.Put("/appointments/{id}/delay", h.Delay)
			r.Delete("/appointments/{id}", h.Cancel)

			r.Post("/staff/login", h.Login)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Post("/appointments/{id}/checkin", h.CheckInAppointment)
			r.Put("/appointments/{id}/status", h.UpdateStatus)
			r.Post("/appointments/{id}/notify", h.Notify)

			r.Get("/branches/{branchID}/assignments", h.GetAssignments)
			r.Get("/branches/{branchID}/windows", h.ListWindows)
			r.Get("/branches/{branchID}/windows/{number}", h.GetWindow)
			r.Get("/branches/{branchID}/windows/{number}/queue", h.GetWindowQueue)

			r.With(desk).Post("/branches/{branchID}/checkin", h.CheckInBranch)

			r.Group(func(r chi.Router) {
				r.Use(admin)

				r.Post("/branches/{branchID}/windows", h.AddWindow)
				r.Patch("/branches/{branchID}/windows/{number}", h.UpdateWindow)
				r.Put("/branches/{branchID}/windows/{number}/staff", h.AssignStaff)
				r.Delete("/branches/{branchID}/windows/{number}", h.DeleteWindow)

				r.Get("/branches/{branchID}/reports", h.GetReports)
				r.Get("/branches/{branchID}/metrics", h.GetMetrics)
				r.Put("/branches/{branchID}/password", h.ChangePassword)

				r.Post("/reminders/{id}", h.ForceReminder)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
