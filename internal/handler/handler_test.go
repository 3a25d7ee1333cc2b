package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/branchqueue/internal/assignment"
	"github.com/mmeshcher/branchqueue/internal/lifecycle"
	"github.com/mmeshcher/branchqueue/internal/middleware"
	"github.com/mmeshcher/branchqueue/internal/model"
	"github.com/mmeshcher/branchqueue/internal/notify"
	"github.com/mmeshcher/branchqueue/internal/service"
)

type stubService struct {
	bank    *model.Bank
	bankErr error

	bookResp *model.Appointment
	bookErr  error
	bookReq  lifecycle.BookingRequest

	delayCode string
	delaySlot string
	delayErr  error

	cancelCode string
	cancelErr  error

	checkinBranch string
	checkinID     string
	checkinCode   string

	statusUpdate lifecycle.StatusUpdate
	statusErr    error

	callReq service.CallRequest
	callErr error

	identity *model.StaffIdentity
	loginErr error

	windowInput service.WindowInput
	deletedWin  int
	deleteErr   error

	reportFrom, reportTo string

	reminded string
}

func (s *stubService) GetBank(ctx context.Context, bankID string) (*model.Bank, error) {
	return s.bank, s.bankErr
}

func (s *stubService) Deals(ctx context.Context, bankID, entityType string) ([]string, error) {
	if entityType == "" {
		return nil, model.Invalid("entityType", "required")
	}
	return []string{"Loan"}, nil
}

func (s *stubService) EntityTypes() []string { return model.EntityTypes }

func (s *stubService) AvailableTimes(ctx context.Context, branchID, date string) ([]string, error) {
	return []string{"01/06/25/09/00"}, nil
}

func (s *stubService) BusyTimes(ctx context.Context, branchID, date string) ([]string, error) {
	return nil, nil
}

func (s *stubService) Book(ctx context.Context, req lifecycle.BookingRequest) (*model.Appointment, error) {
	s.bookReq = req
	return s.bookResp, s.bookErr
}

func (s *stubService) Delay(ctx context.Context, id, code, newTimeSlot string) (*model.Appointment, error) {
	s.delayCode, s.delaySlot = code, newTimeSlot
	if s.delayErr != nil {
		return nil, s.delayErr
	}
	return &model.Appointment{ID: id, TimeSlot: newTimeSlot}, nil
}

func (s *stubService) Cancel(ctx context.Context, id, code string) error {
	s.cancelCode = code
	return s.cancelErr
}

func (s *stubService) AppointmentByCode(ctx context.Context, branchID, code string) (*model.Appointment, error) {
	return &model.Appointment{ID: "a1", BranchID: branchID}, nil
}

func (s *stubService) CheckIn(ctx context.Context, branchID, id string) (*model.Appointment, error) {
	s.checkinBranch, s.checkinID = branchID, id
	return &model.Appointment{ID: id, Status: model.StatusCheckedIn}, nil
}

func (s *stubService) CheckInByCode(ctx context.Context, branchID, code string) (*model.Appointment, error) {
	s.checkinBranch, s.checkinCode = branchID, code
	return &model.Appointment{ID: "a1", Status: model.StatusCheckedIn}, nil
}

func (s *stubService) UpdateStatus(ctx context.Context, branchID, id string, u lifecycle.StatusUpdate) (*model.Appointment, error) {
	s.statusUpdate = u
	if s.statusErr != nil {
		return nil, s.statusErr
	}
	return &model.Appointment{ID: id, Status: u.Status}, nil
}

func (s *stubService) NotifyCustomer(ctx context.Context, branchID, id string, req service.CallRequest) (*model.Appointment, error) {
	s.callReq = req
	if s.callErr != nil {
		return nil, s.callErr
	}
	return &model.Appointment{ID: id, NotificationSent: true}, nil
}

func (s *stubService) Assignments(ctx context.Context, branchID string) (*assignment.Result, error) {
	return &assignment.Result{Windows: map[int][]model.Appointment{1: {}}}, nil
}

func (s *stubService) WindowQueue(ctx context.Context, branchID string, number int) ([]model.Appointment, error) {
	return []model.Appointment{}, nil
}

func (s *stubService) ForceReminder(ctx context.Context, branchID, id string) error {
	s.reminded = id
	return nil
}

func (s *stubService) ListWindows(ctx context.Context, branchID string) ([]model.Window, error) {
	return []model.Window{{BranchID: branchID, Number: 1, Status: model.WindowActive}}, nil
}

func (s *stubService) Window(ctx context.Context, branchID string, number int) (*model.Window, error) {
	return &model.Window{BranchID: branchID, Number: number}, nil
}

func (s *stubService) AddWindow(ctx context.Context, branchID string, in service.WindowInput) (*model.Window, error) {
	s.windowInput = in
	return &model.Window{BranchID: branchID, Number: in.Number, Status: model.WindowInactive}, nil
}

func (s *stubService) UpdateWindow(ctx context.Context, branchID string, number int, patch service.WindowPatch) (*model.Window, error) {
	return &model.Window{BranchID: branchID, Number: number}, nil
}

func (s *stubService) AssignStaff(ctx context.Context, branchID string, number int, staff, password string) (*model.Window, error) {
	return &model.Window{BranchID: branchID, Number: number, Staff: staff}, nil
}

func (s *stubService) DeleteWindow(ctx context.Context, branchID string, number int) error {
	s.deletedWin = number
	return s.deleteErr
}

func (s *stubService) Login(ctx context.Context, login, password string) (*model.StaffIdentity, error) {
	return s.identity, s.loginErr
}

func (s *stubService) ChangeBranchPassword(ctx context.Context, branchID, current, next string) error {
	return nil
}

func (s *stubService) Reports(ctx context.Context, branchID, from, to string) (*model.Report, error) {
	s.reportFrom, s.reportTo = from, to
	return &model.Report{From: from, To: to}, nil
}

func (s *stubService) Metrics(ctx context.Context, branchID, period string) (*model.Metrics, error) {
	return &model.Metrics{Period: period}, nil
}

func newTestHandler(t *testing.T, svc Service) *Handler {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	auth := middleware.NewAuthMiddleware("test-secret")

	return NewHandler(svc, logger, auth)
}

func tokenFor(t *testing.T, h *Handler, role model.Role) string {
	t.Helper()
	token, err := h.authMiddleware.IssueToken(&model.StaffIdentity{BankID: "bank-1", BranchID: "B1", Role: role})
	require.NoError(t, err)
	return "Bearer " + token
}

func serve(h *Handler, method, path, auth string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	h.SetupRouter().ServeHTTP(w, req)
	return w
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: model.Invalid("time", "bad"), want: http.StatusBadRequest},
		{err: model.ErrBankNotFound, want: http.StatusNotFound},
		{err: model.ErrSlotAlreadyBooked, want: http.StatusConflict},
		{err: model.ErrInvalidAccessCode, want: http.StatusUnauthorized},
		{err: model.ErrWindowServing, want: http.StatusUnprocessableEntity},
		{err: fmt.Errorf("%w: smtp", model.ErrUpstream), want: http.StatusBadGateway},
		{err: errors.New("boom"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			h := newTestHandler(t, &stubService{bankErr: tt.err})
			w := serve(h, http.MethodGet, "/api/banks/bank-1", "", nil)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestBook(t *testing.T) {
	svc := &stubService{bookResp: &model.Appointment{ID: "a1", AccessCode: "4821", TimeSlot: "01/06/25/09/00"}}
	h := newTestHandler(t, svc)

	w := serve(h, http.MethodPost, "/api/appointments", "", map[string]any{
		"branchId":    "B1",
		"time":        "01/06/25/09/00",
		"serviceType": "Loan",
		"entityType":  model.EntityIndividual,
		"userInfo":    map[string]string{"name": "John Smith"},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Appointment model.Appointment `json:"appointment"`
		Password    string            `json:"password"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "a1", resp.Appointment.ID)
	assert.Equal(t, "4821", resp.Password)
	assert.Equal(t, "John Smith", svc.bookReq.UserInfo.Name)
	assert.NotContains(t, w.Body.String(), "accessCode")
}

func TestBook_Errors(t *testing.T) {
	h := newTestHandler(t, &stubService{bookErr: model.ErrSlotAlreadyBooked})

	w := serve(h, http.MethodPost, "/api/appointments", "", map[string]string{"branchId": "B1"})
	assert.Equal(t, http.StatusConflict, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/appointments", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	h.SetupRouter().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBook_RateLimited(t *testing.T) {
	svc := &stubService{bookResp: &model.Appointment{ID: "a1"}}
	h := newTestHandler(t, svc)
	h.bookingLimiter = func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		})
	}

	assert.Equal(t, http.StatusTooManyRequests, serve(h, http.MethodPost, "/api/appointments", "", map[string]string{}).Code)
	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/api/entity-types", "", nil).Code)
}

// limitAfter пропускает n запросов, остальные отклоняет с 429.
func limitAfter(n int) func(http.Handler) http.Handler {
	var mu sync.Mutex
	seen := 0
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			seen++
			over := seen > n
			mu.Unlock()
			if over {
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func TestPublicRoutes_RateLimited(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc)
	h.publicLimiter = limitAfter(1)

	assert.NotEqual(t, http.StatusTooManyRequests,
		serve(h, http.MethodGet, "/api/branches/B1/appointments/code/4821", "", nil).Code)

	limited := []struct {
		method, path, auth string
		body               any
	}{
		{http.MethodGet, "/api/branches/B1/appointments/code/4822", "", nil},
		{http.MethodPut, "/api/appointments/a1/delay", "Bearer 4821", map[string]string{"newTimeSlot": "01/06/25/09/05"}},
		{http.MethodDelete, "/api/appointments/a1", "Bearer 4821", nil},
		{http.MethodPost, "/api/staff/login", "", map[string]string{"login": "B1", "password": "x"}},
		{http.MethodPost, "/api/appointments", "", map[string]string{}},
		{http.MethodGet, "/api/entity-types", "", nil},
	}
	for _, tt := range limited {
		w := serve(h, tt.method, tt.path, tt.auth, tt.body)
		assert.Equal(t, http.StatusTooManyRequests, w.Code, "%s %s", tt.method, tt.path)
	}

	w := serve(h, http.MethodGet, "/api/branches/B1/windows", tokenFor(t, h, model.RoleBranchAdmin), nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDelayAndCancel_UseBearerCode(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc)

	w := serve(h, http.MethodPut, "/api/appointments/a1/delay", "Bearer 4821", map[string]string{"newTimeSlot": "01/06/25/09/05"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "4821", svc.delayCode)
	assert.Equal(t, "01/06/25/09/05", svc.delaySlot)

	w = serve(h, http.MethodPut, "/api/appointments/a1/delay", "", map[string]string{"newTimeSlot": "01/06/25/09/05"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(h, http.MethodDelete, "/api/appointments/a1", "Bearer 4821", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "4821", svc.cancelCode)

	svc.cancelErr = model.ErrInvalidAccessCode
	w = serve(h, http.MethodDelete, "/api/appointments/a1", "Bearer 0000", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPublicReads(t *testing.T) {
	h := newTestHandler(t, &stubService{bank: &model.Bank{ID: "bank-1"}})

	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/api/banks/bank-1", "", nil).Code)
	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/api/banks/bank-1/deals?entityType=Individual", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, serve(h, http.MethodGet, "/api/banks/bank-1/deals", "", nil).Code)

	w := serve(h, http.MethodGet, "/api/branches/B1/busy-times?date=2025-06-01", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = serve(h, http.MethodGet, "/api/branches/B1/available-times?date=2025-06-01", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `["01/06/25/09/00"]`, w.Body.String())

	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/api/branches/B1/appointments/code/4821", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, serve(h, http.MethodGet, "/api/nothing", "", nil).Code)
}

func TestLogin(t *testing.T) {
	svc := &stubService{identity: &model.StaffIdentity{BranchID: "B1", Role: model.RoleWindowStaff, WindowNumber: 2}}
	h := newTestHandler(t, svc)

	w := serve(h, http.MethodPost, "/api/staff/login", "", map[string]string{"login": "B12", "password": "secret"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Token        string `json:"token"`
		Role         string `json:"role"`
		WindowNumber int    `json:"windowNumber"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "window_staff", resp.Role)
	assert.Equal(t, 2, resp.WindowNumber)

	w = serve(h, http.MethodGet, "/api/branches/B1/windows", "Bearer "+resp.Token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	svc.loginErr = model.ErrBranchNotFound
	w = serve(h, http.MethodPost, "/api/staff/login", "", map[string]string{"login": "Z1", "password": "x"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStaffRoutes_RequireToken(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	assert.Equal(t, http.StatusUnauthorized, serve(h, http.MethodGet, "/api/branches/B1/assignments", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(h, http.MethodPut, "/api/appointments/a1/status", "", nil).Code)
	assert.Equal(t, http.StatusForbidden, serve(h, http.MethodGet, "/api/branches/B2/assignments", tokenFor(t, h, model.RoleBranchAdmin), nil).Code)
}

func TestStaffRoutes_Roles(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	window := tokenFor(t, h, model.RoleWindowStaff)
	desk := tokenFor(t, h, model.RoleCheckinStaff)
	admin := tokenFor(t, h, model.RoleBranchAdmin)

	tests := []struct {
		name   string
		method string
		path   string
		auth   string
		body   any
		want   int
	}{
		{"window reads queue", http.MethodGet, "/api/branches/B1/windows/1/queue", window, nil, http.StatusOK},
		{"window cannot add windows", http.MethodPost, "/api/branches/B1/windows", window, map[string]int{"number": 4}, http.StatusForbidden},
		{"desk checks in", http.MethodPost, "/api/branches/B1/checkin", desk, map[string]string{"code": "4821"}, http.StatusOK},
		{"window cannot use desk", http.MethodPost, "/api/branches/B1/checkin", window, map[string]string{"code": "4821"}, http.StatusForbidden},
		{"desk cannot read reports", http.MethodGet, "/api/branches/B1/reports", desk, nil, http.StatusForbidden},
		{"admin reads reports", http.MethodGet, "/api/branches/B1/reports?from=2025-06-01", admin, nil, http.StatusOK},
		{"admin reads metrics", http.MethodGet, "/api/branches/B1/metrics?period=week", admin, nil, http.StatusOK},
		{"admin adds window", http.MethodPost, "/api/branches/B1/windows", admin, map[string]int{"number": 4}, http.StatusCreated},
		{"admin patches window", http.MethodPatch, "/api/branches/B1/windows/4", admin, map[string]any{"status": "active"}, http.StatusOK},
		{"admin assigns staff", http.MethodPut, "/api/branches/B1/windows/4/staff", admin, map[string]string{"staff": "Bob"}, http.StatusOK},
		{"bad window number", http.MethodDelete, "/api/branches/B1/windows/x", admin, nil, http.StatusBadRequest},
		{"admin changes password", http.MethodPut, "/api/branches/B1/password", admin, map[string]string{"currentPassword": "a", "newPassword": "bbbbbb"}, http.StatusNoContent},
		{"admin forces reminder", http.MethodPost, "/api/reminders/a1", admin, nil, http.StatusAccepted},
		{"window cannot force reminder", http.MethodPost, "/api/reminders/a1", window, nil, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(h, tt.method, tt.path, tt.auth, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestCheckInBranch(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc)
	desk := tokenFor(t, h, model.RoleCheckinStaff)

	w := serve(h, http.MethodPost, "/api/branches/B1/checkin", desk, map[string]string{"appointmentId": "a7"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "a7", svc.checkinID)
	assert.Equal(t, "B1", svc.checkinBranch)

	w = serve(h, http.MethodPost, "/api/branches/B1/checkin", desk, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	window := tokenFor(t, h, model.RoleWindowStaff)
	w = serve(h, http.MethodPost, "/api/appointments/a9/checkin", window, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "a9", svc.checkinID)
	assert.Equal(t, "B1", svc.checkinBranch)
}

func TestUpdateStatus(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc)
	window := tokenFor(t, h, model.RoleWindowStaff)

	w := serve(h, http.MethodPut, "/api/appointments/a1/status", window, map[string]any{"status": "in-progress", "windowNumber": 2})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.StatusInProgress, svc.statusUpdate.Status)
	require.NotNil(t, svc.statusUpdate.WindowNumber)
	assert.Equal(t, 2, *svc.statusUpdate.WindowNumber)

	svc.statusErr = fmt.Errorf("%w: completed", model.ErrInvalidState)
	w = serve(h, http.MethodPut, "/api/appointments/a1/status", window, map[string]any{"status": "waiting"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestNotify(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc)
	window := tokenFor(t, h, model.RoleWindowStaff)

	tests := []struct {
		notificationType string
		want             []notify.Channel
	}{
		{"", []notify.Channel{notify.ChannelEmail, notify.ChannelSMS}},
		{"both", []notify.Channel{notify.ChannelEmail, notify.ChannelSMS}},
		{"email", []notify.Channel{notify.ChannelEmail}},
		{"SMS", []notify.Channel{notify.ChannelSMS}},
	}
	for _, tt := range tests {
		w := serve(h, http.MethodPost, "/api/appointments/a1/notify", window, map[string]any{"windowNumber": 1, "notificationType": tt.notificationType})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, tt.want, svc.callReq.Channels)
		assert.Equal(t, 1, svc.callReq.WindowNumber)
	}

	w := serve(h, http.MethodPost, "/api/appointments/a1/notify", window, map[string]any{"windowNumber": 1, "notificationType": "fax"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	svc.callErr = fmt.Errorf("%w: no channel", model.ErrUpstream)
	w = serve(h, http.MethodPost, "/api/appointments/a1/notify", window, map[string]any{"windowNumber": 1})
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestDeleteWindow(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc)
	admin := tokenFor(t, h, model.RoleBranchAdmin)

	w := serve(h, http.MethodDelete, "/api/branches/B1/windows/3", admin, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 3, svc.deletedWin)

	svc.deleteErr = model.ErrWindowServing
	w = serve(h, http.MethodDelete, "/api/branches/B1/windows/3", admin, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}
