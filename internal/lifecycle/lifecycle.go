// Package lifecycle реализует конечный автомат статусов записи и вычисление длительностей.
//
// Функции изменяют одну запись в памяти. Загрузка и сохранение выполняются
// вызывающей стороной под блокировкой записи.
package lifecycle

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/mmeshcher/branchqueue/internal/model"
)

func invalidTransition(from, to model.AppointmentStatus) error {
	return fmt.Errorf("%w: cannot move from %s to %s", model.ErrInvalidState, from, to)
}

// minutesBetween округляет прошедшее время до целых минут.
func minutesBetween(from, to time.Time) int {
	return int(math.Round(to.Sub(from).Minutes()))
}

func stamp(now time.Time) *time.Time {
	t := now
	return &t
}

// CheckIn отмечает приход клиента.
func CheckIn(a *model.Appointment, now time.Time) error {
	if a.Status.Terminal() {
		return invalidTransition(a.Status, model.StatusCheckedIn)
	}
	a.Status = model.StatusCheckedIn
	a.CheckinTime = stamp(now)
	return nil
}

// MarkWaiting ставит запись в очередь ожидания.
func MarkWaiting(a *model.Appointment) error {
	if a.Status.Terminal() {
		return invalidTransition(a.Status, model.StatusWaiting)
	}
	a.Status = model.StatusWaiting
	return nil
}

// StartService назначает окно и запускает отсчёт обслуживания. Время ожидания
// вычисляется, только если известно время прихода.
func StartService(a *model.Appointment, windowNumber int, now time.Time) error {
	if a.Status.Terminal() {
		return invalidTransition(a.Status, model.StatusInProgress)
	}
	a.Status = model.StatusInProgress
	a.ServiceStartTime = stamp(now)
	if windowNumber > 0 {
		n := windowNumber
		a.WindowNumber = &n
	}
	if a.CheckinTime != nil {
		wait := minutesBetween(*a.CheckinTime, now)
		a.WaitDuration = &wait
	}
	return nil
}

// Complete завершает обслуживание. Измеренная длительность важнее переданной.
func Complete(a *model.Appointment, provided *int, now time.Time) error {
	if a.Status.Terminal() {
		return invalidTransition(a.Status, model.StatusCompleted)
	}
	a.Status = model.StatusCompleted
	a.CompletionTime = stamp(now)

	switch {
	case a.ServiceStartTime != nil:
		d := minutesBetween(*a.ServiceStartTime, now)
		a.ServiceDuration = &d
	case provided != nil:
		d := *provided
		a.ServiceDuration = &d
	}
	return nil
}

// MarkNoShow закрывает запись, по которой клиент не пришёл.
func MarkNoShow(a *model.Appointment) error {
	if a.Status.Terminal() {
		return invalidTransition(a.Status, model.StatusNoShow)
	}
	a.Status = model.StatusNoShow
	return nil
}

// StatusUpdate содержит запрос сотрудника на смену статуса.
type StatusUpdate struct {
	Status          model.AppointmentStatus `json:"status"`
	ServiceDuration *int                    `json:"serviceDuration,omitempty"`
	WindowNumber    *int                    `json:"windowNumber,omitempty"`
	WaitDuration    *int                    `json:"waitDuration,omitempty"`
}

// Apply выполняет переход, соответствующий запросу.
func Apply(a *model.Appointment, u StatusUpdate, now time.Time) error {
	switch u.Status {
	case model.StatusCheckedIn:
		return CheckIn(a, now)
	case model.StatusWaiting:
		return MarkWaiting(a)
	case model.StatusInProgress:
		window := 0
		if u.WindowNumber != nil {
			window = *u.WindowNumber
		}
		if err := StartService(a, window, now); err != nil {
			return err
		}
		// значение клиента не заменяет вычисленное
		if a.CheckinTime == nil && u.WaitDuration != nil && *u.WaitDuration >= 0 {
			w := *u.WaitDuration
			a.WaitDuration = &w
		}
		return nil
	case model.StatusCompleted:
		return Complete(a, u.ServiceDuration, now)
	case model.StatusNoShow:
		return MarkNoShow(a)
	case model.StatusScheduled, model.StatusCancelled:
		return invalidTransition(a.Status, u.Status)
	}
	return model.Invalid("status", fmt.Sprintf("unknown status %q", u.Status))
}

// VerifyAccessCode сравнивает предъявленный код с сохранённым без учёта регистра.
func VerifyAccessCode(a *model.Appointment, code string) error {
	code = strings.TrimSpace(code)
	if code == "" || strings.ToUpper(code) != strings.ToUpper(a.AccessCode) {
		return model.ErrInvalidAccessCode
	}
	return nil
}
