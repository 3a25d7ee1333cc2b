package model

import (
	"errors"
	"fmt"
)

// Категории ошибок. Любая ошибка сервиса оборачивает одну из них.
var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidState = errors.New("invalid state")
	ErrUpstream     = errors.New("upstream failure")
)

var (
	// ErrSlotAlreadyBooked возвращается, если слот уже занят в отделении.
	ErrSlotAlreadyBooked = fmt.Errorf("%w: slot already booked", ErrConflict)
	// ErrWindowExists возвращается, если номер окна уже используется в отделении.
	ErrWindowExists = fmt.Errorf("%w: window number already exists", ErrConflict)

	// ErrInvalidAccessCode возвращается при несовпадении кода доступа.
	ErrInvalidAccessCode = fmt.Errorf("%w: invalid access code", ErrUnauthorized)
	// ErrInvalidCredentials возвращается при неудачном входе сотрудника.
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", ErrUnauthorized)

	ErrBankNotFound        = fmt.Errorf("%w: bank", ErrNotFound)
	ErrBranchNotFound      = fmt.Errorf("%w: branch", ErrNotFound)
	ErrWindowNotFound      = fmt.Errorf("%w: window", ErrNotFound)
	ErrAppointmentNotFound = fmt.Errorf("%w: appointment", ErrNotFound)

	// ErrWindowServing возвращается при удалении окна, обслуживающего клиента.
	ErrWindowServing = fmt.Errorf("%w: window is serving", ErrInvalidState)
)

// ValidationError описывает отклонённое поле ввода.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Unwrap позволяет errors.Is сопоставить ошибку с ErrValidation.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Invalid создаёт ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
