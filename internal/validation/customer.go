// Package validation содержит проверки формата данных бронирования.
package validation

import "regexp"

var (
	nameRe       = regexp.MustCompile(`^[A-Za-z\s]{2,50}$`)
	phoneRe      = regexp.MustCompile(`^\+?[0-9]{10,15}$`)
	emailRe      = regexp.MustCompile(`^[\w.-]+@([\w-]+\.)+[\w-]{2,4}$`)
	accessCodeRe = regexp.MustCompile(`^[0-9]{4}$`)
)

// IsValidName проверяет имя клиента: от 2 до 50 латинских букв или пробелов.
func IsValidName(name string) bool {
	return nameRe.MatchString(name)
}

// IsValidPhone проверяет номер телефона: необязательный плюс и от 10 до 15 цифр.
func IsValidPhone(phone string) bool {
	return phoneRe.MatchString(phone)
}

// IsValidEmail проверяет форму адреса электронной почты.
func IsValidEmail(email string) bool {
	return emailRe.MatchString(email)
}

// IsValidAccessCode проверяет четырёхзначный код доступа.
func IsValidAccessCode(code string) bool {
	return accessCodeRe.MatchString(code)
}
