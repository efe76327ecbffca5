package validation

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"
)

// ColorPattern допустимый формат цвета: #rgb или #rrggbb
var ColorPattern = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

const (
	// MaxEmailLen максимальная длина email (RFC 5321)
	MaxEmailLen = 254
	// MaxPasswordLen ограничивает работу хешера на заведомо мусорном вводе
	MaxPasswordLen = 256
	// MaxNameLen максимальная длина названий (проект, тег, задача)
	MaxNameLen = 255
)

// ValidateEmail проверяет, что строка является одиночным адресом вида local@domain
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}

	if len(email) > MaxEmailLen {
		return fmt.Errorf("email must not exceed %d characters", MaxEmailLen)
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return fmt.Errorf("email is not a valid address")
	}

	return nil
}

// NormalizeEmail приводит email к каноничному виду для хранения и поиска
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidatePassword проверяет пароль: непустой и не длиннее MaxPasswordLen.
// Минимальной длины нет.
func ValidatePassword(password string) error {
	if password == "" {
		return fmt.Errorf("password cannot be empty")
	}

	if utf8.RuneCountInString(password) > MaxPasswordLen {
		return fmt.Errorf("password must not exceed %d characters", MaxPasswordLen)
	}

	return nil
}

// ValidateName проверяет обязательное текстовое поле (название проекта, задачи, тега)
func ValidateName(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s cannot be empty", field)
	}

	if utf8.RuneCountInString(value) > MaxNameLen {
		return fmt.Errorf("%s must not exceed %d characters", field, MaxNameLen)
	}

	return nil
}

// ValidateColor проверяет hex-цвет
func ValidateColor(color string) error {
	if !ColorPattern.MatchString(color) {
		return fmt.Errorf("color must be a hex value like #3b82f6")
	}
	return nil
}
