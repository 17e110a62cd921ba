package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"
)

const (
	// MinPasswordLen минимальная длина пароля
	MinPasswordLen = 8
	// MaxFieldLen максимальная длина строковых полей
	MaxFieldLen = 255
)

// FieldError ошибка одного поля формы
type FieldError struct {
	Field   string
	Message string
}

// Errors ошибки валидации в порядке проверки полей
type Errors []FieldError

// Add добавляет сообщение для поля
func (e *Errors) Add(field, message string) {
	*e = append(*e, FieldError{Field: field, Message: message})
}

// Check добавляет ошибку поля, если err не nil
func (e *Errors) Check(field string, err error) {
	if err != nil {
		e.Add(field, err.Error())
	}
}

// Has сообщает, есть ли ошибка для поля
func (e Errors) Has(field string) bool {
	for _, fe := range e {
		if fe.Field == field {
			return true
		}
	}
	return false
}

// Map группирует сообщения по полям (формат "errors" ответа 422)
func (e Errors) Map() map[string][]string {
	out := make(map[string][]string, len(e))
	for _, fe := range e {
		out[fe.Field] = append(out[fe.Field], fe.Message)
	}
	return out
}

// MarshalJSON кодирует ошибки как объект "errors" ответа 422,
// сохраняя порядок полей (map при кодировании сортирует ключи)
func (e Errors) MarshalJSON() ([]byte, error) {
	grouped := e.Map()
	var buf bytes.Buffer
	buf.WriteByte('{')
	seen := make(map[string]bool, len(grouped))
	for _, fe := range e {
		if seen[fe.Field] {
			continue
		}
		seen[fe.Field] = true
		if len(seen) > 1 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(fe.Field)
		if err != nil {
			return nil, err
		}
		messages, err := json.Marshal(grouped[fe.Field])
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(messages)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Error возвращает первое сообщение
func (e Errors) Error() string {
	if len(e) == 0 {
		return ""
	}
	return e[0].Message
}

// Err возвращает nil, если ошибок нет
func (e Errors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// ValidateEmail проверяет адрес электронной почты
func ValidateEmail(email string) error {
	if strings.TrimSpace(email) == "" {
		return errors.New("The email field is required.")
	}
	if len(email) > MaxFieldLen {
		return fmt.Errorf("The email field must not be greater than %d characters.", MaxFieldLen)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(addr.Address, "@") {
		return errors.New("The email field must be a valid email address.")
	}
	return nil
}

// ValidatePassword проверяет минимальные требования к паролю
func ValidatePassword(password string) error {
	if password == "" {
		return errors.New("The password field is required.")
	}
	if utf8.RuneCountInString(password) < MinPasswordLen {
		return fmt.Errorf("The password field must be at least %d characters.", MinPasswordLen)
	}
	return nil
}

// ValidatePasswordConfirmation проверяет совпадение пароля и подтверждения
func ValidatePasswordConfirmation(password, confirmation string) error {
	if password != confirmation {
		return errors.New("The password field confirmation does not match.")
	}
	return nil
}

// ValidateRequired проверяет обязательное строковое поле
func ValidateRequired(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("The %s field is required.", humanize(field))
	}
	if utf8.RuneCountInString(value) > MaxFieldLen {
		return fmt.Errorf("The %s field must not be greater than %d characters.", humanize(field), MaxFieldLen)
	}
	return nil
}

func humanize(field string) string {
	return strings.ReplaceAll(field, "_", " ")
}
