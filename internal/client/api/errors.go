package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
)

// Kind классифицирует неуспешный ответ API
type Kind int

const (
	KindUnknown Kind = iota
	// KindUnauthenticated - нет активной сессии (401)
	KindUnauthenticated
	// KindUnauthorized - пользователь аутентифицирован, но прав недостаточно (403)
	KindUnauthorized
	// KindTokenExpired - устаревший CSRF токен (419)
	KindTokenExpired
	// KindValidationFailed - ошибки валидации по полям (422)
	KindValidationFailed
	// KindServerError - ошибка сервера (5xx)
	KindServerError
	// KindNetworkUnreachable - ответ не получен (транспорт, таймаут)
	KindNetworkUnreachable
	// KindRequestFailed - прочие 4xx (404, 409, 429 ...)
	KindRequestFailed
)

// StatusTokenExpired нестандартный статус Laravel "Page Expired"
const StatusTokenExpired = 419

// Sentinel ошибки для сравнения через errors.Is
var (
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrTokenExpired       = errors.New("csrf token expired")
	ErrValidationFailed   = errors.New("validation failed")
	ErrServerError        = errors.New("server error")
	ErrNetworkUnreachable = errors.New("network unreachable")
	ErrRequestFailed      = errors.New("request failed")
)

var kindNames = map[Kind]string{
	KindUnknown:            "unknown",
	KindUnauthenticated:    "unauthenticated",
	KindUnauthorized:       "unauthorized",
	KindTokenExpired:       "token_expired",
	KindValidationFailed:   "validation_failed",
	KindServerError:        "server_error",
	KindNetworkUnreachable: "network_unreachable",
	KindRequestFailed:      "request_failed",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

func (k Kind) sentinel() error {
	switch k {
	case KindUnauthenticated:
		return ErrUnauthenticated
	case KindUnauthorized:
		return ErrUnauthorized
	case KindTokenExpired:
		return ErrTokenExpired
	case KindValidationFailed:
		return ErrValidationFailed
	case KindServerError:
		return ErrServerError
	case KindNetworkUnreachable:
		return ErrNetworkUnreachable
	case KindRequestFailed:
		return ErrRequestFailed
	}
	return nil
}

// Error классифицированная ошибка API.
// Message - строка для показа пользователю, без деталей транспорта и стека.
type Error struct {
	// Err исходная ошибка транспорта или обновления токена
	Err error
	// Fields первое сообщение по каждому полю (только для KindValidationFailed)
	Fields map[string]string
	// Message сообщение для пользователя
	Message string
	// fieldOrder порядок полей как в ответе сервера
	fieldOrder []string
	Kind       Kind
	// Status HTTP статус, 0 если ответ не получен
	Status int
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is позволяет писать errors.Is(err, api.ErrTokenExpired)
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && s == target
}

// Field возвращает первое сообщение валидации для поля
func (e *Error) Field(name string) string {
	return e.Fields[name]
}

// FieldNames возвращает поля с ошибками в порядке ответа сервера
func (e *Error) FieldNames() []string {
	return append([]string(nil), e.fieldOrder...)
}

// Classify - единственная точка разбора статусов ответа.
// Возвращает nil для 2xx (и прочих не-ошибочных статусов).
func Classify(status int, body []byte) *Error {
	if status < http.StatusBadRequest {
		return nil
	}

	serverMessage := decodeMessage(body)
	e := &Error{Status: status}

	switch {
	case status == http.StatusUnauthorized:
		e.Kind = KindUnauthenticated
		e.Message = withDefault(serverMessage, "Unauthenticated.")
	case status == http.StatusForbidden:
		e.Kind = KindUnauthorized
		e.Message = withDefault(serverMessage, "This action is unauthorized.")
	case status == StatusTokenExpired:
		e.Kind = KindTokenExpired
		e.Message = "Page expired. Please try again."
	case status == http.StatusUnprocessableEntity:
		e.Kind = KindValidationFailed
		e.Fields, e.fieldOrder = decodeFieldErrors(body)
		// Пользователю показывается первое сообщение первого поля
		if len(e.fieldOrder) > 0 {
			e.Message = e.Fields[e.fieldOrder[0]]
		} else {
			e.Message = withDefault(serverMessage, "The given data was invalid.")
		}
	case status >= http.StatusInternalServerError:
		e.Kind = KindServerError
		// Сырые ответы 5xx никогда не показываются пользователю
		e.Message = "Server error. Please try again later."
	default:
		e.Kind = KindRequestFailed
		e.Message = withDefault(serverMessage, http.StatusText(status))
	}

	return e
}

// KindOf возвращает Kind ошибки или KindUnknown, если это не *Error
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindUnknown
}

// Message возвращает строку для показа пользователю
func Message(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}

// NetworkError классифицирует ошибку транспорта (ответ не получен)
func NetworkError(err error) *Error {
	return &Error{
		Kind:    KindNetworkUnreachable,
		Message: "Network unreachable. Check your connection and try again.",
		Err:     err,
	}
}

func decodeMessage(body []byte) string {
	var resp struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return ""
	}
	return resp.Message
}

// decodeFieldErrors разбирает {"errors": {"field": ["msg1", "msg2"]}}.
// От каждого поля берется только первое сообщение; порядок полей сохраняется.
func decodeFieldErrors(body []byte) (map[string]string, []string) {
	var resp struct {
		Errors json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || len(resp.Errors) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(resp.Errors))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil, nil
	}

	fields := make(map[string]string)
	var order []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		name, ok := tok.(string)
		if !ok {
			break
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			break
		}
		var messages []string
		if err := json.Unmarshal(raw, &messages); err != nil {
			// допускаем одиночную строку вместо списка
			var single string
			if json.Unmarshal(raw, &single) != nil {
				continue
			}
			messages = []string{single}
		}
		if len(messages) == 0 {
			continue
		}
		if _, seen := fields[name]; !seen {
			order = append(order, name)
		}
		fields[name] = messages[0]
	}

	if len(order) == 0 {
		return nil, nil
	}
	return fields, order
}

func withDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
