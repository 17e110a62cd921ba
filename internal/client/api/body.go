package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
)

// RawBody тело запроса произвольного типа.
// Пустой ContentType означает, что заголовок не выставляется вовсе.
type RawBody struct {
	Reader      io.Reader
	ContentType string
}

// Multipart собирает multipart/form-data тело (загрузка файлов).
// Content-Type с boundary берется из multipart.Writer и никогда
// не заменяется на application/json.
type Multipart struct {
	err    error
	writer *multipart.Writer
	buf    bytes.Buffer
	closed bool
}

// NewMultipart создает пустое multipart тело
func NewMultipart() *Multipart {
	m := &Multipart{}
	m.writer = multipart.NewWriter(&m.buf)
	return m
}

// Field добавляет текстовое поле
func (m *Multipart) Field(name, value string) *Multipart {
	if m.err != nil {
		return m
	}
	m.err = m.writer.WriteField(name, value)
	return m
}

// File добавляет файл
func (m *Multipart) File(field, filename string, r io.Reader) *Multipart {
	if m.err != nil {
		return m
	}
	part, err := m.writer.CreateFormFile(field, filename)
	if err != nil {
		m.err = err
		return m
	}
	_, m.err = io.Copy(part, r)
	return m
}

// ContentType возвращает multipart/form-data с boundary
func (m *Multipart) ContentType() string {
	return m.writer.FormDataContentType()
}

func (m *Multipart) bytes() ([]byte, error) {
	if m.err != nil {
		return nil, m.err
	}
	if !m.closed {
		if err := m.writer.Close(); err != nil {
			return nil, err
		}
		m.closed = true
	}
	return m.buf.Bytes(), nil
}

// encodeBody превращает тело запроса в байты.
// Тело буферизуется целиком, чтобы повторная отправка после обновления
// CSRF токена ушла с теми же байтами.
func encodeBody(body any) ([]byte, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case *Multipart:
		data, err := b.bytes()
		if err != nil {
			return nil, "", fmt.Errorf("failed to build multipart body: %w", err)
		}
		return data, b.ContentType(), nil
	case RawBody:
		if b.Reader == nil {
			return nil, b.ContentType, nil
		}
		data, err := io.ReadAll(b.Reader)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read request body: %w", err)
		}
		return data, b.ContentType, nil
	case []byte:
		return b, "application/octet-stream", nil
	case io.Reader:
		data, err := io.ReadAll(b)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read request body: %w", err)
		}
		return data, "", nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, "", fmt.Errorf("failed to marshal request body: %w", err)
		}
		return data, "application/json", nil
	}
}
