package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
)

// maxUploadMemory предел буфера multipart формы в памяти
const maxUploadMemory = 10 << 20

// EchoHandler отражает присланный контент; служит защищенным ресурсом
// для проверки JSON и multipart запросов клиента
type EchoHandler struct {
	logger *slog.Logger
}

// NewEchoHandler создает handler
func NewEchoHandler(logger *slog.Logger) *EchoHandler {
	return &EchoHandler{logger: logger}
}

// UploadedFile описание принятого файла
type UploadedFile struct {
	Field    string `json:"field"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// EchoResponse ответ POST /api/echo
type EchoResponse struct {
	Data   any                 `json:"data,omitempty"`
	Fields map[string][]string `json:"fields,omitempty"`
	Files  []UploadedFile      `json:"files,omitempty"`
}

// Echo обрабатывает POST /api/echo
func (h *EchoHandler) Echo(w http.ResponseWriter, r *http.Request) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		sendMessage(h.logger, w, "Unsupported content type.", http.StatusUnsupportedMediaType)
		return
	}

	switch mediaType {
	case "multipart/form-data":
		h.echoMultipart(w, r)
	case "application/json":
		var data any
		if err := json.NewDecoder(r.Body).Decode(&data); err != nil && !errors.Is(err, io.EOF) {
			sendMessage(h.logger, w, "Invalid request body.", http.StatusBadRequest)
			return
		}
		sendJSON(h.logger, w, EchoResponse{Data: data}, http.StatusOK)
	default:
		sendMessage(h.logger, w, "Unsupported content type.", http.StatusUnsupportedMediaType)
	}
}

func (h *EchoHandler) echoMultipart(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		h.logger.WarnContext(r.Context(), "invalid multipart form", slog.Any("error", err))
		sendMessage(h.logger, w, "Invalid multipart form.", http.StatusBadRequest)
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	resp := EchoResponse{Fields: r.MultipartForm.Value}
	for field, headers := range r.MultipartForm.File {
		for _, fh := range headers {
			resp.Files = append(resp.Files, UploadedFile{
				Field:    field,
				Filename: fh.Filename,
				Size:     fh.Size,
			})
		}
	}

	sendJSON(h.logger, w, resp, http.StatusOK)
}
