package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/iudanet/labportal/internal/validation"
	"github.com/iudanet/labportal/pkg/api"
)

// validationResponse ответ 422; поля идут в порядке проверки
type validationResponse struct {
	Message string            `json:"message"`
	Errors  validation.Errors `json:"errors"`
}

// sendJSON отправляет JSON ответ
func sendJSON(logger *slog.Logger, w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", slog.Any("error", err))
	}
}

// sendMessage отправляет {"message": ...}
func sendMessage(logger *slog.Logger, w http.ResponseWriter, message string, statusCode int) {
	sendJSON(logger, w, api.MessageResponse{Message: message}, statusCode)
}

// sendValidation отправляет 422 с ошибками по полям
func sendValidation(logger *slog.Logger, w http.ResponseWriter, errs validation.Errors) {
	sendJSON(logger, w, validationResponse{
		Message: errs.Error(),
		Errors:  errs,
	}, http.StatusUnprocessableEntity)
}

// decodeJSON разбирает тело запроса; при ошибке отвечает 400
func decodeJSON(logger *slog.Logger, w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		logger.WarnContext(r.Context(), "failed to decode request", slog.Any("error", err))
		sendMessage(logger, w, "Invalid request body.", http.StatusBadRequest)
		return false
	}
	return true
}
