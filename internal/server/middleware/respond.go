package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/iudanet/labportal/pkg/api"
)

// writeMessage отвечает JSON {"message": ...} в формате Laravel
func writeMessage(w http.ResponseWriter, status int, message string) {
	body, _ := json.Marshal(api.MessageResponse{Message: message})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
