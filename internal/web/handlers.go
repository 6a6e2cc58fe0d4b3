package web

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"giga-chatter/internal/history"
	"giga-chatter/internal/llm"
)

const maxBodyBytes = 1 << 20

type stateResponse struct {
	SystemPrompt string        `json:"system_prompt"`
	History      []llm.Message `json:"history"`
}

type chatRequest struct {
	Message *string `json:"message" validate:"required,min=1"`
}

type chatResponse struct {
	Answer string `json:"answer"`
}

type systemPromptRequest struct {
	Prompt       *string `json:"prompt" validate:"required"`
	ClearHistory bool    `json:"clear_history"`
}

type historyResponse struct {
	History []llm.Message `json:"history"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func toState(s history.Snapshot) stateResponse {
	return stateResponse{SystemPrompt: s.SystemPrompt, History: s.History}
}

func (ws *WebServer) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toState(ws.chat.State()))
}

func (ws *WebServer) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !ws.decode(w, r, &req) {
		return
	}

	answer, err := ws.chat.Chat(r.Context(), *req.Message)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Answer: answer})
}

func (ws *WebServer) handleSystemPrompt(w http.ResponseWriter, r *http.Request) {
	var req systemPromptRequest
	if !ws.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, toState(ws.chat.SetSystemPrompt(*req.Prompt, req.ClearHistory)))
}

func (ws *WebServer) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	ws.chat.ClearHistory()
	writeJSON(w, http.StatusOK, historyResponse{History: []llm.Message{}})
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(ws.startTime).Round(time.Second).String(),
	})
}

// decode читает JSON тела и проверяет обязательные поля.
// При ошибке сам отвечает 422 и возвращает false.
func (ws *WebServer) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Detail: "invalid JSON body: " + err.Error()})
		return false
	}
	if err := ws.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Detail: fieldDetail(verrs[0])})
			return false
		}
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Detail: err.Error()})
		return false
	}
	return true
}

func fieldDetail(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field required: " + fe.Field()
	case "min":
		return "field must not be empty: " + fe.Field()
	default:
		return "field " + fe.Field() + " failed " + fe.Tag() + " validation"
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("❌ Failed to encode response: %v", err)
	}
}
