package server

import (
	"context"
	"encoding/json"
	"net/http"
)

type ctxKey string

var (
	ctxBody = ctxKey("body")
	ctxId   = ctxKey("id")
)

func ContextWithId(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxId, id)
}

func ContextWithBody(ctx context.Context, body []byte) context.Context {
	return context.WithValue(ctx, ctxBody, body)
}

func IdFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxId).(string)
	return id
}

func BodyFromContext(ctx context.Context) []byte {
	body, _ := ctx.Value(ctxBody).([]byte)
	return body
}

type ErrorResponse struct {
	Message string `json:"error"`
}

// WriteError responds with status and an ErrorResponse, the status text
// standing in for an empty msg.
func WriteError(w http.ResponseWriter, status int, msg string) {
	if msg == "" {
		msg = http.StatusText(status)
	}
	body, _ := json.Marshal(ErrorResponse{Message: msg})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}
