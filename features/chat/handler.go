package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"docuchat/internal/llm"
	"docuchat/internal/middleware"
	"docuchat/internal/retrieval"
	"docuchat/internal/session"
)

type Handler struct {
	router   Router
	state    *session.State
	validate *validator.Validate
}

func NewHandler(router Router, state *session.State) *Handler {
	return &Handler{router: router, state: state, validate: validator.New()}
}

func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	scope, err := h.resolveScope(req.Scope)
	if err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	opts := retrieval.Options{
		Mode:    retrieval.Mode(req.Mode),
		Scope:   scope,
		K:       req.K,
		History: h.state.History(),
	}

	if req.Stream && h.router.CanStream() {
		h.askStream(w, r, req.Question, opts)
		return
	}

	res, err := h.router.Route(r.Context(), req.Question, opts)
	if err != nil {
		h.routeError(r.Context(), w, err)
		return
	}

	h.state.AppendHistory(llm.Message{Role: llm.RoleUser, Content: req.Question})
	h.state.AppendHistory(llm.Message{Role: llm.RoleAssistant, Content: res.Answer})

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": res}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// askStream answers over SSE: one data event per fragment, then a done event
// carrying the grounding metadata. A client disconnect cancels the request
// context; whatever was streamed stands and is kept in the history.
func (h *Handler) askStream(w http.ResponseWriter, r *http.Request, question string, opts retrieval.Options) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	opts.Stream = true
	opts.Emit = func(fragment string) error {
		payload, err := json.Marshal(map[string]string{"delta": fragment})
		if err != nil {
			return err
		}
		if _, err := w.Write([]byte("data: " + string(payload) + "\n\n")); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	res, err := h.router.Route(r.Context(), question, opts)
	if err != nil {
		// Headers are already out; signal the failure in-band.
		slog.ErrorContext(r.Context(), "streamed ask failed", "error", err)
		_, _ = w.Write([]byte("event: error\ndata: {\"message\":\"generation failed\"}\n\n"))
		flusher.Flush()
		return
	}

	h.state.AppendHistory(llm.Message{Role: llm.RoleUser, Content: question})
	h.state.AppendHistory(llm.Message{Role: llm.RoleAssistant, Content: res.Answer})

	done, err := json.Marshal(res)
	if err != nil {
		slog.Error("failed to encode done event", "error", err)
		return
	}
	_, _ = w.Write([]byte("event: done\ndata: " + string(done) + "\n\n"))
	flusher.Flush()
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": h.state.History()}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) ResetHistory(w http.ResponseWriter, r *http.Request) {
	h.state.ResetHistory()
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) SetScope(w http.ResponseWriter, r *http.Request) {
	var req scopeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.state.SetScope(req.Scope); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// resolveScope prefers the per-request scope over the session one.
func (h *Handler) resolveScope(ids []string) (map[string]struct{}, error) {
	if len(ids) == 0 {
		return h.state.Scope(), nil
	}
	scope := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := h.state.Document(id); !ok {
			return nil, errors.New("unknown document id in scope: " + id)
		}
		scope[id] = struct{}{}
	}
	return scope, nil
}

func (h *Handler) routeError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, llm.ErrUnavailable) {
		h.writeError(ctx, w, "UPSTREAM_UNAVAILABLE", "Generation service unavailable", http.StatusServiceUnavailable)
		return
	}
	slog.ErrorContext(ctx, "ask failed", "error", err)
	h.writeError(ctx, w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
