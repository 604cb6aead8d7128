// Package httpapi serves the generate and publish flows over JSON.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zebadrabbit/HelpMePost/internal/service"
)

const maxBodyBytes = 1 << 20

type Handlers struct {
	svc *service.Service
	log *zap.Logger
}

// NewRouter mounts the API routes on a chi router.
func NewRouter(svc *service.Service, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Handlers{svc: svc, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.accessLog)

	r.Get("/healthz", h.health)
	r.Route("/api", func(r chi.Router) {
		r.Post("/generate", h.generate)
		r.Post("/publish", h.publish)
	})
	return r
}

// generateBody is a GenerateRequest plus the free-form intent text. A
// non-empty cta_target is accepted without include_cta and turns the call to
// action on.
type generateBody struct {
	service.GenerateRequest
	IntentText string `json:"intent_text,omitempty"`
}

func (h *Handlers) generate(w http.ResponseWriter, r *http.Request) {
	var body generateBody
	if !decode(w, r, &body) {
		return
	}
	req := body.GenerateRequest
	req.ApplyIntentText(body.IntentText)

	resp, err := h.svc.Generate(r.Context(), req)
	if err != nil {
		writeError(w, resp.Error)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) publish(w http.ResponseWriter, r *http.Request) {
	var req service.PublishRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.svc.Publish(r.Context(), req)
	if err != nil {
		setRetryAfter(w, resp.Error)
		writeJSON(w, statusFor(resp.Error.Kind), resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handlers) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.log.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)))
	})
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		msg := "Request body must be a JSON object."
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			msg = "Request body is too large."
		}
		writeError(w, &service.ErrorBody{Kind: service.KindValidation, HumanMessage: msg})
		return false
	}
	return true
}

type errorResponse struct {
	OK    bool               `json:"ok"`
	Error *service.ErrorBody `json:"error"`
}

func writeError(w http.ResponseWriter, e *service.ErrorBody) {
	setRetryAfter(w, e)
	writeJSON(w, statusFor(e.Kind), errorResponse{Error: e})
}

func setRetryAfter(w http.ResponseWriter, e *service.ErrorBody) {
	if e != nil && e.RetryAfterSeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(e.RetryAfterSeconds))
	}
}

func statusFor(k service.Kind) int {
	switch k {
	case service.KindValidation, service.KindPlatformGate, service.KindSizeLimitExceeded,
		service.KindUnsupportedFormat, service.KindInvalidModel:
		return http.StatusBadRequest
	case service.KindAuth:
		return http.StatusUnauthorized
	case service.KindRateLimited:
		return http.StatusTooManyRequests
	case service.KindTransport:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
