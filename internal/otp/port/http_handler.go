// Package port exposes the verification gate over HTTP.
package port

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/aelexs/clinic-otp/internal/domain"
	"github.com/aelexs/clinic-otp/internal/errmap"
	"github.com/aelexs/clinic-otp/internal/observability"
	"github.com/aelexs/clinic-otp/internal/otp/app"
)

// otpGate is a narrow, consumer-defined interface for the gate operations
// the handler requires. *app.Gate satisfies it.
type otpGate interface {
	RequestCode(ctx context.Context, req app.SendRequest) (*app.SendResult, error)
	VerifyCode(ctx context.Context, req app.VerifyRequest) error
}

var _ otpGate = (*app.Gate)(nil)

const (
	sendRequiredMessage   = "Target and method are required"
	verifyRequiredMessage = "Target, OTP, and method are required"
)

type sendRequest struct {
	Target string `json:"target" validate:"required"`
	Method string `json:"method" validate:"required"`
}

type verifyRequest struct {
	Target string `json:"target" validate:"required"`
	OTP    string `json:"otp" validate:"required"`
	Method string `json:"method" validate:"required"`
}

type response struct {
	Success   bool       `json:"success"`
	Message   string     `json:"message"`
	Code      string     `json:"code,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// Handler serves POST /otp/send and POST /otp/verify.
type Handler struct {
	gate     otpGate
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler creates a Handler backed by gate.
func NewHandler(gate *app.Gate, logger *slog.Logger) *Handler {
	return newHandler(gate, logger)
}

func newHandler(gate otpGate, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		gate:     gate,
		validate: validator.New(),
		logger:   logger,
	}
}

// Register adds the OTP routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /otp/send", h.Send)
	mux.HandleFunc("POST /otp/verify", h.Verify)
}

// Send issues a code and delivers it to the requested target.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if !h.decode(w, r, &req, sendRequiredMessage) {
		return
	}

	res, err := h.gate.RequestCode(r.Context(), app.SendRequest{
		Target:   req.Target,
		Method:   req.Method,
		ClientIP: extractClientIP(r),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	expiresAt := res.ExpiresAt
	writeJSON(w, http.StatusOK, response{
		Success:   true,
		Message:   fmt.Sprintf("OTP sent successfully to %s", res.Target),
		ExpiresAt: &expiresAt,
	})
}

// Verify checks a code. Every outcome consumes the pending code.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !h.decode(w, r, &req, verifyRequiredMessage) {
		return
	}

	err := h.gate.VerifyCode(r.Context(), app.VerifyRequest{
		Target: req.Target,
		Code:   strings.TrimSpace(req.OTP),
		Method: req.Method,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Success: true, Message: "OTP verified successfully"})
}

// decode reads a bounded JSON body into dst and validates it. On failure it
// writes a 400 with requiredMsg and returns false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any, requiredMsg string) bool {
	body := http.MaxBytesReader(w, r.Body, domain.MaxRequestBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, response{Message: requiredMsg, Code: "INVALID_ARGUMENT"})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, response{Message: requiredMsg, Code: "INVALID_ARGUMENT"})
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	httpErr := errmap.ToHTTPError(err)
	logger := observability.WithTraceID(ctx, h.logger).With("path", r.URL.Path, "status", httpErr.StatusCode)

	switch {
	case domain.IsClientError(err):
		logger.DebugContext(ctx, "otp request rejected", "error", err)
	case httpErr.StatusCode >= http.StatusInternalServerError:
		logger.ErrorContext(ctx, "otp request failed", "error", err)
	default:
		logger.WarnContext(ctx, "otp request refused", "error", err)
	}
	writeJSON(w, httpErr.StatusCode, response{Message: httpErr.Message, Code: httpErr.Code})
}

func writeJSON(w http.ResponseWriter, status int, body response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// extractClientIP returns the first X-Forwarded-For entry, falling back to
// the connection's remote address without its port.
func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// x-forwarded-for may contain a comma-separated list; take the first.
		if idx := strings.IndexByte(xff, ','); idx >= 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
