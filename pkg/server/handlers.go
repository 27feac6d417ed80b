package server

import (
	"io"
	"net/http"

	gojson "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/ajitpratap0/conduit/pkg/decode"
	"github.com/ajitpratap0/conduit/pkg/errors"
	"github.com/ajitpratap0/conduit/pkg/extract"
	"github.com/ajitpratap0/conduit/pkg/logger"
	"github.com/ajitpratap0/conduit/pkg/notify"
)

// Scope headers, used when the query string does not carry the scope
const (
	HeaderOrganization = "X-Conduit-Organization"
	HeaderShip         = "X-Conduit-Ship"
	HeaderRequestID    = "X-Request-ID"
)

// RegisterNotify mounts the notification endpoint
func RegisterNotify(r *mux.Router, s *Server) {
	r.HandleFunc("/notify", s.handleNotify).Methods(http.MethodPost)
}

// RegisterExtract mounts the extraction endpoint
func RegisterExtract(r *mux.Router, s *Server) {
	r.HandleFunc("/extract", s.handleExtract).Methods(http.MethodPost)
}

// RegisterHealth mounts the liveness endpoint
func RegisterHealth(r *mux.Router, s *Server) {
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
}

// correlate stores the request id, organization and ship of r in its
// context and echoes the request id. A request id is generated when the
// caller sends none.
func (s *Server) correlate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, requestID)

		q := r.URL.Query()
		pick := func(param, header string) string {
			if v := q.Get(param); v != "" {
				return v
			}
			return r.Header.Get(header)
		}
		ctx := logger.ContextWith(r.Context(), requestID,
			pick("organization", HeaderOrganization),
			pick("ship", HeaderShip))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// scopeOf reads the notification scope stored by correlate
func scopeOf(r *http.Request) notify.Scope {
	ctx := r.Context()
	value := func(key any) string {
		v, _ := ctx.Value(key).(string)
		return v
	}
	return notify.Scope{
		Organization: value(logger.OrganizationKey),
		Ship:         value(logger.ShipKey),
		RequestID:    value(logger.RequestIDKey),
	}
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body := r.Body
	if s.cfg.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		return nil, errors.Wrap(err, errors.ErrorTypeInvalidInput, "unreadable request body").WithStatus(status)
	}
	return data, nil
}

func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	scope := scopeOf(r)

	data, err := s.readBody(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	msg, n, err := notify.ParseMessage(data)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.router.Dispatch(r.Context(), scope, msg, n); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type extractRequest struct {
	URL       string        `json:"url"`
	Format    decode.Format `json:"format"`
	BatchSize int           `json:"batch_size,omitempty"`
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	data, err := s.readBody(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req extractRequest
	if err := gojson.Unmarshal(data, &req); err != nil {
		s.writeError(w, errors.Wrap(err, errors.ErrorTypeInvalidInput, "malformed extract request"))
		return
	}
	if req.BatchSize == 0 {
		req.BatchSize = s.batchSize
	}

	ok, err := s.extractor.Extract(r.Context(), extract.Request{
		Body:      extract.Body{URL: req.URL, Format: req.Format},
		BatchSize: req.BatchSize,
		Handler:   s.handler,
	})
	if err != nil {
		s.logger.With(logger.Fields(r.Context())...).Error("server.extract.error", zap.Error(err))
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": ok})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"routes": s.router.Routes(),
	})
}

type errorBody struct {
	Error     string `json:"error"`
	Type      string `json:"type"`
	Retryable bool   `json:"retryable"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	// Internal failures are never reported as 2xx
	status := errors.StatusCode(err)
	if status < http.StatusBadRequest {
		status = errors.DefaultStatus
	}

	body := errorBody{
		Error:     err.Error(),
		Type:      string(errors.ErrorTypeInternal),
		Retryable: errors.IsRetryable(err),
	}
	var e *errors.Error
	if errors.As(err, &e) {
		body.Type = string(e.Type)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = gojson.NewEncoder(w).Encode(v)
}
