// Package server provides the HTTP notification endpoint.
package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	rferrors "github.com/reportflow/reportflow/pkg/errors"
	"github.com/reportflow/reportflow/pkg/event"
	"github.com/reportflow/reportflow/pkg/pipeline"
	"github.com/reportflow/reportflow/pkg/tracking"
)

// maxBodySize bounds notification payloads. Envelopes carry only file
// references, never file contents.
const maxBodySize = 1 << 20

// Server handles HTTP requests carrying storage notifications.
type Server struct {
	processor *pipeline.Processor
	logger    *slog.Logger
	mux       *http.ServeMux
}

// Response is the JSON body returned for a processed notification.
type Response struct {
	Status     string            `json:"status"`
	InputFile  string            `json:"input_file,omitempty"`
	OutputFile string            `json:"output_file,omitempty"`
	Summary    *tracking.Summary `json:"metrics_summary,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// NewServer creates a new HTTP server around a processor.
func NewServer(processor *pipeline.Processor, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		processor: processor,
		logger:    logger,
		mux:       http.NewServeMux(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures HTTP handlers.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/", s.handleNotification)
	s.mux.HandleFunc("/healthz", s.handleHealth)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleNotification receives a push notification, runs the pipeline and
// maps the outcome onto a status code. 2xx acknowledges the delivery;
// 5xx asks the sender to redeliver.
func (s *Server) handleNotification(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	requestID := uuid.New().String()
	start := time.Now()
	logger := s.logger.With("request_id", requestID)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		jsonError(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	ref, err := event.DecodeEnvelope(body)
	if err != nil {
		logger.Warn("rejected malformed envelope", "error", err)
		jsonResponse(w, http.StatusBadRequest, &Response{
			Status: "error",
			Error:  err.Error(),
		})
		return
	}

	logger = logger.With("file", ref.String())
	result := s.processor.Process(r.Context(), ref)

	status, resp := mapResult(result)
	logger.Info("notification handled",
		"outcome", result.Outcome.String(),
		"http_status", status,
		"duration", time.Since(start),
	)
	jsonResponse(w, status, resp)
}

// mapResult translates a pipeline result into an HTTP status and body.
// input_file carries the object path within the container, not the
// container-qualified form used in logs.
func mapResult(result pipeline.Result) (int, *Response) {
	switch result.Outcome {
	case pipeline.OutcomeCompleted:
		resp := &Response{
			Status:     "success",
			InputFile:  result.Input.Path,
			OutputFile: result.OutputFile,
		}
		if result.Report != nil {
			resp.Summary = &tracking.Summary{
				RowCount:    result.Report.RowCount,
				ColumnCount: result.Report.ColumnCount,
			}
		}
		return http.StatusOK, resp

	case pipeline.OutcomeDuplicate:
		return http.StatusOK, &Response{
			Status:     "skipped",
			InputFile:  result.Input.Path,
			OutputFile: result.OutputFile,
			Reason:     result.Reason,
		}

	case pipeline.OutcomeSkipped:
		return http.StatusOK, &Response{
			Status:    "skipped",
			InputFile: result.Input.Path,
			Reason:    result.Reason,
		}
	}

	resp := &Response{
		Status:    "error",
		InputFile: result.Input.Path,
		Reason:    result.Reason,
	}
	if result.Err != nil {
		resp.Error = result.Err.Error()
	}

	switch {
	case rferrors.IsCode(result.Err, rferrors.CodeNotFound):
		return http.StatusNotFound, resp
	case rferrors.IsCode(result.Err, rferrors.CodePermission):
		return http.StatusForbidden, resp
	case rferrors.IsCode(result.Err, rferrors.CodeParseFailed):
		return http.StatusUnprocessableEntity, resp
	case rferrors.IsCode(result.Err, rferrors.CodeGateConflict):
		return http.StatusInternalServerError, resp
	case result.Retryable():
		return http.StatusServiceUnavailable, resp
	}
	return http.StatusInternalServerError, resp
}

// handleHealth reports liveness of the server and its tracking store.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.processor.Gate().Store().Ping(ctx); err != nil {
		jsonResponse(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"error":  err.Error(),
		})
		return
	}

	jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Helper functions

func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
