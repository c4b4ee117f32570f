package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"go.temporal.io/sdk/client"

	"github.com/leowmjw/go-health-timeline/pkg/export"
	"github.com/leowmjw/go-health-timeline/pkg/hcl"
	"github.com/leowmjw/go-health-timeline/pkg/temporal"
	"github.com/leowmjw/go-health-timeline/pkg/timeline"
)

// Server represents the HTTP front of the health pipeline service
type Server struct {
	logger         *slog.Logger
	temporalClient client.Client
	addr           string
	records        temporal.RecordWriter
	taskQueue      string
}

// NewServer creates a new HTTP server. records may be nil when exports are
// only read from disk, in which case record uploads are refused.
func NewServer(logger *slog.Logger, temporalClient client.Client, addr string, records temporal.RecordWriter) *Server {
	return &Server{
		logger:         logger,
		temporalClient: temporalClient,
		addr:           addr,
		records:        records,
		taskQueue:      temporal.DefaultTaskQueue,
	}
}

// SetTaskQueue points pipeline runs at a worker other than the default queue
func (s *Server) SetTaskQueue(queue string) {
	if queue != "" {
		s.taskQueue = queue
	}
}

// Handler returns the routed handler wrapped in request logging
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Register routes
	mux.HandleFunc("POST /exports/{id}/records", s.handleIngestRecords)
	mux.HandleFunc("POST /exports/{id}/pipeline", s.handleRunPipeline)
	mux.HandleFunc("GET /categories", s.handleCategories)
	mux.HandleFunc("GET /health", s.handleHealth)

	// Add middleware
	return s.loggingMiddleware(mux)
}

// Start starts the HTTP server and blocks until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("Starting HTTP server", "addr", s.addr)

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	// Wait for context cancellation or server error
	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

// handleIngestRecords accepts either a JSON array of attribute maps or a raw
// export.xml document
func (s *Server) handleIngestRecords(w http.ResponseWriter, r *http.Request) {
	exportID := r.PathValue("id")
	if exportID == "" {
		s.respondError(w, http.StatusBadRequest, "export ID is required")
		return
	}
	if s.records == nil {
		s.respondError(w, http.StatusNotImplemented, "record upload is disabled")
		return
	}

	// Parse records from XML or JSON
	var records []timeline.RawRecord
	if isXML(r.Header.Get("Content-Type")) {
		parsed, err := export.ReadRecords(r.Body)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid export XML")
			return
		}
		records = parsed
	} else if err := json.NewDecoder(r.Body).Decode(&records); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if len(records) == 0 {
		s.respondError(w, http.StatusBadRequest, "at least one record is required")
		return
	}

	s.logger.Info("Ingesting records", "exportID", exportID, "count", len(records))

	if err := s.records.AppendRecords(r.Context(), exportID, records); err != nil {
		s.logger.Error("Failed to store records", "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to store records")
		return
	}

	s.respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"message":      "records stored",
		"export_id":    exportID,
		"record_count": len(records),
	})
}

// handleRunPipeline starts a pipeline workflow from an HCL or JSON body and
// waits for its report
func (s *Server) handleRunPipeline(w http.ResponseWriter, r *http.Request) {
	exportID := r.PathValue("id")
	if exportID == "" {
		s.respondError(w, http.StatusBadRequest, "export ID is required")
		return
	}

	request, err := s.decodePipelineRequest(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The path wins over whatever the body says
	request.ExportID = exportID
	if err := request.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.logger.Info("Starting pipeline", "exportID", exportID, "year", request.Year)

	// Send to Temporal workflow
	workflowRun, err := s.temporalClient.ExecuteWorkflow(
		r.Context(),
		client.StartWorkflowOptions{
			ID:        temporal.GeneratePipelineWorkflowID(exportID),
			TaskQueue: s.taskQueue,
		},
		temporal.PipelineWorkflow,
		*request,
	)
	if err != nil {
		s.logger.Error("Failed to start pipeline workflow", "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to start pipeline")
		return
	}

	// Wait for result
	var result *temporal.PipelineResult
	if err := workflowRun.Get(r.Context(), &result); err != nil {
		s.logger.Error("Pipeline workflow failed", "error", err)
		s.respondError(w, http.StatusInternalServerError, "pipeline execution failed")
		return
	}

	s.logger.Info("Pipeline completed", "exportID", exportID, "correlations", len(result.Correlations))
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) decodePipelineRequest(r *http.Request) (*temporal.PipelineRequest, error) {
	contentType, err := hcl.DetectContentType(r)
	if err != nil {
		return nil, err
	}

	if contentType == hcl.ContentTypeHCL {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
		return hcl.ParsePipelineConfig(string(body))
	}

	var request temporal.PipelineRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		return nil, errors.New("invalid JSON body")
	}
	return &request, nil
}

type categoryView struct {
	Name       string   `json:"name"`
	Identifier string   `json:"identifier"`
	Year       string   `json:"year"`
	Fields     []string `json:"fields"`
	Aggregated bool     `json:"aggregated"`
}

// handleCategories lists the registry for ?year=, defaulting to last year
func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	year := r.URL.Query().Get("year")
	if year == "" {
		year = fmt.Sprint(time.Now().Year() - 1)
	}

	registry, err := timeline.DefaultRegistry(year)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	specs := registry.Specs()
	views := make([]categoryView, 0, len(specs))
	for _, spec := range specs {
		views = append(views, categoryView{
			Name:       spec.OutputName,
			Identifier: spec.Identifier,
			Year:       spec.TargetYear,
			Fields:     spec.Fields(),
			Aggregated: spec.Aggregation != nil,
		})
	}
	s.respondJSON(w, http.StatusOK, views)
}

// Health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func isXML(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/xml" || mediaType == "text/xml"
}

// Middleware for request logging
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap ResponseWriter to capture status code
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		s.logger.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapper.statusCode,
			"duration", time.Since(start),
		)
	})
}

// Response helpers
func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.logger.Warn("HTTP error response", "status", status, "message", message)
	s.respondJSON(w, status, map[string]string{"error": message})
}

// responseWrapper captures the status code for the request log
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
