package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/observer"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/tenant"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/usecase"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/pkg/logger"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/pkg/utils"
)

// OwnerIDHeader identifies the tenant on dashboard-facing endpoints. The
// webhook endpoints never carry it; ownership there is resolved from the
// payload's phone_number_id.
const OwnerIDHeader = "X-Owner-ID"

// RequestIDHeader carries the request correlation id, generated when absent.
const RequestIDHeader = "X-Request-ID"

// Server is the gateway's HTTP surface: the dashboard API, the provider
// webhook endpoints, and the health/metrics probes.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	service    *usecase.GatewayService
	logger     *zap.Logger
}

// HealthResponse is the response structure for health check endpoints
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// NewServer creates the HTTP server and registers all routes.
func NewServer(port string, service *usecase.GatewayService, metricsEnabled bool, baseLogger *zap.Logger) *Server {
	mux := http.NewServeMux()

	server := &Server{
		httpServer: &http.Server{
			Addr:              ":" + port,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		mux:     mux,
		service: service,
		logger:  baseLogger.Named("httpapi"),
	}

	mux.HandleFunc("POST /api/v1/messages/send", server.instrument("/api/v1/messages/send", server.withOwner(server.handleSend)))
	mux.HandleFunc("GET /api/v1/conversations/{phone}/messages", server.instrument("/api/v1/conversations/{phone}/messages", server.withOwner(server.handleConversation)))
	mux.HandleFunc("POST /api/v1/sync", server.instrument("/api/v1/sync", server.handleSync))

	mux.HandleFunc("GET /webhook", server.instrument("/webhook", server.handleWebhookVerify))
	mux.HandleFunc("POST /webhook", server.instrument("/webhook", server.handleWebhookReceive))

	mux.HandleFunc("/health", server.handleHealth)
	mux.HandleFunc("/ready", server.handleReady)
	if metricsEnabled {
		server.logger.Info("Registering /metrics endpoint")
		mux.Handle("/metrics", promhttp.Handler())
	}

	return server
}

// Handler exposes the mux for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start begins the HTTP server
func (s *Server) Start() {
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// statusRecorder captures the response code for request metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument attaches the request id, a request-scoped logger, and metrics to
// a handler. The path label is the route pattern, not the raw URL, to keep
// metric cardinality bounded.
func (s *Server) instrument(pattern string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		ctx := tenant.WithRequestID(r.Context(), requestID)
		ctx = logger.WithLogger(ctx, s.logger.With(zap.String("request_id", requestID)))
		w.Header().Set(RequestIDHeader, requestID)

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next(recorder, r.WithContext(ctx))
		observer.RecordHTTPRequest(r.Method, pattern, recorder.status, time.Since(start))
	}
}

// withOwner requires the tenant header and stores the owner id in the context.
func (s *Server) withOwner(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID := r.Header.Get(OwnerIDHeader)
		if ownerID == "" {
			utils.WriteJSONResponse(w, http.StatusUnauthorized, map[string]string{
				"error": "missing " + OwnerIDHeader + " header",
			})
			return
		}
		ctx := tenant.WithOwnerID(r.Context(), ownerID)
		next(w, r.WithContext(ctx))
	}
}

// handleHealth handles the /health endpoint for liveness probes
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "UP",
		Version: "1.0.0",
	}
	utils.WriteJSONResponse(w, http.StatusOK, resp)
}

// handleReady handles the /ready endpoint for readiness probes
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status: "READY",
		Details: map[string]string{
			"timestamp": utils.FormatISO8601(utils.Now()),
		},
	}
	utils.WriteJSONResponse(w, http.StatusOK, resp)
}
