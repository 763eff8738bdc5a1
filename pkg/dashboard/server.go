// Package dashboard exposes the analysis pipeline over HTTP: CSV upload and
// analysis, synthetic data generation, and download of exported artifacts.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rdally/netflow-sentinel/pkg/config"
	"github.com/rdally/netflow-sentinel/pkg/flow"
	"github.com/rdally/netflow-sentinel/pkg/pipeline"
	"github.com/rdally/netflow-sentinel/pkg/synthetic"
)

// maxUploadBytes caps uploaded CSV size at 16 MB.
const maxUploadBytes = 16 << 20

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint"},
	)
	analysesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "traffic_analyses_total",
			Help: "Total number of completed traffic analyses",
		},
	)
	anomaliesDetectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "traffic_anomalies_detected_total",
			Help: "Total number of anomalous records detected",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, analysesTotal, anomaliesDetectedTotal)
}

// Server is the dashboard HTTP server. Each analysis request runs its own
// pipeline; nothing is shared across requests beyond the directories.
type Server struct {
	Router *mux.Router

	server    *http.Server
	addr      string
	cfg       config.Config
	uploadDir string
	outputDir string
	logger    *log.Logger
}

// NewServer builds a server analyzing uploads with the given detection
// configuration, writing artifacts under outputDir.
func NewServer(addr string, cfg config.Config, uploadDir, outputDir string) *Server {
	s := &Server{
		Router:    mux.NewRouter(),
		addr:      addr,
		cfg:       cfg,
		uploadDir: uploadDir,
		outputDir: outputDir,
		logger:    log.New(log.Writer(), "[Dashboard] ", log.LstdFlags),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.Router.Use(s.corsMiddleware)
	s.Router.Use(s.metricsMiddleware)

	api := s.Router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods("GET", "OPTIONS")
	api.HandleFunc("/analyze", s.handleAnalyze).Methods("POST")
	api.HandleFunc("/generate", s.handleGenerate).Methods("POST")
	api.HandleFunc("/download/{timestamp}", s.handleDownload).Methods("GET")
	api.HandleFunc("/samples/{filename}", s.handleDownloadSample).Methods("GET")

	s.Router.Handle("/metrics", promhttp.Handler())
}

// analysisResponse mirrors the analysis result consumed by clients.
type analysisResponse struct {
	Success    bool   `json:"success"`
	Timestamp  string `json:"timestamp"`
	Statistics struct {
		TotalRecords      int     `json:"total_records"`
		AnomalyCount      int     `json:"anomaly_count"`
		AnomalyPercentage float64 `json:"anomaly_percentage"`
	} `json:"statistics"`
	Recommendations interface{} `json:"recommendations"`
	Warnings        []string    `json:"warnings,omitempty"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if !strings.EqualFold(filepath.Ext(name), ".csv") {
		writeError(w, http.StatusBadRequest, "invalid file type, expected .csv")
		return
	}

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// Uploaded names get a random suffix so concurrent uploads of the same
	// file cannot collide.
	saved := filepath.Join(s.uploadDir, fmt.Sprintf("%s_%s", uuid.NewString()[:8], name))
	dst, err := os.Create(saved)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	dst.Close()

	table, err := flow.ReadCSVFile(saved)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := pipeline.New(s.cfg, pipeline.WithLogger(s.logger))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	result, err := p.Run(table)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	key := flow.TimestampKey(time.Now())
	if result.AnomalyCount > 0 {
		if _, err := flow.ExportAnomalies(result.Table, s.outputDir, key); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	analysesTotal.Inc()
	anomaliesDetectedTotal.Add(float64(result.AnomalyCount))

	resp := analysisResponse{Success: true, Timestamp: key}
	resp.Statistics.TotalRecords = result.TotalRecords
	resp.Statistics.AnomalyCount = result.AnomalyCount
	resp.Statistics.AnomalyPercentage = result.AnomalyPercentage
	resp.Recommendations = result.Recommendations
	for _, warning := range result.Warnings {
		resp.Warnings = append(resp.Warnings, fmt.Sprintf("%s: %s", warning.Stage, warning.Message))
	}
	writeJSON(w, http.StatusOK, resp)
}

type generateRequest struct {
	StartDate string `json:"start_date"`
	Duration  int    `json:"duration"`
	Seed      *int64 `json:"seed,omitempty"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	start := time.Now()
	if req.StartDate != "" {
		parsed, err := time.Parse(time.RFC3339, req.StartDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid start_date, expected RFC3339")
			return
		}
		start = parsed
	}
	seed := time.Now().UnixNano()
	if req.Seed != nil {
		seed = *req.Seed
	}

	table, err := synthetic.Generate(synthetic.Options{
		Start:         start,
		DurationHours: req.Duration,
		Seed:          seed,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	filename := fmt.Sprintf("network_traffic_%s.csv", flow.TimestampKey(time.Now()))
	if err := table.WriteCSVFile(filepath.Join(s.uploadDir, filename)); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"filename": filename,
		"records":  table.Len(),
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["timestamp"]
	s.serveFile(w, r, s.outputDir, flow.AnomalyExportName(key))
}

func (s *Server) handleDownloadSample(w http.ResponseWriter, r *http.Request) {
	s.serveFile(w, r, s.uploadDir, mux.Vars(r)["filename"])
}

// serveFile serves a file from dir, rejecting traversal out of it.
func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, dir, name string) {
	if filepath.Base(name) != name {
		writeError(w, http.StatusBadRequest, "invalid filename")
		return
	}
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeFile(w, r, path)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path).Inc()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Start begins serving. It blocks until the server stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    s.addr,
		Handler: s.Router,
	}
	s.logger.Printf("listening on %s", s.addr)
	return s.server.ListenAndServe()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
