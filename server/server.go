package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/nvr-ai/go-yolo/config"
	"github.com/nvr-ai/go-yolo/images"
	"github.com/nvr-ai/go-yolo/models"
	"github.com/nvr-ai/go-yolo/models/postprocess"
	"github.com/nvr-ai/go-yolo/profiler"
)

// Detector is the part of the detection pipeline the server drives.
type Detector interface {
	DetectSync(ctx context.Context, img image.Image) ([]postprocess.Detection, error)
	AvailableClassNames() []string
	Ready() bool
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ClassesResponse describes the class table and the filter state.
type ClassesResponse struct {
	Classes   []string      `json:"classes"`
	Preset    models.Preset `json:"preset"`
	Disabled  []string      `json:"disabled"`
	Threshold float32       `json:"threshold"`
}

// Server serves detections over HTTP.
type Server struct {
	detector Detector
	analyzer *Analyzer
	profiler *profiler.RuntimeProfiler
	logger   logrus.FieldLogger
	config   config.ServerConfig
}

// New creates a server. The profiler may be nil.
func New(detector Detector, analyzer *Analyzer, p *profiler.RuntimeProfiler, cfg config.ServerConfig, logger logrus.FieldLogger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Server{
		detector: detector,
		analyzer: analyzer,
		profiler: p,
		logger:   logger,
		config:   cfg,
	}
}

// Router returns the HTTP routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)
	r.HandleFunc("/detect", s.handleDetect).Methods(http.MethodPost)
	r.HandleFunc("/classes", s.handleClasses).Methods(http.MethodGet)
	r.HandleFunc("/classes/{label}", s.handleSetClass).Methods(http.MethodPut)
	r.HandleFunc("/presets/{preset}", s.handleApplyPreset).Methods(http.MethodPut)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	r.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	return r
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.config.RequestTimeout + 5*time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", s.config.Addr).Info("starting server")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdown); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start),
		}).Debug("request served")
	})
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	logger := s.logger.WithField("request_id", requestID)

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	data, err := s.readImage(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			sendError(w, "too_large", err.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		sendError(w, "invalid_request", err.Error(), http.StatusBadRequest)
		return
	}

	stop := s.profiler.StartOperation("http.decode")
	img, err := images.Decode(data)
	stop()
	if err != nil {
		logger.WithError(err).Debug("undecodable upload")
		sendError(w, "invalid_image", "failed to decode image", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if s.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.RequestTimeout)
		defer cancel()
	}

	dets, err := s.detector.DetectSync(ctx, img)
	if err != nil {
		logger.WithError(err).Warn("detection did not complete")
		sendError(w, "timeout", err.Error(), http.StatusGatewayTimeout)
		return
	}

	result := s.analyzer.Analyze(img, dets, s.detector.AvailableClassNames())
	logger.WithFields(logrus.Fields{
		"raw":  len(dets),
		"kept": len(result.Detections),
	}).Debug("detections")
	sendJSON(w, http.StatusOK, result)
}

// readImage accepts a JSON body with a base64 "image" field, a multipart
// form with an "image" or "file" part, or the raw encoded bytes.
func (s *Server) readImage(r *http.Request) ([]byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		var req struct {
			Image string `json:"image"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, err
		}
		if req.Image == "" {
			return nil, errors.New("image field is empty")
		}
		return base64.StdEncoding.DecodeString(req.Image)
	case "multipart/form-data":
		if err := r.ParseMultipartForm(s.config.MaxUploadBytes); err != nil {
			return nil, err
		}
		file, _, err := r.FormFile("image")
		if errors.Is(err, http.ErrMissingFile) {
			file, _, err = r.FormFile("file")
		}
		if err != nil {
			return nil, err
		}
		defer file.Close()
		return io.ReadAll(file)
	default:
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			return nil, errors.New("request body is empty")
		}
		return data, nil
	}
}

func (s *Server) classes() ClassesResponse {
	f := s.analyzer.Filter()
	return ClassesResponse{
		Classes:   s.detector.AvailableClassNames(),
		Preset:    f.Preset(),
		Disabled:  f.Disabled(),
		Threshold: f.Threshold(),
	}
}

func (s *Server) handleClasses(w http.ResponseWriter, _ *http.Request) {
	sendJSON(w, http.StatusOK, s.classes())
}

func (s *Server) handleSetClass(w http.ResponseWriter, r *http.Request) {
	label := mux.Vars(r)["label"]
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		sendError(w, "invalid_request", `body must be {"enabled": true|false}`, http.StatusBadRequest)
		return
	}
	s.analyzer.Filter().SetEnabled(label, *req.Enabled)
	sendJSON(w, http.StatusOK, s.classes())
}

func (s *Server) handleApplyPreset(w http.ResponseWriter, r *http.Request) {
	preset, err := models.ParsePreset(mux.Vars(r)["preset"])
	if err != nil {
		sendError(w, "unknown_preset", err.Error(), http.StatusBadRequest)
		return
	}
	available := s.detector.AvailableClassNames()
	if len(available) == 0 {
		sendError(w, "model_not_ready", "class table is not known yet", http.StatusConflict)
		return
	}
	s.analyzer.Filter().ApplyPreset(preset, available)
	sendJSON(w, http.StatusOK, s.classes())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	sendJSON(w, http.StatusOK, map[string]any{"status": "ok", "ready": s.detector.Ready()})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !s.detector.Ready() {
		sendError(w, "model_not_ready", "model has not been loaded", http.StatusServiceUnavailable)
		return
	}
	sendJSON(w, http.StatusOK, map[string]any{"ready": true})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	sendJSON(w, http.StatusOK, s.profiler.Snapshot())
}

func sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func sendError(w http.ResponseWriter, code, message string, status int) {
	sendJSON(w, status, ErrorResponse{Code: code, Message: message})
}
