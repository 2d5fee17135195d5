package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"slices"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/skobkin/tempstatus-web/internal/api"
	"github.com/skobkin/tempstatus-web/internal/chart"
	"github.com/skobkin/tempstatus-web/internal/config"
	"github.com/skobkin/tempstatus-web/internal/poll"
	"github.com/skobkin/tempstatus-web/internal/version"
)

const (
	readHeaderTimeout = 5 * time.Second

	waitingMessage = "Waiting for data"

	// A loop that has not succeeded for this many intervals is degraded.
	staleIntervals = 3
)

// Server wraps the HTTP surface area of the application.
type Server struct {
	cfg        config.Config
	logger     *slog.Logger
	httpServer *http.Server
	poll       *poll.Controller
	hub        *poll.Hub

	wsSlots    wsSlots
	wsTotal    atomic.Uint64
	wsSent     atomic.Uint64
	wsDropped  atomic.Uint64
	wsConnIDs  atomic.Uint64
	requestIDs atomic.Uint64
}

// New assembles a Server with its handlers.
func New(cfg config.Config, logger *slog.Logger, controller *poll.Controller, hub *poll.Hub) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		logger: logger.With("component", "http"),
		poll:   controller,
		hub:    hub,
	}

	s.wsSlots.limit = int64(cfg.WS.MaxClients)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/api/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	mux.HandleFunc("/api/readyz", s.handleReadyz)
	mux.HandleFunc("/version", s.handleVersion)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.HandleFunc("/api", s.handleAPIDocs)
	mux.HandleFunc("/api/", s.handleAPIDocs)
	mux.HandleFunc("/api/sensors", s.handleAPISensors)
	mux.HandleFunc("/api/chart", s.handleAPIChart)
	mux.HandleFunc("/api/chart.svg", s.handleAPIChartSVG)
	mux.HandleFunc("/ws", s.handleWS)
	mux.Handle("/", s.staticHandler())

	if cfg.EnablePrometheus {
		s.registerPrometheus(mux)
	}
	if cfg.EnablePprof {
		registerPprof(mux)
	}

	handler := s.traceRequests(mux)

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return s
}

// Start begins serving HTTP until shutdown is requested.
func (s *Server) Start() error {
	s.logger.Info("listening", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("listener stopped")
	return nil
}

// Shutdown attempts a graceful shutdown within the supplied context.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	info := s.readiness()
	logger := s.requestLogger(r)

	statusCode := http.StatusOK
	if info.Status != "ok" {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(info); err != nil {
		logger.Error("failed to encode readyz response", "err", err)
	}
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	s.writeJSON(w, r, version.Current())
}

func (s *Server) handleAPIDocs(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	if r.URL.Path != "/api" && r.URL.Path != "/api/" {
		http.NotFound(w, r)
		return
	}

	logger := s.requestLogger(r)
	data, err := embeddedAssets.ReadFile("assets/api.html")
	if err != nil {
		logger.Error("failed to read api docs asset", "err", err)
		http.Error(w, "missing api docs", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(data); err != nil {
		logger.Warn("failed to write api docs response", "err", err)
	}
}

func (s *Server) handleAPISensors(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	if s.poll == nil {
		http.Error(w, "poll loop unavailable", http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, r, api.NewSensorList(s.poll.Sensors()))
}

type chartResponse struct {
	Sensor api.SensorInfo `json:"sensor"`
	Info   api.ChartInfo  `json:"info"`
	Frame  chart.Frame    `json:"frame"`
}

func (s *Server) handleAPIChart(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	if s.poll == nil {
		http.Error(w, "poll loop unavailable", http.StatusServiceUnavailable)
		return
	}

	path := r.URL.Query().Get("path")
	snap, ok := s.poll.Chart(path)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if !snap.Ready {
		http.Error(w, "no sample available", http.StatusServiceUnavailable)
		return
	}

	s.writeJSON(w, r, chartResponse{
		Sensor: api.NewSensorInfo(snap.Sensor),
		Info:   api.NewChartInfo(snap.Info),
		Frame:  snap.Frame,
	})
}

func (s *Server) handleAPIChartSVG(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	if s.poll == nil {
		http.Error(w, "poll loop unavailable", http.StatusServiceUnavailable)
		return
	}

	logger := s.requestLogger(r)
	geom := s.poll.Geometry()
	path := r.URL.Query().Get("path")

	var buf bytes.Buffer
	surface, ok := s.poll.Surface(path)
	switch {
	case !ok && s.poll.View().Placeholder != "":
		if err := chart.Placeholder(&buf, s.poll.Template(), geom.Width, geom.Height, chart.NoSensorsMessage); err != nil {
			logger.Error("failed to render placeholder", "err", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
	case !ok:
		http.NotFound(w, r)
		return
	default:
		if _, ready := surface.Frame(); !ready {
			if err := chart.Placeholder(&buf, s.poll.Template(), geom.Width, geom.Height, waitingMessage); err != nil {
				logger.Error("failed to render placeholder", "err", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			break
		}
		if err := surface.WriteSVG(&buf); err != nil {
			logger.Error("failed to render chart", "path", path, "err", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(buf.Bytes()); err != nil {
		logger.Warn("failed to write chart response", "err", err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, payload any) {
	logger := s.requestLogger(r)
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Error("failed to encode response", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(append(data, '\n')); err != nil {
		logger.Warn("failed to write response", "err", err)
	}
}

func registerPprof(mux *http.ServeMux) {
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
}

// acceptOptions maps APP_ALLOWED_ORIGINS onto the upgrade options. A "*"
// entry disables origin checks; an empty list allows same-origin only.
func acceptOptions(origins []string) *websocket.AcceptOptions {
	for _, origin := range origins {
		if origin == "*" {
			return &websocket.AcceptOptions{InsecureSkipVerify: true}
		}
	}
	return &websocket.AcceptOptions{OriginPatterns: slices.Clone(origins)}
}

func (s *Server) readiness() readyResponse {
	if s.poll == nil {
		return readyResponse{Status: "degraded", Reason: "poll_loop_not_configured"}
	}

	st := s.poll.Stats()
	resp := readyResponse{
		Sensors:  len(s.poll.Sensors()),
		Charts:   st.Charts,
		Failures: st.Failures,
	}

	if !st.Loaded {
		resp.Status = "initializing"
		resp.Reason = "waiting_for_readings"
		return resp
	}

	if st.LastError != "" && time.Since(st.LastSuccess) > staleIntervals*s.poll.Interval() {
		resp.Status = "degraded"
		resp.Reason = "fetch_failing"
		return resp
	}

	resp.Status = "ok"
	return resp
}

type readyResponse struct {
	Status   string `json:"status"`
	Sensors  int    `json:"sensors"`
	Charts   int    `json:"charts"`
	Failures uint64 `json:"fetch_failures"`
	Reason   string `json:"reason,omitempty"`
}
