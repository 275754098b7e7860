package web

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/agrosense/irrigation-controller/internal/actuator"
	"github.com/agrosense/irrigation-controller/internal/storage"
)

// JobStatus reports the control loop's liveness.
type JobStatus interface {
	Running() bool
	Executions() int
	LastExecution() time.Time
	IntervalMinutes() int
}

// MessageStats reports how many sensor messages the router has handled.
type MessageStats interface {
	MessageCount() int
}

// HistoryStore supplies the read queries the API serves.
type HistoryStore interface {
	GetStats() (*storage.Stats, error)
	GetIrrigationEvents(zoneID string, limit int) ([]*storage.IrrigationEvent, error)
	GetFertilizerEvents(zoneID string, limit int) ([]*storage.FertilizerEvent, error)
	ActiveZones(window time.Duration) ([]string, error)
	ZoneMetrics(zoneID string) (*storage.ZoneMetrics, error)
}

// Server is the HTTP status surface: health, status snapshot, zone history
// and the websocket event stream.
type Server struct {
	store  HistoryStore
	job    JobStatus
	pump   *actuator.Pump
	hub    *Hub
	msgs   MessageStats
	window time.Duration

	srv *http.Server
}

// NewServer builds a server listening on addr. msgs may be nil when no
// router is attached (run-once mode).
func NewServer(addr string, store HistoryStore, job JobStatus, pump *actuator.Pump, hub *Hub, msgs MessageStats, activeWindow time.Duration) *Server {
	s := &Server{
		store:  store,
		job:    job,
		pump:   pump,
		hub:    hub,
		msgs:   msgs,
		window: activeWindow,
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/zones", s.handleZones).Methods(http.MethodGet)
	r.HandleFunc("/api/zones/{zone}/metrics", s.handleZoneMetrics).Methods(http.MethodGet)
	r.HandleFunc("/api/zones/{zone}/irrigations", s.handleIrrigations).Methods(http.MethodGet)
	r.HandleFunc("/api/zones/{zone}/fertilizations", s.handleFertilizations).Methods(http.MethodGet)
	r.HandleFunc("/ws/events", hub.ServeWS)

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start serves until Shutdown. Run it in its own goroutine.
func (s *Server) Start() {
	log.Printf("web: listening on %s", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("web: server error: %v", err)
	}
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	stats, err := s.store.GetStats()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	liters, runs := s.pump.Totals()

	body := map[string]interface{}{
		"job_running":          s.job.Running(),
		"executions":           s.job.Executions(),
		"job_interval_minutes": s.job.IntervalMinutes(),
		"pump_total_liters":    liters,
		"pump_total_runs":      runs,
		"event_subscribers":    s.hub.ClientCount(),
		"sensor_readings":      stats.SensorReadings,
		"npk_readings":         stats.NPKReadings,
		"irrigation_events":    stats.IrrigationEvents,
		"fertilizer_events":    stats.FertilizerEvents,
		"total_volume_liters":  stats.TotalVolumeLiters,
	}
	if last := s.job.LastExecution(); !last.IsZero() {
		body["last_execution"] = last.UTC().Format(time.RFC3339)
	}
	if s.msgs != nil {
		body["messages_handled"] = s.msgs.MessageCount()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleZones(w http.ResponseWriter, _ *http.Request) {
	zones, err := s.store.ActiveZones(s.window)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if zones == nil {
		zones = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"zones": zones})
}

func (s *Server) handleZoneMetrics(w http.ResponseWriter, r *http.Request) {
	zone := mux.Vars(r)["zone"]
	m, err := s.store.ZoneMetrics(zone)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleIrrigations(w http.ResponseWriter, r *http.Request) {
	zone := mux.Vars(r)["zone"]
	events, err := s.store.GetIrrigationEvents(zone, queryLimit(r))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []*storage.IrrigationEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleFertilizations(w http.ResponseWriter, r *http.Request) {
	zone := mux.Vars(r)["zone"]
	events, err := s.store.GetFertilizerEvents(zone, queryLimit(r))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []*storage.FertilizerEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func queryLimit(r *http.Request) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			return n
		}
	}
	return 50
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("web: encode response: %v", err)
	}
}
