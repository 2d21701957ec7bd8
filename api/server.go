// Package api is the HTTP collaborator over the speedtest controller. It
// only ever calls the controller's public operations; no lower component
// is reachable from here.
package api

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/G-grbz/argusSyS/controller"
	"github.com/G-grbz/argusSyS/model"
)

type Server struct {
	ctrl *controller.Controller
	ws   *WSConnectionManager
}

func NewServer(ctrl *controller.Controller) *Server {
	s := &Server{
		ctrl: ctrl,
		ws:   NewWSConnectionManager(),
	}
	ctrl.SetOnEvent(s.broadcastEvent)
	return s
}

func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/snapshot", s.handleSnapshot)
	mux.HandleFunc("/api/run", s.handleRun)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/last", s.handleLast)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/export/history.json", s.handleExportHistoryJSON)
	mux.HandleFunc("/api/export/history.csv", s.handleExportHistoryCSV)
	mux.HandleFunc("/ws", s.handleWebsocket)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Snapshot())
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.RunNow())
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		snap := s.ctrl.Snapshot()
		writeJSON(w, http.StatusOK, map[string]int{"interval_min": snap.IntervalMin})

	case http.MethodPost:
		var body struct {
			IntervalMin int `json:"interval_min"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, s.ctrl.SetIntervalMin(body.IntervalMin))

	default:
		w.Header().Set("Allow", http.MethodGet+", "+http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleLast(w http.ResponseWriter, r *http.Request) {
	snap := s.ctrl.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"last":       snap.Last,
		"last_error": snap.LastError,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Snapshot().History24h)
}

// ---------- export API ----------

func (s *Server) handleExportHistoryJSON(w http.ResponseWriter, r *http.Request) {
	history := s.ctrl.Snapshot().History24h

	filename := fmt.Sprintf("speedtest-history-%s.json", time.Now().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleExportHistoryCSV(w http.ResponseWriter, r *http.Request) {
	history := s.ctrl.Snapshot().History24h

	filename := fmt.Sprintf("speedtest-history-%s.csv", time.Now().Format("20060102-150405"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	writer := csv.NewWriter(w)
	defer writer.Flush()

	header := []string{"ID", "Timestamp", "Runner", "Ping (ms)", "Jitter (ms)", "Download (Mbps)", "Upload (Mbps)", "Note"}
	if err := writer.Write(header); err != nil {
		log.Error().Str("component", "api").Err(err).Msg("write CSV header")
		return
	}

	for _, e := range history {
		row := []string{
			e.ID,
			time.UnixMilli(e.TS).UTC().Format(time.RFC3339),
			string(e.Runner),
			formatMetric(e.PingMs),
			formatMetric(e.JitterMs),
			formatMetric(e.DownMbps),
			formatMetric(e.UpMbps),
			e.Note,
		}
		if err := writer.Write(row); err != nil {
			log.Error().Str("component", "api").Err(err).Msg("write CSV row")
			return
		}
	}
}

func formatMetric(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

// ---------- websocket ----------

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Str("component", "api").Err(err).Msg("websocket upgrade failed")
		return
	}
	s.ws.Add(conn)

	// Bring the new client up to date immediately.
	snap := s.ctrl.Snapshot()
	if err := s.ws.WriteJSON(conn, map[string]any{"type": "snapshot", "snapshot": snap}); err != nil {
		s.ws.Remove(conn)
		conn.Close()
		return
	}

	go func() {
		defer func() {
			s.ws.Remove(conn)
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) broadcastEvent(event string, payload any) {
	switch event {
	case "progress":
		if p, ok := payload.(model.Progress); ok {
			s.ws.Broadcast(map[string]any{"type": "progress", "progress": p})
		}
	case "complete":
		if e, ok := payload.(model.HistoryEntry); ok {
			s.ws.Broadcast(map[string]any{"type": "completed", "result": e})
		}
	case "error":
		if msg, ok := payload.(string); ok {
			s.ws.Broadcast(map[string]any{"type": "error", "message": msg})
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Str("component", "api").Err(err).Msg("writeJSON")
	}
}
