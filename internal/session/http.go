package session

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

type snapshotResponse struct {
	SessionID string  `json:"session_id"`
	Phase     string  `json:"phase"`
	Queued    int     `json:"queued"`
	ActiveID  string  `json:"active_id,omitempty"`
	Revealed  int     `json:"revealed"`
	WordCount int     `json:"word_count"`
	Mouth     float64 `json:"mouth"`
}

// SnapshotHandler reports one session's player state. Route it with an
// {id} path variable.
func (m *Manager) SnapshotHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		s, ok := m.Get(id)
		if !ok {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}

		snap, err := s.Snapshot(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusGone)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(snapshotResponse{
			SessionID: id,
			Phase:     snap.Phase.String(),
			Queued:    snap.Queued,
			ActiveID:  snap.ActiveID,
			Revealed:  snap.Cursor.Revealed,
			WordCount: snap.Cursor.WordCount,
			Mouth:     snap.Mouth.Current,
		})
	}
}

// ListHandler reports the IDs of live sessions
func (m *Manager) ListHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		ids := make([]string, 0, len(m.sessions))
		for id := range m.sessions {
			ids = append(ids, id)
		}
		m.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"count":    len(ids),
			"sessions": ids,
		})
	}
}
