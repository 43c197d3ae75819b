package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/seungmin-w/molip-backend/internal/hub"
	"github.com/seungmin-w/molip-backend/internal/protocol"
)

// ListRooms serves the same lobby snapshot the socket's getRoomList yields,
// for clients that poll before opening a connection.
func ListRooms(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reply := make(chan []protocol.RoomSummary, 1)
		h.Inbox() <- hub.ListRooms{Reply: reply}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(<-reply)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
