package websocket

import (
	"net/http"
	"strconv"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/starchart/internal/model"
)

// MemberLookup resolves the ?member= scope of a subscription.
type MemberLookup interface {
	GetByID(id int64) (*model.Member, error)
}

// HandleWebSocket upgrades connections and runs them as Hub clients.
// ?member=ID narrows the subscription to that member's messages plus
// family-wide ones.
func HandleWebSocket(hub *Hub, members MemberLookup) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memberID int64
		if raw := r.URL.Query().Get("member"); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				http.Error(w, "invalid member", http.StatusBadRequest)
				return
			}
			m, err := members.GetByID(id)
			if err != nil {
				hub.logger.Error("look up member", "error", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			if m == nil {
				http.Error(w, "unknown member", http.StatusNotFound)
				return
			}
			memberID = id
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			InsecureSkipVerify: true, // household LAN, any origin
		})
		if err != nil {
			hub.logger.Warn("accept", "error", err)
			return
		}

		NewClient(hub, conn, memberID).Run(r.Context())
	}
}
