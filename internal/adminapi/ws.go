package adminapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/webitel/cluster-sharding/internal/sharding"
)

var statsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const statsPushInterval = 2 * time.Second

// streamState upgrades to a websocket and pushes a CurrentShardState JSON
// frame for shardId every statsPushInterval, until the client disconnects
// or the shard stops being live.
func (h *HTTPHandler) streamState(w http.ResponseWriter, r *http.Request) {
	shardId := sharding.ShardId(chi.URLParam(r, "shardId"))

	conn, err := statsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ADMIN_WS_UPGRADE_FAILED", "err", err)
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(statsPushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			state, ok := pollState(r.Context(), h, shardId)
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shard not live"))
				return
			}
			if err := conn.WriteJSON(state); err != nil {
				h.logger.Warn("ADMIN_WS_SEND_FAILED", "shard_id", shardId, "err", err)
				return
			}
		}
	}
}

func pollState(ctx context.Context, h *HTTPHandler, shardId sharding.ShardId) (sharding.CurrentShardState, bool) {
	callCtx, cancel := context.WithTimeout(ctx, statsPushInterval)
	defer cancel()
	return h.host.CurrentState(callCtx, shardId)
}
