package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	respond "github.com/clusterkit/shard-directory/internal/api/respond"
	"github.com/clusterkit/shard-directory/internal/directory"
	"github.com/clusterkit/shard-directory/internal/model"
)

// ForwardingHandler exposes the logical-range forwarding table.
type ForwardingHandler struct {
	dir *directory.Directory
}

func NewForwardingHandler(dir *directory.Directory) *ForwardingHandler {
	return &ForwardingHandler{dir: dir}
}

// SetForwarding PUT /api/forwardings
func (h *ForwardingHandler) SetForwarding(w http.ResponseWriter, r *http.Request) {
	var req model.Forwarding
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if err := h.dir.SetForwarding(r.Context(), req); err != nil {
		writeDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, &req)
}

// ReplaceForwarding POST /api/forwardings/replace
func (h *ForwardingHandler) ReplaceForwarding(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OldShardID int64 `json:"oldShardId"`
		NewShardID int64 `json:"newShardId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if err := h.dir.ReplaceForwarding(r.Context(), req.OldShardID, req.NewShardID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetForwarding GET /api/forwardings/lookup?tableId=...&baseId=...
// Resolves through the forwarding table to the owning shard record.
func (h *ForwardingHandler) GetForwarding(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tableID, err := strconv.Atoi(q.Get("tableId"))
	if err != nil {
		respond.WriteBadRequest(w, "tableId must be an integer")
		return
	}
	baseID, err := strconv.ParseInt(q.Get("baseId"), 10, 64)
	if err != nil {
		respond.WriteBadRequest(w, "baseId must be an integer")
		return
	}
	info, err := h.dir.GetForwarding(r.Context(), tableID, baseID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, info)
}

// ForwardingForShard GET /api/shards/{shardId}/forwarding
func (h *ForwardingHandler) ForwardingForShard(w http.ResponseWriter, r *http.Request) {
	id, ok := shardIDVar(r)
	if !ok {
		respond.WriteBadRequest(w, "shardId must be an integer")
		return
	}
	fwd, err := h.dir.GetForwardingForShard(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, fwd)
}

// ListForwardings GET /api/forwardings
func (h *ForwardingHandler) ListForwardings(w http.ResponseWriter, r *http.Request) {
	fwds, err := h.dir.GetForwardings(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"forwardings": fwds, "count": len(fwds)})
}
