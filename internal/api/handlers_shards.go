package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	respond "github.com/clusterkit/shard-directory/internal/api/respond"
	"github.com/clusterkit/shard-directory/internal/directory"
	"github.com/clusterkit/shard-directory/internal/model"
)

// ShardHandler is a thin HTTP transport over the directory's shard
// operations.
type ShardHandler struct {
	dir *directory.Directory
}

func NewShardHandler(dir *directory.Directory) *ShardHandler { return &ShardHandler{dir: dir} }

// noopShardRepository satisfies shard creation over HTTP. Physical table
// provisioning happens out of band; registration only records metadata.
type noopShardRepository struct{}

func (noopShardRepository) Create(ctx context.Context, info *model.ShardInfo) error { return nil }

func shardIDVar(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["shardId"], 10, 64)
	return id, err == nil
}

// CreateShard POST /api/shards
func (h *ShardHandler) CreateShard(w http.ResponseWriter, r *http.Request) {
	var req model.ShardInfo
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if req.ID == 0 || req.ClassName == "" || req.TablePrefix == "" || req.Hostname == "" {
		respond.WriteBadRequest(w, "id, className, tablePrefix and hostname are required")
		return
	}
	id, err := h.dir.CreateShard(r.Context(), &req, noopShardRepository{})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	req.ID = id
	respond.WriteJSON(w, http.StatusCreated, &req)
}

// GetShard GET /api/shards/{shardId}
func (h *ShardHandler) GetShard(w http.ResponseWriter, r *http.Request) {
	id, ok := shardIDVar(r)
	if !ok {
		respond.WriteBadRequest(w, "shardId must be an integer")
		return
	}
	info, err := h.dir.GetShard(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, info)
}

// FindShard GET /api/shards/lookup?tablePrefix=...&hostname=...
func (h *ShardHandler) FindShard(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("tablePrefix")
	host := r.URL.Query().Get("hostname")
	if prefix == "" || host == "" {
		respond.WriteBadRequest(w, "tablePrefix and hostname are required")
		return
	}
	id, err := h.dir.FindShard(r.Context(), prefix, host)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]int64{"id": id})
}

// UpdateShard PUT /api/shards/{shardId}
func (h *ShardHandler) UpdateShard(w http.ResponseWriter, r *http.Request) {
	id, ok := shardIDVar(r)
	if !ok {
		respond.WriteBadRequest(w, "shardId must be an integer")
		return
	}
	var req model.ShardInfo
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	req.ID = id
	if err := h.dir.UpdateShard(r.Context(), &req); err != nil {
		writeDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, &req)
}

// DeleteShard DELETE /api/shards/{shardId}
func (h *ShardHandler) DeleteShard(w http.ResponseWriter, r *http.Request) {
	id, ok := shardIDVar(r)
	if !ok {
		respond.WriteBadRequest(w, "shardId must be an integer")
		return
	}
	if err := h.dir.DeleteShard(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListShards GET /api/shards
// Supports ?busy=true for busy shards only and ?hostname=...&className=...
// for host-scoped listings.
func (h *ShardHandler) ListShards(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		shards []*model.ShardInfo
		err    error
	)
	switch {
	case q.Get("busy") == "true":
		shards, err = h.dir.GetBusyShards(r.Context())
	case q.Get("hostname") != "":
		shards, err = h.dir.ShardsForHostname(r.Context(), q.Get("hostname"), q.Get("className"))
	default:
		shards, err = h.dir.ListShards(r.Context())
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"shards": shards, "count": len(shards)})
}

// MarkBusy POST /api/shards/{shardId}/busy
func (h *ShardHandler) MarkBusy(w http.ResponseWriter, r *http.Request) {
	id, ok := shardIDVar(r)
	if !ok {
		respond.WriteBadRequest(w, "shardId must be an integer")
		return
	}
	var req struct {
		State model.ShardState `json:"state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if err := h.dir.MarkShardBusy(r.Context(), id, req.State); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
