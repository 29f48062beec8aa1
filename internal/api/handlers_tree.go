package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	respond "github.com/clusterkit/shard-directory/internal/api/respond"
	"github.com/clusterkit/shard-directory/internal/directory"
)

// TreeHandler exposes the shard tree: link edges and walk queries.
type TreeHandler struct {
	dir *directory.Directory
}

func NewTreeHandler(dir *directory.Directory) *TreeHandler { return &TreeHandler{dir: dir} }

// AddChild POST /api/shards/{shardId}/children
func (h *TreeHandler) AddChild(w http.ResponseWriter, r *http.Request) {
	parentID, ok := shardIDVar(r)
	if !ok {
		respond.WriteBadRequest(w, "shardId must be an integer")
		return
	}
	var req struct {
		ChildID int64 `json:"childId"`
		Weight  int   `json:"weight"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if err := h.dir.AddChildShard(r.Context(), parentID, req.ChildID, req.Weight); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveChild DELETE /api/shards/{shardId}/children/{childId}
func (h *TreeHandler) RemoveChild(w http.ResponseWriter, r *http.Request) {
	parentID, ok := shardIDVar(r)
	if !ok {
		respond.WriteBadRequest(w, "shardId must be an integer")
		return
	}
	childID, err := strconv.ParseInt(mux.Vars(r)["childId"], 10, 64)
	if err != nil {
		respond.WriteBadRequest(w, "childId must be an integer")
		return
	}
	if err := h.dir.RemoveChildShard(r.Context(), parentID, childID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReplaceChild POST /api/children/replace
func (h *TreeHandler) ReplaceChild(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OldChildID int64 `json:"oldChildId"`
		NewChildID int64 `json:"newChildId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if err := h.dir.ReplaceChildShard(r.Context(), req.OldChildID, req.NewChildID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListChildren GET /api/shards/{shardId}/children
func (h *TreeHandler) ListChildren(w http.ResponseWriter, r *http.Request) {
	parentID, ok := shardIDVar(r)
	if !ok {
		respond.WriteBadRequest(w, "shardId must be an integer")
		return
	}
	kids, err := h.dir.ListShardChildren(r.Context(), parentID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"children": kids, "count": len(kids)})
}

// ListAllChildren GET /api/children
func (h *TreeHandler) ListAllChildren(w http.ResponseWriter, r *http.Request) {
	all, err := h.dir.ListAllShardChildren(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, all)
}

// GetParent GET /api/shards/{shardId}/parent
func (h *TreeHandler) GetParent(w http.ResponseWriter, r *http.Request) {
	id, ok := shardIDVar(r)
	if !ok {
		respond.WriteBadRequest(w, "shardId must be an integer")
		return
	}
	info, err := h.dir.GetParentShard(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, info)
}

// GetRoot GET /api/shards/{shardId}/root
func (h *TreeHandler) GetRoot(w http.ResponseWriter, r *http.Request) {
	id, ok := shardIDVar(r)
	if !ok {
		respond.WriteBadRequest(w, "shardId must be an integer")
		return
	}
	info, err := h.dir.GetRootShard(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, info)
}

// ChildrenOfClass GET /api/shards/{shardId}/descendants?className=...
func (h *TreeHandler) ChildrenOfClass(w http.ResponseWriter, r *http.Request) {
	id, ok := shardIDVar(r)
	if !ok {
		respond.WriteBadRequest(w, "shardId must be an integer")
		return
	}
	className := r.URL.Query().Get("className")
	if className == "" {
		respond.WriteBadRequest(w, "className is required")
		return
	}
	shards, err := h.dir.GetChildShardsOfClass(r.Context(), id, className)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"shards": shards, "count": len(shards)})
}
