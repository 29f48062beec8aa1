package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/clusterkit/shard-directory/internal/directory"
	"github.com/clusterkit/shard-directory/internal/job"
)

// NewRouter wires all admin API routes over a directory and job parser.
// metricsHandler and isHealthy may be nil.
func NewRouter(dir *directory.Directory, parser *job.JobWithTasksParser, isHealthy func() bool, metricsHandler http.Handler) *mux.Router {
	router := mux.NewRouter()

	shardHandler := NewShardHandler(dir)
	treeHandler := NewTreeHandler(dir)
	forwardingHandler := NewForwardingHandler(dir)
	healthHandler := NewHealthHandler(isHealthy)

	// Health endpoint
	router.HandleFunc("/api/health", healthHandler.CheckHealth).Methods("GET")

	// Shard endpoints. The lookup route is registered before the
	// {shardId} route so "lookup" is never parsed as an id.
	router.HandleFunc("/api/shards", shardHandler.CreateShard).Methods("POST")
	router.HandleFunc("/api/shards", shardHandler.ListShards).Methods("GET")
	router.HandleFunc("/api/shards/lookup", shardHandler.FindShard).Methods("GET")
	router.HandleFunc("/api/shards/{shardId:[0-9]+}", shardHandler.GetShard).Methods("GET")
	router.HandleFunc("/api/shards/{shardId:[0-9]+}", shardHandler.UpdateShard).Methods("PUT")
	router.HandleFunc("/api/shards/{shardId:[0-9]+}", shardHandler.DeleteShard).Methods("DELETE")
	router.HandleFunc("/api/shards/{shardId:[0-9]+}/busy", shardHandler.MarkBusy).Methods("POST")

	// Tree endpoints
	router.HandleFunc("/api/shards/{shardId:[0-9]+}/children", treeHandler.AddChild).Methods("POST")
	router.HandleFunc("/api/shards/{shardId:[0-9]+}/children", treeHandler.ListChildren).Methods("GET")
	router.HandleFunc("/api/shards/{shardId:[0-9]+}/children/{childId:[0-9]+}", treeHandler.RemoveChild).Methods("DELETE")
	router.HandleFunc("/api/shards/{shardId:[0-9]+}/parent", treeHandler.GetParent).Methods("GET")
	router.HandleFunc("/api/shards/{shardId:[0-9]+}/root", treeHandler.GetRoot).Methods("GET")
	router.HandleFunc("/api/shards/{shardId:[0-9]+}/descendants", treeHandler.ChildrenOfClass).Methods("GET")
	router.HandleFunc("/api/children", treeHandler.ListAllChildren).Methods("GET")
	router.HandleFunc("/api/children/replace", treeHandler.ReplaceChild).Methods("POST")

	// Forwarding endpoints
	router.HandleFunc("/api/forwardings", forwardingHandler.SetForwarding).Methods("PUT")
	router.HandleFunc("/api/forwardings", forwardingHandler.ListForwardings).Methods("GET")
	router.HandleFunc("/api/forwardings/lookup", forwardingHandler.GetForwarding).Methods("GET")
	router.HandleFunc("/api/forwardings/replace", forwardingHandler.ReplaceForwarding).Methods("POST")
	router.HandleFunc("/api/shards/{shardId:[0-9]+}/forwarding", forwardingHandler.ForwardingForShard).Methods("GET")

	// Job endpoint
	if parser != nil {
		jobHandler := NewJobHandler(parser)
		router.HandleFunc("/api/jobs", jobHandler.RunJob).Methods("POST")
	}

	// Metrics endpoint
	if metricsHandler != nil {
		router.Handle("/metrics", metricsHandler).Methods("GET")
	}

	return router
}
