package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/clusterkit/shard-directory/internal/directory"
	"github.com/clusterkit/shard-directory/internal/job"
	"github.com/clusterkit/shard-directory/internal/metrics"
	"github.com/clusterkit/shard-directory/internal/model"
	"github.com/clusterkit/shard-directory/internal/store/sqlite"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	s, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)

	stats := metrics.NewCollector()
	dir := directory.New(s, zerolog.Nop(), stats)

	registry := job.NewRegistry()
	require.NoError(t, job.RegisterDirectoryTasks(registry, dir, stats))
	parser := job.NewJobWithTasksParser(registry)

	srv := httptest.NewServer(NewRouter(dir, parser, func() bool { return true }, stats.Handler()))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func createShard(t *testing.T, srv *httptest.Server, id int64, class string) {
	t.Helper()
	info := model.ShardInfo{
		ID:          id,
		ClassName:   class,
		TablePrefix: fmt.Sprintf("t_%d", id),
		Hostname:    "db1.test",
	}
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/shards", info)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestShardEndpoints(t *testing.T) {
	srv := newTestServer(t)
	createShard(t, srv, 1, "sql")

	var got model.ShardInfo
	resp := doJSON(t, http.MethodGet, srv.URL+"/api/shards/1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &got)
	require.Equal(t, "sql", got.ClassName)

	// Lookup by location.
	var lookup struct {
		ID int64 `json:"id"`
	}
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/shards/lookup?tablePrefix=t_1&hostname=db1.test", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &lookup)
	require.Equal(t, int64(1), lookup.ID)

	// Unknown shard is a 404.
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/shards/99", nil)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Conflicting registration at the same location is a 409.
	clash := model.ShardInfo{ID: 5, ClassName: "replicating", TablePrefix: "t_1", Hostname: "db1.test"}
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/shards", clash)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	// Missing fields are a 400.
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/shards", model.ShardInfo{ID: 6})
	_ = resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Busy flag round-trip.
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/shards/1/busy", map[string]int{"state": 1})
	_ = resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	var listing struct {
		Shards []*model.ShardInfo `json:"shards"`
		Count  int                `json:"count"`
	}
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/shards?busy=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &listing)
	require.Equal(t, 1, listing.Count)
	require.Equal(t, model.StateBusy, listing.Shards[0].Busy)

	// Delete, then verify it is gone.
	resp = doJSON(t, http.MethodDelete, srv.URL+"/api/shards/1", nil)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = doJSON(t, http.MethodDelete, srv.URL+"/api/shards/1", nil)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTreeEndpoints(t *testing.T) {
	srv := newTestServer(t)
	createShard(t, srv, 1, "replicating")
	createShard(t, srv, 2, "sql")
	createShard(t, srv, 3, "sql")

	for _, link := range []struct {
		child  int64
		weight int
	}{{2, 1}, {3, 10}} {
		resp := doJSON(t, http.MethodPost, srv.URL+"/api/shards/1/children",
			map[string]interface{}{"childId": link.child, "weight": link.weight})
		_ = resp.Body.Close()
		require.Equal(t, http.StatusNoContent, resp.StatusCode)
	}

	var kids struct {
		Children []model.ChildInfo `json:"children"`
	}
	resp := doJSON(t, http.MethodGet, srv.URL+"/api/shards/1/children", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &kids)
	require.Len(t, kids.Children, 2)
	require.Equal(t, int64(3), kids.Children[0].ChildID) // heaviest first

	var parent model.ShardInfo
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/shards/2/parent", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &parent)
	require.Equal(t, int64(1), parent.ID)

	var root model.ShardInfo
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/shards/3/root", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &root)
	require.Equal(t, int64(1), root.ID)

	var matches struct {
		Shards []*model.ShardInfo `json:"shards"`
	}
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/shards/1/descendants?className=sql", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &matches)
	require.Len(t, matches.Shards, 2)
}

func TestForwardingEndpoints(t *testing.T) {
	srv := newTestServer(t)
	createShard(t, srv, 1, "sql")
	createShard(t, srv, 2, "sql")

	resp := doJSON(t, http.MethodPut, srv.URL+"/api/forwardings",
		model.Forwarding{TableID: 1, BaseID: 0, ShardID: 1})
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var owner model.ShardInfo
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/forwardings/lookup?tableId=1&baseId=0", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &owner)
	require.Equal(t, int64(1), owner.ID)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/forwardings/replace",
		map[string]int64{"oldShardId": 1, "newShardId": 2})
	_ = resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/forwardings/lookup?tableId=1&baseId=0", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &owner)
	require.Equal(t, int64(2), owner.ID)

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/forwardings/lookup?tableId=9&baseId=9", nil)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestJobEndpoint(t *testing.T) {
	srv := newTestServer(t)
	createShard(t, srv, 1, "sql")
	createShard(t, srv, 2, "sql")

	payload := `{"tasks":[
        {"mark_shard_busy":{"shardId":1,"state":1}},
        {"set_forwarding":{"tableId":1,"baseId":0,"shardId":2}},
        {"mark_shard_busy":{"shardId":1,"state":0}}
    ]}`
	resp, err := http.Post(srv.URL+"/api/jobs", "application/json", bytes.NewBufferString(payload))
	require.NoError(t, err)
	var result struct {
		Status    string          `json:"status"`
		Remaining json.RawMessage `json:"remaining"`
	}
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &result)
	require.Equal(t, "done", result.Status)

	var owner model.ShardInfo
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/forwardings/lookup?tableId=1&baseId=0", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &owner)
	require.Equal(t, int64(2), owner.ID)
}

func TestJobEndpoint_RejectedCarriesRemainder(t *testing.T) {
	srv := newTestServer(t)
	createShard(t, srv, 1, "sql")
	createShard(t, srv, 2, "sql")

	// Mark the forwarding target busy so set_forwarding is rejected.
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/shards/2/busy", map[string]int{"state": 1})
	_ = resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	payload := `{"tasks":[
        {"mark_shard_busy":{"shardId":1,"state":1}},
        {"set_forwarding":{"tableId":1,"baseId":0,"shardId":2}}
    ]}`
	resp, err := http.Post(srv.URL+"/api/jobs", "application/json", bytes.NewBufferString(payload))
	require.NoError(t, err)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	var result struct {
		Status    string `json:"status"`
		Remaining struct {
			Tasks []json.RawMessage `json:"tasks"`
		} `json:"remaining"`
	}
	decodeBody(t, resp, &result)
	require.Equal(t, "rejected", result.Status)
	require.Len(t, result.Remaining.Tasks, 1) // the rejected step survives

	// Unblock and resume with the remainder only.
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/shards/2/busy", map[string]int{"state": 0})
	_ = resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	remainder, err := json.Marshal(map[string]interface{}{"tasks": result.Remaining.Tasks})
	require.NoError(t, err)
	resp, err = http.Post(srv.URL+"/api/jobs", "application/json", bytes.NewBuffer(remainder))
	require.NoError(t, err)
	var resumed struct {
		Status string `json:"status"`
	}
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &resumed)
	require.Equal(t, "done", resumed.Status)
}

func TestJobEndpoint_UnknownKindIsBadRequest(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Post(srv.URL+"/api/jobs", "application/json",
		bytes.NewBufferString(`{"tasks":[{"no_such_task":{}}]}`))
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/health")
	require.NoError(t, err)
	var health struct {
		Status string `json:"status"`
	}
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &health)
	require.Equal(t, "healthy", health.Status)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
