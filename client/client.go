// Package client is a thin Go client for the shard directory admin API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client talks to a shard directory service over HTTP.
type Client struct {
	http *resty.Client
}

// New creates a client for the given base URL, e.g. http://localhost:8080.
func New(baseURL string) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(30 * time.Second)
	return &Client{http: c}
}

type apiError struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

func checkStatus(resp *resty.Response, want ...int) error {
	for _, s := range want {
		if resp.StatusCode() == s {
			return nil
		}
	}
	var ae apiError
	if err := json.Unmarshal(resp.Body(), &ae); err == nil && ae.Message != "" {
		return fmt.Errorf("shard directory: status %d: %s", resp.StatusCode(), ae.Message)
	}
	return fmt.Errorf("shard directory: status %d: %s", resp.StatusCode(), resp.String())
}

// CreateShard registers a shard and returns its id.
func (c *Client) CreateShard(ctx context.Context, info *ShardInfo) (int64, error) {
	var out ShardInfo
	resp, err := c.http.R().SetContext(ctx).SetBody(info).SetResult(&out).Post("/api/shards")
	if err != nil {
		return 0, err
	}
	if err := checkStatus(resp, http.StatusCreated); err != nil {
		return 0, err
	}
	return out.ID, nil
}

// GetShard fetches a shard record by id.
func (c *Client) GetShard(ctx context.Context, id int64) (*ShardInfo, error) {
	var out ShardInfo
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).
		Get("/api/shards/" + strconv.FormatInt(id, 10))
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// FindShard resolves (tablePrefix, hostname) to a shard id.
func (c *Client) FindShard(ctx context.Context, tablePrefix, hostname string) (int64, error) {
	var out struct {
		ID int64 `json:"id"`
	}
	resp, err := c.http.R().SetContext(ctx).
		SetQueryParam("tablePrefix", tablePrefix).
		SetQueryParam("hostname", hostname).
		SetResult(&out).
		Get("/api/shards/lookup")
	if err != nil {
		return 0, err
	}
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return 0, err
	}
	return out.ID, nil
}

// UpdateShard rewrites a shard record.
func (c *Client) UpdateShard(ctx context.Context, info *ShardInfo) error {
	resp, err := c.http.R().SetContext(ctx).SetBody(info).
		Put("/api/shards/" + strconv.FormatInt(info.ID, 10))
	if err != nil {
		return err
	}
	return checkStatus(resp, http.StatusOK)
}

// DeleteShard removes a shard and its tree edges.
func (c *Client) DeleteShard(ctx context.Context, id int64) error {
	resp, err := c.http.R().SetContext(ctx).
		Delete("/api/shards/" + strconv.FormatInt(id, 10))
	if err != nil {
		return err
	}
	return checkStatus(resp, http.StatusNoContent)
}

type shardList struct {
	Shards []*ShardInfo `json:"shards"`
	Count  int          `json:"count"`
}

// ListShards fetches all registered shards.
func (c *Client) ListShards(ctx context.Context) ([]*ShardInfo, error) {
	var out shardList
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get("/api/shards")
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Shards, nil
}

// ListBusyShards fetches shards whose busy flag is not normal.
func (c *Client) ListBusyShards(ctx context.Context) ([]*ShardInfo, error) {
	var out shardList
	resp, err := c.http.R().SetContext(ctx).SetQueryParam("busy", "true").
		SetResult(&out).Get("/api/shards")
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Shards, nil
}

// MarkShardBusy flips a shard's advisory busy flag.
func (c *Client) MarkShardBusy(ctx context.Context, id int64, state ShardState) error {
	resp, err := c.http.R().SetContext(ctx).
		SetBody(map[string]ShardState{"state": state}).
		Post("/api/shards/" + strconv.FormatInt(id, 10) + "/busy")
	if err != nil {
		return err
	}
	return checkStatus(resp, http.StatusNoContent)
}

// AddChildShard links childID under parentID with the given weight.
func (c *Client) AddChildShard(ctx context.Context, parentID, childID int64, weight int) error {
	resp, err := c.http.R().SetContext(ctx).
		SetBody(map[string]interface{}{"childId": childID, "weight": weight}).
		Post("/api/shards/" + strconv.FormatInt(parentID, 10) + "/children")
	if err != nil {
		return err
	}
	return checkStatus(resp, http.StatusNoContent)
}

// RemoveChildShard unlinks childID from parentID.
func (c *Client) RemoveChildShard(ctx context.Context, parentID, childID int64) error {
	resp, err := c.http.R().SetContext(ctx).
		Delete("/api/shards/" + strconv.FormatInt(parentID, 10) + "/children/" + strconv.FormatInt(childID, 10))
	if err != nil {
		return err
	}
	return checkStatus(resp, http.StatusNoContent)
}

// ListChildShards fetches parentID's children, heaviest first.
func (c *Client) ListChildShards(ctx context.Context, parentID int64) ([]ChildInfo, error) {
	var out struct {
		Children []ChildInfo `json:"children"`
	}
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).
		Get("/api/shards/" + strconv.FormatInt(parentID, 10) + "/children")
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Children, nil
}

// GetParentShard fetches a shard's parent (itself when it is a root).
func (c *Client) GetParentShard(ctx context.Context, id int64) (*ShardInfo, error) {
	var out ShardInfo
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).
		Get("/api/shards/" + strconv.FormatInt(id, 10) + "/parent")
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetRootShard ascends to the root of a shard's tree.
func (c *Client) GetRootShard(ctx context.Context, id int64) (*ShardInfo, error) {
	var out ShardInfo
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).
		Get("/api/shards/" + strconv.FormatInt(id, 10) + "/root")
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetForwarding points a logical range at a shard.
func (c *Client) SetForwarding(ctx context.Context, fwd Forwarding) error {
	resp, err := c.http.R().SetContext(ctx).SetBody(fwd).Put("/api/forwardings")
	if err != nil {
		return err
	}
	return checkStatus(resp, http.StatusOK)
}

// GetForwarding resolves (tableID, baseID) to the owning shard record.
func (c *Client) GetForwarding(ctx context.Context, tableID int, baseID int64) (*ShardInfo, error) {
	var out ShardInfo
	resp, err := c.http.R().SetContext(ctx).
		SetQueryParam("tableId", strconv.Itoa(tableID)).
		SetQueryParam("baseId", strconv.FormatInt(baseID, 10)).
		SetResult(&out).
		Get("/api/forwardings/lookup")
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListForwardings fetches the full forwarding table.
func (c *Client) ListForwardings(ctx context.Context) ([]Forwarding, error) {
	var out struct {
		Forwardings []Forwarding `json:"forwardings"`
	}
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get("/api/forwardings")
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Forwardings, nil
}

// JobResult is the service's report for a posted job.
type JobResult struct {
	JobID     string          `json:"jobId"`
	Status    string          `json:"status"`
	Remaining json.RawMessage `json:"remaining"`
	Error     string          `json:"error,omitempty"`
}

// RunJob posts a serialized job and returns the execution report. A
// rejected job is not an error at this level; inspect Status and
// re-post Remaining to resume.
func (c *Client) RunJob(ctx context.Context, serialized json.RawMessage) (*JobResult, error) {
	var out JobResult
	resp, err := c.http.R().SetContext(ctx).SetBody(serialized).SetResult(&out).
		SetError(&out).Post("/api/jobs")
	if err != nil {
		return nil, err
	}
	switch resp.StatusCode() {
	case http.StatusOK, http.StatusConflict, http.StatusInternalServerError:
		if out.Status == "" {
			return nil, fmt.Errorf("shard directory: status %d: %s", resp.StatusCode(), resp.String())
		}
		return &out, nil
	default:
		return nil, checkStatus(resp, http.StatusOK)
	}
}

// Health reports whether the service says it is healthy.
func (c *Client) Health(ctx context.Context) (bool, error) {
	var out struct {
		Status string `json:"status"`
	}
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get("/api/health")
	if err != nil {
		return false, err
	}
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return false, err
	}
	return out.Status == "healthy", nil
}
