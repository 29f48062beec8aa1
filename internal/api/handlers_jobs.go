package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	respond "github.com/clusterkit/shard-directory/internal/api/respond"
	"github.com/clusterkit/shard-directory/internal/job"
)

// JobHandler accepts serialized administrative jobs and drives them to
// completion synchronously.
type JobHandler struct {
	parser *job.JobWithTasksParser
}

func NewJobHandler(parser *job.JobWithTasksParser) *JobHandler {
	return &JobHandler{parser: parser}
}

// RunJob POST /api/jobs
// Executes the posted job's tasks in order. On a transient rejection the
// response carries the remaining tasks so the caller can re-post the
// body verbatim to resume from the failed step.
func (h *JobHandler) RunJob(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respond.WriteBadRequest(w, "failed to read request body")
		return
	}
	j, err := h.parser.Parse(body)
	if err != nil {
		if errors.Is(err, job.ErrUnknownTaskKind) {
			respond.WriteBadRequest(w, err.Error())
			return
		}
		respond.WriteBadRequest(w, "invalid job payload: "+err.Error())
		return
	}

	execErr := j.Execute(r.Context())
	remaining, marshalErr := json.Marshal(j)
	if marshalErr != nil {
		respond.WriteInternalError(w, marshalErr.Error())
		return
	}

	status := http.StatusOK
	result := "done"
	switch {
	case job.IsRejected(execErr):
		status = http.StatusConflict
		result = "rejected"
	case execErr != nil:
		status = http.StatusInternalServerError
		result = "failed"
	}
	resp := map[string]interface{}{
		"jobId":     j.ID(),
		"status":    result,
		"remaining": json.RawMessage(remaining),
	}
	if execErr != nil {
		resp["error"] = execErr.Error()
	}
	respond.WriteJSON(w, status, resp)
}
