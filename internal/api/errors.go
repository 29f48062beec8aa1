package api

import (
	"errors"
	"net/http"

	respond "github.com/clusterkit/shard-directory/internal/api/respond"
	"github.com/clusterkit/shard-directory/internal/model"
)

// writeDomainError maps directory errors onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrNonExistentShard), errors.Is(err, model.ErrNoForwarding):
		respond.WriteNotFound(w, err.Error())
	case errors.Is(err, model.ErrInvalidShard), errors.Is(err, model.ErrConflict):
		respond.WriteConflict(w, err.Error())
	case errors.Is(err, model.ErrMalformedTree):
		respond.WriteError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		respond.WriteInternalError(w, err.Error())
	}
}
