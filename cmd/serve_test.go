package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"

	"github.com/tradecraft-foods/reconcile-cli/internal/review"
	"github.com/tradecraft-foods/reconcile-cli/internal/store"
	"github.com/tradecraft-foods/reconcile-cli/pkg/graphstore"
)

func TestWriteErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", store.ErrNotFound, http.StatusNotFound},
		{"wrapped not found", eris.Wrap(store.ErrNotFound, "review item abc"), http.StatusNotFound},
		{"already decided", eris.Wrap(store.ErrInvalidState, "item is approved_match"), http.StatusConflict},
		{"rejected decision", eris.Wrap(review.ErrInvalidDecision, "approve_match requires an entity id"), http.StatusBadRequest},
		{"gateway exhausted", &graphstore.UnavailableError{Op: "commit_match", Attempts: 3}, http.StatusBadGateway},
		{"gateway rejection", &graphstore.RequestError{Op: "commit_match", Message: "unknown field"}, http.StatusBadGateway},
		{"internal failure", eris.New("database is locked"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, tt.err)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}
