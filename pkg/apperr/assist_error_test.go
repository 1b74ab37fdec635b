package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := EmbeddingFailed(cause)

	assert.Equal(t, "[EMBEDDING_FAILED] embedding provider request failed: connection reset", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, http.StatusBadGateway, err.HTTPStatus())
}

func TestHasCode_Wrapped(t *testing.T) {
	err := fmt.Errorf("retrieve: %w", InvalidQuery("empty"))

	assert.True(t, HasCode(err, CodeInvalidQuery))
	assert.False(t, HasCode(err, CodeEmbeddingFailed))
	assert.Equal(t, http.StatusBadRequest, GetHTTPStatus(err))
}

func TestAsAppError_Plain(t *testing.T) {
	appErr := AsAppError(errors.New("plain"))
	assert.Equal(t, CodeInternalError, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
}

func TestIsPermanent(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"validation", InvalidQuery("blank"), true},
		{"unsupported type", UnsupportedType("image/png", nil), true},
		{"invalid embedding", EmbeddingInvalid("dimension 3"), true},
		{"not found", NotFound("document"), true},
		{"provider failure", EmbeddingFailed(errors.New("503")), false},
		{"database", DatabaseError("insert", errors.New("deadlock")), false},
		{"plain error", errors.New("eof"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsPermanent(tt.err))
		})
	}
}

func TestWithDetail(t *testing.T) {
	err := ValidationFailed("bad top_k").WithDetail("field", "top_k")
	assert.Equal(t, "top_k", err.Details["field"])
}

func TestWrap(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(cause, CodeInternalError, "blob write failed", http.StatusInsufficientStorage)

	assert.True(t, IsAppError(fmt.Errorf("put: %w", err)))
	assert.False(t, IsAppError(cause))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, http.StatusInsufficientStorage, err.HTTPStatus())

	dup := AlreadyExists("canonical Q&A")
	assert.Equal(t, "canonical Q&A already exists", dup.Message)
	assert.Equal(t, http.StatusConflict, dup.HTTPStatus())
}
