package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestWriteJSONSetsContentType(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteJSON(rec, http.StatusOK, map[string]string{"k": "v"}))

	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWriteJSONNilBody(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteJSON(rec, http.StatusNoContent, nil))
	assert.Empty(t, rec.Body.String())
}

func TestWriteOK(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteOK(rec, []string{"a", "b"}))

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp SuccessResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotNil(t, resp.Data)
}

func TestWriteAccepted(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteAccepted(rec, map[string]string{"operation_id": "abc"}))
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestErrorWriters(t *testing.T) {
	tests := []struct {
		name      string
		write     func(w http.ResponseWriter) error
		status    int
		errorType string
	}{
		{"bad request", func(w http.ResponseWriter) error { return WriteBadRequest(w, "nope", nil) }, http.StatusBadRequest, "bad_request"},
		{"unauthorized", func(w http.ResponseWriter) error { return WriteUnauthorized(w, "") }, http.StatusUnauthorized, "unauthorized"},
		{"forbidden", func(w http.ResponseWriter) error { return WriteForbidden(w, "") }, http.StatusForbidden, "forbidden"},
		{"not found", func(w http.ResponseWriter) error { return WriteNotFound(w, "") }, http.StatusNotFound, "not_found"},
		{"conflict", func(w http.ResponseWriter) error { return WriteConflict(w, "dup", nil) }, http.StatusConflict, "conflict"},
		{"too many requests", func(w http.ResponseWriter) error { return WriteTooManyRequests(w, "", nil) }, http.StatusTooManyRequests, "rate_limit_exceeded"},
		{"internal", func(w http.ResponseWriter) error { return WriteInternalServerError(w, "") }, http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			require.NoError(t, tt.write(rec))
			assert.Equal(t, tt.status, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, tt.errorType, resp.Error)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestWriteBadRequestDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteBadRequest(rec, "validation failed", map[string]interface{}{"name": "required"}))

	resp := decodeError(t, rec)
	assert.Equal(t, "required", resp.Details["name"])
}
