package resp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"linechat/internal/pkg/errs"
)

func TestRespond(t *testing.T) {
	t.Run("should wrap data in a success envelope", func(t *testing.T) {
		w := httptest.NewRecorder()
		RespondSuccess(w, httptest.NewRequest(http.MethodGet, "/health", nil), map[string]string{"status": "ok"})

		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "application/json", w.Header().Get("Content-Type"))
		require.JSONEq(t, `{"code":0,"message":"success","data":{"status":"ok"}}`, w.Body.String())
	})

	t.Run("should use the error status and reason", func(t *testing.T) {
		w := httptest.NewRecorder()
		RespondError(w, httptest.NewRequest(http.MethodGet, "/api/presence", nil), errs.NewError(errs.ErrStoreFailed))

		require.Equal(t, http.StatusServiceUnavailable, w.Code)

		var body JSONResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		require.Equal(t, errs.ErrStoreFailed, body.Code)
		require.Equal(t, "StoreError", body.Reason)
	})

	t.Run("should fall back to an internal error", func(t *testing.T) {
		w := httptest.NewRecorder()
		RespondError(w, httptest.NewRequest(http.MethodGet, "/", nil), nil)

		require.Equal(t, http.StatusInternalServerError, w.Code)
	})
}
