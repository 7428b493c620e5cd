package requestid_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lleewss/Biypod-merchant-v2/pkg/requestid"
)

func serve(t *testing.T, headers map[string]string) (ctxID, respID string) {
	t.Helper()
	h := requestid.Middleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		ctxID = requestid.FromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return ctxID, rec.Header().Get(requestid.Header)
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	t.Run("generates", func(t *testing.T) {
		t.Parallel()
		ctxID, respID := serve(t, nil)
		assert.Equal(t, ctxID, respID)
		_, err := uuid.Parse(ctxID)
		require.NoError(t, err)
	})

	t.Run("reuses client id", func(t *testing.T) {
		t.Parallel()
		ctxID, respID := serve(t, map[string]string{requestid.Header: "abc-123"})
		assert.Equal(t, "abc-123", ctxID)
		assert.Equal(t, "abc-123", respID)
	})

	t.Run("falls back to webhook id", func(t *testing.T) {
		t.Parallel()
		id := "b54557e4-bdd9-4b37-8a5f-bf7d70bcd043"
		ctxID, _ := serve(t, map[string]string{requestid.WebhookHeader: id})
		assert.Equal(t, id, ctxID)
	})

	t.Run("replaces invalid id", func(t *testing.T) {
		t.Parallel()
		for _, bad := range []string{"has space", "<script>", strings.Repeat("a", 129)} {
			ctxID, _ := serve(t, map[string]string{requestid.Header: bad})
			assert.NotEqual(t, bad, ctxID)
			_, err := uuid.Parse(ctxID)
			assert.NoError(t, err)
		}
	})
}

func TestLoggerExtractor(t *testing.T) {
	t.Parallel()

	ex := requestid.LoggerExtractor()
	_, ok := ex(context.Background())
	assert.False(t, ok)

	attr, ok := ex(requestid.WithContext(context.Background(), "req-1"))
	require.True(t, ok)
	assert.Equal(t, "request_id", attr.Key)
	assert.Equal(t, "req-1", attr.Value.String())
}
