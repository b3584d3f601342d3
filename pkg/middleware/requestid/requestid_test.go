package requestid

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seen struct {
	gin, ctx string
}

func serve(t *testing.T, clientID string) (seen, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	var got seen
	r := gin.New()
	r.Use(Middleware())
	r.GET("/", func(c *gin.Context) {
		got = seen{gin: Value(c), ctx: FromContext(c.Request.Context())}
		c.Status(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if clientID != "" {
		req.Header.Set(Header, clientID)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return got, rec
}

func TestMiddlewareMintsID(t *testing.T) {
	got, rec := serve(t, "")
	_, err := uuid.Parse(got.gin)
	require.NoError(t, err)
	assert.Equal(t, got.gin, got.ctx)
	assert.Equal(t, got.gin, rec.Header().Get(Header))
}

func TestMiddlewareAdoptsClientID(t *testing.T) {
	got, rec := serve(t, "gurukul-cli:5f2c.1")
	assert.Equal(t, "gurukul-cli:5f2c.1", got.gin)
	assert.Equal(t, "gurukul-cli:5f2c.1", got.ctx)
	assert.Equal(t, "gurukul-cli:5f2c.1", rec.Header().Get(Header))
}

func TestMiddlewareReplacesUnsafeID(t *testing.T) {
	for name, id := range map[string]string{
		"oversized": strings.Repeat("x", maxLength+1),
		"spaces":    "drop table",
		"newline":   "abc\r\nSet-Cookie: x",
	} {
		t.Run(name, func(t *testing.T) {
			got, _ := serve(t, id)
			assert.NotEqual(t, id, got.gin)
			assert.Len(t, got.gin, 36)
		})
	}
}

func TestFromContextEmpty(t *testing.T) {
	assert.Empty(t, FromContext(context.Background()))
	assert.Equal(t, "r-1", FromContext(NewContext(context.Background(), "r-1")))
}
