package http

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/autoclip/internal/config"
	"github.com/jmylchreest/autoclip/internal/http/handlers"
	"github.com/jmylchreest/autoclip/internal/http/middleware"
)

func newTestServer(t *testing.T, cfg ServerConfig) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	s := NewServer(cfg, logger, "1.2.3")
	handlers.NewHealthHandler("1.2.3").Register(s.API())
	return s
}

func serve(s *Server, method, path string, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestServer_Routes(t *testing.T) {
	s := newTestServer(t, DefaultServerConfig())

	rec := serve(s, http.MethodGet, "/livez", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))

	rec = serve(s, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/docs", rec.Header().Get("Location"))

	rec = serve(s, http.MethodGet, "/openapi.json", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "autoclip API")
	assert.Contains(t, rec.Body.String(), "1.2.3")
}

func TestServer_BodyLimit(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.MaxBodyBytes = 32
	s := newTestServer(t, cfg)

	type echoInput struct {
		Body struct {
			Text string `json:"text"`
		}
	}
	huma.Register(s.API(), huma.Operation{
		OperationID: "echo",
		Method:      http.MethodPost,
		Path:        "/echo",
	}, func(ctx context.Context, in *echoInput) (*struct{}, error) {
		return nil, nil
	})

	rec := serve(s, http.MethodPost, "/echo", `{"text":"hi"}`)
	assert.Less(t, rec.Code, 300, rec.Body.String())

	rec = serve(s, http.MethodPost, "/echo", `{"text":"`+strings.Repeat("x", 100)+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestServerConfigFrom(t *testing.T) {
	sc := ServerConfigFrom(config.ServerConfig{Host: "127.0.0.1", Port: 9000, ReadTimeout: 5 * time.Second})
	assert.Equal(t, "127.0.0.1", sc.Host)
	assert.Equal(t, 9000, sc.Port)
	assert.Equal(t, 5*time.Second, sc.ReadTimeout)
	assert.Equal(t, DefaultServerConfig().WriteTimeout, sc.WriteTimeout)
	assert.Equal(t, DefaultServerConfig().MaxBodyBytes, sc.MaxBodyBytes)
}
