package app

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sha1n/relic-search/internal/config"
)

func TestNewHTTPServer_Addr(t *testing.T) {
	settings := testSettings(t)
	settings.Transport = config.TransportHTTP
	settings.Host = "0.0.0.0"
	settings.Port = 9090

	srv := NewHTTPServer(mcp.NewServer(&mcp.Implementation{Name: "test", Version: "v0"}, nil), settings)
	if srv.Addr != "0.0.0.0:9090" {
		t.Errorf("Addr = %q, want 0.0.0.0:9090", srv.Addr)
	}
}

func TestNewHTTPServer_Health(t *testing.T) {
	settings := testSettings(t)
	settings.Transport = config.TransportHTTP

	srv := NewHTTPServer(mcp.NewServer(&mcp.Implementation{Name: "test", Version: "v0"}, nil), settings)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("Status = %d, want 200", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if string(body) != "ok" {
		t.Errorf("Body = %q, want ok", body)
	}
}

func TestNewHTTPServer_Routes(t *testing.T) {
	tests := []struct {
		transport string
		mounted   string
		missing   string
	}{
		{transport: config.TransportHTTP, mounted: "/mcp", missing: "/sse"},
		{transport: config.TransportSSE, mounted: "/sse", missing: "/mcp"},
	}

	for _, tt := range tests {
		t.Run(tt.transport, func(t *testing.T) {
			settings := testSettings(t)
			settings.Transport = tt.transport
			srv := NewHTTPServer(mcp.NewServer(&mcp.Implementation{Name: "test", Version: "v0"}, nil), settings)

			rec := httptest.NewRecorder()
			srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, tt.mounted, nil))
			if rec.Code == http.StatusNotFound {
				t.Errorf("%s returned 404, want the MCP handler", tt.mounted)
			}

			rec = httptest.NewRecorder()
			srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.missing, nil))
			if rec.Code != http.StatusNotFound {
				t.Errorf("%s status = %d, want 404", tt.missing, rec.Code)
			}
		})
	}
}
