package app

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sha1n/relic-search/internal/config"
)

// StartHTTPServer serves the MCP server over SSE or streamable HTTP
func StartHTTPServer(s *mcp.Server, settings *config.Settings) error {
	srv := NewHTTPServer(s, settings)

	slog.Info("Server listening (HTTP)", "addr", srv.Addr, "transport", settings.Transport)
	return srv.ListenAndServe()
}

// NewHTTPServer creates the HTTP server. The MCP endpoint is /sse for the
// sse transport and /mcp otherwise.
func NewHTTPServer(s *mcp.Server, settings *config.Settings) *http.Server {
	getServer := func(*http.Request) *mcp.Server {
		return s
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if settings.Transport == config.TransportSSE {
		mux.Handle("/sse", mcp.NewSSEHandler(getServer, nil))
	} else {
		mux.Handle("/mcp", mcp.NewStreamableHTTPHandler(getServer, nil))
	}

	return &http.Server{
		Addr:    fmt.Sprintf("%s:%d", settings.Host, settings.Port),
		Handler: mux,
	}
}
