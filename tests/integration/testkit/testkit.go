package testkit

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/pflag"

	"github.com/sha1n/relic-search/internal/app"
	"github.com/sha1n/relic-search/internal/config"
)

// Service represents a test service that can be started and stopped
type Service interface {
	Start() (map[string]any, error)
	Stop() error
	GetName() string
}

// TestEnvContext provides access to properties collected during environment startup
type TestEnvContext interface {
	GetProperties() map[string]any
	GetProperty(name string) (any, bool)
}

// TestEnv manages the lifecycle of test services
type TestEnv interface {
	Start() (map[string]any, error)
	Stop() error
	GetContext() TestEnvContext
}

type testEnvContextImpl struct {
	properties map[string]any
}

func (c *testEnvContextImpl) GetProperties() map[string]any {
	return c.properties
}

func (c *testEnvContextImpl) GetProperty(name string) (any, bool) {
	val, ok := c.properties[name]
	return val, ok
}

type testEnvImpl struct {
	services []Service
	context  *testEnvContextImpl
}

// NewTestEnv creates a new test environment with the given services
func NewTestEnv(services ...Service) TestEnv {
	return &testEnvImpl{
		services: services,
		context:  &testEnvContextImpl{properties: make(map[string]any)},
	}
}

func (e *testEnvImpl) Start() (map[string]any, error) {
	for _, s := range e.services {
		props, err := s.Start()
		if err != nil {
			return nil, err
		}
		for k, v := range props {
			e.context.properties[k] = v
		}
	}
	return e.context.properties, nil
}

func (e *testEnvImpl) Stop() error {
	var lastErr error
	// Stop in reverse order
	for i := len(e.services) - 1; i >= 0; i-- {
		if err := e.services[i].Stop(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (e *testEnvImpl) GetContext() TestEnvContext {
	return e.context
}

// GetFreePort returns a free port from the kernel
func GetFreePort() (int, error) {
	return getFreePortWithAddr("localhost:0")
}

// MustGetFreePort returns a free port or fails the test
func MustGetFreePort(t testing.TB) int {
	t.Helper()
	port, err := GetFreePort()
	if err != nil {
		t.Fatalf("Failed to get free port: %v", err)
	}
	return port
}

func getFreePortWithAddr(addrStr string) (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", addrStr)
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer func() { _ = l.Close() }()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// FlagOptions configures NewTestFlags
type FlagOptions struct {
	Port      int    // Uses free port if 0
	Transport string // Defaults to "http"
	Host      string // Defaults to "127.0.0.1"
	BaseDir   string // Defaults to a test temp dir
}

// NewTestFlags creates a serve flag set pointing at an isolated base dir
func NewTestFlags(t testing.TB, opts *FlagOptions) *pflag.FlagSet {
	t.Helper()

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	app.RegisterCommonFlags(flags)
	app.RegisterIndexFlags(flags)
	app.RegisterSearchFlags(flags)
	app.RegisterServeFlags(flags)

	o := FlagOptions{Transport: config.TransportHTTP, Host: "127.0.0.1"}
	if opts != nil {
		if opts.Port != 0 {
			o.Port = opts.Port
		}
		if opts.Transport != "" {
			o.Transport = opts.Transport
		}
		if opts.Host != "" {
			o.Host = opts.Host
		}
		o.BaseDir = opts.BaseDir
	}
	if o.Port == 0 {
		o.Port = MustGetFreePort(t)
	}
	if o.BaseDir == "" {
		o.BaseDir = t.TempDir()
	}

	_ = flags.Set("port", fmt.Sprintf("%d", o.Port))
	_ = flags.Set("transport", o.Transport)
	_ = flags.Set("host", o.Host)
	_ = flags.Set("base-dir", o.BaseDir)

	return flags
}

// ServerService runs the relic-search MCP server over HTTP in process.
// Start publishes "addr" and "baseURL".
type ServerService struct {
	flags  *pflag.FlagSet
	dirs   []string
	cancel context.CancelFunc
	srv    *http.Server
	done   chan error
}

// NewServerService creates a server that indexes dirs in the background
func NewServerService(flags *pflag.FlagSet, dirs ...string) *ServerService {
	return &ServerService{flags: flags, dirs: dirs}
}

func (s *ServerService) GetName() string {
	return app.ServerName
}

func (s *ServerService) Start() (map[string]any, error) {
	ctx, cancel := context.WithCancel(context.Background())
	listening := make(chan *http.Server, 1)

	params := app.DefaultRunParams()
	params.StartHTTPServer = func(m *mcp.Server, settings *config.Settings) error {
		srv := app.NewHTTPServer(m, settings)
		ln, err := net.Listen("tcp", srv.Addr)
		if err != nil {
			return err
		}
		listening <- srv
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	s.done = make(chan error, 1)
	go func() {
		s.done <- app.RunWithDeps(ctx, params, s.flags, "test", s.dirs)
	}()

	select {
	case srv := <-listening:
		s.srv = srv
		s.cancel = cancel
		return map[string]any{"addr": srv.Addr, "baseURL": "http://" + srv.Addr}, nil
	case err := <-s.done:
		cancel()
		return nil, fmt.Errorf("server exited before listening: %w", err)
	case <-time.After(10 * time.Second):
		cancel()
		return nil, errors.New("timed out waiting for the server to listen")
	}
}

// Stop shuts the HTTP server down and waits for background indexing and
// the index to close.
func (s *ServerService) Stop() error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.cancel()
	shutdownErr := s.srv.Shutdown(ctx)
	select {
	case err := <-s.done:
		return errors.Join(shutdownErr, err)
	case <-ctx.Done():
		return errors.Join(shutdownErr, ctx.Err())
	}
}
