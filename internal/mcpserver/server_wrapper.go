package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ca-srg/hybridgate/internal/types"
)

const healthPath = "/health"

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxHeaderBytes  int
}

// NewServerConfigFromTypes extracts listener settings from the root config.
func NewServerConfigFromTypes(cfg *types.Config) ServerConfig {
	return ServerConfig{
		Host:            cfg.ServerHost,
		Port:            cfg.ServerPort,
		ReadTimeout:     cfg.ServerReadTimeout,
		WriteTimeout:    cfg.ServerWriteTimeout,
		IdleTimeout:     cfg.ServerIdleTimeout,
		ShutdownTimeout: cfg.ServerShutdownTimeout,
		MaxHeaderBytes:  cfg.ServerMaxHeaderBytes,
	}
}

// Address returns host:port.
func (c ServerConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ServerWrapper serves the MCP streamable HTTP endpoint and the liveness
// probe behind the shared-secret gate.
type ServerWrapper struct {
	sdkServer  *mcp.Server
	httpServer *http.Server
	listener   net.Listener
	authGate   *AuthGate
	config     ServerConfig
	version    string

	logger    *log.Logger
	mutex     sync.RWMutex
	isRunning bool
	serveErr  chan error
}

// NewServerWrapper creates the MCP server. The gate is mandatory.
func NewServerWrapper(cfg ServerConfig, gate *AuthGate, version string) (*ServerWrapper, error) {
	if gate == nil {
		return nil, fmt.Errorf("auth gate cannot be nil")
	}
	if version == "" {
		version = "dev"
	}

	impl := &mcp.Implementation{
		Name:    "hybridgate",
		Version: version,
	}

	return &ServerWrapper{
		sdkServer: mcp.NewServer(impl, nil),
		authGate:  gate,
		config:    cfg,
		version:   version,
		logger:    log.New(os.Stdout, "[ServerWrapper] ", log.LstdFlags),
	}, nil
}

// SetLogger replaces the server logger.
func (sw *ServerWrapper) SetLogger(logger *log.Logger) {
	sw.mutex.Lock()
	defer sw.mutex.Unlock()
	if logger != nil {
		sw.logger = logger
	}
}

// RegisterSearchTool adds the search tool to the MCP server.
func (sw *ServerWrapper) RegisterSearchTool(tool *SearchTool) error {
	if tool == nil {
		return fmt.Errorf("search tool cannot be nil")
	}
	sw.sdkServer.AddTool(tool.Definition(), tool.Handle)
	sw.logger.Printf("Tool %s registered", tool.Name())
	return nil
}

// Handler builds the full HTTP handler chain:
// logging -> auth gate -> mux("/", "/mcp", "/health").
func (sw *ServerWrapper) Handler() http.Handler {
	getServer := func(*http.Request) *mcp.Server { return sw.sdkServer }
	mcpHandler := mcp.NewStreamableHTTPHandler(getServer, &mcp.StreamableHTTPOptions{
		Stateless:    true,
		JSONResponse: true,
		Logger:       slog.New(slog.NewTextHandler(log.Writer(), &slog.HandlerOptions{Level: slog.LevelWarn})),
	})

	mux := http.NewServeMux()
	mux.Handle("/", mcpHandler)
	mux.Handle("/mcp", mcpHandler)
	mux.HandleFunc(http.MethodGet+" "+healthPath, sw.handleHealthCheck)
	// The gate exempts the path for every method; only GET may answer.
	mux.HandleFunc(healthPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Allow", http.MethodGet+", "+http.MethodHead)
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return sw.loggingMiddleware(sw.authGate.Middleware(mux))
}

// Start binds the listener and serves in the background.
func (sw *ServerWrapper) Start() error {
	sw.mutex.Lock()
	defer sw.mutex.Unlock()

	if sw.isRunning {
		return fmt.Errorf("server is already running")
	}

	listener, err := net.Listen("tcp", sw.config.Address())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", sw.config.Address(), err)
	}

	sw.listener = listener
	sw.httpServer = &http.Server{
		Handler:        sw.Handler(),
		ReadTimeout:    sw.config.ReadTimeout,
		WriteTimeout:   sw.config.WriteTimeout,
		IdleTimeout:    sw.config.IdleTimeout,
		MaxHeaderBytes: sw.config.MaxHeaderBytes,
	}
	sw.serveErr = make(chan error, 1)

	go func(server *http.Server, errCh chan<- error) {
		err := server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			sw.logger.Printf("HTTP server error: %v", err)
			errCh <- err
		}
		close(errCh)
	}(sw.httpServer, sw.serveErr)

	sw.isRunning = true
	sw.logger.Printf("MCP server listening on %s (endpoints: /, /mcp, %s)", listener.Addr(), healthPath)
	return nil
}

// Run starts the server and blocks until ctx is canceled or serving fails,
// then shuts down gracefully.
func (sw *ServerWrapper) Run(ctx context.Context) error {
	if err := sw.Start(); err != nil {
		return err
	}

	sw.mutex.RLock()
	errCh := sw.serveErr
	sw.mutex.RUnlock()

	select {
	case <-ctx.Done():
		return sw.Stop()
	case err, ok := <-errCh:
		_ = sw.Stop()
		if ok && err != nil {
			return err
		}
		return nil
	}
}

// Stop shuts the server down, forcing close after the shutdown timeout.
func (sw *ServerWrapper) Stop() error {
	sw.mutex.Lock()
	defer sw.mutex.Unlock()

	if !sw.isRunning {
		return nil
	}

	sw.logger.Printf("Stopping MCP server...")
	timeout := sw.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var stopErr error
	if err := sw.httpServer.Shutdown(shutdownCtx); err != nil {
		sw.logger.Printf("Graceful shutdown failed: %v, forcing immediate shutdown", err)
		if err := sw.httpServer.Close(); err != nil {
			stopErr = fmt.Errorf("failed to close HTTP server: %w", err)
		}
	}

	sw.isRunning = false
	sw.logger.Printf("MCP server stopped")
	return stopErr
}

// IsRunning reports whether the server is serving.
func (sw *ServerWrapper) IsRunning() bool {
	sw.mutex.RLock()
	defer sw.mutex.RUnlock()
	return sw.isRunning
}

// Addr returns the bound listener address, or the configured one before Start.
func (sw *ServerWrapper) Addr() string {
	sw.mutex.RLock()
	defer sw.mutex.RUnlock()
	if sw.listener != nil {
		return sw.listener.Addr().String()
	}
	return sw.config.Address()
}

// SDKServer returns the underlying MCP server.
func (sw *ServerWrapper) SDKServer() *mcp.Server {
	return sw.sdkServer
}

func (sw *ServerWrapper) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]string{"status": "healthy"}); err != nil {
		sw.logger.Printf("Failed to write response: %v", err)
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int64
}

func newLoggingResponseWriter(w http.ResponseWriter) *loggingResponseWriter {
	return &loggingResponseWriter{ResponseWriter: w, status: http.StatusOK}
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += int64(n)
	return n, err
}

// Flush keeps streaming responses working through the wrapper.
func (lrw *loggingResponseWriter) Flush() {
	if f, ok := lrw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sw *ServerWrapper) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
			r.Header.Set(requestIDHeader, requestID)
		}
		w.Header().Set(requestIDHeader, requestID)

		lrw := newLoggingResponseWriter(w)
		next.ServeHTTP(lrw, r)

		sw.logger.Printf(
			"Request: %s %s status=%d bytes=%d duration=%s request_id=%s client_ip=%s user_agent=%q",
			r.Method,
			r.URL.Path,
			lrw.status,
			lrw.size,
			time.Since(start),
			requestID,
			clientIP(r),
			r.Header.Get("User-Agent"),
		)
	})
}
