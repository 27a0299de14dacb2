/*
	Package server exposes stored seed directories and voxel grids over HTTP so
	segmentation results can be browsed by viewers without exporting files.
	All routes are read-only and live under /api.
*/
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/cors"
	"github.com/zenazn/goji/web"

	"github.com/janelia-flyem/acseg/acseg"
	"github.com/janelia-flyem/acseg/storage"
)

const (
	// DefaultWebAddress is the default address of the results server.
	DefaultWebAddress = "localhost:8000"

	// ShutdownDelay bounds how long in-flight requests may run after the
	// server is asked to stop.
	ShutdownDelay = 5 * time.Second
)

// Config is the [server] section of the TOML configuration.
type Config struct {
	HTTPAddress string `toml:"http_address"`

	// AllowedOrigins lists CORS origins.  Empty allows all origins.
	AllowedOrigins []string `toml:"allowed_origins"`

	// SecretKey enables JWT authentication when set.
	SecretKey string `toml:"secret_key"`

	// AuthFile is a JSON object mapping user names to privileges.  When
	// given, only listed users may read.
	AuthFile string `toml:"auth_file"`
}

// Server answers read-only queries against a store.
type Server struct {
	config     Config
	store      storage.Store
	authorized map[string]string
}

// New returns a server for the store, loading the auth file if configured.
func New(config Config, store storage.Store) (*Server, error) {
	s := &Server{config: config, store: store}
	if err := s.loadAuthFile(); err != nil {
		return nil, fmt.Errorf("unable to load auth file %q: %w", config.AuthFile, err)
	}
	return s, nil
}

// Handler returns the routes wrapped in CORS handling.
func (s *Server) Handler() http.Handler {
	mux := web.New()
	if s.config.SecretKey != "" {
		mux.Use(s.isAuthorized)
	}
	mux.Get("/api/server/info", s.serverInfo)
	mux.Get("/api/directories", s.listDirectories)
	mux.Get("/api/grids", s.listGrids)
	mux.Get("/api/directory/:name", s.directoryInfo)
	mux.Get("/api/directory/:name/seed/:idx", s.seedVoxels)
	mux.Get("/api/grid/:name/info", s.gridInfo)
	mux.Get("/api/grid/:name/xy/:z", s.gridSlice)

	c := cors.New(cors.Options{
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead},
		AllowedHeaders: []string{"Authorization"},
	})
	return c.Handler(mux)
}

// Serve listens on the configured address until ctx is done, then shuts down.
func (s *Server) Serve(ctx context.Context) error {
	addr := s.config.HTTPAddress
	if addr == "" {
		addr = DefaultWebAddress
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	acseg.Infof("Serving results from %s on http://%s\n", s.store, addr)
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownDelay)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) loadAuthFile() error {
	if s.config.AuthFile == "" {
		if s.config.SecretKey != "" {
			acseg.Infof("No authorization file found.  Any valid token may read.\n")
		}
		return nil
	}
	data, err := os.ReadFile(s.config.AuthFile)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, &s.authorized)
}

// BadRequest writes a 400 and logs the message.
func BadRequest(w http.ResponseWriter, r *http.Request, format string, args ...interface{}) {
	httpError(w, r, http.StatusBadRequest, format, args...)
}

func httpError(w http.ResponseWriter, r *http.Request, status int, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	acseg.Errorf("%s %s: %s\n", r.Method, r.URL.Path, msg)
	http.Error(w, msg, status)
}

func writeJSON(w http.ResponseWriter, r *http.Request, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		acseg.Errorf("%s %s: unable to write JSON: %v\n", r.Method, r.URL.Path, err)
	}
}
