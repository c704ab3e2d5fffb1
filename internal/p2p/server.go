package p2p

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/cloupeer-io/otaupdate/pkg/log"
	"github.com/cloupeer-io/otaupdate/pkg/options"
)

// ShareServer is the local HTTP server peers hit to fetch visible share
// files, the downloading side of the P2P sub-protocol. Grounded on
// internal/cloudhub/server/http/server.go's mux + healthz shape.
type ShareServer struct {
	server *http.Server
	dir    string
}

// NewShareServer serves the visible files under dir on opts.Addr. Requests
// for a hidden ("." prefixed) or sidecar (".meta" suffixed) name are
// rejected, so a peer can never observe a share file before it has been
// promoted visible.
func NewShareServer(opts *options.HttpOptions, dir string) *ShareServer {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	fileHandler := http.StripPrefix("/files/", http.FileServer(http.Dir(dir)))
	r.PathPrefix("/files/").Handler(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		name := strings.TrimPrefix(req.URL.Path, "/files/")
		if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".meta") {
			http.NotFound(w, req)
			return
		}
		fileHandler.ServeHTTP(w, req)
	}))

	return &ShareServer{
		server: &http.Server{
			Addr:    opts.Addr,
			Handler: r,
		},
		dir: dir,
	}
}

// Start runs the server until ctx is cancelled.
func (s *ShareServer) Start(ctx context.Context) error {
	log.Info("starting p2p share server", "addr", s.server.Addr, "dir", s.dir)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}
