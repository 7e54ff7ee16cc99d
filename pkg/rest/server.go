// Package rest provides the REST API of the cluster console.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"

	"github.com/LINBIT/lcmc/pkg/cluster"
	"github.com/LINBIT/lcmc/pkg/host"
	"github.com/LINBIT/lcmc/pkg/transport"
)

type server struct {
	router   *mux.Router
	registry *cluster.Registry
	exec     transport.Executor
}

// Error is the type that is returned in case of an error.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Errorf takes a StatusCode, a ResponswWriter and a format string.
// It sets up the REST response and writes it to the ResponseWriter
// It also sets the according error code.
func Errorf(code int, w http.ResponseWriter, format string, a ...interface{}) (n int, err error) {
	e := Error{
		Code:    http.StatusText(code),
		Message: fmt.Sprintf(format, a...),
	}

	b, err := json.Marshal(&e)
	if err != nil {
		return 0, err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return fmt.Fprint(w, string(b))
}

// MustError is Errorf, but it only logs write failures.
func MustError(code int, w http.ResponseWriter, format string, a ...interface{}) {
	if _, err := Errorf(code, w, format, a...); err != nil {
		log.WithError(err).Warn("failed to write error response")
	}
}

func unmarshalBody(w http.ResponseWriter, r *http.Request, i interface{}) error {
	var s string
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s = "Could not read body"
		MustError(http.StatusBadRequest, w, s)
		return errors.New(s)
	}

	if err := json.Unmarshal(body, i); err != nil {
		s = "Could not unmarshal body"
		MustError(http.StatusBadRequest, w, "%s: %v", s, err)
		return errors.New(s)
	}

	return nil
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("failed to write response")
	}
}

// lookupCluster resolves the {cluster} route variable, writing a 404 if it
// names no configured cluster.
func (s *server) lookupCluster(w http.ResponseWriter, r *http.Request) (*cluster.Cluster, bool) {
	name := mux.Vars(r)["cluster"]
	c, ok := s.registry.Cluster(name)
	if !ok {
		MustError(http.StatusNotFound, w, "no cluster named '%s'", name)
	}
	return c, ok
}

// lookupHost resolves the {host} route variable.
func (s *server) lookupHost(w http.ResponseWriter, r *http.Request) (*cluster.Cluster, *host.Host, bool) {
	name := mux.Vars(r)["host"]
	c, h, ok := s.registry.FindHost(name)
	if !ok {
		MustError(http.StatusNotFound, w, "host '%s' is not part of any cluster", name)
	}
	return c, h, ok
}

// Handler returns the API handler without CORS handling.
func Handler(registry *cluster.Registry, exec transport.Executor) http.Handler {
	s := &server{
		router:   mux.NewRouter(),
		registry: registry,
		exec:     exec,
	}
	s.routes()
	return s.router
}

// ListenAndServe is the entry point for the REST API. It serves until ctx is
// done.
func ListenAndServe(ctx context.Context, addr string, registry *cluster.Registry, exec transport.Executor, corsAllowedOrigins []string) error {
	handler := Handler(registry, exec)
	if len(corsAllowedOrigins) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		}).Handler(handler)
	}

	srv := &http.Server{Addr: addr, Handler: handler}
	errC := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("Starting REST server")
		errC <- srv.ListenAndServe()
	}()

	select {
	case err := <-errC:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down REST server: %w", err)
		}
		return nil
	}
}
