// Package service implements the HTTP surface of a node.
//
// Every route is tagged with a trust Tier. Before a handler runs, the service
// stores a Caller in the request context and asks its Guard whether the caller
// may use the route. Private routes act on behalf of a local user, public and
// friend routes carry the federation messages pushed by other nodes.
package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MalekiRe/nexus-social/src/node"
	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxBodySize bounds request bodies. Messages are a few hundred bytes.
const maxBodySize = 64 << 10

// Service ...
type Service struct {
	bindAddress string
	node        *node.Node
	guard       Guard
	router      *mux.Router
	server      *http.Server
	logger      *logrus.Entry
}

// NewService ...
func NewService(bindAddress string, n *node.Node, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		node:        n,
		guard:       AllowAll,
		router:      mux.NewRouter(),
		logger:      logger,
	}

	service.registerHandlers()

	service.server = &http.Server{
		Addr:              bindAddress,
		Handler:           service.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &service
}

// SetGuard replaces the Guard consulted before every request.
func (s *Service) SetGuard(g Guard) {
	s.guard = g
}

// Handler returns the router, for use with a server started elsewhere.
func (s *Service) Handler() http.Handler {
	return s.router
}

// Serve calls ListenAndServe. This is a blocking call. It returns nil once
// Shutdown has been called.
func (s *Service) Serve() error {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving Nexus API")

	err := s.server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error(err)
		return err
	}

	return nil
}

// Shutdown stops accepting requests and waits for the active ones to finish.
func (s *Service) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// tier wraps a handler with the CORS header, the Caller and the Guard check.
// The Caller is in the request context from the Guard onwards.
func (s *Service) tier(t Tier, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		c := Caller{Tier: t, Remote: r.RemoteAddr}
		username := mux.Vars(r)["username"]

		r = r.WithContext(WithCaller(r.Context(), c))

		if err := s.guard.Allow(r.Context(), c, username); err != nil {
			s.writeError(w, r, err)
			return
		}

		s.logger.WithFields(logrus.Fields{
			"tier":   t,
			"method": r.Method,
			"path":   r.URL.Path,
			"remote": r.RemoteAddr,
		}).Debug("Request")

		fn(w, r)
	}
}
