// Package server is an HTTP/1.1 front end on gnet. Requests the parser
// rejects are answered with the terminal responses from package fault and
// the connection is closed.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	gnet "github.com/panjf2000/gnet/v2"
	"go.uber.org/zap"

	"github.com/J1407B-K/halt/fault"
)

var errNotRunning = errors.New("server not running")

// Server serves an http.Handler over gnet.
type Server struct {
	h *eventHandler
}

// New returns a Server that dispatches well-formed requests to handler.
func New(handler http.Handler, opts ...Option) *Server {
	if handler == nil {
		handler = http.NotFoundHandler()
	}
	return &Server{h: newEventHandler(handler, newConfig(opts))}
}

// Run listens on addr and blocks until the server stops.
func (s *Server) Run(addr string) error {
	if addr == "" {
		return errors.New("missing address")
	}
	if err := fault.Verify(); err != nil {
		return fmt.Errorf("fault registry: %w", err)
	}
	protoAddr := ensureProtoAddr(addr)
	opts := append([]gnet.Option{gnet.WithLogger(s.h.log.Sugar())}, s.h.cfg.engineOpts...)
	s.h.log.Info("listening",
		zap.String("addr", protoAddr),
		zap.Int("max_header_bytes", s.h.cfg.header),
		zap.Int("max_body_bytes", s.h.cfg.body),
	)
	defer s.h.finish()
	return gnet.Run(s.h, protoAddr, opts...)
}

// Started is closed once the event engine is accepting connections.
func (s *Server) Started() <-chan struct{} { return s.h.started }

// Stop shuts the engine down gracefully.
func (s *Server) Stop(ctx context.Context) error { return s.h.stop(ctx) }

// Stats returns the request and fault counters.
func (s *Server) Stats() Stats {
	return Stats{
		Requests: s.h.requests.Load(),
		Faults:   s.h.faults.snapshot(),
	}
}
