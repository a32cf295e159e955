package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"sync/atomic"

	gnet "github.com/panjf2000/gnet/v2"
	"github.com/valyala/bytebufferpool"
	"go.uber.org/zap"

	"github.com/J1407B-K/halt/fault"
)

type eventHandler struct {
	gnet.BuiltinEventEngine

	handler http.Handler
	cfg     config
	log     *zap.Logger
	bufPool *bytebufferpool.Pool

	mu        sync.Mutex
	engine    gnet.Engine
	booted    bool
	started   chan struct{}
	startOnce sync.Once
	done      chan struct{}
	doneOnce  sync.Once

	requests atomic.Uint64
	faults   faultCounters
}

func newEventHandler(h http.Handler, cfg config) *eventHandler {
	return &eventHandler{
		handler: h,
		cfg:     cfg,
		log:     cfg.logger,
		bufPool: &bytebufferpool.Pool{},
		started: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (h *eventHandler) OnBoot(engine gnet.Engine) gnet.Action {
	h.mu.Lock()
	h.engine = engine
	h.booted = true
	h.mu.Unlock()
	h.startOnce.Do(func() { close(h.started) })
	if len(h.cfg.signals) > 0 {
		go h.handleSignals()
	}
	return gnet.None
}

func (h *eventHandler) OnShutdown(gnet.Engine) { h.finish() }

// finish releases the signal watcher. It runs from OnShutdown and again
// after gnet.Run returns, whichever comes first.
func (h *eventHandler) finish() { h.doneOnce.Do(func() { close(h.done) }) }

func (h *eventHandler) handleSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, h.cfg.signals...)
	defer signal.Stop(sigCh)
	var sig os.Signal
	select {
	case sig = <-sigCh:
	case <-h.done:
		return
	}
	h.log.Info("shutting down", zap.Stringer("signal", sig))
	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.stopTimeout)
	defer cancel()
	if err := h.stop(ctx); err != nil {
		h.log.Error("gnet stop failed", zap.Error(err))
	}
}

func (h *eventHandler) stop(ctx context.Context) error {
	h.mu.Lock()
	engine, booted := h.engine, h.booted
	h.mu.Unlock()
	if !booted {
		return errNotRunning
	}
	return engine.Stop(ctx)
}

func (h *eventHandler) OnOpen(c gnet.Conn) ([]byte, gnet.Action) {
	c.SetContext(&connContext{})
	return nil, gnet.None
}

func (h *eventHandler) OnClose(c gnet.Conn, _ error) gnet.Action {
	if ctx, ok := c.Context().(*connContext); ok {
		ctx.reset()
	}
	return gnet.None
}

func (h *eventHandler) OnTraffic(c gnet.Conn) gnet.Action {
	ctx, _ := c.Context().(*connContext)
	if ctx == nil {
		ctx = &connContext{}
		c.SetContext(ctx)
	}

	if n := c.InboundBuffered(); n > 0 {
		data, err := c.Next(n)
		if err != nil {
			h.log.Debug("read failed", zap.Error(err))
			return gnet.Close
		}
		ctx.append(data)
	}

	for len(ctx.buf) > 0 {
		req, consumed, closeAfter, err := parseRequest(ctx.buf, h.cfg.limits)
		if err != nil {
			if errors.Is(err, errNeedMoreData) {
				break
			}
			if errors.Is(err, errBodyTooLarge) {
				h.log.Debug("dropping connection", zap.Error(err), zap.Stringer("remote", c.RemoteAddr()))
				return gnet.Close
			}
			return h.reject(c, ctx, err)
		}
		req.RemoteAddr = c.RemoteAddr().String()

		out := h.bufPool.Get()
		shouldClose := h.serve(req, closeAfter, out)
		_, werr := c.Write(out.Bytes())
		h.bufPool.Put(out)
		if werr != nil {
			return gnet.Close
		}

		h.requests.Add(1)
		ctx.served++
		ctx.discard(consumed)
		if shouldClose {
			return gnet.Close
		}
	}
	return gnet.None
}

// reject answers a parser fault with its canned response and closes the
// connection. An error that carries no fault is a parser defect: it is
// logged and the connection is dropped without a substitute response.
func (h *eventHandler) reject(c gnet.Conn, ctx *connContext, err error) gnet.Action {
	kind, ok := fault.Classify(err)
	if !ok {
		h.log.Error("unclassified parse error",
			zap.Error(err),
			zap.Stringer("remote", c.RemoteAddr()),
		)
		return gnet.Close
	}
	h.faults.inc(kind)
	if ce := h.log.Check(zap.DebugLevel, "rejecting request"); ce != nil {
		ce.Write(
			zap.Stringer("kind", kind),
			zap.Int("status", kind.Status()),
			zap.Stringer("remote", c.RemoteAddr()),
			zap.Int("served", ctx.served),
			zap.Error(err),
		)
	}
	_, _ = c.Write(fault.Response(kind))
	return gnet.Close
}

func (h *eventHandler) serve(req *http.Request, closeAfter bool, out *bytebufferpool.ByteBuffer) bool {
	w := acquireResponseWriter(h.bufPool)
	defer releaseResponseWriter(h.bufPool, w)
	defer func() { _ = req.Body.Close() }()

	w.failed = !h.serveHTTP(w, req)
	return w.finalize(req, closeAfter, h.cfg.serverHeader, out)
}

func (h *eventHandler) serveHTTP(w http.ResponseWriter, req *http.Request) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("handler panic",
				zap.Any("panic", r),
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.ByteString("stack", debug.Stack()),
			)
			ok = false
		}
	}()
	h.handler.ServeHTTP(w, req)
	return true
}
