package server

import (
	"net/http"
	"strings"
	"testing"

	"github.com/valyala/bytebufferpool"
)

func TestResponseWriterFinalize(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "http://example.com/resource", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	pool := &bytebufferpool.Pool{}
	w := acquireResponseWriter(pool)
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusCreated)
	if _, err := w.Write([]byte("ok")); err != nil {
		t.Fatalf("write body: %v", err)
	}

	out := pool.Get()
	closeAfter := w.finalize(req, false, "halt-test", out)
	if closeAfter {
		t.Fatalf("expected connection kept alive")
	}
	resp := out.String()
	if !strings.HasPrefix(resp, "HTTP/1.1 201 Created\r\n") {
		t.Fatalf("unexpected status line: %s", resp)
	}
	for _, want := range []string{"Content-Length: 2\r\n", "Server: halt-test\r\n", "Date: "} {
		if !strings.Contains(resp, want) {
			t.Fatalf("expected %q, got: %s", want, resp)
		}
	}
	if !strings.HasSuffix(resp, "\r\n\r\nok") {
		t.Fatalf("expected body, got: %s", resp)
	}
	pool.Put(out)
	releaseResponseWriter(pool, w)
}

func TestResponseWriterCloseAndHead(t *testing.T) {
	req, _ := http.NewRequest(http.MethodHead, "http://example.com/", nil)
	pool := &bytebufferpool.Pool{}
	w := acquireResponseWriter(pool)
	_, _ = w.Write([]byte("hidden"))

	out := pool.Get()
	if !w.finalize(req, true, "", out) {
		t.Fatalf("expected close when the request asked for it")
	}
	resp := out.String()
	if !strings.Contains(resp, "Connection: close\r\n") {
		t.Fatalf("expected Connection: close, got: %s", resp)
	}
	if !strings.Contains(resp, "Content-Length: 6\r\n") || !strings.HasSuffix(resp, "\r\n\r\n") {
		t.Fatalf("expected HEAD response without body, got: %q", resp)
	}
	if strings.Contains(resp, "Server:") {
		t.Fatalf("unexpected Server header: %s", resp)
	}
	pool.Put(out)
	releaseResponseWriter(pool, w)
}

func TestResponseWriterFailedDropsPartialResponse(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "http://example.com/", nil)
	pool := &bytebufferpool.Pool{}
	w := acquireResponseWriter(pool)
	w.Header().Set("X-Partial", "1")
	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte("partial"))
	w.failed = true

	out := pool.Get()
	if !w.finalize(req, false, "halt-test", out) {
		t.Fatalf("expected a failed response to close the connection")
	}
	resp := out.String()
	if !strings.HasPrefix(resp, "HTTP/1.1 500 Internal Server Error\r\n") {
		t.Fatalf("expected 500, got %q", resp)
	}
	for _, leaked := range []string{"X-Partial", "partial", "Server:"} {
		if strings.Contains(resp, leaked) {
			t.Fatalf("%q leaked into failed response: %q", leaked, resp)
		}
	}
	if !strings.Contains(resp, "Connection: close\r\n") || !strings.Contains(resp, "Content-Length: 0\r\n") || !strings.HasSuffix(resp, "\r\n\r\n") {
		t.Fatalf("unexpected failed response: %q", resp)
	}
	pool.Put(out)
	releaseResponseWriter(pool, w)

	// A writer taken from the pool afterwards starts clean.
	w = acquireResponseWriter(pool)
	if w.failed || w.status != 0 || len(w.header) != 0 || w.body.Len() != 0 {
		t.Fatalf("pooled writer kept state: failed=%v status=%d header=%v", w.failed, w.status, w.header)
	}
	releaseResponseWriter(pool, w)
}

func TestResponseWriterNoContent(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "http://example.com/", nil)
	pool := &bytebufferpool.Pool{}
	w := acquireResponseWriter(pool)
	w.WriteHeader(http.StatusNoContent)
	_, _ = w.Write([]byte("ignored"))

	out := pool.Get()
	w.finalize(req, false, "", out)
	resp := out.String()
	if !strings.HasPrefix(resp, "HTTP/1.1 204 No Content\r\n") || !strings.HasSuffix(resp, "\r\n\r\n") {
		t.Fatalf("expected bodiless 204, got %q", resp)
	}
	if strings.Contains(resp, "Content-Length") {
		t.Fatalf("204 must not carry Content-Length: %q", resp)
	}
	pool.Put(out)
	releaseResponseWriter(pool, w)
}

func TestConnContextDiscard(t *testing.T) {
	c := &connContext{}
	c.append([]byte("abcdef"))
	c.discard(2)
	if string(c.buf) != "cdef" {
		t.Fatalf("expected cdef, got %q", c.buf)
	}
	c.discard(10)
	if len(c.buf) != 0 {
		t.Fatalf("expected empty buffer, got %q", c.buf)
	}
	c.served = 3
	c.reset()
	if c.buf != nil || c.served != 0 {
		t.Fatalf("reset left state behind")
	}
}
