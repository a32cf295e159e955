package server

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/valyala/bytebufferpool"
)

var writerPool = sync.Pool{
	New: func() any { return &responseWriter{header: http.Header{}} },
}

// responseWriter collects one application response. Parser faults never
// reach it; they are answered with the canned bytes from package fault.
type responseWriter struct {
	header http.Header
	status int
	body   *bytebufferpool.ByteBuffer
	// failed is set when the handler panicked; whatever it wrote is dropped.
	failed bool
}

func acquireResponseWriter(pool *bytebufferpool.Pool) *responseWriter {
	w := writerPool.Get().(*responseWriter)
	clearHeader(w.header)
	w.status = 0
	w.failed = false
	w.body = pool.Get()
	w.body.Reset()
	return w
}

func releaseResponseWriter(pool *bytebufferpool.Pool, w *responseWriter) {
	pool.Put(w.body)
	w.body = nil
	writerPool.Put(w)
}

func (w *responseWriter) Header() http.Header { return w.header }

func (w *responseWriter) Write(b []byte) (int, error) {
	w.WriteHeader(http.StatusOK)
	return w.body.Write(b)
}

func (w *responseWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
}

// bodyAllowed reports whether a response with this status to this method
// may carry a body (RFC 9110 §6.4.1).
func bodyAllowed(method string, status int) bool {
	switch {
	case method == http.MethodHead:
		return false
	case status >= 100 && status < 200, status == http.StatusNoContent, status == http.StatusNotModified:
		return false
	}
	return true
}

// finalize renders the response into out and reports whether the
// connection must be closed after it is written.
func (w *responseWriter) finalize(req *http.Request, closeAfter bool, serverHdr string, out *bytebufferpool.ByteBuffer) bool {
	if w.failed {
		out.Reset()
		out.WriteString("HTTP/1.1 500 Internal Server Error\r\nConnection: close\r\nContent-Length: 0\r\n")
		out.WriteString("Date: " + time.Now().UTC().Format(http.TimeFormat) + crlf + crlf)
		return true
	}

	status := w.status
	if status == 0 {
		status = http.StatusOK
	}
	hdr := w.header
	if serverHdr != "" && hdr.Get("Server") == "" {
		hdr.Set("Server", serverHdr)
	}
	if hdr.Get("Date") == "" {
		hdr.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	}

	withBody := bodyAllowed(req.Method, status)
	if status >= 200 && status != http.StatusNoContent && hdr.Get("Content-Length") == "" {
		hdr.Set("Content-Length", strconv.Itoa(w.body.Len()))
	}

	closeAfter = closeAfter || hasConnectionToken(hdr, "close")
	switch {
	case closeAfter:
		hdr.Set("Connection", "close")
	case req.ProtoMinor == 0:
		hdr.Set("Connection", "keep-alive")
	}

	out.Reset()
	out.WriteString("HTTP/1.1 ")
	out.WriteString(strconv.Itoa(status))
	out.WriteByte(' ')
	out.WriteString(http.StatusText(status))
	out.WriteString(crlf)
	writeHeaderLines(out, hdr)
	out.WriteString(crlf)
	if withBody {
		out.Write(w.body.B)
	}
	return closeAfter
}
