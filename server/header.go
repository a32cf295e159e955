package server

import (
	"net/http"
	"sort"
	"strings"

	"github.com/valyala/bytebufferpool"
)

// writeHeaderLines writes hdr in key order so responses are reproducible.
func writeHeaderLines(buf *bytebufferpool.ByteBuffer, hdr http.Header) {
	keys := make([]string, 0, len(hdr))
	for k := range hdr {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range hdr[k] {
			buf.WriteString(k)
			buf.WriteString(": ")
			buf.WriteString(v)
			buf.WriteString(crlf)
		}
	}
}

func clearHeader(h http.Header) {
	for k := range h {
		delete(h, k)
	}
}

func hasConnectionToken(hdr http.Header, token string) bool {
	for _, v := range hdr.Values("Connection") {
		for _, p := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(p), token) {
				return true
			}
		}
	}
	return false
}

func ensureProtoAddr(addr string) string {
	if strings.Contains(addr, "://") {
		return addr
	}
	return "tcp://" + addr
}
