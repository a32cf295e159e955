package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"

	"github.com/J1407B-K/halt/fault"
)

var (
	crlfBytes          = []byte(crlf)
	headerSeparatorBuf = []byte(headerBodySeparator)
)

// malformed wraps fault.MalformedRequest with a diagnostic that stays in the
// server log; the peer only ever sees the canned 400.
func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", fault.MalformedRequest, fmt.Sprintf(format, args...))
}

// parseRequest parses one request from the front of buf. It returns
// errNeedMoreData while the request is incomplete and errBodyTooLarge when
// the body cannot fit lim.body; every other error wraps a fault.Kind.
func parseRequest(buf []byte, lim limits) (*http.Request, int, bool, error) {
	if len(buf) == 0 {
		return nil, 0, false, errNeedMoreData
	}
	lim = lim.withDefaults()
	headerEnd := bytes.Index(buf, headerSeparatorBuf)
	if headerEnd == -1 {
		// Up to len(separator)-1 bytes of a split terminator may be pending.
		if len(buf) > lim.header+len(headerSeparatorBuf)-1 {
			return nil, 0, false, fmt.Errorf("%w: %d bytes without terminator", fault.HeaderFieldsTooLarge, len(buf))
		}
		return nil, 0, false, errNeedMoreData
	}
	if headerEnd > lim.header {
		return nil, 0, false, fmt.Errorf("%w: %d > %d bytes", fault.HeaderFieldsTooLarge, headerEnd, lim.header)
	}

	lines := bytes.Split(buf[:headerEnd], crlfBytes)
	method, target, maj, min, err := parseRequestLine(lines[0])
	if err != nil {
		return nil, 0, false, err
	}

	header, err := parseHeaderLines(lines[1:])
	if err != nil {
		return nil, 0, false, err
	}

	// Host comes from the header section only; trailers are merged later.
	host, err := requestHost(header, min)
	if err != nil {
		return nil, 0, false, err
	}
	parsedURL, err := parseRequestURL(target, host)
	if err != nil {
		return nil, 0, false, err
	}

	chunked, err := hasChunkedEncoding(header)
	if err != nil {
		return nil, 0, false, err
	}
	if chunked && len(header.Values("Content-Length")) > 0 {
		return nil, 0, false, malformed("chunked request must not include Content-Length")
	}

	bodyStart := headerEnd + len(headerSeparatorBuf)
	var (
		total         int
		body          io.ReadCloser = http.NoBody
		contentLength int64
	)

	if chunked {
		data, consumed, trailers, err := parseChunkedBody(buf, bodyStart, lim)
		if err != nil {
			return nil, 0, false, err
		}
		for k, vv := range trailers {
			for _, v := range vv {
				header.Add(k, v)
			}
		}
		total = consumed
		if len(data) > 0 {
			body = io.NopCloser(bytes.NewReader(data))
		}
		contentLength = -1
	} else {
		length, err := parseContentLength(header)
		if err != nil {
			return nil, 0, false, err
		}
		if length > int64(lim.body) {
			return nil, 0, false, fmt.Errorf("%w: Content-Length %d", errBodyTooLarge, length)
		}
		if length > int64(len(buf)-bodyStart) {
			return nil, 0, false, errNeedMoreData
		}
		total = bodyStart + int(length)
		if length > 0 {
			body = io.NopCloser(bytes.NewReader(buf[bodyStart:total]))
		}
		contentLength = length
	}

	req := &http.Request{
		Method:        method,
		Proto:         "HTTP/" + strconv.Itoa(maj) + "." + strconv.Itoa(min),
		ProtoMajor:    maj,
		ProtoMinor:    min,
		Header:        header,
		Body:          body,
		ContentLength: contentLength,
		Host:          host,
		RequestURI:    target,
		URL:           parsedURL,
	}
	if chunked {
		req.TransferEncoding = []string{"chunked"}
	}
	req.Close = shouldCloseConnection(req, header)
	return req, total, req.Close, nil
}

// requestHost returns the single Host value. HTTP/1.1 and later require it.
func requestHost(hdr http.Header, minor int) (string, error) {
	hosts := hdr.Values("Host")
	switch {
	case len(hosts) > 1:
		return "", malformed("%d Host headers", len(hosts))
	case len(hosts) == 0 && minor >= 1:
		return "", malformed("missing Host header")
	case len(hosts) == 0:
		return "", nil
	}
	return hosts[0], nil
}

func parseRequestLine(line []byte) (method, target string, maj, min int, err error) {
	parts := strings.SplitN(string(line), " ", 3)
	if len(parts) != 3 {
		return "", "", 0, 0, malformed("invalid request line: %q", line)
	}
	method, target = parts[0], parts[1]
	if method == "" || !isToken(method) {
		return "", "", 0, 0, malformed("invalid method: %q", method)
	}
	if target == "" {
		return "", "", 0, 0, malformed("missing request target")
	}
	maj, min, err = parseHTTPVersion(parts[2])
	if err != nil {
		return "", "", 0, 0, err
	}
	return method, target, maj, min, nil
}

// parseHTTPVersion accepts HTTP/<digit>.<digit>. A well-formed version with
// a major other than 1 is unsupported rather than malformed.
func parseHTTPVersion(proto string) (int, int, error) {
	if len(proto) != len("HTTP/1.1") || !strings.HasPrefix(proto, "HTTP/") || proto[6] != '.' {
		return 0, 0, malformed("invalid proto: %q", proto)
	}
	majC, minC := proto[5], proto[7]
	if !isDigit(majC) || !isDigit(minC) {
		return 0, 0, malformed("invalid proto: %q", proto)
	}
	maj, min := int(majC-'0'), int(minC-'0')
	if maj != 1 {
		return 0, 0, fmt.Errorf("%w: %s", fault.VersionNotSupported, proto)
	}
	return maj, min, nil
}

func parseHeaderLines(lines [][]byte) (http.Header, error) {
	header := make(http.Header, len(lines))
	for _, line := range lines {
		if len(line) == 0 {
			continue
		}
		if line[0] == ' ' || line[0] == '\t' {
			return nil, malformed("obsolete line folding: %q", line)
		}
		colon := bytes.IndexByte(line, ':')
		if colon <= 0 {
			return nil, malformed("malformed header line: %q", line)
		}
		name, val, err := parseField(line, colon)
		if err != nil {
			return nil, err
		}
		header.Add(name, val)
	}
	return header, nil
}

func parseField(line []byte, colon int) (string, string, error) {
	name := string(line[:colon])
	if !httpguts.ValidHeaderFieldName(name) {
		return "", "", malformed("invalid field name: %q", name)
	}
	val := strings.Trim(string(line[colon+1:]), " \t")
	if !httpguts.ValidHeaderFieldValue(val) {
		return "", "", malformed("invalid value for %s", name)
	}
	return textproto.CanonicalMIMEHeaderKey(name), val, nil
}

func parseContentLength(hdr http.Header) (int64, error) {
	values := hdr.Values("Content-Length")
	if len(values) == 0 {
		return 0, nil
	}
	first := values[0]
	for _, v := range values[1:] {
		if v != first {
			return 0, malformed("conflicting Content-Length: %q", values)
		}
	}
	// 1*DIGIT: ParseInt alone would let a sign through.
	if first == "" || strings.IndexFunc(first, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		return 0, malformed("invalid Content-Length: %q", first)
	}
	n, err := strconv.ParseInt(first, 10, 64)
	if err != nil {
		return 0, malformed("invalid Content-Length: %q", first)
	}
	return n, nil
}

func parseRequestURL(target, host string) (*url.URL, error) {
	if target == "*" {
		return &url.URL{Path: "*"}, nil
	}
	if !strings.HasPrefix(target, "/") && host == "" {
		return nil, malformed("missing Host header for target %q", target)
	}
	u, err := url.ParseRequestURI(target)
	if err != nil {
		return nil, malformed("invalid request target: %v", err)
	}
	return u, nil
}

func shouldCloseConnection(req *http.Request, hdr http.Header) bool {
	if hasConnectionToken(hdr, "close") {
		return true
	}
	if req.ProtoMajor == 1 && req.ProtoMinor == 0 {
		return !hasConnectionToken(hdr, "keep-alive")
	}
	return false
}

func hasChunkedEncoding(hdr http.Header) (bool, error) {
	values := hdr.Values("Transfer-Encoding")
	if len(values) == 0 {
		return false, nil
	}
	var encodings []string
	for _, v := range values {
		for _, p := range strings.Split(v, ",") {
			token := strings.TrimSpace(strings.ToLower(p))
			if token != "" {
				encodings = append(encodings, token)
			}
		}
	}
	if len(encodings) == 0 {
		return false, malformed("empty Transfer-Encoding header")
	}
	chunked := false
	for i, enc := range encodings {
		switch enc {
		case "identity":
			continue
		case "chunked":
			if i != len(encodings)-1 {
				return false, malformed("chunked must be the final transfer-encoding")
			}
			chunked = true
		default:
			return false, malformed("transfer-encoding %q not supported", enc)
		}
	}
	return chunked, nil
}

// parseChunkedBody decodes a chunked body starting at start. Decoded data is
// bounded by lim.body, the trailer section by lim.header, and the raw framing
// buffered while waiting for more input by their sum.
func parseChunkedBody(buf []byte, start int, lim limits) ([]byte, int, http.Header, error) {
	needMore := func() ([]byte, int, http.Header, error) {
		if len(buf)-start > lim.body+lim.header {
			return nil, 0, nil, fmt.Errorf("%w: %d bytes of chunked framing", errBodyTooLarge, len(buf)-start)
		}
		return nil, 0, nil, errNeedMoreData
	}

	var body bytes.Buffer
	i := start
	for {
		lineOffset := bytes.Index(buf[i:], crlfBytes)
		if lineOffset == -1 {
			return needMore()
		}
		lineEnd := i + lineOffset
		sizeLine := string(buf[i:lineEnd])
		if semi := strings.IndexByte(sizeLine, ';'); semi >= 0 {
			sizeLine = sizeLine[:semi]
		}
		sizeLine = strings.TrimRight(sizeLine, " \t")
		if sizeLine == "" {
			return nil, 0, nil, malformed("empty chunk size line")
		}
		chunkSize, err := strconv.ParseUint(sizeLine, 16, 31)
		if err != nil {
			return nil, 0, nil, malformed("invalid chunk size: %q", sizeLine)
		}
		if body.Len()+int(chunkSize) > lim.body {
			return nil, 0, nil, fmt.Errorf("%w: chunked body over %d bytes", errBodyTooLarge, lim.body)
		}
		i = lineEnd + len(crlfBytes)

		if chunkSize == 0 {
			trailers, end, err := parseTrailers(buf, i, lim.header)
			if err != nil {
				if errors.Is(err, errNeedMoreData) {
					return needMore()
				}
				return nil, 0, nil, err
			}
			return body.Bytes(), end, trailers, nil
		}

		if len(buf)-i < int(chunkSize)+len(crlfBytes) {
			return needMore()
		}
		body.Write(buf[i : i+int(chunkSize)])
		i += int(chunkSize)
		if !bytes.Equal(buf[i:i+len(crlfBytes)], crlfBytes) {
			return nil, 0, nil, malformed("invalid chunk terminator")
		}
		i += len(crlfBytes)
	}
}

// parseTrailers reads trailer fields after the last chunk up to the empty
// line and returns the offset just past it.
func parseTrailers(buf []byte, i, maxBytes int) (http.Header, int, error) {
	start := i
	var trailers http.Header
	for {
		lineOffset := bytes.Index(buf[i:], crlfBytes)
		if lineOffset == -1 {
			if len(buf)-start > maxBytes+len(crlfBytes) {
				return nil, 0, fmt.Errorf("%w: trailer section over %d bytes", fault.HeaderFieldsTooLarge, maxBytes)
			}
			return nil, 0, errNeedMoreData
		}
		if lineOffset == 0 {
			return trailers, i + len(crlfBytes), nil
		}
		if i+lineOffset-start > maxBytes {
			return nil, 0, fmt.Errorf("%w: trailer section over %d bytes", fault.HeaderFieldsTooLarge, maxBytes)
		}
		line := buf[i : i+lineOffset]
		colon := bytes.IndexByte(line, ':')
		if colon <= 0 {
			return nil, 0, malformed("malformed trailer line: %q", line)
		}
		name, val, err := parseField(line, colon)
		if err != nil {
			return nil, 0, err
		}
		if trailers == nil {
			trailers = http.Header{}
		}
		trailers.Add(name, val)
		i += lineOffset + len(crlfBytes)
	}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// isToken reports whether s is an RFC 9110 token, the grammar shared by
// methods and field names.
func isToken(s string) bool { return httpguts.ValidHeaderFieldName(s) }
