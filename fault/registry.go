package fault

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/multierr"
)

const (
	crlf                = "\r\n"
	headerBodySeparator = "\r\n\r\n"
	connectionClose     = "Connection: close\r\n"
)

// Keyed so every entry is bound to its constant; a kind beyond Count will
// not compile.
var rendered = [Count + 1]string{
	VersionNotSupported:  "HTTP/1.1 505 HTTP Version Not Supported\r\nConnection: close\r\n\r\n",
	HeaderFieldsTooLarge: "HTTP/1.1 431 Request Header Fields Too Large\r\nConnection: close\r\n\r\n",
	MalformedRequest:     "HTTP/1.1 400 Bad Request\r\nConnection: close\r\n\r\n",
}

var responses = func() (out [Count + 1][]byte) {
	for k := Kind(1); int(k) <= Count; k++ {
		// cap == len so an append by a caller never writes into the table.
		b := []byte(rendered[k])
		out[k] = b[:len(b):len(b)]
	}
	return out
}()

// Response returns the terminal response for k. The slice is shared by
// every caller and must not be modified. The connection layer writes it in
// full and then closes the transport.
//
// Response panics if k is not a valid Kind: an invalid value means the
// classification step is broken, and no fallback response is sent.
func Response(k Kind) []byte {
	if !k.Valid() {
		panic("fault: no response for " + k.String())
	}
	return responses[k]
}

// Verify checks that every kind has a well-formed entry matching its
// status. The server runs it before accepting connections.
func Verify() error {
	var err error
	for k := Kind(1); int(k) <= Count; k++ {
		err = multierr.Append(err, verifyEntry(k, responses[k]))
	}
	return err
}

func verifyEntry(k Kind, b []byte) error {
	if len(b) == 0 {
		return fmt.Errorf("fault: %s has no response", k)
	}
	status := k.Status()
	line := "HTTP/1.1 " + strconv.Itoa(status) + " " + http.StatusText(status) + crlf
	if !bytes.HasPrefix(b, []byte(line)) {
		return fmt.Errorf("fault: %s response must start with %q", k, line)
	}
	if !bytes.Contains(b, []byte(connectionClose)) {
		return fmt.Errorf("fault: %s response lacks %q", k, connectionClose)
	}
	end := bytes.Index(b, []byte(headerBodySeparator))
	if end < 0 || end+len(headerBodySeparator) != len(b) {
		return fmt.Errorf("fault: %s response must end at the header terminator", k)
	}
	return nil
}
