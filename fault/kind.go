// Package fault classifies HTTP/1.1 parser violations and maps each one to
// the exact bytes of the terminal response sent before the connection is
// closed.
package fault

import (
	"errors"
	"net/http"
	"strconv"
)

// Kind identifies a parser-level protocol violation. Identities are stable
// across releases and dense from 1; zero is never a valid Kind.
type Kind uint8

const (
	// VersionNotSupported: the declared HTTP version is not handled.
	VersionNotSupported Kind = iota + 1
	// HeaderFieldsTooLarge: the header section exceeds the configured limit.
	HeaderFieldsTooLarge
	// MalformedRequest: the request line or a header violates required syntax.
	MalformedRequest
)

// Count is the number of kinds. New kinds are appended as Count+1.
const Count = int(MalformedRequest)

var kindNames = [Count + 1]string{
	VersionNotSupported:  "VersionNotSupported",
	HeaderFieldsTooLarge: "HeaderFieldsTooLarge",
	MalformedRequest:     "MalformedRequest",
}

var kindStatus = [Count + 1]int{
	VersionNotSupported:  http.StatusHTTPVersionNotSupported,
	HeaderFieldsTooLarge: http.StatusRequestHeaderFieldsTooLarge,
	MalformedRequest:     http.StatusBadRequest,
}

// All returns every kind in identity order.
func All() []Kind {
	out := make([]Kind, 0, Count)
	for k := Kind(1); int(k) <= Count; k++ {
		out = append(out, k)
	}
	return out
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool { return k > 0 && int(k) <= Count }

func (k Kind) String() string {
	if !k.Valid() {
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
	return kindNames[k]
}

// Status returns the HTTP status code carried by k's response, or 0 for an
// invalid kind.
func (k Kind) Status() int {
	if !k.Valid() {
		return 0
	}
	return kindStatus[k]
}

func (k Kind) Error() string {
	if !k.Valid() {
		return "fault: invalid kind " + strconv.Itoa(int(k))
	}
	return http.StatusText(kindStatus[k])
}

// Classify returns the Kind wrapped somewhere in err's chain.
func Classify(err error) (Kind, bool) {
	var k Kind
	if errors.As(err, &k) && k.Valid() {
		return k, true
	}
	return 0, false
}
