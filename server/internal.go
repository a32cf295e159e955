package server

import "errors"

const (
	crlf                = "\r\n"
	headerBodySeparator = "\r\n\r\n"
)

var (
	errNeedMoreData = errors.New("incomplete http request")
	// errBodyTooLarge is not a parser fault: there is no canned response
	// for it, so the connection is closed without one.
	errBodyTooLarge = errors.New("request body too large")
)
