package server

// connContext accumulates inbound bytes for one connection until a full
// request can be parsed.
type connContext struct {
	buf []byte
	// served counts requests answered on this connection.
	served int
}

func (c *connContext) append(p []byte) {
	c.buf = append(c.buf, p...)
}

func (c *connContext) discard(n int) {
	switch {
	case n >= len(c.buf):
		c.buf = c.buf[:0]
	case n > 0:
		copy(c.buf, c.buf[n:])
		c.buf = c.buf[:len(c.buf)-n]
	}
}

func (c *connContext) reset() {
	c.buf = nil
	c.served = 0
}
