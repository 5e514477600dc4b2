package relay

import (
	"context"
	"log/slog"
	"net"
	"sync"
)

// connection is one accepted socket client with its own line buffer.
type connection struct {
	id     string
	remote string
	conn   net.Conn
	framer *LineFramer
	logger *slog.Logger

	closeOnce sync.Once
}

func newConnection(id string, conn net.Conn, maxLineBytes int, logger *slog.Logger) *connection {
	return &connection{
		id:     id,
		remote: conn.RemoteAddr().String(),
		conn:   conn,
		framer: NewLineFramer(maxLineBytes),
		logger: logger,
	}
}

// serve reads lines until the peer goes away, the relay stops or the
// connection misbehaves, answering each line on the same connection.
func (c *connection) serve(ctx context.Context, d *Dispatcher, obs Observer) {
	defer c.close()
	c.logger.Debug("connection accepted")

	buf := make([]byte, 4096)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			lines, ferr := c.framer.Feed(buf[:n])
			for _, line := range lines {
				res, derr := d.Interpret(ctx, line)
				if derr != nil {
					c.logger.Debug("connection abandoned by dispatcher", "err", derr)
					return
				}
				if werr := WriteLine(c.conn, res.Message); werr != nil {
					if !IsExpectedCloseError(werr) {
						c.logger.Warn("write failed, dropping connection", "err", werr)
					}
					return
				}
				observe(ctx, obs, Event{Channel: c.id, Remote: c.remote, Line: line, Result: res})
			}
			if ferr != nil {
				c.logger.Warn("dropping connection", "err", ferr)
				return
			}
		}
		if err != nil {
			if IsExpectedCloseError(err) {
				c.logger.Debug("connection closed")
			} else {
				c.logger.Warn("read failed, dropping connection", "err", err)
			}
			return
		}
	}
}

func (c *connection) close() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
}
