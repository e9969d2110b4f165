package shutdown

import (
	"net"

	"go.uber.org/zap"
)

type gatedListener struct {
	net.Listener
	c *Coordinator
}

// GateListener wraps ln so connections arriving after the coordinator has
// left Running are closed immediately instead of being served.
func (c *Coordinator) GateListener(ln net.Listener) net.Listener {
	return &gatedListener{Listener: ln, c: c}
}

func (l *gatedListener) Accept() (net.Conn, error) {
	for {
		conn, err := l.Listener.Accept()
		if err != nil {
			return nil, err
		}
		if l.c.Accepting() {
			return conn, nil
		}
		l.c.logger.Debug("Rejected connection during shutdown",
			zap.String("remote_addr", conn.RemoteAddr().String()),
			zap.String("state", l.c.State().String()))
		_ = conn.Close()
	}
}
