package qnp

import (
	"net"

	"github.com/sirupsen/logrus"
)

// connLogger wraps a *logrus.Entry scoped to one connection's remote
// address, caching a per-connection *logrus.Entry with WithField rather
// than re-deriving fields on every call site.
type connLogger struct {
	entry *logrus.Entry
}

func newConnLogger(remote net.Addr) connLogger {
	var addr string
	if remote != nil {
		addr = remote.String()
	}
	return connLogger{entry: logrus.WithField("remote", addr)}
}

func (l connLogger) debugDropped(reason error, extra logrus.Fields) {
	fields := logrus.Fields{"reason": reason}
	for k, v := range extra {
		fields[k] = v
	}
	l.entry.WithFields(fields).Debug("connection_packet_dropped")
}

func (l connLogger) infoState(from, to State) {
	l.entry.WithFields(logrus.Fields{"from": from.String(), "to": to.String()}).Info("connection_state")
}

func (l connLogger) debugPacket(kind string, seq uint32) {
	l.entry.WithFields(logrus.Fields{"kind": kind, "seq": seq}).Debug("connection_packet")
}

func (l connLogger) debugNotify(seq uint32, delivered bool) {
	l.entry.WithFields(logrus.Fields{"seq": seq, "delivered": delivered}).Debug("connection_packet_notify")
}
