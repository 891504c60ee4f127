package quic

import (
	"github.com/sirupsen/logrus"

	"github.com/normanjoyner/quic/transport"
)

// logLevel mirrors the teacher's verbosity levels so cmd/quince's existing
// "-v" flag numbering keeps working; it maps onto a logrus.Level.
type logLevel int

const (
	levelOff logLevel = iota
	levelError
	levelInfo
	levelDebug
	levelTrace
)

func (l logLevel) logrusLevel() logrus.Level {
	switch l {
	case levelError:
		return logrus.ErrorLevel
	case levelInfo:
		return logrus.InfoLevel
	case levelDebug:
		return logrus.DebugLevel
	case levelTrace:
		return logrus.TraceLevel
	default:
		return logrus.PanicLevel // effectively silent: nothing logs at panic
	}
}

// logger is the structured sink a Client or Server logs through; NewClient
// and NewServer each build their own with newLogger. Generalized from the
// teacher's single io.Writer fan-out into a logrus.Logger with fields
// attached per entry, following
// distribution's logging convention in the retrieval pack.
type logger struct {
	log *logrus.Logger
}

func newLogger() *logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return &logger{log: l}
}

func (s *logger) setLevel(level logLevel) {
	s.log.SetLevel(level.logrusLevel())
}

// attachLogger wires a per-connection qlog sink that forwards every
// transport.LogEvent as a logrus entry carrying the connection's address
// and trace id as fields (spec.md §6.3's event stream, surfaced at the
// logging layer rather than dropped at the transport/quic boundary).
func (s *logger) attachLogger(c *remoteConn) {
	if !s.log.IsLevelEnabled(logrus.DebugLevel) {
		return
	}
	tl := &transactionLogger{
		log:    s.log,
		addr:   c.addr.String(),
		scid:   c.scidHex(),
		traceID: c.traceID,
	}
	c.conn.OnLogEvent(tl.logEvent)
}

func (s *logger) detachLogger(c *remoteConn) {
	c.conn.OnLogEvent(nil)
}

// transactionLogger adapts one connection's transport.LogEvent stream into
// logrus.Fields entries, keeping the qlog field names as keys.
type transactionLogger struct {
	log     *logrus.Logger
	addr    string
	scid    string
	traceID string
}

func (s *transactionLogger) logEvent(e transport.LogEvent) {
	fields := make(logrus.Fields, len(e.Fields)+3)
	fields["addr"] = s.addr
	fields["cid"] = s.scid
	fields["trace_id"] = s.traceID
	for _, f := range e.Fields {
		if f.Str != "" {
			fields[f.Key] = f.Str
		} else {
			fields[f.Key] = f.Num
		}
	}
	s.log.WithFields(fields).WithTime(e.Time).Debug(e.Type)
}
