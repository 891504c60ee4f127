package quic

import (
	"bytes"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/normanjoyner/quic/transport"
)

func TestLogLevelMapsToLogrusLevel(t *testing.T) {
	cases := []struct {
		level logLevel
		want  logrus.Level
	}{
		{levelOff, logrus.PanicLevel},
		{levelError, logrus.ErrorLevel},
		{levelInfo, logrus.InfoLevel},
		{levelDebug, logrus.DebugLevel},
		{levelTrace, logrus.TraceLevel},
	}
	for _, c := range cases {
		if got := c.level.logrusLevel(); got != c.want {
			t.Errorf("logLevel(%d).logrusLevel() = %v, want %v", c.level, got, c.want)
		}
	}
}

func TestNewLoggerStartsSilent(t *testing.T) {
	l := newLogger()
	if l.log.GetLevel() != logrus.PanicLevel {
		t.Fatalf("newLogger() level = %v, want PanicLevel", l.log.GetLevel())
	}
}

func TestTransactionLoggerLogEventIncludesConnFields(t *testing.T) {
	var buf bytes.Buffer
	log := logrus.New()
	log.SetLevel(logrus.DebugLevel)
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	log.SetOutput(&buf)

	tl := &transactionLogger{log: log, addr: "127.0.0.1:4433", scid: "deadbeef", traceID: "abc123"}
	e := transport.LogEvent{Time: time.Now(), Type: "packet_sent"}
	e.Fields = append(e.Fields, transport.LogField{Key: "size", Num: 42})
	tl.logEvent(e)

	out := buf.String()
	for _, want := range []string{"addr=\"127.0.0.1:4433\"", "cid=deadbeef", "trace_id=abc123", "size=42"} {
		if !bytes.Contains([]byte(out), []byte(want)) {
			t.Errorf("log output %q missing %q", out, want)
		}
	}
}

func TestAttachLoggerSkippedBelowDebugLevel(t *testing.T) {
	l := newLogger()
	l.setLevel(levelInfo)
	// attachLogger must return before touching rc.conn when the logger
	// isn't at debug level; rc.conn is nil here, so a dereference would
	// panic the test if the early-return check were removed.
	rc := &remoteConn{}
	l.attachLogger(rc)
}
