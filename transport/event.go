package transport

// EventType enumerates the kinds of Event a Conn surfaces to its
// embedder between Write/Read calls (spec.md §6.3 "Events channel").
type EventType uint8

const (
	// EventStream indicates a stream has new readable data, newly became
	// writable, or finished; the embedder calls Conn.Stream(id) to act on
	// it.
	EventStream EventType = iota
	// EventStreamReset indicates the peer reset the stream's send side.
	EventStreamReset
	// EventStreamStop indicates the peer asked us to stop sending
	// (STOP_SENDING).
	EventStreamStop
	// EventStreamComplete indicates both directions of the stream have
	// fully closed and it has been garbage-collected.
	EventStreamComplete
)

// Event is one occurrence surfaced via Conn.Events() (spec.md §6.3).
type Event struct {
	Type      EventType
	StreamID  uint64
	ErrorCode uint64
}

func newEventStream(id uint64) Event {
	return Event{Type: EventStream, StreamID: id}
}

func newStreamResetEvent(id uint64, code uint64) Event {
	return Event{Type: EventStreamReset, StreamID: id, ErrorCode: code}
}

func newStreamStopEvent(id uint64, code uint64) Event {
	return Event{Type: EventStreamStop, StreamID: id, ErrorCode: code}
}

func newStreamCompleteEvent(id uint64) Event {
	return Event{Type: EventStreamComplete, StreamID: id}
}
