package quic

import "github.com/normanjoyner/quic/transport"

// Handler is the application callback a Client or Server drives once per
// poll-loop iteration per connection with new events (spec.md §6.3's
// event stream, surfaced at the socket-owning layer). EventConnAccept,
// EventConnHandshakeDone and EventConnClose are synthesized by this
// package; every other event comes straight from transport.Conn.Events().
type Handler interface {
	Serve(c Conn, events []transport.Event)
}

// HandlerFunc adapts a function to a Handler, mirroring the standard
// library's http.HandlerFunc idiom.
type HandlerFunc func(c Conn, events []transport.Event)

func (f HandlerFunc) Serve(c Conn, events []transport.Event) {
	f(c, events)
}
