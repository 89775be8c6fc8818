package modem

import (
	"strconv"
	"strings"

	"i4.energy/across/cellgw/at"
)

// EventKind tags an unsolicited notification with its protocol meaning. The
// set is closed: every line the engine understands maps to exactly one kind,
// everything else is EventOther.
type EventKind int

const (
	// EventOther is an unsolicited line the engine has no handler for. The
	// raw text is forwarded so the application can react to vendor extras.
	EventOther EventKind = iota
	// EventSocketClosed reports a peer- or network-initiated socket closure.
	EventSocketClosed
	// EventSocketData reports unread data buffered on a socket.
	EventSocketData
	// EventSocketOpened carries the asynchronous result of a socket open.
	EventSocketOpened
	// EventPDNDeactivated reports a network-initiated PDN context loss.
	EventPDNDeactivated
	// EventDNSResult carries one piece of an asynchronous DNS resolution:
	// either the status line or a resolved address.
	EventDNSResult
	// EventReady reports module boot notifications (RDY, APP RDY).
	EventReady
	// EventPoweredDown reports the module confirming shutdown.
	EventPoweredDown
)

// String returns the event kind name for logs.
func (k EventKind) String() string {
	switch k {
	case EventSocketClosed:
		return "socket-closed"
	case EventSocketData:
		return "socket-data"
	case EventSocketOpened:
		return "socket-opened"
	case EventPDNDeactivated:
		return "pdn-deactivated"
	case EventDNSResult:
		return "dns-result"
	case EventReady:
		return "ready"
	case EventPoweredDown:
		return "powered-down"
	default:
		return "other"
	}
}

// Event is one unsolicited notification, parsed into the closed kind set.
// Fields beyond Kind and Line are populated per kind.
type Event struct {
	Kind EventKind
	// Line is the raw notification text.
	Line string

	// SocketID identifies the connection for the socket kinds.
	SocketID int
	// ContextID identifies the PDN context for EventPDNDeactivated.
	ContextID int
	// Code is the device result code for EventSocketOpened and the status
	// form of EventDNSResult. Zero means success.
	Code int
	// Count is the number of address records announced by a DNS status line.
	Count int
	// Addr is one resolved address for the address form of EventDNSResult.
	Addr string
}

// parseURC maps one unsolicited line to an Event. Lines that carry a known
// prefix but malformed fields degrade to EventOther rather than failing.
func parseURC(line string) Event {
	ev := Event{Kind: EventOther, Line: line}

	switch {
	case line == at.UrcReady, line == at.UrcAppReady:
		ev.Kind = EventReady
		return ev

	case line == at.UrcPoweredDown:
		ev.Kind = EventPoweredDown
		return ev

	case strings.HasPrefix(line, at.UrcGeneric), strings.HasPrefix(line, at.UrcSSL):
		prefix := at.UrcGeneric
		if strings.HasPrefix(line, at.UrcSSL) {
			prefix = at.UrcSSL
		}
		f, err := at.FieldsAfterPrefix(line, prefix)
		if err != nil {
			return ev
		}
		topic, err := f.NextUnquoted()
		if err != nil {
			return ev
		}
		switch topic {
		case "closed":
			id, err := f.NextInt(10, 32)
			if err != nil {
				return ev
			}
			ev.Kind = EventSocketClosed
			ev.SocketID = int(id)
		case "recv":
			id, err := f.NextInt(10, 32)
			if err != nil {
				return ev
			}
			ev.Kind = EventSocketData
			ev.SocketID = int(id)
		case "pdpdeact":
			id, err := f.NextInt(10, 32)
			if err != nil {
				return ev
			}
			ev.Kind = EventPDNDeactivated
			ev.ContextID = int(id)
		case "dnsgip":
			tok, err := f.Next()
			if err != nil {
				return ev
			}
			if strings.HasPrefix(tok, `"`) {
				// Address record: +QIURC: "dnsgip","1.2.3.4"
				ev.Kind = EventDNSResult
				ev.Addr = at.Unquote(tok)
				return ev
			}
			// Status record: +QIURC: "dnsgip",<err>,<count>,<ttl>
			code, err := strconv.ParseInt(tok, 10, 32)
			if err != nil {
				return ev
			}
			count, err := f.NextInt(10, 32)
			if err != nil {
				return ev
			}
			ev.Kind = EventDNSResult
			ev.Code = int(code)
			ev.Count = int(count)
		}
		return ev

	case strings.HasPrefix(line, at.UrcSocketOpen), strings.HasPrefix(line, at.UrcSSLOpen):
		prefix := at.UrcSocketOpen
		if strings.HasPrefix(line, at.UrcSSLOpen) {
			prefix = at.UrcSSLOpen
		}
		f, err := at.FieldsAfterPrefix(line, prefix)
		if err != nil {
			return ev
		}
		id, err := f.NextInt(10, 32)
		if err != nil {
			return ev
		}
		code, err := f.NextInt(10, 32)
		if err != nil {
			return ev
		}
		ev.Kind = EventSocketOpened
		ev.SocketID = int(id)
		ev.Code = int(code)
		return ev
	}

	return ev
}

// routeURC parses an unsolicited line, applies its engine-side effect and
// forwards the event to the application channel. Runs on the Loop goroutine.
func (m *Modem) routeURC(line string) {
	ev := parseURC(line)

	switch ev.Kind {
	case EventSocketClosed:
		m.socketClosed(ev.SocketID)
	case EventSocketData:
		m.socketDataPending(ev.SocketID)
	case EventSocketOpened:
		m.socketOpened(ev.SocketID, ev.Code)
	case EventDNSResult:
		m.dnsNotify(ev)
	case EventPDNDeactivated, EventReady, EventPoweredDown:
		// State is queried on demand; the application decides how to react.
	case EventOther:
		m.logDropped("unmatched notification", line)
	}

	select {
	case m.urcChan <- ev:
	default:
		m.logger.Warn("URC channel full, dropping event",
			"kind", ev.Kind.String(), "line", ev.Line)
	}
}
