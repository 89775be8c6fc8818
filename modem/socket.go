package modem

import (
	"context"
	"fmt"
	"time"
)

// maxSockets is the number of concurrent connections the module supports
// (connect IDs 0 through 11).
const maxSockets = 12

// SocketState is the lifecycle state of one connection.
type SocketState int

const (
	// SocketConnecting means the open command was accepted and the
	// asynchronous open result is pending.
	SocketConnecting SocketState = iota
	// SocketConnected means the open result reported success.
	SocketConnected
	// SocketDisconnected means the connection was closed, locally or by the
	// peer or network.
	SocketDisconnected
)

func (s SocketState) String() string {
	switch s {
	case SocketConnecting:
		return "connecting"
	case SocketConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Socket is one TCP, UDP or TLS connection multiplexed over the module's
// packet service. Sockets are created with Connect or ConnectTLS and must be
// closed by the caller; a peer-initiated closure only marks the socket
// disconnected until Close releases its ID.
type Socket struct {
	m  *Modem
	id int

	// ssl selects the TLS command family (+QSSL*) for all operations.
	ssl bool

	// openCh carries the asynchronous open result code from the Loop to the
	// goroutine blocked in Connect. Buffered so the Loop never blocks.
	openCh chan int

	// state and pending are guarded by m.mu.
	state   SocketState
	pending bool
}

// ID returns the module-side connect ID.
func (s *Socket) ID() int {
	return s.id
}

// State returns the current connection state.
func (s *Socket) State() SocketState {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	return s.state
}

// DataPending reports whether the module announced buffered unread data
// since the last Receive.
func (s *Socket) DataPending() bool {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	return s.pending
}

// Connect opens a TCP or UDP connection to host:port over the given PDN
// context. The open command resolves immediately; the connection result
// arrives asynchronously and Connect blocks for it up to the configured
// connect timeout.
func (m *Modem) Connect(ctx context.Context, contextID int, proto, host string, port int) (*Socket, error) {
	if proto != "TCP" && proto != "UDP" {
		return nil, fmt.Errorf("%w: protocol %q", ErrBadParameter, proto)
	}
	if host == "" || port < 1 || port > 65535 {
		return nil, fmt.Errorf("%w: address %q:%d", ErrBadParameter, host, port)
	}

	sock, err := m.registerSocket(false)
	if err != nil {
		return nil, err
	}

	open := fmt.Sprintf(`AT+QIOPEN=%d,%d,"%s","%s",%d,0,0`,
		contextID, sock.id, proto, host, port)
	if _, err := m.Exchange(ctx, Command{Text: open, Shape: ShapeNone}); err != nil {
		m.unregisterSocket(sock.id)
		return nil, fmt.Errorf("open socket: %w", err)
	}

	return m.awaitOpen(ctx, sock)
}

// ConnectTLS opens a TLS connection to host:port using the given SSL context
// (configured beforehand with ConfigureTLS). The connection result arrives
// asynchronously like a plain socket open.
func (m *Modem) ConnectTLS(ctx context.Context, contextID, sslContextID int, host string, port int) (*Socket, error) {
	if host == "" || port < 1 || port > 65535 {
		return nil, fmt.Errorf("%w: address %q:%d", ErrBadParameter, host, port)
	}

	sock, err := m.registerSocket(true)
	if err != nil {
		return nil, err
	}

	open := fmt.Sprintf(`AT+QSSLOPEN=%d,%d,%d,"%s",%d,0`,
		contextID, sslContextID, sock.id, host, port)
	if _, err := m.Exchange(ctx, Command{Text: open, Shape: ShapeNone}); err != nil {
		m.unregisterSocket(sock.id)
		return nil, fmt.Errorf("open TLS socket: %w", err)
	}

	return m.awaitOpen(ctx, sock)
}

// registerSocket allocates the lowest free connect ID and records the socket
// in the connecting state.
func (m *Modem) registerSocket(ssl bool) (*Socket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id := 0; id < maxSockets; id++ {
		if _, used := m.sockets[id]; used {
			continue
		}
		s := &Socket{
			m:      m,
			id:     id,
			ssl:    ssl,
			openCh: make(chan int, 1),
			state:  SocketConnecting,
		}
		m.sockets[id] = s
		return s, nil
	}
	return nil, fmt.Errorf("%w: all %d connect IDs in use", ErrBadParameter, maxSockets)
}

func (m *Modem) unregisterSocket(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sockets, id)
}

// awaitOpen blocks for the asynchronous open result of a just-registered
// socket. On failure or timeout the socket is released.
func (m *Modem) awaitOpen(ctx context.Context, sock *Socket) (*Socket, error) {
	timer := time.NewTimer(m.config.ConnectTimeout)
	defer timer.Stop()

	select {
	case code := <-sock.openCh:
		if code != 0 {
			m.unregisterSocket(sock.id)
			return nil, fmt.Errorf("%w: open result %d", ErrDeviceFailure, code)
		}
		m.mu.Lock()
		sock.state = SocketConnected
		m.mu.Unlock()
		return sock, nil

	case <-timer.C:
		m.abortOpen(sock)
		return nil, fmt.Errorf("socket open: %w", ErrTimeout)

	case <-ctx.Done():
		m.abortOpen(sock)
		return nil, ctx.Err()
	}
}

// abortOpen tells the module to abandon an open whose result never arrived
// and then releases the socket. The close is best effort; the connect ID is
// held until it resolves so it cannot be reallocated mid-close.
func (m *Modem) abortOpen(sock *Socket) {
	closeCtx, cancel := context.WithTimeout(context.Background(), m.config.ATTimeout)
	defer cancel()
	if err := m.expectOK(closeCtx, sock.closeCommand()); err != nil {
		m.logger.Warn("abandoned socket close failed", "socket", sock.id, "error", err)
	}
	m.unregisterSocket(sock.id)
}

func (s *Socket) closeCommand() string {
	if s.ssl {
		return fmt.Sprintf("AT+QSSLCLOSE=%d", s.id)
	}
	return fmt.Sprintf("AT+QICLOSE=%d", s.id)
}

// sendOn runs the send dialog as a single exchange: the length announcement
// elicits the data-entry prompt, the Loop writes the payload, and the module
// confirms with SEND OK.
func (m *Modem) sendOn(ctx context.Context, s *Socket, data []byte) error {
	if len(data) == 0 || len(data) > m.config.MaxPayload {
		return fmt.Errorf("%w: payload of %d bytes", ErrBadParameter, len(data))
	}
	if s.State() != SocketConnected {
		return ErrNotConnected
	}

	announce := fmt.Sprintf("AT+QISEND=%d,%d", s.id, len(data))
	if s.ssl {
		announce = fmt.Sprintf("AT+QSSLSEND=%d,%d", s.id, len(data))
	}
	_, err := m.Exchange(ctx, Command{
		Text:    announce,
		Shape:   ShapePrompt,
		Payload: data,
		Success: []string{"SEND OK"},
	})
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

// Send transmits data on the socket. The length announcement, the prompt
// and the payload run as one exchange and the call resolves at SEND OK.
func (s *Socket) Send(ctx context.Context, data []byte) error {
	return s.m.sendOn(ctx, s, data)
}

// Receive reads up to len(buf) bytes of buffered data from the socket into
// buf and returns the byte count. A return of 0 with a nil error means no
// data was buffered. If the module returns more bytes than buf holds, the
// excess is consumed and discarded and ErrDataTruncated is returned together
// with the bytes that fit.
func (s *Socket) Receive(ctx context.Context, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, fmt.Errorf("%w: empty receive buffer", ErrBadParameter)
	}

	s.m.mu.Lock()
	state := s.state
	s.pending = false
	s.m.mu.Unlock()
	if state != SocketConnected {
		return 0, ErrNotConnected
	}

	read := fmt.Sprintf("AT+QIRD=%d,%d", s.id, len(buf))
	prefix := "+QIRD:"
	if s.ssl {
		read = fmt.Sprintf("AT+QSSLRECV=%d,%d", s.id, len(buf))
		prefix = "+QSSLRECV:"
	}

	resp, err := s.m.Exchange(ctx, Command{
		Text:   read,
		Shape:  ShapeData,
		Prefix: prefix,
		Sink:   buf,
	})
	if err != nil {
		return 0, fmt.Errorf("read socket: %w", err)
	}
	if resp.Truncated {
		return resp.Received, ErrDataTruncated
	}
	return resp.Received, nil
}

// Close tells the module to close the connection and releases the socket's
// connect ID. The ID stays allocated until the close exchange resolves, so a
// concurrent open cannot be handed the same ID while the close is in flight.
// The local record is then removed unconditionally: a device-side close
// failure is logged, not surfaced, since the ID is gone either way.
func (s *Socket) Close(ctx context.Context) error {
	s.m.mu.Lock()
	s.state = SocketDisconnected
	s.m.mu.Unlock()

	_, err := s.m.Exchange(ctx, Command{
		Text:    s.closeCommand(),
		Shape:   ShapeNone,
		Timeout: 10 * time.Second,
	})
	s.m.unregisterSocket(s.id)
	if err != nil {
		s.m.logger.Warn("socket close failed on device", "socket", s.id, "error", err)
	}
	return nil
}

// socketClosed marks a socket disconnected after a peer or network closure.
// Runs on the Loop goroutine.
func (m *Modem) socketClosed(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sockets[id]; ok {
		s.state = SocketDisconnected
	}
}

// socketDataPending records a buffered-data announcement. Runs on the Loop
// goroutine.
func (m *Modem) socketDataPending(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sockets[id]; ok {
		s.pending = true
	}
}

// socketOpened delivers an asynchronous open result to the waiting Connect
// call. Runs on the Loop goroutine.
func (m *Modem) socketOpened(id, code int) {
	m.mu.Lock()
	s := m.sockets[id]
	m.mu.Unlock()

	if s == nil {
		m.logDropped("open result for unknown socket", fmt.Sprintf("id=%d code=%d", id, code))
		return
	}
	select {
	case s.openCh <- code:
	default:
	}
}
