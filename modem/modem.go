// Package modem implements a command/response exchange engine for cellular
// modules driven over an AT command transport: solicited exchanges with
// declarative command descriptors, raw payload framing, unsolicited
// notification routing, and the domain operations built on top (sockets,
// PDN contexts, DNS, SIM, signal quality, power saving).
package modem

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"i4.energy/across/cellgw/at"
)

// Modem drives one cellular module over a byte-stream transport. All
// transport I/O flows through a single event loop, so line arrival order is
// preserved and a solicited response can never interleave with another.
type Modem struct {
	// transport provides the physical connection to the module (serial,
	// TCP, test double).
	transport Transport
	// config contains the modem configuration settings
	config Config
	// logger receives engine diagnostics; never nil after New.
	logger *slog.Logger
	// closed indicates if the modem has been shut down
	closed bool
	// loopRunning indicates if the Loop is currently running
	loopRunning bool

	// urcChan carries unsolicited events to the application.
	urcChan chan Event
	// commands queues exchange requests for the Loop to process. Unbuffered:
	// the Loop accepts a request only while no exchange is outstanding,
	// which enforces the one-exchange-in-flight invariant.
	commands chan *exchangeRequest

	// loopCtx controls the lifecycle of the main event loop
	loopCtx    context.Context
	loopCancel context.CancelFunc

	// scanner is the line scanner over the transport, shared between the
	// init-phase execDirect calls and the Loop so bytes buffered during
	// initialization are not lost when the Loop takes over.
	scanner *bufio.Scanner

	// mu guards the socket table and the pending DNS slot.
	mu      sync.Mutex
	sockets map[int]*Socket

	// dnsMu serializes hostname resolutions; the module tracks only one.
	dnsMu      sync.Mutex
	dnsPending *dnsPending
}

// exchange is the Loop-side bookkeeping of the in-flight request.
type exchange struct {
	req  *exchangeRequest
	resp *Response
	// awaitingData means the next token is the raw payload announced by a
	// data-prefix line.
	awaitingData bool
	// promptSeen means the data-entry prompt arrived and the payload was
	// written.
	promptSeen bool
}

// PollConfig defines configuration for polling operations like waiting for
// SIM readiness.
type PollConfig struct {
	// Interval is the time between polling attempts
	Interval time.Duration
	// Timeout is the maximum time to wait for the condition
	Timeout time.Duration
	// MaxRetries is the maximum number of polling attempts
	MaxRetries int
}

// New creates a new Modem instance with the given configuration.
// It establishes the transport connection, runs the initialization sequence
// (probe, echo off, verbose errors, SIM readiness) and prepares the event
// loop context.
//
// Returns an error if the transport connection or module initialization
// fails.
func New(ctx context.Context, config Config) (*Modem, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	config.setDefaults()

	transport, err := config.Dialer.Dial(ctx)
	if err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	m := &Modem{
		transport: transport,
		config:    config,
		logger:    logger,
		urcChan:   make(chan Event, 100), // Buffered to prevent blocking on URCs
		commands:  make(chan *exchangeRequest),
		sockets:   make(map[int]*Socket),
	}

	if m.transport == nil {
		return nil, ErrNotInitialized
	}

	splitter := at.NewSplitter(nil, config.MaxPayload)
	m.scanner = bufio.NewScanner(m.transport)
	m.scanner.Buffer(make([]byte, 4096), config.MaxPayload+at.MaxPrefixLookahead)
	m.scanner.Split(splitter.Split)

	// Prepare context for Loop (but don't start it yet)
	m.loopCtx, m.loopCancel = context.WithCancel(ctx)

	initCtx := ctx
	if config.InitTimeout > 0 {
		var cancel context.CancelFunc
		initCtx, cancel = context.WithTimeout(ctx, config.InitTimeout)
		defer cancel()
	}

	if err := m.init(initCtx); err != nil {
		transport.Close()
		return nil, fmt.Errorf("initialize modem: %w", err)
	}

	return m, nil
}

// Loop is the main event loop that handles all transport I/O operations.
// It must be called exactly once after New() and before any exchange-based
// operation. The Loop:
//
// 1. Accepts exchange requests submitted through Exchange()
// 2. Writes command text (or raw payloads) to the transport
// 3. Classifies incoming tokens and assembles the in-flight response
// 4. Routes unsolicited lines to the event switch and the URC channel
// 5. Resolves each exchange with a result, error, or timeout
//
// The Loop runs until the provided context is cancelled or the transport
// reports EOF. It is the ONLY goroutine that reads from the transport.
func (m *Modem) Loop(ctx context.Context) error {
	if m.loopRunning {
		return ErrLoopRunning
	}
	m.loopRunning = true
	defer func() {
		m.loopRunning = false
	}()

	// The scanner built in New carries over from the init sequence, so any
	// bytes read behind the last init final (a boot notification, a partial
	// line) stay in frame.
	scanner := m.scanner

	// Channels for tokens and errors from the scanner goroutine
	tokens := make(chan string, 10)
	scanErrs := make(chan error, 1)

	go func() {
		defer close(tokens)
		for scanner.Scan() {
			token := scanner.Text()
			if token == "" {
				continue
			}
			select {
			case tokens <- token:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			select {
			case scanErrs <- err:
			case <-ctx.Done():
			}
		}
	}()

	var cur *exchange

	// The exchange timeout timer starts disarmed.
	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	disarm := func() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
	}
	defer disarm()

	for {
		// Accept a new exchange only while none is outstanding.
		cmdCh := m.commands
		if cur != nil {
			cmdCh = nil
		}

		select {
		case <-ctx.Done():
			if cur != nil {
				cur.req.respChan <- exchangeResult{err: ctx.Err()}
			}
			return ctx.Err()

		case req := <-cmdCh:
			wire := []byte(strings.TrimSpace(req.cmd.Text) + "\r")
			if _, err := m.transport.Write(wire); err != nil {
				req.respChan <- exchangeResult{err: fmt.Errorf("write command: %w", err)}
				continue
			}
			cur = &exchange{req: req, resp: &Response{}}
			d := req.cmd.Timeout
			if d == 0 {
				d = m.config.ATTimeout
			}
			timer.Reset(d)

		case <-timer.C:
			if cur != nil {
				// Partially assembled response is discarded; the transport
				// stays in place for the next exchange.
				cur.req.respChan <- exchangeResult{err: ErrTimeout}
				cur = nil
			}

		case token, ok := <-tokens:
			if !ok {
				// Token channel closed - scanner stopped
				if cur != nil {
					cur.req.respChan <- exchangeResult{err: io.EOF}
					cur = nil
				}
				return io.EOF
			}
			prev := cur
			cur = m.handleToken(cur, token)
			if prev != nil && cur == nil {
				disarm()
			}

		case err := <-scanErrs:
			if cur != nil {
				cur.req.respChan <- exchangeResult{err: fmt.Errorf("read error: %w", err)}
				cur = nil
			}
			return fmt.Errorf("scanner error: %w", err)
		}
	}
}

// handleToken advances the in-flight exchange with one classified token and
// returns the exchange still outstanding, or nil once it resolved. Tokens
// not claimed by the exchange are routed as unsolicited.
func (m *Modem) handleToken(cur *exchange, token string) *exchange {
	if cur != nil && cur.awaitingData {
		// The declared-length raw payload. Write at most the sink capacity;
		// the excess was consumed from the transport and is discarded here.
		n := copy(cur.req.cmd.Sink, token)
		cur.resp.Received = n
		cur.resp.Truncated = cur.resp.DataLen > len(cur.req.cmd.Sink)
		if len(cur.resp.Lines) > 0 {
			cur.resp.Lines[len(cur.resp.Lines)-1].Data = cur.req.cmd.Sink[:n:n]
		}
		cur.awaitingData = false
		return cur
	}

	switch at.Classify(token) {
	case at.TypeEcho:
		return cur

	case at.TypePrompt:
		if cur != nil && cur.req.cmd.Shape == ShapePrompt && !cur.promptSeen {
			cur.promptSeen = true
			if _, err := m.transport.Write(cur.req.cmd.Payload); err != nil {
				cur.req.respChan <- exchangeResult{err: fmt.Errorf("write payload: %w", err)}
				return nil
			}
			return cur
		}
		m.logDropped("unexpected prompt", token)
		return cur

	case at.TypeDataPrefix:
		if cur != nil && cur.req.cmd.Shape == ShapeData && cur.req.cmd.claims(token) {
			n, err := at.DeclaredLength(token)
			if err != nil {
				cur.req.respChan <- exchangeResult{err: fmt.Errorf("%w: %v", ErrProtocolMismatch, err)}
				return nil
			}
			cur.resp.Lines = append(cur.resp.Lines, Line{Text: token})
			cur.resp.DataLen = n
			cur.awaitingData = n > 0
			return cur
		}
		m.routeURC(token)
		return cur

	case at.TypeFinal:
		if cur == nil {
			m.logDropped("orphaned final", token)
			return nil
		}
		cur.resp.Final = token
		switch {
		case at.IsFailure(token):
			cur.req.respChan <- exchangeResult{resp: cur.resp, err: deviceError(token)}
		case !cur.req.cmd.succeededBy(token):
			cur.req.respChan <- exchangeResult{resp: cur.resp, err: fmt.Errorf("%w: unexpected final %q", ErrProtocolMismatch, token)}
		case cur.req.cmd.Shape == ShapePrefix && len(cur.resp.Lines) == 0:
			cur.req.respChan <- exchangeResult{resp: cur.resp, err: fmt.Errorf("%w: expected %q line", ErrProtocolMismatch, cur.req.cmd.Prefix)}
		case cur.req.cmd.Shape == ShapePrompt && !cur.promptSeen:
			cur.req.respChan <- exchangeResult{resp: cur.resp, err: fmt.Errorf("%w: success with no data prompt", ErrProtocolMismatch)}
		default:
			cur.req.respChan <- exchangeResult{resp: cur.resp}
		}
		return nil

	case at.TypeURC:
		// Some lines are both solicited and unsolicited (+CEREG: answers
		// AT+CEREG? and reports registration changes). An in-flight command
		// expecting that exact prefix takes precedence.
		if cur != nil && cur.req.cmd.Prefix != "" && cur.req.cmd.claims(token) {
			cur.resp.Lines = append(cur.resp.Lines, Line{Text: token})
			return cur
		}
		m.routeURC(token)
		return cur

	default: // at.TypePlain
		if cur != nil && cur.req.cmd.claims(token) {
			cur.resp.Lines = append(cur.resp.Lines, Line{Text: token})
			return cur
		}
		m.routeURC(token)
		return cur
	}
}

// claims reports whether an in-flight command accepts line as part of its
// response.
func (c Command) claims(line string) bool {
	switch c.Shape {
	case ShapePrefix, ShapeMultiline:
		return c.Prefix == "" || strings.HasPrefix(line, c.Prefix)
	case ShapeData, ShapePrompt, ShapeNone:
		return c.Prefix != "" && strings.HasPrefix(line, c.Prefix)
	default:
		return false
	}
}

// URC returns a read-only channel of unsolicited events: socket closures,
// incoming-data alerts, PDN deactivations, DNS results and unrecognized
// lines. The channel is buffered but events may be dropped if not consumed
// fast enough.
func (m *Modem) URC() <-chan Event {
	return m.urcChan
}

// Close shuts down the modem and releases all resources.
// It stops the event loop, closes the transport connection, and marks
// the modem as closed. After calling Close(), the modem cannot be reused.
func (m *Modem) Close() error {
	if m.closed {
		return ErrAlreadyClosed
	}
	m.closed = true

	if m.loopCancel != nil {
		m.loopCancel()
	}

	if m.transport != nil {
		return m.transport.Close()
	}
	return nil
}

// Exchange submits one command descriptor and blocks until the exchange
// resolves with a response, a device-reported failure, a shape mismatch, or
// a timeout. The Loop must be running. This is the single suspension point
// exposed to callers; exchanges are strictly serialized.
func (m *Modem) Exchange(ctx context.Context, cmd Command) (*Response, error) {
	if m.closed {
		return nil, ErrAlreadyClosed
	}
	if m.transport == nil {
		return nil, ErrNotInitialized
	}

	req := &exchangeRequest{
		cmd:      cmd,
		respChan: make(chan exchangeResult, 1), // Buffered to prevent blocking the Loop
	}

	select {
	case m.commands <- req:
	case <-ctx.Done():
		return nil, fmt.Errorf("command cancelled before sending: %w", ctx.Err())
	}

	select {
	case res := <-req.respChan:
		return res.resp, res.err
	case <-ctx.Done():
		return nil, fmt.Errorf("command abandoned: %w", ctx.Err())
	}
}

// expectOK submits a no-result command and verifies it resolved with a
// success token.
func (m *Modem) expectOK(ctx context.Context, text string) error {
	_, err := m.Exchange(ctx, Command{Text: text, Shape: ShapeNone})
	return err
}

// init performs the initial setup sequence for the module hardware.
// This method is called during New() and must complete successfully
// before the modem can be used.
func (m *Modem) init(ctx context.Context) error {
	// 1. Wake-up / sanity check
	if err := m.expectOkDirect(ctx, "AT"); err != nil {
		return fmt.Errorf("modem not responding: %w", err)
	}

	if err := m.expectOkDirect(ctx, "ATE0"); err != nil {
		return fmt.Errorf("could not disable echo: %w", err)
	}

	if err := m.expectOkDirect(ctx, "AT+CMEE=2"); err != nil {
		return fmt.Errorf("could not enable verbose errors: %w", err)
	}

	// 4. Check SIM status
	simStatus, err := m.execDirect(ctx, "AT+CPIN?")
	if err != nil {
		return fmt.Errorf("query SIM status: %w", err)
	}

	switch {
	case strings.Contains(simStatus, "READY"):
		// OK

	case strings.Contains(simStatus, "SIM PIN"):
		if m.config.SimPIN == "" {
			return ErrSIMPinRequired
		}
		if err := m.expectOkDirect(ctx, fmt.Sprintf(`AT+CPIN="%s"`, m.config.SimPIN)); err != nil {
			return fmt.Errorf("enter SIM PIN: %w", err)
		}

		// Wait until SIM becomes ready
		if err := m.waitForSIMReady(ctx, PollConfig{}); err != nil {
			return err
		}

	default:
		return fmt.Errorf("unsupported SIM state: %q", simStatus)
	}

	return nil
}

// execDirect executes an AT command directly on the transport without the
// Loop, reading until a final result code. It is used during initialization
// only, before the Loop owns the transport.
func (m *Modem) execDirect(ctx context.Context, cmd string) (string, error) {
	if m.closed {
		return "", ErrAlreadyClosed
	}
	if m.transport == nil {
		return "", ErrNotInitialized
	}

	if _, ok := ctx.Deadline(); !ok && m.config.ATTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.ATTimeout)
		defer cancel()
	}

	wire := strings.TrimSpace(cmd) + "\r"
	if _, err := m.transport.Write([]byte(wire)); err != nil {
		return "", fmt.Errorf("write command %q: %w", cmd, err)
	}

	// The shared scanner keeps bytes buffered between init steps and hands
	// them over to the Loop afterwards.
	scanner := m.scanner

	var lines []string

	for {
		select {
		case <-ctx.Done():
			return strings.Join(lines, "\n"), ctx.Err()
		default:
		}
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return strings.Join(lines, "\n"), fmt.Errorf("read error: %w", err)
			}
			return strings.Join(lines, "\n"), io.EOF
		}

		token := scanner.Text()
		if token == "" {
			continue
		}

		switch at.Classify(token) {
		case at.TypeFinal:
			lines = append(lines, token)
			response := strings.Join(lines, "\n")
			if at.IsFailure(token) {
				return response, deviceError(token)
			}
			return response, nil

		case at.TypePlain:
			lines = append(lines, token)

		case at.TypeURC, at.TypeEcho:
			// Ignore during direct execution
			continue

		case at.TypePrompt:
			lines = append(lines, token)
			return strings.Join(lines, "\n"), nil
		}
	}
}

// expectOkDirect executes an AT command during initialization and validates
// that it resolved with a success token.
func (m *Modem) expectOkDirect(ctx context.Context, cmd string) error {
	resp, err := m.execDirect(ctx, cmd)
	if err != nil {
		return err
	}
	if !strings.Contains(resp, at.OK) {
		return fmt.Errorf("unexpected response: %q", resp)
	}
	return nil
}

// waitForSIMReady polls the SIM card status until it reports ready state.
// This is necessary after entering a SIM PIN, as the SIM card needs time
// to authenticate and become operational.
func (m *Modem) waitForSIMReady(ctx context.Context, config PollConfig) error {
	var (
		pollInterval = config.Interval
		timeout      = config.Timeout
		maxRetries   = config.MaxRetries
	)

	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxRetries <= 0 {
		maxRetries = int(timeout / pollInterval)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	retries := 0

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("SIM not ready: %w", ctx.Err())
		case <-ticker.C:
			retries++
			if retries > maxRetries {
				return fmt.Errorf("SIM not ready after %d retries", maxRetries)
			}
			resp, err := m.execDirect(ctx, "AT+CPIN?")
			if err != nil {
				if errors.Is(err, ErrAlreadyClosed) || errors.Is(err, ErrNotInitialized) {
					return fmt.Errorf("SIM status check failed: %w", err)
				}
				continue
			}
			if strings.Contains(resp, "READY") {
				return nil
			}
		}
	}
}

func (m *Modem) logDropped(reason, line string) {
	m.logger.Debug("line dropped", "reason", reason, "line", line)
}
