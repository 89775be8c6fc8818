package modem

import (
	"io"
	"sync"
)

// TestTransport is a test helper that simulates a blocking transport using
// channels. The Loop's scanner goroutine continuously reads from the
// transport, so reads must block until data is available, like a real serial
// port would. Writes are recorded so tests can assert the exact command
// bytes the engine produced.
type TestTransport struct {
	mu        sync.Mutex
	readChan  chan []byte
	writeChan chan []byte
	written   [][]byte
	closed    bool
}

// NewTestTransport creates a new test transport for testing.
// Exported for use in tests.
func NewTestTransport() *TestTransport {
	return &TestTransport{
		readChan:  make(chan []byte, 10),
		writeChan: make(chan []byte, 32),
	}
}

func (t *TestTransport) Write(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cp := append([]byte(nil), p...)
	t.written = append(t.written, cp)
	select {
	case t.writeChan <- cp:
	default:
	}
	return len(p), nil
}

func (t *TestTransport) Read(p []byte) (n int, err error) {
	data, ok := <-t.readChan
	if !ok {
		return 0, io.EOF
	}
	return copy(p, data), nil
}

func (t *TestTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.readChan)
	return nil
}

// SendData queues data to be read by the transport.
// This simulates receiving data from the modem.
func (t *TestTransport) SendData(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.readChan <- []byte(data)
	}
}

// WriteCh returns a channel receiving one element per Write call. Tests use
// it to queue a scripted response only after the command went out.
func (t *TestTransport) WriteCh() <-chan []byte {
	return t.writeChan
}

// Writes returns a copy of everything written to the transport, one entry
// per Write call.
func (t *TestTransport) Writes() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.written))
	for i, w := range t.written {
		out[i] = append([]byte(nil), w...)
	}
	return out
}
