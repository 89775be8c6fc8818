package modem_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"i4.energy/across/cellgw/modem"
)

// connectSocket establishes a connected TCP socket on connect ID 0.
func connectSocket(t *testing.T, m *modem.Modem, tt *modem.TestTransport) *modem.Socket {
	t.Helper()
	script(t, tt, "", "OK\r\n+QIOPEN: 0,0\r\n")

	sock, err := m.Connect(context.Background(), 1, "TCP", "example.com", 8883)
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	// Drain the open event so later assertions see a clean URC channel.
	select {
	case <-m.URC():
	case <-time.After(time.Second):
		t.Fatal("expected open event on URC channel")
	}
	return sock
}

func TestSocketConnect(t *testing.T) {
	t.Run("Success on asynchronous open result", func(t *testing.T) {
		m, tt := newTestModem(t)
		script(t, tt, "AT+QIOPEN=1,0,\"TCP\",\"example.com\",8883,0,0\r", "OK\r\n+QIOPEN: 0,0\r\n")

		sock, err := m.Connect(context.Background(), 1, "TCP", "example.com", 8883)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if sock.ID() != 0 {
			t.Errorf("expected connect ID 0, got %d", sock.ID())
		}
		if sock.State() != modem.SocketConnected {
			t.Errorf("expected connected state, got %v", sock.State())
		}
	})

	t.Run("Device failure in open result", func(t *testing.T) {
		m, tt := newTestModem(t)
		script(t, tt, "", "OK\r\n+QIOPEN: 0,561\r\n")

		_, err := m.Connect(context.Background(), 1, "TCP", "example.com", 8883)
		if !errors.Is(err, modem.ErrDeviceFailure) {
			t.Errorf("expected ErrDeviceFailure, got: %v", err)
		}
	})

	t.Run("Timeout releases the connect ID", func(t *testing.T) {
		m, tt := newTestModem(t)

		go func() {
			// Accept the open but never deliver the result, then accept the
			// cleanup close.
			select {
			case <-tt.WriteCh():
				tt.SendData("OK\r\n")
			case <-time.After(2 * time.Second):
				t.Error("open was never written")
				return
			}
			select {
			case w := <-tt.WriteCh():
				if string(w) != "AT+QICLOSE=0\r" {
					t.Errorf("unexpected cleanup command: %q", w)
				}
				tt.SendData("OK\r\n")
			case <-time.After(3 * time.Second):
				t.Error("cleanup close was never written")
			}
		}()

		_, err := m.Connect(context.Background(), 1, "TCP", "example.com", 8883)
		if !errors.Is(err, modem.ErrTimeout) {
			t.Fatalf("expected ErrTimeout, got: %v", err)
		}

		// The ID must be reusable after the failed attempt.
		script(t, tt, "", "OK\r\n+QIOPEN: 0,0\r\n")
		sock, err := m.Connect(context.Background(), 1, "TCP", "example.com", 8883)
		if err != nil {
			t.Fatalf("reconnect failed: %v", err)
		}
		if sock.ID() != 0 {
			t.Errorf("expected connect ID 0 to be reused, got %d", sock.ID())
		}
	})

	t.Run("Rejects bad parameters without touching the wire", func(t *testing.T) {
		m, _ := newTestModem(t)

		cases := []struct {
			name  string
			proto string
			host  string
			port  int
		}{
			{"unknown protocol", "SCTP", "example.com", 80},
			{"empty host", "TCP", "", 80},
			{"port zero", "TCP", "example.com", 0},
			{"port too large", "TCP", "example.com", 70000},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				_, err := m.Connect(context.Background(), 1, tc.proto, tc.host, tc.port)
				if !errors.Is(err, modem.ErrBadParameter) {
					t.Errorf("expected ErrBadParameter, got: %v", err)
				}
			})
		}
	})
}

func TestSocketSend(t *testing.T) {
	t.Run("Prompt then SEND OK", func(t *testing.T) {
		m, tt := newTestModem(t)
		sock := connectSocket(t, m, tt)

		go func() {
			select {
			case w := <-tt.WriteCh():
				if string(w) != "AT+QISEND=0,5\r" {
					t.Errorf("unexpected announcement: %q", w)
				}
				tt.SendData("> ")
			case <-time.After(2 * time.Second):
				t.Error("announcement was never written")
				return
			}
			select {
			case w := <-tt.WriteCh():
				if string(w) != "hello" {
					t.Errorf("unexpected payload: %q", w)
				}
				tt.SendData("SEND OK\r\n")
			case <-time.After(2 * time.Second):
				t.Error("payload was never written")
			}
		}()

		if err := sock.Send(context.Background(), []byte("hello")); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("SEND FAIL maps to ErrDeviceFailure", func(t *testing.T) {
		m, tt := newTestModem(t)
		sock := connectSocket(t, m, tt)

		go func() {
			select {
			case <-tt.WriteCh():
				tt.SendData("> ")
			case <-time.After(2 * time.Second):
				return
			}
			select {
			case <-tt.WriteCh():
				tt.SendData("SEND FAIL\r\n")
			case <-time.After(2 * time.Second):
			}
		}()

		err := sock.Send(context.Background(), []byte("hello"))
		if !errors.Is(err, modem.ErrDeviceFailure) {
			t.Errorf("expected ErrDeviceFailure, got: %v", err)
		}
	})

	t.Run("ErrNotConnected after peer closure", func(t *testing.T) {
		m, tt := newTestModem(t)
		sock := connectSocket(t, m, tt)

		tt.SendData("+QIURC: \"closed\",0\r\n")
		select {
		case ev := <-m.URC():
			if ev.Kind != modem.EventSocketClosed {
				t.Fatalf("unexpected event: %+v", ev)
			}
		case <-time.After(time.Second):
			t.Fatal("expected closure event")
		}

		err := sock.Send(context.Background(), []byte("hello"))
		if !errors.Is(err, modem.ErrNotConnected) {
			t.Errorf("expected ErrNotConnected, got: %v", err)
		}
	})

	t.Run("Rejects empty payload", func(t *testing.T) {
		m, tt := newTestModem(t)
		sock := connectSocket(t, m, tt)

		err := sock.Send(context.Background(), nil)
		if !errors.Is(err, modem.ErrBadParameter) {
			t.Errorf("expected ErrBadParameter, got: %v", err)
		}
	})
}

func TestSocketReceive(t *testing.T) {
	t.Run("Reads buffered data", func(t *testing.T) {
		m, tt := newTestModem(t)
		sock := connectSocket(t, m, tt)

		tt.SendData("+QIURC: \"recv\",0\r\n")
		select {
		case <-m.URC():
		case <-time.After(time.Second):
			t.Fatal("expected data event")
		}
		if !sock.DataPending() {
			t.Error("expected data pending after recv notification")
		}

		script(t, tt, "AT+QIRD=0,16\r", "+QIRD: 4\r\nabcd\r\nOK\r\n")
		buf := make([]byte, 16)
		n, err := sock.Receive(context.Background(), buf)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != 4 || string(buf[:n]) != "abcd" {
			t.Errorf("unexpected data: n=%d buf=%q", n, buf[:n])
		}
		if sock.DataPending() {
			t.Error("data pending flag should clear on receive")
		}
	})

	t.Run("Truncates oversized payload to buffer capacity", func(t *testing.T) {
		m, tt := newTestModem(t)
		sock := connectSocket(t, m, tt)

		script(t, tt, "AT+QIRD=0,4\r", "+QIRD: 8\r\nabcdefgh\r\nOK\r\n")
		buf := make([]byte, 4)
		n, err := sock.Receive(context.Background(), buf)
		if !errors.Is(err, modem.ErrDataTruncated) {
			t.Fatalf("expected ErrDataTruncated, got: %v", err)
		}
		if n != 4 || string(buf) != "abcd" {
			t.Errorf("unexpected data: n=%d buf=%q", n, buf)
		}

		// The excess must be gone from the stream: a following exchange
		// resolves cleanly.
		script(t, tt, "AT+QIACT=1\r", "OK\r\n")
		if _, err := m.Exchange(context.Background(), modem.Command{Text: "AT+QIACT=1"}); err != nil {
			t.Errorf("stream desynchronized after truncation: %v", err)
		}
	})

	t.Run("Zero-length read means no data", func(t *testing.T) {
		m, tt := newTestModem(t)
		sock := connectSocket(t, m, tt)

		script(t, tt, "AT+QIRD=0,16\r", "+QIRD: 0\r\nOK\r\n")
		n, err := sock.Receive(context.Background(), make([]byte, 16))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != 0 {
			t.Errorf("expected 0 bytes, got %d", n)
		}
	})
}

func TestSocketClose(t *testing.T) {
	t.Run("Releases the ID even when the device errors", func(t *testing.T) {
		m, tt := newTestModem(t)
		sock := connectSocket(t, m, tt)

		script(t, tt, "AT+QICLOSE=0\r", "+CME ERROR: operation not allowed\r\n")
		if err := sock.Close(context.Background()); err != nil {
			t.Errorf("close must not surface device errors, got: %v", err)
		}
		if sock.State() != modem.SocketDisconnected {
			t.Errorf("expected disconnected state, got %v", sock.State())
		}

		// The ID must be free for the next connection.
		script(t, tt, "", "OK\r\n+QIOPEN: 0,0\r\n")
		next, err := m.Connect(context.Background(), 1, "TCP", "example.com", 8883)
		if err != nil {
			t.Fatalf("reconnect failed: %v", err)
		}
		if next.ID() != 0 {
			t.Errorf("expected connect ID 0 to be reused, got %d", next.ID())
		}
	})

	t.Run("Holds the ID while the close is in flight", func(t *testing.T) {
		m, tt := newTestModem(t)
		sock := connectSocket(t, m, tt)

		closeDone := make(chan error, 1)
		go func() { closeDone <- sock.Close(context.Background()) }()

		select {
		case w := <-tt.WriteCh():
			if string(w) != "AT+QICLOSE=0\r" {
				t.Fatalf("unexpected command: %q", w)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("close was never written")
		}

		// A connect submitted while the close has not resolved must be
		// allocated a fresh ID.
		next := make(chan *modem.Socket, 1)
		go func() {
			s, err := m.Connect(context.Background(), 1, "TCP", "example.com", 8883)
			if err != nil {
				t.Errorf("reconnect failed: %v", err)
			}
			next <- s
		}()

		// Let the connect allocate its ID before the close resolves.
		time.Sleep(50 * time.Millisecond)
		tt.SendData("OK\r\n")
		if err := <-closeDone; err != nil {
			t.Errorf("unexpected close error: %v", err)
		}

		select {
		case w := <-tt.WriteCh():
			want := "AT+QIOPEN=1,1,\"TCP\",\"example.com\",8883,0,0\r"
			if string(w) != want {
				t.Errorf("unexpected open command: got %q, want %q", w, want)
			}
			tt.SendData("OK\r\n+QIOPEN: 1,0\r\n")
		case <-time.After(2 * time.Second):
			t.Fatal("open was never written")
		}

		if s := <-next; s != nil && s.ID() != 1 {
			t.Errorf("expected fresh connect ID 1, got %d", s.ID())
		}
	})
}
