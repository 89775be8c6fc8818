package modem

import (
	"context"
	"fmt"
	"time"
)

// dnsPending accumulates the unsolicited records of one in-flight
// resolution: first a status record announcing the address count, then that
// many address records. Guarded by Modem.mu.
type dnsPending struct {
	// expect is the number of address records still outstanding. Zero until
	// the status record arrives.
	expect int
	addrs  []string
	// ch carries the finished result to the blocked Resolve call. Buffered
	// so the Loop never blocks on delivery.
	ch chan dnsResult
}

type dnsResult struct {
	addrs []string
	err   error
}

// Resolve looks up host through the module's DNS client on the given PDN
// context and returns the resolved addresses. The command itself resolves
// immediately; the records arrive asynchronously. Lookups are serialized
// because the module tracks only one at a time; the slot is released even
// when the result never arrives.
func (m *Modem) Resolve(ctx context.Context, contextID int, host string) ([]string, error) {
	if host == "" {
		return nil, fmt.Errorf("%w: empty hostname", ErrBadParameter)
	}
	if contextID < minContextID || contextID > maxContextID {
		return nil, fmt.Errorf("%w: context ID %d", ErrBadParameter, contextID)
	}

	m.dnsMu.Lock()
	defer m.dnsMu.Unlock()

	pending := &dnsPending{ch: make(chan dnsResult, 1)}
	m.mu.Lock()
	m.dnsPending = pending
	m.mu.Unlock()

	clear := func() {
		m.mu.Lock()
		if m.dnsPending == pending {
			m.dnsPending = nil
		}
		m.mu.Unlock()
	}

	cmd := fmt.Sprintf(`AT+QIDNSGIP=%d,"%s"`, contextID, host)
	if err := m.expectOK(ctx, cmd); err != nil {
		clear()
		return nil, fmt.Errorf("resolve %q: %w", host, err)
	}

	timer := time.NewTimer(m.config.DNSTimeout)
	defer timer.Stop()

	select {
	case res := <-pending.ch:
		if res.err != nil {
			return nil, fmt.Errorf("resolve %q: %w", host, res.err)
		}
		return res.addrs, nil

	case <-timer.C:
		clear()
		return nil, fmt.Errorf("resolve %q: %w", host, ErrTimeout)

	case <-ctx.Done():
		clear()
		return nil, ctx.Err()
	}
}

// dnsNotify folds one unsolicited DNS record into the pending resolution.
// A non-zero status code fails the lookup immediately; a status announcing
// zero addresses is treated as a failure as well. Runs on the Loop
// goroutine.
func (m *Modem) dnsNotify(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.dnsPending
	if p == nil {
		m.logDropped("DNS record with no lookup pending", ev.Line)
		return
	}

	if ev.Addr != "" {
		// Address records are only valid after the status record announced
		// how many to expect.
		if p.expect <= 0 {
			m.logDropped("DNS address before status record", ev.Line)
			return
		}
		p.addrs = append(p.addrs, ev.Addr)
		p.expect--
		if p.expect == 0 {
			p.ch <- dnsResult{addrs: p.addrs}
			m.dnsPending = nil
		}
		return
	}

	switch {
	case ev.Code != 0:
		p.ch <- dnsResult{err: fmt.Errorf("%w: DNS error %d", ErrDeviceFailure, ev.Code)}
		m.dnsPending = nil
	case ev.Count <= 0:
		p.ch <- dnsResult{err: fmt.Errorf("%w: host has no addresses", ErrDeviceFailure)}
		m.dnsPending = nil
	default:
		p.expect = ev.Count
	}
}
