package modem_test

import (
	gomock "go.uber.org/mock/gomock"
	"i4.energy/across/cellgw/modem"
)

// MockSequenceBuilder scripts the initialization dialog on a MockTransport,
// one expectation pair (command write, response read) per step.
type MockSequenceBuilder struct {
	transport *modem.MockTransport
	calls     []any
}

func NewMockSequence(transport *modem.MockTransport) *MockSequenceBuilder {
	return &MockSequenceBuilder{
		transport: transport,
		calls:     []any{},
	}
}

func (b *MockSequenceBuilder) step(cmd, response string) *MockSequenceBuilder {
	b.calls = append(b.calls,
		b.transport.EXPECT().Write([]byte(cmd)).Return(len(cmd), nil),
		b.transport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
			copy(p, response)
			return len(response), nil
		}),
	)
	return b
}

func (b *MockSequenceBuilder) AT() *MockSequenceBuilder {
	return b.step("AT\r", "AT\r\nOK\r\n")
}

func (b *MockSequenceBuilder) EchoOff() *MockSequenceBuilder {
	return b.step("ATE0\r", "ATE0\r\nOK\r\n")
}

func (b *MockSequenceBuilder) VerboseErrors() *MockSequenceBuilder {
	return b.step("AT+CMEE=2\r", "OK\r\n")
}

func (b *MockSequenceBuilder) SimReady() *MockSequenceBuilder {
	return b.step("AT+CPIN?\r", "+CPIN: READY\r\nOK\r\n")
}

func (b *MockSequenceBuilder) SimPinRequired() *MockSequenceBuilder {
	return b.step("AT+CPIN?\r", "+CPIN: SIM PIN\r\nOK\r\n")
}

func (b *MockSequenceBuilder) EnterPin(pin string) *MockSequenceBuilder {
	return b.step(`AT+CPIN="`+pin+`"`+"\r", "OK\r\n")
}

// FullInit scripts the complete successful initialization dialog.
func (b *MockSequenceBuilder) FullInit() *MockSequenceBuilder {
	return b.AT().EchoOff().VerboseErrors().SimReady()
}

func (b *MockSequenceBuilder) Build() []any {
	return b.calls
}

// initMockCalls scripts the default successful initialization dialog.
func initMockCalls(transport *modem.MockTransport) []any {
	return NewMockSequence(transport).FullInit().Build()
}
