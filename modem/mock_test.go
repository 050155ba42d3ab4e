package modem_test

import (
	gomock "go.uber.org/mock/gomock"
	"i4.energy/across/cellular/modem"
)

// MockSequenceBuilder scripts a request/response exchange on a mock
// transport, one expectation pair per AT command.
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

// Exchange expects cmd on the wire and replies with resp on the next read.
func (b *MockSequenceBuilder) Exchange(cmd, resp string) *MockSequenceBuilder {
	b.calls = append(b.calls,
		b.transport.EXPECT().Write([]byte(cmd)).Return(len(cmd), nil),
		b.transport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
			copy(p, resp)
			return len(resp), nil
		}),
	)
	return b
}

func (b *MockSequenceBuilder) AT() *MockSequenceBuilder {
	return b.Exchange("AT\r", "AT\r\r\nOK\r\n")
}

func (b *MockSequenceBuilder) FactoryDefaults() *MockSequenceBuilder {
	return b.Exchange("AT&F\r", "\r\nOK\r\n")
}

func (b *MockSequenceBuilder) Reset() *MockSequenceBuilder {
	return b.Exchange("ATZ\r", "\r\nOK\r\n")
}

func (b *MockSequenceBuilder) EchoOff() *MockSequenceBuilder {
	return b.Exchange("ATE0\r", "ATE0\r\r\nOK\r\n")
}

func (b *MockSequenceBuilder) NumericErrors() *MockSequenceBuilder {
	return b.Exchange("AT+CMEE=1\r", "\r\nOK\r\n")
}

func (b *MockSequenceBuilder) FlowControlOff() *MockSequenceBuilder {
	return b.Exchange("AT+IFC=0,0\r", "\r\nOK\r\n")
}

func (b *MockSequenceBuilder) Manufacturer() *MockSequenceBuilder {
	return b.Exchange("AT+CGMI\r", "\r\nSIMCOM_Ltd\r\n\r\nOK\r\n")
}

func (b *MockSequenceBuilder) Model(model string) *MockSequenceBuilder {
	return b.Exchange("AT+CGMM\r", "\r\n"+model+"\r\n\r\nOK\r\n")
}

func (b *MockSequenceBuilder) Build() []any {
	return b.calls
}

// initMockCalls is the full successful setup exchange for a SIM800.
func initMockCalls(transport *modem.MockTransport) []any {
	return NewMockSequence(transport).
		AT().
		FactoryDefaults().
		Reset().
		EchoOff().
		NumericErrors().
		FlowControlOff().
		Manufacturer().
		Model("SIM800").
		Build()
}

// concatCalls joins expectation slices, same as slices.Concat.
func concatCalls(slices ...[]any) []any {
	var out []any
	for _, s := range slices {
		out = append(out, s...)
	}
	return out
}
