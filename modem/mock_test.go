package modem_test

import (
	gomock "go.uber.org/mock/gomock"
	"i4.energy/across/lorae5/modem"
)

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

// Exchange expects cmd and its newline terminator to be written, then
// answers the next read with resp.
func (b *MockSequenceBuilder) Exchange(cmd, resp string) *MockSequenceBuilder {
	b.calls = append(b.calls,
		b.transport.EXPECT().Write([]byte(cmd)).Return(len(cmd), nil),
		b.transport.EXPECT().Write([]byte("\n")).Return(1, nil),
		b.transport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
			return copy(p, resp), nil
		}),
	)
	return b
}

func (b *MockSequenceBuilder) AT() *MockSequenceBuilder {
	return b.Exchange("AT", "+AT: OK\r\n")
}

func (b *MockSequenceBuilder) ModeOTAA() *MockSequenceBuilder {
	return b.Exchange("AT+MODE=LWOTAA", "+MODE: LWOTAA\r\n")
}

func (b *MockSequenceBuilder) RegionUS915() *MockSequenceBuilder {
	return b.Exchange("AT+DR=US915", "+DR: US915\r\n")
}

func (b *MockSequenceBuilder) Port(port string) *MockSequenceBuilder {
	return b.Exchange("AT+PORT="+port, "+PORT: "+port+"\r\n")
}

func (b *MockSequenceBuilder) Build() []any {
	return b.calls
}
