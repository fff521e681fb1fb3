package device

import (
	"github.com/robotalks/neurolink/pkg/l0/comm"
)

type fakeBackend struct {
	active  bool
	opened  bool
	inbound []byte
	sent    [][]byte
}

func (b *fakeBackend) Kind() comm.Kind { return comm.KindWireless }

func (b *fakeBackend) Open() error {
	b.opened = true
	return nil
}

func (b *fakeBackend) Close() error {
	b.opened = false
	return nil
}

func (b *fakeBackend) IsLinkActive() bool { return b.opened && b.active }

func (b *fakeBackend) Send(p []byte) error {
	if !b.IsLinkActive() {
		return comm.ErrNotConnected
	}
	b.sent = append(b.sent, append([]byte(nil), p...))
	return nil
}

func (b *fakeBackend) TryReceive(p []byte) (int, error) {
	n := copy(p, b.inbound)
	b.inbound = b.inbound[n:]
	return n, nil
}
