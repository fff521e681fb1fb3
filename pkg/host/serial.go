package host

import (
	"fmt"
	"io"

	"github.com/golang/glog"
	goserial "go.bug.st/serial"
)

// openSerial opens the port and asserts DTR, which the device sees as
// host presence.
func openSerial(path string, baud int) (io.ReadWriteCloser, error) {
	port, err := goserial.Open(path, &goserial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   goserial.NoParity,
		StopBits: goserial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := port.SetDTR(true); err != nil {
		port.Close()
		return nil, fmt.Errorf("assert DTR on %s: %w", path, err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		glog.Warningf("%s: reset input: %v", path, err)
	}
	return port, nil
}
