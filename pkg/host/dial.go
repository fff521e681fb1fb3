package host

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"

	"golang.org/x/net/websocket"

	"github.com/robotalks/neurolink/pkg/l0/comm/ble"
	"github.com/robotalks/neurolink/pkg/l0/comm/serial"
)

// Dial connects to a device. Targets:
//
//	serial:///dev/ttyACM0?baud=115200
//	tcp://localhost:7070
//	ws://localhost:7070/link
//	ble://FEAGI-microbit?adapter=hci0
func Dial(ctx context.Context, target string) (*Client, error) {
	conn, err := dialConn(ctx, target)
	if err != nil {
		return nil, err
	}
	return NewClient(conn), nil
}

func dialConn(ctx context.Context, target string) (io.ReadWriteCloser, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "serial":
		baud := serial.DefaultBaudRate
		if val := u.Query().Get("baud"); val != "" {
			if baud, err = strconv.Atoi(val); err != nil {
				return nil, fmt.Errorf("invalid baud %q: %w", val, err)
			}
		}
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		return openSerial(path, baud)
	case "tcp":
		var d net.Dialer
		return d.DialContext(ctx, "tcp", u.Host)
	case "ws":
		ws, err := websocket.Dial(target, "", "http://"+u.Host+"/")
		if err != nil {
			return nil, err
		}
		ws.PayloadType = websocket.BinaryFrame
		return ws, nil
	case "ble":
		name := u.Host
		if name == "" {
			name = ble.DefaultName
		}
		return dialBLE(ctx, name, u.Query().Get("adapter"))
	}
	return nil, fmt.Errorf("unsupported target %q", target)
}
