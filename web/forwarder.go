package web

import (
	"fmt"
	"net"
)

// UDPForwarder sends submissions to the relay as single datagrams. The
// socket is opened once and held for the process lifetime.
type UDPForwarder struct {
	conn net.Conn
}

func NewUDPForwarder(addr string) (*UDPForwarder, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial udp %s: %w", addr, err)
	}
	return &UDPForwarder{conn: conn}, nil
}

// Forward writes one datagram. A lost datagram is an accepted loss.
func (f *UDPForwarder) Forward(payload []byte) error {
	_, err := f.conn.Write(payload)
	return err
}

func (f *UDPForwarder) Close() error {
	return f.conn.Close()
}
