package main

import (
	"net"
	"time"
)

// udpSocket is the qnp.Socket implementation backing qnpdemo's real network
// path. It always writes to the one peer address learned at construction
// time (via a connect, or via the first datagram a listener received).
type udpSocket struct {
	conn *net.UDPConn
	peer *net.UDPAddr
}

func (s *udpSocket) SendTo(_ net.Addr, b []byte) error {
	_, err := s.conn.WriteToUDP(b, s.peer)
	return err
}

func (s *udpSocket) SendToDelayed(addr net.Addr, b []byte, delay time.Duration) error {
	time.AfterFunc(delay, func() {
		_ = s.SendTo(addr, b)
	})
	return nil
}

func (s *udpSocket) MaxDatagramSize() int { return 1400 }
