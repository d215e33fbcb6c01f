// Command qnpdemo drives a qnp.Connection over a real UDP socket so the
// package is runnable end to end without a test harness standing in for
// the network. It is a demonstration client, not a production server: one
// process handles exactly one peer.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"qnp"
	"qnp/handshake"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "listen":
		err = runListen(os.Args[2:])
	case "dial":
		err = runDial(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		logrus.Fatal(err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: qnpdemo <listen|dial> [flags]")
	fmt.Fprintln(os.Stderr, "  qnpdemo listen <addr> [-config path.yaml] [-verbose]")
	fmt.Fprintln(os.Stderr, "  qnpdemo dial <addr> [-config path.yaml] [-payloads a,b,c] [-verbose]")
}

func runListen(args []string) error {
	fs := flag.NewFlagSet("listen", flag.ExitOnError)
	configPath := fs.String("config", "", "path to a YAML tuning file")
	verbose := fs.Bool("verbose", false, "enable debug logging")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: qnpdemo listen <addr> [-config path.yaml] [-verbose]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return fmt.Errorf("qnpdemo: missing address")
	}
	setupLogging(*verbose)

	laddr, err := net.ResolveUDPAddr("udp", fs.Arg(0))
	if err != nil {
		return fmt.Errorf("qnpdemo: resolve %q: %w", fs.Arg(0), err)
	}
	udpConn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return fmt.Errorf("qnpdemo: listen: %w", err)
	}
	defer udpConn.Close()

	tuning, err := loadTuningConfig(*configPath)
	if err != nil {
		return err
	}

	logrus.WithField("addr", udpConn.LocalAddr()).Info("qnpdemo listening")

	buf := make([]byte, 2048)
	n, peer, err := readFirstDatagram(udpConn, buf)
	if err != nil {
		return fmt.Errorf("qnpdemo: waiting for peer: %w", err)
	}

	sock := &udpSocket{conn: udpConn, peer: peer}
	hs, err := handshake.NewResponder()
	if err != nil {
		return fmt.Errorf("qnpdemo: %w", err)
	}
	c := qnp.NewConnection(peer, sock, hs, nil, nil, qnp.Callbacks{OnEvent: logEvent})
	if err := tuning.apply(c); err != nil {
		return err
	}

	c.ReceiveDatagram(buf[:n], time.Now())
	return runLoop(udpConn, c, nil)
}

func runDial(args []string) error {
	fs := flag.NewFlagSet("dial", flag.ExitOnError)
	configPath := fs.String("config", "", "path to a YAML tuning file")
	payloads := fs.String("payloads", "", "comma-separated list of strings to send once connected")
	verbose := fs.Bool("verbose", false, "enable debug logging")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: qnpdemo dial <addr> [-config path.yaml] [-payloads a,b,c] [-verbose]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return fmt.Errorf("qnpdemo: missing address")
	}
	setupLogging(*verbose)

	raddr, err := net.ResolveUDPAddr("udp", fs.Arg(0))
	if err != nil {
		return fmt.Errorf("qnpdemo: resolve %q: %w", fs.Arg(0), err)
	}
	udpConn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return fmt.Errorf("qnpdemo: open socket: %w", err)
	}
	defer udpConn.Close()

	tuning, err := loadTuningConfig(*configPath)
	if err != nil {
		return err
	}

	sock := &udpSocket{conn: udpConn, peer: raddr}
	hs, err := handshake.NewInitiator()
	if err != nil {
		return fmt.Errorf("qnpdemo: %w", err)
	}
	c := qnp.NewConnection(raddr, sock, hs, nil, nil, qnp.Callbacks{OnEvent: logEvent})
	if err := tuning.apply(c); err != nil {
		return err
	}

	logrus.WithField("remote", raddr).Info("qnpdemo dialing")

	var pending []string
	if *payloads != "" {
		pending = strings.Split(*payloads, ",")
	}
	return runLoop(udpConn, c, pending)
}

// runLoop ticks the connection and feeds it inbound datagrams until it
// reaches a terminal state or the process is interrupted. Every payload in
// pending is sent once the connection first reaches StateConnected.
func runLoop(udpConn *net.UDPConn, c *qnp.Connection, pending []string) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	buf := make([]byte, 2048)
	sent := false

	for {
		select {
		case <-sigCh:
			c.Disconnect(nil)
			return nil
		default:
		}

		if c.State().Terminal() {
			return nil
		}

		if !sent && c.State() == qnp.StateConnected {
			for _, p := range pending {
				if _, err := c.SendDataPacket([]byte(p), nil); err != nil {
					logrus.WithError(err).Warn("qnpdemo: send payload")
				}
			}
			sent = true
		}

		udpConn.SetReadDeadline(time.Now().Add(20 * time.Millisecond))
		n, _, err := udpConn.ReadFromUDP(buf)
		now := time.Now()
		if err == nil {
			c.ReceiveDatagram(buf[:n], now)
		} else if ne, ok := err.(net.Error); !ok || !ne.Timeout() {
			return fmt.Errorf("qnpdemo: read: %w", err)
		}

		c.Tick(now)
	}
}

func readFirstDatagram(udpConn *net.UDPConn, buf []byte) (int, *net.UDPAddr, error) {
	n, peer, err := udpConn.ReadFromUDP(buf)
	if err != nil {
		return 0, nil, err
	}
	return n, peer, nil
}

func logEvent(e qnp.Event) {
	switch e.Kind {
	case qnp.EventConnectionEstablished:
		logrus.Info("qnpdemo: connected")
	case qnp.EventConnectionDisconnected:
		logrus.Info("qnpdemo: disconnected")
	case qnp.EventConnectionTimedOut:
		logrus.Warn("qnpdemo: timed out")
	case qnp.EventConnectionPacket:
		p := e.Payload.(qnp.EventPacket)
		logrus.WithFields(logrus.Fields{"seq": p.Sequence, "payload": string(p.Payload)}).Info("qnpdemo: received packet")
	case qnp.EventConnectionPacketNotify:
		n := e.Payload.(qnp.EventPacketNotify)
		logrus.WithFields(logrus.Fields{"seq": n.Sequence, "delivered": n.Delivered}).Info("qnpdemo: packet notify")
	}
}

func setupLogging(verbose bool) {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}
}
