package transport_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/hidlink-protocol/hidlink-go/pkg/hid"
	"github.com/hidlink-protocol/hidlink-go/pkg/transport"
)

var (
	testAdapter    = hid.DeviceAddress{0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA}
	testPeripheral = hid.DeviceAddress{0xBB, 0xBB, 0xBB, 0xBB, 0xBB, 0xBB}
)

// acceptResult carries one invocation of the accept callback.
type acceptResult struct {
	conn transport.Conn
	err  error
}

func startTestListener(t *testing.T, kind hid.ChannelKind) (*transport.Listener, chan acceptResult) {
	t.Helper()

	results := make(chan acceptResult, 4)
	listener, err := transport.NewListener(transport.ListenerConfig{
		Address:      "127.0.0.1:0",
		Kind:         kind,
		LocalAddr:    testAdapter,
		HelloTimeout: 500 * time.Millisecond,
		OnConnection: func(conn transport.Conn, err error) {
			results <- acceptResult{conn: conn, err: err}
		},
	})
	if err != nil {
		t.Fatalf("NewListener: %v", err)
	}

	if err := listener.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = listener.Stop() })

	return listener, results
}

func waitAccept(t *testing.T, results chan acceptResult) acceptResult {
	t.Helper()
	select {
	case r := <-results:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for accept callback")
		return acceptResult{}
	}
}

func TestListenerAcceptsIdentifiedConnection(t *testing.T) {
	listener, results := startTestListener(t, hid.ChannelInterrupt)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, err := transport.Dial(ctx, listener.Addr().String(), hid.ChannelInterrupt, testPeripheral)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	r := waitAccept(t, results)
	if r.err != nil {
		t.Fatalf("accept callback error: %v", r.err)
	}
	if r.conn == nil {
		t.Fatal("accept callback got nil conn")
	}
	defer r.conn.Close()

	if r.conn.SourceAddr() != testAdapter {
		t.Errorf("SourceAddr = %v, want %v", r.conn.SourceAddr(), testAdapter)
	}
	if r.conn.DestAddr() != testPeripheral {
		t.Errorf("DestAddr = %v, want %v", r.conn.DestAddr(), testPeripheral)
	}
	if r.conn.Kind() != hid.ChannelInterrupt {
		t.Errorf("Kind = %v, want interrupt", r.conn.Kind())
	}
	if r.conn.ConnID() == "" {
		t.Error("ConnID is empty")
	}
}

func TestListenerDataFlowsAfterHello(t *testing.T) {
	listener, results := startTestListener(t, hid.ChannelControl)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, err := transport.Dial(ctx, listener.Addr().String(), hid.ChannelControl, testPeripheral)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	r := waitAccept(t, results)
	if r.err != nil {
		t.Fatalf("accept callback error: %v", r.err)
	}
	defer r.conn.Close()

	// Server writes one byte, client reads it.
	if _, err := r.conn.Write([]byte{hid.UnplugVirtualCable}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	buf := make([]byte, 1)
	conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := conn.Read(buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if buf[0] != hid.UnplugVirtualCable {
		t.Errorf("read byte 0x%02X, want 0x15", buf[0])
	}
}

func TestListenerRejectsPSMMismatch(t *testing.T) {
	listener, results := startTestListener(t, hid.ChannelInterrupt)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Dial announcing the control PSM against the interrupt listener.
	conn, err := transport.Dial(ctx, listener.Addr().String(), hid.ChannelControl, testPeripheral)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	r := waitAccept(t, results)
	if r.err == nil {
		r.conn.Close()
		t.Fatal("expected hello mismatch error")
	}
	if r.conn != nil {
		t.Error("conn should be nil on hello failure")
	}
}

func TestListenerHelloTimeout(t *testing.T) {
	listener, results := startTestListener(t, hid.ChannelControl)

	// Connect but never send the hello.
	conn, err := net.Dial("tcp", listener.Addr().String())
	if err != nil {
		t.Fatalf("net.Dial: %v", err)
	}
	defer conn.Close()

	r := waitAccept(t, results)
	if r.err == nil {
		r.conn.Close()
		t.Fatal("expected hello timeout error")
	}
}

func TestListenerRejectsZeroAddress(t *testing.T) {
	listener, results := startTestListener(t, hid.ChannelControl)

	conn, err := net.Dial("tcp", listener.Addr().String())
	if err != nil {
		t.Fatalf("net.Dial: %v", err)
	}
	defer conn.Close()

	hello := make([]byte, 7)
	hello[0] = hid.PSMControl
	if _, err := conn.Write(hello); err != nil {
		t.Fatalf("Write: %v", err)
	}

	r := waitAccept(t, results)
	if r.err == nil {
		r.conn.Close()
		t.Fatal("expected zero-address rejection")
	}
}

func TestListenerStopIdempotent(t *testing.T) {
	listener, _ := startTestListener(t, hid.ChannelControl)

	if err := listener.Stop(); err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	if err := listener.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestNewListenerValidation(t *testing.T) {
	_, err := transport.NewListener(transport.ListenerConfig{
		Address:   "127.0.0.1:0",
		LocalAddr: testAdapter,
	})
	if err == nil {
		t.Error("expected error without OnConnection")
	}

	_, err = transport.NewListener(transport.ListenerConfig{
		Address:      "127.0.0.1:0",
		OnConnection: func(transport.Conn, error) {},
	})
	if err == nil {
		t.Error("expected error without LocalAddr")
	}
}
