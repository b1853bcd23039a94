// Command hidlink-peripheral is an interactive HID peripheral simulator.
//
// It plays the device side of the link: it dials the server's control
// and interrupt endpoints, identifies itself with a peripheral address,
// sends input reports, and reports what the server does to the
// connection - including the virtual cable unplug a server sends to a
// peripheral it does not recognize.
//
// Usage:
//
//	hidlink-peripheral [flags]
//
// Flags:
//
//	-control string    Server control endpoint address (default "127.0.0.1:17017")
//	-interrupt string  Server interrupt endpoint address (default "127.0.0.1:17019")
//	-address string    Peripheral address (default "BB:BB:BB:BB:BB:BB")
//
// Example:
//
//	hidlink-peripheral -address 11:22:33:44:55:66 -control server:17017 -interrupt server:17019
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"strings"
	"sync"

	"github.com/chzyer/readline"

	"github.com/hidlink-protocol/hidlink-go/pkg/hid"
	"github.com/hidlink-protocol/hidlink-go/pkg/transport"
)

// Config holds the simulator configuration.
type Config struct {
	ControlAddress   string
	InterruptAddress string
	Address          string
}

var config Config

func init() {
	flag.StringVar(&config.ControlAddress, "control", "127.0.0.1:17017", "Server control endpoint address")
	flag.StringVar(&config.InterruptAddress, "interrupt", "127.0.0.1:17019", "Server interrupt endpoint address")
	flag.StringVar(&config.Address, "address", "BB:BB:BB:BB:BB:BB", "Peripheral address")
}

// Peripheral is the interactive simulator state.
type Peripheral struct {
	address hid.DeviceAddress
	rl      *readline.Instance

	mu        sync.Mutex
	control   net.Conn
	interrupt net.Conn
	unplugged bool
}

func main() {
	flag.Parse()
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	address, err := hid.ParseDeviceAddress(config.Address)
	if err != nil {
		log.Fatalf("Invalid peripheral address %q: %v", config.Address, err)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "peripheral> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		log.Fatalf("Failed to create readline: %v", err)
	}
	defer rl.Close()

	// Redirect log output through readline to avoid interfering with input
	log.SetOutput(rl.Stdout())

	p := &Peripheral{address: address, rl: rl}

	log.Printf("HID peripheral simulator (%s)", address)
	p.printHelp()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer p.disconnect()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(rl.Stdout(), "Exiting...")
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			p.printHelp()

		case "connect", "c":
			p.cmdConnect(ctx)

		case "disconnect", "d":
			p.cmdDisconnect()

		case "send", "s":
			p.cmdSend(args)

		case "status":
			p.cmdStatus()

		case "quit", "exit", "q":
			fmt.Fprintln(rl.Stdout(), "Exiting...")
			return

		default:
			fmt.Fprintf(rl.Stdout(), "Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (p *Peripheral) printHelp() {
	fmt.Fprintln(p.rl.Stdout(), `
HID Peripheral Commands:
  connect            - Open control and interrupt channels to the server
  disconnect         - Close both channels
  send <hex>         - Send an input report on the interrupt channel
  status             - Show channel state
  quit               - Exit`)
}

func (p *Peripheral) cmdConnect(ctx context.Context) {
	p.mu.Lock()
	if p.control != nil {
		p.mu.Unlock()
		log.Println("Already connected")
		return
	}
	p.mu.Unlock()

	control, err := transport.Dial(ctx, config.ControlAddress, hid.ChannelControl, p.address)
	if err != nil {
		log.Printf("Control channel: %v", err)
		return
	}

	interrupt, err := transport.Dial(ctx, config.InterruptAddress, hid.ChannelInterrupt, p.address)
	if err != nil {
		control.Close()
		log.Printf("Interrupt channel: %v", err)
		return
	}

	p.mu.Lock()
	p.control = control
	p.interrupt = interrupt
	p.unplugged = false
	p.mu.Unlock()

	go p.watchControl(control)
	go p.watchInterrupt(interrupt)

	log.Printf("Connected: control %s, interrupt %s", config.ControlAddress, config.InterruptAddress)
}

func (p *Peripheral) cmdDisconnect() {
	if !p.disconnect() {
		log.Println("Not connected")
		return
	}
	log.Println("Disconnected")
}

func (p *Peripheral) cmdSend(args []string) {
	if len(args) != 1 {
		log.Println("Usage: send <hex>, e.g. send a1010203")
		return
	}

	report, err := hex.DecodeString(args[0])
	if err != nil {
		log.Printf("Invalid report hex: %v", err)
		return
	}

	p.mu.Lock()
	interrupt := p.interrupt
	p.mu.Unlock()
	if interrupt == nil {
		log.Println("Not connected")
		return
	}

	if _, err := interrupt.Write(report); err != nil {
		log.Printf("Send failed: %v", err)
		return
	}
	log.Printf("Sent %d byte report", len(report))
}

func (p *Peripheral) cmdStatus() {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.rl.Stdout(), "Address:   %s\n", p.address)
	if p.control == nil {
		state := "disconnected"
		if p.unplugged {
			state = "unplugged by server"
		}
		fmt.Fprintf(p.rl.Stdout(), "Channels:  %s\n", state)
		return
	}
	fmt.Fprintf(p.rl.Stdout(), "Control:   %s -> %s\n", p.control.LocalAddr(), p.control.RemoteAddr())
	fmt.Fprintf(p.rl.Stdout(), "Interrupt: %s -> %s\n", p.interrupt.LocalAddr(), p.interrupt.RemoteAddr())
}

// watchControl reads the control channel, watching for the virtual
// cable unplug byte a server sends when it rejects the peripheral.
func (p *Peripheral) watchControl(conn net.Conn) {
	buf := make([]byte, 64)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			if err != io.EOF && !isClosedConn(err) {
				log.Printf("Control channel error: %v", err)
			} else {
				log.Println("Control channel closed by server")
			}
			p.disconnect()
			return
		}

		for _, b := range buf[:n] {
			if b == hid.UnplugVirtualCable {
				log.Println("Received VIRTUAL CABLE UNPLUG - server does not recognize this device")
				p.mu.Lock()
				p.unplugged = true
				p.mu.Unlock()
				continue
			}
			log.Printf("Control channel byte: 0x%02x", b)
		}
	}
}

// watchInterrupt reads the interrupt channel so a server-side close is
// noticed promptly.
func (p *Peripheral) watchInterrupt(conn net.Conn) {
	buf := make([]byte, 256)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			if err == io.EOF || isClosedConn(err) {
				log.Println("Interrupt channel closed by server")
			}
			p.disconnect()
			return
		}
		log.Printf("Interrupt channel data: %s", hex.EncodeToString(buf[:n]))
	}
}

// disconnect closes both channels. Returns false when nothing was open.
func (p *Peripheral) disconnect() bool {
	p.mu.Lock()
	control, interrupt := p.control, p.interrupt
	p.control, p.interrupt = nil, nil
	p.mu.Unlock()

	if control == nil && interrupt == nil {
		return false
	}
	if control != nil {
		control.Close()
	}
	if interrupt != nil {
		interrupt.Close()
	}
	return true
}

func isClosedConn(err error) bool {
	return err != nil && strings.Contains(err.Error(), "use of closed network connection")
}
