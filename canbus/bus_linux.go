package canbus

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

const (
	txQueueDepth = 64
	rxQueueDepth = 256
)

// CANBus is a raw SocketCAN transport. A reader goroutine buffers inbound
// frames so Recv never blocks; a writer goroutine drains the tx queue so
// SendMsg never blocks.
type CANBus struct {
	fd   int
	tx   chan []byte
	rx   chan CANMsg
	open bool
}

func NewCANBus(ifname string) (bus *CANBus, err error) {
	iface, err := net.InterfaceByName(ifname)
	if err != nil {
		return nil, fmt.Errorf("canbus: unknown interface %s: %w", ifname, err)
	}

	bus = new(CANBus)

	bus.fd, err = unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("canbus: socket: %w", err)
	}

	addr := &unix.SockaddrCAN{Ifindex: iface.Index}
	if err = unix.Bind(bus.fd, addr); err != nil {
		unix.Close(bus.fd)
		return nil, fmt.Errorf("canbus: bind %s: %w", ifname, err)
	}

	bus.tx = make(chan []byte, txQueueDepth)
	bus.rx = make(chan CANMsg, rxQueueDepth)

	bus.open = true
	go bus.reader()
	go bus.writer()

	return
}

func (c *CANBus) SendMsg(msg CANMsg) error {
	raw, err := msg.ToByteArray()
	if err != nil {
		return err
	}

	select {
	case c.tx <- raw:
		return nil
	default:
		return ERR_TX_OVERFLOW
	}
}

// Recv pops one frame received since the last call, if any.
func (c *CANBus) Recv() (msg CANMsg, ok bool) {
	select {
	case msg = <-c.rx:
		return msg, true
	default:
		return msg, false
	}
}

func (c *CANBus) writer() {
	for c.open {
		raw := <-c.tx
		unix.Write(c.fd, raw)
	}
}

func (c *CANBus) reader() {
	for c.open {
		raw := make([]byte, FRAME_LENGTH)
		n, err := unix.Read(c.fd, raw)
		if err != nil || n < FRAME_LENGTH {
			continue
		}

		msg, err := MsgFromByteArray(raw)
		if err != nil {
			continue
		}

		select {
		case c.rx <- msg:
		default:
			// rx queue full, the frame is stale by now anyway
		}
	}
}

func (c *CANBus) Close() error {
	c.open = false
	return unix.Close(c.fd)
}
