package drive

import (
	"fmt"
	"io"
	"log"
	"sync"

	serial "github.com/jacobsa/go-serial/serial"
)

// Link is the serial connection to the motor-controller board. A
// background goroutine drains incoming state frames into a latest-sample
// cache; command frames are written synchronously from the control loop.
type Link struct {
	port io.ReadWriteCloser

	mu        sync.RWMutex
	state     SensorState
	haveState bool

	writeMu sync.Mutex
	closed  chan struct{}
}

// Open connects to the board's UART and starts the read loop.
func Open(portName string, baudRate uint) (*Link, error) {
	opts := serial.OpenOptions{
		PortName:        portName,
		BaudRate:        baudRate,
		DataBits:        8,
		StopBits:        1,
		ParityMode:      serial.PARITY_NONE,
		MinimumReadSize: 1,
	}

	port, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("drive: open %s: %w", portName, err)
	}
	log.Printf("drive: serial port opened on %s at %d baud", portName, baudRate)

	return NewLink(port), nil
}

// NewLink wraps an already-open transport. Split out from Open so tests
// can drive the link over an in-memory pipe.
func NewLink(port io.ReadWriteCloser) *Link {
	l := &Link{
		port:   port,
		closed: make(chan struct{}),
	}
	go l.readLoop()
	return l
}

func (l *Link) readLoop() {
	defer close(l.closed)

	var dec Decoder
	buf := make([]byte, 256)
	for {
		n, err := l.port.Read(buf)
		if err != nil {
			if err != io.EOF {
				log.Printf("drive: serial read: %v", err)
			}
			return
		}
		dec.Feed(buf[:n])

		for {
			topic, payload, ok := dec.Next()
			if !ok {
				break
			}
			if topic != TopicState {
				continue
			}
			st, err := DecodeState(payload)
			if err != nil {
				log.Printf("drive: bad state frame: %v", err)
				continue
			}
			l.mu.Lock()
			l.state = st
			l.haveState = true
			l.mu.Unlock()
		}
	}
}

// LatestState returns the most recent sensor sample. ok is false until
// the board finishes its startup calibration and sends the first state
// frame.
func (l *Link) LatestState() (SensorState, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state, l.haveState
}

// SendCommand writes one command frame to the board.
func (l *Link) SendCommand(c Command) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if _, err := l.port.Write(EncodeCommand(c)); err != nil {
		return fmt.Errorf("drive: write command: %w", err)
	}
	return nil
}

// Close shuts the port down and waits for the read loop to exit.
func (l *Link) Close() error {
	err := l.port.Close()
	<-l.closed
	return err
}
