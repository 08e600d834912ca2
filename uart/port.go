package uart

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"
	"go.uber.org/zap"
)

const (
	readTimeout = 100 * time.Millisecond
	queueSize   = 1024
)

// Port owns the serial handle: a background listener queues every received
// byte, sends are serialized by a mutex. Start and stop are explicit; there
// is no ambient global state.
type Port struct {
	mu      sync.Mutex
	port    serial.Port
	queue   chan byte
	stop    chan struct{}
	running bool
	log     *zap.Logger
}

// OpenPort opens the serial device and starts the listener.
func OpenPort(device string, baud int, log *zap.Logger) (*Port, error) {
	sp, err := serial.Open(device, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, errors.Wrapf(err, "opening serial port %q", device)
	}
	if err := sp.SetReadTimeout(readTimeout); err != nil {
		_ = sp.Close()
		return nil, errors.WithStack(err)
	}

	p := &Port{
		port:    sp,
		queue:   make(chan byte, queueSize),
		stop:    make(chan struct{}),
		running: true,
		log:     log,
	}
	go p.listen()

	log.Info("serial port opened", zap.String("device", device), zap.Int("baud", baud))
	return p, nil
}

func (p *Port) listen() {
	buf := make([]byte, 64)
	for {
		select {
		case <-p.stop:
			return
		default:
		}

		n, err := p.port.Read(buf)
		if err != nil {
			select {
			case <-p.stop:
				return
			default:
			}
			p.log.Error("serial read failed, listener stopping", zap.Error(err))
			return
		}

		for _, b := range buf[:n] {
			select {
			case p.queue <- b:
			default:
				p.log.Warn("receive queue full, dropping byte", zap.Uint8("byte", b))
			}
		}
	}
}

// ReadByte pops one queued byte without blocking.
func (p *Port) ReadByte() (byte, bool) {
	select {
	case b := <-p.queue:
		return b, true
	default:
		return 0, false
	}
}

// QueueLen returns how many received bytes are waiting.
func (p *Port) QueueLen() int {
	return len(p.queue)
}

// Running reports whether the port is open.
func (p *Port) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Send transmits data to the peer.
func (p *Port) Send(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return errors.New("serial port is closed")
	}
	for len(data) > 0 {
		n, err := p.port.Write(data)
		if err != nil {
			return errors.WithStack(err)
		}
		data = data[n:]
	}
	return nil
}

// Close stops the listener and closes the device.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return nil
	}
	p.running = false
	close(p.stop)

	if err := p.port.Close(); err != nil {
		return errors.WithStack(err)
	}
	p.log.Info("serial port closed")
	return nil
}
