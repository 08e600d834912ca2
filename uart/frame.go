// Package uart implements the framed command protocol spoken with the peer
// microcontroller and the serial port lifecycle behind it.
//
// A frame is: header 0x3E, command byte, payload length, payload, CRC-16
// (MSB then LSB), stop byte 0x0A.
package uart

import (
	"bytes"
	"encoding/hex"

	"go.uber.org/zap"
)

// Frame constants.
const (
	Header   = 0x3E
	StopByte = 0x0A

	// FrameOverhead is header + command + length + two CRC bytes + stop.
	FrameOverhead = 6
	MinFrameSize  = 6

	// MaxPullSize bounds how many queued bytes one pump pass consumes.
	MaxPullSize = 45
)

const (
	headerIdx    = 0
	cmdIdx       = 1
	lenIdx       = 2
	crcMSBOffset = 3
	crcLSBOffset = 4
)

// FrameType classifies a structurally valid frame.
type FrameType int

// Frame classifications.
const (
	FrameCommand FrameType = iota
	FrameACK
	FrameNACKFormat
	FrameNACKChecksum
)

func (t FrameType) String() string {
	switch t {
	case FrameCommand:
		return "COMMAND"
	case FrameACK:
		return "ACK"
	case FrameNACKFormat:
		return "NACK_FORMAT"
	case FrameNACKChecksum:
		return "NACK_CHECKSUM"
	default:
		return "UNKNOWN"
	}
}

// RecvError enumerates reception errors reported to the peer via NACK.
type RecvError int

// Reception errors.
const (
	RecvBadFrame RecvError = iota
	RecvInvalidChecksum
)

var (
	nackChecksumFrame = []byte{Header, 0xFF, 0x00, 0xFF, 0xFF, StopByte}
	nackFormatFrame   = []byte{Header, 0x00, 0x00, 0x00, 0x00, StopByte}
)

// Sender transmits raw bytes to the peer.
type Sender interface {
	Send(data []byte) error
}

// ByteSource hands out queued received bytes without blocking.
type ByteSource interface {
	ReadByte() (byte, bool)
}

// Protocol accumulates received bytes and extracts validated frames.
type Protocol struct {
	buf      []byte
	sender   Sender
	commands *CommandSet
	log      *zap.Logger
}

// NewProtocol returns a protocol replying through sender and classifying
// command bytes against commands.
func NewProtocol(sender Sender, commands *CommandSet, log *zap.Logger) *Protocol {
	return &Protocol{
		sender:   sender,
		commands: commands,
		log:      log,
	}
}

// Pump moves up to MaxPullSize queued bytes from src into the buffer.
func (p *Protocol) Pump(src ByteSource) {
	for i := 0; i < MaxPullSize; i++ {
		b, ok := src.ReadByte()
		if !ok {
			return
		}
		p.buf = append(p.buf, b)
	}
}

// Feed appends raw received bytes to the buffer.
func (p *Protocol) Feed(data []byte) {
	p.buf = append(p.buf, data...)
}

// ExtractFrame attempts a one-shot parse of the buffer head. A structurally
// malformed buffer is discarded with a NACK to the peer; an incomplete frame
// stays buffered until more bytes arrive. Returns nil when no complete valid
// frame is available.
func (p *Protocol) ExtractFrame() []byte {
	if len(p.buf) < MinFrameSize || p.buf[headerIdx] != Header {
		if len(p.buf) > 0 {
			p.log.Warn("invalid header or frame too short, discarding buffer",
				zap.String("buffer", hexString(p.buf)))
			p.sendNack(RecvBadFrame)
			p.buf = nil
		}
		return nil
	}

	expected := int(p.buf[lenIdx]) + FrameOverhead
	if len(p.buf) < expected {
		// Frame still arriving.
		return nil
	}

	if p.buf[expected-1] != StopByte {
		p.log.Warn("invalid stop byte, discarding buffer",
			zap.String("buffer", hexString(p.buf)))
		p.sendNack(RecvBadFrame)
		p.buf = nil
		return nil
	}

	frame := make([]byte, expected)
	copy(frame, p.buf)
	p.buf = p.buf[expected:]
	return frame
}

// Classify determines what a structurally valid frame is.
func (p *Protocol) Classify(frame []byte) FrameType {
	// Frames with payload are always commands.
	if len(frame) > MinFrameSize {
		return FrameCommand
	}

	if bytes.Equal(frame, nackChecksumFrame) {
		return FrameNACKChecksum
	}
	if bytes.Equal(frame, nackFormatFrame) {
		return FrameNACKFormat
	}

	// A zero-payload frame is a command if we know the command byte,
	// otherwise it acknowledges something we sent.
	if p.commands != nil && p.commands.Known(frame[cmdIdx]) {
		return FrameCommand
	}
	return FrameACK
}

// EvaluateCRC validates the checksum of a well-formed frame and replies with
// an ACK or NACK.
func (p *Protocol) EvaluateCRC(frame []byte) bool {
	if Checksum(frame) == receivedChecksum(frame) {
		if err := p.send(Ack(frame)); err != nil {
			p.log.Error("failed to send ACK", zap.Error(err))
		} else {
			p.log.Info("sent ACK")
		}
		return true
	}

	p.sendNack(RecvInvalidChecksum)
	return false
}

// HandleFrame runs one received frame through classification, checksum
// validation and command execution. Shutdown requests propagate as errors.
func (p *Protocol) HandleFrame(frame []byte) error {
	frameType := p.Classify(frame)
	p.log.Info("complete frame received",
		zap.String("frame", hexString(frame)),
		zap.Stringer("type", frameType))

	switch frameType {
	case FrameCommand:
		if !p.EvaluateCRC(frame) {
			return nil
		}
		return p.commands.Execute(frame[cmdIdx])
	case FrameACK:
		p.log.Info("ACK received, previous command successful")
	default:
		p.log.Warn("NACK received, previous command failed",
			zap.Stringer("type", frameType))
	}
	return nil
}

// Ack builds the acknowledgment for a received frame: same command byte,
// zero payload length, the frame's own CRC bytes echoed back.
func Ack(frame []byte) []byte {
	payloadLen := int(frame[lenIdx])

	ack := make([]byte, MinFrameSize)
	ack[headerIdx] = Header
	ack[cmdIdx] = frame[cmdIdx]
	ack[crcMSBOffset] = frame[payloadLen+crcMSBOffset]
	ack[crcLSBOffset] = frame[payloadLen+crcLSBOffset]
	ack[MinFrameSize-1] = StopByte
	return ack
}

// Nack builds the notification frame for a reception error.
func Nack(recvErr RecvError) []byte {
	switch recvErr {
	case RecvBadFrame:
		out := make([]byte, len(nackFormatFrame))
		copy(out, nackFormatFrame)
		return out
	case RecvInvalidChecksum:
		out := make([]byte, len(nackChecksumFrame))
		copy(out, nackChecksumFrame)
		return out
	default:
		return nil
	}
}

func (p *Protocol) sendNack(recvErr RecvError) {
	if err := p.send(Nack(recvErr)); err != nil {
		p.log.Error("failed to send NACK", zap.Error(err))
		return
	}
	p.log.Warn("sent NACK", zap.Int("error", int(recvErr)))
}

func (p *Protocol) send(data []byte) error {
	if p.sender == nil {
		return nil
	}
	return p.sender.Send(data)
}

func hexString(b []byte) string {
	return hex.EncodeToString(b)
}
