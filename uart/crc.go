package uart

import (
	"github.com/sigurn/crc16"
)

var crcTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// Checksum computes the frame checksum over header, command, length and
// payload. The exact range still needs verification against hardware traces
// of the peer controller; keep it in this one place.
func Checksum(frame []byte) uint16 {
	n := int(frame[lenIdx]) + crcMSBOffset
	return crc16.Checksum(frame[:n], crcTable)
}

// receivedChecksum extracts the checksum carried by a structurally valid
// frame.
func receivedChecksum(frame []byte) uint16 {
	n := int(frame[lenIdx])
	return uint16(frame[n+crcMSBOffset])<<8 | uint16(frame[n+crcLSBOffset])
}
