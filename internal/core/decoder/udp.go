package decoder

import (
	"encoding/binary"

	"github.com/sylogd/agent/internal/core"
)

// DecodeUDP decodes a UDP header (RFC 768) from data, which must begin
// exactly at the UDP header. Per spec.md §4.3, data shorter than 8 bytes
// fails with ErrTruncatedPayload.
func DecodeUDP(data []byte, reuseBuffer bool) (core.UDPDatagram, error) {
	if len(data) < core.UDPHeaderLen {
		return core.UDPDatagram{}, core.ErrTruncatedPayload
	}

	return core.UDPDatagram{
		SrcPort:  binary.BigEndian.Uint16(data[0:2]),
		DstPort:  binary.BigEndian.Uint16(data[2:4]),
		Length:   binary.BigEndian.Uint16(data[4:6]),
		Checksum: binary.BigEndian.Uint16(data[6:8]),
		Payload:  sliceOf(data[core.UDPHeaderLen:], reuseBuffer),
	}, nil
}
