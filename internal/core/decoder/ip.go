// Package decoder implements the zero-copy IP/UDP/syslog decode chain:
// DecodeIP walks the IPv4/IPv6 header (including the IPv6 extension-header
// chain), DecodeUDP pulls out the transport header, and ParseSyslog extracts
// the PRI/severity/facility/message per RFC 3164/5424.
package decoder

import (
	"encoding/binary"
	"net/netip"
	"time"

	"github.com/sylogd/agent/internal/core"
)

// DecodeIP decodes exactly one IP datagram starting at data[0]. receivedAt is
// stamped onto the returned packet. When reuseBuffer is true, every slice
// referenced by the result (Options, Payload, ExtensionBytes) aliases data;
// when false, those slices are copied so the caller may release or reuse the
// underlying buffer immediately.
func DecodeIP(data []byte, receivedAt time.Time, reuseBuffer bool) (core.IPPacket, error) {
	if len(data) < 1 {
		return core.IPPacket{}, core.ErrTruncatedPayload
	}

	version := data[0] >> 4
	switch version {
	case 4:
		pkt, err := decodeIPv4(data, reuseBuffer)
		if err != nil {
			return core.IPPacket{}, err
		}
		return core.IPPacket{ReceivedAt: receivedAt, V4: &pkt}, nil
	case 6:
		pkt, err := decodeIPv6(data, reuseBuffer)
		if err != nil {
			return core.IPPacket{}, err
		}
		return core.IPPacket{ReceivedAt: receivedAt, V6: &pkt}, nil
	default:
		return core.IPPacket{}, core.ErrUnsupportedVersion
	}
}

func sliceOf(data []byte, reuseBuffer bool) []byte {
	if reuseBuffer || len(data) == 0 {
		return data
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp
}

// decodeIPv4 decodes an IPv4 header per RFC 791 and spec.md §4.2.
func decodeIPv4(data []byte, reuseBuffer bool) (core.IPv4Packet, error) {
	if len(data) < core.IPv4HeaderMin {
		return core.IPv4Packet{}, core.ErrMalformedHeader
	}

	ihl := data[0] & 0x0F
	headerBytes := int(ihl) * 4
	if headerBytes < core.IPv4HeaderMin || len(data) < headerBytes {
		return core.IPv4Packet{}, core.ErrMalformedHeader
	}

	flagsOffset := binary.BigEndian.Uint16(data[6:8])

	srcIP, ok := netip.AddrFromSlice(data[12:16])
	if !ok {
		return core.IPv4Packet{}, core.ErrMalformedHeader
	}
	dstIP, ok := netip.AddrFromSlice(data[16:20])
	if !ok {
		return core.IPv4Packet{}, core.ErrMalformedHeader
	}

	header := core.IPv4Header{
		Version:        4,
		IHL:            ihl,
		DSCP:           data[1] >> 2,
		ECN:            data[1] & 0x3,
		TotalLength:    binary.BigEndian.Uint16(data[2:4]),
		Identification: binary.BigEndian.Uint16(data[4:6]),
		DF:             flagsOffset&0x4000 != 0,
		MF:             flagsOffset&0x2000 != 0,
		FragmentOffset: flagsOffset & 0x1FFF,
		TTL:            data[8],
		Protocol:       data[9],
		Checksum:       binary.BigEndian.Uint16(data[10:12]),
		SrcIP:          srcIP,
		DstIP:          dstIP,
	}

	totalLength := int(header.TotalLength)
	if totalLength < headerBytes {
		totalLength = headerBytes
	}
	if totalLength > len(data) {
		totalLength = len(data)
	}

	options := sliceOf(data[core.IPv4HeaderMin:headerBytes], reuseBuffer)
	payload := sliceOf(data[headerBytes:totalLength], reuseBuffer)

	return core.IPv4Packet{Header: header, Options: options, Payload: payload}, nil
}

// extensionLength computes the byte length of an IPv6 extension header given
// its type and length field, per the per-type table in spec.md §3.
func extensionLength(extType uint8, lenField uint8) int {
	switch extType {
	case core.ExtFragment:
		return 8
	case core.ExtAuth:
		return (int(lenField) + 2) * 4
	default:
		return (int(lenField) + 1) * 8
	}
}

func isExtensionType(t uint8) bool {
	switch t {
	case core.ExtHopByHop, core.ExtRouting, core.ExtFragment, core.ExtESP, core.ExtAuth, core.ExtDestOpts, core.ExtMobility:
		return true
	default:
		return false
	}
}

// decodeIPv6 decodes the fixed IPv6 header and walks the extension-header
// chain per RFC 8200 and spec.md §4.2.
func decodeIPv6(data []byte, reuseBuffer bool) (core.IPv6Packet, error) {
	if len(data) < core.IPv6HeaderLen {
		return core.IPv6Packet{}, core.ErrMalformedHeader
	}

	trafficClass := (data[0]&0x0F)<<4 | data[1]>>4
	flowLabel := uint32(data[1]&0x0F)<<16 | uint32(data[2])<<8 | uint32(data[3])

	srcIP, ok := netip.AddrFromSlice(data[8:24])
	if !ok {
		return core.IPv6Packet{}, core.ErrMalformedHeader
	}
	dstIP, ok := netip.AddrFromSlice(data[24:40])
	if !ok {
		return core.IPv6Packet{}, core.ErrMalformedHeader
	}

	header := core.IPv6Header{
		Version:       6,
		TrafficClass:  trafficClass,
		FlowLabel:     flowLabel,
		PayloadLength: binary.BigEndian.Uint16(data[4:6]),
		NextHeader:    data[6],
		HopLimit:      data[7],
		SrcIP:         srcIP,
		DstIP:         dstIP,
	}

	var extensions []core.ExtensionHeader
	nextType := header.NextHeader
	offset := core.IPv6HeaderLen
	truncated := false

	for isExtensionType(nextType) {
		if offset+2 > len(data) {
			truncated = true
			break
		}
		lenField := data[offset+1]
		extLen := extensionLength(nextType, lenField)
		if offset+extLen > len(data) {
			truncated = true
			break
		}
		extensions = append(extensions, core.ExtensionHeader{Type: nextType, Length: extLen})
		nextByte := data[offset]
		offset += extLen
		nextType = nextByte
	}

	finalProtocol := nextType
	if truncated {
		// The chain could not be fully walked; whatever remains is opaque.
		finalProtocol = core.ProtoIPv6NoNxt
	}

	payloadEnd := core.IPv6HeaderLen + int(header.PayloadLength)
	if payloadEnd > len(data) {
		payloadEnd = len(data)
	}
	if payloadEnd < offset {
		payloadEnd = offset
	}

	extBytes := sliceOf(data[core.IPv6HeaderLen:offset], reuseBuffer)
	payload := sliceOf(data[offset:payloadEnd], reuseBuffer)

	return core.IPv6Packet{
		Header:         header,
		Extensions:     extensions,
		ExtensionBytes: extBytes,
		FinalProtocol:  finalProtocol,
		Payload:        payload,
		Truncated:      truncated,
	}, nil
}
