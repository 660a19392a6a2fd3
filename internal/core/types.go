// Package core defines the wire-level data model shared by the decoder,
// receiver, and worker packages. It has zero external dependencies so every
// other package in this module can depend on it without pulling in I/O or
// parsing concerns.
package core

import (
	"net/netip"
	"time"
)

// IPv6 extension header types recognized by the extension-header chain walk
// (RFC 8200 §4.1). Types outside this set terminate the chain as the final
// transport protocol.
const (
	ExtHopByHop    = 0
	ExtRouting     = 43
	ExtFragment    = 44
	ExtESP         = 50
	ExtAuth        = 51
	ExtDestOpts    = 60
	ExtMobility    = 135
	ProtoIPv6NoNxt = 59
	ProtoUDP       = 17
	IPv4HeaderMin  = 20
	IPv6HeaderLen  = 40
	UDPHeaderLen   = 8
	DefaultBufSize = 65535
	DefaultUDPPort = 514
	DefaultTCPPort = 6514
)

// IPv4Header is the decoded fixed-size IPv4 header (RFC 791).
type IPv4Header struct {
	Version        uint8
	IHL            uint8 // header length in 32-bit words, 5..15
	DSCP           uint8
	ECN            uint8
	TotalLength    uint16
	Identification uint16
	DF             bool
	MF             bool
	FragmentOffset uint16 // 13 bits, in 8-byte units
	TTL            uint8
	Protocol       uint8
	Checksum       uint16
	SrcIP          netip.Addr
	DstIP          netip.Addr
}

// HeaderBytes returns IHL*4, the header length in bytes.
func (h IPv4Header) HeaderBytes() int { return int(h.IHL) * 4 }

// IPv4Packet is a fully decoded IPv4 datagram: header, trailing options, and
// the transport-layer payload slice.
type IPv4Packet struct {
	Header  IPv4Header
	Options []byte
	Payload []byte
}

// IPv6Header is the decoded fixed IPv6 header (RFC 8200 §3), before any
// extension headers are walked.
type IPv6Header struct {
	Version       uint8
	TrafficClass  uint8
	FlowLabel     uint32 // 20 bits
	PayloadLength uint16
	NextHeader    uint8
	HopLimit      uint8
	SrcIP         netip.Addr
	DstIP         netip.Addr
}

// ExtensionHeader captures one link in the IPv6 extension-header chain: its
// type and its total length in bytes (including the 2-byte type/len-field
// prefix), per the per-type rules in RFC 8200 §4.
type ExtensionHeader struct {
	Type   uint8
	Length int
}

// IPv6Packet is a fully decoded IPv6 datagram, including the walked
// extension-header chain and the final transport protocol it terminated on.
type IPv6Packet struct {
	Header         IPv6Header
	Extensions     []ExtensionHeader
	ExtensionBytes []byte // raw bytes of the walked chain, offset 40..payloadStart
	FinalProtocol  uint8
	Payload        []byte
	Truncated      bool // the chain ran past the available input before completing
}

// IPPacket is the tagged-variant rendering of spec.md's `IpPacket = V4 | V6`.
// Go has no sum types; exactly one of V4/V6 is non-nil, and callers switch on
// which is set. ReceivedAt is hoisted to the shared envelope.
type IPPacket struct {
	ReceivedAt time.Time
	V4         *IPv4Packet
	V6         *IPv6Packet
}

// Protocol returns the final transport protocol: the IPv4 header's protocol
// field, or the IPv6 extension chain's terminal protocol.
func (p IPPacket) Protocol() uint8 {
	switch {
	case p.V4 != nil:
		return p.V4.Header.Protocol
	case p.V6 != nil:
		return p.V6.FinalProtocol
	default:
		return 0
	}
}

// Payload returns the transport-layer payload slice, regardless of variant.
func (p IPPacket) Payload() []byte {
	switch {
	case p.V4 != nil:
		return p.V4.Payload
	case p.V6 != nil:
		return p.V6.Payload
	default:
		return nil
	}
}

// HasExtensionChain reports whether a non-empty IPv6 extension-header chain
// was walked — used by the decode worker to surface the payload as opaque
// rather than attempting UDP parsing (spec.md §4.6 step 3).
func (p IPPacket) HasExtensionChain() bool {
	return p.V6 != nil && len(p.V6.Extensions) > 0
}

// IsFragment reports whether the IPv4 header's fragment offset is non-zero —
// the IPv4 analogue of HasExtensionChain for the same "opaque, no reassembly"
// policy.
func (p IPPacket) IsFragment() bool {
	return p.V4 != nil && p.V4.Header.FragmentOffset > 0
}

// SrcIP returns the packet's source address regardless of IP version.
func (p IPPacket) SrcIP() netip.Addr {
	switch {
	case p.V4 != nil:
		return p.V4.Header.SrcIP
	case p.V6 != nil:
		return p.V6.Header.SrcIP
	default:
		return netip.Addr{}
	}
}

// DstIP returns the packet's destination address regardless of IP version.
func (p IPPacket) DstIP() netip.Addr {
	switch {
	case p.V4 != nil:
		return p.V4.Header.DstIP
	case p.V6 != nil:
		return p.V6.Header.DstIP
	default:
		return netip.Addr{}
	}
}

// UDPDatagram is the decoded UDP header (RFC 768) plus its payload slice.
type UDPDatagram struct {
	SrcPort  uint16
	DstPort  uint16
	Length   uint16
	Checksum uint16
	Payload  []byte
}

// SyslogEvent is the decoded syslog message: PRI-derived severity/facility,
// the message body, and an optional set of RFC 3164/5424 field captures.
// Capture keys are case-insensitive; the last write for a given key wins.
type SyslogEvent struct {
	ReceivedAt time.Time
	SourceIP   string
	Severity   uint8 // priority & 0x7
	Facility   uint8 // priority >> 3
	Message    string
	Captures   map[string]string
}

// DecodedMessage is the envelope built by worker.BuildMessage: an owned copy
// of the original payload bytes (so the leased receive buffer can be
// returned) plus the parsed SyslogEvent. Sinks themselves receive only the
// SyslogEvent.
type DecodedMessage struct {
	OccurredAt time.Time
	ReceivedAt time.Time
	Payload    []byte
	Event      SyslogEvent
}

// ReceivedFrame is a leased buffer paired with the number of valid bytes and
// the instant of reception. Release must be called exactly once, along every
// exit path, to return the buffer to its pool.
type ReceivedFrame struct {
	Buffer     []byte // full leased buffer; only Buffer[:Length] is valid
	Length     int
	ReceivedAt time.Time
	Release    func()
}

// Data returns the valid portion of the leased buffer.
func (f ReceivedFrame) Data() []byte {
	return f.Buffer[:f.Length]
}
