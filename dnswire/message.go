// Package dnswire implements the subset of the RFC 1035 wire format the
// forwarder needs: headers, questions and A/AAAA answer records over UDP
// datagrams. Compression pointers are accepted on decode but never emitted.
package dnswire

import (
	"net/netip"
	"strings"
)

// Query types handled by the forwarder. Anything else is refused upstream
// of the codec.
const (
	TypeA    uint16 = 1
	TypeAAAA uint16 = 28

	ClassINET uint16 = 1
)

// Header flag bits.
const (
	FlagQR uint16 = 1 << 15
	FlagAA uint16 = 1 << 10
	FlagTC uint16 = 1 << 9
	FlagRD uint16 = 1 << 8
	FlagRA uint16 = 1 << 7
)

// Response codes emitted by the forwarder.
const (
	RcodeSuccess       = 0
	RcodeServerFailure = 2
	RcodeNameError     = 3
	RcodeRefused       = 5
)

const (
	// MaxPointerHops bounds compression pointer chains on decode.
	MaxPointerHops = 8

	// MaxNameLength is the maximum encoded length of a domain name.
	MaxNameLength = 255

	// MaxLabelLength is the maximum length of a single label.
	MaxLabelLength = 63

	// MaxDatagramSize is the largest UDP payload the codec works with.
	MaxDatagramSize = 512

	headerLength = 12
)

// Header is the fixed 12-octet message header. Section counts are derived
// from the message sections on encode and are not stored here.
type Header struct {
	ID    uint16
	Flags uint16
}

// Rcode returns the response code bits of the flags field.
func (h Header) Rcode() int { return int(h.Flags & 0xF) }

// SetRcode replaces the response code bits of the flags field.
func (h *Header) SetRcode(rcode int) {
	h.Flags = h.Flags&^0xF | uint16(rcode)&0xF
}

// Question is a single query section entry. Name is in presentation form
// without the trailing dot, original case preserved.
type Question struct {
	Name  string
	Qtype uint16
	Class uint16
}

// ResourceRecord is an answer section entry carrying an A or AAAA address.
type ResourceRecord struct {
	Name  string
	Rtype uint16
	Class uint16
	TTL   uint32
	Data  netip.Addr
}

// Message is a decoded or to-be-encoded DNS message. Records with types
// other than A/AAAA are skipped on decode and never appear in Answers.
type Message struct {
	Header    Header
	Questions []Question
	Answers   []ResourceRecord
}

// SetReply prepares m as a reply to req: same ID, QR set, the single
// question echoed, and RD/RA copied when recursion was requested.
func (m *Message) SetReply(req *Message) {
	m.Header.ID = req.Header.ID
	m.Header.Flags = FlagQR
	if req.Header.Flags&FlagRD != 0 {
		m.Header.Flags |= FlagRD | FlagRA
	}
	if len(req.Questions) > 0 {
		m.Questions = []Question{req.Questions[0]}
	}
}

// ValidName reports whether name is a syntactically valid domain name in
// presentation form: non-empty dot-separated labels of at most 63 octets,
// total encoded length within 255 octets.
func ValidName(name string) bool {
	if name == "" || len(name)+2 > MaxNameLength {
		return false
	}
	for _, label := range strings.Split(name, ".") {
		if len(label) == 0 || len(label) > MaxLabelLength {
			return false
		}
	}
	return true
}
