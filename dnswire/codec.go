package dnswire

import (
	"encoding/binary"
	"errors"
	"net/netip"
	"strings"
)

var (
	// ErrBufferFull means the message does not fit the encode buffer.
	ErrBufferFull = errors.New("dnswire: buffer full")
	// ErrMalformed means the datagram violates the wire format.
	ErrMalformed = errors.New("dnswire: malformed message")
)

// Encode writes m into buf and returns the number of octets written.
// Names are written as plain length-prefixed labels; no compression
// pointers are emitted.
func Encode(m *Message, buf []byte) (int, error) {
	w := writer{buf: buf}

	w.u16(m.Header.ID)
	w.u16(m.Header.Flags)
	w.u16(uint16(len(m.Questions)))
	w.u16(uint16(len(m.Answers)))
	w.u16(0) // nscount
	w.u16(0) // arcount

	for _, q := range m.Questions {
		if err := w.name(q.Name); err != nil {
			return 0, err
		}
		w.u16(q.Qtype)
		w.u16(q.Class)
	}

	for _, rr := range m.Answers {
		if err := w.name(rr.Name); err != nil {
			return 0, err
		}
		w.u16(rr.Rtype)
		w.u16(rr.Class)
		w.u32(rr.TTL)
		addr := rr.Data.AsSlice()
		w.u16(uint16(len(addr)))
		w.bytes(addr)
	}

	if w.overflow {
		return 0, ErrBufferFull
	}
	return w.off, nil
}

// Decode parses a datagram into a Message. Answer records with types other
// than A/AAAA are skipped by their RDLENGTH. Authority and additional
// records are skipped entirely.
func Decode(data []byte) (*Message, error) {
	r := reader{data: data}

	m := new(Message)
	m.Header.ID = r.u16()
	m.Header.Flags = r.u16()
	qdcount := int(r.u16())
	ancount := int(r.u16())
	nscount := int(r.u16())
	arcount := int(r.u16())
	if r.err != nil {
		return nil, r.err
	}

	for i := 0; i < qdcount; i++ {
		var q Question
		q.Name = r.name()
		q.Qtype = r.u16()
		q.Class = r.u16()
		if r.err != nil {
			return nil, r.err
		}
		m.Questions = append(m.Questions, q)
	}

	for i := 0; i < ancount+nscount+arcount; i++ {
		rr, keep := r.record()
		if r.err != nil {
			return nil, r.err
		}
		if keep && i < ancount {
			m.Answers = append(m.Answers, rr)
		}
	}

	return m, nil
}

type writer struct {
	buf      []byte
	off      int
	overflow bool
}

func (w *writer) bytes(p []byte) {
	if w.overflow || w.off+len(p) > len(w.buf) {
		w.overflow = true
		return
	}
	copy(w.buf[w.off:], p)
	w.off += len(p)
}

func (w *writer) u16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.bytes(b[:])
}

func (w *writer) u32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.bytes(b[:])
}

func (w *writer) name(name string) error {
	if !ValidName(name) {
		return ErrMalformed
	}
	for _, label := range strings.Split(name, ".") {
		w.bytes([]byte{byte(len(label))})
		w.bytes([]byte(label))
	}
	w.bytes([]byte{0})
	return nil
}

type reader struct {
	data []byte
	off  int
	err  error
}

func (r *reader) fail() {
	if r.err == nil {
		r.err = ErrMalformed
	}
}

func (r *reader) u16() uint16 {
	if r.err != nil || r.off+2 > len(r.data) {
		r.fail()
		return 0
	}
	v := binary.BigEndian.Uint16(r.data[r.off:])
	r.off += 2
	return v
}

func (r *reader) u32() uint32 {
	if r.err != nil || r.off+4 > len(r.data) {
		r.fail()
		return 0
	}
	v := binary.BigEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v
}

func (r *reader) skip(n int) {
	if r.err != nil || r.off+n > len(r.data) {
		r.fail()
		return
	}
	r.off += n
}

// name reads a possibly compressed domain name. The cursor advances past
// the name's in-place representation; pointer targets are followed on a
// side cursor, at most MaxPointerHops deep.
func (r *reader) name() string {
	if r.err != nil {
		return ""
	}

	var sb strings.Builder
	off := r.off
	hops := 0
	jumped := false
	total := 0

	for {
		if off >= len(r.data) {
			r.fail()
			return ""
		}
		length := int(r.data[off])

		switch {
		case length == 0:
			if !jumped {
				r.off = off + 1
			}
			return sb.String()

		case length&0xC0 == 0xC0:
			if off+1 >= len(r.data) {
				r.fail()
				return ""
			}
			hops++
			if hops > MaxPointerHops {
				r.fail()
				return ""
			}
			target := int(r.data[off]&0x3F)<<8 | int(r.data[off+1])
			if !jumped {
				r.off = off + 2
				jumped = true
			}
			off = target

		case length > MaxLabelLength:
			r.fail()
			return ""

		default:
			if off+1+length > len(r.data) {
				r.fail()
				return ""
			}
			total += length + 1
			if total+1 > MaxNameLength {
				r.fail()
				return ""
			}
			if sb.Len() > 0 {
				sb.WriteByte('.')
			}
			sb.Write(r.data[off+1 : off+1+length])
			off += 1 + length
		}
	}
}

// record reads one resource record. keep is true only for A/AAAA records
// whose RDLENGTH matches the address size; others are skipped.
func (r *reader) record() (rr ResourceRecord, keep bool) {
	rr.Name = r.name()
	rr.Rtype = r.u16()
	rr.Class = r.u16()
	rr.TTL = r.u32()
	rdlength := int(r.u16())
	if r.err != nil {
		return rr, false
	}

	switch {
	case rr.Rtype == TypeA && rdlength == 4:
		if r.off+4 > len(r.data) {
			r.fail()
			return rr, false
		}
		addr, _ := netip.AddrFromSlice(r.data[r.off : r.off+4])
		rr.Data = addr
		r.off += 4
		return rr, true

	case rr.Rtype == TypeAAAA && rdlength == 16:
		if r.off+16 > len(r.data) {
			r.fail()
			return rr, false
		}
		addr, _ := netip.AddrFromSlice(r.data[r.off : r.off+16])
		rr.Data = addr
		r.off += 16
		return rr, true

	default:
		r.skip(rdlength)
		return rr, false
	}
}
