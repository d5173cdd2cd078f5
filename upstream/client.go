package upstream

import (
	"errors"
	"math/rand/v2"
	"net"
	"os"
	"strings"
	"time"

	"github.com/dnsgate/dnsgate/dnswire"
)

// ErrTimeout means no matching reply arrived within the exchange deadline.
var ErrTimeout = errors.New("upstream: exchange timed out")

// Client performs synchronous UDP exchanges with upstream resolvers.
type Client struct {
	timeout time.Duration
}

// NewClient returns a client with the given per-exchange timeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Client{timeout: timeout}
}

// Exchange sends a recursive query for (qname, qtype) to server and waits
// for the reply carrying the same transaction ID and question. Replies
// that fail to decode or belong to another transaction are ignored until
// the deadline passes.
func (c *Client) Exchange(server Server, qname string, qtype uint16) (*dnswire.Message, error) {
	conn, err := net.DialUDP("udp", nil, net.UDPAddrFromAddrPort(server.Addr))
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	req := &dnswire.Message{
		Header:    dnswire.Header{ID: uint16(rand.Uint32()), Flags: dnswire.FlagRD},
		Questions: []dnswire.Question{{Name: qname, Qtype: qtype, Class: dnswire.ClassINET}},
	}

	buf := make([]byte, dnswire.MaxDatagramSize)
	n, err := dnswire.Encode(req, buf)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(c.timeout)
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, err
	}
	if _, err := conn.Write(buf[:n]); err != nil {
		return nil, err
	}

	in := make([]byte, dnswire.MaxDatagramSize)
	for {
		n, err := conn.Read(in)
		if err != nil {
			if os.IsTimeout(err) {
				return nil, ErrTimeout
			}
			return nil, err
		}

		resp, err := dnswire.Decode(in[:n])
		if err != nil {
			continue
		}
		if !matches(req, resp) {
			continue
		}
		return resp, nil
	}
}

func matches(req, resp *dnswire.Message) bool {
	if resp.Header.ID != req.Header.ID || resp.Header.Flags&dnswire.FlagQR == 0 {
		return false
	}
	if len(resp.Questions) != 1 {
		return false
	}
	q, rq := req.Questions[0], resp.Questions[0]
	return rq.Qtype == q.Qtype && rq.Class == q.Class && strings.EqualFold(rq.Name, q.Name)
}
