package server

import (
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/semihalev/zlog/v2"

	"github.com/dnsgate/dnsgate/cache"
	"github.com/dnsgate/dnsgate/dnswire"
)

// worker drains the job queue until the engine stops.
func (s *Server) worker() {
	defer s.wg.Done()

	for s.running.Load() {
		job := s.queue.Pop()
		if job == nil {
			s.queue.Wait(waitTimeout)
			continue
		}
		s.process(job)
	}
}

// process applies the policy to one request and emits the response.
func (s *Server) process(job *Job) {
	q := job.Req.Questions[0]
	qname := q.Name

	blocked, byHeuristic := s.filter.Blocked(qname)

	var (
		addr     netip.Addr
		resolver string
		source   cache.Source
	)

	if blocked {
		addr = s.blocked4
		if q.Qtype == dnswire.TypeAAAA {
			addr = s.blocked6
		}
	} else {
		switch {
		case !strings.Contains(qname, "."):
			// Local host names never reach an upstream.
			source = cache.SourceNXDomain
		case job.Req.Header.Flags&dnswire.FlagRD == 0:
			// The forwarder does not resolve iteratively.
			source = cache.SourceNXDomain
		default:
			addr, resolver, source = s.cache.Resolve(qname, q.Qtype)
		}
	}

	s.monitor(job, blocked, byHeuristic, resolver, addr, source)

	if blocked || source == cache.SourceCache || source == cache.SourceRecursive {
		s.respond(job, addr)
		return
	}

	rcode := dnswire.RcodeServerFailure
	if source == cache.SourceNXDomain {
		rcode = dnswire.RcodeNameError
	}
	s.sendError(job.Req, rcode, job.Addr)
}

// respond sends the single-answer response for a resolved or blocked name.
func (s *Server) respond(job *Job, addr netip.Addr) {
	q := job.Req.Questions[0]

	resp := new(dnswire.Message)
	resp.SetReply(job.Req)
	resp.Answers = []dnswire.ResourceRecord{{
		Name:  q.Name,
		Rtype: q.Qtype,
		Class: q.Class,
		TTL:   AnswerTTL,
		Data:  addr,
	}}

	buf := make([]byte, dnswire.MaxDatagramSize)
	n, err := dnswire.Encode(resp, buf)
	if err != nil {
		zlog.Warn("Response encode failed", "qname", q.Name, "error", err.Error())
		return
	}

	if _, err := s.conn.WriteToUDP(buf[:n], job.Addr); err != nil {
		zlog.Warn("Response send failed", "client", job.Addr.String(), "error", err.Error())
	}
}

// sendError replies with an empty answer section and the given rcode,
// echoing the request id and question. Requests that did not parse a
// question are dropped.
func (s *Server) sendError(req *dnswire.Message, rcode int, raddr *net.UDPAddr) {
	if len(req.Questions) == 0 {
		return
	}

	resp := new(dnswire.Message)
	resp.SetReply(req)
	resp.Header.SetRcode(rcode)

	buf := make([]byte, dnswire.MaxDatagramSize)
	n, err := dnswire.Encode(resp, buf)
	if err != nil {
		zlog.Warn("Error response encode failed", "error", err.Error())
		return
	}

	if _, err := s.conn.WriteToUDP(buf[:n], raddr); err != nil {
		zlog.Warn("Error response send failed", "client", raddr.String(), "error", err.Error())
	}
}

// monitor records the query event and, when the mask allows, logs the
// monitor line.
func (s *Server) monitor(job *Job, blocked, byHeuristic bool, resolver string, addr netip.Addr, source cache.Source) {
	q := job.Req.Questions[0]

	status, show := s.status(blocked, source)

	proto := "4"
	if q.Qtype == dnswire.TypeAAAA {
		proto = "6"
	}

	if byHeuristic {
		resolver = "*"
	}

	address := ""
	if !blocked && addr.IsValid() {
		address = addr.String()
	}

	sourceLabel := "denied"
	if !blocked {
		sourceLabel = source.String()
	}
	queriesTotal.WithLabelValues(qtypeLabel(q.Qtype), sourceLabel).Inc()

	s.events.Push(Event{
		Time:     job.Received,
		Status:   status,
		Client:   job.Addr.IP.String(),
		Proto:    proto,
		Resolver: resolver,
		Address:  address,
		Host:     q.Name,
	})

	if show {
		zlog.Info("Query",
			"client", job.Addr.IP.String(),
			"status", status,
			"proto", proto,
			"resolver", resolver,
			"address", address,
			"host", q.Name,
			"elapsed", time.Since(job.Received).Round(time.Microsecond).String())
	}
}

// status maps the outcome to its two-letter tag and the mask decision.
func (s *Server) status(blocked bool, source cache.Source) (string, bool) {
	if blocked {
		return "DE", s.mask&monitorDenied != 0
	}
	switch source {
	case cache.SourceCache:
		return "CA", s.mask&monitorCache != 0
	case cache.SourceRecursive:
		return "RE", s.mask&monitorRecursive != 0
	case cache.SourceFailure:
		return "FA", s.mask&monitorFailure != 0
	case cache.SourceNXDomain:
		return "NX", s.mask&monitorNXDomain != 0
	}
	return "??", false
}

func qtypeLabel(qtype uint16) string {
	switch qtype {
	case dnswire.TypeA:
		return "A"
	case dnswire.TypeAAAA:
		return "AAAA"
	}
	return "OTHER"
}
