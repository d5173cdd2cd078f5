// Package server owns the request-processing pipeline: the UDP receive
// loop, the job queue, the worker pool and the engine lifecycle around
// them. One receiver parses and admits datagrams; NumThreads workers
// apply policy, consult the cache and emit responses.
package server

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/semihalev/zlog/v2"

	"github.com/dnsgate/dnsgate/cache"
	"github.com/dnsgate/dnsgate/config"
	"github.com/dnsgate/dnsgate/dnswire"
	"github.com/dnsgate/dnsgate/filter"
	"github.com/dnsgate/dnsgate/upstream"
)

const (
	// NumThreads is the worker pool size.
	NumThreads = 4

	// AnswerTTL is the TTL of every answer the forwarder emits.
	AnswerTTL = 300

	readTimeout = 2 * time.Second
	waitTimeout = time.Second
)

// ErrInvalidPort means the configured binding port is out of range.
var ErrInvalidPort = errors.New("server: invalid port number")

type monitorMask uint32

const (
	monitorDenied monitorMask = 1 << iota
	monitorCache
	monitorRecursive
	monitorFailure
	monitorNXDomain
)

func parseMonitoring(names []string) monitorMask {
	var mask monitorMask
	for _, name := range names {
		switch strings.ToLower(name) {
		case "denied":
			mask |= monitorDenied
		case "cache":
			mask |= monitorCache
		case "recursive":
			mask |= monitorRecursive
		case "failure":
			mask |= monitorFailure
		case "nxdomain":
			mask |= monitorNXDomain
		default:
			zlog.Warn("Unknown monitoring flag", "flag", name)
		}
	}
	return mask
}

// Server is the engine: it owns the socket, the queue, the worker pool,
// the filter, the cache and the upstream table.
type Server struct {
	conn  *net.UDPConn
	queue *jobQueue

	filter *filter.Filter
	cache  *cache.Cache
	table  *upstream.Table

	events  *EventRing
	access  *accessList
	limiter *rateLimiter

	mask     monitorMask
	blocked4 netip.Addr
	blocked6 netip.Addr
	ipv6     bool
	dumpFile string

	running atomic.Bool
	wg      sync.WaitGroup
}

// New validates the configuration, binds the UDP socket and loads the
// rule files. Construction failures are fatal; the engine never starts
// half-built.
func New(cfg *config.Config) (*Server, error) {
	if cfg.Binding.Port < 0 || cfg.Binding.Port > 65535 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPort, cfg.Binding.Port)
	}

	ip := net.ParseIP(cfg.Binding.Address)
	if ip == nil {
		return nil, fmt.Errorf("server: invalid binding address %q", cfg.Binding.Address)
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: ip, Port: cfg.Binding.Port})
	if err != nil {
		return nil, fmt.Errorf("server: bind %s:%d: %w", cfg.Binding.Address, cfg.Binding.Port, err)
	}

	servers, err := buildServers(cfg.ExternalDNS)
	if err != nil {
		conn.Close()
		return nil, err
	}
	table, err := upstream.NewTable(servers)
	if err != nil {
		conn.Close()
		return nil, err
	}

	f, err := filter.New(cfg.Blacklist, cfg.Whitelist, cfg.UseFiltering, cfg.UseHeuristics)
	if err != nil {
		conn.Close()
		return nil, err
	}

	blocked4, err := netip.ParseAddr(cfg.Nullroute)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("server: invalid nullroute: %w", err)
	}
	blocked6, err := netip.ParseAddr(cfg.Nullroutev6)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("server: invalid nullroutev6: %w", err)
	}

	client := upstream.NewClient(cfg.Cache.Timeout.Duration)

	s := &Server{
		conn:     conn,
		queue:    newJobQueue(),
		filter:   f,
		cache:    cache.New(cfg.Cache.Limit, time.Duration(cfg.Cache.TTL)*time.Second, table, client),
		table:    table,
		events:   new(EventRing),
		access:   newAccessList(cfg.AccessList),
		limiter:  newRateLimiter(cfg.ClientRateLimit),
		mask:     parseMonitoring(cfg.Monitoring),
		blocked4: blocked4,
		blocked6: blocked6,
		ipv6:     cfg.IPv6,
		dumpFile: cfg.DumpFile,
	}

	return s, nil
}

func buildServers(entries []config.ExternalDNS) ([]upstream.Server, error) {
	servers := make([]upstream.Server, 0, len(entries))
	for _, e := range entries {
		addr, err := parseAddrPort(e.Address)
		if err != nil {
			return nil, fmt.Errorf("server: upstream %s: %w", e.Name, err)
		}
		servers = append(servers, upstream.Server{Name: e.Name, Addr: addr, Targets: e.Targets})
	}
	return servers, nil
}

// parseAddrPort accepts "ip" or "ip:port"; a bare address implies :53.
func parseAddrPort(s string) (netip.AddrPort, error) {
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return ap, nil
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.AddrPort{}, err
	}
	return netip.AddrPortFrom(addr, 53), nil
}

// Run starts the worker pool and executes the receive loop on the
// calling goroutine until Finish is called. It returns after all workers
// have drained and the socket is closed.
func (s *Server) Run() {
	s.running.Store(true)

	for i := 0; i < NumThreads; i++ {
		s.wg.Add(1)
		go s.worker()
	}

	zlog.Info("DNS forwarder listening...", "net", "udp", "addr", s.conn.LocalAddr().String())

	s.receive()

	s.wg.Wait()
	_ = s.conn.Close()
	zlog.Info("DNS forwarder stopped")
}

// receive is the admission loop: it parses datagrams, rejects what no
// worker should ever see, and enqueues the rest.
func (s *Server) receive() {
	buf := make([]byte, dnswire.MaxDatagramSize)

	for s.running.Load() {
		_ = s.conn.SetReadDeadline(time.Now().Add(readTimeout))

		n, raddr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if os.IsTimeout(err) {
				continue
			}
			if s.running.Load() {
				zlog.Error("UDP receive failed", "error", err.Error())
			}
			return
		}

		if s.access != nil && !s.access.Allowed(raddr.IP) {
			continue
		}
		if s.limiter != nil && !s.limiter.Allow(raddr.IP) {
			continue
		}

		req, err := dnswire.Decode(buf[:n])
		if err != nil {
			// No response to unparseable input; the source may be spoofed.
			continue
		}

		if len(req.Questions) != 1 {
			s.sendError(req, dnswire.RcodeRefused, raddr)
			continue
		}
		if !s.allowedQtype(req.Questions[0].Qtype) {
			queriesTotal.WithLabelValues(qtypeLabel(req.Questions[0].Qtype), "refused").Inc()
			s.sendError(req, dnswire.RcodeRefused, raddr)
			continue
		}

		s.queue.Push(&Job{Addr: raddr, Req: req, Received: time.Now()})
	}
}

func (s *Server) allowedQtype(qtype uint16) bool {
	if qtype == dnswire.TypeA {
		return true
	}
	return qtype == dnswire.TypeAAAA && s.ipv6
}

// Finish requests a stop. The receiver observes it within one read
// timeout, workers within one queue wait.
func (s *Server) Finish() {
	s.running.Store(false)
}

// Addr returns the bound UDP address.
func (s *Server) Addr() net.Addr {
	return s.conn.LocalAddr()
}

// Reload re-reads the rule files and drops the cache. Transactional: on
// error the previous trees stay in place and the cache is kept.
func (s *Server) Reload() error {
	if err := s.filter.Reload(); err != nil {
		return err
	}
	s.cache.Reset()
	return nil
}

// SetFiltering toggles the filtering mode.
func (s *Server) SetFiltering(on bool) {
	s.filter.SetFiltering(on)
	zlog.Info("Filtering mode changed", "enabled", on)
}

// Filtering returns the filtering mode.
func (s *Server) Filtering() bool { return s.filter.Filtering() }

// SetHeuristics toggles the random-domain heuristic.
func (s *Server) SetHeuristics(on bool) {
	s.filter.SetHeuristics(on)
	zlog.Info("Heuristics mode changed", "enabled", on)
}

// Heuristics returns the heuristic mode.
func (s *Server) Heuristics() bool { return s.filter.Heuristics() }

// DumpCache writes the cache listing to the configured dump file.
func (s *Server) DumpCache() error {
	zlog.Info("Dumping DNS cache", "path", s.dumpFile)
	return s.cache.Dump(s.dumpFile)
}

// ResetCache drops all cache entries.
func (s *Server) ResetCache() {
	s.cache.Reset()
}

// CacheStats returns the live entry count and the capacity.
func (s *Server) CacheStats() (length, limit int) {
	return s.cache.Len(), s.cache.Limit()
}

// Events returns a snapshot of recent query events.
func (s *Server) Events() []Event {
	return s.events.List()
}

// Filter exposes the filter for the rule-file watcher.
func (s *Server) Filter() *filter.Filter {
	return s.filter
}
