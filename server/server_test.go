package server

import (
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnsgate/dnsgate/config"
)

// fakeUpstream answers every A query with answer and counts queries.
func fakeUpstream(t *testing.T, answer string, hits *atomic.Int64) netip.AddrPort {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	mux := dns.NewServeMux()
	mux.HandleFunc(".", func(w dns.ResponseWriter, r *dns.Msg) {
		if hits != nil {
			hits.Add(1)
		}
		m := new(dns.Msg)
		m.SetReply(r)
		m.RecursionAvailable = true
		m.Answer = append(m.Answer, &dns.A{
			Hdr: dns.RR_Header{Name: r.Question[0].Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 600},
			A:   net.ParseIP(answer),
		})
		_ = w.WriteMsg(m)
	})

	srv := &dns.Server{PacketConn: pc, Handler: mux}
	go func() { _ = srv.ActivateAndServe() }()
	t.Cleanup(func() { _ = srv.Shutdown() })

	return netip.MustParseAddrPort(pc.LocalAddr().String())
}

func writeRules(t *testing.T, lines string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.txt")
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o644))
	return path
}

func testConfig(upstreamAddr netip.AddrPort) *config.Config {
	return &config.Config{
		Binding: config.Binding{Address: "127.0.0.1", Port: 0},
		ExternalDNS: []config.ExternalDNS{
			{Name: "fake", Address: upstreamAddr.String()},
		},
		Cache: config.Cache{
			Limit:   128,
			TTL:     600,
			Timeout: config.Duration{Duration: 2 * time.Second},
		},
		UseFiltering: true,
		Nullroute:    "127.0.0.1",
		Nullroutev6:  "::1",
		DumpFile:     filepath.Join(os.TempDir(), "dnsgate_test.dump"),
	}
}

func startServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()

	s, err := New(cfg)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		s.Run()
		close(done)
	}()
	t.Cleanup(func() {
		s.Finish()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("server did not stop in time")
		}
	})

	return s
}

func query(t *testing.T, addr, qname string, qtype uint16, rd bool) *dns.Msg {
	t.Helper()

	req := new(dns.Msg)
	req.SetQuestion(dns.Fqdn(qname), qtype)
	req.RecursionDesired = rd

	client := &dns.Client{Timeout: 3 * time.Second}
	resp, _, err := client.Exchange(req, addr)
	require.NoError(t, err)
	return resp
}

func Test_BlockedName(t *testing.T) {
	upstreamAddr := fakeUpstream(t, "192.0.2.1", nil)

	cfg := testConfig(upstreamAddr)
	cfg.Blacklist = []string{writeRules(t, "ads.example\n")}
	s := startServer(t, cfg)

	resp := query(t, s.Addr().String(), "ads.example", dns.TypeA, true)

	assert.Equal(t, dns.RcodeSuccess, resp.Rcode)
	assert.True(t, resp.Response)
	assert.True(t, resp.RecursionAvailable)
	require.Len(t, resp.Answer, 1)
	a := resp.Answer[0].(*dns.A)
	assert.Equal(t, "127.0.0.1", a.A.String())
	assert.Equal(t, uint32(AnswerTTL), a.Hdr.Ttl)
	assert.Equal(t, "ads.example.", a.Hdr.Name)
}

func Test_SuffixBlocking(t *testing.T) {
	upstreamAddr := fakeUpstream(t, "192.0.2.1", nil)

	cfg := testConfig(upstreamAddr)
	cfg.Blacklist = []string{writeRules(t, "tracker.net\n")}
	s := startServer(t, cfg)
	addr := s.Addr().String()

	// No label-aligned suffix match: resolved via upstream.
	resp := query(t, addr, "badtracker.net", dns.TypeA, true)
	require.Len(t, resp.Answer, 1)
	assert.Equal(t, "192.0.2.1", resp.Answer[0].(*dns.A).A.String())

	resp = query(t, addr, "a.tracker.net", dns.TypeA, true)
	require.Len(t, resp.Answer, 1)
	assert.Equal(t, "127.0.0.1", resp.Answer[0].(*dns.A).A.String())
}

func Test_WhitelistOverridesBlacklist(t *testing.T) {
	upstreamAddr := fakeUpstream(t, "192.0.2.1", nil)

	cfg := testConfig(upstreamAddr)
	cfg.Blacklist = []string{writeRules(t, "cdn.example\n")}
	cfg.Whitelist = []string{writeRules(t, "ok.cdn.example\n")}
	s := startServer(t, cfg)
	addr := s.Addr().String()

	resp := query(t, addr, "ok.cdn.example", dns.TypeA, true)
	require.Len(t, resp.Answer, 1)
	assert.Equal(t, "192.0.2.1", resp.Answer[0].(*dns.A).A.String())

	resp = query(t, addr, "other.cdn.example", dns.TypeA, true)
	require.Len(t, resp.Answer, 1)
	assert.Equal(t, "127.0.0.1", resp.Answer[0].(*dns.A).A.String())
}

func Test_NoPeriodName(t *testing.T) {
	upstreamAddr := fakeUpstream(t, "192.0.2.1", nil)
	s := startServer(t, testConfig(upstreamAddr))

	resp := query(t, s.Addr().String(), "localhost", dns.TypeA, true)

	assert.Equal(t, dns.RcodeNameError, resp.Rcode)
	assert.Empty(t, resp.Answer)
	require.Len(t, resp.Question, 1)
	assert.Equal(t, "localhost.", resp.Question[0].Name)
}

func Test_RecursionNotDesired(t *testing.T) {
	var hits atomic.Int64
	upstreamAddr := fakeUpstream(t, "192.0.2.1", &hits)
	s := startServer(t, testConfig(upstreamAddr))

	resp := query(t, s.Addr().String(), "example.org", dns.TypeA, false)

	assert.Equal(t, dns.RcodeNameError, resp.Rcode)
	assert.Zero(t, hits.Load())
}

func Test_UnsupportedQtype(t *testing.T) {
	upstreamAddr := fakeUpstream(t, "192.0.2.1", nil)
	s := startServer(t, testConfig(upstreamAddr))

	resp := query(t, s.Addr().String(), "example.org", dns.TypeMX, true)

	assert.Equal(t, dns.RcodeRefused, resp.Rcode)
	require.Len(t, resp.Question, 1)
	assert.Equal(t, "example.org.", resp.Question[0].Name)
}

func Test_AAAARuntimeOption(t *testing.T) {
	upstreamAddr := fakeUpstream(t, "192.0.2.1", nil)

	cfg := testConfig(upstreamAddr)
	cfg.Blacklist = []string{writeRules(t, "ads.example\n")}
	cfg.IPv6 = true
	s := startServer(t, cfg)

	resp := query(t, s.Addr().String(), "ads.example", dns.TypeAAAA, true)

	require.Len(t, resp.Answer, 1)
	assert.Equal(t, "::1", resp.Answer[0].(*dns.AAAA).AAAA.String())
}

func Test_CacheHit(t *testing.T) {
	var hits atomic.Int64
	upstreamAddr := fakeUpstream(t, "93.184.216.34", &hits)
	s := startServer(t, testConfig(upstreamAddr))
	addr := s.Addr().String()

	resp := query(t, addr, "example.org", dns.TypeA, true)
	require.Len(t, resp.Answer, 1)
	assert.Equal(t, "93.184.216.34", resp.Answer[0].(*dns.A).A.String())

	resp = query(t, addr, "example.org", dns.TypeA, true)
	require.Len(t, resp.Answer, 1)
	assert.Equal(t, "93.184.216.34", resp.Answer[0].(*dns.A).A.String())

	assert.Equal(t, int64(1), hits.Load())
}

func Test_AdminOperations(t *testing.T) {
	upstreamAddr := fakeUpstream(t, "192.0.2.1", nil)

	blacklist := writeRules(t, "ads.example\n")
	cfg := testConfig(upstreamAddr)
	cfg.Blacklist = []string{blacklist}
	s := startServer(t, cfg)
	addr := s.Addr().String()

	// df: filtering off lets the blocked name resolve.
	s.SetFiltering(false)
	resp := query(t, addr, "ads.example", dns.TypeA, true)
	require.Len(t, resp.Answer, 1)
	assert.Equal(t, "192.0.2.1", resp.Answer[0].(*dns.A).A.String())

	// ef: filtering back on; the filter runs before the cache, so the
	// sentinel answer wins even over the cached upstream address.
	s.SetFiltering(true)
	s.ResetCache()
	resp = query(t, addr, "ads.example", dns.TypeA, true)
	require.Len(t, resp.Answer, 1)
	assert.Equal(t, "127.0.0.1", resp.Answer[0].(*dns.A).A.String())

	// reload picks up new rules and resets the cache.
	require.NoError(t, os.WriteFile(blacklist, []byte("other.example\n"), 0o644))
	require.NoError(t, s.Reload())
	resp = query(t, addr, "ads.example", dns.TypeA, true)
	require.Len(t, resp.Answer, 1)
	assert.Equal(t, "192.0.2.1", resp.Answer[0].(*dns.A).A.String())

	// dump writes the cache listing.
	require.NoError(t, s.DumpCache())
	data, err := os.ReadFile(cfg.DumpFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ads.example")

	length, limit := s.CacheStats()
	assert.Equal(t, 128, limit)
	assert.NotZero(t, length)
	assert.NotEmpty(t, s.Events())
}

func Test_ConstructionFailures(t *testing.T) {
	upstreamAddr := fakeUpstream(t, "192.0.2.1", nil)

	cfg := testConfig(upstreamAddr)
	cfg.Binding.Port = 70000
	_, err := New(cfg)
	assert.ErrorIs(t, err, ErrInvalidPort)

	cfg = testConfig(upstreamAddr)
	cfg.ExternalDNS[0].Targets = []string{"example.org"}
	_, err = New(cfg)
	assert.Error(t, err)

	cfg = testConfig(upstreamAddr)
	cfg.Blacklist = []string{"/nonexistent/rules.txt"}
	_, err = New(cfg)
	assert.Error(t, err)
}

func Test_ParseMonitoring(t *testing.T) {
	mask := parseMonitoring([]string{"denied", "cache", "bogus"})
	assert.NotZero(t, mask&monitorDenied)
	assert.NotZero(t, mask&monitorCache)
	assert.Zero(t, mask&monitorRecursive)
}
