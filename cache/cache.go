// Package cache implements the bounded answer cache. A resolve consults
// the cache first and forwards to the routed upstream on a miss; results
// carry a Source tag used by monitoring. Eviction removes expired entries
// first, then falls back to least-recent use.
package cache

import (
	"container/list"
	"net/netip"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"

	"github.com/dnsgate/dnsgate/dnswire"
	"github.com/dnsgate/dnsgate/upstream"
)

// Source tells where an answer came from.
type Source int

// Resolve outcomes.
const (
	SourceCache Source = iota
	SourceRecursive
	SourceNXDomain
	SourceFailure
)

func (s Source) String() string {
	switch s {
	case SourceCache:
		return "cache"
	case SourceRecursive:
		return "recursive"
	case SourceNXDomain:
		return "nxdomain"
	case SourceFailure:
		return "failure"
	}
	return "unknown"
}

// Cache is safe for concurrent use; a single mutex covers the index and
// the recency order. Identical in-flight upstream lookups are collapsed.
type Cache struct {
	mu      sync.Mutex
	entries map[uint64]*list.Element
	order   *list.List // front = most recently used

	limit  int
	maxTTL time.Duration

	table  *upstream.Table
	client *upstream.Client
	group  singleflight.Group
}

type entry struct {
	key       uint64
	name      string
	qtype     uint16
	addr      netip.Addr
	upstream  string
	inserted  time.Time
	expiresAt time.Time
}

// New builds a cache bounded to limit entries. maxTTL caps upstream record
// TTLs and substitutes for zero TTLs.
func New(limit int, maxTTL time.Duration, table *upstream.Table, client *upstream.Client) *Cache {
	if limit < 1 {
		limit = 1
	}
	return &Cache{
		entries: make(map[uint64]*list.Element),
		order:   list.New(),
		limit:   limit,
		maxTTL:  maxTTL,
		table:   table,
		client:  client,
	}
}

// Key hashes the lowercased name and qtype into the cache key.
func Key(qname string, qtype uint16) uint64 {
	d := new(xxhash.Digest)

	var buf [2]byte
	buf[0], buf[1] = byte(qtype>>8), byte(qtype)
	_, _ = d.Write(buf[:])

	var c [1]byte
	for i := 0; i < len(qname); i++ {
		c[0] = qname[i]
		if c[0] >= 'A' && c[0] <= 'Z' {
			c[0] += 'a' - 'A'
		}
		_, _ = d.Write(c[:])
	}

	return d.Sum64()
}

type result struct {
	addr     netip.Addr
	upstream string
	source   Source
}

// Resolve returns the address for (qname, qtype), consulting the cache
// first and the routed upstream on a miss. NXDOMAIN and failures are
// never cached.
func (c *Cache) Resolve(qname string, qtype uint16) (netip.Addr, string, Source) {
	key := Key(qname, qtype)

	if addr, name, ok := c.lookup(key); ok {
		return addr, name, SourceCache
	}

	v, _, _ := c.group.Do(strconv.FormatUint(key, 16), func() (any, error) {
		return c.forward(key, qname, qtype), nil
	})

	res := v.(result)
	return res.addr, res.upstream, res.source
}

func (c *Cache) lookup(key uint64) (netip.Addr, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return netip.Addr{}, "", false
	}

	e := el.Value.(*entry)
	if !time.Now().Before(e.expiresAt) {
		c.order.Remove(el)
		delete(c.entries, key)
		return netip.Addr{}, "", false
	}

	c.order.MoveToFront(el)
	return e.addr, e.upstream, true
}

func (c *Cache) forward(key uint64, qname string, qtype uint16) result {
	server := c.table.Resolve(qname)

	resp, err := c.client.Exchange(server, qname, qtype)
	if err != nil {
		return result{source: SourceFailure, upstream: server.Name}
	}

	switch resp.Header.Rcode() {
	case dnswire.RcodeSuccess:
	case dnswire.RcodeNameError:
		return result{source: SourceNXDomain, upstream: server.Name}
	default:
		return result{source: SourceFailure, upstream: server.Name}
	}

	for _, rr := range resp.Answers {
		if rr.Rtype != qtype {
			continue
		}
		c.insert(key, qname, qtype, rr.Data, server.Name, rr.TTL)
		return result{addr: rr.Data, upstream: server.Name, source: SourceRecursive}
	}

	return result{source: SourceFailure, upstream: server.Name}
}

func (c *Cache) insert(key uint64, qname string, qtype uint16, addr netip.Addr, upstreamName string, recordTTL uint32) {
	ttl := time.Duration(recordTTL) * time.Second
	if ttl == 0 || ttl > c.maxTTL {
		ttl = c.maxTTL
	}

	now := time.Now()
	e := &entry{
		key:       key,
		name:      qname,
		qtype:     qtype,
		addr:      addr,
		upstream:  upstreamName,
		inserted:  now,
		expiresAt: now.Add(ttl),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value = e
		c.order.MoveToFront(el)
		return
	}

	if len(c.entries) >= c.limit {
		c.evict(now)
	}
	c.entries[key] = c.order.PushFront(e)
}

// evict removes expired entries first and falls back to the least
// recently used. Called with the lock held; removes at least one entry
// when the cache is non-empty.
func (c *Cache) evict(now time.Time) {
	removed := 0
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		e := el.Value.(*entry)
		if !now.Before(e.expiresAt) {
			c.order.Remove(el)
			delete(c.entries, e.key)
			removed++
		}
		el = prev
	}

	for removed == 0 || len(c.entries) >= c.limit {
		el := c.order.Back()
		if el == nil {
			return
		}
		e := el.Value.(*entry)
		c.order.Remove(el)
		delete(c.entries, e.key)
		removed++
	}
}

// Reset drops all entries.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[uint64]*list.Element)
	c.order.Init()
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Limit returns the configured capacity.
func (c *Cache) Limit() int {
	return c.limit
}
