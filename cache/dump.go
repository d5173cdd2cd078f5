package cache

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/dnsgate/dnsgate/dnswire"
)

// Dump writes a human-readable listing of live entries to path, most
// recently used first. Diagnostic only; expired entries are skipped.
func (c *Cache) Dump(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	now := time.Now()

	c.mu.Lock()
	for el := c.order.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry)
		if !now.Before(e.expiresAt) {
			continue
		}
		fmt.Fprintf(w, "%-40s %-5s %-40s %-10s expires in %s\n",
			e.name, qtypeString(e.qtype), e.addr, e.upstream,
			e.expiresAt.Sub(now).Round(time.Second))
	}
	c.mu.Unlock()

	return w.Flush()
}

func qtypeString(qtype uint16) string {
	switch qtype {
	case dnswire.TypeA:
		return "A"
	case dnswire.TypeAAAA:
		return "AAAA"
	}
	return fmt.Sprintf("%d", qtype)
}
