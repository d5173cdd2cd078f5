package server

import (
	"net"

	"github.com/semihalev/zlog/v2"
	"github.com/yl2chen/cidranger"
)

// accessList filters client addresses against the configured CIDRs.
// Queries from disallowed sources are dropped before parsing.
type accessList struct {
	ranger cidranger.Ranger
}

// newAccessList returns nil when cidrs is empty, meaning no restriction.
func newAccessList(cidrs []string) *accessList {
	if len(cidrs) == 0 {
		return nil
	}

	a := &accessList{ranger: cidranger.NewPCTrieRanger()}
	for _, cidr := range cidrs {
		_, ipnet, err := net.ParseCIDR(cidr)
		if err != nil {
			zlog.Error("Access list parse cidr failed", "cidr", cidr, "error", err.Error())
			continue
		}
		_ = a.ranger.Insert(cidranger.NewBasicRangerEntry(*ipnet))
	}

	return a
}

func (a *accessList) Allowed(ip net.IP) bool {
	allowed, _ := a.ranger.Contains(ip)
	return allowed
}
