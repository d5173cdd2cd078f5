// Package filter decides whether a query name is policy-denied. It holds
// the blacklist and whitelist name trees plus the runtime mode flags, and
// owns the rule-file loading and reload machinery.
package filter

import (
	"strings"
	"sync/atomic"

	"github.com/dnsgate/dnsgate/nametree"
)

// Filter combines whitelist, blacklist and the random-domain heuristic.
// Trees are read-only after load; a reload builds fresh trees off-line and
// swaps the pointers atomically. Mode flags are atomics so console and API
// writers never block workers.
type Filter struct {
	whitelist atomic.Pointer[nametree.Tree]
	blacklist atomic.Pointer[nametree.Tree]

	filtering  atomic.Bool
	heuristics atomic.Bool

	blacklistFiles []string
	whitelistFiles []string
}

// New returns a filter with rules loaded from the given file lists.
func New(blacklistFiles, whitelistFiles []string, filtering, heuristics bool) (*Filter, error) {
	f := &Filter{
		blacklistFiles: blacklistFiles,
		whitelistFiles: whitelistFiles,
	}
	f.whitelist.Store(nametree.New())
	f.blacklist.Store(nametree.New())
	f.filtering.Store(filtering)
	f.heuristics.Store(heuristics)

	if err := f.Reload(); err != nil {
		return nil, err
	}
	return f, nil
}

// Blocked applies the policy order: whitelist wins, then the heuristic,
// then the blacklist. byHeuristic is set when the heuristic made the call.
func (f *Filter) Blocked(qname string) (blocked, byHeuristic bool) {
	if !f.filtering.Load() {
		return false, false
	}

	qname = strings.ToLower(qname)

	if f.whitelist.Load().Match(qname) {
		return false, false
	}
	if f.heuristics.Load() && IsRandomLabel(qname) {
		return true, true
	}
	return f.blacklist.Load().Match(qname), false
}

// Reload re-reads the rule files into new trees and swaps them in. On any
// file error the previous trees are kept untouched.
func (f *Filter) Reload() error {
	blacklist, err := loadRules(f.blacklistFiles)
	if err != nil {
		return err
	}
	whitelist, err := loadRules(f.whitelistFiles)
	if err != nil {
		return err
	}

	f.blacklist.Store(blacklist)
	f.whitelist.Store(whitelist)
	return nil
}

// SetFiltering toggles the filtering mode.
func (f *Filter) SetFiltering(on bool) { f.filtering.Store(on) }

// Filtering returns the filtering mode.
func (f *Filter) Filtering() bool { return f.filtering.Load() }

// SetHeuristics toggles the random-domain heuristic.
func (f *Filter) SetHeuristics(on bool) { f.heuristics.Store(on) }

// Heuristics returns the heuristic mode.
func (f *Filter) Heuristics() bool { return f.heuristics.Load() }

// RuleFiles returns the configured rule file paths, for the watcher.
func (f *Filter) RuleFiles() []string {
	files := make([]string, 0, len(f.blacklistFiles)+len(f.whitelistFiles))
	files = append(files, f.blacklistFiles...)
	files = append(files, f.whitelistFiles...)
	return files
}
