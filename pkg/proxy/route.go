package proxy

import (
	"fmt"
	"strconv"

	"blockfrost-proxy/pkg/config"
	"blockfrost-proxy/pkg/pattern"
)

const hexHashLength = 64

// route picks the upstream authority for path on network, returning the
// resolved_by label used in metrics and logging.
func route(cfg *config.Config, dolosPatterns *pattern.List, path, network string) (resolvedBy, authority string) {
	if cfg.Dolos.Enabled {
		if rule := dolosPatterns.MatchFirst(path); rule != nil && !forcePrimaryForOldBlock(rule, cfg.Dolos.BlockBoundary, path) {
			return "alt", fmt.Sprintf("internal-cardano-%s-minibf.%s:%d", network, cfg.Dolos.DNS, cfg.Dolos.Port)
		}
	}
	return "primary", fmt.Sprintf("blockfrost-%s.%s:%d", network, cfg.Blockfrost.DNS, cfg.Blockfrost.Port)
}

// forcePrimaryForOldBlock implements the genesis-era refinement: a matched
// alternate-pool path whose captured segment is a plain (non-hash) block
// number at or before boundary must still go to the primary pool, since old
// era blocks never landed in the alternate backend.
func forcePrimaryForOldBlock(rule *pattern.Pattern, boundary int64, path string) bool {
	m := rule.FindSubmatch(path)
	if len(m) < 2 {
		return false
	}
	segment := m[1]
	if len(segment) == hexHashLength && isHex(segment) {
		return false
	}
	n, err := strconv.ParseInt(segment, 10, 64)
	if err != nil {
		return false
	}
	return n <= boundary
}

func isHex(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}
