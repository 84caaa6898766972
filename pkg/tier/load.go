package tier

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Parse decodes a tiers TOML document into a name -> Tier map.
func Parse(data []byte) (map[string]Tier, error) {
	var doc document
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing tiers document: %w", err)
	}

	out := make(map[string]Tier, len(doc.Tiers))
	for _, td := range doc.Tiers {
		if td.Name == "" {
			return nil, fmt.Errorf("tier entry missing name")
		}
		windows := make([]RateWindow, 0, len(td.Rates))
		for _, rd := range td.Rates {
			if rd.Limit < 0 {
				return nil, fmt.Errorf("tier %q: rate limit must not be negative, got %d", td.Name, rd.Limit)
			}
			interval, err := ParseDuration(rd.Interval)
			if err != nil {
				return nil, fmt.Errorf("tier %q: %w", td.Name, err)
			}
			windows = append(windows, RateWindow{Limit: rd.Limit, Interval: interval})
		}
		if len(windows) == 0 {
			return nil, fmt.Errorf("tier %q: must declare at least one rate window", td.Name)
		}
		out[td.Name] = Tier{Name: td.Name, Windows: windows}
	}
	return out, nil
}

// LoadFile reads and parses the tiers document at path.
func LoadFile(path string) (map[string]Tier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tiers file %s: %w", path, err)
	}
	return Parse(data)
}
