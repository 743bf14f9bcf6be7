package config

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseSize converts a human size like "512K", "2M", "1.5GB" into bytes.
// Suffixes use 1024 multiples, matching what wget2 expects for --quota and
// --limit-rate.
func ParseSize(text string) (int64, error) {
	t := strings.ToUpper(strings.TrimSpace(text))
	if t == "" {
		return 0, fmt.Errorf("empty size")
	}
	multipliers := []struct {
		suffix string
		factor float64
	}{
		{"TB", 1 << 40}, {"GB", 1 << 30}, {"MB", 1 << 20}, {"KB", 1 << 10},
		{"T", 1 << 40}, {"G", 1 << 30}, {"M", 1 << 20}, {"K", 1 << 10},
	}
	for _, m := range multipliers {
		if strings.HasSuffix(t, m.suffix) {
			val, err := strconv.ParseFloat(strings.TrimSuffix(t, m.suffix), 64)
			if err != nil {
				return 0, fmt.Errorf("parse size %q: %w", text, err)
			}
			return int64(val * m.factor), nil
		}
	}
	val, err := strconv.ParseFloat(t, 64)
	if err != nil {
		return 0, fmt.Errorf("parse size %q: %w", text, err)
	}
	return int64(val), nil
}

// FormatSize renders bytes back into the largest whole 1024-based suffix.
func FormatSize(bytes int64) string {
	switch {
	case bytes >= 1<<30:
		return fmt.Sprintf("%dG", bytes/(1<<30))
	case bytes >= 1<<20:
		return fmt.Sprintf("%dM", bytes/(1<<20))
	case bytes >= 1<<10:
		return fmt.Sprintf("%dK", bytes/(1<<10))
	default:
		return strconv.FormatInt(bytes, 10)
	}
}

func parseOptionalSize(text string) (int64, error) {
	if strings.TrimSpace(text) == "" {
		return 0, nil
	}
	return ParseSize(text)
}
