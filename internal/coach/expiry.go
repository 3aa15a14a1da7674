package coach

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MaxExpiryDays bounds day and week counts.
const MaxExpiryDays = 3650

// ParseExpiry accepts Go durations ("36h", "90m") plus day and week counts
// ("3d", "2w"). The result must be positive.
func ParseExpiry(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	var d time.Duration
	switch unit := s[len(s)-1]; unit {
	case 'd', 'w':
		n, err := strconv.Atoi(s[:len(s)-1])
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		if n > MaxExpiryDays {
			return 0, fmt.Errorf("duration %q exceeds %d days", s, MaxExpiryDays)
		}
		days := n
		if unit == 'w' {
			days *= 7
		}
		if days > MaxExpiryDays {
			return 0, fmt.Errorf("duration %q exceeds %d days", s, MaxExpiryDays)
		}
		d = time.Duration(days) * 24 * time.Hour
	default:
		var err error
		if d, err = time.ParseDuration(s); err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", s)
	}
	return d, nil
}
