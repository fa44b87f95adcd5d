// Package timecode parses the integer and HH:MM:SS fields users type into
// trailer options.
package timecode

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

var (
	integerPattern = regexp.MustCompile(`^[+-]?[0-9]+$`)

	// Accepted range is [-2^64, 2^64-1].
	minBound = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 64))
	maxBound = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 64), big.NewInt(1))

	sixty = big.NewInt(60)
	hour  = big.NewInt(3600)
)

// ParseBoundedInt parses base-10 integer text. It reports false for anything
// that is not an optionally signed digit string or falls outside [-2^64, 2^64-1].
func ParseBoundedInt(text string) (*big.Int, bool) {
	if !integerPattern.MatchString(text) {
		return nil, false
	}

	v, ok := new(big.Int).SetString(text, 10)
	if !ok {
		return nil, false
	}
	if v.Cmp(minBound) < 0 || v.Cmp(maxBound) > 0 {
		return nil, false
	}
	return v, true
}

// ParseTimecode converts HH:MM:SS into whole seconds. Hours are unbounded;
// minutes and seconds must be below 60 and no component may be negative.
func ParseTimecode(text string) (*big.Int, bool) {
	parts := strings.Split(text, ":")
	if len(parts) != 3 {
		return nil, false
	}

	values := make([]*big.Int, 3)
	for i, p := range parts {
		v, ok := ParseBoundedInt(p)
		if !ok || v.Sign() < 0 {
			return nil, false
		}
		values[i] = v
	}

	hours, minutes, seconds := values[0], values[1], values[2]
	if minutes.Cmp(sixty) >= 0 || seconds.Cmp(sixty) >= 0 {
		return nil, false
	}

	total := new(big.Int).Mul(hours, hour)
	total.Add(total, new(big.Int).Mul(minutes, sixty))
	total.Add(total, seconds)
	return total, true
}

// FormatSeconds renders seconds as HH:MM:SS. Negative input renders as zero.
func FormatSeconds(secs int64) string {
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
}
