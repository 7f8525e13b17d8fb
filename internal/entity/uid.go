package entity

import (
	"fmt"
	"strings"
	"time"
)

// Do NOT change these once a server has started generating UIDs, or you risk
// streaks of duplicate UIDs across restarts. The multiplier gives the counter
// 100 microsecond ticks; the charset leaves out "I", "l", "O", and "S" so
// time codes stay distinguishable regardless of font. At this precision the
// alphabet yields eight-digit time codes until late 2375 and nine-digit codes
// well into the 26th millennium.
const (
	uidTimecodeMultiplier = 10000
	uidTimecodeCharset    = "0123456789aAbBcCdDeEfFgGhHijJkKLmM" +
		"nNopPqQrRstTuUvVwWxXyYzZ"
)

// nextTimecode advances the process-wide monotonic counter: the candidate is
// the current coarse time in 100 µs ticks; when it exceeds the stored counter
// it is adopted, otherwise the counter increments by one. Bursts faster than
// clock resolution therefore still get strictly increasing codes, at the cost
// of the counter running ahead of wall clock until it catches up. The counter
// does not survive restarts; see DESIGN.md.
func (r *Registry) nextTimecode() int64 {
	r.uidMu.Lock()
	defer r.uidMu.Unlock()
	candidate := r.now().UnixMicro() / (1_000_000 / uidTimecodeMultiplier)
	if candidate > r.uidTimecode {
		r.uidTimecode = candidate
	} else {
		r.uidTimecode++
	}
	return r.uidTimecode
}

// newUID creates an identifier of the form "C-TTTTTTTT", where C is the
// entity type's code and T the base-58 time code (e.g. "E-6jQZ4zvH").
func (r *Registry) newUID(code string) string {
	uid := code + "-" + encodeTimecode(r.nextTimecode())
	r.metrics.uidIssued()
	return uid
}

func encodeTimecode(n int64) string {
	if n <= 0 {
		return uidTimecodeCharset[:1]
	}
	base := int64(len(uidTimecodeCharset))
	var buf [16]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = uidTimecodeCharset[n%base]
		n /= base
	}
	return string(buf[i:])
}

func decodeTimecode(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty timecode")
	}
	base := int64(len(uidTimecodeCharset))
	var n int64
	for i := 0; i < len(s); i++ {
		idx := strings.IndexByte(uidTimecodeCharset, s[i])
		if idx < 0 {
			return 0, fmt.Errorf("invalid timecode character %q", s[i])
		}
		n = n*base + int64(idx)
	}
	return n, nil
}

// SplitUID breaks an identifier into its type code and time code.
func SplitUID(uid string) (code, timecode string, err error) {
	i := strings.IndexByte(uid, '-')
	if i <= 0 || i == len(uid)-1 {
		return "", "", fmt.Errorf("malformed uid %q", uid)
	}
	return uid[:i], uid[i+1:], nil
}

// UIDTime extracts the creation time encoded in an identifier. Identifiers
// minted during a burst carry a counter that ran ahead of the clock, so the
// result is never earlier than the actual creation time of an earlier UID.
func UIDTime(uid string) (time.Time, error) {
	_, tc, err := SplitUID(uid)
	if err != nil {
		return time.Time{}, err
	}
	n, err := decodeTimecode(tc)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMicro(n * (1_000_000 / uidTimecodeMultiplier)), nil
}
