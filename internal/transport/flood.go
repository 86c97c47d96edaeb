package transport

import (
	"regexp"
	"strconv"
	"time"
)

// Telegram reports rate limits as MTProto error names (FLOOD_WAIT_30,
// FLOOD_PREMIUM_WAIT_5) or, on the Bot API, as "retry after 30".
var retryAfterPatterns = []*regexp.Regexp{
	regexp.MustCompile(`FLOOD_(?:PREMIUM_)?WAIT_(\d+)`),
	regexp.MustCompile(`(?i)retry after (\d+)`),
	regexp.MustCompile(`(?i)a wait of (\d+) seconds`),
}

// floodFallback is used when a flood error carries no parsable wait.
const floodFallback = 15 * time.Second

// ParseRetryAfter extracts the server-requested wait from an error message.
// It reports false if msg is not a rate-limit error.
func ParseRetryAfter(msg string) (time.Duration, bool) {
	for _, re := range retryAfterPatterns {
		m := re.FindStringSubmatch(msg)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			return floodFallback, true
		}
		return time.Duration(n) * time.Second, true
	}
	return 0, false
}
