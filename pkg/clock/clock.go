package clock

import (
	"fmt"
	"time"

	"github.com/beevik/ntp"
)

// Offset asks an NTP server how far the local clock is off. An empty server
// means no reference is configured and the offset is zero.
func Offset(server string, timeout time.Duration) (time.Duration, error) {
	if server == "" {
		return 0, nil
	}
	resp, err := ntp.QueryWithOptions(server, ntp.QueryOptions{Timeout: timeout})
	if err != nil {
		return 0, fmt.Errorf("query ntp server %s err: %w", server, err)
	}
	if err = resp.Validate(); err != nil {
		return 0, fmt.Errorf("invalid ntp response from %s: %w", server, err)
	}

	return resp.ClockOffset, nil
}
