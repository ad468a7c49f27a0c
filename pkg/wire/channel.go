// Package wire holds the realtime protocol shared by the server and the Go
// client: channel names, websocket frames and the notification envelope.
package wire

import (
	"fmt"
	"strconv"
	"strings"
)

// UserChannelPrefix prefixes every private per-user notification channel.
const UserChannelPrefix = "private-user-notifications-"

// ChannelForUser returns the private notification channel of userID.
func ChannelForUser(userID uint) string {
	return UserChannelPrefix + strconv.FormatUint(uint64(userID), 10)
}

// ParseUserChannel extracts the user id embedded in a channel name. Only the
// canonical decimal form is accepted; leading zeros and signs are rejected.
func ParseUserChannel(channel string) (uint, error) {
	raw, ok := strings.CutPrefix(channel, UserChannelPrefix)
	if !ok {
		return 0, fmt.Errorf("not a user notification channel: %q", channel)
	}
	id, err := strconv.ParseUint(raw, 10, strconv.IntSize)
	if err != nil || id == 0 || strconv.FormatUint(id, 10) != raw {
		return 0, fmt.Errorf("invalid user id in channel %q", channel)
	}
	return uint(id), nil
}
