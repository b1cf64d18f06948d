package realtime

import "time"

const (
	// The feed is server -> client; inbound frames are never parsed.
	maxFrameBytes = 4 << 10 // 4 KiB

	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second
)
