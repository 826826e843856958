package telephony

import "time"

// Connection limits
const (
	// Media frames are ~20 ms of base64 μ-law; control frames are small JSON
	MaxMessageBytes = 64 << 10

	DefaultWriteTimeout = 2 * time.Second

	// Close reasons must fit in a control frame
	MaxCloseReason = 120
)
