package config

// Presence 长连接会话
type Presence struct {
	IdleTimeout  *string `json:"idleTimeout"`
	PingInterval *string `json:"pingInterval"`
	WriteTimeout *string `json:"writeTimeout"`
	SendQueue    *int    `json:"sendQueue"`
	MaxFrameSize *int64  `json:"maxFrameSize"`
}
