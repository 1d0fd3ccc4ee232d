package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultDialTimeout = 10 * time.Second
)

func (c *DemoConfig) applyDefaults() {
	if c.Connection.Timeout == 0 {
		c.Connection.Timeout = DefaultTimeout
	}
	if c.Connection.DialTimeout == 0 {
		c.Connection.DialTimeout = DefaultDialTimeout
	}
	for i := range c.Connections {
		if c.Connections[i].Name == "" {
			c.Connections[i].Name = c.Connections[i].URL
		}
	}
}
