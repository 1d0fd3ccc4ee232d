package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *DemoConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Connection.URL == "" && len(c.Connections) == 0 {
		return errors.New("connection.url or connections must be set")
	}

	for i, ep := range c.Connections {
		if ep.URL == "" {
			return fmt.Errorf("connections[%d].url is required", i)
		}
	}

	if c.Connection.Timeout < 0 {
		return errors.New("connection.timeout must be >= 0")
	}
	if c.Connection.DialTimeout <= 0 {
		return errors.New("connection.dial_timeout must be > 0")
	}

	return nil
}
