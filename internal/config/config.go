package config

import "time"

// DemoConfig is the root configuration for the robustws-demo CLI.
type DemoConfig struct {
	Instance    InstanceConfig   `yaml:"instance"`
	Connection  ConnectionConfig `yaml:"connection"`
	Resend      ResendConfig     `yaml:"resend"`
	Connections []EndpointConfig `yaml:"connections"`
}

// InstanceConfig identifies this demo run.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// EndpointConfig names one robust connection the demo should open, for
// the multi-connection fan-out mode.
type EndpointConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// ConnectionConfig holds RobustConnection construction settings.
type ConnectionConfig struct {
	URL         string        `yaml:"url"`
	Timeout     time.Duration `yaml:"timeout"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// ResendConfig toggles the BufferedResendConnection decorator.
type ResendConfig struct {
	Enabled bool `yaml:"enabled"`
}
