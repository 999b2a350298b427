package config

import (
	"fmt"
	"time"
)

// Config holds all configuration for the gateway
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Engine    EngineConfig    `yaml:"engine"`
	Backends  []BackendConfig `yaml:"backends"`
	Transport TransportConfig `yaml:"transport"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds the embedded HTTP/SSE server configuration
type ServerConfig struct {
	Host                string              `yaml:"host"`
	Port                int                 `yaml:"port"`
	ServeOnLocalNetwork bool                `yaml:"serve_on_local_network"`
	AdvertiseBonjour    bool                `yaml:"advertise_bonjour"`
	ServiceName         string              `yaml:"service_name"`
	AuthToken           string              `yaml:"auth_token"`
	AllowedOrigins      []string            `yaml:"allowed_origins"`
	ReadTimeout         time.Duration       `yaml:"read_timeout"`
	ShutdownTimeout     time.Duration       `yaml:"shutdown_timeout"`
	RequestLimits       ServerRequestLimits `yaml:"request_limits"`
	RequestLogging      bool                `yaml:"request_logging"`
}

// GetAddress returns the server address in host:port format
func (s *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ServerRequestLimits defines request size limits
type ServerRequestLimits struct {
	MaxBodySize   int64 `yaml:"max_body_size"`
	MaxHeaderSize int64 `yaml:"max_header_size"`
}

// EngineConfig points the gateway at the local inference backend it fronts
type EngineConfig struct {
	BaseURL        string        `yaml:"base_url"`
	Model          string        `yaml:"model"`
	AuthHeader     string        `yaml:"auth_header"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// BackendConfig describes one externally configured remote backend
type BackendConfig struct {
	Name           string   `yaml:"name"`
	Type           string   `yaml:"type"`
	BaseURL        string   `yaml:"base_url"`
	AuthHeader     string   `yaml:"auth_header"`
	DefaultModel   string   `yaml:"default_model"`
	CustomModelIDs []string `yaml:"custom_model_ids"`
	RelayDeviceID  string   `yaml:"relay_device_id"`
}

// TransportConfig tunes LAN/cloud transport selection
type TransportConfig struct {
	CheckInterval           time.Duration `yaml:"check_interval"`
	ProbeTimeout            time.Duration `yaml:"probe_timeout"`
	RequestTimeout          time.Duration `yaml:"request_timeout"`
	MetadataRefreshInterval time.Duration `yaml:"metadata_refresh_interval"`
	NetworkNameCacheTTL     time.Duration `yaml:"network_name_cache_ttl"`
	ManualLANOverride       bool          `yaml:"manual_lan_override"`
	LocalNetworkName        string        `yaml:"local_network_name"`
	RelayServiceURL         string        `yaml:"relay_service_url"`
	RelayServiceToken       string        `yaml:"relay_service_token"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}
