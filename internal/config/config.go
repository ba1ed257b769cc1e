// Package config loads the simulator's JSON configuration file. Every field
// is a pointer so an absent key falls back to its default through the Get
// accessors; command-line flags override loaded values.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Defaults.
const (
	DefaultListenAddr        = ":80"
	DefaultAdminAddr         = ""
	DefaultDiscoveryPort     = 55555
	DefaultDiscoveryInterval = 5 * time.Second
	DefaultLatitudeDeg       = 47.6
	DefaultLongitudeDeg      = -122.3
	DefaultImageDir          = "images"
	DefaultCatalogPath       = "catalog.db"
	DefaultSerialNumber      = "8675309"
)

// SimConfig is the on-disk configuration shape.
type SimConfig struct {
	// ListenAddr is the TCP address of the dual HTTP/WebSocket port.
	ListenAddr *string `json:"listen_addr,omitempty"`
	// AdminAddr enables the debug/admin HTTP server when non-empty.
	AdminAddr *string `json:"admin_addr,omitempty"`

	DiscoveryPort        *int `json:"discovery_port,omitempty"`
	DiscoveryIntervalSec *int `json:"discovery_interval_sec,omitempty"`

	// Observer location, degrees.
	LatitudeDeg  *float64 `json:"latitude_deg,omitempty"`
	LongitudeDeg *float64 `json:"longitude_deg,omitempty"`

	ImageDir    *string `json:"image_dir,omitempty"`
	CatalogPath *string `json:"catalog_path,omitempty"`

	SerialNumber *string `json:"serial_number,omitempty"`

	// FakeInitialize makes RunInitialize report success after one second
	// instead of running the full simulated sweep.
	FakeInitialize *bool `json:"fake_initialize,omitempty"`

	// HandpadPort names a serial device for the optional hand controller.
	HandpadPort *string `json:"handpad_port,omitempty"`

	// Seed fixes the simulation's random draws for reproducible runs.
	Seed *uint64 `json:"seed,omitempty"`
}

// Load reads a config file. A missing path returns an empty config so every
// accessor falls back to its default.
func Load(path string) (*SimConfig, error) {
	if path == "" {
		return &SimConfig{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &SimConfig{}, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	var cfg SimConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *SimConfig) GetListenAddr() string {
	if c.ListenAddr != nil {
		return *c.ListenAddr
	}
	return DefaultListenAddr
}

func (c *SimConfig) GetAdminAddr() string {
	if c.AdminAddr != nil {
		return *c.AdminAddr
	}
	return DefaultAdminAddr
}

func (c *SimConfig) GetDiscoveryPort() int {
	if c.DiscoveryPort != nil {
		return *c.DiscoveryPort
	}
	return DefaultDiscoveryPort
}

func (c *SimConfig) GetDiscoveryInterval() time.Duration {
	if c.DiscoveryIntervalSec != nil {
		return time.Duration(*c.DiscoveryIntervalSec) * time.Second
	}
	return DefaultDiscoveryInterval
}

func (c *SimConfig) GetLatitudeDeg() float64 {
	if c.LatitudeDeg != nil {
		return *c.LatitudeDeg
	}
	return DefaultLatitudeDeg
}

func (c *SimConfig) GetLongitudeDeg() float64 {
	if c.LongitudeDeg != nil {
		return *c.LongitudeDeg
	}
	return DefaultLongitudeDeg
}

func (c *SimConfig) GetImageDir() string {
	if c.ImageDir != nil {
		return *c.ImageDir
	}
	return DefaultImageDir
}

func (c *SimConfig) GetCatalogPath() string {
	if c.CatalogPath != nil {
		return *c.CatalogPath
	}
	return DefaultCatalogPath
}

func (c *SimConfig) GetSerialNumber() string {
	if c.SerialNumber != nil {
		return *c.SerialNumber
	}
	return DefaultSerialNumber
}

func (c *SimConfig) GetFakeInitialize() bool {
	return c.FakeInitialize != nil && *c.FakeInitialize
}

func (c *SimConfig) GetHandpadPort() string {
	if c.HandpadPort != nil {
		return *c.HandpadPort
	}
	return ""
}

// GetSeed returns the configured seed, or a time-derived one.
func (c *SimConfig) GetSeed() uint64 {
	if c.Seed != nil {
		return *c.Seed
	}
	return uint64(time.Now().UnixNano())
}
