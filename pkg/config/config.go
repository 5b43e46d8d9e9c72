// Package config loads the glue configuration with viper.
package config

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/qxcheng/macglue/pkg/log"
	tcpip "github.com/qxcheng/macglue/protocol"
	"github.com/qxcheng/macglue/protocol/link/glue"
	"github.com/qxcheng/macglue/protocol/link/mac"
)

// EnvPrefix prefixes environment overrides, e.g. MACGLUE_POOLS_RX_PACKETS.
const EnvPrefix = "MACGLUE"

// Config is the top level configuration.
type Config struct {
	Interfaces   []InterfaceConfig `mapstructure:"interfaces" yaml:"interfaces"`
	Pools        PoolConfig        `mapstructure:"pools" yaml:"pools"`
	DisableChain bool              `mapstructure:"disable_chain" yaml:"disable_chain"`
	PollSleep    time.Duration     `mapstructure:"poll_sleep" yaml:"poll_sleep"`
	TickInterval time.Duration     `mapstructure:"tick_interval" yaml:"tick_interval"`
	Metrics      MetricsConfig     `mapstructure:"metrics" yaml:"metrics"`
	Log          log.Config        `mapstructure:"log" yaml:"log"`
}

// InterfaceConfig describes one MAC.
type InterfaceConfig struct {
	Name       string `mapstructure:"name" yaml:"name"`
	Driver     string `mapstructure:"driver" yaml:"driver"`
	MACAddress string `mapstructure:"mac_addr" yaml:"mac_addr"`
	Irq        int    `mapstructure:"irq" yaml:"irq"`
	RxMaxFrame int    `mapstructure:"rx_max_frame" yaml:"rx_max_frame"`
	// InitData is the driver blob as hex.
	InitData string `mapstructure:"init_data" yaml:"init_data"`

	Loopback LoopbackConfig `mapstructure:"loopback" yaml:"loopback"`
}

// LoopbackConfig tunes the loopback driver.
type LoopbackConfig struct {
	ReadyAfter    int  `mapstructure:"ready_after" yaml:"ready_after"`
	RxSegmentSize int  `mapstructure:"rx_segment_size" yaml:"rx_segment_size"`
	MTU           int  `mapstructure:"mtu" yaml:"mtu"`
	GMAC          bool `mapstructure:"gmac" yaml:"gmac"`
}

// PoolConfig sizes the descriptor, buffer and driver heap pools.
type PoolConfig struct {
	RxPackets  int `mapstructure:"rx_packets" yaml:"rx_packets"`
	TxPackets  int `mapstructure:"tx_packets" yaml:"tx_packets"`
	Buffers    int `mapstructure:"buffers" yaml:"buffers"`
	BufferSize int `mapstructure:"buffer_size" yaml:"buffer_size"`
	HeapSize   int `mapstructure:"heap_size" yaml:"heap_size"`
}

// MetricsConfig configures the Prometheus endpoint. An empty Listen
// disables it.
type MetricsConfig struct {
	Listen string `mapstructure:"listen" yaml:"listen"`
	Path   string `mapstructure:"path" yaml:"path"`
}

// Drivers lists the driver names Validate accepts.
var Drivers = map[string]bool{"loopback": true}

// Load reads the configuration file at path. Environment variables
// override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return decode(v)
}

// Parse reads a YAML document.
func Parse(data []byte) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("pools.rx_packets", glue.DefaultRxPackets)
	v.SetDefault("pools.tx_packets", glue.DefaultTxPackets)
	v.SetDefault("pools.buffers", glue.DefaultBuffers)
	v.SetDefault("pools.buffer_size", glue.DefaultBufferSize)
	v.SetDefault("pools.heap_size", glue.DefaultHeapSize)

	v.SetDefault("disable_chain", false)
	v.SetDefault("poll_sleep", glue.DefaultPollSleep)
	v.SetDefault("tick_interval", glue.DefaultTickInterval)

	v.SetDefault("metrics.listen", "")
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file.path", "")
	v.SetDefault("log.file.max_size_mb", 100)
	v.SetDefault("log.file.max_backups", 5)
	v.SetDefault("log.file.max_age_days", 30)
	v.SetDefault("log.file.compress", true)
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug/info/warn/error)", c.Log.Level)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json/text)", c.Log.Format)
	}

	if len(c.Interfaces) == 0 {
		return fmt.Errorf("at least one interface is required")
	}
	if len(c.Interfaces) > glue.MaxInterfaces {
		return fmt.Errorf("%d interfaces configured, at most %d supported", len(c.Interfaces), glue.MaxInterfaces)
	}

	p := c.Pools
	if p.RxPackets <= 0 || p.TxPackets <= 0 || p.Buffers <= 0 || p.HeapSize <= 0 {
		return fmt.Errorf("pool sizes must be positive")
	}
	if p.BufferSize < glue.TxHeaderRoom {
		return fmt.Errorf("pools.buffer_size %d smaller than header room %d", p.BufferSize, glue.TxHeaderRoom)
	}

	for i, ifc := range c.Interfaces {
		if !Drivers[ifc.Driver] {
			return fmt.Errorf("interfaces[%d]: unknown driver %q", i, ifc.Driver)
		}
		if _, err := tcpip.ParseMACAddress(ifc.MACAddress); err != nil {
			return fmt.Errorf("interfaces[%d]: %w", i, err)
		}
		data, err := ifc.InitBytes()
		if err != nil {
			return fmt.Errorf("interfaces[%d]: init_data: %w", i, err)
		}
		if len(data) > glue.MaxInitData {
			return fmt.Errorf("interfaces[%d]: init_data is %d bytes, at most %d", i, len(data), glue.MaxInitData)
		}
		frame := ifc.RxMaxFrame
		if frame == 0 {
			frame = glue.DefaultRxMaxFrame
		}
		if frame < 0 || mac.GapSize+mac.RxPayloadOffset+frame > p.BufferSize {
			return fmt.Errorf("interfaces[%d]: rx_max_frame %d does not fit pools.buffer_size %d", i, frame, p.BufferSize)
		}
	}
	return nil
}

// InitBytes decodes the hex init blob.
func (ifc InterfaceConfig) InitBytes() ([]byte, error) {
	s := strings.ReplaceAll(strings.TrimSpace(ifc.InitData), " ", "")
	return hex.DecodeString(s)
}

// Options converts the pool and timing settings.
func (c *Config) Options() glue.Options {
	o := glue.Options{
		RxPackets:    c.Pools.RxPackets,
		TxPackets:    c.Pools.TxPackets,
		BufferCount:  c.Pools.Buffers,
		BufferSize:   c.Pools.BufferSize,
		HeapSize:     c.Pools.HeapSize,
		DisableChain: c.DisableChain,
		PollSleep:    c.PollSleep,
		TickInterval: c.TickInterval,
	}
	// zero means no sleep here, not the default
	if o.PollSleep == 0 {
		o.PollSleep = -1
	}
	return o
}

// NetworkConfig builds the glue interface table, creating each driver with
// newDriver.
func (c *Config) NetworkConfig(newDriver func(InterfaceConfig) (mac.Driver, error)) ([]glue.NetworkConfig, error) {
	out := make([]glue.NetworkConfig, 0, len(c.Interfaces))
	for i, ifc := range c.Interfaces {
		drv, err := newDriver(ifc)
		if err != nil {
			return nil, fmt.Errorf("interfaces[%d]: %w", i, err)
		}
		data, err := ifc.InitBytes()
		if err != nil {
			return nil, fmt.Errorf("interfaces[%d]: init_data: %w", i, err)
		}
		out = append(out, glue.NetworkConfig{
			MACAddress: ifc.MACAddress,
			Driver:     drv,
			InitData:   data,
			Irq:        ifc.Irq,
			RxMaxFrame: ifc.RxMaxFrame,
		})
	}
	return out, nil
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
