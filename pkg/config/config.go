// Package config loads the engine's exhaustive configuration and
// the event log's ring layout from a YAML file, the way cmd/warren's apply
// command loads resource YAML: read the whole file, unmarshal with
// gopkg.in/yaml.v3, validate, done.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/alarmweave/alarmweave/pkg/alarmerr"
)

// Engine holds every tunable the session and pool packages read from at
// construction time.
type Engine struct {
	RebroadcastPeriodMsec       int    `yaml:"rebroadcast_period_msec"`
	RebroadcastThreshold        int    `yaml:"rebroadcast_threshold"`
	RefreshPeriodMsec           int    `yaml:"refresh_period_msec"`
	GracePeriodMsec             int    `yaml:"grace_period_msec"`
	MaxHops                     int    `yaml:"max_hops"`
	MaxConcurrentSessions       int    `yaml:"max_concurrent_sessions"`
	MaxIncomingAlarmSize        int    `yaml:"max_incoming_alarm_size"`
	ForwardCounterDistanceLimit uint8  `yaml:"forward_counter_distance_limit"`
	HushKeyMinSize              int    `yaml:"hush_key_min_size"`
	MandatoryIface              string `yaml:"mandatory_iface,omitempty"`
}

// DefaultEngine returns conservative defaults for every Engine tunable.
func DefaultEngine() Engine {
	return Engine{
		RebroadcastPeriodMsec:       3000,
		RebroadcastThreshold:        6,
		RefreshPeriodMsec:           30000,
		GracePeriodMsec:             30000,
		MaxHops:                     4,
		MaxConcurrentSessions:       10,
		MaxIncomingAlarmSize:        64,
		ForwardCounterDistanceLimit: 127,
		HushKeyMinSize:              16,
	}
}

// MaxConcurrentMessages is the buffer pool size, always sessions+1 so an
// admission decision can inspect a new candidate without first evicting.
func (e Engine) MaxConcurrentMessages() int { return e.MaxConcurrentSessions + 1 }

func (e Engine) RebroadcastPeriod() time.Duration {
	return time.Duration(e.RebroadcastPeriodMsec) * time.Millisecond
}

func (e Engine) RefreshPeriod() time.Duration {
	return time.Duration(e.RefreshPeriodMsec) * time.Millisecond
}

func (e Engine) GracePeriod() time.Duration {
	return time.Duration(e.GracePeriodMsec) * time.Millisecond
}

// LingerPeriod is max_hops multiples of the refresh period minus the grace
// period — the duration a remote session stays in Linger before closing,
// once its grace period has already elapsed. A non-positive result means
// the grace period already consumes the whole window, and the remote
// session closes immediately instead of lingering. A local session that
// quiesces into Linger arms a linger timer of this same duration.
func (e Engine) LingerPeriod() time.Duration {
	return time.Duration(e.MaxHops)*e.RefreshPeriod() - e.GracePeriod()
}

// Validate rejects configurations the engine cannot run with.
func (e Engine) Validate() error {
	if e.MaxConcurrentSessions <= 0 {
		return fmt.Errorf("max_concurrent_sessions must be positive: %w", alarmerr.ErrInvalidArgument)
	}
	if e.HushKeyMinSize < 16 {
		return fmt.Errorf("hush_key_min_size must be >= 16: %w", alarmerr.ErrInvalidArgument)
	}
	if e.MaxIncomingAlarmSize <= 0 {
		return fmt.Errorf("max_incoming_alarm_size must be positive: %w", alarmerr.ErrInvalidArgument)
	}
	return nil
}

// RingLayout describes one event-log ring: its priority, byte capacity, and
// whether its event-id counter is storage-backed.
type RingLayout struct {
	Priority          uint8  `yaml:"priority"`
	CapacityBytes     int    `yaml:"capacity_bytes"`
	PersistentCounter bool   `yaml:"persistent_counter"`
	CounterBucket     string `yaml:"counter_bucket,omitempty"`
}

// Log holds the ring layout for the event log engine, lowest priority first.
type Log struct {
	Rings []RingLayout `yaml:"rings"`
}

func (l Log) Validate() error {
	if len(l.Rings) == 0 {
		return fmt.Errorf("log must declare at least one ring: %w", alarmerr.ErrInvalidArgument)
	}
	for i := 1; i < len(l.Rings); i++ {
		if l.Rings[i].Priority <= l.Rings[i-1].Priority {
			return fmt.Errorf("rings must be strictly increasing priority: %w", alarmerr.ErrInvalidArgument)
		}
	}
	return nil
}

// Flush holds the offload/flush scheduler's tunables.
type Flush struct {
	MinUploadIntervalMsec int `yaml:"min_upload_interval_msec"`
	MaxUploadIntervalMsec int `yaml:"max_upload_interval_msec"`
	UploadThresholdBytes  int `yaml:"upload_threshold_bytes"`
	ByteThresholdBytes    int `yaml:"byte_threshold_bytes"`
}

// DefaultFlush returns conservative offload-scheduler defaults.
func DefaultFlush() Flush {
	return Flush{
		MinUploadIntervalMsec: 60000,
		MaxUploadIntervalMsec: 900000,
		UploadThresholdBytes:  4096,
		ByteThresholdBytes:    1024,
	}
}

func (f Flush) MinUploadInterval() time.Duration {
	return time.Duration(f.MinUploadIntervalMsec) * time.Millisecond
}

func (f Flush) MaxUploadInterval() time.Duration {
	return time.Duration(f.MaxUploadIntervalMsec) * time.Millisecond
}

func (f Flush) Validate() error {
	if f.MinUploadIntervalMsec <= 0 || f.MaxUploadIntervalMsec <= 0 {
		return fmt.Errorf("upload intervals must be positive: %w", alarmerr.ErrInvalidArgument)
	}
	if f.UploadThresholdBytes <= 0 || f.ByteThresholdBytes <= 0 {
		return fmt.Errorf("upload thresholds must be positive: %w", alarmerr.ErrInvalidArgument)
	}
	return nil
}

// Config is the top-level on-disk configuration document.
type Config struct {
	Engine Engine `yaml:"engine"`
	Log    Log    `yaml:"log"`
	Flush  Flush  `yaml:"flush"`
}

// Load reads and validates a Config from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Config{Engine: DefaultEngine(), Flush: DefaultFlush()}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Engine.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Log.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Flush.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
