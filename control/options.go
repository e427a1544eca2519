// control/options.go
// Author: momentics <momentics@gmail.com>
//
// Connection options with TOML file overlay.

package control

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Options describe how to reach and authenticate against a broker.
type Options struct {
	Address    string
	VHost      string
	Username   string
	Password   string
	Locale     string
	ChannelMax uint16
	FrameMax   uint32
	Heartbeat  uint16
	// Workers sizes the default executor; zero means one per CPU.
	Workers          int
	DialTimeout      time.Duration
	MetricsNamespace string
	ClientProperties map[string]string
}

type fileOptions struct {
	Address          string            `toml:"address"`
	VHost            string            `toml:"vhost"`
	Username         string            `toml:"username"`
	Password         string            `toml:"password"`
	Locale           string            `toml:"locale"`
	ChannelMax       int               `toml:"channel_max"`
	FrameMax         int               `toml:"frame_max"`
	Heartbeat        int               `toml:"heartbeat"`
	Workers          int               `toml:"workers"`
	DialTimeoutMS    int               `toml:"dial_timeout_ms"`
	MetricsNamespace string            `toml:"metrics_namespace"`
	ClientProperties map[string]string `toml:"client_properties"`
}

// DefaultOptions returns options for a local broker with guest credentials.
func DefaultOptions() Options {
	return Options{
		Address:          "127.0.0.1:5672",
		VHost:            "/",
		Username:         "guest",
		Password:         "guest",
		Locale:           "en_US",
		ChannelMax:       2047,
		FrameMax:         131072,
		Heartbeat:        60,
		DialTimeout:      10 * time.Second,
		MetricsNamespace: "hioload_amqp",
		ClientProperties: map[string]string{"product": "hioload-amqp"},
	}
}

// LoadOptionsFile decodes path over DefaultOptions. Keys absent from the
// file keep their defaults.
func LoadOptionsFile(path string) (Options, error) {
	opts := DefaultOptions()
	var raw fileOptions
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Options{}, fmt.Errorf("decode options %q: %w", path, err)
	}

	if meta.IsDefined("address") {
		opts.Address = strings.TrimSpace(raw.Address)
	}
	if meta.IsDefined("vhost") {
		opts.VHost = raw.VHost
	}
	if meta.IsDefined("username") {
		opts.Username = raw.Username
	}
	if meta.IsDefined("password") {
		opts.Password = raw.Password
	}
	if meta.IsDefined("locale") {
		opts.Locale = raw.Locale
	}
	if meta.IsDefined("channel_max") {
		if raw.ChannelMax < 0 || raw.ChannelMax > 0xFFFF {
			return Options{}, fmt.Errorf("channel_max out of range: %d", raw.ChannelMax)
		}
		opts.ChannelMax = uint16(raw.ChannelMax)
	}
	if meta.IsDefined("frame_max") {
		if raw.FrameMax < 0 {
			return Options{}, fmt.Errorf("frame_max out of range: %d", raw.FrameMax)
		}
		opts.FrameMax = uint32(raw.FrameMax)
	}
	if meta.IsDefined("heartbeat") {
		if raw.Heartbeat < 0 || raw.Heartbeat > 0xFFFF {
			return Options{}, fmt.Errorf("heartbeat out of range: %d", raw.Heartbeat)
		}
		opts.Heartbeat = uint16(raw.Heartbeat)
	}
	if meta.IsDefined("workers") {
		opts.Workers = raw.Workers
	}
	if meta.IsDefined("dial_timeout_ms") {
		opts.DialTimeout = time.Duration(raw.DialTimeoutMS) * time.Millisecond
	}
	if meta.IsDefined("metrics_namespace") {
		opts.MetricsNamespace = raw.MetricsNamespace
	}
	if meta.IsDefined("client_properties") {
		for k, v := range raw.ClientProperties {
			opts.ClientProperties[k] = v
		}
	}
	return opts, opts.Validate()
}

// Validate checks the options for values the engine cannot work with.
func (o Options) Validate() error {
	if o.Address == "" {
		return fmt.Errorf("address is required")
	}
	if o.FrameMax != 0 && o.FrameMax < 4096 {
		return fmt.Errorf("frame_max must be 0 or at least 4096, got %d", o.FrameMax)
	}
	if o.Workers < 0 {
		return fmt.Errorf("workers must not be negative")
	}
	return nil
}
