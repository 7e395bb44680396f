// Package config loads a participant's TOML configuration, following the
// same [Section]/[[Array]] shape mailproxy.GenerateConfig writes out, but
// read back with toml.Decode rather than hand-built with fmt.Sprintf.
package config

import (
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/net/idna"

	"github.com/katzenpost/rtps/change"
	"github.com/katzenpost/rtps/history"
	"github.com/katzenpost/rtps/internal/log"
	"github.com/katzenpost/rtps/reader"
	"github.com/katzenpost/rtps/types"
	"github.com/katzenpost/rtps/writer"
)

// Config is a participant's full on-disk configuration.
type Config struct {
	Participant ParticipantConfig
	Logging     LoggingConfig
	Peer        []PeerConfig
	Endpoint    []EndpointConfig
}

// EndpointConfig describes one writer or reader's QoS, per
// original_source/include/eprosimartps/qos/{Reader,Writer}Qos.h's field
// set (history, reliability, durability, liveliness+lease, deadline,
// lifespan, resource limits, disable-positive-acks+keep-duration,
// publish-mode), read back from a repeated [[Endpoint]] TOML table the
// way mailproxy.GenerateConfig writes out repeated [[Account]]/[[Provider]]
// tables.
type EndpointConfig struct {
	Name string
	// Kind is "writer" or "reader".
	Kind string

	// History is "KEEP_LAST" or "KEEP_ALL"; Depth applies only to KEEP_LAST.
	History string
	Depth   int

	// Reliability is "BEST_EFFORT" or "RELIABLE".
	Reliability string
	// Durability is "VOLATILE", "TRANSIENT_LOCAL", "TRANSIENT", or
	// "PERSISTENT"; carried as metadata, not enforced (see
	// writer.Config.Durability).
	Durability string
	// Liveliness is "AUTOMATIC", "MANUAL_BY_PARTICIPANT", or
	// "MANUAL_BY_TOPIC". LeaseMS applies to reader-side watchdogs.
	Liveliness string
	LeaseMS    int

	DeadlineMS int
	LifespanMS int

	MaxSamples            int
	MaxInstances          int
	MaxSamplesPerInstance int

	DisablePositiveAcks bool
	KeepDurationMS      int

	// PublishMode is "SYNC" or "ASYNC"; writer-side only.
	PublishMode             string
	HeartbeatPeriodMS       int
	NackResponseDelayMS     int
	NackSuppressionMS       int
	HeartbeatResponseDelayMS int

	PayloadMaxSize int
	PoolInitial    int
	PoolMax        int
}

// ParticipantConfig identifies the participant and its metatraffic domain.
type ParticipantConfig struct {
	// GuidPrefixHex is the participant's 12-byte GuidPrefix, hex encoded.
	// Empty means the caller assigns one (e.g. randomly) after loading.
	GuidPrefixHex string
	DomainID      int
	Index         int
	// BindAddress is "host:port" for the metatraffic UDP socket; an empty
	// Port lets the OS pick one.
	BindAddress string
}

// LoggingConfig mirrors mailproxy's [Logging] section.
type LoggingConfig struct {
	Disable bool
	Level   string
}

// PeerConfig names a remote participant to reach at Host:Port, one entry
// per [[Peer]] table.
type PeerConfig struct {
	Host string
	Port int
}

// Load reads and validates the TOML configuration at path.
func Load(path string) (*Config, error) {
	cfg := new(Config)
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Participant.GuidPrefixHex != "" {
		b, err := hex.DecodeString(c.Participant.GuidPrefixHex)
		if err != nil {
			return fmt.Errorf("config: Participant.GuidPrefixHex: %w", err)
		}
		if len(b) != types.GuidPrefixLength {
			return fmt.Errorf("config: Participant.GuidPrefixHex must decode to %d bytes, got %d", types.GuidPrefixLength, len(b))
		}
	}
	if c.Participant.BindAddress != "" {
		host, _, err := net.SplitHostPort(c.Participant.BindAddress)
		if err != nil {
			return fmt.Errorf("config: Participant.BindAddress: %w", err)
		}
		if err := validateHost(host); err != nil {
			return fmt.Errorf("config: Participant.BindAddress: %w", err)
		}
	}
	if c.Logging.Level != "" {
		if err := log.SetLevel(c.Logging.Level); err != nil {
			return fmt.Errorf("config: Logging.Level: %w", err)
		}
	}
	for i, p := range c.Peer {
		if err := validateHost(p.Host); err != nil {
			return fmt.Errorf("config: Peer[%d].Host: %w", i, err)
		}
		if p.Port <= 0 || p.Port > 65535 {
			return fmt.Errorf("config: Peer[%d].Port %d out of range", i, p.Port)
		}
	}
	for i, e := range c.Endpoint {
		if err := e.validate(); err != nil {
			return fmt.Errorf("config: Endpoint[%d] (%s): %w", i, e.Name, err)
		}
	}
	return nil
}

func (e EndpointConfig) validate() error {
	if e.Kind != "writer" && e.Kind != "reader" {
		return fmt.Errorf("Kind must be \"writer\" or \"reader\", got %q", e.Kind)
	}
	if _, err := parseHistoryKind(e.History); err != nil {
		return err
	}
	if _, err := parseReliabilityKind(e.Reliability); err != nil {
		return err
	}
	if _, err := parseDurabilityKind(e.Durability); err != nil {
		return err
	}
	if _, err := parseLivelinessKind(e.Liveliness); err != nil {
		return err
	}
	if e.Kind == "writer" {
		if _, err := parsePublishMode(e.PublishMode); err != nil {
			return err
		}
	}
	return nil
}

func durationMS(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }

func parseHistoryKind(s string) (types.HistoryKind, error) {
	switch s {
	case "", "KEEP_LAST":
		return types.HistoryKeepLast, nil
	case "KEEP_ALL":
		return types.HistoryKeepAll, nil
	}
	return 0, fmt.Errorf("unknown History %q", s)
}

func parseReliabilityKind(s string) (types.ReliabilityKind, error) {
	switch s {
	case "", "BEST_EFFORT":
		return types.ReliabilityBestEffort, nil
	case "RELIABLE":
		return types.ReliabilityReliable, nil
	}
	return 0, fmt.Errorf("unknown Reliability %q", s)
}

func parseDurabilityKind(s string) (types.DurabilityKind, error) {
	switch s {
	case "", "VOLATILE":
		return types.DurabilityVolatile, nil
	case "TRANSIENT_LOCAL":
		return types.DurabilityTransientLocal, nil
	case "TRANSIENT":
		return types.DurabilityTransient, nil
	case "PERSISTENT":
		return types.DurabilityPersistent, nil
	}
	return 0, fmt.Errorf("unknown Durability %q", s)
}

func parseLivelinessKind(s string) (types.LivelinessKind, error) {
	switch s {
	case "", "AUTOMATIC":
		return types.LivelinessAutomatic, nil
	case "MANUAL_BY_PARTICIPANT":
		return types.LivelinessManualByParticipant, nil
	case "MANUAL_BY_TOPIC":
		return types.LivelinessManualByTopic, nil
	}
	return 0, fmt.Errorf("unknown Liveliness %q", s)
}

func parsePublishMode(s string) (types.PublishMode, error) {
	switch s {
	case "", "SYNC":
		return types.PublishModeSync, nil
	case "ASYNC":
		return types.PublishModeAsync, nil
	}
	return 0, fmt.Errorf("unknown PublishMode %q", s)
}

// ToWriterConfig builds a writer.Config from this endpoint's QoS, plus the
// liveliness kind and lease duration CreateWriter takes separately.
func (e EndpointConfig) ToWriterConfig() (writer.Config, types.LivelinessKind, time.Duration, error) {
	hist, err := parseHistoryKind(e.History)
	if err != nil {
		return writer.Config{}, 0, 0, err
	}
	rel, err := parseReliabilityKind(e.Reliability)
	if err != nil {
		return writer.Config{}, 0, 0, err
	}
	dur, err := parseDurabilityKind(e.Durability)
	if err != nil {
		return writer.Config{}, 0, 0, err
	}
	lk, err := parseLivelinessKind(e.Liveliness)
	if err != nil {
		return writer.Config{}, 0, 0, err
	}
	pm, err := parsePublishMode(e.PublishMode)
	if err != nil {
		return writer.Config{}, 0, 0, err
	}
	cfg := writer.Config{
		Reliability: rel,
		Durability:  dur,
		PublishMode: pm,
		HistoryPolicy: history.Policy{
			Kind:  hist,
			Depth: e.Depth,
			Limits: history.ResourceLimits{
				MaxSamples:            e.MaxSamples,
				MaxInstances:          e.MaxInstances,
				MaxSamplesPerInstance: e.MaxSamplesPerInstance,
			},
		},
		MemoryPolicy:            change.MemoryPolicyDynamic,
		PayloadMaxSize:          e.PayloadMaxSize,
		PoolInitial:             e.PoolInitial,
		PoolMax:                 e.PoolMax,
		DeadlinePeriod:          durationMS(e.DeadlineMS),
		Lifespan:                durationMS(e.LifespanMS),
		HeartbeatPeriod:         durationMS(e.HeartbeatPeriodMS),
		NackResponseDelay:       durationMS(e.NackResponseDelayMS),
		NackSuppressionDuration: durationMS(e.NackSuppressionMS),
		DisablePositiveAcks:     e.DisablePositiveAcks,
		KeepDuration:            durationMS(e.KeepDurationMS),
	}
	return cfg, lk, durationMS(e.LeaseMS), nil
}

// ToReaderConfig builds a reader.Config from this endpoint's QoS.
func (e EndpointConfig) ToReaderConfig() (reader.Config, error) {
	hist, err := parseHistoryKind(e.History)
	if err != nil {
		return reader.Config{}, err
	}
	rel, err := parseReliabilityKind(e.Reliability)
	if err != nil {
		return reader.Config{}, err
	}
	dur, err := parseDurabilityKind(e.Durability)
	if err != nil {
		return reader.Config{}, err
	}
	cfg := reader.Config{
		Reliability: rel,
		Durability:  dur,
		HistoryPolicy: history.Policy{
			Kind:  hist,
			Depth: e.Depth,
			Limits: history.ResourceLimits{
				MaxSamples:            e.MaxSamples,
				MaxInstances:          e.MaxInstances,
				MaxSamplesPerInstance: e.MaxSamplesPerInstance,
			},
		},
		MemoryPolicy:           change.MemoryPolicyDynamic,
		PayloadMaxSize:         e.PayloadMaxSize,
		PoolInitial:            e.PoolInitial,
		PoolMax:                e.PoolMax,
		DeadlinePeriod:         durationMS(e.DeadlineMS),
		Lifespan:               durationMS(e.LifespanMS),
		HeartbeatResponseDelay: durationMS(e.HeartbeatResponseDelayMS),
	}
	return cfg, nil
}

// LeaseDuration returns this endpoint's liveliness lease, for use when
// matching a remote writer proxy (reader.WriterProxyParams.LeaseDuration).
func (e EndpointConfig) LeaseDuration() time.Duration { return durationMS(e.LeaseMS) }

// validateHost accepts dotted-quad/IPv6 literals outright, and otherwise
// requires a well-formed DNS hostname, per
// core/pki/descriptor.go's idna.Lookup.ToASCII check on non-IP transport
// addresses.
func validateHost(h string) error {
	if net.ParseIP(h) != nil {
		return nil
	}
	if _, err := idna.Lookup.ToASCII(h); err != nil {
		return fmt.Errorf("invalid hostname %q: %w", h, err)
	}
	return nil
}

// GuidPrefix decodes Participant.GuidPrefixHex, returning the zero prefix
// if unset.
func (c *Config) GuidPrefix() (types.GuidPrefix, error) {
	var prefix types.GuidPrefix
	if c.Participant.GuidPrefixHex == "" {
		return prefix, nil
	}
	b, err := hex.DecodeString(c.Participant.GuidPrefixHex)
	if err != nil {
		return prefix, err
	}
	copy(prefix[:], b)
	return prefix, nil
}

// PeerLocators resolves every configured peer to a UDP Locator.
func (c *Config) PeerLocators() ([]types.Locator, error) {
	out := make([]types.Locator, 0, len(c.Peer))
	for _, p := range c.Peer {
		addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(p.Host, strconv.Itoa(p.Port)))
		if err != nil {
			return nil, fmt.Errorf("config: resolve peer %s:%d: %w", p.Host, p.Port, err)
		}
		out = append(out, types.LocatorFromUDPAddr(addr))
	}
	return out, nil
}
