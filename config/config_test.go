package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/katzenpost/rtps/types"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "rtps.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
[Participant]
  GuidPrefixHex = "0102030405060708090a0b0c"
  DomainID = 0
  Index = 0
  BindAddress = "127.0.0.1:0"

[Logging]
  Disable = false
  Level = "INFO"

[[Peer]]
  Host = "127.0.0.1"
  Port = 7411

[[Peer]]
  Host = "peer.example.com"
  Port = 7412
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 0, cfg.Participant.DomainID)
	require.Len(t, cfg.Peer, 2)

	prefix, err := cfg.GuidPrefix()
	require.NoError(t, err)
	require.Equal(t, byte(0x01), prefix[0])
	require.Equal(t, byte(0x0c), prefix[11])

	locs, err := cfg.PeerLocators()
	require.NoError(t, err)
	require.Len(t, locs, 2)
}

func TestLoadRejectsBadGuidPrefix(t *testing.T) {
	path := writeConfig(t, `
[Participant]
  GuidPrefixHex = "nothex"
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsInvalidPeerHost(t *testing.T) {
	path := writeConfig(t, `
[[Peer]]
  Host = "bad host with spaces"
  Port = 7411
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsOutOfRangePort(t *testing.T) {
	path := writeConfig(t, `
[[Peer]]
  Host = "127.0.0.1"
  Port = 70000
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadAcceptsMissingOptionalSections(t *testing.T) {
	path := writeConfig(t, `
[Participant]
  DomainID = 3
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 3, cfg.Participant.DomainID)
}

func TestLoadParsesEndpointQoS(t *testing.T) {
	path := writeConfig(t, `
[[Endpoint]]
  Name = "telemetry-out"
  Kind = "writer"
  History = "KEEP_LAST"
  Depth = 5
  Reliability = "RELIABLE"
  Durability = "TRANSIENT_LOCAL"
  PublishMode = "SYNC"
  DisablePositiveAcks = true
  KeepDurationMS = 1000
  HeartbeatPeriodMS = 100

[[Endpoint]]
  Name = "telemetry-in"
  Kind = "reader"
  History = "KEEP_ALL"
  Reliability = "RELIABLE"
  Liveliness = "MANUAL_BY_PARTICIPANT"
  LeaseMS = 2000
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Endpoint, 2)

	wcfg, lk, lease, err := cfg.Endpoint[0].ToWriterConfig()
	require.NoError(t, err)
	require.Equal(t, types.ReliabilityReliable, wcfg.Reliability)
	require.Equal(t, types.DurabilityTransientLocal, wcfg.Durability)
	require.True(t, wcfg.DisablePositiveAcks)
	require.Equal(t, time.Second, wcfg.KeepDuration)
	require.Equal(t, 100*time.Millisecond, wcfg.HeartbeatPeriod)
	require.Equal(t, types.LivelinessAutomatic, lk)
	require.Zero(t, lease)

	rcfg, err := cfg.Endpoint[1].ToReaderConfig()
	require.NoError(t, err)
	require.Equal(t, types.ReliabilityReliable, rcfg.Reliability)
	require.Equal(t, types.HistoryKeepAll, rcfg.HistoryPolicy.Kind)
	require.Equal(t, 2*time.Second, cfg.Endpoint[1].LeaseDuration())
}

func TestLoadRejectsBadEndpointKind(t *testing.T) {
	path := writeConfig(t, `
[[Endpoint]]
  Name = "bad"
  Kind = "subscriber"
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsBadEndpointHistory(t *testing.T) {
	path := writeConfig(t, `
[[Endpoint]]
  Name = "bad"
  Kind = "writer"
  History = "KEEP_SOME"
`)
	_, err := Load(path)
	require.Error(t, err)
}
