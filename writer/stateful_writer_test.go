package writer

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/katzenpost/rtps/change"
	"github.com/katzenpost/rtps/history"
	"github.com/katzenpost/rtps/internal/log"
	"github.com/katzenpost/rtps/types"
	"github.com/katzenpost/rtps/wire/commands"
)

type recordingTransport struct {
	mu   sync.Mutex
	sent []commands.Message
}

func (t *recordingTransport) SendTo(loc types.Locator, data []byte) error {
	msg, err := commands.DecodeMessage(data)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.sent = append(t.sent, msg)
	t.mu.Unlock()
	return nil
}

func (t *recordingTransport) dataCmds() []*commands.Data {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*commands.Data
	for _, msg := range t.sent {
		for _, c := range msg.Cmds {
			if d, ok := c.(*commands.Data); ok {
				out = append(out, d)
			}
		}
	}
	return out
}

func (t *recordingTransport) gapCmds() []*commands.Gap {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*commands.Gap
	for _, msg := range t.sent {
		for _, c := range msg.Cmds {
			if g, ok := c.(*commands.Gap); ok {
				out = append(out, g)
			}
		}
	}
	return out
}

func (t *recordingTransport) heartbeats() []*commands.Heartbeat {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*commands.Heartbeat
	for _, msg := range t.sent {
		for _, c := range msg.Cmds {
			if h, ok := c.(*commands.Heartbeat); ok {
				out = append(out, h)
			}
		}
	}
	return out
}

func testConfig(guid types.GUID) Config {
	return Config{
		GUID:           guid,
		Reliability:    types.ReliabilityReliable,
		PublishMode:    types.PublishModeSync,
		HistoryPolicy:  history.Policy{Kind: types.HistoryKeepAll},
		MemoryPolicy:   change.MemoryPolicyDynamic,
		PayloadMaxSize: 1024,
		PoolInitial:    4,
		PoolMax:        16,
	}
}

func readerParams(guid types.GUID) ReaderProxyParams {
	return ReaderProxyParams{
		RemoteReaderGUID: guid,
		UnicastLocators:  []types.Locator{{Kind: types.LocatorKindUDPv4, Port: 7400}},
		Reliability:      types.ReliabilityReliable,
	}
}

func TestStatefulWriterSyncDeliversToMatchedReader(t *testing.T) {
	guid := types.GUID{Prefix: types.GuidPrefix{1}}
	transport := &recordingTransport{}
	sw := NewStatefulWriter(testConfig(guid), transport, log.New("test"))

	readerGUID := types.GUID{Prefix: types.GuidPrefix{2}}
	sw.MatchedReaderAdd(readerParams(readerGUID))

	c, err := sw.NewChange(types.ChangeKindAlive, types.InstanceHandle{1}, []byte("hello"))
	require.NoError(t, err)
	require.NoError(t, sw.AddChange(c))

	data := transport.dataCmds()
	require.Len(t, data, 1)
	require.Equal(t, []byte("hello"), data[0].SerializedPayload)

	rp, ok := sw.MatchedReader(readerGUID)
	require.True(t, ok)
	cfr, ok := rp.GetChangeForReader(c.SequenceNumber)
	require.True(t, ok)
	require.Equal(t, StatusUnacknowledged, cfr.Status) // zero NackSuppressionDuration expires UNDERWAY at once
}

func TestStatefulWriterRetransmitsOnAckNack(t *testing.T) {
	guid := types.GUID{Prefix: types.GuidPrefix{1}}
	transport := &recordingTransport{}
	cfg := testConfig(guid)
	sw := NewStatefulWriter(cfg, transport, log.New("test"))

	readerGUID := types.GUID{Prefix: types.GuidPrefix{2}}
	sw.MatchedReaderAdd(readerParams(readerGUID))

	c, err := sw.NewChange(types.ChangeKindAlive, types.InstanceHandle{1}, []byte("x"))
	require.NoError(t, err)
	require.NoError(t, sw.AddChange(c))

	ack := &commands.AckNack{
		ReaderID:     readerGUID.Entity,
		WriterID:     guid.Entity,
		ReaderSNBase: c.SequenceNumber,
		Missing:      []bool{true},
		Count:        1,
	}
	sw.ProcessAckNack(readerGUID, ack)

	require.Eventually(t, func() bool {
		return len(transport.dataCmds()) >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestStatefulWriterAckNackAcknowledges(t *testing.T) {
	guid := types.GUID{Prefix: types.GuidPrefix{1}}
	transport := &recordingTransport{}
	sw := NewStatefulWriter(testConfig(guid), transport, log.New("test"))

	readerGUID := types.GUID{Prefix: types.GuidPrefix{2}}
	sw.MatchedReaderAdd(readerParams(readerGUID))

	c, err := sw.NewChange(types.ChangeKindAlive, types.InstanceHandle{1}, []byte("x"))
	require.NoError(t, err)
	require.NoError(t, sw.AddChange(c))

	ack := &commands.AckNack{
		ReaderID:     readerGUID.Entity,
		WriterID:     guid.Entity,
		ReaderSNBase: c.SequenceNumber + 1,
		Count:        1,
		Final:        true,
	}
	sw.ProcessAckNack(readerGUID, ack)

	rp, _ := sw.MatchedReader(readerGUID)
	max, ok := rp.MaxAckedChange()
	require.True(t, ok)
	require.Equal(t, c.SequenceNumber, max)
}

func TestStatefulWriterDisablePositiveAcksFreesAfterKeepDuration(t *testing.T) {
	guid := types.GUID{Prefix: types.GuidPrefix{1}}
	transport := &recordingTransport{}
	cfg := testConfig(guid)
	cfg.DisablePositiveAcks = true
	cfg.KeepDuration = 20 * time.Millisecond
	sw := NewStatefulWriter(cfg, transport, log.New("test"))

	readerGUID := types.GUID{Prefix: types.GuidPrefix{2}}
	sw.MatchedReaderAdd(readerParams(readerGUID))

	c, err := sw.NewChange(types.ChangeKindAlive, types.InstanceHandle{1}, []byte("x"))
	require.NoError(t, err)
	require.NoError(t, sw.AddChange(c))
	require.Equal(t, 1, sw.history.Len())

	// No ACKNACK ever arrives; the keep-duration timer must free the
	// change from history regardless.
	require.Eventually(t, func() bool {
		return sw.history.Len() == 0
	}, time.Second, 5*time.Millisecond)

	rp, _ := sw.MatchedReader(readerGUID)
	_, ok := rp.GetChangeForReader(c.SequenceNumber)
	require.False(t, ok)
}

func TestStatefulWriterNackSuppressionGatesRepair(t *testing.T) {
	guid := types.GUID{Prefix: types.GuidPrefix{1}}
	transport := &recordingTransport{}
	cfg := testConfig(guid)
	cfg.NackSuppressionDuration = 50 * time.Millisecond
	sw := NewStatefulWriter(cfg, transport, log.New("test"))

	readerGUID := types.GUID{Prefix: types.GuidPrefix{2}}
	sw.MatchedReaderAdd(readerParams(readerGUID))

	c, err := sw.NewChange(types.ChangeKindAlive, types.InstanceHandle{1}, []byte("x"))
	require.NoError(t, err)
	require.NoError(t, sw.AddChange(c))
	require.Len(t, transport.dataCmds(), 1)

	rp, _ := sw.MatchedReader(readerGUID)
	cfr, ok := rp.GetChangeForReader(c.SequenceNumber)
	require.True(t, ok)
	require.Equal(t, StatusUnderway, cfr.Status)

	ack := &commands.AckNack{
		ReaderID:     readerGUID.Entity,
		WriterID:     guid.Entity,
		ReaderSNBase: c.SequenceNumber,
		Missing:      []bool{true},
		Count:        1,
	}
	sw.ProcessAckNack(readerGUID, ack)
	require.Len(t, transport.dataCmds(), 1) // still inside the suppression window

	require.Eventually(t, func() bool {
		cfr, ok := rp.GetChangeForReader(c.SequenceNumber)
		return ok && cfr.Status == StatusUnacknowledged
	}, time.Second, 5*time.Millisecond)

	ack2 := &commands.AckNack{
		ReaderID:     readerGUID.Entity,
		WriterID:     guid.Entity,
		ReaderSNBase: c.SequenceNumber,
		Missing:      []bool{true},
		Count:        2,
	}
	sw.ProcessAckNack(readerGUID, ack2)
	require.Eventually(t, func() bool {
		return len(transport.dataCmds()) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestStatefulWriterEmitsGapForEvictedSequence(t *testing.T) {
	guid := types.GUID{Prefix: types.GuidPrefix{1}}
	transport := &recordingTransport{}
	cfg := testConfig(guid)
	cfg.HistoryPolicy = history.Policy{Kind: types.HistoryKeepLast, Depth: 1}
	sw := NewStatefulWriter(cfg, transport, log.New("test"))

	readerGUID := types.GUID{Prefix: types.GuidPrefix{2}}
	sw.MatchedReaderAdd(readerParams(readerGUID))

	handle := types.InstanceHandle{1}
	c1, err := sw.NewChange(types.ChangeKindAlive, handle, []byte("1"))
	require.NoError(t, err)
	require.NoError(t, sw.AddChange(c1))

	c2, err := sw.NewChange(types.ChangeKindAlive, handle, []byte("2"))
	require.NoError(t, err)
	require.NoError(t, sw.AddChange(c2)) // evicts c1 under KEEP_LAST(1)

	ack := &commands.AckNack{
		ReaderID:     readerGUID.Entity,
		WriterID:     guid.Entity,
		ReaderSNBase: c1.SequenceNumber,
		Missing:      []bool{true},
		Count:        1,
	}
	sw.ProcessAckNack(readerGUID, ack)

	gaps := transport.gapCmds()
	require.Len(t, gaps, 1)
	require.Equal(t, c1.SequenceNumber, gaps[0].GapStart)
	require.Equal(t, c1.SequenceNumber+1, gaps[0].GapListBase)
}

func TestStatefulWriterHeartbeatFinalReflectsAckState(t *testing.T) {
	guid := types.GUID{Prefix: types.GuidPrefix{1}}
	transport := &recordingTransport{}
	cfg := testConfig(guid)
	cfg.HeartbeatPeriod = 10 * time.Millisecond
	sw := NewStatefulWriter(cfg, transport, log.New("test"))
	sw.Go()
	defer sw.Halt()

	readerGUID := types.GUID{Prefix: types.GuidPrefix{2}}
	sw.MatchedReaderAdd(readerParams(readerGUID))

	c, err := sw.NewChange(types.ChangeKindAlive, types.InstanceHandle{1}, []byte("x"))
	require.NoError(t, err)
	require.NoError(t, sw.AddChange(c))

	require.Eventually(t, func() bool {
		for _, h := range transport.heartbeats() {
			if !h.Final {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	ack := &commands.AckNack{
		ReaderID:     readerGUID.Entity,
		WriterID:     guid.Entity,
		ReaderSNBase: c.SequenceNumber + 1,
		Count:        1,
		Final:        true,
	}
	sw.ProcessAckNack(readerGUID, ack)

	require.Eventually(t, func() bool {
		hbs := transport.heartbeats()
		if len(hbs) == 0 {
			return false
		}
		return hbs[len(hbs)-1].Final
	}, time.Second, 5*time.Millisecond)
}

func TestStatefulWriterStaleAckNackIgnored(t *testing.T) {
	guid := types.GUID{Prefix: types.GuidPrefix{1}}
	transport := &recordingTransport{}
	sw := NewStatefulWriter(testConfig(guid), transport, log.New("test"))
	readerGUID := types.GUID{Prefix: types.GuidPrefix{2}}
	sw.MatchedReaderAdd(readerParams(readerGUID))

	first := &commands.AckNack{ReaderID: readerGUID.Entity, WriterID: guid.Entity, Count: 5, Final: true}
	sw.ProcessAckNack(readerGUID, first)

	rp, _ := sw.MatchedReader(readerGUID)
	require.False(t, rp.NextAckNackCount(3)) // stale: lower than 5
	require.True(t, rp.NextAckNackCount(6))
}
