package receiver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/katzenpost/rtps/internal/log"
	"github.com/katzenpost/rtps/types"
	"github.com/katzenpost/rtps/wire"
	"github.com/katzenpost/rtps/wire/commands"
)

type fakeReaderSink struct {
	data       []*commands.Data
	heartbeats []*commands.Heartbeat
	gaps       []*commands.Gap
	timestamps []time.Time
}

func (f *fakeReaderSink) ProcessDataMsg(writerGUID types.GUID, d *commands.Data, ts time.Time) error {
	f.data = append(f.data, d)
	f.timestamps = append(f.timestamps, ts)
	return nil
}

func (f *fakeReaderSink) ProcessHeartbeatMsg(writerGUID types.GUID, hb *commands.Heartbeat) {
	f.heartbeats = append(f.heartbeats, hb)
}

func (f *fakeReaderSink) ProcessGapMsg(writerGUID types.GUID, g *commands.Gap) {
	f.gaps = append(f.gaps, g)
}

type fakeWriterSink struct {
	acks []*commands.AckNack
}

func (f *fakeWriterSink) ProcessAckNack(readerGUID types.GUID, ack *commands.AckNack) {
	f.acks = append(f.acks, ack)
}

type fakeRegistry struct {
	readers map[types.EntityID]ReaderSink
	writers map[types.EntityID]WriterSink
}

func (r *fakeRegistry) Reader(id types.EntityID) (ReaderSink, bool) {
	s, ok := r.readers[id]
	return s, ok
}

func (r *fakeRegistry) Writer(id types.EntityID) (WriterSink, bool) {
	s, ok := r.writers[id]
	return s, ok
}

func encode(t *testing.T, prefix types.GuidPrefix, cmds []commands.Command) []byte {
	hdr := wire.Header{Version: wire.Version21, Vendor: wire.VendorIDThis, GuidPrefix: prefix}
	data, err := commands.EncodeMessage(hdr, false, cmds)
	require.NoError(t, err)
	return data
}

func TestReceiverDispatchesDataToMatchedReader(t *testing.T) {
	readerID := types.EntityID{Key: [3]byte{1, 0, 0}}
	writerID := types.EntityID{Key: [3]byte{2, 0, 0}}
	sourcePrefix := types.GuidPrefix{9}

	sink := &fakeReaderSink{}
	reg := &fakeRegistry{readers: map[types.EntityID]ReaderSink{readerID: sink}}
	rx := New(types.GuidPrefix{1}, reg, log.New("test"))

	d := &commands.Data{ReaderID: readerID, WriterID: writerID, WriterSN: 1, SerializedPayload: []byte("hi")}
	data := encode(t, sourcePrefix, []commands.Command{d})

	require.NoError(t, rx.ProcessDatagram(data))
	require.Len(t, sink.data, 1)
	require.Equal(t, []byte("hi"), sink.data[0].SerializedPayload)
}

func TestReceiverDispatchesAckNackToMatchedWriter(t *testing.T) {
	readerID := types.EntityID{Key: [3]byte{1, 0, 0}}
	writerID := types.EntityID{Key: [3]byte{2, 0, 0}}

	sink := &fakeWriterSink{}
	reg := &fakeRegistry{writers: map[types.EntityID]WriterSink{writerID: sink}}
	rx := New(types.GuidPrefix{1}, reg, log.New("test"))

	ack := &commands.AckNack{ReaderID: readerID, WriterID: writerID, ReaderSNBase: 1, Count: 1, Final: true}
	data := encode(t, types.GuidPrefix{9}, []commands.Command{ack})

	require.NoError(t, rx.ProcessDatagram(data))
	require.Len(t, sink.acks, 1)
}

func TestReceiverDropsUnknownEntity(t *testing.T) {
	reg := &fakeRegistry{readers: map[types.EntityID]ReaderSink{}}
	rx := New(types.GuidPrefix{1}, reg, log.New("test"))

	d := &commands.Data{ReaderID: types.EntityID{Key: [3]byte{9, 9, 9}}, SerializedPayload: []byte("x")}
	data := encode(t, types.GuidPrefix{9}, []commands.Command{d})

	require.NoError(t, rx.ProcessDatagram(data))
}

func TestReceiverInfoTSAppliesToFollowingData(t *testing.T) {
	readerID := types.EntityID{Key: [3]byte{1, 0, 0}}
	writerID := types.EntityID{Key: [3]byte{2, 0, 0}}

	sink := &fakeReaderSink{}
	reg := &fakeRegistry{readers: map[types.EntityID]ReaderSink{readerID: sink}}
	rx := New(types.GuidPrefix{1}, reg, log.New("test"))

	ts := time.Unix(1700000000, 0).UTC()
	infoTS := &commands.InfoTS{Timestamp: ts}
	d := &commands.Data{ReaderID: readerID, WriterID: writerID, WriterSN: 1, SerializedPayload: []byte("hi")}
	data := encode(t, types.GuidPrefix{9}, []commands.Command{infoTS, d})

	require.NoError(t, rx.ProcessDatagram(data))
	require.Len(t, sink.data, 1)
	require.True(t, ts.Equal(sink.timestamps[0]))
}

func TestReceiverInfoDstSkipsSubmessagesForOtherParticipant(t *testing.T) {
	readerID := types.EntityID{Key: [3]byte{1, 0, 0}}
	writerID := types.EntityID{Key: [3]byte{2, 0, 0}}

	sink := &fakeReaderSink{}
	reg := &fakeRegistry{readers: map[types.EntityID]ReaderSink{readerID: sink}}
	rx := New(types.GuidPrefix{1}, reg, log.New("test"))

	other := &commands.InfoDst{GuidPrefix: types.GuidPrefix{7}}
	d := &commands.Data{ReaderID: readerID, WriterID: writerID, WriterSN: 1, SerializedPayload: []byte("hi")}
	data := encode(t, types.GuidPrefix{9}, []commands.Command{other, d})

	require.NoError(t, rx.ProcessDatagram(data))
	require.Empty(t, sink.data)
}
