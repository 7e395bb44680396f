package participant

import (
	"sync"

	"github.com/katzenpost/rtps/reader"
	"github.com/katzenpost/rtps/receiver"
	"github.com/katzenpost/rtps/types"
	"github.com/katzenpost/rtps/writer"
)

// Registry maps entity ids to the endpoints a participant owns, per
// spec.md §4.7. Creation (AddReader/AddWriter) is the only path to
// register an endpoint; RemoveReader/RemoveWriter unregister it, but do
// not themselves halt its timers — callers must Halt the endpoint first,
// per spec.md §4.7's "destruction cancels all timers... before any memory
// is released" ordering.
type Registry struct {
	mu      sync.RWMutex
	readers map[types.EntityID]*reader.StatefulReader
	writers map[types.EntityID]*writer.StatefulWriter
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		readers: make(map[types.EntityID]*reader.StatefulReader),
		writers: make(map[types.EntityID]*writer.StatefulWriter),
	}
}

// AddReader registers sr under id.
func (r *Registry) AddReader(id types.EntityID, sr *reader.StatefulReader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readers[id] = sr
}

// AddWriter registers sw under id.
func (r *Registry) AddWriter(id types.EntityID, sw *writer.StatefulWriter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writers[id] = sw
}

// RemoveReader unregisters the reader at id.
func (r *Registry) RemoveReader(id types.EntityID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.readers, id)
}

// RemoveWriter unregisters the writer at id.
func (r *Registry) RemoveWriter(id types.EntityID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.writers, id)
}

// Reader implements receiver.Registry.
func (r *Registry) Reader(id types.EntityID) (receiver.ReaderSink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sr, ok := r.readers[id]
	if !ok {
		return nil, false
	}
	return sr, true
}

// Writer implements receiver.Registry.
func (r *Registry) Writer(id types.EntityID) (receiver.WriterSink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sw, ok := r.writers[id]
	if !ok {
		return nil, false
	}
	return sw, true
}

// StatefulReader returns the concrete reader registered at id, for callers
// (e.g. the liveliness coordinator, SEDP) that need its full method
// surface rather than just receiver.ReaderSink.
func (r *Registry) StatefulReader(id types.EntityID) (*reader.StatefulReader, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sr, ok := r.readers[id]
	return sr, ok
}

// StatefulWriter returns the concrete writer registered at id.
func (r *Registry) StatefulWriter(id types.EntityID) (*writer.StatefulWriter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sw, ok := r.writers[id]
	return sw, ok
}

// Readers returns every currently registered reader.
func (r *Registry) Readers() []*reader.StatefulReader {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*reader.StatefulReader, 0, len(r.readers))
	for _, sr := range r.readers {
		out = append(out, sr)
	}
	return out
}

// Writers returns every currently registered writer.
func (r *Registry) Writers() []*writer.StatefulWriter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*writer.StatefulWriter, 0, len(r.writers))
	for _, sw := range r.writers {
		out = append(out, sw)
	}
	return out
}
