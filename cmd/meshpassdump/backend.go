package main

import (
	"fmt"
	"io"
	"slices"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/meshpass"
	"github.com/gogpu/meshpass/scene"
	"github.com/gogpu/meshpass/trace"
)

// Backend provides the streams a frame renders to and reports what they
// received.
type Backend interface {
	// Open prepares the backend for s. It is called once, before Stream.
	Open(s *scene.Scene) error
	// Stream returns the stream of a view.
	Stream(view meshpass.ViewID) meshpass.Stream
	// Dump writes what every view's stream received.
	Dump(w io.Writer) error
	Close()
}

// backends lists the available backends, most preferred first.
var backends = gpucontext.NewRegistry[Backend](gpucontext.WithPriority("trace", "hal"))

func init() {
	backends.Register("trace", func() Backend { return newTraceBackend() })
	backends.Register("hal", func() Backend { return newHALBackend() })
}

// openBackend returns the named backend, or the preferred one for "".
func openBackend(name string) (Backend, error) {
	if name == "" {
		name = backends.BestName()
	}
	if !backends.Has(name) {
		return nil, fmt.Errorf("unknown backend %q (available: %v)", name, backends.Available())
	}
	return backends.Get(name), nil
}

type traceBackend struct {
	recorders map[meshpass.ViewID]*trace.Recorder
}

func newTraceBackend() *traceBackend {
	return &traceBackend{recorders: make(map[meshpass.ViewID]*trace.Recorder)}
}

func (b *traceBackend) Open(*scene.Scene) error { return nil }

func (b *traceBackend) Stream(view meshpass.ViewID) meshpass.Stream {
	r := trace.NewRecorder()
	b.recorders[view] = r
	return r
}

func (b *traceBackend) Dump(w io.Writer) error {
	for _, id := range sortedViews(b.recorders) {
		rec := b.recorders[id].Finish()
		if _, err := fmt.Fprintf(w, "# view %d: %d passes, %d draws\n", id, rec.Passes(), rec.Draws()); err != nil {
			return err
		}
		if _, err := rec.WriteTo(w); err != nil {
			return err
		}
	}
	return nil
}

func (b *traceBackend) Close() {}

func sortedViews[V any](m map[meshpass.ViewID]V) []meshpass.ViewID {
	ids := make([]meshpass.ViewID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
