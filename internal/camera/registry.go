package camera

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// Registry holds the streams configured at start-up. The set of cameras is
// fixed for the life of the process.
type Registry struct {
	streams map[string]*Stream
	ids     []string
}

// NewRegistry opens one stream per entry in sources (camera id to source
// string). Sources that fail to open still get an inert stream.
func NewRegistry(ctx context.Context, sources map[string]string, opener Opener, logger *slog.Logger, opts ...Option) *Registry {
	r := &Registry{
		streams: make(map[string]*Stream, len(sources)),
		ids:     make([]string, 0, len(sources)),
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for id, source := range sources {
		wg.Add(1)
		go func(id, source string) {
			defer wg.Done()
			s := Open(ctx, id, source, opener, logger, opts...)

			mu.Lock()
			r.streams[id] = s
			mu.Unlock()
		}(id, source)
	}
	wg.Wait()

	for id := range r.streams {
		r.ids = append(r.ids, id)
	}
	sort.Strings(r.ids)

	return r
}

func (r *Registry) Get(id string) (*Stream, bool) {
	s, ok := r.streams[id]
	return s, ok
}

// IDs returns camera ids in lexical order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.ids))
	copy(out, r.ids)
	return out
}

func (r *Registry) Len() int {
	return len(r.streams)
}

// StopAll stops every stream in parallel and returns once all have exited
// or timed out.
func (r *Registry) StopAll() {
	var wg sync.WaitGroup
	for _, s := range r.streams {
		wg.Add(1)
		go func(s *Stream) {
			defer wg.Done()
			s.Stop()
		}(s)
	}
	wg.Wait()
}
