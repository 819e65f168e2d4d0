package notation

import (
	"sync"

	"github.com/Conceptual-Machines/solfa-api/internal/models"
)

// renderState is the per-renderer memo of the last accepted layout. Each
// render pass takes a token; only the holder of the newest token may accept.
type renderState struct {
	mu        sync.Mutex
	hash      uint64
	cfg       models.RenderConfig
	positions *models.PositionMap
	relayouts int
	token     uint64
}

// lookup returns the accepted map when pattern and config are unchanged
func (s *renderState) lookup(hash uint64, cfg models.RenderConfig) (*models.PositionMap, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.positions != nil && s.hash == hash && s.cfg == cfg {
		return s.positions, true
	}
	return nil, false
}

// begin supersedes any pass in flight
func (s *renderState) begin() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token++
	return s.token
}

// current reports whether token is still the newest pass
func (s *renderState) current(token uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token == token
}

// accept stores the finished layout unless a newer pass started meanwhile
func (s *renderState) accept(token, hash uint64, cfg models.RenderConfig, pm *models.PositionMap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token != s.token {
		return ErrSuperseded
	}
	s.hash = hash
	s.cfg = cfg
	s.positions = pm
	s.relayouts++
	return nil
}

func (s *renderState) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token++
	s.hash = 0
	s.positions = nil
}

func (s *renderState) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.relayouts
}
