package simulation

import "sync"

const (
	LevelHigh = "high"
	LevelLow  = "low"
)

type CongestionReport struct {
	LocationID       string `json:"locationId"`
	Level            string `json:"congestionLevel"`
	Blocked          bool   `json:"blocked"`
	BlockedBy        string `json:"blockedBy,omitempty"`
	NeedsNegotiation bool   `json:"needsNegotiation"`
	Recommendation   string `json:"recommendation"`
}

// CongestionBoard records which locations are blocked and by whom.
type CongestionBoard struct {
	mu      sync.RWMutex
	blocked map[string]string
}

func NewCongestionBoard() *CongestionBoard {
	return &CongestionBoard{blocked: make(map[string]string)}
}

func (b *CongestionBoard) Set(locationID, blockedBy string) {
	b.mu.Lock()
	b.blocked[locationID] = blockedBy
	b.mu.Unlock()
}

func (b *CongestionBoard) Clear(locationID string) {
	b.mu.Lock()
	delete(b.blocked, locationID)
	b.mu.Unlock()
}

func (b *CongestionBoard) ClearAll() {
	b.mu.Lock()
	b.blocked = make(map[string]string)
	b.mu.Unlock()
}

func (b *CongestionBoard) Level(locationID string) CongestionReport {
	b.mu.RLock()
	by, blocked := b.blocked[locationID]
	b.mu.RUnlock()

	if !blocked {
		return CongestionReport{
			LocationID:     locationID,
			Level:          LevelLow,
			Recommendation: "Path is clear. No negotiation needed.",
		}
	}
	return CongestionReport{
		LocationID:       locationID,
		Level:            LevelHigh,
		Blocked:          true,
		BlockedBy:        by,
		NeedsNegotiation: true,
		Recommendation:   "Path is blocked. Consider negotiating with the blocking agent.",
	}
}

// IsCongested reports whether the location is currently blocked.
func (b *CongestionBoard) IsCongested(locationID string) bool {
	return b.Level(locationID).Blocked
}
