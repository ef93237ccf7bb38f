// Package simulation owns the two-agent traffic state and the collision
// release timeline.
package simulation

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dyike/RightOfWay/config"
	"github.com/dyike/RightOfWay/models"
)

var ErrUnknownAgent = errors.New("unknown agent")

const (
	BuyerID  = "agent-1"
	SellerID = "agent-2"
)

var nudgePosition = models.Position{Lat: 35.6787, Lng: 139.7600}

// Machine is the single writer of simulation state. Deferred steps carry the
// timeline generation they were scheduled in. A new collision, Stop and Reset
// each start a new generation and cancel whatever the previous one left
// pending.
type Machine struct {
	mu        sync.Mutex
	agents    map[string]*models.SimulationAgent
	running   bool
	collision bool
	location  string
	epoch     uint64
	gen       uint64

	timeline config.Timeline
	sched    *Scheduler
	board    *CongestionBoard

	subs    map[int]chan models.SimulationSnapshot
	nextSub int
}

type Option func(*Machine)

func WithTimeline(t config.Timeline) Option {
	return func(m *Machine) { m.timeline = t }
}

func WithCongestionBoard(b *CongestionBoard) Option {
	return func(m *Machine) { m.board = b }
}

func NewMachine(opts ...Option) *Machine {
	m := &Machine{
		agents:   make(map[string]*models.SimulationAgent),
		timeline: config.DefaultTimeline(),
		sched:    NewScheduler(),
		board:    NewCongestionBoard(),
		subs:     make(map[int]chan models.SimulationSnapshot),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Machine) Board() *CongestionBoard { return m.board }

// Pending reports how many timeline steps are still scheduled.
func (m *Machine) Pending() int { return m.sched.Pending() }

func demoAgents() []*models.SimulationAgent {
	start := models.PredefinedLocations[models.LocationStartA].Position
	dest := models.PredefinedLocations[models.LocationStartB].Position
	return []*models.SimulationAgent{
		{
			ID:          BuyerID,
			Role:        models.RoleBuyer,
			Address:     "0x1234567890123456789012345678901234567890",
			State:       models.StateIdle,
			Position:    start,
			Destination: &dest,
			Balance:     decimal.NewFromInt(5000),
		},
		{
			ID:          SellerID,
			Role:        models.RoleSeller,
			Address:     "0x0987654321098765432109876543210987654321",
			State:       models.StateIdle,
			Position:    dest,
			Destination: &start,
			Balance:     decimal.NewFromInt(3000),
		},
	}
}

// Initialize recreates both agents in their idle start positions.
func (m *Machine) Initialize() []models.SimulationAgent {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initLocked()
	m.publishLocked()
	return m.snapshotLocked().Agents
}

func (m *Machine) initLocked() {
	m.agents = make(map[string]*models.SimulationAgent)
	for _, a := range demoAgents() {
		m.agents[a.ID] = a
	}
	log.Printf("[Simulation] initialized %d agents", len(m.agents))
}

func (m *Machine) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		log.Printf("[Simulation] already running")
		return
	}
	if len(m.agents) == 0 {
		m.initLocked()
	}
	m.running = true
	m.setLocked(BuyerID, models.StateMoving, nil)
	m.setLocked(SellerID, models.StateIdle, nil)
	m.publishLocked()
	log.Printf("[Simulation] started, collision in %s", m.timeline.CollisionDelay())

	gen := m.gen
	m.sched.Schedule(gen, m.timeline.CollisionDelay(), func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.gen != gen || !m.running {
			return
		}
		m.triggerLocked()
	})
}

// advanceLocked starts a new timeline generation and cancels the steps still
// pending from the previous one.
func (m *Machine) advanceLocked() int {
	old := m.gen
	m.gen++
	return m.sched.Cancel(old)
}

// TriggerCollision blocks agent-1 behind agent-2 at the intersection.
func (m *Machine) TriggerCollision() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.agents) == 0 {
		m.initLocked()
	}
	m.triggerLocked()
}

func (m *Machine) triggerLocked() {
	if n := m.advanceLocked(); n > 0 {
		log.Printf("[Simulation] new collision, %d stale steps cancelled", n)
	}
	loc := models.PredefinedLocations[models.LocationIntersection]
	point := loc.Position
	m.setLocked(BuyerID, models.StateBlocked, &point)
	m.setLocked(SellerID, models.StateIdle, &point)
	m.collision = true
	m.location = loc.ID
	m.board.Set(loc.ID, SellerID)
	m.publishLocked()
	log.Printf("[Simulation] collision detected at %s", loc.ID)
}

// ResolveCollision releases the collision with sellerID giving way. On an
// empty agent set it re-initializes first; with agents present and no active
// collision it does nothing.
func (m *Machine) ResolveCollision(sellerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.agents) == 0 {
		log.Printf("[Simulation] resolve on empty state, re-initializing")
		m.initLocked()
		if len(m.agents) == 0 {
			return fmt.Errorf("re-initialize simulation: no agents")
		}
	} else if !m.collision {
		log.Printf("[Simulation] no collision to resolve (seller %s)", sellerID)
		return nil
	}

	seller, ok := m.agents[sellerID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAgent, sellerID)
	}
	buyerID := m.otherLocked(sellerID)
	if buyerID == "" {
		return fmt.Errorf("%w: no counterpart for %s", ErrUnknownAgent, sellerID)
	}
	buyer := m.agents[buyerID]

	location := m.location
	if location == "" {
		location = models.LocationIntersection
	}
	m.collision = false
	m.location = ""
	m.publishLocked()
	log.Printf("[Simulation] resolving collision at %s: %s gives way to %s", location, sellerID, buyerID)

	crossing := models.PredefinedLocations[models.LocationIntersection].Position
	buyerDest := clonePosition(buyer.Destination, crossing)
	sellerDest := clonePosition(seller.Destination, seller.Position)
	nudge := nudgePosition

	t := m.timeline
	m.stepLocked(t.NudgeDelay(), func() {
		m.setLocked(sellerID, models.StateMoving, &nudge)
	})
	m.stepLocked(t.ResumeDelay(), func() {
		m.setLocked(buyerID, models.StateMoving, nil)
	})
	m.stepLocked(t.PassDelay(), func() {
		m.setLocked(buyerID, models.StateMoving, &crossing)
	})
	m.stepLocked(t.ArriveDelay(), func() {
		m.setLocked(buyerID, models.StateIdle, &buyerDest)
		log.Printf("[Simulation] %s reached destination", buyerID)
	})
	m.stepLocked(t.SellerResumeDelay(), func() {
		m.setLocked(sellerID, models.StateMoving, nil)
	})
	m.stepLocked(t.SellerArriveDelay(), func() {
		m.setLocked(sellerID, models.StateIdle, &sellerDest)
		m.running = false
		m.board.Clear(location)
		log.Printf("[Simulation] %s reached destination, simulation stopped", sellerID)
	})
	return nil
}

// stepLocked schedules fn in the current timeline generation. fn runs under
// the lock and its change is published.
func (m *Machine) stepLocked(delay time.Duration, fn func()) {
	gen := m.gen
	m.sched.Schedule(gen, delay, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.gen != gen {
			return
		}
		fn()
		m.publishLocked()
	})
}

// Stop halts the simulation, frees the board and drops any release steps
// still pending.
func (m *Machine) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	dropped := m.advanceLocked()
	m.running = false
	m.collision = false
	m.location = ""
	m.board.ClearAll()
	m.publishLocked()
	log.Printf("[Simulation] stopped (%d pending steps cancelled)", dropped)
}

// Reset moves to a new epoch, cancels every pending step and starts over
// from freshly initialized agents.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.epoch++
	m.gen++
	dropped := m.sched.CancelAll()
	m.running = false
	m.collision = false
	m.location = ""
	m.board.ClearAll()
	m.agents = make(map[string]*models.SimulationAgent)
	m.initLocked()
	m.publishLocked()
	log.Printf("[Simulation] reset to epoch %d (%d pending steps cancelled)", m.epoch, dropped)
}

// State returns a deep copy of the current state.
func (m *Machine) State() models.SimulationSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// CollisionActive reports whether a collision is waiting to be resolved.
func (m *Machine) CollisionActive() (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.collision, m.location
}

// Subscribe delivers a snapshot after every state change. Slow readers only
// see the latest snapshot. The returned func unsubscribes.
func (m *Machine) Subscribe() (<-chan models.SimulationSnapshot, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSub
	m.nextSub++
	ch := make(chan models.SimulationSnapshot, 1)
	m.subs[id] = ch
	ch <- m.snapshotLocked()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
			close(ch)
		})
	}
}

func (m *Machine) publishLocked() {
	if len(m.subs) == 0 {
		return
	}
	snap := m.snapshotLocked()
	for _, ch := range m.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

func (m *Machine) snapshotLocked() models.SimulationSnapshot {
	ids := make([]string, 0, len(m.agents))
	for id := range m.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	agents := make([]models.SimulationAgent, 0, len(ids))
	for _, id := range ids {
		agents = append(agents, m.agents[id].Clone())
	}
	return models.SimulationSnapshot{
		IsRunning:         m.running,
		CollisionDetected: m.collision,
		CollisionLocation: m.location,
		Epoch:             m.epoch,
		Agents:            agents,
	}
}

func (m *Machine) setLocked(id string, state models.AgentState, pos *models.Position) {
	a, ok := m.agents[id]
	if !ok {
		return
	}
	a.State = state
	if pos != nil {
		a.Position = *pos
	}
}

// otherLocked returns the first agent id, in sorted order, other than id.
func (m *Machine) otherLocked(id string) string {
	ids := make([]string, 0, len(m.agents))
	for k := range m.agents {
		if k != id {
			ids = append(ids, k)
		}
	}
	if len(ids) == 0 {
		return ""
	}
	sort.Strings(ids)
	return ids[0]
}

func clonePosition(p *models.Position, fallback models.Position) models.Position {
	if p == nil {
		return fallback
	}
	return *p
}
