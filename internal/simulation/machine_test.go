package simulation

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/dyike/RightOfWay/config"
	"github.com/dyike/RightOfWay/models"
)

func fastTimeline() config.Timeline {
	return config.Timeline{
		CollisionDelayMS:    10,
		NudgeDelayMS:        5,
		ResumeDelayMS:       10,
		PassDelayMS:         15,
		ArriveDelayMS:       20,
		SellerResumeDelayMS: 25,
		SellerArriveDelayMS: 30,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func sellerArrived(m *Machine) func() bool {
	return func() bool {
		seller := agentByID(m.State(), SellerID)
		return seller.State == models.StateIdle && seller.Destination != nil && seller.Position == *seller.Destination
	}
}

func agentByID(s models.SimulationSnapshot, id string) models.SimulationAgent {
	for _, a := range s.Agents {
		if a.ID == id {
			return a
		}
	}
	return models.SimulationAgent{}
}

func TestStateIsIdempotent(t *testing.T) {
	m := NewMachine(WithTimeline(fastTimeline()))
	m.Initialize()

	first := m.State()
	second := m.State()
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("State changed without a transition:\n%+v\n%+v", first, second)
	}

	// Mutating a snapshot must not leak back into the machine.
	first.Agents[0].Destination.Lat = 0
	first.Agents[0].State = models.StateBlocked
	if !reflect.DeepEqual(second, m.State()) {
		t.Fatalf("snapshot shares memory with machine state")
	}
}

func TestStartTriggersCollision(t *testing.T) {
	m := NewMachine(WithTimeline(fastTimeline()))
	m.Initialize()
	m.Start()

	if s := m.State(); !s.IsRunning || agentByID(s, BuyerID).State != models.StateMoving {
		t.Fatalf("expected running with agent-1 moving, got %+v", s)
	}

	waitFor(t, "collision", func() bool { return m.State().CollisionDetected })

	s := m.State()
	intersection := models.PredefinedLocations[models.LocationIntersection].Position
	if s.CollisionLocation != models.LocationIntersection {
		t.Fatalf("unexpected collision location %q", s.CollisionLocation)
	}
	buyer, seller := agentByID(s, BuyerID), agentByID(s, SellerID)
	if buyer.State != models.StateBlocked || seller.State != models.StateIdle {
		t.Fatalf("unexpected states buyer=%s seller=%s", buyer.State, seller.State)
	}
	if buyer.Position != intersection || seller.Position != intersection {
		t.Fatalf("agents not at the collision point")
	}
	report := m.Board().Level(models.LocationIntersection)
	if !report.Blocked || report.BlockedBy != SellerID || !report.NeedsNegotiation {
		t.Fatalf("congestion not flagged: %+v", report)
	}
}

func TestStartTwiceIsNoop(t *testing.T) {
	m := NewMachine(WithTimeline(config.Timeline{CollisionDelayMS: 1000}))
	m.Initialize()
	m.Start()
	m.Start()
	if got := m.Pending(); got != 1 {
		t.Fatalf("expected a single scheduled collision, got %d", got)
	}
	m.Reset()
}

func TestResolveCollisionTimeline(t *testing.T) {
	m := NewMachine(WithTimeline(fastTimeline()))
	m.Initialize()
	m.TriggerCollision()

	if err := m.ResolveCollision(SellerID); err != nil {
		t.Fatalf("ResolveCollision: %v", err)
	}
	if s := m.State(); s.CollisionDetected || s.CollisionLocation != "" {
		t.Fatalf("collision record not cleared: %+v", s)
	}

	// A second resolve finds no active collision and schedules nothing.
	pending := m.Pending()
	if err := m.ResolveCollision(SellerID); err != nil {
		t.Fatalf("second ResolveCollision: %v", err)
	}
	if m.Pending() != pending {
		t.Fatalf("second resolve scheduled more steps")
	}

	waitFor(t, "timeline to finish", sellerArrived(m))

	s := m.State()
	buyer, seller := agentByID(s, BuyerID), agentByID(s, SellerID)
	if buyer.State != models.StateIdle || buyer.Position != *buyer.Destination {
		t.Fatalf("buyer did not arrive: %+v", buyer)
	}
	if seller.State != models.StateIdle || seller.Position != *seller.Destination {
		t.Fatalf("seller did not arrive: %+v", seller)
	}
	if s.IsRunning {
		t.Fatalf("simulation should stop after the timeline")
	}
	if m.Board().IsCongested(models.LocationIntersection) {
		t.Fatalf("congestion not cleared")
	}
}

func TestResolveOnEmptyStateReinitializes(t *testing.T) {
	m := NewMachine(WithTimeline(fastTimeline()))
	if s := m.State(); len(s.Agents) != 0 || s.CollisionDetected {
		t.Fatalf("expected empty machine, got %+v", s)
	}

	if err := m.ResolveCollision(SellerID); err != nil {
		t.Fatalf("ResolveCollision on empty state: %v", err)
	}
	if got := len(m.State().Agents); got != 2 {
		t.Fatalf("expected agents re-initialized, got %d", got)
	}

	waitFor(t, "timeline to finish", sellerArrived(m))
	buyer := agentByID(m.State(), BuyerID)
	if buyer.Position != *buyer.Destination {
		t.Fatalf("timeline did not complete after recovery")
	}
}

func TestResolveWithoutCollisionIsNoop(t *testing.T) {
	m := NewMachine(WithTimeline(fastTimeline()))
	m.Initialize()
	before := m.State()

	if err := m.ResolveCollision(SellerID); err != nil {
		t.Fatalf("ResolveCollision: %v", err)
	}
	if m.Pending() != 0 {
		t.Fatalf("no-op resolve scheduled steps")
	}
	if !reflect.DeepEqual(before, m.State()) {
		t.Fatalf("no-op resolve changed state")
	}
}

func TestResolveUnknownSeller(t *testing.T) {
	m := NewMachine(WithTimeline(fastTimeline()))
	m.Initialize()
	m.TriggerCollision()

	err := m.ResolveCollision("agent-9")
	if !errors.Is(err, ErrUnknownAgent) {
		t.Fatalf("expected ErrUnknownAgent, got %v", err)
	}
	if !m.State().CollisionDetected {
		t.Fatalf("failed resolve must keep the collision active")
	}
	if m.Pending() != 0 {
		t.Fatalf("failed resolve scheduled steps")
	}
}

func TestResetCancelsTimeline(t *testing.T) {
	m := NewMachine(WithTimeline(slowTimeline()))
	m.Initialize()
	m.TriggerCollision()
	if err := m.ResolveCollision(SellerID); err != nil {
		t.Fatalf("ResolveCollision: %v", err)
	}
	if m.Pending() != 6 {
		t.Fatalf("expected 6 pending steps, got %d", m.Pending())
	}

	m.Reset()
	afterReset := m.State()
	if m.Pending() != 0 {
		t.Fatalf("reset left %d pending steps", m.Pending())
	}

	time.Sleep(150 * time.Millisecond)
	if !reflect.DeepEqual(afterReset, m.State()) {
		t.Fatalf("state changed after reset:\n%+v\n%+v", afterReset, m.State())
	}
	if afterReset.Epoch != 1 {
		t.Fatalf("expected epoch 1 after reset, got %d", afterReset.Epoch)
	}
}

func slowTimeline() config.Timeline {
	return config.Timeline{
		CollisionDelayMS:    10,
		NudgeDelayMS:        40,
		ResumeDelayMS:       50,
		PassDelayMS:         60,
		ArriveDelayMS:       70,
		SellerResumeDelayMS: 80,
		SellerArriveDelayMS: 90,
	}
}

func TestNewCollisionDropsPreviousTimeline(t *testing.T) {
	tests := []struct {
		name    string
		restart func(t *testing.T, m *Machine)
	}{
		{"stop then trigger", func(_ *testing.T, m *Machine) {
			m.Stop()
			m.TriggerCollision()
		}},
		{"trigger during release", func(t *testing.T, m *Machine) {
			if err := m.Control(ActionTrigger, ""); err != nil {
				t.Fatalf("trigger: %v", err)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMachine(WithTimeline(slowTimeline()))
			defer m.Reset()
			m.Initialize()
			m.TriggerCollision()
			if err := m.ResolveCollision(SellerID); err != nil {
				t.Fatalf("ResolveCollision: %v", err)
			}

			tt.restart(t, m)
			if m.Pending() != 0 {
				t.Fatalf("previous timeline left %d pending steps", m.Pending())
			}
			before := m.State()

			time.Sleep(150 * time.Millisecond)
			s := m.State()
			if !reflect.DeepEqual(before, s) {
				t.Fatalf("stale steps changed the new collision:\n%+v\n%+v", before, s)
			}
			if !s.CollisionDetected || agentByID(s, BuyerID).State != models.StateBlocked {
				t.Fatalf("expected the new collision to stay blocked: %+v", s)
			}
			if !m.Board().IsCongested(models.LocationIntersection) {
				t.Fatalf("stale step cleared the congestion flag")
			}
		})
	}
}

func TestStopMidTimeline(t *testing.T) {
	m := NewMachine(WithTimeline(slowTimeline()))
	m.Initialize()
	m.TriggerCollision()
	if err := m.ResolveCollision(SellerID); err != nil {
		t.Fatalf("ResolveCollision: %v", err)
	}

	m.Stop()
	stopped := m.State()
	if m.Pending() != 0 {
		t.Fatalf("stop left %d pending steps", m.Pending())
	}
	if stopped.IsRunning || stopped.CollisionDetected {
		t.Fatalf("unexpected state after stop: %+v", stopped)
	}
	if m.Board().IsCongested(models.LocationIntersection) {
		t.Fatalf("stop should free the board")
	}

	time.Sleep(150 * time.Millisecond)
	if !reflect.DeepEqual(stopped, m.State()) {
		t.Fatalf("state changed after stop:\n%+v\n%+v", stopped, m.State())
	}
}

func TestSchedulerCancelGeneration(t *testing.T) {
	s := NewScheduler()
	fired := make(chan uint64, 4)
	for i := 0; i < 2; i++ {
		s.Schedule(1, 20*time.Millisecond, func() { fired <- 1 })
	}
	s.Schedule(2, 20*time.Millisecond, func() { fired <- 2 })

	if got := s.Cancel(1); got != 2 {
		t.Fatalf("expected 2 cancelled, got %d", got)
	}
	select {
	case gen := <-fired:
		if gen != 2 {
			t.Fatalf("cancelled generation fired")
		}
	case <-time.After(time.Second):
		t.Fatalf("generation 2 never fired")
	}
	time.Sleep(40 * time.Millisecond)
	if len(fired) != 0 || s.Pending() != 0 {
		t.Fatalf("unexpected extra steps: fired=%d pending=%d", len(fired), s.Pending())
	}
}

func TestSubscribeReceivesUpdates(t *testing.T) {
	m := NewMachine(WithTimeline(fastTimeline()))
	ch, cancel := m.Subscribe()
	defer cancel()

	<-ch // initial snapshot
	m.Initialize()
	m.TriggerCollision()

	deadline := time.After(time.Second)
	for {
		select {
		case s := <-ch:
			if s.CollisionDetected {
				return
			}
		case <-deadline:
			t.Fatalf("no collision snapshot delivered")
		}
	}
}

func TestSchedulerCancelAll(t *testing.T) {
	s := NewScheduler()
	fired := make(chan struct{}, 3)
	for i := 0; i < 3; i++ {
		s.Schedule(7, time.Hour, func() { fired <- struct{}{} })
	}
	s.Schedule(8, time.Millisecond, func() { fired <- struct{}{} })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatalf("short timer never fired")
	}
	if got := s.Pending(); got != 3 {
		t.Fatalf("expected 3 pending, got %d", got)
	}
	if got := s.CancelAll(); got != 3 {
		t.Fatalf("expected 3 cancelled, got %d", got)
	}
	if s.Pending() != 0 {
		t.Fatalf("pending after CancelAll")
	}
}

func TestControlActions(t *testing.T) {
	m := NewMachine(WithTimeline(fastTimeline()))
	defer m.Stop()

	if err := m.Control(ActionTrigger, ""); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if active, loc := m.CollisionActive(); !active || loc != models.LocationIntersection {
		t.Fatalf("expected collision at intersection, got %v %q", active, loc)
	}
	if err := m.Control(ActionResolve, ""); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	waitFor(t, "seller arrival", sellerArrived(m))

	if err := m.Control("teleport", ""); !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
	if err := m.Control(ActionTrigger, ""); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if err := m.Control(ActionResolve, "agent-9"); !errors.Is(err, ErrUnknownAgent) {
		t.Fatalf("expected ErrUnknownAgent, got %v", err)
	}
}
