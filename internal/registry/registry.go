// Package registry resolves agent ids to the context an agent negotiates
// with, from a YAML file of agent cards.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/dyike/RightOfWay/models"
)

var ErrNotFound = errors.New("agent not found")

const historyLimit = 20

var zero = decimal.Zero

type MissionCard struct {
	Type     models.MissionType `yaml:"type" json:"type"`
	Priority models.Priority    `yaml:"priority" json:"priority"`
	// DeadlineMinutes is relative to the moment the context is built.
	DeadlineMinutes       *int `yaml:"deadline_minutes,omitempty" json:"deadline_minutes,omitempty"`
	DestinationImportance int  `yaml:"destination_importance" json:"destination_importance"`
}

type StrategyCard struct {
	MaxWillingToPay    string      `yaml:"max_willing_to_pay" json:"max_willing_to_pay"`
	MinAcceptableOffer string      `yaml:"min_acceptable_offer" json:"min_acceptable_offer"`
	PatienceLevel      int         `yaml:"patience_level" json:"patience_level"`
	PreferredRole      models.Role `yaml:"preferred_role" json:"preferred_role"`
}

// AgentCard is one registered agent. Amounts are decimal strings.
type AgentCard struct {
	ID                int              `yaml:"id" json:"id"`
	Name              string           `yaml:"name,omitempty" json:"name,omitempty"`
	Wallet            string           `yaml:"wallet" json:"wallet"`
	Network           models.Network   `yaml:"network,omitempty" json:"network,omitempty"`
	Mission           MissionCard      `yaml:"mission" json:"mission"`
	Balance           string           `yaml:"balance" json:"balance"`
	AlternativeRoutes []string         `yaml:"alternative_routes,omitempty" json:"alternative_routes,omitempty"`
	Strategy          StrategyCard     `yaml:"strategy" json:"strategy"`
	Position          *models.Position `yaml:"position,omitempty" json:"position,omitempty"`
}

type file struct {
	Agents []AgentCard `yaml:"agents" json:"agents"`
}

func (c AgentCard) Validate() error {
	if c.ID <= 0 {
		return fmt.Errorf("agent id must be positive, got %d", c.ID)
	}
	if strings.TrimSpace(c.Wallet) == "" {
		return fmt.Errorf("agent %d: wallet is required", c.ID)
	}
	if !c.Mission.Type.Valid() {
		return fmt.Errorf("agent %d: invalid mission type %q", c.ID, c.Mission.Type)
	}
	if !c.Mission.Priority.Valid() {
		return fmt.Errorf("agent %d: invalid priority %q", c.ID, c.Mission.Priority)
	}
	if c.Strategy.PreferredRole != "" && !c.Strategy.PreferredRole.Valid() {
		return fmt.Errorf("agent %d: invalid preferred role %q", c.ID, c.Strategy.PreferredRole)
	}
	if c.Strategy.PatienceLevel < 0 || c.Strategy.PatienceLevel > 10 {
		return fmt.Errorf("agent %d: patience level must be 0-10", c.ID)
	}
	_, err := c.amounts()
	return err
}

type amounts struct {
	balance, maxPay, minAccept decimal.Decimal
}

func (c AgentCard) amounts() (amounts, error) {
	var a amounts
	for _, f := range []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"balance", c.Balance, &a.balance},
		{"max_willing_to_pay", c.Strategy.MaxWillingToPay, &a.maxPay},
		{"min_acceptable_offer", c.Strategy.MinAcceptableOffer, &a.minAccept},
	} {
		if strings.TrimSpace(f.raw) == "" {
			*f.dst = zero
			continue
		}
		d, err := decimal.NewFromString(strings.TrimSpace(f.raw))
		if err != nil {
			return a, fmt.Errorf("agent %d: %s: %w", c.ID, f.name, err)
		}
		if d.IsNegative() {
			return a, fmt.Errorf("agent %d: %s must not be negative", c.ID, f.name)
		}
		*f.dst = d
	}
	return a, nil
}

// Context builds a fresh AgentContext for one negotiation.
func (c AgentCard) Context(now time.Time) (*models.AgentContext, error) {
	a, err := c.amounts()
	if err != nil {
		return nil, err
	}
	ctx := &models.AgentContext{
		AgentID: c.ID,
		Wallet:  c.Wallet,
		Mission: models.Mission{
			Type:                  c.Mission.Type,
			Priority:              c.Mission.Priority,
			DestinationImportance: c.Mission.DestinationImportance,
		},
		Balance:           a.balance,
		AlternativeRoutes: append([]string(nil), c.AlternativeRoutes...),
		Strategy: models.NegotiationStrategy{
			MaxWillingToPay:    a.maxPay,
			MinAcceptableOffer: a.minAccept,
			PatienceLevel:      c.Strategy.PatienceLevel,
			PreferredRole:      c.Strategy.PreferredRole,
		},
		Network: c.Network,
	}
	if ctx.Strategy.PreferredRole == "" {
		ctx.Strategy.PreferredRole = models.RoleFlexible
	}
	if c.Mission.DeadlineMinutes != nil {
		d := now.Add(time.Duration(*c.Mission.DeadlineMinutes) * time.Minute)
		ctx.Mission.Deadline = &d
	}
	if c.Position != nil {
		ctx.CurrentPosition = *c.Position
	}
	return ctx, nil
}

// HistorySource supplies past negotiations for an agent.
type HistorySource interface {
	AgentHistory(ctx context.Context, agentID, limit int) ([]models.HistoryEntry, error)
}

type Registry struct {
	mu      sync.RWMutex
	cards   map[int]AgentCard
	history HistorySource
	now     func() time.Time
}

type Option func(*Registry)

func WithHistory(h HistorySource) Option { return func(r *Registry) { r.history = h } }

func WithClock(now func() time.Time) Option { return func(r *Registry) { r.now = now } }

func New(cards []AgentCard, opts ...Option) (*Registry, error) {
	r := &Registry{cards: make(map[int]AgentCard), now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	for _, c := range cards {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.cards[c.ID]; dup {
			return nil, fmt.Errorf("agent %d registered twice", c.ID)
		}
		r.cards[c.ID] = c
	}
	return r, nil
}

// Load reads a registry file. A missing file yields an empty registry, which
// still serves the demo agents.
func Load(path string, opts ...Option) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Printf("[Registry] %s not found, serving demo agents only", path)
			return New(nil, opts...)
		}
		return nil, fmt.Errorf("read registry: %w", err)
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", path, err)
	}
	r, err := New(f.Agents, opts...)
	if err != nil {
		return nil, fmt.Errorf("registry %s: %w", path, err)
	}
	log.Printf("[Registry] loaded %d agents from %s", len(f.Agents), path)
	return r, nil
}

// Save writes the registered cards as YAML.
func (r *Registry) Save(path string) error {
	r.mu.RLock()
	f := file{Agents: r.sortedLocked()}
	r.mu.RUnlock()

	data, err := yaml.Marshal(&f)
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write registry: %w", err)
	}
	return nil
}

func (r *Registry) Register(c AgentCard) error {
	if err := c.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cards[c.ID] = c
	return nil
}

// Card returns the registered card, or the demo card for agents 1 and 2.
func (r *Registry) Card(id int) (AgentCard, error) {
	r.mu.RLock()
	c, ok := r.cards[id]
	r.mu.RUnlock()
	if ok {
		return c, nil
	}
	if c, ok := demoCards()[id]; ok {
		return c, nil
	}
	return AgentCard{}, fmt.Errorf("%w: %d", ErrNotFound, id)
}

// Cards lists registered cards plus any demo agent not overridden.
func (r *Registry) Cards() []AgentCard {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := r.sortedLocked()
	for id, c := range demoCards() {
		if _, ok := r.cards[id]; !ok {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) sortedLocked() []AgentCard {
	out := make([]AgentCard, 0, len(r.cards))
	for _, c := range r.cards {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Context resolves id to a negotiation context. A card without a network
// inherits network; history comes from the history source when one is set.
func (r *Registry) Context(ctx context.Context, id int, network models.Network) (*models.AgentContext, error) {
	card, err := r.Card(id)
	if err != nil {
		return nil, err
	}
	c, err := card.Context(r.now())
	if err != nil {
		return nil, err
	}
	if c.Network == "" {
		c.Network = network
	}
	if r.history != nil {
		hist, err := r.history.AgentHistory(ctx, id, historyLimit)
		if err != nil {
			log.Printf("[Registry] history for agent %d: %v", id, err)
		} else {
			c.NegotiationHistory = hist
		}
	}
	return c, nil
}
