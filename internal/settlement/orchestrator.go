package settlement

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dyike/RightOfWay/config"
	"github.com/dyike/RightOfWay/models"
)

var ErrSettlementFailed = errors.New("settlement failed")

const zeroAddress = "0x0000000000000000000000000000000000000000"

// Releaser frees the contested location once the seller has been paid.
type Releaser interface {
	ResolveCollision(sellerID string) error
}

type Orchestrator struct {
	settler    Settler
	keys       KeyStore
	releaser   Releaser
	contract   string
	production bool
}

type Options struct {
	Settler    Settler
	Keys       KeyStore
	Releaser   Releaser
	Contract   string
	Production bool
}

func NewOrchestrator(opts Options) *Orchestrator {
	keys := opts.Keys
	if keys == nil {
		keys = StaticKeys{}
	}
	return &Orchestrator{
		settler:    opts.Settler,
		keys:       keys,
		releaser:   opts.Releaser,
		contract:   opts.Contract,
		production: opts.Production,
	}
}

// FromConfig wires the relayer client when a relayer URL is configured.
func FromConfig(cfg *config.Config, releaser Releaser) *Orchestrator {
	var settler Settler
	if cfg.RelayerURL != "" {
		settler = NewRelayerClient(cfg.RelayerURL, cfg.ContractAddress, cfg.RelayerTimeout())
	}
	return NewOrchestrator(Options{
		Settler:    settler,
		Keys:       KeysFromConfig(cfg),
		Releaser:   releaser,
		Contract:   cfg.ContractAddress,
		Production: cfg.IsProduction(),
	})
}

func (o *Orchestrator) railConfigured() bool {
	c := strings.TrimSpace(o.contract)
	return o.settler != nil && c != "" && !strings.EqualFold(c, zeroAddress)
}

// Settle pays the seller and releases the collision. Only a payment failure
// in production mode returns an error; the collision then stays blocked.
func (o *Orchestrator) Settle(ctx context.Context, buyer, seller *models.AgentContext, price decimal.Decimal, locationID string, transcript *[]string) error {
	note := func(format string, args ...any) {
		*transcript = append(*transcript, fmt.Sprintf(format, args...))
	}
	note("[System] Executing payment: %s JPYC...", price.StringFixed(2))

	key, hasKey := o.keys.SigningKey(buyer.AgentID)
	switch {
	case !hasKey:
		log.Printf("[Settlement] no signing key for agent %d, simulating payment", buyer.AgentID)
		note("[System] Simulated payment (no signing key for Agent %d)", buyer.AgentID)
	case !o.railConfigured():
		note("[System] Simulated payment (payment rail not configured)")
	default:
		receipt, err := o.settler.Settle(ctx, SettleRequest{
			PayerKey: key,
			Payee:    seller.Wallet,
			Amount:   price,
			Memo:     fmt.Sprintf("right-of-way %s", locationID),
			Network:  buyer.Network,
		})
		if err != nil {
			log.Printf("[Settlement] payment from agent %d failed: %v", buyer.AgentID, err)
			note("[Error] Payment failed: %v", err)
			if o.production {
				return fmt.Errorf("%w: %w", ErrSettlementFailed, err)
			}
			note("[System] Continuing demo (development mode)")
		} else {
			note("[System] Payment confirmed: %s", receipt.TxHash)
			note("[System] %s JPYC: %s -> %s", price.StringFixed(2), buyer.Wallet, seller.Wallet)
		}
	}

	o.release(seller, note)
	return nil
}

// Release frees the collision without moving funds. Used when the agent
// giving way never asked to be paid.
func (o *Orchestrator) Release(_ context.Context, seller *models.AgentContext, transcript *[]string) error {
	note := func(format string, args ...any) {
		*transcript = append(*transcript, fmt.Sprintf(format, args...))
	}
	log.Printf("[Settlement] agent %d yields without payment", seller.AgentID)
	note("[System] No payment made: Agent %d yields without asking for payment", seller.AgentID)
	o.release(seller, note)
	return nil
}

func (o *Orchestrator) release(seller *models.AgentContext, note func(string, ...any)) {
	if o.releaser == nil {
		return
	}
	if err := o.releaser.ResolveCollision(seller.SimulationID()); err != nil {
		log.Printf("[Settlement] release for %s failed: %v", seller.SimulationID(), err)
		note("[Error] Collision release failed: %v", err)
		return
	}
	note("[System] Collision resolved. Traffic flowing.")
}
