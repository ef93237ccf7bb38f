package registry

import (
	"time"

	"github.com/dyike/RightOfWay/models"
)

// Demo agents stand in for unregistered agents 1 and 2: an urgent delivery
// drone with no way around the intersection, and a relaxed patrol car with
// two detours.
func demoCards() map[int]AgentCard {
	deadline := 30
	return map[int]AgentCard{
		1: {
			ID:     1,
			Name:   "Delivery drone",
			Wallet: "0x1234567890123456789012345678901234567890",
			Mission: MissionCard{
				Type:                  models.MissionDelivery,
				Priority:              models.PriorityHigh,
				DeadlineMinutes:       &deadline,
				DestinationImportance: 9,
			},
			Balance: "5000",
			Strategy: StrategyCard{
				MaxWillingToPay:    "500",
				MinAcceptableOffer: "300",
				PatienceLevel:      2,
				PreferredRole:      models.RoleBuyer,
			},
			Position: &models.Position{Lat: 35.6762, Lng: 139.6503},
		},
		2: {
			ID:     2,
			Name:   "Patrol car",
			Wallet: "0x0987654321098765432109876543210987654321",
			Mission: MissionCard{
				Type:                  models.MissionPatrol,
				Priority:              models.PriorityLow,
				DestinationImportance: 3,
			},
			Balance:           "3000",
			AlternativeRoutes: []string{"route_north", "route_south"},
			Strategy: StrategyCard{
				MaxWillingToPay:    "150",
				MinAcceptableOffer: "400",
				PatienceLevel:      8,
				PreferredRole:      models.RoleSeller,
			},
			Position: &models.Position{Lat: 35.6895, Lng: 139.6917},
		},
	}
}

// DemoContext returns the built-in context for agent 1 or 2.
func DemoContext(id int, now time.Time) (*models.AgentContext, bool) {
	card, ok := demoCards()[id]
	if !ok {
		return nil, false
	}
	c, err := card.Context(now)
	if err != nil {
		return nil, false
	}
	return c, true
}
