package consts

// Negotiation graph nodes
const (
	NodeInitialOffer   = "initial_offer"
	NodeEvaluateOffer  = "evaluate_offer"
	NodeRespondCounter = "respond_counter"
	NodeSettle         = "settle"
	NodeClose          = "close"
)

const GraphNegotiation = "RightOfWay-Negotiation"
