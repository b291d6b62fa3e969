package utils

const (
	// Custom ID prefixes for interaction routing
	OrderClaimPrefix    = "/order/claim/"
	OrderCancelPrefix   = "/order/cancel/"
	OrderDeliverPrefix  = "/order/deliver/"
	OfferOrderPrefix    = "/offer/order/"
	OfferModalPrefix    = "/offer/modal/"
	OfferWithdrawPrefix = "/offer/withdraw/"
)
