package lifecycle

import "github.com/mmazune/chefcloud/internal/enum"

// Edge is one legal status transition and the gates on it.
type Edge struct {
	// MinRoleLevel is the lowest enum.RoleLevel allowed to request the edge.
	MinRoleLevel int
	// RequiresReason rejects the transition without a non-empty free-text reason.
	RequiresReason bool
	// RequiresApproval demands an elevated (manager+) approval credential when
	// the order's gross total exceeds the configured threshold.
	RequiresApproval bool
	// RequiresAck demands an explicit wastage acknowledgement: food has
	// already been prepared or plated.
	RequiresAck bool
	// Reversal marks the explicit reversal path out of a terminal state; the
	// caller must set the reversal flag for the edge to apply.
	Reversal bool
	// TakeawayOnly restricts the edge to TAKEAWAY orders (early close paths).
	TakeawayOnly bool
}

const (
	levelKitchen = 1
	levelCashier = 2
	levelManager = 3
	levelOwner   = 4
)

// transitions is the authoritative table. Status is never written outside a
// lookup against this map.
var transitions = map[string]map[string]Edge{
	enum.OrderStatusNew: {
		enum.OrderStatusSent:   {MinRoleLevel: levelCashier},
		enum.OrderStatusVoided: {MinRoleLevel: levelCashier},
	},
	enum.OrderStatusSent: {
		enum.OrderStatusInPrep: {MinRoleLevel: levelKitchen},
		enum.OrderStatusClosed: {MinRoleLevel: levelCashier, TakeawayOnly: true},
		enum.OrderStatusVoided: {MinRoleLevel: levelCashier, RequiresReason: true, RequiresApproval: true},
	},
	enum.OrderStatusInPrep: {
		enum.OrderStatusReady:  {MinRoleLevel: levelKitchen},
		enum.OrderStatusVoided: {MinRoleLevel: levelCashier, RequiresReason: true, RequiresApproval: true},
	},
	enum.OrderStatusReady: {
		enum.OrderStatusServed: {MinRoleLevel: levelCashier},
		enum.OrderStatusClosed: {MinRoleLevel: levelCashier, TakeawayOnly: true},
		enum.OrderStatusVoided: {MinRoleLevel: levelCashier, RequiresReason: true, RequiresApproval: true, RequiresAck: true},
	},
	enum.OrderStatusServed: {
		enum.OrderStatusClosed: {MinRoleLevel: levelCashier},
		enum.OrderStatusVoided: {MinRoleLevel: levelCashier, RequiresReason: true, RequiresApproval: true, RequiresAck: true},
	},
	enum.OrderStatusClosed: {
		enum.OrderStatusVoided: {MinRoleLevel: levelOwner, RequiresReason: true, Reversal: true},
	},
}

// Lookup returns the edge for from -> to, if the table has one.
func Lookup(from, to string) (Edge, bool) {
	edge, ok := transitions[from][to]
	return edge, ok
}

// IsTerminal reports whether status permits no further transitions except an
// explicitly flagged reversal.
func IsTerminal(status string) bool {
	switch status {
	case enum.OrderStatusClosed, enum.OrderStatusVoided:
		return true
	}
	return false
}

// Targets returns the statuses reachable from the given status, reversal
// edges included.
func Targets(from string) []string {
	edges := transitions[from]
	out := make([]string, 0, len(edges))
	for to := range edges {
		out = append(out, to)
	}
	return out
}
