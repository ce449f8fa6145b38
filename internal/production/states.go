package production

import "restoran-pos/internal/models"

var forward = map[models.ProductionState]models.ProductionState{
	models.ProductionPending:       models.ProductionInPreparation,
	models.ProductionInPreparation: models.ProductionReady,
	models.ProductionReady:         models.ProductionDelivered,
}

var rank = map[models.ProductionState]int{
	models.ProductionPending:       0,
	models.ProductionInPreparation: 1,
	models.ProductionReady:         2,
	models.ProductionDelivered:     3,
}

// CanTransitionTicket: one step forward, or void from any non-final state.
func CanTransitionTicket(from, to models.ProductionState) bool {
	if to == models.ProductionVoided {
		return from != models.ProductionDelivered && from != models.ProductionVoided
	}
	return forward[from] == to
}

// CanTransitionItem: one step forward. Items are never voided on their own.
func CanTransitionItem(from, to models.ProductionState) bool {
	return forward[from] == to
}

func isLive(s models.ProductionState) bool {
	return s != models.ProductionDelivered && s != models.ProductionVoided
}

func isDone(s models.ProductionState) bool {
	return s == models.ProductionReady || s == models.ProductionDelivered
}

// allDone reports whether every item is ready or delivered. Empty tickets are not done.
func allDone(items []models.TicketItem) bool {
	if len(items) == 0 {
		return false
	}
	for _, it := range items {
		if !isDone(it.State) {
			return false
		}
	}
	return true
}

// leastAdvanced is the state an order line shows: the slowest of its ticket items.
func leastAdvanced(states []models.ProductionState) models.ProductionState {
	if len(states) == 0 {
		return models.ProductionPending
	}
	least := states[0]
	for _, s := range states[1:] {
		if rank[s] < rank[least] {
			least = s
		}
	}
	return least
}

// deriveOrderState maps live ticket states onto the order's production progress.
func deriveOrderState(ticketStates []models.ProductionState) models.OrderState {
	var live []models.ProductionState
	for _, s := range ticketStates {
		if s != models.ProductionVoided {
			live = append(live, s)
		}
	}
	if len(live) == 0 {
		return models.OrderOpen
	}
	done, started := true, false
	for _, s := range live {
		if !isDone(s) {
			done = false
		}
		if s != models.ProductionPending {
			started = true
		}
	}
	switch {
	case done:
		return models.OrderReadyForDelivery
	case started:
		return models.OrderInPreparation
	default:
		return models.OrderSentToProduction
	}
}
