package engine

import "poly-copy-trader/internal/storage"

// Action is the copy decision derived from a tracked activity.
type Action string

const (
	ActionMerge       Action = "merge"
	ActionBuy         Action = "buy"
	ActionSell        Action = "sell"
	ActionUnsupported Action = "unsupported"
)

// Classify maps an activity to its copy action. The priority order is fixed:
// a MERGE type always wins, then a MERGE side, then the trade sides. Anything
// else can never become executable.
func Classify(activity storage.Activity) Action {
	switch {
	case activity.Type == "MERGE":
		return ActionMerge
	case activity.Side == "MERGE":
		return ActionMerge
	case activity.Side == "BUY":
		return ActionBuy
	case activity.Side == "SELL":
		return ActionSell
	default:
		return ActionUnsupported
	}
}
