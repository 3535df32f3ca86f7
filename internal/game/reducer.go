package game

// Outcome says what the reducer did with an inbound snapshot.
type Outcome int

const (
	// Applied means the snapshot replaced the previous state.
	Applied Outcome = iota
	// DroppedStale means the snapshot belonged to a different session.
	DroppedStale
	// DroppedTerminal means the session already reached game_exit.
	DroppedTerminal
)

func (o Outcome) Accepted() bool { return o == Applied }

// Reduce interprets one authoritative snapshot against the previous state
// and returns the next state. It is pure: neither argument is mutated, and
// the same inputs always produce the same result.
//
// A nil previous state means no session is active yet; the first snapshot
// for any id is accepted and establishes the session. Afterwards snapshots
// carrying a different session id are dropped, which guards against events
// from a superseded session still in flight during the lobby handoff.
// The reducer never invents transitions of its own: time_remaining hitting
// zero, every player having answered, and so on only matter once the
// authority says so in a later snapshot.
func Reduce(prev *GameState, snap GameState) (*GameState, Outcome) {
	if prev != nil {
		if prev.Phase.Terminal() {
			return prev, DroppedTerminal
		}
		if prev.ID != snap.ID {
			return prev, DroppedStale
		}
		snap.Players = mergeOrder(prev.Players, snap.Players)
	}
	next := snap
	return &next, Applied
}

// mergeOrder rebuilds the incoming roster so that players keep the rank of
// their first appearance in the session. Players the authority dropped
// disappear; genuinely new players append in wire order.
func mergeOrder(prev, next Roster) Roster {
	var merged Roster
	for _, id := range prev.IDs() {
		if p, ok := next.Get(id); ok {
			merged.Add(p)
		}
	}
	for _, id := range next.IDs() {
		if _, seen := merged.Get(id); !seen {
			p, _ := next.Get(id)
			merged.Add(p)
		}
	}
	return merged
}
