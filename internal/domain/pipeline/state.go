package pipeline

// State is a pipeline state machine position.
type State int

// Pipeline states.
const (
	Idle State = iota
	CacheLookup
	CacheHit
	CacheMissed
	Retrieving
	Fusing
	Reranking
	ContextBuilding
	Generating
	CacheWrite
	Complete
	Error
)

var stateNames = [...]string{
	Idle:            "idle",
	CacheLookup:     "cache_lookup",
	CacheHit:        "cache_hit",
	CacheMissed:     "cache_miss",
	Retrieving:      "retrieving",
	Fusing:          "fusing",
	Reranking:       "reranking",
	ContextBuilding: "context_building",
	Generating:      "generating",
	CacheWrite:      "cache_write",
	Complete:        "complete",
	Error:           "error",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// IsTerminal reports whether no further transitions happen.
func (s State) IsTerminal() bool { return s == Complete || s == Error }

// allowed lists legal successors. Error is reachable from every non-terminal state.
var allowed = map[State][]State{
	Idle:            {CacheLookup},
	CacheLookup:     {CacheHit, CacheMissed},
	CacheHit:        {Complete},
	CacheMissed:     {Retrieving},
	Retrieving:      {Fusing, Complete},
	Fusing:          {Reranking, Complete},
	Reranking:       {ContextBuilding},
	ContextBuilding: {Generating, Complete},
	Generating:      {CacheWrite, Complete},
	CacheWrite:      {Complete},
}

// CanTransition reports whether from → to is a legal edge.
func CanTransition(from, to State) bool {
	if from.IsTerminal() {
		return false
	}
	if to == Error {
		return true
	}
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}
