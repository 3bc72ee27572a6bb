// Package analytics turns the engine's event stream into durable usage
// statistics. The Tracker aggregates and persists, the Bus decouples
// slow consumers from the dispatch path, and the sinks adapt the
// pieces to the engine's publish contract.
package analytics

// Data is the root structure persisted to usage.json.
type Data struct {
	Version   string    `json:"version"`
	Aggregate Aggregate `json:"aggregate"`
}

// NewData returns an empty Data with every map initialized.
func NewData() Data {
	return Data{
		Version: "1",
		Aggregate: Aggregate{
			ByMode:     make(map[string]Counts),
			ByCategory: make(map[string]Counts),
			ByTrigger:  make(map[string]Counts),
			BySession:  make(map[string]Counts),
		},
	}
}

// Aggregate holds counters broken down by dimension.
type Aggregate struct {
	Total      Counts            `json:"total"`
	ByMode     map[string]Counts `json:"by_mode"`
	ByCategory map[string]Counts `json:"by_category"`
	ByTrigger  map[string]Counts `json:"by_trigger"`
	BySession  map[string]Counts `json:"by_session"`

	Switches      int64 `json:"switches"`
	SessionsEnded int64 `json:"sessions_ended"`
	PolicyUpdates int64 `json:"policy_updates"`
}

// Counts accumulates lifecycle outcomes for one key.
type Counts struct {
	Activations int64 `json:"activations"`
	Dispatches  int64 `json:"dispatches"`
	Failures    int64 `json:"failures"`
	Timeouts    int64 `json:"timeouts"`
	// ActiveMS is the summed wall time this key spent as an active mode,
	// accumulated when history entries close.
	ActiveMS int64 `json:"active_ms"`
}

func copyCountsMap(src map[string]Counts) map[string]Counts {
	if src == nil {
		return nil
	}
	dst := make(map[string]Counts, len(src))
	for key, counts := range src {
		dst[key] = counts
	}
	return dst
}

// bump applies fn to the counts under key, skipping the empty key so
// events without a mode or category never pollute the maps.
func bump(m map[string]Counts, key string, fn func(*Counts)) {
	if key == "" {
		return
	}
	c := m[key]
	fn(&c)
	m[key] = c
}
