// Package visibility bounds how many challenge frames hold a live source at
// once. The browser reports viewport intersections; a Manager answers with
// load, unload and fallback commands.
package visibility

// State is a card's frame state.
type State int

const (
	// Unloaded frames point at about:blank.
	Unloaded State = iota
	// Pending frames are visible but wait for a working-set slot.
	Pending
	// Loaded frames hold their real source and count against the cap.
	Loaded
	// Failed frames reported a load error and show the fallback panel.
	Failed
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Pending:
		return "pending"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Action tells the browser what to do with a frame.
type Action string

const (
	ActionLoad     Action = "load"     // set src to Src
	ActionUnload   Action = "unload"   // set src back to about:blank
	ActionFallback Action = "fallback" // replace the frame container with HTML
)

// Command is one instruction for a card's frame. Index is the card's
// position in the grid; Day is informational.
type Command struct {
	Index  int    `json:"index"`
	Day    int    `json:"day"`
	Action Action `json:"action"`
	Src    string `json:"src,omitempty"`
	HTML   string `json:"html,omitempty"`
}

// Entry is one intersection change reported by the browser for the card at
// Index.
type Entry struct {
	Index        int  `json:"index"`
	Intersecting bool `json:"intersecting"`
}
