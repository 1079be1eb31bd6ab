package visibility

import "sync"

const (
	// DefaultCap is the maximum number of frames holding a live source.
	DefaultCap = 20
	// DefaultRootMargin expands the viewport on every side, in pixels.
	DefaultRootMargin = 100
)

type card struct {
	index        int
	day          int
	src          string
	state        State
	intersecting bool
	seq          uint64 // when the card was loaded, or started pending
}

// Manager tracks the frame working set of one page. It is safe for
// concurrent use; events are applied one batch at a time.
type Manager struct {
	mu     sync.Mutex
	cap    int
	cards  []*card
	loaded int
	seq    uint64
}

// NewManager returns a manager admitting at most limit loaded frames.
// A limit below 1 selects DefaultCap.
func NewManager(limit int) *Manager {
	if limit < 1 {
		limit = DefaultCap
	}
	return &Manager{cap: limit}
}

// Observe registers the next card in page order and returns its index.
// Cards are identified by index, so entries sharing a day number stay
// separate.
func (m *Manager) Observe(day int, src string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	index := len(m.cards)
	m.cards = append(m.cards, &card{index: index, day: day, src: src})
	return index
}

func (m *Manager) card(index int) (*card, bool) {
	if index < 0 || index >= len(m.cards) {
		return nil, false
	}
	return m.cards[index], true
}

// Apply processes a batch of intersection changes in order and returns the
// resulting frame commands. Entries for unknown indexes are ignored.
func (m *Manager) Apply(entries []Entry) []Command {
	m.mu.Lock()
	defer m.mu.Unlock()

	var cmds []Command
	for _, e := range entries {
		c, ok := m.card(e.Index)
		if !ok {
			continue
		}
		c.intersecting = e.Intersecting
		if e.Intersecting {
			cmds = m.enter(c, cmds)
		} else {
			cmds = m.leave(c, cmds)
		}
	}
	return m.fill(cmds)
}

func (m *Manager) enter(c *card, cmds []Command) []Command {
	if c.state != Unloaded {
		return cmds
	}

	if m.loaded >= m.cap {
		if victim := m.evictable(); victim != nil {
			cmds = m.unload(victim, cmds)
		}
	}
	if m.loaded < m.cap {
		return m.load(c, cmds)
	}

	m.seq++
	c.state = Pending
	c.seq = m.seq
	return cmds
}

func (m *Manager) leave(c *card, cmds []Command) []Command {
	switch c.state {
	case Pending:
		c.state = Unloaded
	case Loaded:
		if m.oldestPending() != nil {
			cmds = m.unload(c, cmds)
		}
	}
	return cmds
}

// fill hands free slots to waiting cards, oldest first.
func (m *Manager) fill(cmds []Command) []Command {
	for m.loaded < m.cap {
		next := m.oldestPending()
		if next == nil {
			break
		}
		cmds = m.load(next, cmds)
	}
	return cmds
}

func (m *Manager) load(c *card, cmds []Command) []Command {
	m.seq++
	c.state = Loaded
	c.seq = m.seq
	m.loaded++
	return append(cmds, Command{Index: c.index, Day: c.day, Action: ActionLoad, Src: c.src})
}

func (m *Manager) unload(c *card, cmds []Command) []Command {
	c.state = Unloaded
	m.loaded--
	return append(cmds, Command{Index: c.index, Day: c.day, Action: ActionUnload})
}

// evictable returns the least recently loaded frame that is off screen.
func (m *Manager) evictable() *card {
	var victim *card
	for _, c := range m.cards {
		if c.state != Loaded || c.intersecting {
			continue
		}
		if victim == nil || c.seq < victim.seq {
			victim = c
		}
	}
	return victim
}

func (m *Manager) oldestPending() *card {
	var oldest *card
	for _, c := range m.cards {
		if c.state != Pending {
			continue
		}
		if oldest == nil || c.seq < oldest.seq {
			oldest = c
		}
	}
	return oldest
}

// FrameError records a load failure. The first failure for a card returns
// the fallback command; later ones return false. The failed frame leaves
// the working set and any waiting card takes its slot on the next Apply
// or Fill.
func (m *Manager) FrameError(index int) (Command, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.card(index)
	if !ok || c.state == Failed {
		return Command{}, false
	}
	if c.state == Loaded {
		m.loaded--
	}
	c.state = Failed
	return Command{Index: c.index, Day: c.day, Action: ActionFallback, Src: c.src}, true
}

// Fill loads waiting cards into free slots.
func (m *Manager) Fill() []Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fill(nil)
}

// Loaded returns the working set size.
func (m *Manager) Loaded() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded
}

// LoadedIndexes returns the indexes of cards holding a live source, in page order.
func (m *Manager) LoadedIndexes() []int {
	m.mu.Lock()
	defer m.mu.Unlock()

	indexes := make([]int, 0, m.loaded)
	for _, c := range m.cards {
		if c.state == Loaded {
			indexes = append(indexes, c.index)
		}
	}
	return indexes
}

// Len returns the number of observed cards.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cards)
}

// State returns the state of the card at index; unknown indexes are Unloaded.
func (m *Manager) State(index int) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.card(index); ok {
		return c.state
	}
	return Unloaded
}

// Cap returns the working set limit.
func (m *Manager) Cap() int {
	return m.cap
}
