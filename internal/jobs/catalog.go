package jobs

import (
	"sort"

	"github.com/ManuGH/monstim/internal/emg"
)

// Catalog is the in-memory view of everything the last import produced. It is
// immutable once built; a new import swaps in a new catalog.
type Catalog struct {
	experiments []*emg.Experiment
	datasets    map[string]*emg.Dataset
	sessions    map[string]*emg.Session
}

// NewCatalog indexes experiments by dataset and session ID.
func NewCatalog(experiments []*emg.Experiment) *Catalog {
	c := &Catalog{
		experiments: append([]*emg.Experiment(nil), experiments...),
		datasets:    map[string]*emg.Dataset{},
		sessions:    map[string]*emg.Session{},
	}
	sort.Slice(c.experiments, func(i, j int) bool { return c.experiments[i].Name() < c.experiments[j].Name() })
	for _, exp := range c.experiments {
		for _, ds := range exp.Datasets() {
			c.datasets[ds.ID()] = ds
			for _, sess := range ds.Sessions() {
				c.sessions[sess.ID()] = sess
			}
		}
	}
	return c
}

// Experiments returns the experiments, ordered by name.
func (c *Catalog) Experiments() []*emg.Experiment {
	return append([]*emg.Experiment(nil), c.experiments...)
}

// Dataset looks up a dataset by ID.
func (c *Catalog) Dataset(id string) (*emg.Dataset, bool) {
	ds, ok := c.datasets[id]
	return ds, ok
}

// Session looks up a session by ID.
func (c *Catalog) Session(id string) (*emg.Session, bool) {
	sess, ok := c.sessions[id]
	return sess, ok
}

// NumDatasets returns the number of indexed datasets.
func (c *Catalog) NumDatasets() int { return len(c.datasets) }

// NumSessions returns the number of indexed sessions.
func (c *Catalog) NumSessions() int { return len(c.sessions) }
