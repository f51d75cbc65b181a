package aggregate

import (
	"sort"

	"mapdetect/pkg/models"
)

// Tally holds the weighted call counts and the ordered call pipeline of one
// attribution key (a user or a user instance).
type Tally struct {
	Counts   map[models.CallKey]int
	Pipeline []models.ServiceCallEvent
}

func newTally() *Tally {
	return &Tally{Counts: make(map[models.CallKey]int)}
}

// Total returns the number of events counted in the tally.
func (t *Tally) Total() int {
	n := 0
	for _, c := range t.Counts {
		n += c
	}
	return n
}

// Accumulator collects call events per attribution key. It is not safe for
// concurrent use; parallel ingestion builds one accumulator per source and
// merges them afterwards.
type Accumulator struct {
	tallies map[string]*Tally
	users   map[string]struct{}
}

// New creates an empty accumulator.
func New() *Accumulator {
	return &Accumulator{
		tallies: make(map[string]*Tally),
		users:   make(map[string]struct{}),
	}
}

// Add counts one event under key.
func (a *Accumulator) Add(key string, ev models.ServiceCallEvent) {
	t := a.tallies[key]
	if t == nil {
		t = newTally()
		a.tallies[key] = t
	}
	t.Counts[ev.Key()]++
	t.Pipeline = append(t.Pipeline, ev)
}

// AddUser counts one event under the user and, when known, the user instance.
func (a *Accumulator) AddUser(user, instance string, ev models.ServiceCallEvent) {
	a.users[user] = struct{}{}
	a.Add(user, ev)
	if instance != "" {
		a.Add(instance, ev)
	}
}

// Merge folds other into a. Counters are summed and pipelines concatenated;
// call Finalize afterwards to restore time order.
func (a *Accumulator) Merge(other *Accumulator) {
	if other == nil {
		return
	}
	for user := range other.users {
		a.users[user] = struct{}{}
	}
	for key, ot := range other.tallies {
		t := a.tallies[key]
		if t == nil {
			t = newTally()
			a.tallies[key] = t
		}
		for k, c := range ot.Counts {
			t.Counts[k] += c
		}
		t.Pipeline = append(t.Pipeline, ot.Pipeline...)
	}
}

// Finalize sorts every pipeline ascending by timestamp. Equal timestamps are
// ordered by (from, to, endpoint) so the result does not depend on the order
// in which sources were merged.
func (a *Accumulator) Finalize() {
	for _, t := range a.tallies {
		SortPipeline(t.Pipeline)
	}
}

// SortPipeline orders events by time, then by call key.
func SortPipeline(p []models.ServiceCallEvent) {
	sort.SliceStable(p, func(i, j int) bool {
		if !p[i].Timestamp.Equal(p[j].Timestamp) {
			return p[i].Timestamp.Before(p[j].Timestamp)
		}
		if p[i].From != p[j].From {
			return p[i].From < p[j].From
		}
		if p[i].To != p[j].To {
			return p[i].To < p[j].To
		}
		return p[i].Endpoint < p[j].Endpoint
	})
}

// Tally returns the tally of one key.
func (a *Accumulator) Tally(key string) (*Tally, bool) {
	t, ok := a.tallies[key]
	return t, ok
}

// Keys returns every attribution key in sorted order.
func (a *Accumulator) Keys() []string {
	keys := make([]string, 0, len(a.tallies))
	for k := range a.tallies {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Users returns the user-level keys in sorted order.
func (a *Accumulator) Users() []string {
	users := make([]string, 0, len(a.users))
	for u := range a.users {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}

// IsUser reports whether key is a user-level key.
func (a *Accumulator) IsUser(key string) bool {
	_, ok := a.users[key]
	return ok
}

// Total returns the number of accepted events, counted at user level only.
func (a *Accumulator) Total() int {
	n := 0
	for u := range a.users {
		if t := a.tallies[u]; t != nil {
			n += t.Total()
		}
	}
	return n
}
