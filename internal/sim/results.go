package sim

import "fmt"

// Series is one named per-day output channel.
type Series struct {
	Name   string    `json:"name" yaml:"name"`
	Values []float64 `json:"values" yaml:"values"`
}

// Results holds every output channel of one run, indexed by day. Counts
// prefixed new_ and n_ are weighted by the dynamic scale at collection time;
// pop_ channels are population means and carry no weight.
type Results struct {
	RunID   string   `json:"run_id" yaml:"run_id"`
	Label   string   `json:"label" yaml:"label"`
	PopSize int      `json:"pop_size" yaml:"pop_size"`
	Days    []int    `json:"days" yaml:"days"`
	Strains []string `json:"strains" yaml:"strains"`
	Series  []Series `json:"series" yaml:"series"`

	byName map[string]int
}

// NewResults allocates npts points for each named channel, in order.
func NewResults(npts int, names []string) *Results {
	r := &Results{
		Days:   make([]int, npts),
		Series: make([]Series, len(names)),
		byName: make(map[string]int, len(names)),
	}
	for t := range r.Days {
		r.Days[t] = t
	}
	for i, name := range names {
		r.Series[i] = Series{Name: name, Values: make([]float64, npts)}
		r.byName[name] = i
	}
	return r
}

// Reindex rebuilds the name lookup, for results reconstructed from a
// serialized form.
func (r *Results) Reindex() {
	r.byName = make(map[string]int, len(r.Series))
	for i, s := range r.Series {
		r.byName[s.Name] = i
	}
}

// Npts reports the number of collected days.
func (r *Results) Npts() int { return len(r.Days) }

// Names lists the channels in collection order.
func (r *Results) Names() []string {
	out := make([]string, len(r.Series))
	for i, s := range r.Series {
		out[i] = s.Name
	}
	return out
}

// Get returns the values of one channel, or nil if the name is unknown.
func (r *Results) Get(name string) []float64 {
	i, ok := r.byName[name]
	if !ok {
		return nil
	}
	return r.Series[i].Values
}

// Set stores one point.
func (r *Results) Set(name string, t int, v float64) error {
	i, ok := r.byName[name]
	if !ok {
		return fmt.Errorf("results: unknown channel %q", name)
	}
	if t < 0 || t >= len(r.Series[i].Values) {
		return fmt.Errorf("results: day %d out of range for %q", t, name)
	}
	r.Series[i].Values[t] = v
	return nil
}

// put is the collector's fast path. The collector only writes channels it
// allocated, so an unknown name is a programming error.
func (r *Results) put(name string, t int, v float64) {
	i, ok := r.byName[name]
	if !ok {
		panic(fmt.Sprintf("results: collector wrote unknown channel %q", name))
	}
	r.Series[i].Values[t] = v
}

// Summary returns the final-day value of every channel. For cumulative
// channels this is the run total.
func (r *Results) Summary() map[string]float64 {
	out := make(map[string]float64, len(r.Series))
	last := len(r.Days) - 1
	if last < 0 {
		return out
	}
	for _, s := range r.Series {
		out[s.Name] = s.Values[last]
	}
	return out
}
