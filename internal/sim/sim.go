// Package sim runs the day loop: interventions, strain imports, the health
// state machine, transmission, immunity updates, invariant validation and
// dynamic rescaling, collecting weighted outputs along the way.
package sim

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/episim/internal/disease"
	"github.com/xkilldash9x/episim/internal/dist"
	"github.com/xkilldash9x/episim/internal/immunity"
	"github.com/xkilldash9x/episim/internal/params"
	"github.com/xkilldash9x/episim/internal/people"
	"github.com/xkilldash9x/episim/internal/rescale"
	"github.com/xkilldash9x/episim/internal/strain"
)

const defaultContactWindow = 7

// progressInterval caps how often Run emits a progress line, so large
// populations over long horizons stay observable without flooding the log.
const progressInterval = 5 * time.Second

// Option configures a Sim before construction completes.
type Option func(*Sim)

// WithLogger attaches a logger; the default is a nop.
func WithLogger(log *zap.Logger) Option {
	return func(s *Sim) {
		if log != nil {
			s.log = log
		}
	}
}

// WithLabel names the run in logs and results.
func WithLabel(label string) Option {
	return func(s *Sim) {
		if label != "" {
			s.label = label
		}
	}
}

// WithTransmitter replaces the default random-mixing transmitter.
func WithTransmitter(tr Transmitter) Option {
	return func(s *Sim) {
		if tr != nil {
			s.trans = tr
		}
	}
}

// WithHooks appends intervention hooks, applied each day in the given order.
func WithHooks(hooks ...Hook) Option {
	return func(s *Sim) { s.hooks = append(s.hooks, hooks...) }
}

// WithStrains registers additional strains beyond the built-in wild type.
func WithStrains(strains ...strain.Strain) Option {
	return func(s *Sim) { s.pendingStrains = append(s.pendingStrains, strains...) }
}

// WithContactWindow sets how many days of sampled contacts the engine
// retains for tracing hooks.
func WithContactWindow(days int) Option {
	return func(s *Sim) {
		if days > 0 {
			s.window = days
		}
	}
}

// Sim is one configured simulation run. Build with New, then Run. A Sim is
// single-use and not safe for concurrent access; ensembles run one Sim per
// goroutine.
type Sim struct {
	pars     *params.Pars
	label    string
	runID    uuid.UUID
	log      *zap.Logger
	progress *rate.Limiter

	src   *dist.Source
	imm   *immunity.Engine
	reg   *strain.Registry
	model *disease.Model
	ctrl  *rescale.Controller
	trans Transmitter
	hooks []Hook

	pendingStrains []strain.Strain
	window         int

	people    *people.People
	matrix    *people.Matrix
	contacts  *ContactLog
	results   *Results
	scale     float64
	betaScale float64
	day       int

	streamDay int
	streams   map[dist.Op]*dist.Stream

	pendInf      int
	pendReinf    int
	pendByStrain []int
	pendTests    int
	pendVacc     int
	cum          map[string]float64

	initialized bool
	complete    bool
}

// New validates the parameters and assembles a run. Invalid parameters and
// invalid strain definitions are refused here, never discovered mid-run.
func New(pars *params.Pars, opts ...Option) (*Sim, error) {
	if pars == nil {
		pars = params.Defaults()
	}
	if err := pars.Validate(); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}

	s := &Sim{
		pars:      pars,
		label:     "sim",
		runID:     uuid.New(),
		log:       zap.NewNop(),
		progress:  rate.NewLimiter(rate.Every(progressInterval), 1),
		window:    defaultContactWindow,
		streamDay: -1,
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.Named("sim").With(
		zap.String("run_id", s.runID.String()),
		zap.String("label", s.label),
	)

	s.src = dist.NewSource(pars.Seed)
	s.imm = immunity.New(pars)
	s.reg = strain.NewRegistry(pars.NDays, pars.CrossImmunity, s.log)
	for _, st := range s.pendingStrains {
		if _, err := s.reg.Register(st); err != nil {
			return nil, fmt.Errorf("register strain %q: %w", st.Label, err)
		}
	}

	model, err := disease.NewModel(pars, s.imm, s.reg, s.src, s.log)
	if err != nil {
		return nil, err
	}
	s.model = model

	if s.trans == nil {
		s.trans = NewRandomMixing(pars.Contacts)
	}
	if pars.Rescale {
		s.ctrl = rescale.NewController(pars.PopScale, pars.RescaleThreshold, pars.RescaleFactor, s.log)
	}
	s.matrix = people.MatrixFor(pars.Waning)
	s.contacts = NewContactLog(s.window)
	return s, nil
}

// Pars returns the run's parameters.
func (s *Sim) Pars() *params.Pars { return s.pars }

// People returns the current agent arena. Nil before Init.
func (s *Sim) People() *people.People { return s.people }

// Results returns the output channels collected so far. Nil before Init.
func (s *Sim) Results() *Results { return s.results }

// Strains returns the strain registry.
func (s *Sim) Strains() *strain.Registry { return s.reg }

// Scale returns the current statistical weight of each agent.
func (s *Sim) Scale() float64 { return s.scale }

// Label returns the run label.
func (s *Sim) Label() string { return s.label }

// RunID returns the unique id assigned at construction.
func (s *Sim) RunID() string { return s.runID.String() }

// Complete reports whether Run finished every day.
func (s *Sim) Complete() bool { return s.complete }

// stream returns the shared per-(day, op) stream, so every consumer of an
// op on one day continues a single sequence.
func (s *Sim) stream(day int, op dist.Op) *dist.Stream {
	if s.streamDay != day {
		s.streams = make(map[dist.Op]*dist.Stream)
		s.streamDay = day
	}
	st, ok := s.streams[op]
	if !ok {
		st = s.src.Stream(day, op)
		s.streams[op] = st
	}
	return st
}

// Init builds the population, conditions prognoses, applies the initial
// infections and allocates the output channels. Run calls it implicitly.
func (s *Sim) Init() error {
	if s.initialized {
		return nil
	}
	s.people = people.New(s.pars.PopSize)
	s.model.InitPopulation(s.people)

	if s.pars.Rescale {
		s.scale = 1
	} else {
		s.scale = s.pars.PopScale
	}
	s.betaScale = 1
	s.pendByStrain = make([]int, s.reg.Count())
	s.cum = make(map[string]float64)

	s.results = NewResults(s.pars.NDays+1, s.seriesNames())
	s.results.RunID = s.runID.String()
	s.results.Label = s.label
	s.results.PopSize = s.pars.PopSize
	s.results.Strains = s.reg.Labels()

	if s.pars.PopInfected > 0 {
		rng := s.stream(0, dist.OpInitInfections)
		pool := s.people.Indices(people.Susceptible)
		s.infectBatch(rng.Pick(pool, s.pars.PopInfected), strain.Wild, 0)
	}

	s.day = 0
	s.initialized = true
	s.log.Info("initialized simulation",
		zap.Int("pop_size", s.pars.PopSize),
		zap.Int("n_days", s.pars.NDays),
		zap.Int("pop_infected", s.pars.PopInfected),
		zap.Int64("seed", s.pars.Seed),
		zap.Int("strains", s.reg.Count()),
		zap.Bool("waning", s.pars.Waning))
	return nil
}

// Run executes every remaining day and returns the collected results. The
// context is checked at day boundaries only; a day in progress always
// completes, so an aborted run still holds internally consistent state.
func (s *Sim) Run(ctx context.Context) (*Results, error) {
	if s.complete {
		return nil, fmt.Errorf("run %s already complete", s.runID)
	}
	if err := s.Init(); err != nil {
		return nil, err
	}
	for day := s.day; day <= s.pars.NDays; day++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("run aborted at day %d: %w", day, ctx.Err())
		default:
		}
		if day > 0 && s.progress.Allow() {
			s.log.Info("simulation progress",
				zap.Int("day", day),
				zap.Int("n_days", s.pars.NDays),
				zap.Float64("cum_infections", s.cum["cum_infections"]))
		}
		if err := s.step(day); err != nil {
			return nil, err
		}
	}
	s.complete = true
	s.log.Info("run complete",
		zap.Float64("cum_infections", s.cum["cum_infections"]),
		zap.Float64("cum_deaths", s.cum["cum_deaths"]),
		zap.Float64("final_scale", s.scale))
	return s.results, nil
}

// step advances one day. Interventions run first, then imports, then the
// date-driven transitions, then transmission from the day-start infectious
// snapshot, so agents becoming infectious today transmit from tomorrow.
func (s *Sim) step(day int) error {
	s.day = day

	for _, h := range s.hooks {
		hc := &HookContext{
			Day:      day,
			People:   s.people,
			Pars:     s.pars,
			Contacts: s.contacts,
			Stream:   func(op dist.Op) *dist.Stream { return s.stream(day, op) },
		}
		effects, err := h.Apply(hc)
		if err != nil {
			return fmt.Errorf("intervention %s failed on day %d: %w", h.Label(), day, err)
		}
		s.applyEffects(effects, day)
	}

	s.reg.Seed(day, s.people, s.stream(day, dist.OpSeeding),
		func(inds []int32, st int16, d int) { s.infectBatch(inds, st, d) })

	sources := s.snapshotSources()
	tr := s.model.StepStates(s.people, day)

	txs := s.trans.Transmit(&TransmissionContext{
		Day:       day,
		People:    s.people,
		Rng:       s.stream(day, dist.OpTransmission),
		Sources:   sources,
		AcqFactor: s.acqFactor,
		Log:       s.contacts,
	})
	s.applyTransmissions(txs, day)

	s.imm.Update(s.people, day)

	if s.pars.ValidateStates {
		if err := s.matrix.Check(s.people, day); err != nil {
			return err
		}
	}

	s.collect(day, tr)

	// Rescale after collection: the day's counts were accumulated under the
	// current scale, and the shrunken arena takes over from tomorrow.
	if s.ctrl != nil && s.ctrl.ShouldRescale(s.people, s.scale) {
		next, newScale, err := s.ctrl.Apply(s.people, s.scale, s.stream(day, dist.OpRescale))
		if err != nil {
			return err
		}
		s.people = next
		s.scale = newScale
		// Logged contacts index the old arena and cannot be remapped.
		s.contacts.Clear()
	}

	s.contacts.Prune(day)
	return nil
}

// snapshotSources captures the infectious agents and their source-side
// rates as of the start of the day.
func (s *Sim) snapshotSources() []TransmissionSource {
	p := s.people
	base := s.pars.Beta * s.betaScale
	infectious := p.Flags(people.Infectious)
	dead := p.Flags(people.Dead)
	diagnosed := p.Flags(people.Diagnosed)
	quarantined := p.Flags(people.Quarantined)

	var out []TransmissionSource
	for i := 0; i < p.N; i++ {
		if !infectious[i] || dead[i] {
			continue
		}
		f := p.RelTrans[i]
		if diagnosed[i] {
			f *= s.pars.IsoFactor
		}
		if quarantined[i] {
			f *= s.pars.QuarFactor
		}
		st := p.ExposedStrain[i]
		out = append(out, TransmissionSource{
			Index:  int32(i),
			Strain: st,
			Rate:   base * s.reg.RelBeta(st) * f,
		})
	}
	return out
}

// acqFactor is the target-side multiplier: relative susceptibility,
// quarantine damping and immune protection against the challenging strain.
func (s *Sim) acqFactor(j int32, st int16) float64 {
	p := s.people
	f := p.RelSus[j]
	if p.Is(people.Quarantined, j) {
		f *= s.pars.QuarFactor
	}
	eff := p.NAb[j] * s.reg.CrossImmunity(p.NAbSource[j], st)
	return f * (1 - s.imm.Protection(eff, immunity.OutcomeInfection))
}

// applyTransmissions infects proposed targets, deduplicated first-wins, in
// strain order for determinism.
func (s *Sim) applyTransmissions(txs []Transmission, day int) {
	if len(txs) == 0 {
		return
	}
	seen := make(map[int32]struct{}, len(txs))
	groups := make([][]int32, s.reg.Count())
	for _, tx := range txs {
		if _, dup := seen[tx.Dst]; dup {
			continue
		}
		seen[tx.Dst] = struct{}{}
		groups[tx.Strain] = append(groups[tx.Strain], tx.Dst)
	}
	for st, g := range groups {
		if len(g) > 0 {
			s.infectBatch(g, int16(st), day)
		}
	}
}

func (s *Sim) infectBatch(inds []int32, st int16, day int) {
	n, re := s.model.Infect(s.people, inds, st, day)
	if n == 0 {
		return
	}
	s.pendInf += n
	s.pendReinf += re
	s.pendByStrain[st] += n
}

// applyEffects performs the state changes requested by hooks. All mutation
// runs here, inside the engine.
func (s *Sim) applyEffects(effects []Effect, day int) {
	p := s.people
	for _, e := range effects {
		switch e.Kind {
		case EffectTest:
			var administered int
			var positive []int32
			for _, i := range e.Agents {
				if p.Is(people.Dead, i) {
					continue
				}
				administered++
				if p.Is(people.Exposed, i) {
					positive = append(positive, i)
				}
			}
			p.RecordTest(e.Agents, day)
			p.ScheduleDiagnosis(positive, day+e.Delay)
			s.pendTests += administered

		case EffectQuarantine:
			dur := e.Duration
			if dur <= 0 {
				dur = s.pars.QuarPeriod
			}
			start := day + e.Delay
			p.ScheduleQuarantine(e.Agents, start, start+dur)

		case EffectKnownContact:
			p.MarkKnownContact(e.Agents)

		case EffectVaccinate:
			s.vaccinate(e.Agents, day)

		case EffectBetaScale:
			if e.Value < 0 {
				s.log.Warn("ignoring negative beta scale", zap.Float64("value", e.Value))
				continue
			}
			s.betaScale = e.Value

		default:
			s.log.Warn("ignoring unknown effect", zap.Uint8("kind", uint8(e.Kind)))
		}
	}
}

// vaccinate administers one dose per listed agent. Under waning immunity a
// dose is an immunizing event against the wild type; without waning the
// first dose permanently damps susceptibility and symptom risk instead.
func (s *Sim) vaccinate(inds []int32, day int) {
	p := s.people
	rng := s.stream(day, dist.OpVaccination)
	for _, i := range inds {
		if p.Is(people.Dead, i) {
			continue
		}
		first := !p.Is(people.Vaccinated, i)
		p.Set(people.Vaccinated, i, true)
		p.DateVaccinated[i] = float64(day)
		p.Doses[i]++
		if s.imm.Waning() {
			s.imm.RecordEvent(p, i, strain.Wild, day, rng)
		} else if first {
			p.RelSus[i] *= 1 - s.pars.VaccineEfficacy
			p.RelSymp[i] *= 1 - s.pars.VaccineSympEfficacy
		}
		if first {
			s.pendVacc++
		}
	}
}

func (s *Sim) seriesNames() []string {
	names := []string{
		"new_infections", "cum_infections",
		"new_reinfections", "cum_reinfections",
		"new_infectious", "new_symptomatic", "new_severe", "new_critical",
		"new_recoveries", "cum_recoveries",
		"new_deaths", "cum_deaths",
		"new_tests", "cum_tests",
		"new_diagnoses", "cum_diagnoses",
		"new_quarantined", "cum_quarantined",
		"new_vaccinated", "cum_vaccinated",
		"n_susceptible", "n_naive", "n_exposed", "n_infectious",
		"n_symptomatic", "n_severe", "n_critical", "n_recovered",
		"n_dead", "n_alive", "n_diagnosed", "n_quarantined", "n_vaccinated",
		"pop_nabs", "pop_protection", "pop_symp_protection",
		"scale",
	}
	for _, label := range s.reg.Labels() {
		names = append(names, StrainSeriesName(label), StrainCumName(label), StrainActiveName(label))
	}
	return names
}

// StrainSeriesName is the output channel holding one strain's share of new
// infections.
func StrainSeriesName(label string) string { return "new_infections_" + label }

// StrainCumName is the running total of one strain's infections.
func StrainCumName(label string) string { return "cum_infections_" + label }

// StrainActiveName counts the infectious agents currently carrying one
// strain.
func StrainActiveName(label string) string { return "n_infectious_" + label }

// collect writes the day's outputs. Flow counts and point counts carry the
// current scale; pop_ channels are unweighted means.
func (s *Sim) collect(day int, tr disease.Transitions) {
	p := s.people
	r := s.results
	w := s.scale

	flow := func(newName, cumName string, count int) {
		v := float64(count) * w
		r.put(newName, day, v)
		s.cum[cumName] += v
		r.put(cumName, day, s.cum[cumName])
	}
	flow("new_infections", "cum_infections", s.pendInf)
	flow("new_reinfections", "cum_reinfections", s.pendReinf)
	flow("new_recoveries", "cum_recoveries", tr.Recoveries)
	flow("new_deaths", "cum_deaths", tr.Deaths)
	flow("new_tests", "cum_tests", s.pendTests)
	flow("new_diagnoses", "cum_diagnoses", tr.Diagnoses)
	flow("new_quarantined", "cum_quarantined", tr.Quarantines)
	flow("new_vaccinated", "cum_vaccinated", s.pendVacc)

	r.put("new_infectious", day, float64(tr.Infectious)*w)
	r.put("new_symptomatic", day, float64(tr.Symptomatic)*w)
	r.put("new_severe", day, float64(tr.Severe)*w)
	r.put("new_critical", day, float64(tr.Critical)*w)

	r.put("n_susceptible", day, float64(p.Count(people.Susceptible))*w)
	r.put("n_naive", day, float64(p.Count(people.Naive))*w)
	r.put("n_exposed", day, float64(p.Count(people.Exposed))*w)
	r.put("n_infectious", day, float64(p.Count(people.Infectious))*w)
	r.put("n_symptomatic", day, float64(p.Count(people.Symptomatic))*w)
	r.put("n_severe", day, float64(p.Count(people.Severe))*w)
	r.put("n_critical", day, float64(p.Count(people.Critical))*w)
	r.put("n_recovered", day, float64(p.Count(people.Recovered))*w)
	r.put("n_dead", day, float64(p.Count(people.Dead))*w)
	r.put("n_alive", day, float64(p.Alive())*w)
	r.put("n_diagnosed", day, float64(p.Count(people.Diagnosed))*w)
	r.put("n_quarantined", day, float64(p.Count(people.Quarantined))*w)
	r.put("n_vaccinated", day, float64(p.Count(people.Vaccinated))*w)

	nabs, prot, sympProt := s.imm.PopSummary(p)
	r.put("pop_nabs", day, nabs)
	r.put("pop_protection", day, prot)
	r.put("pop_symp_protection", day, sympProt)
	r.put("scale", day, s.scale)

	for k, label := range s.reg.Labels() {
		v := float64(s.pendByStrain[k]) * w
		r.put(StrainSeriesName(label), day, v)
		cumName := StrainCumName(label)
		s.cum[cumName] += v
		r.put(cumName, day, s.cum[cumName])
		r.put(StrainActiveName(label), day, float64(p.CountBy(people.Infectious, int16(k)))*w)
		s.pendByStrain[k] = 0
	}
	s.pendInf, s.pendReinf, s.pendTests, s.pendVacc = 0, 0, 0, 0
}
