package params

import (
	"fmt"
	"sort"
)

// Prognoses hold age-binned outcome probabilities. SympProbs is the
// probability an infection becomes symptomatic; SevereProbs, CritProbs and
// DeathProbs are unconditional per-infection probabilities, so each column
// must be dominated by the one before it. The engine conditions them into a
// branch chain at population setup.
type Prognoses struct {
	AgeCutoffs  []float64 `mapstructure:"age_cutoffs" yaml:"age_cutoffs" json:"age_cutoffs"`
	SympProbs   []float64 `mapstructure:"symp_probs" yaml:"symp_probs" json:"symp_probs"`
	SevereProbs []float64 `mapstructure:"severe_probs" yaml:"severe_probs" json:"severe_probs"`
	CritProbs   []float64 `mapstructure:"crit_probs" yaml:"crit_probs" json:"crit_probs"`
	DeathProbs  []float64 `mapstructure:"death_probs" yaml:"death_probs" json:"death_probs"`
}

// DefaultPrognoses returns the baseline outcome table, binned by decade.
func DefaultPrognoses() *Prognoses {
	return &Prognoses{
		AgeCutoffs:  []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90},
		SympProbs:   []float64{0.50, 0.55, 0.60, 0.65, 0.70, 0.75, 0.80, 0.85, 0.90, 0.90},
		SevereProbs: []float64{0.00050, 0.00165, 0.00720, 0.02080, 0.03430, 0.07650, 0.13280, 0.20655, 0.24570, 0.24570},
		CritProbs:   []float64{0.00003, 0.00008, 0.00036, 0.00104, 0.00216, 0.00933, 0.03639, 0.08923, 0.17420, 0.17420},
		DeathProbs:  []float64{0.00002, 0.00002, 0.00010, 0.00032, 0.00098, 0.00265, 0.00766, 0.02439, 0.08292, 0.16190},
	}
}

// Validate checks shape, ranges, and the dominance chain per bin.
func (pr *Prognoses) Validate() error {
	n := len(pr.AgeCutoffs)
	if n == 0 {
		return fmt.Errorf("prognoses: age_cutoffs must not be empty")
	}
	if !sort.Float64sAreSorted(pr.AgeCutoffs) {
		return fmt.Errorf("prognoses: age_cutoffs must be ascending")
	}
	for name, col := range map[string][]float64{
		"symp_probs":   pr.SympProbs,
		"severe_probs": pr.SevereProbs,
		"crit_probs":   pr.CritProbs,
		"death_probs":  pr.DeathProbs,
	} {
		if len(col) != n {
			return fmt.Errorf("prognoses: %s has %d entries, want %d", name, len(col), n)
		}
		for i, v := range col {
			if v < 0 || v > 1 {
				return fmt.Errorf("prognoses: %s[%d] = %v outside [0,1]", name, i, v)
			}
		}
	}
	for i := 0; i < n; i++ {
		if pr.SevereProbs[i] > pr.SympProbs[i] ||
			pr.CritProbs[i] > pr.SevereProbs[i] ||
			pr.DeathProbs[i] > pr.CritProbs[i] {
			return fmt.Errorf("prognoses: bin %d violates death <= crit <= severe <= symp", i)
		}
	}
	return nil
}

// Bin returns the index of the age bin covering the given age.
func (pr *Prognoses) Bin(age float64) int {
	// Cutoffs are lower bounds, so the last bin whose cutoff is <= age wins.
	for i := len(pr.AgeCutoffs) - 1; i > 0; i-- {
		if age >= pr.AgeCutoffs[i] {
			return i
		}
	}
	return 0
}

// Conditioned returns the branch chain for one bin: the probability of
// symptoms given infection, severe given symptoms, critical given severe,
// and death given critical.
func (pr *Prognoses) Conditioned(bin int) (symp, severe, crit, death float64) {
	symp = pr.SympProbs[bin]
	severe = ratio(pr.SevereProbs[bin], symp)
	crit = ratio(pr.CritProbs[bin], pr.SevereProbs[bin])
	death = ratio(pr.DeathProbs[bin], pr.CritProbs[bin])
	return
}

func ratio(num, den float64) float64 {
	if den <= 0 {
		return 0
	}
	r := num / den
	if r > 1 {
		return 1
	}
	return r
}

// AgeBracket is one slice of the synthetic age pyramid: ages uniform in
// [Low, High) drawn with the bracket's relative weight.
type AgeBracket struct {
	Low    float64 `mapstructure:"low" yaml:"low" json:"low"`
	High   float64 `mapstructure:"high" yaml:"high" json:"high"`
	Weight float64 `mapstructure:"weight" yaml:"weight" json:"weight"`
}

// DefaultAgeBrackets approximate a high-income-country age pyramid.
func DefaultAgeBrackets() []AgeBracket {
	return []AgeBracket{
		{Low: 0, High: 10, Weight: 0.12},
		{Low: 10, High: 20, Weight: 0.13},
		{Low: 20, High: 30, Weight: 0.14},
		{Low: 30, High: 40, Weight: 0.13},
		{Low: 40, High: 50, Weight: 0.12},
		{Low: 50, High: 60, Weight: 0.13},
		{Low: 60, High: 70, Weight: 0.11},
		{Low: 70, High: 80, Weight: 0.07},
		{Low: 80, High: 90, Weight: 0.04},
		{Low: 90, High: 100, Weight: 0.01},
	}
}
