package schedule

import (
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	slerrors "github.com/vnykmshr/streamlimit/pkg/common/errors"
	"github.com/vnykmshr/streamlimit/pkg/throttle/bucket"
)

// Target is anything whose refill rate can be retargeted. stream.Reader
// and stream.Writer both satisfy it; their SetRate is safe to call from
// the planner's goroutine.
type Target interface {
	SetRate(bucket.Limit)
}

// Rule binds a cron expression to the rate that takes effect when it
// fires. Expressions use six fields with a leading seconds field, plus
// descriptors such as "@daily" or "@every 1h".
//
// Examples:
//
//	"0 0 9 * * 1-5"  - weekdays at 09:00
//	"0 0 23 * * *"   - every day at 23:00
//	"@hourly"        - on the hour
type Rule struct {
	Spec string
	Rate bucket.Limit
}

// Plan describes a named set of rules driving one target.
type Plan struct {
	Name    string
	Rules   []Rule
	NextRun time.Time
}

// Config holds configuration options for a Planner.
type Config struct {
	// Location is the timezone for cron evaluation. Defaults to time.Local.
	Location *time.Location

	// OnApply, if set, is called after a rule fires and the target's
	// rate has been changed.
	OnApply func(plan string, rate bucket.Limit)
}

type planEntry struct {
	name    string
	target  Target
	rules   []Rule
	entries []cron.EntryID
}

// Planner applies bandwidth plans: cron-scheduled rate changes pushed to
// stream limiters. All methods are safe for concurrent use.
type Planner struct {
	runner  *cron.Cron
	parser  cron.Parser
	onApply func(string, bucket.Limit)

	mu      sync.Mutex
	plans   map[string]*planEntry
	running bool
}

// New creates a Planner with default configuration.
func New() *Planner {
	return NewWithConfig(Config{})
}

// NewWithConfig creates a Planner with custom configuration.
func NewWithConfig(cfg Config) *Planner {
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}

	parser := cron.NewParser(
		cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)

	return &Planner{
		runner:  cron.New(cron.WithParser(parser), cron.WithLocation(loc)),
		parser:  parser,
		onApply: cfg.OnApply,
		plans:   make(map[string]*planEntry),
	}
}

// Validate checks a cron expression without scheduling it.
func Validate(spec string) error {
	parser := cron.NewParser(
		cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)
	if _, err := parser.Parse(spec); err != nil {
		return slerrors.NewValidationError("schedule", "spec", spec, err.Error()).
			WithHint("use six fields with a leading seconds field, or a descriptor like @daily")
	}
	return nil
}

// Add registers a plan for target under name. Each rule is validated
// before any is scheduled; a plan with the same name must be removed
// first.
func (p *Planner) Add(name string, target Target, rules ...Rule) error {
	if name == "" {
		return slerrors.NewValidationError("schedule", "name", name, "cannot be empty")
	}
	if target == nil {
		return slerrors.NewValidationError("schedule", "target", nil, "cannot be nil")
	}
	if len(rules) == 0 {
		return slerrors.NewValidationError("schedule", "rules", len(rules), "at least one rule is required")
	}
	for _, r := range rules {
		if _, err := p.parser.Parse(r.Spec); err != nil {
			return slerrors.NewValidationError("schedule", "spec", r.Spec, err.Error())
		}
		if r.Rate <= 0 {
			return slerrors.NewValidationError("schedule", "rate", float64(r.Rate), "must be positive")
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.plans[name]; exists {
		return slerrors.NewValidationError("schedule", "name", name, "plan already exists").
			WithHint("remove the existing plan first")
	}

	entry := &planEntry{name: name, target: target, rules: rules}
	for _, r := range rules {
		rule := r
		id, err := p.runner.AddFunc(rule.Spec, func() {
			p.apply(name, target, rule.Rate)
		})
		if err != nil {
			for _, prev := range entry.entries {
				p.runner.Remove(prev)
			}
			return slerrors.NewOperationError("schedule", "Add", err)
		}
		entry.entries = append(entry.entries, id)
	}
	p.plans[name] = entry

	return nil
}

func (p *Planner) apply(name string, target Target, rate bucket.Limit) {
	target.SetRate(rate)
	if p.onApply != nil {
		p.onApply(name, rate)
	}
}

// Remove cancels the named plan. Returns false if no such plan exists.
func (p *Planner) Remove(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, exists := p.plans[name]
	if !exists {
		return false
	}
	for _, id := range entry.entries {
		p.runner.Remove(id)
	}
	delete(p.plans, name)
	return true
}

// Next returns the earliest upcoming firing time across the named
// plan's rules. The zero time is returned with an error if the plan
// does not exist or the planner is stopped.
func (p *Planner) Next(name string) (time.Time, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, exists := p.plans[name]
	if !exists {
		return time.Time{}, slerrors.NewOperationError("schedule", "Next", slerrors.ErrInvalidConfiguration).
			WithContext("no plan named " + name)
	}

	var next time.Time
	for _, id := range entry.entries {
		e := p.runner.Entry(id)
		if e.Next.IsZero() {
			continue
		}
		if next.IsZero() || e.Next.Before(next) {
			next = e.Next
		}
	}
	return next, nil
}

// Plans returns the registered plans sorted by name.
func (p *Planner) Plans() []Plan {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Plan, 0, len(p.plans))
	for _, entry := range p.plans {
		plan := Plan{Name: entry.name, Rules: append([]Rule(nil), entry.rules...)}
		for _, id := range entry.entries {
			e := p.runner.Entry(id)
			if e.Next.IsZero() {
				continue
			}
			if plan.NextRun.IsZero() || e.Next.Before(plan.NextRun) {
				plan.NextRun = e.Next
			}
		}
		out = append(out, plan)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Start begins evaluating plans in a background goroutine. Starting an
// already running planner is a no-op.
func (p *Planner) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.runner.Start()
	p.running = true
}

// Stop halts plan evaluation. The returned channel closes once any
// in-flight rule application has finished. Registered plans survive a
// stop and resume on the next Start.
func (p *Planner) Stop() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		done := make(chan struct{})
		close(done)
		return done
	}
	p.running = false
	return p.runner.Stop().Done()
}
