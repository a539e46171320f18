package settings

import (
	"fmt"
	"sort"

	"github.com/Masterminds/semver/v3"
)

// Migration transforms an envelope written by version From into the
// layout of version To. Apply works on a private copy and must not keep
// references to it.
type Migration struct {
	From        string
	To          string
	Description string
	Apply       func(*Envelope) error
}

type migrationStep struct {
	Migration
	from, to *semver.Version
}

// Migrator upgrades old envelopes to the running schema version
type Migrator struct {
	current *semver.Version
	steps   []migrationStep
}

// NewMigrator validates the migration chain against the running version
func NewMigrator(current string, migrations ...Migration) (*Migrator, error) {
	cur, err := semver.NewVersion(current)
	if err != nil {
		return nil, fmt.Errorf("invalid schema version %q: %w", current, err)
	}

	steps := make([]migrationStep, 0, len(migrations))
	for _, mig := range migrations {
		from, err := semver.NewVersion(mig.From)
		if err != nil {
			return nil, fmt.Errorf("migration %q: bad from version: %w", mig.Description, err)
		}
		to, err := semver.NewVersion(mig.To)
		if err != nil {
			return nil, fmt.Errorf("migration %q: bad to version: %w", mig.Description, err)
		}
		if !from.LessThan(to) {
			return nil, fmt.Errorf("migration %q: %s is not older than %s", mig.Description, from, to)
		}
		if to.GreaterThan(cur) {
			return nil, fmt.Errorf("migration %q targets %s, beyond current %s", mig.Description, to, cur)
		}
		if mig.Apply == nil {
			return nil, fmt.Errorf("migration %q has no transformation", mig.Description)
		}
		steps = append(steps, migrationStep{Migration: mig, from: from, to: to})
	}

	sort.Slice(steps, func(i, j int) bool { return steps[i].from.LessThan(steps[j].from) })
	for i := 1; i < len(steps); i++ {
		if steps[i].from.LessThan(steps[i-1].to) {
			return nil, fmt.Errorf("migrations %s->%s and %s->%s overlap",
				steps[i-1].from, steps[i-1].to, steps[i].from, steps[i].to)
		}
	}

	return &Migrator{current: cur, steps: steps}, nil
}

// Current returns the running schema version
func (m *Migrator) Current() *semver.Version { return m.current }

// Compare returns -1, 0 or 1 as version is older, equal or newer than current
func (m *Migrator) Compare(version string) (int, error) {
	v, err := semver.NewVersion(version)
	if err != nil {
		return 0, fmt.Errorf("%w: bad version %q", ErrInvalidEnvelope, version)
	}
	return v.Compare(m.current), nil
}

// Plan lists the steps needed to bring version up to date, in order
func (m *Migrator) Plan(version string) ([]Migration, error) {
	v, err := semver.NewVersion(version)
	if err != nil {
		return nil, fmt.Errorf("%w: bad version %q", ErrInvalidEnvelope, version)
	}
	var plan []Migration
	for _, step := range m.steps {
		if v.LessThan(step.to) {
			plan = append(plan, step.Migration)
		}
	}
	return plan, nil
}

// Migrate returns an upgraded copy of env and the steps that ran. An
// envelope newer than the running version is rejected.
func (m *Migrator) Migrate(env *Envelope) (*Envelope, []Migration, error) {
	cmp, err := m.Compare(env.Version)
	if err != nil {
		return nil, nil, err
	}
	if cmp > 0 {
		return nil, nil, fmt.Errorf("%w: %s > %s", ErrNewerVersion, env.Version, m.current)
	}

	out := env.Clone()
	if cmp == 0 {
		return out, nil, nil
	}

	plan, err := m.Plan(env.Version)
	if err != nil {
		return nil, nil, err
	}
	for _, step := range plan {
		if err := step.Apply(out); err != nil {
			return nil, nil, fmt.Errorf("migration %s->%s (%s): %w", step.From, step.To, step.Description, err)
		}
		out.Version = step.To
	}
	out.Version = m.current.String()
	return out, plan, nil
}
