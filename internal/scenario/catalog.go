// Package scenario loads the roleplay scenario catalog and assembles the
// per-session scenario instances handed to the prompt builder.
//
// The catalog is a YAML file with three top-level maps: routes (sales
// approach), industries (prospect archetype) and _difficulties (behaviour
// tiers). It is loaded once at startup and read-only thereafter.
package scenario

import (
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// FallbackProspectName is used when an industry has an empty name pool.
const FallbackProspectName = "Alex"

// ErrUnknownKey is returned by [Catalog.Resolve] when a route, industry or
// difficulty key is not present in the catalog.
var ErrUnknownKey = errors.New("scenario: unknown key")

// Route describes one sales approach (cold call, door knock, cold DM).
type Route struct {
	// Objective is what the rep is trying to achieve on this route.
	Objective string `yaml:"objective"`

	// OpenerHints are suggestions woven into the persona context.
	OpenerHints []string `yaml:"opener_hints"`
}

// Prospect is the persona archetype for an industry.
type Prospect struct {
	// Title is the prospect's job title (e.g., "Owner", "Office Manager").
	Title string `yaml:"title"`

	// Context is free-text background injected into the system prompt.
	Context string `yaml:"context"`

	// NamePool lists first names a session's prospect is drawn from.
	NamePool []string `yaml:"name_pool"`
}

// Industry describes one prospect vertical.
type Industry struct {
	Prospect Prospect `yaml:"prospect"`

	// CommonPains are industry-typical problems the persona may raise.
	CommonPains []string `yaml:"common_pains"`

	// Objections are stock pushbacks the persona draws from.
	Objections []string `yaml:"objections"`
}

// Difficulty tunes how hard the persona pushes back.
type Difficulty struct {
	// PatienceTurns is the turn count after which the prospect may hang up.
	PatienceTurns int `yaml:"patience_turns"`

	// ObjectionRate is the probability [0,1] of raising an objection per turn.
	ObjectionRate float64 `yaml:"objection_rate"`
}

// Catalog is the full scenario configuration. Immutable after load.
type Catalog struct {
	Routes     map[string]Route    `yaml:"routes"`
	Industries map[string]Industry `yaml:"industries"`

	// Difficulties uses an underscore-prefixed YAML key to distinguish the
	// internal tier table from the user-facing routes and industries.
	Difficulties map[string]Difficulty `yaml:"_difficulties"`
}

// Load reads and validates the catalog file at path. A missing, empty or
// unparseable file is an error; the caller is expected to treat it as fatal.
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: open %q: %w", path, err)
	}
	defer f.Close()

	cat, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("scenario: parse %q: %w", path, err)
	}
	return cat, nil
}

// LoadFromReader decodes a catalog from r and validates the result.
func LoadFromReader(r io.Reader) (*Catalog, error) {
	cat := &Catalog{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cat); err != nil {
		return nil, fmt.Errorf("scenario: decode yaml: %w", err)
	}

	var errs []error
	if len(cat.Routes) == 0 {
		errs = append(errs, errors.New("scenario: catalog has no routes"))
	}
	if len(cat.Industries) == 0 {
		errs = append(errs, errors.New("scenario: catalog has no industries"))
	}
	if len(cat.Difficulties) == 0 {
		errs = append(errs, errors.New("scenario: catalog has no _difficulties"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cat, nil
}

// RouteKeys returns the route identifiers in sorted order.
func (c *Catalog) RouteKeys() []string {
	return sortedKeys(c.Routes)
}

// IndustryKeys returns the industry identifiers in sorted order.
func (c *Catalog) IndustryKeys() []string {
	return sortedKeys(c.Industries)
}

// DifficultyKeys returns the difficulty identifiers in sorted order.
func (c *Catalog) DifficultyKeys() []string {
	return sortedKeys(c.Difficulties)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Scenario is the snapshot assembled for one session. Owned exclusively by
// its session; never shared.
type Scenario struct {
	RouteKey      string
	IndustryKey   string
	DifficultyKey string

	Objective   string
	Prospect    Prospect
	Pains       []string
	Objections  []string
	OpenerHints []string
	Difficulty  Difficulty

	// ProspectName is randomly drawn from the industry's name pool.
	ProspectName string
}

// Resolve looks up the three keys and assembles a scenario instance with a
// randomly chosen prospect name. Returns an error wrapping [ErrUnknownKey]
// naming the offending key when any lookup fails.
func (c *Catalog) Resolve(routeKey, industryKey, difficultyKey string) (*Scenario, error) {
	route, ok := c.Routes[routeKey]
	if !ok {
		return nil, fmt.Errorf("%w: route %q", ErrUnknownKey, routeKey)
	}
	industry, ok := c.Industries[industryKey]
	if !ok {
		return nil, fmt.Errorf("%w: industry %q", ErrUnknownKey, industryKey)
	}
	diff, ok := c.Difficulties[difficultyKey]
	if !ok {
		return nil, fmt.Errorf("%w: difficulty %q", ErrUnknownKey, difficultyKey)
	}

	return &Scenario{
		RouteKey:      routeKey,
		IndustryKey:   industryKey,
		DifficultyKey: difficultyKey,
		Objective:     route.Objective,
		Prospect:      industry.Prospect,
		Pains:         industry.CommonPains,
		Objections:    industry.Objections,
		OpenerHints:   route.OpenerHints,
		Difficulty:    diff,
		ProspectName:  pickName(industry.Prospect.NamePool),
	}, nil
}

// pickName draws a random name from pool, falling back to
// [FallbackProspectName] when the pool is empty.
func pickName(pool []string) string {
	if len(pool) == 0 {
		return FallbackProspectName
	}
	return pool[rand.IntN(len(pool))]
}
