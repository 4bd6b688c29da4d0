// Package registry binds suite definitions to runnable test cases. Suites
// are declared as ordered lists of case ids, either built in or loaded from
// a YAML file, and resolved against the case functions registered by the
// cases package.
package registry

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/nvmetools/nvmetest/framework"
)

// CaseFunc runs one test case inside an open suite.
type CaseFunc func(*framework.Suite) error

// Case is a registered test case.
type Case struct {
	ID          string
	Title       string
	Description string
	Run         CaseFunc
}

// Definition is one suite as declared in a suite file.
type Definition struct {
	ID                  string   `yaml:"id"`
	Title               string   `yaml:"title"`
	Description         string   `yaml:"description"`
	AbortOnFail         bool     `yaml:"abort_on_fail"`
	ContinueOnException bool     `yaml:"continue_on_exception"`
	Cases               []string `yaml:"cases"`
}

type suiteFile struct {
	Suites []Definition `yaml:"suites"`
}

// Suite is a resolved definition: every case id bound to its function, in
// declaration order.
type Suite struct {
	Definition
	Runs []Case
}

// Config contains registry configuration.
type Config struct {
	Log *zap.SugaredLogger

	// SuiteFile optionally adds YAML suite definitions on top of the
	// built-in ones.
	SuiteFile string
}

// Registry manages case registrations and suite definitions.
type Registry struct {
	cfg    Config
	mu     sync.RWMutex
	cases  map[string]Case
	suites map[string]Definition
	order  []string
}

// New creates a registry and loads cfg.SuiteFile if set.
func New(cfg Config) (*Registry, error) {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop().Sugar()
	}
	r := &Registry{
		cfg:    cfg,
		cases:  make(map[string]Case),
		suites: make(map[string]Definition),
	}
	if cfg.SuiteFile != "" {
		if err := r.LoadSuiteFile(cfg.SuiteFile); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// RegisterCase adds a runnable case. Ids must be unique.
func (r *Registry) RegisterCase(c Case) error {
	if c.ID == "" {
		return fmt.Errorf("case id is required")
	}
	if c.Run == nil {
		return fmt.Errorf("case %s has no run function", c.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.cases[c.ID]; exists {
		return fmt.Errorf("case %s is already registered", c.ID)
	}
	r.cases[c.ID] = c
	return nil
}

// AddSuite adds one suite definition. Ids must be unique.
func (r *Registry) AddSuite(def Definition) error {
	if def.ID == "" {
		return fmt.Errorf("suite id is required")
	}
	if len(def.Cases) == 0 {
		return fmt.Errorf("suite %s declares no cases", def.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.suites[def.ID]; exists {
		return fmt.Errorf("suite %s is already defined", def.ID)
	}
	r.suites[def.ID] = def
	r.order = append(r.order, def.ID)
	return nil
}

// LoadSuiteFile reads suite definitions from a YAML file.
func (r *Registry) LoadSuiteFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading suite file: %w", err)
	}
	var file suiteFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing suite file %s: %w", path, err)
	}
	for _, def := range file.Suites {
		if err := r.AddSuite(def); err != nil {
			return fmt.Errorf("suite file %s: %w", path, err)
		}
	}
	r.cfg.Log.Debugw("Suite definitions loaded", "path", path, "suites", len(file.Suites))
	return nil
}

// Resolve binds a suite definition to its case functions. Every case id in
// the definition must name a registered case.
func (r *Registry) Resolve(suiteID string) (*Suite, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.suites[suiteID]
	if !ok {
		return nil, fmt.Errorf("unknown suite %q, known suites: %v", suiteID, r.suiteIDs())
	}
	suite := &Suite{Definition: def, Runs: make([]Case, 0, len(def.Cases))}
	for _, caseID := range def.Cases {
		c, ok := r.cases[caseID]
		if !ok {
			return nil, fmt.Errorf("suite %s names unknown case %q", suiteID, caseID)
		}
		suite.Runs = append(suite.Runs, c)
	}
	return suite, nil
}

// Suites returns all suite definitions in declaration order.
func (r *Registry) Suites() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(r.order))
	for _, id := range r.order {
		defs = append(defs, r.suites[id])
	}
	return defs
}

// Cases returns all registered cases sorted by id.
func (r *Registry) Cases() []Case {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cases := make([]Case, 0, len(r.cases))
	for _, c := range r.cases {
		cases = append(cases, c)
	}
	sort.Slice(cases, func(i, j int) bool { return cases[i].ID < cases[j].ID })
	return cases
}

func (r *Registry) suiteIDs() []string {
	ids := make([]string, 0, len(r.suites))
	for id := range r.suites {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
