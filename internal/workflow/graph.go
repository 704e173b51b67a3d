package workflow

import (
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/agentsync/internal/errors"
)

// Agent describes one participant in the roster.
type Agent struct {
	ID            string   `yaml:"id" json:"id"`
	Name          string   `yaml:"name" json:"name"`
	PrimaryRole   string   `yaml:"primary_role" json:"primaryRole"`
	SecondaryRole string   `yaml:"secondary_role,omitempty" json:"secondaryRole,omitempty"`
	Capabilities  []string `yaml:"capabilities,omitempty" json:"capabilities,omitempty"`
}

// Stage is a named unit of workflow owned by exactly one agent.
type Stage struct {
	Name          string   `yaml:"name" json:"name"`
	AssignedAgent string   `yaml:"assigned_agent" json:"assignedAgent"`
	Dependencies  []string `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`
	Deliverables  []string `yaml:"deliverables,omitempty" json:"deliverables,omitempty"`
}

// Graph is the static stage dependency graph plus the agent roster.
// Dependencies named in Exempt are treated as always satisfied.
type Graph struct {
	Agents []Agent  `yaml:"agents"`
	Stages []Stage  `yaml:"stages"`
	Exempt []string `yaml:"exempt_dependencies,omitempty"`

	agents map[string]*Agent
	stages map[string]*Stage
	exempt map[string]bool
}

// DefaultGraph returns the built-in four-stage graph and three-agent roster.
func DefaultGraph() *Graph {
	g := &Graph{
		Agents: []Agent{
			{
				ID:            "kilo",
				Name:          "Kilo Code",
				PrimaryRole:   "frontend_development",
				SecondaryRole: "testing_and_fixations",
				Capabilities:  []string{"react", "vue", "javascript", "testing", "ui/ux"},
			},
			{
				ID:            "roo",
				Name:          "Roo Code",
				PrimaryRole:   "backend_integration",
				SecondaryRole: "validation_and_reviewing",
				Capabilities:  []string{"nodejs", "api", "database", "validation", "review"},
			},
			{
				ID:            "codesupernova",
				Name:          "CodeSupernova",
				PrimaryRole:   "monitoring_systems",
				SecondaryRole: "system_architecture",
				Capabilities:  []string{"monitoring", "observability", "docker", "devops"},
			},
		},
		Stages: []Stage{
			{
				Name:          "frontend_development",
				AssignedAgent: "kilo",
				Dependencies:  []string{"monitoring_system"},
				Deliverables:  []string{"modern_web_interface", "real_time_dashboard", "mobile_responsive_design"},
			},
			{
				Name:          "backend_integration",
				AssignedAgent: "roo",
				Dependencies:  []string{"frontend_development"},
				Deliverables:  []string{"api_enhancement", "database_integration", "mobile_sdk"},
			},
			{
				Name:          "testing_and_fixations",
				AssignedAgent: "kilo",
				Dependencies:  []string{"backend_integration"},
				Deliverables:  []string{"comprehensive_tests", "bug_fixes", "performance_optimization"},
			},
			{
				Name:          "validation_and_reviewing",
				AssignedAgent: "roo",
				Dependencies:  []string{"testing_and_fixations"},
				Deliverables:  []string{"code_review", "security_audit", "final_validation"},
			},
		},
		Exempt: []string{"monitoring_system"},
	}
	// The built-in graph is always valid.
	_ = g.Validate()
	return g
}

// ParseGraph decodes a YAML graph and validates it.
func ParseGraph(data []byte) (*Graph, error) {
	var g Graph
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, errors.NewValidationError("invalid workflow graph").WithCause(err)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &g, nil
}

// LoadGraph reads and validates a YAML graph file.
func LoadGraph(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow graph: %w", err)
	}
	g, err := ParseGraph(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

// Validate checks the graph and builds its lookup indexes. Every problem
// found is reported; a cycle additionally matches ErrDependencyCycle.
func (g *Graph) Validate() error {
	var errs []error

	g.agents = make(map[string]*Agent, len(g.Agents))
	for i := range g.Agents {
		a := &g.Agents[i]
		switch {
		case a.ID == "":
			errs = append(errs, errors.NewValidationError("agent id is required").WithField("agents"))
		case g.agents[a.ID] != nil:
			errs = append(errs, errors.NewValidationError("duplicate agent").WithField("agents").WithValue(a.ID))
		default:
			g.agents[a.ID] = a
		}
	}

	g.exempt = make(map[string]bool, len(g.Exempt))
	for _, name := range g.Exempt {
		g.exempt[name] = true
	}

	g.stages = make(map[string]*Stage, len(g.Stages))
	for i := range g.Stages {
		s := &g.Stages[i]
		switch {
		case s.Name == "":
			errs = append(errs, errors.NewValidationError("stage name is required").WithField("stages"))
			continue
		case g.stages[s.Name] != nil:
			errs = append(errs, errors.NewValidationError("duplicate stage").WithField("stages").WithValue(s.Name))
			continue
		}
		g.stages[s.Name] = s
		if g.agents[s.AssignedAgent] == nil {
			errs = append(errs, errors.NewValidationError("stage assigned to unknown agent").
				WithField(s.Name+".assigned_agent").WithValue(s.AssignedAgent).WithCause(errors.ErrUnknownAgent))
		}
	}

	for _, s := range g.Stages {
		for _, dep := range s.Dependencies {
			if dep == s.Name {
				errs = append(errs, fmt.Errorf("stage %s depends on itself: %w", s.Name, errors.ErrDependencyCycle))
				continue
			}
			if g.stages[dep] == nil && !g.exempt[dep] {
				errs = append(errs, errors.NewValidationError("undefined dependency").
					WithField(s.Name+".dependencies").WithValue(dep))
			}
		}
	}

	if len(errs) == 0 {
		if _, err := g.Order(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Order returns stage names in dependency order: every stage appears after
// the stages it depends on. Stages on the same level keep their declared
// order.
func (g *Graph) Order() ([]string, error) {
	inDegree := make(map[string]int, len(g.Stages))
	dependents := make(map[string][]string, len(g.Stages))
	for _, s := range g.Stages {
		inDegree[s.Name] = 0
	}
	for _, s := range g.Stages {
		for _, dep := range s.Dependencies {
			if _, ok := inDegree[dep]; ok {
				inDegree[s.Name]++
				dependents[dep] = append(dependents[dep], s.Name)
			}
		}
	}

	// BFS over levels, seeded in declaration order.
	var queue []string
	for _, s := range g.Stages {
		if inDegree[s.Name] == 0 {
			queue = append(queue, s.Name)
		}
	}

	order := make([]string, 0, len(g.Stages))
	for len(queue) > 0 {
		var next []string
		for _, name := range queue {
			order = append(order, name)
			for _, d := range dependents[name] {
				inDegree[d]--
				if inDegree[d] == 0 {
					next = append(next, d)
				}
			}
		}
		queue = next
	}

	if len(order) != len(inDegree) {
		var stuck []string
		for _, s := range g.Stages {
			if inDegree[s.Name] > 0 {
				stuck = append(stuck, s.Name)
			}
		}
		return nil, fmt.Errorf("stages %v: %w", stuck, errors.ErrDependencyCycle)
	}
	return order, nil
}

// Stage returns the named stage.
func (g *Graph) Stage(name string) (Stage, bool) {
	g.ensureIndex()
	s, ok := g.stages[name]
	if !ok {
		return Stage{}, false
	}
	return *s, true
}

// Agent returns the named roster entry.
func (g *Graph) Agent(id string) (Agent, bool) {
	g.ensureIndex()
	a, ok := g.agents[id]
	if !ok {
		return Agent{}, false
	}
	return *a, true
}

// IsExempt reports whether dep is always treated as satisfied.
func (g *Graph) IsExempt(dep string) bool {
	g.ensureIndex()
	return g.exempt[dep]
}

// AgentIDs returns roster IDs sorted.
func (g *Graph) AgentIDs() []string {
	ids := make([]string, 0, len(g.Agents))
	for _, a := range g.Agents {
		ids = append(ids, a.ID)
	}
	slices.Sort(ids)
	return ids
}

// Roles maps each agent to its primary role.
func (g *Graph) Roles() map[string]string {
	roles := make(map[string]string, len(g.Agents))
	for _, a := range g.Agents {
		roles[a.ID] = a.PrimaryRole
	}
	return roles
}

// ensureIndex builds the lookup maps for graphs constructed as literals.
func (g *Graph) ensureIndex() {
	if g.stages == nil || g.agents == nil || g.exempt == nil {
		_ = g.Validate()
	}
}
