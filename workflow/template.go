package workflow

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/witmind/conductor/types"
)

// Template is a reusable workflow blueprint: named layers of agents
// where each layer depends on the whole previous layer and agents
// within a layer run in parallel. Templates expand to plain stage
// lists; nothing downstream knows they came from a template.
type Template struct {
	ID          string
	Name        string
	Description string
	// Keywords drive SuggestTemplate matching.
	Keywords []string
	// Layers run sequentially; agents within one layer concurrently.
	Layers [][]string
}

// Stages expands the template into a stage list ready for NewGraph.
// Stage IDs are the agent IDs, deduplicated with a numeric suffix when
// an agent appears in more than one layer.
func (t *Template) Stages(description string) []*Stage {
	seen := make(map[string]int)
	var stages []*Stage
	var prev []string
	for i, layer := range t.Layers {
		group := ""
		if len(layer) > 1 {
			group = fmt.Sprintf("%s_layer_%d", t.ID, i+1)
		}
		var current []string
		for _, agent := range layer {
			id := agent
			seen[agent]++
			if n := seen[agent]; n > 1 {
				id = fmt.Sprintf("%s_%d", agent, n)
			}
			stages = append(stages, &Stage{
				ID:      id,
				AgentID: agent,
				Task: types.TaskSpec{
					Type:        agent,
					Description: description,
				},
				DependsOn:     append([]string(nil), prev...),
				ParallelGroup: group,
			})
			current = append(current, id)
		}
		prev = current
	}
	return stages
}

// TemplateRegistry holds workflow templates by ID.
type TemplateRegistry struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateRegistry creates a registry preloaded with the builtin
// templates.
func NewTemplateRegistry() *TemplateRegistry {
	r := &TemplateRegistry{templates: make(map[string]*Template)}
	for _, t := range builtinTemplates {
		r.templates[t.ID] = t
	}
	return r
}

// Register adds or replaces a template.
func (r *TemplateRegistry) Register(t *Template) error {
	if t == nil || t.ID == "" {
		return types.NewError(types.ErrValidation, "template must have an ID")
	}
	if len(t.Layers) == 0 {
		return types.NewErrorf(types.ErrValidation, "template %s has no layers", t.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[t.ID] = t
	return nil
}

// Get retrieves a template by ID.
func (r *TemplateRegistry) Get(id string) (*Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[id]
	return t, ok
}

// List returns all templates sorted by ID.
func (r *TemplateRegistry) List() []*Template {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Template, 0, len(r.templates))
	for _, t := range r.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Suggest picks the template whose keywords best match the free-form
// project description. Ties break toward the lexicographically smaller
// template ID; no match at all falls back to fullstack_app.
func (r *TemplateRegistry) Suggest(description string) *Template {
	lower := strings.ToLower(description)
	var best *Template
	bestScore := 0
	for _, t := range r.List() {
		score := 0
		for _, kw := range t.Keywords {
			if strings.Contains(lower, kw) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = t, score
		}
	}
	if best == nil {
		fallback, _ := r.Get("fullstack_app")
		return fallback
	}
	return best
}

var builtinTemplates = []*Template{
	{
		ID:          "simple_website",
		Name:        "Simple Website",
		Description: "Static or lightly dynamic site: design, build, review",
		Keywords:    []string{"website", "landing", "static", "portfolio", "blog"},
		Layers: [][]string{
			{"planner"},
			{"designer"},
			{"frontend_developer"},
			{"reviewer"},
		},
	},
	{
		ID:          "fullstack_app",
		Name:        "Full-Stack Application",
		Description: "Web application with API backend and database",
		Keywords:    []string{"app", "application", "fullstack", "saas", "platform", "dashboard"},
		Layers: [][]string{
			{"planner"},
			{"architect"},
			{"backend_developer", "frontend_developer"},
			{"database_engineer"},
			{"tester"},
			{"reviewer"},
		},
	},
	{
		ID:          "mobile_app",
		Name:        "Mobile Application",
		Description: "Cross-platform mobile app with backend services",
		Keywords:    []string{"mobile", "ios", "android", "phone"},
		Layers: [][]string{
			{"planner"},
			{"designer"},
			{"mobile_developer", "backend_developer"},
			{"tester"},
			{"reviewer"},
		},
	},
	{
		ID:          "api_backend",
		Name:        "API Backend",
		Description: "Service API with persistence and documentation",
		Keywords:    []string{"api", "backend", "service", "rest", "grpc", "microservice"},
		Layers: [][]string{
			{"planner"},
			{"architect"},
			{"backend_developer"},
			{"database_engineer", "doc_writer"},
			{"tester"},
		},
	},
	{
		ID:          "code_review",
		Name:        "Code Review",
		Description: "Multi-angle review of an existing codebase",
		Keywords:    []string{"review", "audit", "refactor", "security"},
		Layers: [][]string{
			{"analyzer"},
			{"security_reviewer", "performance_reviewer", "style_reviewer"},
			{"reviewer"},
		},
	},
	{
		ID:          "content_campaign",
		Name:        "Content Campaign",
		Description: "Research-driven content production and editing",
		Keywords:    []string{"content", "marketing", "article", "copy", "campaign", "seo"},
		Layers: [][]string{
			{"researcher"},
			{"writer", "designer"},
			{"editor"},
		},
	},
}
