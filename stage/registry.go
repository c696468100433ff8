package stage

import (
	"sync"

	"github.com/sweetpotato0/lexdraft/document"
)

// Agents bundles the type-specific stages.
type Agents struct {
	Analyst  Analyst
	Planner  Planner
	Reviewer Reviewer
}

func (a Agents) merge(fallback Agents) Agents {
	if a.Analyst == nil {
		a.Analyst = fallback.Analyst
	}
	if a.Planner == nil {
		a.Planner = fallback.Planner
	}
	if a.Reviewer == nil {
		a.Reviewer = fallback.Reviewer
	}
	return a
}

// Registry maps document types to Agents. Lookups normalize case and
// accents; unregistered types and missing capabilities use the fallback.
type Registry struct {
	mu       sync.RWMutex
	byType   map[string]Agents
	fallback Agents
}

// NewRegistry creates a registry whose default agents are fallback.
func NewRegistry(fallback Agents) *Registry {
	return &Registry{byType: make(map[string]Agents), fallback: fallback}
}

// Register sets the agents of docType.
func (r *Registry) Register(docType string, a Agents) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byType[document.NormalizeType(docType)] = a
}

// Resolve returns the agents for docType.
func (r *Registry) Resolve(docType string) Agents {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byType[document.NormalizeType(docType)]
	if !ok {
		return r.fallback
	}
	return a.merge(r.fallback)
}

// Specialized reports whether docType has its own agents.
func (r *Registry) Specialized(docType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byType[document.NormalizeType(docType)]
	return ok
}

// DefaultRegistry registers the credit claim agents over the generic ones.
func DefaultRegistry(c *Caller) *Registry {
	r := NewRegistry(Agents{
		Analyst:  NewGenericAnalyst(c),
		Planner:  NewGenericPlanner(c),
		Reviewer: NewGenericReviewer(c),
	})
	r.Register(document.TypeCreditClaim, Agents{
		Analyst:  NewCreditAnalyst(c),
		Planner:  NewCreditPlanner(c),
		Reviewer: NewCreditReviewer(c),
	})
	return r
}
