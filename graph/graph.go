// Package graph runs a sequential state machine described as nodes and
// edges. Condition nodes pick the next node from their branch map; the run
// stops at the end node.
package graph

import (
	"context"
	"fmt"
	"time"
)

// NodeType represents the type of a node in the graph
type NodeType string

const (
	NodeTypeStart     NodeType = "start"
	NodeTypeEnd       NodeType = "end"
	NodeTypeStage     NodeType = "stage"
	NodeTypeCondition NodeType = "condition"
)

// State represents the execution state passed between nodes
type State map[string]any

// NodeFunc is the function executed by a node
type NodeFunc func(context.Context, State) (State, error)

// ConditionFunc evaluates a condition and returns the branch to take
type ConditionFunc func(context.Context, State) (string, error)

// Node represents a node in the execution graph
type Node struct {
	Name      string
	Type      NodeType
	Execute   NodeFunc
	Condition ConditionFunc     // Only for condition nodes
	Next      string            // Outgoing edge of non-condition nodes
	Branches  map[string]string // For condition nodes: condition result -> next node
}

// Transition is reported to the observer after every node.
type Transition struct {
	Node     string
	Type     NodeType
	Visit    int
	Branch   string
	Next     string
	Duration time.Duration
	Err      error
}

// Observer receives transitions as they happen.
type Observer func(context.Context, Transition)

// Graph represents an execution flow graph
type Graph struct {
	nodes     map[string]*Node
	startNode string
	endNode   string
	maxVisits int
	observer  Observer
}

// NewGraph creates a new graph
func NewGraph() *Graph {
	return &Graph{
		nodes:     make(map[string]*Node),
		maxVisits: 10,
	}
}

func (g *Graph) validateNode(node *Node) {
	if node.Name == "" {
		panic("node name cannot be empty")
	}

	switch node.Type {
	case NodeTypeCondition:
		if node.Condition == nil {
			panic(fmt.Sprintf("condition node %s must have non-nil Condition function", node.Name))
		}
	case NodeTypeEnd:
		// End nodes may be plain markers.
	default:
		if node.Execute == nil {
			panic(fmt.Sprintf("node %s of type %s must have non-nil Execute function", node.Name, node.Type))
		}
	}
}

// AddNode adds a node to the graph
func (g *Graph) AddNode(node *Node) {
	if _, exists := g.nodes[node.Name]; exists {
		panic(fmt.Sprintf("node %s already exists", node.Name))
	}

	g.validateNode(node)

	g.nodes[node.Name] = node

	if node.Type == NodeTypeStart {
		g.startNode = node.Name
	}
	if node.Type == NodeTypeEnd {
		g.endNode = node.Name
	}
}

// SetMaxVisits sets the maximum number of visits to a node
func (g *Graph) SetMaxVisits(maxVisits int) {
	g.maxVisits = maxVisits
}

// GetNode returns a node by name
func (g *Graph) GetNode(name string) (*Node, error) {
	node, exists := g.nodes[name]
	if !exists {
		return nil, fmt.Errorf("node %s not found", name)
	}
	return node, nil
}

// Execute walks the graph from the start node until the end node has run.
// ctx is checked before every node; a cancelled context stops the walk and
// its error is returned unwrapped. Node errors are wrapped with the node name.
func (g *Graph) Execute(ctx context.Context, initialState State) (State, error) {
	if g.startNode == "" {
		return nil, fmt.Errorf("start node not set")
	}

	state := initialState
	if state == nil {
		state = make(State)
	}
	visited := make(map[string]int)

	current := g.startNode
	for {
		if err := ctx.Err(); err != nil {
			return state, err
		}

		node, exists := g.nodes[current]
		if !exists {
			return state, fmt.Errorf("node %s not found", current)
		}

		visited[current]++
		if visited[current] > g.maxVisits {
			return state, fmt.Errorf("infinite loop detected at node %s", current)
		}

		start := time.Now()
		tr := Transition{Node: node.Name, Type: node.Type, Visit: visited[current]}
		next, err := g.step(ctx, node, &state, &tr)
		tr.Next, tr.Duration, tr.Err = next, time.Since(start), err
		if g.observer != nil {
			g.observer(ctx, tr)
		}
		if err != nil {
			return state, err
		}
		if node.Type == NodeTypeEnd || node.Name == g.endNode {
			return state, nil
		}
		current = next
	}
}

func (g *Graph) step(ctx context.Context, node *Node, state *State, tr *Transition) (string, error) {
	if node.Type == NodeTypeCondition {
		branch, err := node.Condition(ctx, *state)
		if err != nil {
			return "", fmt.Errorf("error evaluating condition at node %s: %w", node.Name, err)
		}
		tr.Branch = branch
		next := node.Branches[branch]
		if next == "" {
			return "", fmt.Errorf("no next node for branch %q of node %s", branch, node.Name)
		}
		return next, nil
	}

	if node.Execute != nil {
		out, err := node.Execute(ctx, *state)
		if err != nil {
			return "", fmt.Errorf("error executing node %s: %w", node.Name, err)
		}
		if out != nil {
			*state = out
		}
	}
	if node.Type == NodeTypeEnd || node.Name == g.endNode {
		return "", nil
	}
	if node.Next == "" {
		return "", fmt.Errorf("no next node specified for node %s", node.Name)
	}
	return node.Next, nil
}

// Builder helps build graphs fluently
type Builder struct {
	graph *Graph
}

// NewBuilder creates a new graph builder
func NewBuilder() *Builder {
	return &Builder{
		graph: NewGraph(),
	}
}

// AddNode adds a node to the graph
func (b *Builder) AddNode(name string, nodeType NodeType, execute NodeFunc) *Builder {
	b.graph.AddNode(&Node{
		Name:    name,
		Type:    nodeType,
		Execute: execute,
	})
	return b
}

// AddConditionNode adds a condition node
func (b *Builder) AddConditionNode(name string, condition ConditionFunc, branches map[string]string) *Builder {
	b.graph.AddNode(&Node{
		Name:      name,
		Type:      NodeTypeCondition,
		Condition: condition,
		Branches:  branches,
	})
	return b
}

// AddEdge connects two nodes; a later edge from the same node replaces the
// earlier one.
func (b *Builder) AddEdge(from, to string) *Builder {
	node, exists := b.graph.nodes[from]
	if !exists {
		panic(fmt.Sprintf("node %s not found", from))
	}
	node.Next = to
	return b
}

// SetMaxVisits bounds how often any node may run.
func (b *Builder) SetMaxVisits(maxVisits int) *Builder {
	b.graph.SetMaxVisits(maxVisits)
	return b
}

// Observe registers fn to receive every transition.
func (b *Builder) Observe(fn Observer) *Builder {
	b.graph.observer = fn
	return b
}

// Build returns the graph
func (b *Builder) Build() *Graph {
	return b.graph
}
