package chunking

// Kind classifies a chunk by its role in the document.
type Kind string

const (
	KindHeader     Kind = "header"
	KindBody       Kind = "body"
	KindConclusion Kind = "conclusion"
	KindAttachment Kind = "attachment"
)

// Priority buckets chunks by relevance score.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Rank orders priorities; higher is more important.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// PriorityFor maps a relevance score to its bucket.
func PriorityFor(score float64) Priority {
	switch {
	case score >= 0.8:
		return PriorityCritical
	case score >= 0.6:
		return PriorityHigh
	case score >= 0.4:
		return PriorityMedium
	}
	return PriorityLow
}

// Methods reported on a ChunkSet.
const (
	MethodEmpty      = "empty"
	MethodNoChunking = "no-chunking"
	MethodStructural = "structural"
	MethodSemantic   = "semantic"
	MethodFixed      = "fixed"
)
