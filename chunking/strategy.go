package chunking

import (
	"fmt"

	"github.com/sweetpotato0/lexdraft/document"
)

// Strategy configures how a document type is split and scored.
type Strategy struct {
	Name               string   `json:"name" yaml:"name"`
	MaxTokensPerChunk  int      `json:"maxTokensPerChunk" yaml:"max_tokens_per_chunk"`
	OverlapTokens      int      `json:"overlapTokens" yaml:"overlap_tokens"`
	MaxTotalTokens     int      `json:"maxTotalTokens" yaml:"max_total_tokens"`
	PreserveStructure  bool     `json:"preserveStructure" yaml:"preserve_structure"`
	SemanticBoundaries bool     `json:"semanticBoundaries" yaml:"semantic_boundaries"`
	PriorityThreshold  float64  `json:"priorityThreshold" yaml:"priority_threshold"`
	Keywords           []string `json:"keywords,omitempty" yaml:"keywords"`
}

// Validate checks the token bounds.
func (s Strategy) Validate() error {
	if s.MaxTokensPerChunk <= 0 || s.MaxTotalTokens <= 0 {
		return fmt.Errorf("strategy %q: token bounds must be positive", s.Name)
	}
	if s.OverlapTokens < 0 || s.OverlapTokens >= s.MaxTokensPerChunk {
		return fmt.Errorf("strategy %q: overlap must be in [0, maxTokensPerChunk)", s.Name)
	}
	if s.PriorityThreshold < 0 || s.PriorityThreshold > 1 {
		return fmt.Errorf("strategy %q: priority threshold must be in [0,1]", s.Name)
	}
	return nil
}

var strategies = map[string]Strategy{
	document.NormalizeType(document.TypeCreditClaim): {
		Name:               document.TypeCreditClaim,
		MaxTokensPerChunk:  4000,
		OverlapTokens:      200,
		MaxTotalTokens:     20000,
		PreserveStructure:  true,
		SemanticBoundaries: true,
		PriorityThreshold:  0.6,
		Keywords:           []string{"crédito", "habilitação", "valor", "comprovação", "documento", "título"},
	},
	document.NormalizeType(document.TypeBankruptcy): {
		Name:               document.TypeBankruptcy,
		MaxTokensPerChunk:  6000,
		OverlapTokens:      300,
		MaxTotalTokens:     30000,
		PreserveStructure:  true,
		SemanticBoundaries: true,
		PriorityThreshold:  0.5,
		Keywords:           []string{"falência", "credor", "ativo", "passivo", "liquidação", "massa"},
	},
	document.NormalizeType(document.TypeJudicialRecovery): {
		Name:               document.TypeJudicialRecovery,
		MaxTokensPerChunk:  5000,
		OverlapTokens:      250,
		MaxTotalTokens:     25000,
		PreserveStructure:  true,
		SemanticBoundaries: true,
		PriorityThreshold:  0.6,
		Keywords:           []string{"recuperação", "plano", "credores", "viabilidade", "pagamento"},
	},
}

// DefaultStrategy applies to document types without a dedicated strategy.
func DefaultStrategy() Strategy {
	return Strategy{
		Name:               "default",
		MaxTokensPerChunk:  3000,
		OverlapTokens:      150,
		MaxTotalTokens:     15000,
		PreserveStructure:  false,
		SemanticBoundaries: true,
		PriorityThreshold:  0.4,
		Keywords:           []string{"processo", "direito", "lei", "art"},
	}
}

// StrategyFor returns the strategy registered for docType, or the default.
func StrategyFor(docType string) Strategy {
	if s, ok := strategies[document.NormalizeType(docType)]; ok {
		s.Keywords = append([]string(nil), s.Keywords...)
		return s
	}
	return DefaultStrategy()
}
