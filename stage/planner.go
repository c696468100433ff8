package stage

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/sweetpotato0/lexdraft/prompt"
)

type planWire struct {
	Structure         stringList                `json:"estrutura"`
	ContentPerSection map[string]SectionContent `json:"conteudoPorSecao"`
	Checklist         stringList                `json:"checklistObrigatorio"`
	EssentialElements stringList                `json:"elementosEssenciais"`
	Stance            json.RawMessage           `json:"posicionamento"`
}

type stanceWire struct {
	Type    text       `json:"tipo"`
	Grounds text       `json:"fundamentacao"`
	Caveats stringList `json:"ressalvas"`
}

type planner struct {
	caller            *Caller
	template          string
	requiresChecklist bool
	fallback          func() *Plan
	style             string
}

// PlannerOption configures the built-in planners.
type PlannerOption func(*planner)

// WithPlanStyle sets a style guide used when the context carries none.
func WithPlanStyle(style string) PlannerOption {
	return func(p *planner) { p.style = style }
}

// NewCreditPlanner returns the Planner for credit claims.
func NewCreditPlanner(c *Caller, opts ...PlannerOption) Planner {
	p := &planner{caller: c, template: prompt.PlannerCredit, requiresChecklist: true, fallback: creditPlanFallback}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewGenericPlanner returns the Planner used for any document type.
func NewGenericPlanner(c *Caller, opts ...PlannerOption) Planner {
	p := &planner{caller: c, template: prompt.PlannerGeneric, fallback: genericPlanFallback}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *planner) Plan(ctx context.Context, a *Analysis) (*Plan, error) {
	ex, err := p.caller.Generate(ctx, NamePlanning, p.template, map[string]interface{}{
		"Analysis":     a,
		"DocumentType": a.DocumentType,
		"Style":        p.styleFor(ctx),
	})
	if err != nil {
		return nil, err
	}

	decoded := p.decode(ex.Text)
	if !decoded.OK() {
		p.caller.logger.WarnContext(ctx, "plan output malformed, using fallback",
			"template", p.template,
			"reason", decoded.Err.Reason,
		)
		return p.fallback(), nil
	}
	return decoded.Value, nil
}

func (p *planner) styleFor(ctx context.Context) string {
	if s := StyleFrom(ctx); s != "" {
		return s
	}
	return p.style
}

func (p *planner) decode(raw string) Decoded[Plan] {
	w := decodeJSON[planWire](raw)
	if !w.OK() {
		return Decoded[Plan]{Err: w.Err}
	}
	v := w.Value
	switch {
	case len(v.Structure) == 0:
		return malformed[Plan](raw, "missing estrutura")
	case len(v.ContentPerSection) == 0:
		return malformed[Plan](raw, "missing conteudoPorSecao")
	case p.requiresChecklist && len(v.Checklist) == 0:
		return malformed[Plan](raw, "missing checklistObrigatorio")
	}
	return Decoded[Plan]{Value: buildPlan(p.caller, v)}
}

func buildPlan(c *Caller, v *planWire) *Plan {
	out := &Plan{
		MandatoryChecklist: v.Checklist,
		EssentialElements:  v.EssentialElements,
	}
	if dropped := out.normalize(v.Structure, v.ContentPerSection); len(dropped) > 0 && c != nil {
		c.logger.Warn("plan content for unknown sections dropped", "keys", dropped)
	}

	if len(v.Stance) > 0 {
		var s stanceWire
		if err := json.Unmarshal(v.Stance, &s); err == nil {
			out.Stance = strings.ToUpper(s.Type.String())
			out.StanceGrounds = s.Grounds.String()
			out.Caveats = s.Caveats
		} else {
			var t text
			if json.Unmarshal(v.Stance, &t) == nil {
				out.Stance = strings.ToUpper(t.String())
			}
		}
	}
	if out.Stance == "" {
		for _, sec := range out.Sections {
			if st := out.ContentPerSection[sec.ID].Stance; st != "" {
				out.Stance = st
				break
			}
		}
	}
	return out
}

func planFromOutline(titles []string, content map[string]SectionContent) *Plan {
	p := &Plan{}
	p.normalize(titles, content)
	return p
}

func creditPlanFallback() *Plan {
	p := planFromOutline(
		[]string{"I. RELATÓRIO", "II. ANÁLISE", "III. MANIFESTAÇÃO", "IV. REQUERIMENTOS"},
		map[string]SectionContent{
			"I_RELATORIO": {Points: []string{"Identificar partes", "Resumir pedido"}},
			"II_ANALISE": {
				Points:        []string{"Analisar documentação", "Verificar requisitos"},
				SupportingLaw: []string{"Lei 11.101/2005, arts. 9º-17º"},
			},
			"III_MANIFESTACAO": {Points: []string{"Manifestar-se sobre o mérito"}, Stance: StancePartial},
			"IV_REQUERIMENTOS": {Points: []string{"Requerer o que de direito"}},
		},
	)
	p.MandatoryChecklist = []string{"Mencionar Lei 11.101/2005", "Manifestar-se expressamente", "Classificar crédito"}
	p.Stance = StancePartial
	p.Degraded = true
	return p
}

func genericPlanFallback() *Plan {
	p := planFromOutline(
		[]string{"I. INTRODUÇÃO", "II. ANÁLISE", "III. CONCLUSÃO"},
		map[string]SectionContent{
			"I_INTRODUCAO": {Points: []string{"Identificar partes", "Contextualizar pedido"}},
			"II_ANALISE": {
				Points:        []string{"Analisar questões jurídicas", "Verificar fundamentação"},
				SupportingLaw: []string{"Legislação aplicável"},
			},
			"III_CONCLUSAO": {Points: []string{"Manifestar posicionamento"}},
		},
	)
	p.MandatoryChecklist = []string{"Fundamentação legal", "Conclusão clara"}
	p.EssentialElements = []string{"Análise técnica", "Posicionamento fundamentado"}
	p.Degraded = true
	return p
}
