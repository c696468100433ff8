package stage

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/sweetpotato0/lexdraft/document"
	"github.com/sweetpotato0/lexdraft/entity"
	"github.com/sweetpotato0/lexdraft/prompt"
)

const rawExcerptLen = 500

var manualReview = struct {
	issue, attention string
}{
	issue:     "Análise manual necessária - erro no processamento automático",
	attention: "CRÍTICO: Falha na análise automática - revisar documento manualmente",
}

type analyst struct {
	caller   *Caller
	template string
	decode   func(raw string) Decoded[Analysis]
	fallback func(raw string) *Analysis
}

// NewCreditAnalyst returns the Analyst for credit claims (habilitação de
// crédito) under Lei 11.101/2005.
func NewCreditAnalyst(c *Caller) Analyst {
	return &analyst{caller: c, template: prompt.AnalystCredit, decode: decodeCreditAnalysis, fallback: creditAnalysisFallback}
}

// NewGenericAnalyst returns the Analyst used for any document type.
func NewGenericAnalyst(c *Caller) Analyst {
	return &analyst{caller: c, template: prompt.AnalystGeneric, decode: decodeGenericAnalysis, fallback: genericAnalysisFallback}
}

func (a *analyst) Analyze(ctx context.Context, in AnalysisInput) (*Analysis, error) {
	ex, err := a.caller.Generate(ctx, NameAnalysis, a.template, map[string]interface{}{
		"Document":     in.Text(),
		"DocumentType": in.DocumentType,
	})
	if err != nil {
		return nil, err
	}

	decoded := a.decode(ex.Text)
	out := decoded.Value
	if !decoded.OK() {
		a.caller.logger.WarnContext(ctx, "analysis output malformed, using fallback",
			"template", a.template,
			"reason", decoded.Err.Reason,
		)
		out = a.fallback(ex.Text)
	}
	if out.DocumentType == "" {
		out.DocumentType = in.DocumentType
	}
	if out.DocumentType == "" {
		out.DocumentType = document.TypeGeneric
	}
	out.Entities = entity.Extract(in.Document.Text)
	if len(out.Dates) == 0 {
		out.Dates = out.Entities.Dates
	}
	out.Verify()
	return out, nil
}

func excerpt(raw string) string {
	r := []rune(raw)
	if len(r) > rawExcerptLen {
		r = r[:rawExcerptLen]
	}
	return string(r)
}

// Credit claim shape.

type creditFigureWire struct {
	Rate      text   `json:"taxa"`
	Period    text   `json:"periodo"`
	Presented number `json:"valorApresentado"`
	Computed  number `json:"valorCalculado"`
	Correct   flag   `json:"correto"`
}

func (w *creditFigureWire) figure() *Figure {
	if w == nil {
		return nil
	}
	return &Figure{
		Rate:      w.Rate.String(),
		Period:    w.Period.String(),
		Presented: w.Presented.ptr(),
		Computed:  w.Computed.ptr(),
		Correct:   w.Correct.ptr(),
	}
}

type creditAnalysisWire struct {
	Entities *struct {
		Claimant struct {
			Name           text `json:"nome"`
			TaxID          text `json:"cpfCnpj"`
			Representation text `json:"representacao"`
		} `json:"habilitante"`
		Debtor struct {
			Name       text `json:"nome"`
			CaseNumber text `json:"numeroProcesso"`
		} `json:"devedor"`
		Credit struct {
			Principal  number            `json:"valorPrincipal"`
			Interest   *creditFigureWire `json:"juros"`
			Correction *creditFigureWire `json:"correcaoMonetaria"`
			Total      *creditFigureWire `json:"total"`
		} `json:"credito"`
	} `json:"entidades"`
	Verification *struct {
		Status       text   `json:"status"`
		Details      text   `json:"detalhes"`
		CorrectValue number `json:"valorCorreto"`
	} `json:"calculosVerificados"`
	Classification *struct {
		Type    text `json:"tipo"`
		Article text `json:"artigo"`
		Grounds text `json:"fundamentacao"`
	} `json:"classificacaoCredito"`
	LegalQuestions  stringList                 `json:"questoesJuridicas"`
	AttentionPoints stringList                 `json:"pontosAtencao"`
	ApplicableLaw   stringList                 `json:"leisAplicaveis"`
	Requirements    map[string]json.RawMessage `json:"requisitosProcessuais"`
	Missing         stringList                 `json:"informacoesFaltantes"`
}

func decodeCreditAnalysis(raw string) Decoded[Analysis] {
	w := decodeJSON[creditAnalysisWire](raw)
	if !w.OK() {
		return Decoded[Analysis]{Err: w.Err}
	}
	v := w.Value
	if v.Entities == nil || v.Verification == nil {
		return malformed[Analysis](raw, "missing entidades or calculosVerificados")
	}

	e := v.Entities
	out := &Analysis{
		DocumentType: document.TypeCreditClaim,
		Figures: ComputedFigures{
			Status:       strings.ToUpper(v.Verification.Status.String()),
			Details:      v.Verification.Details.String(),
			CorrectValue: v.Verification.CorrectValue.ptr(),
			Principal:    e.Credit.Principal.ptr(),
			Interest:     e.Credit.Interest.figure(),
			Correction:   e.Credit.Correction.figure(),
			Total:        e.Credit.Total.figure(),
		},
		OpenIssues:             v.LegalQuestions,
		AttentionPoints:        v.AttentionPoints,
		ApplicableLaw:          v.ApplicableLaw,
		ProceduralRequirements: flattenRequirements(v.Requirements),
		MissingInformation:     v.Missing,
	}
	if name := e.Claimant.Name.String(); name != "" {
		out.Parties = append(out.Parties, Party{
			Name:           name,
			Role:           "habilitante",
			TaxID:          e.Claimant.TaxID.String(),
			Representation: e.Claimant.Representation.String(),
		})
	}
	if name := e.Debtor.Name.String(); name != "" {
		out.Parties = append(out.Parties, Party{
			Name:       name,
			Role:       "devedor",
			CaseNumber: e.Debtor.CaseNumber.String(),
		})
	}
	if c := v.Classification; c != nil && c.Type != "" {
		out.Classification = &Classification{
			Type:    c.Type.String(),
			Article: c.Article.String(),
			Grounds: c.Grounds.String(),
		}
	}
	return Decoded[Analysis]{Value: out}
}

func flattenRequirements(in map[string]json.RawMessage) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, raw := range in {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			out[k] = s
			continue
		}
		var compact bytes.Buffer
		if err := json.Compact(&compact, raw); err == nil {
			out[k] = compact.String()
		}
	}
	return out
}

func creditAnalysisFallback(raw string) *Analysis {
	return &Analysis{
		DocumentType: document.TypeCreditClaim,
		Figures: ComputedFigures{
			Status:  StatusNotVerifiable,
			Details: "Erro ao processar análise. Texto da resposta: " + excerpt(raw),
		},
		OpenIssues:      []string{manualReview.issue},
		AttentionPoints: []string{manualReview.attention},
		ApplicableLaw:   []string{"Lei 11.101/2005, arts. 9º-17º", "Lei 11.101/2005, art. 83"},
		Degraded:        true,
	}
}

// Generic shape.

type genericAnalysisWire struct {
	DocumentType text              `json:"tipoDocumento"`
	Parties      []json.RawMessage `json:"partes"`
	Values       *struct {
		Principal number `json:"principal"`
		Interest  *struct {
			Rate    text   `json:"taxa"`
			Period  text   `json:"periodo"`
			Value   number `json:"valor"`
			Correct flag   `json:"correto"`
		} `json:"juros"`
		Correction *struct {
			Index   text   `json:"indice"`
			Period  text   `json:"periodo"`
			Value   number `json:"valor"`
			Correct flag   `json:"correto"`
		} `json:"correcao"`
		Total *struct {
			Presented number `json:"apresentado"`
			Computed  number `json:"calculado"`
			Correct   flag   `json:"correto"`
		} `json:"total"`
	} `json:"valores"`
	Dates           stringList `json:"datas"`
	LegalQuestions  stringList `json:"questoesJuridicas"`
	LegalGrounds    stringList `json:"fundamentosLegais"`
	Requests        stringList `json:"pedidos"`
	Evidence        stringList `json:"provas"`
	Classifications *struct {
		CreditType   text `json:"tipoCredito"`
		AppealType   text `json:"tipoRecurso"`
		ActionNature text `json:"naturezaAcao"`
	} `json:"classificacoes"`
	AttentionPoints stringList `json:"pontosAtencao"`
	Missing         stringList `json:"informacoesFaltantes"`
}

type partyWire struct {
	Name           text `json:"nome"`
	Role           text `json:"tipo"`
	TaxID          text `json:"cpfCnpj"`
	Representation text `json:"representacao"`
}

func decodeGenericAnalysis(raw string) Decoded[Analysis] {
	w := decodeJSON[genericAnalysisWire](raw)
	if !w.OK() {
		return Decoded[Analysis]{Err: w.Err}
	}
	v := w.Value
	if v.DocumentType == "" {
		return malformed[Analysis](raw, "missing tipoDocumento")
	}

	out := &Analysis{
		DocumentType:       v.DocumentType.String(),
		Dates:              v.Dates,
		OpenIssues:         v.LegalQuestions,
		ApplicableLaw:      v.LegalGrounds,
		Requests:           v.Requests,
		Evidence:           v.Evidence,
		AttentionPoints:    v.AttentionPoints,
		MissingInformation: v.Missing,
	}
	for _, raw := range v.Parties {
		var p partyWire
		if err := json.Unmarshal(raw, &p); err != nil {
			var name string
			if json.Unmarshal(raw, &name) != nil {
				continue
			}
			p.Name = text(name)
		}
		if p.Name == "" {
			continue
		}
		out.Parties = append(out.Parties, Party{
			Name:           p.Name.String(),
			Role:           p.Role.String(),
			TaxID:          p.TaxID.String(),
			Representation: p.Representation.String(),
		})
	}
	if vals := v.Values; vals != nil {
		out.Figures.Principal = vals.Principal.ptr()
		if j := vals.Interest; j != nil {
			out.Figures.Interest = &Figure{Rate: j.Rate.String(), Period: j.Period.String(), Presented: j.Value.ptr(), Correct: j.Correct.ptr()}
		}
		if c := vals.Correction; c != nil {
			out.Figures.Correction = &Figure{Rate: c.Index.String(), Period: c.Period.String(), Presented: c.Value.ptr(), Correct: c.Correct.ptr()}
		}
		if t := vals.Total; t != nil {
			out.Figures.Total = &Figure{Presented: t.Presented.ptr(), Computed: t.Computed.ptr(), Correct: t.Correct.ptr()}
		}
	}
	if c := v.Classifications; c != nil && (c.CreditType != "" || c.AppealType != "" || c.ActionNature != "") {
		out.Classification = &Classification{
			Type:         c.CreditType.String(),
			AppealType:   c.AppealType.String(),
			ActionNature: c.ActionNature.String(),
		}
	}
	return Decoded[Analysis]{Value: out}
}

func genericAnalysisFallback(raw string) *Analysis {
	return &Analysis{
		OpenIssues:         []string{manualReview.issue},
		AttentionPoints:    []string{manualReview.attention},
		MissingInformation: []string{"Erro ao processar: " + excerpt(raw)},
		Degraded:           true,
	}
}
