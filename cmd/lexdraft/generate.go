package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sweetpotato0/lexdraft/document"
	"github.com/sweetpotato0/lexdraft/pipeline"
)

type generateFlags struct {
	docType   string
	agentID   string
	style     string
	styleFile string
	output    string
	json      bool
}

func (c *cli) generateCmd() *cobra.Command {
	f := &generateFlags{}
	cmd := &cobra.Command{
		Use:   "generate FILE",
		Short: "Generate a manifestation for a document",
		Long: `Runs analysis, planning and drafting on FILE (.txt, .html or .pdf, "-" for
stdin), then reviews and refines the draft until it reaches the configured
score threshold or iteration limit.

Examples:
  lexdraft generate peticao.pdf --type "Habilitação de Crédito" --agent aj-01
  lexdraft generate peticao.txt --style-file estilo.md -o manifestacao.txt
  lexdraft generate peticao.txt --json > resultado.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runGenerate(cmd, args[0], f)
		},
	}
	cmd.Flags().StringVarP(&f.docType, "type", "t", document.TypeGeneric, "document type")
	cmd.Flags().StringVarP(&f.agentID, "agent", "a", "", "agent whose exemplars and style apply")
	cmd.Flags().StringVar(&f.style, "style", "", "style guide text")
	cmd.Flags().StringVar(&f.styleFile, "style-file", "", "file holding the style guide")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "write the manifestation to this file")
	cmd.Flags().BoolVar(&f.json, "json", false, "print the full result as JSON")
	return cmd
}

func (c *cli) runGenerate(cmd *cobra.Command, path string, f *generateFlags) error {
	ctx := cmd.Context()
	doc, err := readDocument(ctx, cmd, path)
	if err != nil {
		return err
	}
	style := f.style
	if style == "" {
		if style, err = readOptionalFile(f.styleFile); err != nil {
			return err
		}
	}

	a, err := c.newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	strategy := c.cfg.Strategy(f.docType)
	res, hit, err := a.orchestrator.RunCached(ctx, pipeline.Request{
		Document:     doc,
		DocumentType: f.docType,
		AgentID:      f.agentID,
		Style:        style,
		Strategy:     &strategy,
	})
	if err != nil {
		return err
	}

	if f.output != "" {
		if err := os.WriteFile(f.output, []byte(res.FinalDraft.Text), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", f.output, err)
		}
	}
	if f.json {
		return printJSON(cmd, res)
	}
	if f.output == "" {
		fmt.Fprintln(cmd.OutOrStdout(), res.FinalDraft.Text)
	}
	printSummary(cmd, res, hit)
	return nil
}

func printSummary(cmd *cobra.Command, res *pipeline.Result, hit bool) {
	w := cmd.ErrOrStderr()
	certified := "not certified"
	if res.Certified {
		certified = "certified"
	}
	fmt.Fprintf(w, "\nrun %s: score %.1f (%s), %d refinement(s), ~%d oracle tokens, %dms",
		res.RunID, res.FinalScore, certified, res.IterationCount, res.OracleCostEstimate, res.ElapsedMs)
	if hit {
		fmt.Fprint(w, ", served from cache")
	}
	fmt.Fprintln(w)
}
