package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sweetpotato0/lexdraft/config"
	"github.com/sweetpotato0/lexdraft/document"
	"github.com/sweetpotato0/lexdraft/entity"
	"github.com/sweetpotato0/lexdraft/similarity"
)

type caseFlags struct {
	docType        string
	value          float64
	classification string
	divergent      bool
	parties        int
	issues         int
}

func (f *caseFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.docType, "type", "t", document.TypeGeneric, "document type")
	cmd.Flags().Float64Var(&f.value, "value", 0, "primary monetary value")
	cmd.Flags().StringVar(&f.classification, "classification", "", "credit type or nature of the action")
	cmd.Flags().BoolVar(&f.divergent, "divergent", false, "presented total differs from the computed one")
	cmd.Flags().IntVar(&f.parties, "parties", 0, "number of parties")
	cmd.Flags().IntVar(&f.issues, "issues", 0, "number of open legal issues")
}

func (f *caseFlags) facts() similarity.Case {
	return similarity.Case{
		DocumentType:   f.docType,
		PrimaryValue:   f.value,
		Classification: f.classification,
		Divergent:      f.divergent,
		PartyCount:     f.parties,
		IssueCount:     f.issues,
	}
}

func (c *cli) similarCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "similar",
		Short: "Store and rank exemplars",
		Long: `Exemplars are manifestations an agent accepted before. The drafter imitates
the ones whose case facts are closest to the current document.`,
	}
	cmd.AddCommand(c.similarAddCmd(), c.similarFindCmd())
	return cmd
}

func (c *cli) similarAddCmd() *cobra.Command {
	var (
		agentID string
		f       caseFlags
	)
	cmd := &cobra.Command{
		Use:   "add FILE",
		Short: "Store an accepted manifestation as an exemplar",
		Long: `Stores FILE as an exemplar of the agent. Facts not given as flags are
estimated from the text: the largest monetary value and the parties named.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if agentID == "" {
				return errors.New("--agent is required")
			}
			if c.cfg.Exemplars.Backend == config.BackendMemory {
				return errors.New("exemplars.backend is memory; configure postgres or mongo to store exemplars")
			}
			ctx := cmd.Context()
			doc, err := readDocument(ctx, cmd, args[0])
			if err != nil {
				return err
			}

			facts := f.facts()
			found := entity.Extract(doc.Text)
			if !cmd.Flags().Changed("value") {
				facts.PrimaryValue = found.PrimaryValue()
			}
			if !cmd.Flags().Changed("parties") {
				facts.PartyCount = len(found.Parties)
			}

			a, err := c.newBaseApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			ex := similarity.Exemplar{
				ID:        agentID + "-" + doc.ID(),
				AgentID:   agentID,
				FileName:  filepath.Base(args[0]),
				Text:      doc.Text,
				Facts:     facts,
				Processed: true,
			}
			if err := a.store.Save(ctx, ex); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored exemplar %s (%s, value %.2f, %d parties)\n",
				ex.ID, facts.DocumentType, facts.PrimaryValue, facts.PartyCount)
			return nil
		},
	}
	cmd.Flags().StringVarP(&agentID, "agent", "a", "", "agent owning the exemplar")
	f.register(cmd)
	return cmd
}

func (c *cli) similarFindCmd() *cobra.Command {
	var (
		agentID string
		topK    int
		asJSON  bool
		f       caseFlags
	)
	cmd := &cobra.Command{
		Use:   "find",
		Short: "Rank an agent's exemplars against case facts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if agentID == "" {
				return errors.New("--agent is required")
			}
			ctx := cmd.Context()
			a, err := c.newBaseApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			found, err := a.retriever.Find(ctx, agentID, f.facts(), topK)
			if err != nil {
				return err
			}
			if asJSON {
				if found == nil {
					found = []similarity.Candidate{}
				}
				return printJSON(cmd, found)
			}
			if len(found) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No exemplars found.")
				return nil
			}
			out := cmd.OutOrStdout()
			for i, cand := range found {
				fmt.Fprintf(out, "  [%d] %s %s (%.2f)\n", i+1, cand.ExemplarID, cand.FileName, cand.Similarity)
				for _, reason := range cand.MatchReasons {
					fmt.Fprintf(out, "      - %s\n", reason)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&agentID, "agent", "a", "", "agent owning the exemplars")
	cmd.Flags().IntVarP(&topK, "top", "n", 3, "maximum number of exemplars")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the candidates as JSON")
	f.register(cmd)
	return cmd
}
