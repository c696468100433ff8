package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sweetpotato0/lexdraft/document"
)

func (c *cli) chunkCmd() *cobra.Command {
	var (
		docType  string
		asJSON   bool
		relevant bool
	)
	cmd := &cobra.Command{
		Use:   "chunk FILE",
		Short: "Show how a document is split and prioritized",
		Long: `Splits FILE with the chunking strategy of its document type and lists the
chunks in priority order. No oracle is called.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(cmd.Context(), cmd, args[0])
			if err != nil {
				return err
			}
			chunker, err := c.newChunker()
			if err != nil {
				return err
			}

			set := chunker.Chunk(doc, docType, c.cfg.Strategy(docType))
			if asJSON {
				return printJSON(cmd, set)
			}

			out := cmd.OutOrStdout()
			chunks := set.Prioritized
			if relevant {
				chunks = set.Relevant()
			}
			fmt.Fprintf(out, "strategy %s, method %s, %d chunk(s), ~%d tokens\n",
				set.Strategy.Name, set.Method, len(set.Chunks), set.TotalTokens)
			fmt.Fprintf(out, "%s\n\n", set.ContextSummary)
			for _, ch := range chunks {
				fmt.Fprintf(out, "  [%d] %-8s %.2f %6d tok  %s\n",
					ch.Index, ch.Priority, ch.RelevanceScore, ch.TokenEstimate, ch.Section)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&docType, "type", "t", document.TypeGeneric, "document type")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the chunk set as JSON")
	cmd.Flags().BoolVar(&relevant, "relevant", false, "list only chunks above the priority threshold")
	return cmd
}
