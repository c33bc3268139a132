package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/ragdex/pkg/client"
)

const snippetLen = 120

func newSearchCmd(a *app) *cobra.Command {
	var req client.SearchRequest

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Retrieve documents without generating an answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Query = strings.Join(args, " ")
			res, err := a.client.Search(cmd.Context(), req)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.json {
				return printJSON(out, res)
			}
			printSearch(out, res)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&req.Workspace, "workspace", "w", "", "workspace (server default when empty)")
	f.IntVarP(&req.K, "top-k", "k", 0, "number of results (server default when 0)")
	f.StringVarP(&req.Method, "method", "m", client.MethodHybrid, "hybrid, semantic or bm25")
	f.IntVar(&req.RRFK, "rrf-k", 0, "RRF constant (server default when 0)")
	f.Float64SliceVar(&req.Weights, "weights", nil, "fusion weights as semantic,lexical")
	f.Float64Var(&req.MinScore, "min-score", 0, "drop results scoring below this")
	return cmd
}

func printSearch(w io.Writer, res *client.SearchResponse) {
	_, _ = titleColor.Fprintf(w, "%d results for %q", res.Count, res.Query)
	_, _ = dimColor.Fprintf(w, " (%s, %.1f ms)\n", res.Method, res.TookMs)
	for i, r := range res.Results {
		printResult(w, i+1, &r)
	}
}

func printResult(w io.Writer, n int, r *client.Result) {
	_, _ = okColor.Fprintf(w, "%2d. %s", n, r.ID)
	_, _ = fmt.Fprintf(w, "  score=%.4f", r.Score)
	if r.LexicalRank != nil {
		_, _ = dimColor.Fprintf(w, " bm25#%d", *r.LexicalRank)
	}
	if r.SemanticRank != nil {
		_, _ = dimColor.Fprintf(w, " semantic#%d", *r.SemanticRank)
	}
	_, _ = fmt.Fprintf(w, "\n    %s\n", snippet(r.Text))
}

func snippet(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if r := []rune(text); len(r) > snippetLen {
		return string(r[:snippetLen]) + "…"
	}
	return text
}
