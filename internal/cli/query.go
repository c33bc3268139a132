package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/ragdex/pkg/client"
)

func newQueryCmd(a *app) *cobra.Command {
	var (
		req         client.QueryRequest
		stream      bool
		temperature float64
		showSources bool
	)

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Ask a question and print the generated answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Question = strings.Join(args, " ")
			if cmd.Flags().Changed("temperature") {
				req.Temperature = &temperature
			}
			out := cmd.OutOrStdout()

			if stream {
				return a.streamQuery(cmd, req, showSources)
			}

			res, err := a.client.Query(cmd.Context(), req)
			if err != nil {
				return err
			}
			if a.json {
				return printJSON(out, res)
			}
			_, _ = fmt.Fprintln(out, res.Response)
			printStats(out, &res.Metadata)
			if showSources {
				printSources(out, res.Sources)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&req.Workspace, "workspace", "w", "", "workspace (server default when empty)")
	f.IntVarP(&req.K, "top-k", "k", 0, "number of sources (server default when 0)")
	f.BoolVar(&stream, "stream", false, "print tokens as they are generated")
	f.Float64Var(&temperature, "temperature", 0, "sampling temperature in [0, 2]")
	f.IntVar(&req.MaxTokens, "max-tokens", 0, "completion token cap (server default when 0)")
	f.StringVar(&req.Model, "model", "", "generation model (server default when empty)")
	f.Float64Var(&req.MinScore, "min-score", 0, "drop sources scoring below this")
	f.BoolVar(&showSources, "sources", false, "list the sources after the answer")
	return cmd
}

func (a *app) streamQuery(cmd *cobra.Command, req client.QueryRequest, showSources bool) error {
	out := cmd.OutOrStdout()
	final, err := a.client.QueryStream(cmd.Context(), req, func(ev client.StreamEvent) error {
		if a.json {
			return printJSON(out, ev)
		}
		_, err := io.WriteString(out, ev.Token)
		return err
	})
	if err != nil {
		if !a.json {
			_, _ = fmt.Fprintln(out)
		}
		return err
	}
	if a.json {
		return printJSON(out, final)
	}

	_, _ = fmt.Fprintln(out)
	if final.Stats != nil {
		printStats(out, final.Stats)
	}
	if showSources {
		printSources(out, final.Sources)
	}
	return nil
}

func printStats(w io.Writer, s *client.QueryStats) {
	cache := s.CacheStatus
	if cache == "" {
		cache = "miss"
	}
	_, _ = dimColor.Fprintf(w, "model %s, %d sources, cache %s, %.0f ms total", s.Model, s.SourceCount, cache, s.TotalTimeMs)
	if s.CompletionTokens > 0 {
		_, _ = dimColor.Fprintf(w, ", %d tokens", s.CompletionTokens)
	}
	_, _ = fmt.Fprintln(w)
}

func printSources(w io.Writer, sources []client.Result) {
	if len(sources) == 0 {
		return
	}
	_, _ = titleColor.Fprintln(w, "Sources")
	for i, r := range sources {
		printResult(w, i+1, &r)
	}
}
