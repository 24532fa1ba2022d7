package main

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/AaronLay10/animgraph/internal/animgraph"
	"github.com/AaronLay10/animgraph/internal/motion"
	"github.com/AaronLay10/animgraph/internal/observability"
)

func newValidateCmd() *cobra.Command {
	var motionsPath string

	validateCmd := &cobra.Command{
		Use:   "validate <graph.yaml>",
		Short: "Load a graph and print its structural report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateGraph(cmd.Context(), cmd.OutOrStdout(), args[0], motionsPath)
		},
	}
	validateCmd.Flags().StringVar(&motionsPath, "motions", "", "Motion set to check motion references against")
	return validateCmd
}

func validateGraph(ctx context.Context, w io.Writer, graphPath, motionsPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	_, span := observability.StartLoadSpan(ctx, graphPath)
	defer span.End()

	g, report, err := animgraph.LoadGraph(graphPath)
	if err != nil {
		observability.RecordError(span, err)
		return err
	}

	problems := len(report.Problems)
	fmt.Fprintf(w, "graph %s: %d nodes, %d parameters, %d transitions\n",
		g.Name(), len(g.Nodes()), len(g.Parameters()), len(g.Transitions()))
	for _, rc := range report.RemovedConnections {
		fmt.Fprintf(w, "  removed connection %s\n", rc)
	}
	for _, p := range report.Problems {
		fmt.Fprintf(w, "  problem: %v\n", p)
	}

	if motionsPath != "" {
		set, _, err := motion.LoadMotionSet(motionsPath)
		if err != nil {
			return err
		}
		missing := missingMotions(g, set)
		for _, m := range missing {
			fmt.Fprintf(w, "  missing motion: %s\n", m)
		}
		problems += len(missing)
	}
	observability.RecordLoadReport(span, len(g.Nodes()), problems)

	if problems > 0 {
		return fmt.Errorf("graph %s has %d problems", g.Name(), problems)
	}
	fmt.Fprintln(w, "ok")
	return nil
}

// missingMotions lists "motion (node)" for every motion node whose motion
// is not in set.
func missingMotions(g *animgraph.Graph, set *motion.MotionSet) []string {
	var out []string
	for _, n := range g.Nodes() {
		mn, ok := n.(*animgraph.MotionNode)
		if !ok {
			continue
		}
		if set.Find(mn.MotionID) == nil {
			out = append(out, fmt.Sprintf("%s (node %s)", mn.MotionID, mn.Name()))
		}
	}
	sort.Strings(out)
	return out
}
