package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AaronLay10/animgraph/internal/animgraph"
	"github.com/AaronLay10/animgraph/internal/config"
	"github.com/AaronLay10/animgraph/internal/manager"
	"github.com/AaronLay10/animgraph/internal/motion"
)

type runOptions struct {
	graph       string
	motions     string
	frames      int
	dt          float64
	sets        []string
	transitions []string
	switches    []string
	instances   int
}

func newRunCmd(configPath *string) *cobra.Command {
	var o runOptions

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate a graph offline for a number of frames",
		Long: `Evaluate a graph offline and print the root state and fired events of
every frame.

Parameter changes and state requests can be scheduled:
  --set speed=0.5          set before the first frame
  --set jump=true@30       queue for frame 30
  --transition run@10      transition to state run at frame 10
  --switch idle@50         switch to state idle at frame 50 without blending`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger := cfg.Log.Logger(cmd.ErrOrStderr())
			return runFrames(cmd.Context(), cmd.OutOrStdout(), o, cfg, logger)
		},
	}

	runCmd.Flags().StringVar(&o.graph, "graph", "", "Graph asset (YAML)")
	runCmd.Flags().StringVar(&o.motions, "motions", "", "Motion set (YAML)")
	runCmd.Flags().IntVar(&o.frames, "frames", 60, "Number of frames to evaluate")
	runCmd.Flags().Float64Var(&o.dt, "dt", 1.0/60, "Frame delta time in seconds")
	runCmd.Flags().StringArrayVar(&o.sets, "set", nil, "Parameter update name=value[@frame]")
	runCmd.Flags().StringArrayVar(&o.transitions, "transition", nil, "State transition State@frame")
	runCmd.Flags().StringArrayVar(&o.switches, "switch", nil, "State switch State@frame")
	runCmd.Flags().IntVar(&o.instances, "instances", 1, "Number of instances to evaluate")
	_ = runCmd.MarkFlagRequired("graph")
	_ = runCmd.MarkFlagRequired("motions")
	return runCmd
}

// scheduled is an input applied at the start of a frame.
type scheduled struct {
	frame int
	apply func(inst *animgraph.Instance) error
	desc  string
}

// splitFrame splits "value@frame". The frame defaults to 0.
func splitFrame(s string) (string, int, error) {
	i := strings.LastIndex(s, "@")
	if i < 0 {
		return s, 0, nil
	}
	frame, err := strconv.Atoi(s[i+1:])
	if err != nil || frame < 0 {
		return "", 0, fmt.Errorf("invalid frame in %q", s)
	}
	return s[:i], frame, nil
}

func parseSchedule(o runOptions) ([]scheduled, error) {
	var out []scheduled
	for _, s := range o.sets {
		item, frame, err := splitFrame(s)
		if err != nil {
			return nil, err
		}
		name, raw, ok := strings.Cut(item, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --set %q, expected name=value", s)
		}
		v, err := animgraph.ValueFromJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid --set %q: %w", s, err)
		}
		out = append(out, scheduled{
			frame: frame,
			desc:  "set " + name + "=" + v.String(),
			apply: func(inst *animgraph.Instance) error { return inst.QueueParameterUpdate(name, v) },
		})
	}
	for _, s := range o.transitions {
		state, frame, err := splitFrame(s)
		if err != nil {
			return nil, err
		}
		out = append(out, scheduled{
			frame: frame,
			desc:  "transition " + state,
			apply: func(inst *animgraph.Instance) error { return inst.TransitionToState(state) },
		})
	}
	for _, s := range o.switches {
		state, frame, err := splitFrame(s)
		if err != nil {
			return nil, err
		}
		out = append(out, scheduled{
			frame: frame,
			desc:  "switch " + state,
			apply: func(inst *animgraph.Instance) error { return inst.SwitchToState(state) },
		})
	}
	return out, nil
}

func loadManager(cfg *config.Config, graphPath, motionsPath string, logger *slog.Logger, opts ...manager.Option) (*manager.Manager, *animgraph.LoadReport, error) {
	g, report, err := animgraph.LoadGraph(graphPath)
	if err != nil {
		return nil, nil, err
	}
	motions, skel, err := motion.LoadMotionSet(motionsPath)
	if err != nil {
		return nil, nil, err
	}

	opts = append([]manager.Option{
		manager.WithThreads(cfg.Engine.WorkerThreads),
		manager.WithPosePrealloc(cfg.Engine.PosePoolPrealloc),
		manager.WithMaxTransitionPasses(cfg.Engine.MaxTransitionPasses),
		manager.WithLogger(logger),
	}, opts...)
	m := manager.New(opts...)
	if _, err := m.AddGraph(g.Name(), g, skel, motions); err != nil {
		m.Close()
		return nil, nil, err
	}
	return m, report, nil
}

func runFrames(ctx context.Context, w io.Writer, o runOptions, cfg *config.Config, logger *slog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if o.frames < 0 || o.dt < 0 {
		return fmt.Errorf("frames and dt must not be negative")
	}
	schedule, err := parseSchedule(o)
	if err != nil {
		return err
	}

	m, report, err := loadManager(cfg, o.graph, o.motions, logger)
	if err != nil {
		return err
	}
	defer m.Close()
	for _, p := range report.Problems {
		fmt.Fprintf(w, "warning: %v\n", p)
	}

	graph := m.Graphs()[0].Name
	if o.instances < 1 {
		o.instances = 1
	}
	for i := 0; i < o.instances; i++ {
		if _, err := m.CreateInstance(graph); err != nil {
			return err
		}
	}

	for frame := 0; frame < o.frames; frame++ {
		for _, s := range schedule {
			if s.frame != frame {
				continue
			}
			for _, inst := range m.Instances() {
				if err := m.Do(inst.ID(), s.apply); err != nil {
					return fmt.Errorf("frame %d: %s: %w", frame, s.desc, err)
				}
			}
			fmt.Fprintf(w, "frame %d: %s\n", frame, s.desc)
		}

		if err := m.UpdateAll(ctx, o.dt); err != nil {
			return err
		}
		for i, st := range m.States() {
			fmt.Fprintf(w, "%s\n", formatFrame(frame, i, o.instances, float64(frame+1)*o.dt, st))
		}
	}
	return nil
}

func formatFrame(frame, index, total int, t float64, st manager.InstanceState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%4d t=%.3f", frame, t)
	if total > 1 {
		fmt.Fprintf(&b, " #%d", index)
	}
	fmt.Fprintf(&b, " state=%s", st.State)
	if st.Transitioning {
		b.WriteString(" (blending)")
	}
	if len(st.Events) > 0 {
		names := make([]string, len(st.Events))
		for i, e := range st.Events {
			names[i] = e.Name
		}
		fmt.Fprintf(&b, " events=[%s]", strings.Join(names, ","))
	}
	return b.String()
}
