package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dyike/RightOfWay/internal/api"
	"github.com/dyike/RightOfWay/internal/display"
	"github.com/dyike/RightOfWay/internal/tools"
	"github.com/dyike/RightOfWay/models"
	"github.com/dyike/RightOfWay/pkg/app"
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	s := newSession(os.Stdout)

	rootCmd := &cobra.Command{
		Use:   "rightofway",
		Short: "RightOfWay - right-of-way negotiation between autonomous agents",
		Long: `RightOfWay lets two autonomous agents that meet at a contested location
negotiate who passes first and settle the agreed price.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			s.setOutput(cmd.OutOrStdout())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			s.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Default behavior: start interactive mode
			return runInteractiveMode(cmd.Context(), s)
		},
	}

	rootCmd.AddCommand(newNegotiateCmd(s))
	rootCmd.AddCommand(newSimulateCmd(s))
	rootCmd.AddCommand(newHistoryCmd(s))
	rootCmd.AddCommand(newServeCmd(s))
	rootCmd.AddCommand(newMCPCmd(s))
	rootCmd.AddCommand(newConfigCmd(s))
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.PersistentFlags().BoolVar(&s.debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&s.einoDebug, "eino-debug", false, "Expose the negotiation graph to the Eino visual debugger")
	rootCmd.PersistentFlags().StringVar(&s.configPath, "config", "", "Configuration file path")

	return rootCmd
}

type negotiateOptions struct {
	agent1   int
	agent2   int
	location string
	network  string
	dynamic  bool
	export   bool
}

func (o negotiateOptions) request() app.NegotiationRequest {
	req := app.NegotiationRequest{
		Agent1ID:   o.agent1,
		Agent2ID:   o.agent2,
		LocationID: o.location,
		Network:    o.network,
		Mode:       app.ModeAIToAI,
	}
	if o.dynamic {
		req.Mode = app.ModeDynamic
	}
	return req
}

func addNegotiateFlags(cmd *cobra.Command, o *negotiateOptions) {
	cmd.Flags().IntVar(&o.agent1, "agent1", 1, "Id of the first agent")
	cmd.Flags().IntVar(&o.agent2, "agent2", 2, "Id of the second agent")
	cmd.Flags().StringVar(&o.network, "network", "", "Settlement network: fuji or sepolia (default from config)")
	cmd.Flags().BoolVar(&o.dynamic, "dynamic", false, "Evaluate both agents and match roles instead of offer/counter bargaining")
	cmd.Flags().BoolVar(&o.export, "export", false, "Write the transcript as markdown to the results directory")
}

func newNegotiateCmd(s *session) *cobra.Command {
	var o negotiateOptions
	cmd := &cobra.Command{
		Use:   "negotiate",
		Short: "Run one right-of-way negotiation between two agents",
		Long: `Run a negotiation between two registered agents.
Example: rightofway negotiate --agent1 1 --agent2 2 --dynamic --export`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNegotiation(cmd.Context(), s, o)
		},
	}
	addNegotiateFlags(cmd, &o)
	cmd.Flags().StringVar(&o.location, "location", models.LocationIntersection, "Contested location id")
	return cmd
}

// runNegotiation prints the outcome even when settlement failed, then
// returns the failure.
func runNegotiation(ctx context.Context, s *session, o negotiateOptions) error {
	rt, err := s.runtime(ctx)
	if err != nil {
		return err
	}
	// A one-off negotiation from the command line stages its own collision.
	m := rt.Services().Machine
	if active, _ := m.CollisionActive(); !active {
		m.TriggerCollision()
		_, at := m.CollisionActive()
		DisplayInfo(s.out, fmt.Sprintf("No active collision, staging one at %s", at))
	}
	out, negErr := rt.Negotiate(ctx, o.request())
	if out == nil {
		return negErr
	}
	showOutcome(s, out)
	if o.export {
		if err := exportOutcome(s, out); err != nil {
			return err
		}
	}
	return negErr
}

func showOutcome(s *session, out *app.NegotiationOutcome) {
	switch {
	case out.Result != nil:
		s.display.ShowNegotiation(out.Result)
	case out.Dynamic != nil:
		s.display.ShowDynamic(out.Dynamic)
	}
}

func exportOutcome(s *session, out *app.NegotiationOutcome) error {
	var rec models.NegotiationRecord
	switch {
	case out.Result != nil:
		rec = out.Result.Record()
	case out.Dynamic != nil:
		rec = out.Dynamic.Record()
	default:
		return nil
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	cfg, err := s.config()
	if err != nil {
		return err
	}
	path, err := display.ExportMarkdown(cfg.ResultsDir, rec)
	if err != nil {
		return fmt.Errorf("export transcript: %w", err)
	}
	fmt.Fprintf(s.out, "Transcript written to %s\n", path)
	return nil
}

func newSimulateCmd(s *session) *cobra.Command {
	var (
		o       negotiateOptions
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Drive both agents into the intersection and negotiate the collision",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return runSimulation(ctx, s, o)
		},
	}
	addNegotiateFlags(cmd, &o)
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "Give up after this long")
	return cmd
}

var errSimulationTimeout = errors.New("simulation did not finish in time")

// runSimulation starts the simulation, negotiates at the collision point and
// follows the agents until both have arrived.
func runSimulation(ctx context.Context, s *session, o negotiateOptions) error {
	rt, err := s.runtime(ctx)
	if err != nil {
		return err
	}
	m := rt.Services().Machine
	snapshots, unsubscribe := m.Subscribe()
	defer unsubscribe()

	m.Initialize()
	m.Start()
	fmt.Fprintln(s.out, "Simulation started, waiting for the agents to meet...")

	var (
		negotiated bool
		started    bool
	)
	for {
		select {
		case <-ctx.Done():
			m.Stop()
			return errSimulationTimeout
		case snap, ok := <-snapshots:
			if !ok {
				return nil
			}
			if snap.IsRunning {
				started = true
			}
			if snap.CollisionDetected && !negotiated {
				negotiated = true
				s.display.ShowSimulation(snap)
				o.location = snap.CollisionLocation
				out, negErr := rt.Negotiate(ctx, o.request())
				if out != nil {
					showOutcome(s, out)
					if o.export {
						if err := exportOutcome(s, out); err != nil {
							return err
						}
					}
				}
				if negErr != nil || out == nil || !out.Success() {
					m.Stop()
					s.display.ShowSimulation(m.State())
					if negErr != nil {
						return negErr
					}
					fmt.Fprintln(s.out, "No agreement reached; the collision stays unresolved.")
					return nil
				}
				continue
			}
			if started && negotiated && !snap.IsRunning && !snap.CollisionDetected {
				s.display.ShowSimulation(snap)
				fmt.Fprintln(s.out, "Both agents reached their destinations.")
				return nil
			}
		}
	}
}

func newHistoryCmd(s *session) *cobra.Command {
	var (
		limit int
		id    string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show archived negotiations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd.Context(), s, id, limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of negotiations to list")
	cmd.Flags().StringVar(&id, "id", "", "Show one negotiation with its transcript")
	return cmd
}

func runHistory(ctx context.Context, s *session, id string, limit int) error {
	store, err := s.store()
	if err != nil {
		return err
	}
	if id != "" {
		rec, err := store.GetNegotiation(ctx, id)
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("negotiation %s not found", id)
		}
		s.display.ShowHistory([]models.NegotiationRecord{rec.NegotiationRecord})
		s.display.ShowTranscript(rec.Transcript)
		return nil
	}
	items, err := store.ListNegotiations(ctx, 0, limit)
	if err != nil {
		return err
	}
	records := make([]models.NegotiationRecord, 0, len(items))
	for _, it := range items {
		records = append(records, it.NegotiationRecord)
	}
	s.display.ShowHistory(records)
	return nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func newServeCmd(s *session) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP control surface, the state stream and MCP over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			rt, err := s.runtime(ctx)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = rt.Config().HTTPAddr
			}
			return newAPIServer(rt).ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	return cmd
}

func newAPIServer(rt *app.Runtime) *api.Server {
	svc := rt.Services()
	opts := []api.Option{
		api.WithAgents(svc.Registry),
		api.WithMCP(tools.NewMCPServer(app.Version, svc.Machine, rt)),
	}
	if svc.Store != nil {
		opts = append(opts, api.WithHistory(svc.Store))
	}
	return api.NewServer(svc.Machine, rt, opts...)
}

func newMCPCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the right-of-way tools over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			rt, err := s.runtime(ctx)
			if err != nil {
				return err
			}
			srv := tools.NewMCPServer(app.Version, rt.Services().Machine, rt)
			return tools.ServeStdio(ctx, srv, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

// newVersionCmd creates the version command
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "RightOfWay %s\n", app.Version)
		},
	}
}
