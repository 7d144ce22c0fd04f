// Command planner drives one run of the multi-agent classical planner
// described in this repo: it loads one or more already-grounded Problem
// descriptions (see internal/problem.Load — parsing PDDL/proto and
// grounding operators is an external collaborator, out of scope here),
// wires up the configured transport, and runs the distributed search to
// completion. The CLI itself is a thin wrapper around
// the pieces the rest of this repo already provides.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/danfis/maplan-go/internal/driver"
	"github.com/danfis/maplan-go/internal/heuristic"
	"github.com/danfis/maplan-go/internal/problem"
	"github.com/danfis/maplan-go/internal/search"
	"github.com/danfis/maplan-go/internal/state"
	"github.com/danfis/maplan-go/internal/succgen"
	"github.com/danfis/maplan-go/internal/supervisor"
	"github.com/danfis/maplan-go/internal/terminate"
	"github.com/danfis/maplan-go/internal/transport"
	applog "github.com/danfis/maplan-go/log"
	lux "github.com/luxfi/log"
)

type options struct {
	problems       []string
	searchVariant  string
	heur           string
	output         string
	tcpAddrs       []string
	tcpID          int
	maxTime        time.Duration
	maxMemMB       uint64
	progressFreq   int
	hardLimitPoll  time.Duration
	opUnitCost     bool
	verifySolution bool
	deadEndTimeout time.Duration
	logLevel       string
	metricsAddr    string

	log     lux.Logger
	metrics *prometheus.Registry
}

func main() {
	opts := &options{tcpID: -1}

	root := &cobra.Command{
		Use:   "planner",
		Short: "Multi-agent classical planner",
		Long: `planner runs a distributed forward state-space search (A*, lazy
best-first, or enforced hill-climbing) over a factored planning problem
partitioned among several agents, which exchange messages over either an
in-process transport or TCP to find a plan without revealing private
state to one another.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
		SilenceUsage: true,
	}

	flags := root.Flags()
	flags.StringArrayVar(&opts.problems, "problem", nil, "path to a grounded problem file (repeat once per agent for an in-process run)")
	flags.StringVar(&opts.searchVariant, "search", "astar", "search algorithm: ehc|lazy|astar")
	flags.StringVar(&opts.heur, "heur", "blind", "heuristic: blind (only one shipped; a real one is an external collaborator)")
	flags.StringVar(&opts.output, "output", "-", "plan output path, or - for stdout")
	flags.Bool("ma-unfactor", false, "accepted for CLI-surface completeness; factoring/unfactoring a single problem file is out of scope here")
	flags.Bool("ma-factor", false, "accepted for CLI-surface completeness; see --ma-unfactor")
	flags.String("ma-factor-dir", "", "accepted for CLI-surface completeness; see --ma-unfactor")
	flags.StringArrayVar(&opts.tcpAddrs, "tcp", nil, "host:port for one agent; repeat once per agent, same order on every process")
	flags.IntVar(&opts.tcpID, "tcp-id", -1, "this process's position in --tcp; omit (or -1) to run every agent in-process instead")
	flags.DurationVar(&opts.maxTime, "max-time", 0, "wall-clock budget (e.g. 30s); 0 disables")
	flags.Uint64Var(&opts.maxMemMB, "max-mem", 0, "memory budget in MB; 0 disables")
	// Accepted for CLI-surface completeness; driver.Driver doesn't expose a
	// step counter to hang a periodic log line off of, so this is parsed
	// and then unused.
	flags.IntVar(&opts.progressFreq, "progress-freq", 0, "accepted for CLI-surface completeness; has no effect")
	flags.DurationVar(&opts.hardLimitPoll, "hard-limit-sleeptime", 200*time.Millisecond, "hard-limit monitor poll interval")
	flags.BoolVar(&opts.opUnitCost, "op-unit-cost", false, "treat every operator's cost as 1, ignoring whatever the problem file specifies")
	flags.BoolVar(&opts.verifySolution, "verify-solution", true, "verify a found plan against every peer's in-flight states before accepting it")
	flags.DurationVar(&opts.deadEndTimeout, "dead-end-timeout", time.Second, "how long agent 0 waits on an empty inbox before probing for a global dead end")
	flags.StringVar(&opts.logLevel, "log-level", "none", "structured log level: none|debug|info")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this host:port (disabled when empty)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts *options) error {
	if len(opts.problems) == 0 {
		return fmt.Errorf("at least one --problem is required")
	}
	variant, err := parseVariant(opts.searchVariant)
	if err != nil {
		return err
	}
	if opts.heur != "blind" {
		return fmt.Errorf("unknown --heur %q: only \"blind\" ships with this repo; an informed heuristic is an external collaborator", opts.heur)
	}
	opts.log, err = parseLogLevel(opts.logLevel)
	if err != nil {
		return err
	}
	opts.metrics = prometheus.NewRegistry()
	if opts.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(opts.metrics, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(opts.metricsAddr, mux); err != nil {
				opts.log.Error("metrics server stopped", "err", err)
			}
		}()
	}

	sup := supervisor.New(
		supervisor.WithMaxTime(opts.maxTime),
		supervisor.WithMaxMemMB(opts.maxMemMB),
		supervisor.WithPollInterval(opts.hardLimitPoll),
		supervisor.WithSignals(),
		supervisor.WithLogger(opts.log),
	)

	var payload terminate.Payload
	if opts.tcpID >= 0 {
		payload, err = runTCP(ctx, opts, variant, sup)
	} else {
		payload, err = runInprocess(opts, variant, sup)
	}
	if err != nil {
		return err
	}

	return writeOutput(opts.output, payload)
}

func parseLogLevel(s string) (lux.Logger, error) {
	switch strings.ToLower(s) {
	case "none", "":
		return applog.NewNoOpLogger(), nil
	case "debug":
		return applog.NewSlogLogger(os.Stderr, slog.LevelDebug), nil
	case "info":
		return applog.NewSlogLogger(os.Stderr, slog.LevelInfo), nil
	default:
		return nil, fmt.Errorf("unknown --log-level %q: want none, debug, or info", s)
	}
}

func parseVariant(s string) (search.Variant, error) {
	switch strings.ToLower(s) {
	case "ehc":
		return search.EHC, nil
	case "lazy":
		return search.LazyBestFirst, nil
	case "astar", "a*":
		return search.AStar, nil
	default:
		return 0, fmt.Errorf("unknown --search %q: want ehc, lazy, or astar", s)
	}
}

func loadProblem(path string, opts *options) (*problem.Problem, error) {
	prob, err := problem.Load(path)
	if err != nil {
		return nil, err
	}
	if opts.opUnitCost {
		for i := range prob.Ops {
			prob.Ops[i].Cost = 1
		}
	}
	return prob, nil
}

// buildAgent wires the pool/generator/search stack one driver needs for
// one agent's own Problem partition; shared across the TCP and in-process
// run paths.
func buildAgent(prob *problem.Problem, opts *options, variant search.Variant, t transport.Transport, sup *supervisor.Supervisor) *driver.Driver {
	pool := state.NewPool(prob.Vars,
		state.WithLogger(opts.log),
		state.WithMetrics(opts.metrics, prob.AgentID),
	)
	varOrder := make([]problem.VarID, len(prob.Vars))
	for i := range prob.Vars {
		varOrder[i] = problem.VarID(i)
	}
	gen := succgen.New(prob.Ops, varOrder)
	h := heuristic.NewBlind(nil)

	d := driver.New(prob.AgentID, prob.NumAgents, prob, pool, gen, h, variant, t,
		driver.WithVerifySolution(opts.verifySolution),
		driver.WithDeadEndTimeout(opts.deadEndTimeout),
		driver.WithLogger(opts.log),
		driver.WithMetrics(opts.metrics, prob.AgentID),
	)
	sup.Register(d)
	return d
}

func runTCP(ctx context.Context, opts *options, variant search.Variant, sup *supervisor.Supervisor) (terminate.Payload, error) {
	if len(opts.tcpAddrs) == 0 {
		return terminate.Payload{}, fmt.Errorf("--tcp-id requires at least one --tcp host:port")
	}
	if opts.tcpID >= len(opts.tcpAddrs) {
		return terminate.Payload{}, fmt.Errorf("--tcp-id %d out of range for %d --tcp addresses", opts.tcpID, len(opts.tcpAddrs))
	}
	if len(opts.problems) != 1 {
		return terminate.Payload{}, fmt.Errorf("TCP mode expects exactly one --problem: this process's own agent partition")
	}
	prob, err := loadProblem(opts.problems[0], opts)
	if err != nil {
		return terminate.Payload{}, err
	}
	if prob.AgentID != opts.tcpID || prob.NumAgents != len(opts.tcpAddrs) {
		return terminate.Payload{}, fmt.Errorf("problem file agent_id/num_agents (%d/%d) must match --tcp-id/--tcp count (%d/%d)",
			prob.AgentID, prob.NumAgents, opts.tcpID, len(opts.tcpAddrs))
	}

	t, err := transport.DialTCP(ctx, opts.tcpID, opts.tcpAddrs,
		transport.WithTCPLogger(opts.log),
		transport.WithTCPMetrics(opts.metrics),
	)
	if err != nil {
		return terminate.Payload{}, fmt.Errorf("tcp transport: %w", err)
	}
	defer t.Close()

	d := buildAgent(prob, opts, variant, t, sup)
	sup.Start()
	defer sup.Stop()
	return d.Run()
}

func runInprocess(opts *options, variant search.Variant, sup *supervisor.Supervisor) (terminate.Payload, error) {
	n := len(opts.problems)
	pool := transport.NewInprocPool(n, 256)

	drivers := make([]*driver.Driver, n)
	for i, path := range opts.problems {
		prob, err := loadProblem(path, opts)
		if err != nil {
			return terminate.Payload{}, err
		}
		if prob.AgentID != i || prob.NumAgents != n {
			return terminate.Payload{}, fmt.Errorf("problem file %s has agent_id/num_agents %d/%d, want %d/%d (position in --problem list)",
				path, prob.AgentID, prob.NumAgents, i, n)
		}
		drivers[i] = buildAgent(prob, opts, variant, pool.Transport(i), sup)
	}

	sup.Start()
	defer sup.Stop()

	results := make([]terminate.Payload, n)
	errsCh := make(chan error, n)
	for i, d := range drivers {
		go func(i int, d *driver.Driver) {
			p, err := d.Run()
			results[i] = p
			errsCh <- err
		}(i, d)
	}
	var firstErr error
	for i := 0; i < n; i++ {
		if err := <-errsCh; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return terminate.Payload{}, firstErr
	}
	// Every agent adopts the same FINAL_FIN payload; agent 0's copy is as
	// good as any other's.
	return results[0], nil
}

func writeOutput(path string, payload terminate.Payload) error {
	out := os.Stdout
	if path != "-" && path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("output: %w", err)
		}
		defer f.Close()
		out = f
	}

	switch payload.Result {
	case terminate.OutcomeFound:
		totalCost := int32(0)
		for _, e := range payload.Path {
			fmt.Fprintf(out, "%s (cost %d, owner %d)\n", e.Name, e.Cost, e.Owner)
			totalCost += e.Cost
		}
		fmt.Fprintf(out, "; cost = %d\n", totalCost)
	case terminate.OutcomeNotFound:
		fmt.Fprintln(out, "; no plan found")
	case terminate.OutcomeAbort:
		fmt.Fprintln(out, "; search aborted")
	default:
		fmt.Fprintln(out, "; unknown outcome")
	}
	return nil
}
