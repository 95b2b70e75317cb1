package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-ews/internal/api"
	ewsv1 "github.com/miradorstack/mirador-ews/internal/grpc/ewsv1"
)

// dialFunc opens a client against the engine at addr.
type dialFunc func(addr string) (ewsv1.EarlyWarningClient, io.Closer, error)

func dialEngine(addr string) (ewsv1.EarlyWarningClient, io.Closer, error) {
	client, err := api.Dial(addr)
	if err != nil {
		return nil, nil, err
	}
	return client, client, nil
}

type cli struct {
	dial    dialFunc
	addr    string
	timeout time.Duration
	asJSON  bool
}

func newRootCmd(dial dialFunc) *cobra.Command {
	c := &cli{dial: dial}

	root := &cobra.Command{
		Use:           "ewsctl",
		Short:         "Inspect and drive a mirador-ews engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.addr, "addr", envOr("MIRADOR_EWS_ADDR", "localhost:50051"), "engine gRPC address")
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", 10*time.Second, "per-request timeout")
	root.PersistentFlags().BoolVar(&c.asJSON, "json", false, "print raw JSON responses")

	root.AddCommand(
		c.statusCmd(),
		c.alertsCmd(),
		c.indexCmd(),
		c.signalsCmd(),
		c.computeCmd(),
		c.resolveCmd(),
		c.watchCmd(),
	)
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// call dials, runs fn under the request timeout and closes the connection.
func (c *cli) call(cmd *cobra.Command, fn func(ctx context.Context, client ewsv1.EarlyWarningClient) error) error {
	client, closer, err := c.dial(c.addr)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return fn(ctx, client)
}

func (c *cli) printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show monitored services and their resilience indices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.call(cmd, func(ctx context.Context, client ewsv1.EarlyWarningClient) error {
				resp, err := client.Status(ctx, &ewsv1.StatusRequest{})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if c.asJSON {
					return c.printJSON(out, resp)
				}
				fmt.Fprintf(out, "services: %d  active alerts: %d  last computed: %s\n",
					resp.MonitoredServices, resp.ActiveAlerts, formatMillisPtr(resp.LastComputedAt))
				services := make([]string, 0, len(resp.ResilienceIndices))
				for id := range resp.ResilienceIndices {
					services = append(services, id)
				}
				sort.Strings(services)
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "SERVICE\tINDEX")
				for _, id := range services {
					fmt.Fprintf(tw, "%s\t%.1f\n", id, resp.ResilienceIndices[id])
				}
				return tw.Flush()
			})
		},
	}
}

func (c *cli) alertsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "alerts",
		Short: "List accumulating and firing alerts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.call(cmd, func(ctx context.Context, client ewsv1.EarlyWarningClient) error {
				resp, err := client.GetActiveAlerts(ctx, &ewsv1.GetActiveAlertsRequest{})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if c.asJSON {
					return c.printJSON(out, resp)
				}
				if len(resp.Alerts) == 0 {
					fmt.Fprintln(out, "no active alerts")
					return nil
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tSERVICE\tINDEX\tSEVERITY\tSTATE\tWINDOWS")
				for _, a := range resp.Alerts {
					fmt.Fprintf(tw, "%s\t%s\t%.1f\t%s\t%s\t%d\n", a.ID, a.ServiceID, a.ResilienceIndex, a.Severity, a.State, a.ConsecutiveWindows)
				}
				return tw.Flush()
			})
		},
	}
}

func (c *cli) indexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index SERVICE",
		Short: "Print the latest resilience index for a service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.call(cmd, func(ctx context.Context, client ewsv1.EarlyWarningClient) error {
				resp, err := client.GetResilienceIndex(ctx, &ewsv1.GetResilienceIndexRequest{ServiceID: args[0]})
				if err != nil {
					return err
				}
				if c.asJSON {
					return c.printJSON(cmd.OutOrStdout(), resp)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %.2f\n", resp.ServiceID, resp.ResilienceIndex)
				return nil
			})
		},
	}
}

func (c *cli) signalsCmd() *cobra.Command {
	var limit int32
	cmd := &cobra.Command{
		Use:   "signals SERVICE",
		Short: "List retained signals for a service, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.call(cmd, func(ctx context.Context, client ewsv1.EarlyWarningClient) error {
				resp, err := client.GetSignals(ctx, &ewsv1.GetSignalsRequest{ServiceID: args[0], Limit: limit})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if c.asJSON {
					return c.printJSON(out, resp)
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "TIMESTAMP\tVARIANCE\tAC1\tINDEX")
				for _, s := range resp.Signals {
					fmt.Fprintf(tw, "%s\t%.4f\t%.4f\t%.1f\n", formatMillis(s.Timestamp), s.Variance, s.AC1, s.ResilienceIndex)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().Int32Var(&limit, "limit", 20, "maximum signals to return (0 for all)")
	return cmd
}

func (c *cli) computeCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "compute SERVICE [SAMPLE...]",
		Short: "Score a window of samples and run guardrails",
		Long:  "Score a window of samples for SERVICE. Samples come from the arguments or, with --file, from a file of whitespace or comma separated numbers (- for stdin).",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			samples, err := collectSamples(cmd.InOrStdin(), file, args[1:])
			if err != nil {
				return err
			}
			return c.call(cmd, func(ctx context.Context, client ewsv1.EarlyWarningClient) error {
				resp, err := client.ComputeSignals(ctx, &ewsv1.ComputeSignalsRequest{ServiceID: args[0], Metrics: samples})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if c.asJSON {
					return c.printJSON(out, resp)
				}
				s := resp.Signal
				fmt.Fprintf(out, "%s: index %.2f (variance %.4f, ac1 %.4f)\n", s.ServiceID, s.ResilienceIndex, s.Variance, s.AC1)
				for _, g := range resp.Guardrails {
					switch {
					case g.Suppressed:
						fmt.Fprintf(out, "  %s: suppressed\n", g.Type)
					case g.Error != "":
						fmt.Fprintf(out, "  %s: failed: %s\n", g.Type, g.Error)
					default:
						fmt.Fprintf(out, "  %s: requested\n", g.Type)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "read samples from a file (- for stdin)")
	return cmd
}

func (c *cli) resolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve ALERT_ID",
		Short: "Resolve an alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.call(cmd, func(ctx context.Context, client ewsv1.EarlyWarningClient) error {
				if _, err := client.ResolveAlert(ctx, &ewsv1.ResolveAlertRequest{AlertID: args[0]}); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "resolved %s\n", args[0])
				return nil
			})
		},
	}
}

func (c *cli) watchCmd() *cobra.Command {
	var service string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream guardrail notifications until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, closer, err := c.dial(c.addr)
			if err != nil {
				return err
			}
			defer closer.Close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			stream, err := client.StreamNotifications(ctx, &ewsv1.StreamNotificationsRequest{ServiceID: service})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for {
				n, err := stream.Recv()
				if errors.Is(err, io.EOF) || ctx.Err() != nil {
					return nil
				}
				if err != nil {
					return err
				}
				if c.asJSON {
					if err := json.NewEncoder(out).Encode(n); err != nil {
						return err
					}
					continue
				}
				fmt.Fprintln(out, formatNotification(n))
			}
		},
	}
	cmd.Flags().StringVar(&service, "service", "", "only show notifications for this service")
	return cmd
}

func formatNotification(n *ewsv1.Notification) string {
	p := n.Payload
	line := fmt.Sprintf("%s [%s] %s %s index=%.1f", formatMillis(n.Timestamp), n.Priority, p.Type, p.ServiceID, p.ResilienceIndex)
	switch {
	case p.Factor != nil:
		line += fmt.Sprintf(" factor=%g", *p.Factor)
	case p.MaxPerMinute != nil:
		line += fmt.Sprintf(" maxPerMinute=%d", *p.MaxPerMinute)
	case p.Reason != "":
		line += fmt.Sprintf(" reason=%q", p.Reason)
	}
	return line
}

// collectSamples reads samples from file when set, otherwise parses args.
func collectSamples(stdin io.Reader, file string, args []string) ([]float64, error) {
	fields := args
	if file != "" {
		if len(args) > 0 {
			return nil, errors.New("pass samples as arguments or --file, not both")
		}
		var (
			raw []byte
			err error
		)
		if file == "-" {
			raw, err = io.ReadAll(stdin)
		} else {
			raw, err = os.ReadFile(file)
		}
		if err != nil {
			return nil, fmt.Errorf("read samples: %w", err)
		}
		fields = strings.FieldsFunc(string(raw), func(r rune) bool {
			return r == ',' || r == ' ' || r == '\n' || r == '\t' || r == '\r'
		})
	}

	samples := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid sample %q: %w", f, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("invalid sample %q: must be finite", f)
		}
		samples = append(samples, v)
	}
	return samples, nil
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

func formatMillisPtr(ms *int64) string {
	if ms == nil {
		return "never"
	}
	return formatMillis(*ms)
}
