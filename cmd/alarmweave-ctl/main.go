package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/alarmweave/alarmweave/pkg/client"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
	Commit  = "unknown"
)

var apiAddr string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "alarmweave-ctl",
	Short:   "alarmweave-ctl inspects and probes a running alarmweaved node",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("alarmweave-ctl version %s\nCommit: %s\n", Version, Commit))
	rootCmd.PersistentFlags().StringVar(&apiAddr, "api-addr", "http://127.0.0.1:8090", "Admin JSON API base URL")
	rootCmd.AddCommand(sessionsCmd, eventsCmd, logCmd, flushCmd, hushCmd, healthCmd)
}

func newClient() *client.Client { return client.NewClient(apiAddr) }

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions [index]",
	Short: "List occupied session pool slots, or inspect one by index",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		c := newClient()

		if len(args) == 0 {
			sessions, err := c.ListSessions(ctx)
			if err != nil {
				return err
			}
			return printJSON(sessions)
		}

		var index int
		if _, err := fmt.Sscanf(args[0], "%d", &index); err != nil {
			return fmt.Errorf("invalid session index %q: %w", args[0], err)
		}
		session, err := c.GetSessionState(ctx, index)
		if err != nil {
			return err
		}
		return printJSON(session)
	},
}

var eventsFlags struct {
	importance uint8
	since      uint64
	limit      int
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Fetch a window of logged events at one importance level",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		resp, err := newClient().FetchEvents(ctx, eventsFlags.importance, eventsFlags.since, eventsFlags.limit)
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

func init() {
	eventsCmd.Flags().Uint8Var(&eventsFlags.importance, "importance", 1, "Importance level to fetch")
	eventsCmd.Flags().Uint64Var(&eventsFlags.since, "since", 0, "Fetch events with id equal to or greater than this")
	eventsCmd.Flags().IntVar(&eventsFlags.limit, "limit", 100, "Maximum events to return")
}

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show current/max importance and ring fill levels",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		summary, err := newClient().LogSummary(ctx)
		if err != nil {
			return err
		}
		return printJSON(summary)
	},
}

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Show the offload scheduler's current lifecycle state",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		state, err := newClient().FlushState(ctx)
		if err != nil {
			return err
		}
		fmt.Println(state)
		return nil
	},
}

var hushFlags struct {
	challengeHex  string
	proximityCode uint32
}

var hushCmd = &cobra.Command{
	Use:   "hush",
	Short: "Ask the node to sign a hush challenge with its configured key",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		resp, err := newClient().SendHushRequest(ctx, hushFlags.challengeHex, hushFlags.proximityCode)
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

func init() {
	hushCmd.Flags().StringVar(&hushFlags.challengeHex, "challenge", "", "Hex-encoded challenge bytes")
	hushCmd.Flags().Uint32Var(&hushFlags.proximityCode, "proximity-code", 0, "Proximity code presented by the hushing party")
	hushCmd.MarkFlagRequired("challenge")
}

var healthFlags struct {
	grpcAddr string
	service  string
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe a node's grpc.health.v1 endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		status, err := client.HealthProbe(ctx, healthFlags.grpcAddr, healthFlags.service)
		if err != nil {
			return err
		}
		fmt.Println(status.String())
		return nil
	},
}

func init() {
	healthCmd.Flags().StringVar(&healthFlags.grpcAddr, "grpc-addr", "127.0.0.1:8092", "grpc.health.v1 target address")
	healthCmd.Flags().StringVar(&healthFlags.service, "service", "", "Service name to probe, empty for overall status")
}
