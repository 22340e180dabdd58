package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alarmweave/alarmweave/pkg/alarmtypes"
	"github.com/alarmweave/alarmweave/pkg/api"
	"github.com/alarmweave/alarmweave/pkg/config"
	"github.com/alarmweave/alarmweave/pkg/eventlog"
	"github.com/alarmweave/alarmweave/pkg/flush"
	"github.com/alarmweave/alarmweave/pkg/log"
	"github.com/alarmweave/alarmweave/pkg/metrics"
	"github.com/alarmweave/alarmweave/pkg/pool"
	"github.com/alarmweave/alarmweave/pkg/security"
	"github.com/alarmweave/alarmweave/pkg/session"
	"github.com/alarmweave/alarmweave/pkg/storage"
	"github.com/alarmweave/alarmweave/pkg/transport"
	"github.com/alarmweave/alarmweave/pkg/transport/localnet"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "alarmweaved",
	Short:   "alarmweaved runs one alarmweave node: session pool, event log, and offload scheduler",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"alarmweaved version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the node: join the local alarm mesh and serve the admin API",
	RunE:  runNode,
}

func init() {
	runCmd.Flags().String("config", "", "Path to YAML config file (defaults built in if omitted)")
	runCmd.Flags().Uint64("node-id", 1, "This node's originator id on the mesh")
	runCmd.Flags().String("bind-addr", "0.0.0.0:7946", "UDP address to bind the mesh transport to")
	runCmd.Flags().String("broadcast-addr", "255.255.255.255:7946", "UDP broadcast address reaching this node's neighbors")
	runCmd.Flags().String("iface", "", "If set, only dispatch packets arriving on this logical interface name")
	runCmd.Flags().String("api-addr", "127.0.0.1:8090", "Admin JSON API listen address")
	runCmd.Flags().String("health-addr", "127.0.0.1:8091", "Health/metrics HTTP listen address")
	runCmd.Flags().String("grpc-health-addr", "127.0.0.1:8092", "grpc.health.v1 listen address")
	runCmd.Flags().String("data-dir", "./alarmweaved-data", "Directory for persistent event-log counters")
	runCmd.Flags().Uint16("hush-key-id", 1, "Key id this node signs hush requests with")
	runCmd.Flags().String("hush-key", "", "Raw hush signing key, >= 16 bytes; hush signing is disabled if empty")
	runCmd.Flags().String("log-level", "info", "Log level: debug, info, warn, error")
}

// alarmDelegate implements session.Delegate with the severity ordering and
// logging a standalone node needs: an alarm with more conditions is more
// severe, equal condition counts are ordered by alarm counter, state
// changes are logged at info level and dropped remote alarms at warn level.
type alarmDelegate struct{}

func (alarmDelegate) OnAlarmClientStateChange(s *session.Session) {
	sessionLogger := log.WithComponent("session")
	sessionLogger.Info().
		Int("slot", s.Idx).
		Uint64("originator", s.Originator).
		Str("state", s.State().String()).
		Msg("session state changed")
}

func (alarmDelegate) OnNewRemoteAlarmDropped(a alarmtypes.Alarm) {
	poolLogger := log.WithComponent("pool")
	poolLogger.Warn().
		Uint8("alarm_ctr", a.AlarmCtr).
		Msg("incoming remote alarm dropped by admission control")
}

func (alarmDelegate) CompareSeverity(a, b alarmtypes.Alarm) int {
	if len(a.Conditions) != len(b.Conditions) {
		return len(a.Conditions) - len(b.Conditions)
	}
	return int(a.AlarmCtr) - int(b.AlarmCtr)
}

func (alarmDelegate) OnHushRequest(ex transport.Exchange, proximityCode uint32, signature [20]byte) {
	hushLogger := log.WithComponent("hush")
	hushLogger.Info().Uint32("proximity_code", proximityCode).Msg("hush request received")
}

func runNode(cmd *cobra.Command, args []string) error {
	level, _ := cmd.Flags().GetString("log-level")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: true})

	cfgPath, _ := cmd.Flags().GetString("config")
	var cfg config.Config
	if cfgPath != "" {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = *loaded
	} else {
		cfg = config.Config{Engine: config.DefaultEngine(), Flush: config.DefaultFlush()}
	}

	iface, _ := cmd.Flags().GetString("iface")
	if iface != "" {
		cfg.Engine.MandatoryIface = iface
	}

	dataDir, _ := cmd.Flags().GetString("data-dir")
	store, err := storage.NewBoltStore(dataDir)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	layouts := cfg.Log.Rings
	if len(layouts) == 0 {
		layouts = []config.RingLayout{
			{Priority: 1, CapacityBytes: 8192, PersistentCounter: true, CounterBucket: "ring-1"},
			{Priority: 5, CapacityBytes: 4096, PersistentCounter: true, CounterBucket: "ring-5"},
			{Priority: 9, CapacityBytes: 2048, PersistentCounter: true, CounterBucket: "ring-9"},
		}
	}

	eventLog, err := eventlog.NewLog(layouts, store.CounterFactory())
	if err != nil {
		return fmt.Errorf("build event log: %w", err)
	}

	nodeID, _ := cmd.Flags().GetUint64("node-id")
	bindAddr, _ := cmd.Flags().GetString("bind-addr")
	broadcastAddr, _ := cmd.Flags().GetString("broadcast-addr")

	sched := localnet.NewScheduler()
	dialer, err := localnet.NewDialer(bindAddr, broadcastAddr, iface, sched, nodeID)
	if err != nil {
		return fmt.Errorf("open mesh transport: %w", err)
	}
	defer dialer.Close()

	p := pool.New(nodeID, alarmDelegate{}, dialer, sched, cfg.Engine)
	dialer.Listen(func(raw []byte, pkt transport.PacketInfo) error {
		return p.Dispatch(raw, pkt)
	})

	flushSched := flush.New(cfg.Flush, sched)

	hushKey, _ := cmd.Flags().GetString("hush-key")
	hushKeyID, _ := cmd.Flags().GetUint16("hush-key-id")
	var signer *security.Signer
	if hushKey != "" {
		signer, err = security.NewSigner(hushKeyID, []byte(hushKey))
		if err != nil {
			return fmt.Errorf("build hush signer: %w", err)
		}
	} else {
		mainLogger := log.WithComponent("main")
		mainLogger.Warn().Msg("no --hush-key given, hush request signing disabled")
	}

	apiAddr, _ := cmd.Flags().GetString("api-addr")
	healthAddr, _ := cmd.Flags().GetString("health-addr")
	grpcHealthAddr, _ := cmd.Flags().GetString("grpc-health-addr")

	adminServer := api.NewServer(p, eventLog, flushSched, signer)
	healthServer := api.NewHealthServer(p, eventLog)
	grpcHealth := api.NewGRPCHealthServer(p, eventLog)

	collector := metrics.NewCollector(p, eventLog, 0)
	collector.Start()
	defer collector.Stop()

	errCh := make(chan error, 3)
	go func() {
		if err := adminServer.Start(apiAddr); err != nil {
			errCh <- fmt.Errorf("admin api: %w", err)
		}
	}()
	go func() {
		if err := healthServer.Start(healthAddr); err != nil {
			errCh <- fmt.Errorf("health server: %w", err)
		}
	}()
	go func() {
		if err := grpcHealth.Start(grpcHealthAddr); err != nil {
			errCh <- fmt.Errorf("grpc health server: %w", err)
		}
	}()

	mainLogger := log.WithComponent("main")
	mainLogger.Info().
		Uint64("node_id", nodeID).
		Str("api_addr", apiAddr).
		Str("health_addr", healthAddr).
		Str("grpc_health_addr", grpcHealthAddr).
		Msg("alarmweaved running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		mainLogger.Info().Msg("signal received, shutting down")
	case err := <-errCh:
		mainLogger.Error().Err(err).Msg("server error, shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := adminServer.Stop(ctx); err != nil {
		mainLogger.Warn().Err(err).Msg("admin api shutdown error")
	}
	if err := healthServer.Stop(ctx); err != nil {
		mainLogger.Warn().Err(err).Msg("health server shutdown error")
	}
	grpcHealth.Stop()

	return nil
}
