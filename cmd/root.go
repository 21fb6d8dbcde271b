// Package cmd implements the nfreject command line using cobra.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"firestige.xyz/nfreject/internal/config"
	"firestige.xyz/nfreject/internal/core"
	"firestige.xyz/nfreject/internal/divert"
	"firestige.xyz/nfreject/internal/filter"
	"firestige.xyz/nfreject/internal/log"
	"firestige.xyz/nfreject/internal/metrics"
	"firestige.xyz/nfreject/internal/reject"
)

var (
	// Global flags
	configFile string
	queueNum   uint16
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "nfreject [flags] <filter expression...>",
	Short: "Actively reject packets matching a filter",
	Long: `nfreject intercepts packets from a netfilter queue and answers every packet
that matches the filter expression: TCP with a reset, UDP with an ICMP or
ICMPv6 port unreachable message. ICMP is silently dropped. Packets that do
not match are accepted unchanged.

Traffic reaches the queue through a firewall rule, for example:
  iptables  -I INPUT -p tcp --dport 8080 -j NFQUEUE --queue-num 0
  ip6tables -I INPUT -p udp --dport 53   -j NFQUEUE --queue-num 0

Examples:
  nfreject tcp and dst port 8080
  nfreject -q 3 -c /etc/nfreject/config.yaml udp or tcp`,
	Version:       "0.1.0",
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx, cfg, args, opener)
	},
}

// Execute runs the root command. Fatal errors are printed to stderr and
// reported to the caller, which exits with status 1.
func Execute() error {
	return execute(context.Background(), os.Args[1:], os.Stderr)
}

func execute(ctx context.Context, args []string, stderr io.Writer) error {
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(stderr, err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (defaults only when empty)")
	rootCmd.PersistentFlags().Uint16VarP(&queueNum, "queue", "q", 0,
		"netfilter queue number")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"log level (debug, info, warn, error)")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(validateCmd)
}

// fatalError carries the one-line diagnostic printed before exiting.
type fatalError struct {
	msg string
	err error
}

func (e *fatalError) Error() string { return e.msg }
func (e *fatalError) Unwrap() error { return e.err }

func fatal(err error, format string, args ...any) error {
	return &fatalError{msg: fmt.Sprintf(format, args...), err: err}
}

func loadConfig(cmd *cobra.Command) (*config.GlobalConfig, error) {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return nil, fatal(err, "error: %v", err)
	}
	return cfg, nil
}

// run opens the device and answers packets until ctx is cancelled.
func run(ctx context.Context, cfg *config.GlobalConfig, args []string, op Opener) error {
	if err := log.Init(cfg.Log); err != nil {
		return fatal(err, "error: %v", err)
	}

	expr, err := filter.Join(args, cfg.Filter.MaxLength)
	if err != nil {
		return fatal(err, "error: filter too long")
	}

	dev, err := op.Open(expr, cfg.Queue,
		divert.WithSnapLen(int(cfg.Filter.SnapLen.Bytes())),
		divert.WithLogger(slog.Default()))
	if err != nil {
		if errors.Is(err, core.ErrInvalidFilterSyntax) {
			return fatal(err, "error: filter syntax error")
		}
		return fatal(err, "error: failed to open divert device (%v)", err)
	}
	defer dev.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path)
		if err := srv.Start(ctx); err != nil {
			return fatal(err, "error: %v", err)
		}
		g.Go(func() error {
			<-ctx.Done()
			return srv.Stop(context.Background())
		})
	}

	r := reject.New(dev, cfg.Reject,
		reject.WithLogger(slog.Default()),
		reject.WithLinkNamer(dev),
		reject.WithBufferSize(int(cfg.Queue.MaxPacketLen.Bytes())))

	g.Go(func() error {
		defer cancel()
		return r.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		return dev.Close()
	})

	slog.Info("nfreject started", "filter", expr, "queue", cfg.Queue.Num)
	err = g.Wait()
	slog.Info("nfreject stopped")
	return err
}
