package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/smgpctl/internal/admin"
	"github.com/danmuck/smgpctl/internal/config"
	"github.com/danmuck/smgpctl/internal/gateway"
	"github.com/danmuck/smgpctl/internal/logging"
	"github.com/danmuck/smgpctl/internal/observability"
	"github.com/danmuck/smgpctl/internal/protocol"
	"github.com/danmuck/smgpctl/internal/protocol/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "smgpctl.toml"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "smgpctl",
		Short:         "SMGP 3.0 gateway client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringP("config", "c", defaultConfigPath, "config file (.toml, .yaml or .yml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (trace|debug|info|warn|error|off)")

	rootCmd.AddCommand(
		runCmd(),
		submitCmd(),
		configCmd(),
	)
	return rootCmd
}

// loadConfig reads --config and applies the resolved log level. The
// --log-level flag wins over SMGPCTL_LOG_LEVEL, which wins over the file.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	logging.ConfigureRuntime()
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	level := cfg.LogLevel
	if env := os.Getenv(logging.EnvLogLevel); env != "" {
		level = env
	}
	if flag, _ := cmd.Flags().GetString("log-level"); flag != "" {
		level = flag
	}
	if lvl, ok := logging.ParseLevel(level); ok {
		zerolog.SetGlobalLevel(lvl)
	}
	log.Debug().Str("path", path).Str("config", cfg.String()).Msg("smgpctl.loadConfig")
	return cfg, nil
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect every configured gateway and serve the admin API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			mgr, err := gateway.NewManager(cfg, gateway.Options{Metrics: observability.NewSessionMetrics()})
			if err != nil {
				return err
			}
			defer mgr.Stop()
			registerLogHandlers(mgr)
			mgr.Start(ctx)

			return admin.New(admin.Options{
				Addr:        cfg.AdminAddr,
				CorsOrigins: cfg.CorsOrigins,
				Token:       cfg.AdminToken,
				Gateways:    mgr,
			}).Serve(ctx)
		},
	}
}

func registerLogHandlers(mgr *gateway.Manager) {
	mgr.OnSubmitResult(session.SubmitResultHandlerFunc(func(r *protocol.SubmitResp) error {
		log.Info().
			Uint32("seq", r.Header.SequenceID).
			Str("msg_id", r.Body.MsgID.String()).
			Str("status", r.Body.Status.String()).
			Msg("smgpctl submit result")
		return nil
	}))
	mgr.OnReport(session.ReportHandlerFunc(func(r protocol.ReportMessage) error {
		log.Info().
			Str("msg_id", r.Status.ID.String()).
			Str("stat", r.Status.Stat).
			Str("err", r.Status.Err).
			Str("src", r.SrcTermID).
			Msg("smgpctl delivery report")
		return nil
	}))
	mgr.OnReply(session.ReplyHandlerFunc(func(r protocol.ReplyMessage) error {
		text, err := r.Text()
		log.Info().
			Str("src", r.SrcTermID).
			Str("dest", r.DestTermID).
			Str("text", text).
			Msg("smgpctl reply")
		return err
	}))
}

func submitCmd() *cobra.Command {
	var (
		gatewayName string
		to          []string
		text        string
		format      string
		needReport  bool
		wait        time.Duration
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Send one message through a configured gateway and wait for the submit result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			msgFormat, err := protocol.ParseFormat(format)
			if err != nil {
				return err
			}
			if gatewayName == "" {
				gatewayName = cfg.Gateways[0].Name
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, wait)
			defer cancel()

			mgr, err := gateway.NewManager(cfg, gateway.Options{})
			if err != nil {
				return err
			}
			defer mgr.Stop()
			s, ok := mgr.Lookup(gatewayName)
			if !ok {
				return fmt.Errorf("%w: %s", gateway.ErrUnknownGateway, gatewayName)
			}
			results := make(chan *protocol.SubmitResp, 16)
			s.AddSubmitResultHandler(session.SubmitResultHandlerFunc(func(r *protocol.SubmitResp) error {
				select {
				case results <- r:
				default:
				}
				return nil
			}))

			if err := s.Connect(ctx); err != nil {
				return err
			}
			if err := waitConnected(ctx, s); err != nil {
				return err
			}
			seqs, err := mgr.Submit(ctx, gatewayName, protocol.SubmitRequest{
				NeedReport:  needReport,
				MsgFormat:   msgFormat,
				DestTermIDs: to,
				Text:        text,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for remaining := len(seqs); remaining > 0; remaining-- {
				select {
				case r := <-results:
					fmt.Fprintf(out, "seq=%d msg_id=%s status=%s\n", r.Header.SequenceID, r.Body.MsgID, r.Body.Status)
				case <-ctx.Done():
					return fmt.Errorf("waiting for submit results: %w", ctx.Err())
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&gatewayName, "gateway", "g", "", "gateway name (defaults to the first configured)")
	cmd.Flags().StringSliceVarP(&to, "to", "t", nil, "destination terminal id (repeatable)")
	cmd.Flags().StringVar(&text, "text", "", "message text")
	cmd.Flags().StringVar(&format, "format", "ascii", "content format: ascii|ucs2|gbk")
	cmd.Flags().BoolVar(&needReport, "report", true, "request a delivery report")
	cmd.Flags().DurationVar(&wait, "wait", 30*time.Second, "overall timeout")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("text")
	return cmd
}

func waitConnected(ctx context.Context, s *session.Session) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for !s.IsConnected() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("gateway %s not authenticated (state=%s): %w", s.Name(), s.State(), ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Generate or validate config files",
	}
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config to --config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			if err := config.WriteTemplate(path, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s config template to %s\n", config.FormatFor(path), path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate --config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "validated %s: %d gateway(s)\n", path, len(cfg.Gateways))
			return nil
		},
	}
	cmd.AddCommand(initCmd, validateCmd)
	return cmd
}
