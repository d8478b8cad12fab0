package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-session-coordinator/auth"
	"github.com/jrsteele09/go-session-coordinator/entitlement"
	"github.com/jrsteele09/go-session-coordinator/internal/config"
	"github.com/jrsteele09/go-session-coordinator/internal/logging"
	"github.com/jrsteele09/go-session-coordinator/internal/metrics"
	"github.com/jrsteele09/go-session-coordinator/internal/utils"
	"github.com/jrsteele09/go-session-coordinator/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	configFileVar = "CONFIG_FILE"
	passwordVar   = "COORDINATOR_PASSWORD"
	cliContextID  = "cli"
)

var errPanicRecovered = errors.New("panic recovered")

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "coordinator",
		Short: "Session coordinator for one execution context",
		Long: `Runs an execution context that owns the signed-in session: it restores
the stored session, refreshes tokens before they expire, answers auth
requests from other contexts and mirrors their sign-in and sign-out events.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.GetEnv(configFileVar, ""), "YAML config file")

	cmd.AddCommand(signInCmd(&configPath), signOutCmd(&configPath), statusCmd(&configPath))
	return cmd
}

func signInCmd(configPath *string) *cobra.Command {
	var provider, email string
	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Sign in with a social provider or with email and password",
		Long: `Signs in with --provider through the browser, or with --email and the
password in $` + passwordVar + `.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return oneShot(*configPath, func(ctx context.Context, m *auth.Manager) error {
				if email != "" {
					return m.SignInWithPassword(ctx, email, os.Getenv(passwordVar))
				}
				if provider == "" {
					return errors.New("either --provider or --email is required")
				}
				return m.SignInWithOAuth(ctx, provider)
			})
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "social provider (google, github, azure)")
	cmd.Flags().StringVar(&email, "email", "", "email for password sign-in")
	return cmd
}

func signOutCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "Sign out and clear the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return oneShot(*configPath, func(ctx context.Context, m *auth.Manager) error {
				return m.SignOut(ctx)
			})
		},
	}
}

type statusOutput struct {
	State         auth.State         `json:"state"`
	Authenticated bool               `json:"authenticated"`
	User          *session.User      `json:"user,omitempty"`
	ExpiresAt     *time.Time         `json:"expires_at,omitempty"`
	Access        entitlement.Record `json:"access"`
}

func statusCmd(configPath *string) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the session and entitlement of the stored user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return oneShot(*configPath, func(ctx context.Context, m *auth.Manager) error {
				ok, err := m.CheckAuthStatus(ctx)
				if err != nil {
					log.Warn().Err(err).Msg("session check failed")
				}
				access := m.CheckAccess
				if refresh {
					access = m.RefreshAccess
				}
				out := statusOutput{State: m.State(), Authenticated: ok, User: m.CurrentUser(), Access: access(ctx)}
				if s := m.CurrentSession(); s != nil {
					out.ExpiresAt = utils.Ptr(s.Expiry())
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			})
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "look the entitlement up again instead of using the cache")
	return cmd
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.New(), nil
	}
	return config.Load(path)
}

// oneShot wires a short lived context, runs fn against it and tears it down.
func oneShot(configPath string, fn func(ctx context.Context, m *auth.Manager) error) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := logging.Setup(cfg.GetEnv(), cfg.GetLogLevel(), cliContextID, os.Stderr)

	c, err := newCoordinator(cfg, cliContextID, logger, metrics.Nop{})
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Warn().Err(err).Msg("close coordinator")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := c.manager.Initialize(ctx); err != nil {
		return err
	}
	return fn(ctx, c.manager)
}

// serve runs the context until it is signalled, restarting it after a panic.
func serve(configPath string) error {
	for {
		err := run(configPath)
		if !errors.Is(err, errPanicRecovered) {
			return err
		}
		log.Error().Err(err).Msg("coordinator crashed, restarting")
		time.Sleep(1 * time.Second)
	}
}

func run(configPath string) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("recovered from panic")
			returnError = errPanicRecovered
		}
	}()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	displayAppname(cfg.GetAppName())
	logger := logging.Setup(cfg.GetEnv(), cfg.GetLogLevel(), cfg.GetContextID(), os.Stderr)

	registry := prometheus.NewRegistry()
	c, err := newCoordinator(cfg, cfg.GetContextID(), logger, metrics.NewCollector(registry))
	if err != nil {
		return err
	}
	defer func() {
		returnError = errors.Join(returnError, c.Close())
	}()

	if err := c.manager.Initialize(context.Background()); err != nil {
		return err
	}
	c.scheduler.Start(cfg.GetRefreshInterval())

	var metricsServer *http.Server
	if addr := cfg.GetMetricsAddr(); addr != "" {
		metricsServer = &http.Server{Addr: addr, Handler: metrics.Handler(registry), ReadHeaderTimeout: 5 * time.Second}
		go listenAndServe(metricsServer)
	}

	logger.Info().Str("state", string(c.manager.State())).Msg("coordinator ready")
	waitForStopSignal()
	logger.Info().Msg("coordinator stopping")
	return shutdown(metricsServer)
}

func listenAndServe(server *http.Server) {
	log.Info().Str("addr", server.Addr).Msg("metrics listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Err(err).Msg("[listenAndServe] metrics server")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	if server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
