package commands

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pellucid/hearth/internal/config"
	"github.com/pellucid/hearth/internal/identity"
	"github.com/pellucid/hearth/internal/jobs"
	"github.com/pellucid/hearth/internal/logging"
	"github.com/pellucid/hearth/internal/mcpregistry"
	"github.com/pellucid/hearth/internal/memory"
	"github.com/pellucid/hearth/internal/oauthbroker"
	"github.com/pellucid/hearth/internal/provider"
	"github.com/pellucid/hearth/internal/rolectx"
	"github.com/pellucid/hearth/internal/server"
	"github.com/pellucid/hearth/internal/skills"
	"github.com/pellucid/hearth/internal/store"
	"github.com/pellucid/hearth/internal/turn"
	"github.com/pellucid/hearth/internal/viewer"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the hearthd API server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	appConfig, err := config.Load(GetConfigPath())
	if err != nil {
		return err
	}
	if servePort != 0 {
		appConfig.Port = servePort
	}
	if err := appConfig.EnsureDataDir(); err != nil {
		return err
	}

	logging.Info().Str("version", Version).Str("dataDir", appConfig.DataDir).Msg("starting hearthd")

	st, err := store.Open(appConfig.DBPath())
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()

	registry, err := provider.InitializeProviders(ctx, appConfig)
	if err != nil {
		logging.Warn().Err(err).Msg("failed to initialize some LLM providers")
	}

	broker := oauthbroker.New(st)
	registerOAuthProviders(broker, appConfig)

	mcpReg := mcpregistry.New(st, broker)
	defer mcpReg.Close()

	catalogCtx, stopCatalogWatch := context.WithCancel(ctx)
	defer stopCatalogWatch()
	catalogOverlayPath := filepath.Join(appConfig.DataDir, "catalog.yaml")
	if err := mcpregistry.WatchCatalogOverlay(catalogCtx, catalogOverlayPath); err != nil {
		logging.Warn().Err(err).Str("path", catalogOverlayPath).Msg("failed to start predefined-server catalog watcher")
	}

	roles := rolectx.New(st)
	mem := memory.New(st, registry)
	sk := skills.New(st)
	orch := turn.New(st, registry, mcpReg, mem, sk)

	secureCookies := appConfig.AppEnv == config.EnvProduction
	idSvc := identity.New(st, time.Duration(appConfig.SessionTTLDays)*24*time.Hour, secureCookies)

	view := viewer.New(appConfig.ViewerTmpDir(), broker)
	if err := view.Load(); err != nil {
		logging.Warn().Err(err).Msg("failed to load existing viewer attachments")
	}
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	view.StartSweeper(sweepCtx, time.Hour)

	jobsCfg := jobs.DefaultConfig()
	if appConfig.JobPollIntervalSeconds > 0 {
		jobsCfg.PollInterval = time.Duration(appConfig.JobPollIntervalSeconds) * time.Second
	}
	sched := jobs.New(st, orch, jobsCfg)
	sched.Start(ctx)

	serverConfig := server.DefaultConfig()
	serverConfig.Port = appConfig.Port

	srv := server.New(serverConfig, appConfig, st, idSvc, broker, mcpReg, roles, mem, sk, orch, sched, view)

	go func() {
		logging.Info().
			Str("host", appConfig.Host).
			Int("port", appConfig.Port).
			Msg("server listening")
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logging.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info().Msg("shutting down server...")

	sched.Stop()
	stopSweep()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("server shutdown error")
	}

	logging.Info().Msg("server stopped")
	return nil
}

// registerOAuthProviders wires the providers with configured client
// credentials into the broker; providers without credentials are left
// unregistered and surface apperr.Validation when a user tries to connect.
func registerOAuthProviders(broker *oauthbroker.Broker, cfg *config.Config) {
	ctors := map[string]func(oauthbroker.Config) oauthbroker.Provider{
		"google": oauthbroker.NewGoogleProvider,
		"github": oauthbroker.NewGitHubProvider,
		"slack":  oauthbroker.NewSlackProvider,
		"notion": oauthbroker.NewNotionProvider,
	}
	for name, ctor := range ctors {
		cred, ok := cfg.OAuth[name]
		if !ok || cred.ClientID == "" || cred.ClientSecret == "" {
			continue
		}
		broker.Register(name, ctor(oauthbroker.Config{
			ClientID:     cred.ClientID,
			ClientSecret: cred.ClientSecret,
			RedirectURL:  cred.RedirectURL,
		}))
	}
}
