// Package cli is the command line driving adapter of the knowledge core.
package cli

import (
	"context"
	"errors"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jltournay/farmer-power-knowledge/internal/core/ports/driven"
	"github.com/jltournay/farmer-power-knowledge/internal/core/ports/driving"
	"github.com/jltournay/farmer-power-knowledge/internal/logger"
	"github.com/jltournay/farmer-power-knowledge/internal/normalisers"
)

// EnvPrefix prefixes every environment override, e.g. FPKB_VERBOSE.
const EnvPrefix = "FPKB"

var version = "dev"

// Services are the driving ports the commands call.
type Services struct {
	Vectorization driving.VectorizationService
	Retrieval     driving.RetrievalService
	Scheduler     driving.Scheduler

	// Ranking supplies the configured ranking settings. Optional.
	Ranking driven.RankingConfigProvider

	// Normalisers extracts text from uploaded files. Optional; the
	// built-in registry is used when nil.
	Normalisers driven.NormaliserRegistry

	// Serve runs the long-lived background work of the serve command
	// (config watching, metrics endpoint) until ctx is done.
	Serve func(ctx context.Context, metricsAddr string) error
}

// Bootstrap builds the services from the resolved settings. The returned
// cleanup is called after the command finishes.
type Bootstrap func(ctx context.Context, settings Settings) (*Services, func(), error)

// Settings are the global flag and environment values.
type Settings struct {
	ConfigPath  string
	Verbose     bool
	JSONLogs    bool
	MetricsAddr string
}

var (
	bootstrap Bootstrap
	services  *Services
	cleanup   func()
)

var errNotConfigured = errors.New("services not configured")

var rootCmd = &cobra.Command{
	Use:   "fpkb",
	Short: "Farmer Power knowledge base",
	Long: `fpkb chunks agronomy documents, embeds them into a vector index and
answers ranked knowledge queries.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(*cobra.Command, []string) { runCleanup() },
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "config file (default ~/.fpkb/config.toml)")
	flags.BoolP("verbose", "v", false, "enable debug logging")
	flags.Bool("log-json", false, "write logs as JSON")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address (serve only)")

	_ = viper.BindPFlag("config", flags.Lookup("config"))
	_ = viper.BindPFlag("verbose", flags.Lookup("verbose"))
	_ = viper.BindPFlag("log_json", flags.Lookup("log-json"))
	_ = viper.BindPFlag("metrics_addr", flags.Lookup("metrics-addr"))
}

// initConfig loads .env files and binds FPKB_* environment variables.
func initConfig() {
	// A missing .env file is normal.
	_ = godotenv.Load()

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

// CurrentSettings returns the resolved global settings.
func CurrentSettings() Settings {
	return Settings{
		ConfigPath:  viper.GetString("config"),
		Verbose:     viper.GetBool("verbose"),
		JSONLogs:    viper.GetBool("log_json"),
		MetricsAddr: viper.GetString("metrics_addr"),
	}
}

// Lookup returns a setting resolved from flags or FPKB_* environment
// variables. Lookup("embedding.api_key") reads FPKB_EMBEDDING_API_KEY.
func Lookup(key string) string {
	return viper.GetString(key)
}

func setup(cmd *cobra.Command, _ []string) error {
	settings := CurrentSettings()
	logger.SetVerbose(settings.Verbose)
	logger.SetJSON(settings.JSONLogs)

	if services != nil || bootstrap == nil || !needsServices(cmd) {
		return nil
	}

	svc, done, err := bootstrap(cmd.Context(), settings)
	if err != nil {
		return err
	}
	services = svc
	cleanup = func() {
		if done != nil {
			done()
		}
		services = nil
	}
	return nil
}

// needsServices reports whether cmd or a parent is annotated as needing
// the wired services.
func needsServices(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[annotationServices] == "true" {
			return true
		}
	}
	return false
}

const annotationServices = "services"

var withServices = map[string]string{annotationServices: "true"}

// SetBootstrap installs the function that wires services on demand.
func SetBootstrap(b Bootstrap) {
	bootstrap = b
}

// SetServices installs already-built services.
func SetServices(s *Services) {
	services = s
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	defer runCleanup()
	return rootCmd.ExecuteContext(ctx)
}

// runCleanup releases bootstrapped services. PersistentPostRun is skipped
// when a command fails, so Execute calls it too.
func runCleanup() {
	if cleanup != nil {
		cleanup()
		cleanup = nil
	}
}

func vectorizationService() (driving.VectorizationService, error) {
	if services == nil || services.Vectorization == nil {
		return nil, errNotConfigured
	}
	return services.Vectorization, nil
}

func normaliserRegistry() driven.NormaliserRegistry {
	if services == nil || services.Normalisers == nil {
		return normalisers.NewDefaultRegistry()
	}
	return services.Normalisers
}

func retrievalService() (driving.RetrievalService, error) {
	if services == nil || services.Retrieval == nil {
		return nil, errNotConfigured
	}
	return services.Retrieval, nil
}

func schedulerService() (driving.Scheduler, error) {
	if services == nil || services.Scheduler == nil {
		return nil, errNotConfigured
	}
	return services.Scheduler, nil
}
