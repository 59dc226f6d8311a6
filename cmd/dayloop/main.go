package main

// @title Dayloop API
// @version 1.0
// @description Autonomous characters that plan their day, act on it and consolidate what they remember.

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html

// @host localhost:8080
// @BasePath /
// @schemes http https

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/goclaw/dayloop/config"
	"github.com/goclaw/dayloop/pkg/logger"
	"github.com/goclaw/dayloop/pkg/version"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type serveFlags struct {
	configPath string
	envFile    string
}

// overrideFlags maps command-line flags onto configuration keys. Only
// flags given explicitly override the loaded configuration.
var overrideFlags = []struct {
	flag, key string
}{
	{"port", "server.port"},
	{"grpc-port", "server.grpc.port"},
	{"log-level", "log.level"},
	{"storage", "storage.type"},
	{"auto-start", "simulation.auto_start"},
	{"debug", "app.debug"},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &serveFlags{}
	root := &cobra.Command{
		Use:           "dayloop",
		Short:         "Run the dayloop server",
		Long:          "dayloop runs autonomous characters that plan their day, act on it and consolidate what they remember.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), f, overrides(cmd.Flags()))
		},
		Example: `  dayloop --config dayloop.yaml
  dayloop --storage sqlite --auto-start
  dayloop --grpc-port 9090 --log-level debug`,
	}

	fs := root.Flags()
	fs.StringVarP(&f.configPath, "config", "c", "", "configuration file (yaml, json or toml)")
	fs.StringVar(&f.envFile, "env-file", ".env", "dotenv file loaded before the configuration")
	fs.Int("port", 0, "HTTP port")
	fs.Int("grpc-port", 0, "gRPC port; also enables the gRPC server")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	fs.String("storage", "", "storage backend (memory, badger, redis, sqlite)")
	fs.Bool("auto-start", false, "start the simulation clock with the server")
	fs.Bool("debug", false, "debug logging")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "dayloop", version.Get())
		},
	})
	return root
}

func overrides(fs *pflag.FlagSet) map[string]any {
	out := make(map[string]any)
	for _, o := range overrideFlags {
		fl := fs.Lookup(o.flag)
		if fl == nil || !fl.Changed {
			continue
		}
		switch fl.Value.Type() {
		case "int":
			n, _ := fs.GetInt(o.flag)
			out[o.key] = n
		case "bool":
			b, _ := fs.GetBool(o.flag)
			out[o.key] = b
		default:
			out[o.key] = fl.Value.String()
		}
	}
	if _, ok := out["server.grpc.port"]; ok {
		out["server.grpc.enabled"] = true
	}
	return out
}

func serve(ctx context.Context, f *serveFlags, overrides map[string]any) error {
	// A missing .env is normal; the environment may already be set.
	envLoaded := godotenv.Load(f.envFile) == nil

	cfg, err := config.Load(f.configPath, overrides)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration:\n%s\n", err)
		return err
	}

	logCfg := &logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}
	if cfg.App.Debug {
		logCfg.Level = logger.DebugLevel
	}
	log := logger.New(logCfg)
	logger.SetGlobal(log)
	defer log.Close()

	build := version.Get()
	log.Info("starting dayloop",
		"version", build.Version,
		"commit", build.Commit,
		"environment", cfg.App.Environment,
		"dotenv", envLoaded,
	)
	log.Debug("configuration loaded", "config", cfg.String())

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Error("cannot build application", "error", err)
		return err
	}
	if f.configPath != "" {
		a.watchConfig(ctx, f.configPath, overrides)
	}

	if err := a.run(ctx); err != nil {
		log.Error("dayloop stopped with error", "error", err)
		return err
	}
	log.Info("dayloop stopped")
	return nil
}
