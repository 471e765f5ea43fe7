package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"emotiond/internal/auth"
	"emotiond/internal/config"
	"emotiond/internal/registry"
)

func main() {
	if err := newRootCmd(os.LookupEnv).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "emotiond:", err)
		os.Exit(1)
	}
}

// flagValues mirrors the persistent flags. Only flags the user changed
// override lower layers.
type flagValues struct {
	configPath     string
	addr           string
	modelsDir      string
	modelID        string
	cascadePath    string
	backend        string
	remoteURL      string
	onnxLibrary    string
	maxConnections int
	jwtSecret      string
	logLevel       string
	logFormat      string
	corsOrigins    string
}

func newRootCmd(lookup func(string) (string, bool)) *cobra.Command {
	return rootCmd(&flagValues{}, lookup)
}

func rootCmd(fv *flagValues, lookup func(string) (string, bool)) *cobra.Command {
	root := &cobra.Command{
		Use:           "emotiond",
		Short:         "Realtime facial emotion detection over websocket",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, fv, lookup)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&fv.configPath, "config", "", "Config file (.yaml, .json, .toml); defaults EMOTIOND_CONFIG")
	pf.StringVar(&fv.addr, "addr", "", "HTTP listen address, e.g. :8080")
	pf.StringVar(&fv.modelsDir, "models-dir", "", "Directory to scan for *.onnx models and *.xml cascades")
	pf.StringVar(&fv.modelID, "model", "", "Classifier model id (file name); empty picks the first model")
	pf.StringVar(&fv.cascadePath, "cascade", "", "Haar cascade XML; empty picks one from the models dir")
	pf.StringVar(&fv.backend, "backend", "", "Inference backend: onnx|remote")
	pf.StringVar(&fv.remoteURL, "remote-url", "", "Base URL of the remote classifier (backend=remote)")
	pf.StringVar(&fv.onnxLibrary, "onnx-library", "", "Path to the onnxruntime shared library")
	pf.IntVar(&fv.maxConnections, "max-connections", 0, "Maximum concurrent realtime sessions")
	pf.StringVar(&fv.jwtSecret, "jwt-secret", "", "HS256 secret used to verify client tokens")
	pf.StringVar(&fv.logLevel, "log-level", "", "Log level: debug|info|warn|error")
	pf.StringVar(&fv.logFormat, "log-format", "", "Log format: console|json")
	pf.StringVar(&fv.corsOrigins, "cors-origins", "", "Comma-separated allowed origins; enables CORS")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, fv, lookup)
		},
	}

	var asJSON bool
	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "List classifier models and cascades in the models dir",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, fv, lookup)
			if err != nil {
				return err
			}
			cat, err := registry.LoadDir(cfg.ModelsDir)
			if err != nil {
				return err
			}
			return printCatalog(cmd.OutOrStdout(), cat, asJSON)
		},
	}
	modelsCmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")

	var user string
	var ttl time.Duration
	tokenCmd := &cobra.Command{
		Use:     "token",
		Short:   "Mint a development token signed with the configured secret",
		Example: "  emotiond token --user alice --ttl 1h --jwt-secret dev",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, fv, lookup)
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return fmt.Errorf("jwt secret is required (--jwt-secret or EMOTIOND_JWT_SECRET)")
			}
			if strings.TrimSpace(user) == "" {
				return fmt.Errorf("--user is required")
			}
			tok, err := auth.Sign(cfg.JWTSecret, user, ttl, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	tokenCmd.Flags().StringVar(&user, "user", "", "Subject (user id) of the token")
	tokenCmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")

	root.AddCommand(serveCmd, modelsCmd, tokenCmd)
	return root
}

// resolveConfig layers defaults, the config file, EMOTIOND_* env and the
// flags the user set, in that order.
func resolveConfig(cmd *cobra.Command, fv *flagValues, lookup func(string) (string, bool)) (config.Config, error) {
	cfg := config.Defaults()

	path := fv.configPath
	if path == "" {
		if v, ok := lookup(config.EnvPrefix + "CONFIG"); ok {
			path = strings.TrimSpace(v)
		}
	}
	if path != "" {
		fileCfg, err := config.Load(path)
		if err != nil {
			return cfg, err
		}
		cfg = config.Merge(cfg, fileCfg)
	}

	envCfg, err := config.FromEnv(lookup)
	if err != nil {
		return cfg, err
	}
	cfg = config.Merge(cfg, envCfg)

	changed := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}
	var fl config.Config
	if changed("addr") {
		fl.Addr = fv.addr
	}
	if changed("models-dir") {
		fl.ModelsDir = fv.modelsDir
	}
	if changed("model") {
		fl.ModelID = fv.modelID
	}
	if changed("cascade") {
		fl.CascadePath = fv.cascadePath
	}
	if changed("backend") {
		fl.Backend = fv.backend
	}
	if changed("remote-url") {
		fl.RemoteURL = fv.remoteURL
	}
	if changed("onnx-library") {
		fl.ONNXLibrary = fv.onnxLibrary
	}
	if changed("max-connections") {
		fl.MaxConnections = fv.maxConnections
	}
	if changed("jwt-secret") {
		fl.JWTSecret = fv.jwtSecret
	}
	if changed("log-level") {
		fl.LogLevel = fv.logLevel
	}
	if changed("log-format") {
		fl.LogFormat = fv.logFormat
	}
	if changed("cors-origins") {
		fl.CORSOrigins = config.SplitCSV(fv.corsOrigins)
	}
	return config.Merge(cfg, fl), nil
}

// newLogger builds the process logger. Unknown levels fall back to info.
func newLogger(w io.Writer, level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if format != "json" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Str("service", "emotiond").Logger()
}

func printCatalog(w io.Writer, cat *registry.Catalog, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"models": cat.Models, "cascades": cat.Cascades})
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tID\tSIZE\tPATH")
	for _, m := range cat.Models {
		fmt.Fprintf(tw, "model\t%s\t%d\t%s\n", m.ID, m.SizeBytes, m.Path)
	}
	for _, c := range cat.Cascades {
		fmt.Fprintf(tw, "cascade\t%s\t-\t%s\n", c.ID, c.Path)
	}
	return tw.Flush()
}
