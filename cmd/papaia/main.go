package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/chuchurex/papaia.cl/internal/config"
)

var (
	version    = "0.3.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "papaia",
		Short: "PAPAIA capture orchestrator",
		Long:  "Conversational capture of real-estate listings over WhatsApp, Callbell and Telegram.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.papaia/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(gatewayCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(capturesCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize config and data directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := config.DefaultConfigDir()
			cfgPath := config.DefaultConfigPath()
			if err := os.MkdirAll(cfgDir, 0o755); err != nil {
				return err
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			dataDir := config.ExpandPath(cfg.General.DataDir)
			if err := os.MkdirAll(dataDir, 0o755); err != nil {
				return err
			}
			if err := os.MkdirAll(config.ExpandPath(cfg.Publish.DestinationsDir), 0o755); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath, "data", dataDir)
			return nil
		},
	}
}

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Start the capture gateway (channels + orchestrator + API)",
		Long:  "Starts all enabled channels, the capture orchestrator and the HTTP API. Press Ctrl+C to stop.",
		RunE:  runGateway,
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show gateway status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfigOrDefaults()
			addr := fmt.Sprintf("http://%s:%d/healthz", cfg.Server.Host, cfg.Server.Port)

			client := &http.Client{Timeout: 5 * time.Second}
			resp, err := client.Get(addr)
			if err != nil {
				logger.Info("gateway", "addr", addr, "running", false)
				return nil
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			logger.Info("gateway", "addr", addr, "running", resp.StatusCode == http.StatusOK, "health", string(body))
			return nil
		},
	}
}

func capturesCmd() *cobra.Command {
	var state string
	cmd := &cobra.Command{
		Use:   "captures",
		Short: "List in-flight captures via the running gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfigOrDefaults()
			addr := fmt.Sprintf("http://%s:%d/api/captures", cfg.Server.Host, cfg.Server.Port)
			if state != "" {
				addr += "?state=" + state
			}

			client := &http.Client{Timeout: 5 * time.Second}
			resp, err := client.Get(addr)
			if err != nil {
				return fmt.Errorf("gateway not reachable at %s: %w", addr, err)
			}
			defer resp.Body.Close()

			var pretty json.RawMessage
			if err := json.NewDecoder(resp.Body).Decode(&pretty); err != nil {
				return err
			}
			out, err := json.MarshalIndent(pretty, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "filter by capture state")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("papaia", version)
		},
	}
}

func loadConfigOrDefaults() *config.Config {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config not found, using defaults", "path", cfgPath, "err", err)
		return config.Defaults()
	}
	return cfg
}
