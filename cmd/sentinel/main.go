// Command sentinel analyzes network traffic flow records for anomalies and
// maps them to mitigation recommendations. It can analyze CSV exports,
// pre-aggregate pcap captures, generate synthetic traffic, and serve the
// analysis API over HTTP.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rdally/netflow-sentinel/pkg/capture"
	"github.com/rdally/netflow-sentinel/pkg/config"
	"github.com/rdally/netflow-sentinel/pkg/dashboard"
	"github.com/rdally/netflow-sentinel/pkg/flow"
	"github.com/rdally/netflow-sentinel/pkg/pipeline"
	"github.com/rdally/netflow-sentinel/pkg/synthetic"
)

func main() {
	root := &cobra.Command{
		Use:   "sentinel",
		Short: "Network traffic anomaly detection and mitigation recommendations",
	}
	root.AddCommand(newAnalyzeCmd(), newGenerateCmd(), newIngestCmd(), newServeCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadDetectionConfig(path string) config.Config {
	cfg, warnings := config.Load(path)
	for _, w := range warnings {
		log.Printf("Warning: %s", w)
	}
	return cfg
}

func newAnalyzeCmd() *cobra.Command {
	var (
		configPath string
		outputDir  string
	)
	cmd := &cobra.Command{
		Use:   "analyze <traffic.csv>",
		Short: "Analyze a CSV of flow records and report anomalies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadDetectionConfig(configPath)

			table, err := flow.ReadCSVFile(args[0])
			if err != nil {
				return fmt.Errorf("loading %s: %w", args[0], err)
			}

			p, err := pipeline.New(cfg)
			if err != nil {
				return err
			}
			result, err := p.Run(table)
			if err != nil {
				return err
			}

			if result.AnomalyCount > 0 {
				fmt.Printf("ALERT: Detected %d anomalous activities in network traffic!\n", result.AnomalyCount)
				key := flow.TimestampKey(time.Now())
				path, err := flow.ExportAnomalies(result.Table, outputDir, key)
				if err != nil {
					return fmt.Errorf("exporting anomalies: %w", err)
				}
				fmt.Printf("Anomalous records exported to %s\n", path)
			} else {
				fmt.Println("Network traffic is normal.")
			}

			fmt.Printf("\nAnalyzed %d records, %d anomalous (%.2f%%)\n",
				result.TotalRecords, result.AnomalyCount, result.AnomalyPercentage)
			for _, rec := range result.Recommendations {
				fmt.Printf("  [%s] %s (%d records)\n      %s\n",
					rec.Severity, rec.Type, rec.AffectedRecordCount, rec.Description)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "config.json", "detection configuration file")
	cmd.Flags().StringVar(&outputDir, "output-dir", "outputs", "directory for exported artifacts")
	return cmd
}

func newGenerateCmd() *cobra.Command {
	var (
		duration int
		seed     int64
		output   string
		start    string
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate synthetic traffic with known anomaly archetypes",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := synthetic.Options{DurationHours: duration, Seed: seed}
			if seed == 0 {
				opts.Seed = time.Now().UnixNano()
			}
			if start != "" {
				parsed, err := time.Parse(time.RFC3339, start)
				if err != nil {
					return fmt.Errorf("invalid --start: %w", err)
				}
				opts.Start = parsed
			}

			table, err := synthetic.Generate(opts)
			if err != nil {
				return err
			}
			if err := table.WriteCSVFile(output); err != nil {
				return err
			}
			fmt.Printf("Sample network traffic data generated successfully: %s (%d records)\n",
				output, table.Len())
			return nil
		},
	}
	cmd.Flags().IntVar(&duration, "duration", 24, "hours of traffic, one record per minute")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed (0 seeds from the clock)")
	cmd.Flags().StringVar(&output, "output", "network_traffic.csv", "output CSV path")
	cmd.Flags().StringVar(&start, "start", "", "start timestamp, RFC3339 (default now)")
	return cmd
}

func newIngestCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "ingest <capture.pcap>",
		Short: "Pre-aggregate a pcap capture into per-flow records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := capture.ReadPCAPFile(args[0])
			if err != nil {
				return err
			}
			if err := table.WriteCSVFile(output); err != nil {
				return err
			}
			fmt.Printf("Aggregated %d flows into %s\n", table.Len(), output)
			return nil
		},
	}
	cmd.Flags().StringVar(&output, "output", "flows.csv", "output CSV path")
	return cmd
}

// serverConfig is the YAML configuration for the HTTP server.
type serverConfig struct {
	Server struct {
		Addr      string `yaml:"addr"`
		UploadDir string `yaml:"upload_dir"`
		OutputDir string `yaml:"output_dir"`
	} `yaml:"server"`
	Detection struct {
		Config string `yaml:"config"`
	} `yaml:"detection"`
}

// loadServerConfig reads the YAML server config, expanding ${VAR}
// placeholders from the environment.
func loadServerConfig(path string) (*serverConfig, error) {
	cfg := &serverConfig{}
	cfg.Server.Addr = ":8080"
	cfg.Server.UploadDir = "uploads"
	cfg.Server.OutputDir = "outputs"
	cfg.Detection.Config = "config.json"

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	content := string(data)
	for _, env := range os.Environ() {
		pair := strings.SplitN(env, "=", 2)
		if len(pair) != 2 {
			continue
		}
		content = strings.ReplaceAll(content, "${"+pair[0]+"}", pair[1])
	}

	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the analysis API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			srvCfg, err := loadServerConfig(configPath)
			if err != nil {
				return err
			}
			detCfg := loadDetectionConfig(srvCfg.Detection.Config)
			if err := detCfg.Validate(); err != nil {
				return err
			}

			for _, dir := range []string{srvCfg.Server.UploadDir, srvCfg.Server.OutputDir} {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("creating %s: %w", filepath.Clean(dir), err)
				}
			}

			server := dashboard.NewServer(srvCfg.Server.Addr, detCfg,
				srvCfg.Server.UploadDir, srvCfg.Server.OutputDir)

			errCh := make(chan error, 1)
			go func() {
				errCh <- server.Start()
			}()

			fmt.Printf("Traffic Anomaly Sentinel started on %s\n", srvCfg.Server.Addr)
			fmt.Println("Press Ctrl+C to stop")

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return err
			case <-sigCh:
			}

			log.Printf("Shutting down...")
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Stop(ctx)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "config/sentinel.yaml", "server configuration file")
	return cmd
}
