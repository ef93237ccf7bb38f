package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dyike/RightOfWay/config"
	"github.com/dyike/RightOfWay/models"
)

// newConfigCmd creates the config command
func newConfigCmd(s *session) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "Show, validate and update the RightOfWay configuration file",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := s.config()
			if err != nil {
				return err
			}
			showConfig(cmd.OutOrStdout(), s.mgr.Path(), &cfg)
			return nil
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and settlement setup",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := s.config()
			if err != nil {
				return err
			}
			return validateConfig(cmd.OutOrStdout(), &cfg)
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "set JSON",
		Short: "Merge a JSON fragment into the configuration file",
		Long: `Merge a partial JSON document into the configuration file.
Example: rightofway config set '{"max_rounds": 3, "network": "sepolia"}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := s.manager()
			if err != nil {
				return err
			}
			if err := mgr.UpdateFromJSON(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration saved to %s\n", mgr.Path())
			return nil
		},
	})

	return configCmd
}

func configured(v string) string {
	if strings.TrimSpace(v) == "" {
		return "not configured"
	}
	return "configured"
}

// showConfig displays the current configuration
func showConfig(w io.Writer, path string, cfg *config.Config) {
	fmt.Fprintln(w, "Current RightOfWay Configuration:")
	fmt.Fprintln(w, strings.Repeat("=", 40))
	fmt.Fprintf(w, "Config File:          %s\n", path)
	fmt.Fprintf(w, "Results Directory:    %s\n", cfg.ResultsDir)
	fmt.Fprintf(w, "Data Directory:       %s\n", cfg.DataDir)
	fmt.Fprintf(w, "Database:             %s\n", cfg.DBPath)
	fmt.Fprintf(w, "Agent Registry:       %s\n", cfg.RegistryPath)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Mode:                 %s\n", cfg.Mode)
	fmt.Fprintf(w, "Network:              %s\n", cfg.Network)
	fmt.Fprintf(w, "Max Rounds:           %d\n", cfg.MaxRounds)
	fmt.Fprintf(w, "Market Price Band:    %.0f - %.0f (x%.2f when congested)\n", cfg.MarketPriceMin, cfg.MarketPriceMax, cfg.CongestionMultiplier)
	fmt.Fprintf(w, "Counter Band:         %.0f - %.0f\n", cfg.CounterMin, cfg.CounterMax)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "LLM Provider:         %s\n", cfg.LLMProvider)
	fmt.Fprintf(w, "LLM Model:            %s\n", cfg.LLMModel)
	fmt.Fprintf(w, "LLM Timeout:          %s\n", cfg.LLMTimeout())
	fmt.Fprintf(w, "DeepSeek API Key:     %s\n", configured(cfg.DeepSeekAPIKey))
	fmt.Fprintf(w, "OpenAI API Key:       %s\n", configured(cfg.OpenAIAPIKey))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Relayer URL:          %s\n", cfg.RelayerURL)
	fmt.Fprintf(w, "Contract:             %s\n", cfg.ContractAddress)
	fmt.Fprintf(w, "Agent A Key:          %s\n", configured(cfg.AgentAPrivateKey))
	fmt.Fprintf(w, "Agent B Key:          %s\n", configured(cfg.AgentBPrivateKey))
	fmt.Fprintf(w, "HTTP Address:         %s\n", cfg.HTTPAddr)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Debug Mode:           %t\n", cfg.Debug)
	fmt.Fprintf(w, "Eino Debug:           %t\n", cfg.EinoDebugEnabled)
	if cfg.EinoDebugEnabled {
		fmt.Fprintf(w, "Debug URL:            http://localhost:%d\n", cfg.EinoDebugPort)
	}
}

// validateConfig checks ranges, directories and, in production, that the
// settlement rail is fully configured.
func validateConfig(w io.Writer, cfg *config.Config) error {
	fmt.Fprintln(w, "Validating RightOfWay Configuration...")

	fmt.Fprint(w, "Checking directories... ")
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Fprintln(w, "failed")
		return fmt.Errorf("directory validation failed: %w", err)
	}
	fmt.Fprintln(w, "ok")

	fmt.Fprint(w, "Checking configuration values... ")
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(w, "failed")
		return err
	}
	if _, err := models.ParseNetwork(cfg.Network); err != nil {
		fmt.Fprintln(w, "failed")
		return err
	}
	fmt.Fprintln(w, "ok")

	var warnings []string
	switch cfg.LLMProvider {
	case "deepseek":
		if cfg.DeepSeekAPIKey == "" {
			warnings = append(warnings, "DeepSeek API key not configured, negotiations run on fallback values")
		}
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			warnings = append(warnings, "OpenAI API key not configured, negotiations run on fallback values")
		}
	}
	if cfg.IsProduction() {
		if cfg.RelayerURL == "" || cfg.ContractAddress == "" {
			return fmt.Errorf("production mode needs relayer_url and contract_address")
		}
		if cfg.AgentAPrivateKey == "" || cfg.AgentBPrivateKey == "" {
			warnings = append(warnings, "agent signing keys missing, settlement will fail for unkeyed agents")
		}
	}

	fmt.Fprintln(w)
	if len(warnings) == 0 {
		fmt.Fprintln(w, "Configuration validation completed successfully!")
		return nil
	}
	for _, warning := range warnings {
		fmt.Fprintf(w, "  warning: %s\n", warning)
	}
	fmt.Fprintf(w, "Configuration validation completed with %d warnings.\n", len(warnings))
	return nil
}
