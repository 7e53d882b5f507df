package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const (
	burrowDir  = ".burrow"
	configFile = "config.yaml"
	envFile    = ".env"
)

type Config struct {
	SpaceID string `json:"space_id" yaml:"space_id"`
}

func InitCmd() *cobra.Command {
	var spaceID string
	var apiKey string
	var apiURL string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a burrow workspace",
		Long:  "Creates the .burrow/ directory, config.yaml, and .env with API key.",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runInit(spaceID, apiKey, apiURL, outputJSON)
		},
	}

	cmd.Flags().StringVar(&spaceID, "space", "", "Space ID (auto-generated from directory name if not provided)")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key for authentication")
	cmd.Flags().StringVar(&apiURL, "api-url", "", "API base URL (default: http://localhost:8080)")

	return cmd
}

func runInit(spaceID, apiKey, apiURL string, outputJSON bool) error {
	if _, err := os.Stat(burrowDir); err == nil {
		return fmt.Errorf(".burrow directory already exists")
	}

	_ = godotenv.Load()
	if apiKey == "" {
		apiKey = os.Getenv(envAPIKey)
	}
	if apiKey == "" {
		fmt.Print("Enter API key: ")
		reader := bufio.NewReader(os.Stdin)
		input, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read API key: %w", err)
		}
		apiKey = strings.TrimSpace(input)
		if apiKey == "" {
			return fmt.Errorf("API key is required")
		}
	}

	if apiURL == "" {
		apiURL = os.Getenv(envAPIURL)
	}
	if apiURL == "" {
		apiURL = defaultAPIURL
	}

	if spaceID == "" {
		cwd, _ := os.Getwd()
		spaceID = filepath.Base(cwd)
	}

	envData := fmt.Sprintf("BURROW_API_KEY=%s\nBURROW_API_URL=%s\n", apiKey, apiURL)
	if err := os.WriteFile(envFile, []byte(envData), 0600); err != nil {
		return fmt.Errorf("failed to create .env: %w", err)
	}

	api, err := NewAPIClientWithConfig(apiKey, apiURL)
	if err != nil {
		os.Remove(envFile)
		return fmt.Errorf("failed to create API client: %w", err)
	}

	// Verify the credentials before writing the workspace config.
	if _, err := api.Get("/knowledge?page=1&page_size=1"); err != nil {
		os.Remove(envFile)
		return fmt.Errorf("failed to verify API key: %w", err)
	}

	if err := os.MkdirAll(burrowDir, 0755); err != nil {
		return fmt.Errorf("failed to create .burrow directory: %w", err)
	}

	configPath := filepath.Join(burrowDir, configFile)
	configData := fmt.Sprintf("space_id: %s\n", spaceID)
	if err := os.WriteFile(configPath, []byte(configData), 0644); err != nil {
		return fmt.Errorf("failed to create config.yaml: %w", err)
	}

	if outputJSON {
		result := map[string]interface{}{
			"success":  true,
			"space_id": spaceID,
			"config":   configPath,
			"env":      envFile,
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
	} else {
		fmt.Printf("Initialized burrow workspace for space '%s'\n", spaceID)
		fmt.Printf("Config saved to %s\n", configPath)
	}

	return nil
}

// LoadConfig reads the config from .burrow/config.yaml.
func LoadConfig() (*Config, error) {
	configPath := filepath.Join(burrowDir, configFile)
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("not a burrow workspace (run 'burrow init' first)")
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	// Simple YAML parsing for single field
	var config Config
	for _, line := range splitLines(string(data)) {
		if strings.HasPrefix(line, "space_id: ") {
			config.SpaceID = strings.TrimSpace(strings.TrimPrefix(line, "space_id: "))
			break
		}
	}

	if config.SpaceID == "" {
		return nil, fmt.Errorf("invalid config: space_id not found")
	}

	return &config, nil
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}
