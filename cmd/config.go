package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "revwatch"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage revwatch configuration.

Running bare 'revwatch config' is the same as 'revwatch config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# revwatch configuration
# See: revwatch config show (for effective values and sources)

# State/data directory (default: ~/.config/revwatch)
# state_dir: {{ .StateDir }}

# SQLite database path for run history (default: ~/.config/revwatch/revwatch.db)
# db_path: {{ .DBPath }}

# Watcher settings
watch:
  # Directory to watch for changes (default: ".")
  dir: "{{ .WatchDir }}"

  # File extensions that trigger a review (default: [".py"])
  extensions: [{{ .WatchExtensions }}]

  # Quiet period after the last change before a review fires (default: "1s")
  debounce: "{{ .WatchDebounce }}"

  # Where documentation.txt and fixed_* copies are written (default: the watched dir)
  # output_dir: ""

# HTTP server settings
server:
  # Port for the /analyze API (default: 8000)
  port: {{ .ServerPort }}

# Inference settings
inference:
  # Backend: "ollama" or "anthropic" (default: "ollama")
  provider: "{{ .InferenceProvider }}"

  # Model name; empty picks the provider default
  model: "{{ .InferenceModel }}"

  # Override the backend endpoint (default: provider standard URL)
  # base_url: ""

  # Per-request timeout (default: "120s")
  timeout: "{{ .InferenceTimeout }}"

# Review rules
rules:
  # Path to a YAML rules file folded into the review and fix prompts
  # path: ""
`

type configTemplateData struct {
	StateDir          string
	DBPath            string
	WatchDir          string
	WatchExtensions   string
	WatchDebounce     string
	ServerPort        int
	InferenceProvider string
	InferenceModel    string
	InferenceTimeout  string
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	exts := make([]string, 0)
	for _, e := range viper.GetStringSlice("watch.extensions") {
		exts = append(exts, fmt.Sprintf("%q", e))
	}
	data := configTemplateData{
		StateDir:          viper.GetString("state_dir"),
		DBPath:            viper.GetString("db_path"),
		WatchDir:          viper.GetString("watch.dir"),
		WatchExtensions:   strings.Join(exts, ", "),
		WatchDebounce:     viper.GetDuration("watch.debounce").String(),
		ServerPort:        viper.GetInt("server.port"),
		InferenceProvider: viper.GetString("inference.provider"),
		InferenceModel:    viper.GetString("inference.model"),
		InferenceTimeout:  viper.GetDuration("inference.timeout").String(),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	if dryRun {
		ui.DryRunMsg("Would create config file: %s", cfgPath)
		fmt.Fprintln(ui.Out)
		fmt.Fprint(ui.Out, buf.String())
		return nil
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
}

var configKeys = []configKeyInfo{
	{Key: "state_dir", EnvVar: "REVWATCH_STATE_DIR"},
	{Key: "db_path", EnvVar: "REVWATCH_DB_PATH"},
	{Key: "watch.dir", EnvVar: "REVWATCH_WATCH_DIR"},
	{Key: "watch.extensions", EnvVar: "REVWATCH_WATCH_EXTENSIONS"},
	{Key: "watch.debounce", EnvVar: "REVWATCH_WATCH_DEBOUNCE"},
	{Key: "watch.output_dir", EnvVar: "REVWATCH_WATCH_OUTPUT_DIR"},
	{Key: "server.port", EnvVar: "REVWATCH_SERVER_PORT"},
	{Key: "inference.provider", EnvVar: "REVWATCH_INFERENCE_PROVIDER"},
	{Key: "inference.model", EnvVar: "REVWATCH_INFERENCE_MODEL"},
	{Key: "inference.base_url", EnvVar: "REVWATCH_INFERENCE_BASE_URL"},
	{Key: "inference.timeout", EnvVar: "REVWATCH_INFERENCE_TIMEOUT"},
	{Key: "rules.path", EnvVar: "REVWATCH_RULES_PATH"},
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if config file exists
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	// Read config file values to determine file source
	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		val := viper.Get(k.Key)
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-22s %v  %s\n", k.Key, val, source)
	}

	return nil
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set — set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'revwatch config init' first)", cfgPath)
	}

	if dryRun {
		ui.DryRunMsg("Would open %s in %s", cfgPath, editor)
		return nil
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
