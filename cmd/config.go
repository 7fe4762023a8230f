package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
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
	return filepath.Join(home, ".config", "issuetracker"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage issuetracker configuration.

Running bare 'issuetracker config' is the same as 'issuetracker config show'.`,
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

const configTemplate = `# issuetracker configuration
# See: issuetracker config show (for effective values and sources)

# State directory for PID and log files (default: ~/.config/issuetracker)
# state_dir: {{ .StateDir }}

# SQLite database path (default: ~/.config/issuetracker/issuetracker.db)
# db_path: {{ .DBPath }}

# Storage backend: "sqlite" or "memory" (memory loses data on exit)
store: "{{ .Store }}"

# HTTP port for 'issuetracker serve'
port: {{ .Port }}

log:
  # debug, info, warn, error
  level: "{{ .LogLevel }}"
`

type configTemplateData struct {
	StateDir string
	DBPath   string
	Store    string
	Port     int
	LogLevel string
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// renderConfig fills the config template with the effective values.
func renderConfig() ([]byte, error) {
	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse config template: %w", err)
	}

	var buf bytes.Buffer
	err = tmpl.Execute(&buf, configTemplateData{
		StateDir: viper.GetString("state_dir"),
		DBPath:   viper.GetString("db_path"),
		Store:    viper.GetString("store"),
		Port:     viper.GetInt("port"),
		LogLevel: viper.GetString("log.level"),
	})
	if err != nil {
		return nil, fmt.Errorf("render config template: %w", err)
	}
	return buf.Bytes(), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	_, statErr := os.Stat(cfgPath)
	exists := statErr == nil
	if exists && !configForce {
		return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
	}

	content, err := renderConfig()
	if err != nil {
		return err
	}

	switch {
	case dryRun:
		ui.DryRunMsg("Would write config file: %s", cfgPath)
	case exists:
		ui.Warning("Overwriting %s", cfgPath)
		fallthrough
	default:
		if err := os.MkdirAll(filepath.Dir(cfgPath), 0755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
		if err := os.WriteFile(cfgPath, content, 0644); err != nil {
			return fmt.Errorf("write config file: %w", err)
		}
		ui.Success("Wrote %s", cfgPath)
	}

	fmt.Fprintf(ui.Out, "\n%s", content)
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
}

var configKeys = []configKeyInfo{
	{Key: "state_dir", EnvVar: "ISSUETRACKER_STATE_DIR"},
	{Key: "db_path", EnvVar: "ISSUETRACKER_DB_PATH"},
	{Key: "store", EnvVar: "ISSUETRACKER_STORE"},
	{Key: "port", EnvVar: "ISSUETRACKER_PORT"},
	{Key: "log.level", EnvVar: "ISSUETRACKER_LOG_LEVEL"},
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	inFile := readConfigFileValues(cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		ui.Info("No config file at %s, showing defaults and environment", cfgPath)
	} else {
		ui.Info("Config file: %s", cfgPath)
	}

	table := ui.Table([]string{"Key", "Value", "Source"})
	for _, k := range configKeys {
		_ = table.Append([]string{
			k.Key,
			fmt.Sprint(viper.Get(k.Key)),
			detectSource(k.Key, k.EnvVar, inFile),
		})
	}
	return table.Render()
}

// readConfigFileValues returns the dotted keys set in the YAML file at path.
// A missing or unparsable file sets nothing.
func readConfigFileValues(path string) map[string]bool {
	keys := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return keys
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil || len(doc.Content) == 0 {
		return keys
	}

	collectKeys(doc.Content[0], "", keys)
	return keys
}

// collectKeys records the dotted path of every non-mapping value under n.
func collectKeys(n *yaml.Node, prefix string, keys map[string]bool) {
	if n.Kind != yaml.MappingNode {
		if prefix != "" {
			keys[prefix] = true
		}
		return
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		key := n.Content[i].Value
		if prefix != "" {
			key = prefix + "." + key
		}
		collectKeys(n.Content[i+1], key, keys)
	}
}

// detectSource names where the effective value of key comes from.
func detectSource(key, envVar string, inFile map[string]bool) string {
	switch _, fromEnv := os.LookupEnv(envVar); {
	case fromEnv:
		return "env " + envVar
	case inFile[key]:
		return "file"
	default:
		return "default"
	}
}

// editorCommand builds the command that opens path in $VISUAL or $EDITOR.
// The variable may carry arguments, e.g. "code --wait".
func editorCommand(path string) (*exec.Cmd, error) {
	for _, env := range []string{"VISUAL", "EDITOR"} {
		if fields := strings.Fields(os.Getenv(env)); len(fields) > 0 {
			return exec.Command(fields[0], append(fields[1:], path)...), nil
		}
	}
	return nil, fmt.Errorf("$EDITOR is not set, e.g. export EDITOR=vim")
}

func configEditRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	editor, err := editorCommand(cfgPath)
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config file not found: %s (run 'issuetracker config init' first)", cfgPath)
	}

	if dryRun {
		ui.DryRunMsg("Would run: %s", strings.Join(editor.Args, " "))
		return nil
	}

	editor.Stdin, editor.Stdout, editor.Stderr = os.Stdin, os.Stdout, os.Stderr
	if err := editor.Run(); err != nil {
		return fmt.Errorf("run editor: %w", err)
	}
	return nil
}
