package main

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/osvaldoandrade/typhoonlens/pkg/domain"
)

type ui struct {
	title func(a ...any) string
	ok    func(a ...any) string
	info  func(a ...any) string
	warn  func(a ...any) string
	err   func(a ...any) string
	dim   func(a ...any) string
}

const (
	defaultBaseURL        = "http://localhost:8080"
	defaultTimeoutSeconds = 120
)

type profile struct {
	BaseURL        string `yaml:"baseUrl"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
}

type cliConfig struct {
	CurrentProfile string             `yaml:"currentProfile"`
	Profiles       map[string]profile `yaml:"profiles"`
}

// errReported marks a failure whose message was already printed.
var errReported = errors.New("reported")

func newUI() *ui {
	return &ui{
		title: color.New(color.FgHiCyan, color.Bold).SprintFunc(),
		ok:    color.New(color.FgGreen, color.Bold).SprintFunc(),
		info:  color.New(color.FgCyan).SprintFunc(),
		warn:  color.New(color.FgYellow).SprintFunc(),
		err:   color.New(color.FgRed, color.Bold).SprintFunc(),
		dim:   color.New(color.FgHiBlack).SprintFunc(),
	}
}

type globals struct {
	baseURL     string
	timeout     int
	profileName string
	logLevel    string
}

func (g *globals) logger() *slog.Logger {
	var level slog.Level
	switch strings.ToLower(g.logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func (g *globals) httpTimeout() time.Duration {
	if g.timeout <= 0 {
		return defaultTimeoutSeconds * time.Second
	}
	return time.Duration(g.timeout) * time.Second
}

func main() {
	g := &globals{
		baseURL:     getenv("TYPHOONLENS_BASE_URL", defaultBaseURL),
		timeout:     getenvInt("TYPHOONLENS_TIMEOUT_SECONDS", defaultTimeoutSeconds),
		profileName: getenv("TYPHOONLENS_PROFILE", ""),
		logLevel:    getenv("TYPHOONLENS_LOG_LEVEL", "warn"),
	}
	ui := newUI()

	root := &cobra.Command{
		Use:   "typhoonlens",
		Short: "typhoonlens CLI",
		Long:  "typhoonlens CLI: pair a CCTV still with a typhoon bulletin and get an impact report.",
	}
	root.SetHelpTemplate(helpTemplate(ui))
	root.SilenceUsage = true
	root.SilenceErrors = true

	root.PersistentFlags().StringVar(&g.baseURL, "base-url", g.baseURL, "Base URL of the analysis service")
	root.PersistentFlags().IntVar(&g.timeout, "timeout", g.timeout, "Request timeout in seconds")
	root.PersistentFlags().StringVar(&g.profileName, "profile", g.profileName, "Config profile")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", g.logLevel, "Log level: debug|info|warn|error")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		active := resolveProfileName(g.profileName, cfg)
		prof := cfg.Profiles[active]

		flags := cmd.Flags()
		if !flags.Changed("base-url") && strings.TrimSpace(os.Getenv("TYPHOONLENS_BASE_URL")) == "" && prof.BaseURL != "" {
			g.baseURL = prof.BaseURL
		}
		if !flags.Changed("timeout") && strings.TrimSpace(os.Getenv("TYPHOONLENS_TIMEOUT_SECONDS")) == "" && prof.TimeoutSeconds > 0 {
			g.timeout = prof.TimeoutSeconds
		}
		if !flags.Changed("profile") && g.profileName == "" {
			g.profileName = active
		}
		return nil
	}

	root.AddCommand(initCmd(g, ui))
	root.AddCommand(analyzeCmd(g, ui))
	root.AddCommand(sessionCmd(g, ui))

	if err := root.Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, ui.err("[ERROR]"), userMessage(err))
		}
		os.Exit(1)
	}
}

// userMessage keeps internal error detail out of the terminal unless it is
// meant for the user.
func userMessage(err error) string {
	var de *domain.Error
	if errors.As(err, &de) && de.Kind != domain.KindUser {
		return domain.FailurePlaceholder
	}
	return err.Error()
}

func initCmd(g *globals, ui *ui) *cobra.Command {
	var (
		baseURL  string
		timeout  int
		noPrompt bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize CLI config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cfgPath, err := loadConfig()
			if err != nil {
				return err
			}
			active := resolveProfileName(g.profileName, cfg)
			prof := cfg.Profiles[active]

			if baseURL == "" {
				baseURL = firstNonEmpty(prof.BaseURL, g.baseURL, defaultBaseURL)
			}
			if timeout <= 0 {
				timeout = prof.TimeoutSeconds
			}
			if timeout <= 0 {
				timeout = defaultTimeoutSeconds
			}

			if !noPrompt {
				reader := bufio.NewReader(os.Stdin)
				baseURL = prompt(reader, "Base URL", baseURL)
				if v, err := strconv.Atoi(prompt(reader, "Timeout seconds", strconv.Itoa(timeout))); err == nil && v > 0 {
					timeout = v
				}
			}

			prof.BaseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
			prof.TimeoutSeconds = timeout

			if cfg.Profiles == nil {
				cfg.Profiles = map[string]profile{}
			}
			cfg.Profiles[active] = prof
			if cfg.CurrentProfile == "" || cmd.Flags().Changed("profile") {
				cfg.CurrentProfile = active
			}

			if err := saveConfig(cfg, cfgPath); err != nil {
				return err
			}
			fmt.Printf("%s Initialized profile '%s' at %s\n", ui.ok("[OK]"), active, cfgPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Base URL of the analysis service")
	cmd.Flags().IntVar(&timeout, "timeout", 0, "Request timeout in seconds")
	cmd.Flags().BoolVar(&noPrompt, "no-prompt", false, "Disable interactive prompts")
	return cmd
}

func helpTemplate(ui *ui) string {
	title := ui.title("typhoonlens")
	return fmt.Sprintf(`%s: typhoon impact reports from a CCTV still and a bulletin

Usage:
  {{.UseLine}}

Commands:
{{range .Commands}}{{if (or .IsAvailableCommand .IsAdditionalHelpTopicCommand)}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}

Flags:
  {{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

Global Flags:
  {{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}

Config:
  %s

Examples:
  typhoonlens init --base-url http://localhost:8080
  typhoonlens analyze --image cctv.jpg --report bulletin.pdf
  typhoonlens analyze --image cctv.jpg --report bulletin.pdf --html report.html
  typhoonlens session

`, title, configPath())
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func configPath() string {
	if v := strings.TrimSpace(os.Getenv("TYPHOONLENS_CONFIG_DIR")); v != "" {
		return filepath.Join(v, "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return filepath.Join(home, ".typhoonlens", "config.yaml")
}

func loadConfig() (cliConfig, string, error) {
	path := configPath()
	var cfg cliConfig
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cliConfig{Profiles: map[string]profile{}}, path, nil
		}
		return cfg, path, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, path, err
	}
	if cfg.Profiles == nil {
		cfg.Profiles = map[string]profile{}
	}
	return cfg, path, nil
}

func saveConfig(cfg cliConfig, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func resolveProfileName(flag string, cfg cliConfig) string {
	if strings.TrimSpace(flag) != "" {
		return strings.TrimSpace(flag)
	}
	if v := strings.TrimSpace(os.Getenv("TYPHOONLENS_PROFILE")); v != "" {
		return v
	}
	if cfg.CurrentProfile != "" {
		return cfg.CurrentProfile
	}
	return "default"
}

func prompt(r *bufio.Reader, label, def string) string {
	if def != "" {
		fmt.Printf("%s [%s]: ", label, def)
	} else {
		fmt.Printf("%s: ", label)
	}
	line, _ := r.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return def
	}
	return line
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
