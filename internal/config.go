package internal

import (
	"context"
	"embed"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// AppName names the XDG directories and the env prefix
const AppName = "tubetalk"

// CommandRunner executes external commands
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// DefaultCommandRunner implements CommandRunner
type DefaultCommandRunner struct{}

func (r *DefaultCommandRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.CombinedOutput()
}

// Sources for metadata and transcripts
const (
	SourceWeb   = "web"
	SourceYTDLP = "ytdlp"
)

// Config holds application settings
type Config struct {
	// Model
	ModelAPIKey  string
	ModelAPIBase string
	Model        string
	ModelTimeout time.Duration
	SystemPrompt string
	Prompt       string

	// Content cache; empty means no cache
	DatabaseURL string

	// Retrieval
	Source         string
	RequestTimeout time.Duration
	RateLimit      float64
	RateBurst      int
	Retries        int
	Languages      []string
	ProxyURL       string
	Workers        int
	Timestamps     bool

	FallbackWhisper bool
	WhisperTimeout  time.Duration

	ListenAddr string
	Verbose    bool
	Quiet      bool
	LogFile    string

	// Fixed XDG paths (not configurable)
	ConfigDir    string
	DataDir      string
	CacheDir     string
	TempDir      string
	SubtitlesDir string
}

//go:embed config.toml prompt.txt
var defaultFS embed.FS

// WhisperLimit is the maximum file size accepted by OpenAI's Whisper API (25 MiB)
const WhisperLimit int64 = 25 << 20

// DefaultSystemPrompt is used when system_prompt is not configured
const DefaultSystemPrompt = `You are an expert assistant that answers questions about YouTube videos.
When YouTube content is provided it contains video titles, channels, descriptions and full transcripts.
Ground your answers in that content, quote the transcript when useful and mention timestamps when they are given.
If the content does not answer the question, say so.`

// ensureDefaultFile checks if a file exists in the specified directory
// and creates it from the embedded default if it doesn't exist
func ensureDefaultFile(configDir, embedFilename, description string) error {
	filePath := filepath.Join(configDir, embedFilename)

	if FileExists(filePath) {
		return nil
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	defaultContent, err := defaultFS.ReadFile(embedFilename)
	if err != nil {
		return fmt.Errorf("reading embedded default %s: %w", description, err)
	}

	if err := os.WriteFile(filePath, defaultContent, 0644); err != nil {
		return fmt.Errorf("writing default %s: %w", description, err)
	}

	return nil
}

// EnsureDefaultConfig creates config.toml in the config directory if it doesn't exist
func EnsureDefaultConfig(configDir string) error {
	return ensureDefaultFile(configDir, "config.toml", "configuration")
}

// EnsureDefaultPrompt creates prompt.txt in the config directory if it doesn't exist
func EnsureDefaultPrompt(configDir string) error {
	return ensureDefaultFile(configDir, "prompt.txt", "prompt template")
}

// newViper sets defaults, config file lookup and environment bindings.
// configFile, when set, wins over TUBETALK_CONFIG and the search paths.
func newViper(configDir, configFile string) *viper.Viper {
	v := viper.New()

	v.SetDefault("model", "gpt-4o-mini")
	v.SetDefault("model_api_base", "")
	v.SetDefault("model_timeout", 2*time.Minute)
	v.SetDefault("system_prompt", "")
	v.SetDefault("prompt", "") // if empty will use prompt.txt
	v.SetDefault("database_url", "")
	v.SetDefault("source", SourceWeb)
	v.SetDefault("request_timeout", 30*time.Second)
	v.SetDefault("rate_limit", 5.0)
	v.SetDefault("rate_burst", 5)
	v.SetDefault("retries", 2)
	v.SetDefault("languages", []string{"en"})
	v.SetDefault("proxy_url", "")
	v.SetDefault("workers", 4)
	v.SetDefault("timestamps", true)
	v.SetDefault("fallback_whisper", false)
	v.SetDefault("whisper_timeout", 10*time.Minute)
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("verbose", false)
	v.SetDefault("quiet", false)
	v.SetDefault("log_file", "")

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")
	if configFile == "" {
		configFile = os.Getenv("TUBETALK_CONFIG")
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	v.SetEnvPrefix(strings.ToUpper(AppName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("model_api_key", "TUBETALK_MODEL_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("database_url", "TUBETALK_DATABASE_URL", "DATABASE_URL", "NEON_YOUTUBE_DATABASE_URL")
	_ = v.BindEnv("proxy_url", "TUBETALK_PROXY_URL", "YOUTUBE_PROXY_URL")

	return v
}

// configFromViper copies settings out of v and fills in the XDG paths
func configFromViper(v *viper.Viper, configDir, dataDir, cacheDir string) *Config {
	return &Config{
		ModelAPIKey:  v.GetString("model_api_key"),
		ModelAPIBase: v.GetString("model_api_base"),
		Model:        v.GetString("model"),
		ModelTimeout: v.GetDuration("model_timeout"),
		SystemPrompt: v.GetString("system_prompt"),
		Prompt:       v.GetString("prompt"),

		DatabaseURL: strings.TrimSpace(v.GetString("database_url")),

		Source:         strings.ToLower(v.GetString("source")),
		RequestTimeout: v.GetDuration("request_timeout"),
		RateLimit:      v.GetFloat64("rate_limit"),
		RateBurst:      v.GetInt("rate_burst"),
		Retries:        v.GetInt("retries"),
		Languages:      v.GetStringSlice("languages"),
		ProxyURL:       v.GetString("proxy_url"),
		Workers:        v.GetInt("workers"),
		Timestamps:     v.GetBool("timestamps"),

		FallbackWhisper: v.GetBool("fallback_whisper"),
		WhisperTimeout:  v.GetDuration("whisper_timeout"),

		ListenAddr: v.GetString("listen_addr"),
		Verbose:    v.GetBool("verbose"),
		Quiet:      v.GetBool("quiet"),
		LogFile:    v.GetString("log_file"),

		ConfigDir:    configDir,
		DataDir:      dataDir,
		CacheDir:     cacheDir,
		TempDir:      filepath.Join(cacheDir, "temp_chunks"),
		SubtitlesDir: filepath.Join(cacheDir, "subtitles"),
	}
}

// InitConfig initializes Viper and loads configuration. configFile is the
// value of --config and may be empty.
func InitConfig(configFile string) *Config {
	// XDG standard directories
	configDir := filepath.Join(xdg.ConfigHome, AppName)
	dataDir := filepath.Join(xdg.DataHome, AppName)
	cacheDir := filepath.Join(xdg.CacheHome, AppName)

	v := newViper(configDir, configFile)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Warning: Error reading config file: %v\n", err)
		}
	}

	config := configFromViper(v, configDir, dataDir, cacheDir)
	config.applyDefaults()
	return config
}

// applyDefaults repairs zero or nonsensical values
func (c *Config) applyDefaults() {
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.ModelTimeout <= 0 {
		c.ModelTimeout = 2 * time.Minute
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.Retries < 0 {
		c.Retries = 0
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 1
	}
	if len(c.Languages) == 0 {
		c.Languages = []string{"en"}
	}
	if c.Source == "" {
		c.Source = SourceWeb
	}
	if c.SystemPrompt == "" {
		c.SystemPrompt = DefaultSystemPrompt
	}
}

// Validate checks settings that every command depends on
func (c *Config) Validate() error {
	switch c.Source {
	case SourceWeb, SourceYTDLP:
	default:
		return fmt.Errorf("unknown source %q (expected %s or %s)", c.Source, SourceWeb, SourceYTDLP)
	}
	if c.ModelAPIBase == "" {
		if err := ValidateModel(c.Model); err != nil {
			return err
		}
	}
	return nil
}

// ValidateForModel checks everything needed to talk to the model
func (c *Config) ValidateForModel() error {
	if err := ValidateModelAPIKey(c.ModelAPIKey); err != nil {
		return err
	}
	return c.Validate()
}
