package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/maelgoujon/moodle-resource-downloader/pkg/extractor"
	"github.com/maelgoujon/moodle-resource-downloader/pkg/logging"
	"github.com/maelgoujon/moodle-resource-downloader/pkg/quiz"
)

var (
	ErrMissingCredentials = errors.New("missing Moodle credentials")
	ErrMissingURL         = errors.New("missing Moodle URL")
)

// Config holds application configuration loaded from a config file, the
// environment (MOODLE_ prefix), .env, credentials.txt and command flags.
type Config struct {
	LoginURL           string `mapstructure:"login_url"`           // e.g. https://moodle.example.com/login/index.php
	CourseURL          string `mapstructure:"course_url"`          // e.g. https://moodle.example.com/course/view.php?id=123
	OutputDir          string `mapstructure:"out"`                 // root of the downloaded tree
	Username           string `mapstructure:"username"`            // Moodle account
	Password           string `mapstructure:"-"`                   // never read from the config file
	CredentialsFile    string `mapstructure:"credentials_file"`    // username=/password= lines
	RulesFile          string `mapstructure:"rules_file"`          // optional YAML quiz rule set
	LowercaseQuestions bool   `mapstructure:"lowercase_questions"` // emit lower-cased question keys
	GitSnapshot        bool   `mapstructure:"git_snapshot"`        // commit the output tree after a run
	Sidecars           bool   `mapstructure:"sidecars"`            // write .txt sidecars for downloads
	ServeAddr          string `mapstructure:"serve_addr"`          // listen address of the extraction API

	HTTP    HTTP                   `mapstructure:"http"`
	Quiz    Quiz                   `mapstructure:"quiz"`
	Extract extractor.EngineConfig `mapstructure:"extract"`
	Log     logging.LogConfig      `mapstructure:"log"`
}

// HTTP configures the Moodle session.
type HTTP struct {
	Timeout           time.Duration `mapstructure:"timeout"`
	DownloadTimeout   time.Duration `mapstructure:"download_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	UserAgent         string        `mapstructure:"user_agent"`
}

// Quiz configures attempt page fetching.
type Quiz struct {
	PageConcurrency int `mapstructure:"page_concurrency"`
}

func setDefaults(v *viper.Viper) {
	// Keys without a default are still registered so AutomaticEnv reaches them.
	v.SetDefault("login_url", "")
	v.SetDefault("course_url", "")
	v.SetDefault("username", "")
	v.SetDefault("rules_file", "")
	v.SetDefault("out", "downloaded_resources")
	v.SetDefault("credentials_file", "credentials.txt")
	v.SetDefault("lowercase_questions", false)
	v.SetDefault("git_snapshot", false)
	v.SetDefault("sidecars", true)
	v.SetDefault("serve_addr", ":8080")

	v.SetDefault("http.timeout", "20s")
	v.SetDefault("http.download_timeout", "120s")
	v.SetDefault("http.requests_per_second", 4.0)
	v.SetDefault("http.burst", 4)
	v.SetDefault("http.user_agent", "Mozilla/5.0 (X11; Linux x86_64; rv:144.0) Gecko/20100101 Firefox/144.0")

	v.SetDefault("quiz.page_concurrency", 4)

	ext := extractor.DefaultEngineConfig()
	v.SetDefault("extract.ocr_language", ext.OCRLanguage)
	v.SetDefault("extract.max_pdf_pages", ext.MaxPDFPages)
	v.SetDefault("extract.max_file_size", ext.MaxFileSize)

	lc := logging.DefaultLogConfig()
	v.SetDefault("log.level", lc.Level)
	v.SetDefault("log.format", lc.Format)
	v.SetDefault("log.output_file", lc.OutputFile)
	v.SetDefault("log.console", lc.Console)
}

// flagKeys maps command line flags onto nested configuration keys. Other
// flags bind to their name with dashes turned into underscores.
var flagKeys = map[string]string{
	"rules":       "rules_file",
	"lowercase":   "lowercase_questions",
	"credentials": "credentials_file",
	"addr":        "serve_addr",
	"concurrency": "quiz.page_concurrency",
	"rps":         "http.requests_per_second",
	"log-level":   "log.level",
	"log-file":    "log.output_file",
	"log-format":  "log.format",
}

func flagKey(name string) string {
	if k, ok := flagKeys[name]; ok {
		return k
	}
	return strings.ReplaceAll(name, "-", "_")
}

// Load reads configuration. configFile may be empty, in which case
// moodle-dl.yaml is looked up in the working directory. Flags, when given,
// take precedence over every other source.
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env: %w", err)
	}

	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("moodle-dl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	setDefaults(v)

	v.SetEnvPrefix("MOODLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("password", "MOODLE_PASSWORD")

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			if bindErr == nil {
				bindErr = v.BindPFlag(flagKey(f.Name), f)
			}
		})
		if bindErr != nil {
			return nil, fmt.Errorf("error binding flags: %w", bindErr)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error loading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	cfg.Password = v.GetString("password")

	if err := cfg.loadCredentialsFile(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadCredentialsFile fills credentials still missing from a dotenv style
// file with username= and password= lines.
func (c *Config) loadCredentialsFile() error {
	if c.CredentialsFile == "" || (c.Username != "" && c.Password != "") {
		return nil
	}
	values, err := godotenv.Read(c.CredentialsFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("error reading %s: %w", c.CredentialsFile, err)
	}
	if c.Username == "" {
		c.Username = values["username"]
	}
	if c.Password == "" {
		c.Password = values["password"]
	}
	return nil
}

// RequireCourse checks the URLs needed to crawl a course. A missing login
// URL is derived from the course URL's host.
func (c *Config) RequireCourse() error {
	if c.CourseURL == "" {
		return fmt.Errorf("%w: course_url", ErrMissingURL)
	}
	if c.LoginURL == "" {
		u, err := url.Parse(c.CourseURL)
		if err != nil || u.Host == "" {
			return fmt.Errorf("%w: login_url", ErrMissingURL)
		}
		c.LoginURL = (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/login/index.php"}).String()
	}
	return nil
}

// QuizRules compiles the configured rule set, or the defaults when no rules
// file is set.
func (c *Config) QuizRules() (*quiz.Rules, error) {
	rs := quiz.DefaultRuleSet()
	if c.RulesFile != "" {
		var err error
		if rs, err = quiz.LoadRuleSet(c.RulesFile); err != nil {
			return nil, err
		}
	}
	return rs.Compile()
}
