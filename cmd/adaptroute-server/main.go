package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/semantrix/adaptroute/internal/server"
)

// Version information, set at build time with -ldflags.
var (
	version   = "dev"
	commitSHA = "unknown"
	buildTime = "unknown"
)

func main() {
	configFile := flag.String("config", "config.yaml", "Path to configuration file")
	envFile := flag.String("env-file", ".env", "Path to an optional .env file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("adaptroute version %s\n", version)
		fmt.Printf("Commit: %s\n", commitSHA)
		fmt.Printf("Built: %s\n", buildTime)
		os.Exit(0)
	}

	if err := loadEnvFile(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load env file: %v\n", err)
		os.Exit(1)
	}

	config, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	server.Version = version

	srv, err := server.NewServer(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create server: %v\n", err)
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start server: %v\n", err)
		os.Exit(1)
	}

	srv.WaitForShutdown()
}

// loadEnvFile loads key=value pairs into the process environment. A missing
// file is not an error; variables already set are left alone.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

// loadConfig loads configuration from file and environment variables.
func loadConfig(configFile string) (*server.Config, error) {
	viper.SetConfigFile(configFile)
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("ADAPTROUTE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Conventional provider variables work without the prefix.
	for _, provider := range []string{"openai", "gemini", "deepseek"} {
		key := fmt.Sprintf("providers.%s.api_key", provider)
		envName := strings.ToUpper(provider) + "_API_KEY"
		if err := viper.BindEnv(key, "ADAPTROUTE_PROVIDERS_"+strings.ToUpper(provider)+"_API_KEY", envName); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", envName, err)
		}
	}

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		fmt.Println("Config file not found, using defaults")
	}

	var config server.Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default values for configuration.
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 120*time.Second)
	viper.SetDefault("server.idle_timeout", 60*time.Second)
	viper.SetDefault("server.shutdown_timeout", 10*time.Second)

	// Dispatch defaults
	viper.SetDefault("dispatch.mode", "development")
	viper.SetDefault("dispatch.provider", "")
	viper.SetDefault("dispatch.model", "gpt-3.5-turbo")
	viper.SetDefault("dispatch.temperature", 0.7)
	viper.SetDefault("dispatch.max_tokens", 1000)
	viper.SetDefault("dispatch.stream", false)
	viper.SetDefault("dispatch.timeout", 30*time.Second)
	viper.SetDefault("dispatch.max_retries", 2)
	viper.SetDefault("dispatch.retry_base_delay", 1*time.Second)
	viper.SetDefault("dispatch.platform", "")

	// Provider defaults
	viper.SetDefault("providers.openai.base_url", "https://api.openai.com/v1")
	viper.SetDefault("providers.gemini.base_url", "https://generativelanguage.googleapis.com/v1beta")
	viper.SetDefault("providers.deepseek.base_url", "https://api.deepseek.com/v1")

	viper.SetDefault("proxy.url", "")
	viper.SetDefault("proxy.timeout", 60*time.Second)

	// Observability defaults
	viper.SetDefault("observability.logging.level", "info")
	viper.SetDefault("observability.logging.format", "json")
	viper.SetDefault("observability.logging.output_path", "logs/app.log")
	viper.SetDefault("observability.logging.error_path", "logs/error.log")
	viper.SetDefault("observability.logging.max_size_mb", 100)
	viper.SetDefault("observability.logging.max_backups", 5)
	viper.SetDefault("observability.logging.max_age_days", 30)
	viper.SetDefault("observability.logging.development", false)

	viper.SetDefault("observability.metrics.enabled", true)
	viper.SetDefault("observability.metrics.port", 9090)
	viper.SetDefault("observability.metrics.path", "/metrics")

	viper.SetDefault("observability.tracing.enabled", false)
	viper.SetDefault("observability.tracing.service_name", "adaptroute")
	viper.SetDefault("observability.tracing.environment", "development")
}
