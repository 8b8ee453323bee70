package main

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/xflo/internal/logging"
	"github.com/hrygo/xflo/internal/profile"
	"github.com/hrygo/xflo/internal/version"
)

var (
	rootCmd = &cobra.Command{
		Use:   "xflo",
		Short: `A terminal chat client that keeps every conversation thread locally and streams replies as they arrive.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Systemd units provide their environment explicitly.
			if !isRunningAsSystemdService() {
				_ = godotenv.Load()
			}
			_, err := logging.Setup(os.Stderr, viper.GetString("log-format"), viper.GetString("log-level"))
			return err
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			instanceProfile, err := loadProfile()
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), instanceProfile)
			if err != nil {
				return err
			}
			defer a.Close()

			return newREPL(a.session, a.store, os.Stdin, os.Stdout).Run(cmd.Context())
		},
		SilenceUsage: true,
	}
)

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("transport", "sse")
	viper.SetDefault("port", 28082)
	viper.SetDefault("log-level", "warn")
	viper.SetDefault("log-format", "text")

	flags := rootCmd.PersistentFlags()
	flags.String("mode", "dev", `mode of the client, can be "prod" or "dev"`)
	flags.String("data", "", "data directory")
	flags.String("driver", "sqlite", "thread storage driver (sqlite, postgres, memory)")
	flags.String("dsn", "", "database source name(aka. DSN)")
	flags.String("api-url", "", "base URL of the chat backend")
	flags.String("transport", "sse", "reply transport (sse, websocket, openai)")
	flags.String("model", "", "model bound to new threads")
	flags.String("title-url", "", "title endpoint, defaults to <api-url>/api/generate-title")
	flags.String("prompt-dir", "", "directory holding title.yaml prompt overrides")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")
	flags.String("addr", "", "address of the title service")
	flags.Int("port", 28082, "port of the title service")
	flags.Bool("metrics", false, "expose /metrics on the title service")

	for _, key := range []string{
		"mode", "data", "driver", "dsn", "api-url", "transport", "model", "title-url",
		"prompt-dir", "log-level", "log-format", "addr", "port", "metrics",
	} {
		if err := viper.BindPFlag(key, flags.Lookup(key)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("xflo")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	rootCmd.AddCommand(serveCmd, threadsCmd, exportCmd, versionCmd)
}

// loadProfile assembles the profile from flags, XFLO_* variables and the
// remaining environment.
func loadProfile() (*profile.Profile, error) {
	instanceProfile := &profile.Profile{
		Mode:          viper.GetString("mode"),
		Data:          viper.GetString("data"),
		Driver:        viper.GetString("driver"),
		DSN:           viper.GetString("dsn"),
		APIURL:        viper.GetString("api-url"),
		Transport:     viper.GetString("transport"),
		Model:         viper.GetString("model"),
		TitleAPIURL:   viper.GetString("title-url"),
		PromptDir:     viper.GetString("prompt-dir"),
		LogLevel:      viper.GetString("log-level"),
		LogFormat:     viper.GetString("log-format"),
		Addr:          viper.GetString("addr"),
		Port:          viper.GetInt("port"),
		MetricsEnable: viper.GetBool("metrics"),
		Version:       version.String(),
	}
	instanceProfile.FromEnv()
	if err := instanceProfile.Validate(); err != nil {
		return nil, err
	}
	slog.Debug("profile loaded",
		"driver", instanceProfile.Driver,
		"transport", instanceProfile.Transport,
		"api_url", instanceProfile.APIURL)
	return instanceProfile, nil
}

func printGreetings(profile *profile.Profile, addr net.Addr) {
	fmt.Printf("xflo title service %s started successfully!\n", profile.Version)

	if profile.IsDev() {
		fmt.Fprint(os.Stderr, "Development mode is enabled\n")
	}

	fmt.Printf("Title model: %s\n", profile.LLMTitleModel)
	fmt.Printf("Mode: %s\n", profile.Mode)
	if addr != nil {
		fmt.Printf("Listening on %s\n", addr)
	}
	fmt.Printf("Endpoint: POST /api/generate-title\n")
	if profile.MetricsEnable {
		fmt.Printf("Metrics: GET /metrics\n")
	}
	fmt.Println()
}

// isRunningAsSystemdService detects if the process is running under systemd
func isRunningAsSystemdService() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("WATCHDOG_USEC") != ""
}

// printDatabaseError provides user-friendly error messages for storage failures
func printDatabaseError(err error, profile *profile.Profile) {
	fmt.Fprintln(os.Stderr, "\nThread storage could not be opened")
	fmt.Fprintln(os.Stderr, strings.Repeat("-", 40))

	errMsg := err.Error()
	switch {
	case strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "no such host"):
		fmt.Fprintln(os.Stderr, "\nPostgreSQL is not reachable.")
		fmt.Fprintf(os.Stderr, "\n   Check --dsn, or keep threads locally:\n")
		fmt.Fprintf(os.Stderr, "   xflo --driver=sqlite --data=./data\n")

	case strings.Contains(errMsg, "SSL is not enabled") || strings.Contains(errMsg, "sslmode"):
		fmt.Fprintln(os.Stderr, "\nPostgreSQL SSL configuration mismatch.")
		fmt.Fprintf(os.Stderr, "\n   Add ?sslmode=disable to your DSN.\n")

	case strings.Contains(errMsg, "password authentication failed"):
		fmt.Fprintln(os.Stderr, "\nPostgreSQL authentication failed.")
		fmt.Fprintf(os.Stderr, "\n   Check your credentials in the DSN or .env file.\n")

	case strings.Contains(errMsg, "permission denied") || strings.Contains(errMsg, "readonly"):
		fmt.Fprintln(os.Stderr, "\nPermission denied.")
		if profile.Driver == "sqlite" {
			fmt.Fprintf(os.Stderr, "\n   Check that %s is writable.\n", profile.Data)
		}

	default:
		fmt.Fprintln(os.Stderr, "\nError:", errMsg)
	}

	if _, statErr := os.Stat(".env"); statErr == nil {
		fmt.Fprintf(os.Stderr, "\nFound .env file - configuration loaded from current directory.\n")
	}
	fmt.Fprintln(os.Stderr, strings.Repeat("-", 40))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
