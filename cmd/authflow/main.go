// Package main provides the authflow command line client. It signs a user in through the
// identity provider configured in config.yaml using the authorization code flow with PKCE.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/router-for-me/authflow/internal/cmd"
	"github.com/router-for-me/authflow/internal/config"
	"github.com/router-for-me/authflow/internal/logging"
	"github.com/router-for-me/authflow/sdk/authflow"
	log "github.com/sirupsen/logrus"
)

var (
	Version = "dev"
	Commit  = "none"
)

func init() {
	logging.SetupBaseLogger()
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("authflow", flag.ContinueOnError)
	var (
		configPath  string
		envFile     string
		profile     string
		noBrowser   bool
		paste       bool
		useTUI      bool
		printURL    bool
		exchangeURL string
		logout      bool
		asJSON      bool
		showToken   bool
		verbose     bool
		quiet       bool
		showVersion bool
	)
	fs.StringVar(&configPath, "config", "config.yaml", "Configuration file path (YAML or TOML)")
	fs.StringVar(&envFile, "env-file", ".env", "Environment file loaded before the configuration")
	fs.StringVar(&profile, "profile", "default", "Profile name; each profile has its own pending login")
	fs.BoolVar(&noBrowser, "no-browser", false, "Print the login URL instead of opening a browser")
	fs.BoolVar(&paste, "paste", false, "Read the redirect URL from stdin instead of listening on the redirect URI")
	fs.BoolVar(&useTUI, "tui", false, "Show an interactive progress screen")
	fs.BoolVar(&printURL, "print-url", false, "Start a login and print the authorization URL, then exit")
	fs.StringVar(&exchangeURL, "exchange", "", "Finish a login started with -print-url using the redirect URL")
	fs.BoolVar(&logout, "logout", false, "Discard any pending login of the profile")
	fs.BoolVar(&asJSON, "json", false, "Print the result as JSON")
	fs.BoolVar(&showToken, "show-token", false, "Print the raw access token")
	fs.BoolVar(&verbose, "verbose", false, "Enable debug logging")
	fs.BoolVar(&quiet, "quiet", false, "Only log fatal errors")
	fs.BoolVar(&showVersion, "version", false, "Print the version and exit")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if showVersion {
		fmt.Printf("authflow %s (%s)\n", Version, Commit)
		return 0
	}

	if errLoad := godotenv.Load(envFile); errLoad != nil && !errors.Is(errLoad, os.ErrNotExist) {
		log.WithError(errLoad).Warn("failed to load .env file")
	}

	cfg, err := config.LoadConfigOptional(configPath, filepath.Base(configPath) == "config.yaml")
	if err != nil {
		log.Errorf("failed to load config: %v", err)
		return authflow.ErrParseFailed.Code
	}
	warnings, err := config.ValidateConfig(cfg)
	if err != nil {
		log.Errorf("invalid config: %v", err)
		return authflow.ErrParseFailed.Code
	}
	for _, w := range warnings {
		log.Warn(w)
	}
	if err = logging.ConfigureLogOutput(cfg); err != nil {
		log.Errorf("failed to configure log output: %v", err)
		return 1
	}
	switch {
	case verbose:
		logging.SetLogLevel("debug")
	case quiet:
		logging.SetLogLevel("quiet")
	}
	if useTUI && !cfg.LoggingToFile {
		// Log lines would tear the TUI; it shows them from the ring buffer instead.
		logging.SetOutput(io.Discard)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := &cmd.LoginOptions{
		Profile:   profile,
		NoBrowser: noBrowser,
		Paste:     paste,
		TUI:       useTUI,
		JSON:      asJSON,
		ShowToken: showToken,
	}

	switch {
	case logout:
		err = cmd.DoLogout(ctx, cfg, opts)
	case printURL:
		err = cmd.DoPrintURL(ctx, cfg, opts)
	case exchangeURL != "":
		err = cmd.DoExchange(ctx, cfg, exchangeURL, opts)
	default:
		err = cmd.DoLogin(ctx, cfg, opts)
	}
	if err != nil {
		log.WithField("kind", authflow.KindOf(err)).Debugf("command failed: %v", err)
		fmt.Fprintln(os.Stderr, authflow.UserFriendlyMessage(err))
		return cmd.ExitCode(err)
	}
	return 0
}
