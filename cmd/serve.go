package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"

	"chat-relay/internal/config"
	"chat-relay/internal/logging"
	providerfactory "chat-relay/internal/provider/factory"
	"chat-relay/internal/router"
	"chat-relay/internal/server"
)

const serveUsage = `Usage:
  chat-relay serve [--config <path>] [--port <port>] [--env-file <path>]

Flags:
  --config   string   Path to YAML configuration file (optional)
  --port     int      Override server port from configuration
  --env-file string   Environment file loaded before configuration (default ".env")`

const defaultEnvFile = ".env"

func serve(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("serve", flag.ContinueOnError)
	fset.Usage = func() {
		fmt.Fprintln(os.Stderr, serveUsage)
	}

	var cfgPath, envFile string
	var overridePort int
	fset.StringVar(&cfgPath, "config", "", "path to configuration file")
	fset.IntVar(&overridePort, "port", 0, "override server port")
	fset.StringVar(&envFile, "env-file", defaultEnvFile, "path to environment file")

	if err := fset.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("parse serve flags: %w", err)
	}

	if err := loadEnvFile(envFile); err != nil {
		return err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	if overridePort != 0 {
		if overridePort < 0 || overridePort > 65535 {
			return fmt.Errorf("port override %d must be a valid TCP port", overridePort)
		}
		cfg.Server.Port = overridePort
	}

	logging.Setup(cfg.Logging, os.Stderr)

	upstream, err := providerfactory.New(cfg.Upstream)
	if err != nil {
		return err
	}

	rt, err := router.New(upstream)
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, rt)
	if err != nil {
		return err
	}

	return srv.Run(ctx)
}

// loadEnvFile loads variables without overriding ones already set. A missing default file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && path == defaultEnvFile {
			return nil
		}
		return fmt.Errorf("load env file %q: %w", path, err)
	}
	return nil
}
