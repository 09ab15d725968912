// Package cli defines the scaffold command line: serve runs the HTTP server
// and openapi prints the generated API document.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"github.com/akave-ai/scaffold/internal/config"
	"github.com/akave-ai/scaffold/internal/logger"
	"github.com/akave-ai/scaffold/internal/openapi"
	"github.com/akave-ai/scaffold/internal/server"
)

const name = "scaffold"

// overridden during build with ldflags
var version = "dev"

// New returns the root command. serve is the default subcommand.
func New() *cli.Command {
	return &cli.Command{
		Name:           name,
		Usage:          "HTTP API scaffold",
		Version:        version,
		DefaultCommand: "serve",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env-file",
				Value: ".env",
				Usage: "dotenv file loaded before the environment is read; a missing file is ignored",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			return ctx, loadEnvFile(cmd.String("env-file"))
		},
		Commands: []*cli.Command{
			serveCmd(),
			openapiCmd(),
		},
	}
}

func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getwd: %w", err)
	}
	return config.LoadConfig(cwd)
}

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP server until SIGINT or SIGTERM",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := logger.New(cfg.Observability)
			srv, err := server.New(cfg, log)
			if err != nil {
				return fmt.Errorf("build server: %w", err)
			}
			return srv.Run(ctx)
		},
	}
}

func openapiCmd() *cli.Command {
	return &cli.Command{
		Name:  "openapi",
		Usage: "Print the OpenAPI document",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Value:   "json",
				Usage:   "output format (json, yaml)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			encode, err := encoder(cmd.String("format"))
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			doc, err := server.Document(cfg)
			if err != nil {
				return err
			}
			out, err := encode(doc)
			if err != nil {
				return err
			}
			_, err = cmd.Root().Writer.Write(out)
			return err
		},
	}
}

func encoder(format string) (func(*openapi3.T) ([]byte, error), error) {
	switch format {
	case "json":
		return openapi.JSON, nil
	case "yaml", "yml":
		return openapi.YAML, nil
	default:
		return nil, fmt.Errorf("invalid format %q: must be json or yaml", format)
	}
}
