package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/lord-charles/srcc-dashboard-sub000/internal/application/service"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/config"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/container"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/entity"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/infrastructure/auth"
	"github.com/lord-charles/srcc-dashboard-sub000/pkg/database"
	"github.com/lord-charles/srcc-dashboard-sub000/pkg/utils"
)

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "manage the SQLite schema",
		Subcommands: []*cli.Command{
			{
				Name:  "up",
				Usage: "apply all pending migrations",
				Action: func(c *cli.Context) error {
					m, err := migrator(c)
					if err != nil {
						return err
					}
					return m.Up()
				},
			},
			{
				Name:  "down",
				Usage: "roll back migrations",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "steps", Value: 1, Usage: "number of migrations to roll back"},
				},
				Action: func(c *cli.Context) error {
					m, err := migrator(c)
					if err != nil {
						return err
					}
					return m.Down(c.Int("steps"))
				},
			},
			{
				Name:  "version",
				Usage: "print the current schema version",
				Action: func(c *cli.Context) error {
					m, err := migrator(c)
					if err != nil {
						return err
					}
					v, dirty, err := m.Version()
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "version %d dirty=%t\n", v, dirty)
					return nil
				},
			},
		},
	}
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "issue a bearer token for an actor",
		Flags: actorFlags(),
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			actor, err := actorFromFlags(c)
			if err != nil {
				return err
			}
			tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
			if err != nil {
				return err
			}
			token, err := tokens.Issue(actor)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, token)
			return nil
		},
	}
}

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "print dashboard statistics as JSON",
		Flags: actorFlags(),
		Action: func(c *cli.Context) error {
			return withContainer(c, func(ctx context.Context, ct *container.Container, actor entity.Actor) error {
				st, err := ct.Services().Stats.Stats(ctx, actor)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(c.App.Writer)
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			})
		},
	}
}

func exportCommand() *cli.Command {
	flags := append(actorFlags(), &cli.StringFlag{
		Name:     "out",
		Aliases:  []string{"o"},
		Usage:    "output file; - writes to stdout",
		Required: true,
	})
	return &cli.Command{
		Name:  "export",
		Usage: "write the imprest register workbook",
		Flags: flags,
		Action: func(c *cli.Context) error {
			return withContainer(c, func(ctx context.Context, ct *container.Container, actor entity.Actor) error {
				out := c.String("out")
				if out == "-" {
					return ct.Services().Stats.Export(ctx, actor, c.App.Writer)
				}
				return writeFile(out, func(w io.Writer) error {
					return ct.Services().Stats.Export(ctx, actor, w)
				})
			})
		},
	}
}

func resolveCommand() *cli.Command {
	flags := append(actorFlags(),
		&cli.StringFlag{Name: "imprest", Usage: "imprest id", Required: true},
		&cli.StringFlag{Name: "notes", Usage: "resolution notes", Required: true},
	)
	return &cli.Command{
		Name:  "resolve",
		Usage: "resolve a disputed disbursement",
		Flags: flags,
		Action: func(c *cli.Context) error {
			return withContainer(c, func(ctx context.Context, ct *container.Container, actor entity.Actor) error {
				res, err := ct.Services().Imprest.ResolveDispute(ctx, service.Target{
					ImprestID: c.String("imprest"),
					Actor:     actor,
				}, c.String("notes"))
				if err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "%s is now %s (version %d)\n", res.Record.ID, res.Record.Status, res.Record.Version)
				return nil
			})
		},
	}
}

func actorFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "actor-id", Usage: "actor user id", Value: "imprestctl"},
		&cli.StringFlag{Name: "actor-name", Usage: "actor display name", Value: "Operator"},
		&cli.StringFlag{Name: "role", Usage: "employee, hod, accountant or admin", Value: string(entity.RoleAdmin)},
		&cli.StringFlag{Name: "department", Usage: "actor department"},
	}
}

func actorFromFlags(c *cli.Context) (entity.Actor, error) {
	actor := entity.Actor{
		ID:         c.String("actor-id"),
		Name:       c.String("actor-name"),
		Role:       entity.Role(c.String("role")),
		Department: c.String("department"),
	}
	if actor.ID == "" {
		return entity.Actor{}, fmt.Errorf("actor-id is required")
	}
	if !actor.Role.IsValid() {
		return entity.Actor{}, fmt.Errorf("unknown role %q", actor.Role)
	}
	if actor.Role == entity.RoleHOD && actor.Department == "" {
		return entity.Actor{}, fmt.Errorf("a hod needs a department")
	}
	return actor, nil
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func migrator(c *cli.Context) (*database.Migrator, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	if cfg.Database.Path == "" {
		return nil, fmt.Errorf("database.path is empty; the in-memory store has no schema")
	}
	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	return database.NewMigrator(cfg.Database.Path, utils.NewCLILogger()), nil
}

// withContainer runs fn against a started container with background workers off
func withContainer(c *cli.Context, fn func(context.Context, *container.Container, entity.Actor) error) error {
	actor, err := actorFromFlags(c)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	logger := utils.NewCLILogger()
	defer logger.Sync()

	ccfg := cfg.ToContainerConfig()
	ccfg.Worker.Disabled = true

	ct, err := container.NewContainer(ccfg, logger)
	if err != nil {
		return err
	}
	if err := ct.Start(c.Context); err != nil {
		return err
	}
	defer func() {
		if err := ct.Close(); err != nil {
			logger.Warn("Failed to close container", zap.Error(err))
		}
	}()

	return fn(c.Context, ct, actor)
}

func writeFile(path string, fn func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()
	return fn(f)
}
