package main

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bookpost/internal/clock"
	"github.com/smallbiznis/bookpost/internal/config"
	"github.com/smallbiznis/bookpost/internal/migration"
	"github.com/smallbiznis/bookpost/internal/observability"
	"github.com/smallbiznis/bookpost/internal/server"
	"github.com/smallbiznis/bookpost/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the posting API",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(
				// Core Infrastructure
				config.Module,
				observability.Module,
				fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
					return &fxevent.ZapLogger{Logger: log.Named("fx")}
				}),
				fx.Provide(RegisterSnowflake),
				db.Module,
				clock.Module,
				migration.Module,

				// Functional Domains
				server.Module,
			)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
}

func newMigrateCommand() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(
				config.Module,
				observability.Module,
				fx.NopLogger,
				db.Module,
				fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
					if err := migration.Apply(conn); err != nil {
						return err
					}
					log.Info("schema migrations applied", zap.String("type", cfg.DBType))
					return nil
				}),
			)
			if err := app.Err(); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := app.Start(ctx); err != nil {
				return err
			}
			return app.Stop(ctx)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "time allowed for connecting and migrating")
	return cmd
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
