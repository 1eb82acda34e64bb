package cmd

import (
	"context"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"mining-coordinator/core"
)

var migrateCmd = &cobra.Command{
	Use:          "migrate",
	Short:        "Create the database schema",
	RunE:         migrateCmdF,
	SilenceUsage: true,
}

func init() {
	RootCmd.AddCommand(migrateCmd)
}

func migrateCmdF(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	initLogger(cfg.Logger)

	ctx := context.Background()
	pg, err := core.NewPostgres(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer pg.Close()

	if err := pg.CreateSchema(ctx); err != nil {
		return err
	}
	log.Infof("Schema ready on %s/%s", *cfg.Postgres.Address, *cfg.Postgres.Database)
	return nil
}
