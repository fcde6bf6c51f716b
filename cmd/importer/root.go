package main

import (
	"context"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/geocoder89/tourhub/internal/config"
	"github.com/geocoder89/tourhub/internal/domain/tour"
	"github.com/geocoder89/tourhub/internal/observability"
	"github.com/geocoder89/tourhub/internal/repo/mongodb"
)

const defaultTimeout = 30 * time.Second

// tourLoader is the slice of the tours store the importer drives.
type tourLoader interface {
	InsertMany(ctx context.Context, tours []tour.Tour) (int, error)
	DeleteAll(ctx context.Context) (int64, error)
}

// openStore connects to the configured database; close releases it.
type openStore func(ctx context.Context) (store tourLoader, close func(context.Context) error, err error)

func NewRootCmd() *cobra.Command {
	return newRootCmd(openMongo)
}

func newRootCmd(open openStore) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:          "importer",
		Short:        "Load or remove development tour data",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().DurationVar(&timeout, "timeout", defaultTimeout, "timeout for database operations (e.g., 30s, 1m)")

	cmd.AddCommand(newImportCmd(open, &timeout))
	cmd.AddCommand(newDeleteCmd(open, &timeout))

	return cmd
}

func newImportCmd(open openStore, timeout *time.Duration) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Insert every tour from a JSON file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tours, err := readTours(file, time.Now().UTC())
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), *timeout)
			defer cancel()

			store, closeFn, err := open(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = closeFn(context.WithoutCancel(ctx)) }()

			n, err := store.InsertMany(ctx, tours)
			if err != nil {
				return oops.In("importer").With("file", file).Wrap(err)
			}

			cmd.Printf("Data successfully inserted (%d tours)\n", n)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "dev-data/tours.json", "JSON array of tours")

	return cmd
}

func newDeleteCmd(open openStore, timeout *time.Duration) *cobra.Command {
	return &cobra.Command{
		Use:   "delete",
		Short: "Remove every tour",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), *timeout)
			defer cancel()

			store, closeFn, err := open(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = closeFn(context.WithoutCancel(ctx)) }()

			n, err := store.DeleteAll(ctx)
			if err != nil {
				return oops.In("importer").Wrap(err)
			}

			cmd.Printf("Data successfully deleted (%d tours)\n", n)
			return nil
		},
	}
}

func openMongo(ctx context.Context) (tourLoader, func(context.Context) error, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, oops.In("importer").Code("CONFIG_INVALID").Wrap(err)
	}

	log := observability.NewLogger(cfg.Env)

	client, err := mongodb.Connect(ctx, cfg.Mongo.URI)
	if err != nil {
		return nil, nil, oops.In("importer").Code("DB_CONNECT_FAILED").With("database", cfg.Mongo.Database).Wrap(err)
	}

	db := client.Database(cfg.Mongo.Database)
	if err := mongodb.EnsureIndexes(ctx, db); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, oops.In("importer").Code("INDEXES_FAILED").Wrap(err)
	}

	log.Info("connected", "database", cfg.Mongo.Database, "env", cfg.Env)

	return mongodb.NewToursRepo(db, nil), client.Disconnect, nil
}
