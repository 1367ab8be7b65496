package main

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/civicworks/coachtool/config"
	"github.com/civicworks/coachtool/internal/ingest"
	"github.com/civicworks/coachtool/internal/llm"
	"github.com/civicworks/coachtool/internal/store"
)

func ingestCMD() *cobra.Command {
	var cfgPath string
	var manifestPath string
	var dryRun bool
	var clear bool

	var cmd = &cobra.Command{
		Use:   "ingest",
		Short: "Ingest manifest documents into the knowledge base",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			if manifestPath == "" {
				manifestPath = cfg.Ingest.ManifestPath
			}
			if manifestPath == "" {
				return fmt.Errorf("manifest path not set (--manifest or ingest.manifest_path)")
			}
			manifest, err := ingest.LoadManifest(manifestPath)
			if err != nil {
				return err
			}

			logger := log.New(log.Writer(), "[INGEST] ", log.LstdFlags)
			ctx := context.Background()

			p := &ingest.Pipeline{
				Logger:   logger,
				Config:   cfg.Ingest,
				Chunking: cfg.Chunking,
				DryRun:   dryRun,
			}

			if !dryRun {
				provider, err := llm.NewProvider(cfg.LLM)
				if err != nil {
					return err
				}
				p.Embedder = provider

				dsn, err := cfg.Storage.Postgres.DSN()
				if err != nil {
					return err
				}
				if err := store.Migrate("", dsn, "up", 0); err != nil {
					return fmt.Errorf("applying migrations: %w", err)
				}
				st, err := store.NewWithDSN(ctx, dsn)
				if err != nil {
					return err
				}
				defer st.Close()
				p.Store = st
				p.CaseStudies = st

				if clear {
					logger.Printf("--clear: emptying knowledge base before ingest")
					if err := st.ClearAll(ctx); err != nil {
						return err
					}
				}

				classifier := &ingest.Classifier{
					Provider: provider,
					Model:    cfg.LLM.Routing.ModelFor("questions"),
					CacheTTL: cfg.Ingest.CacheTTL,
					Logger:   logger,
				}
				summarizer := &ingest.Summarizer{
					Provider: provider,
					Model:    cfg.LLM.Routing.ModelFor("questions"),
					CacheTTL: cfg.Ingest.CacheTTL,
					Logger:   logger,
				}
				if addr := cfg.Storage.Redis.Addr(); addr != "" {
					rdb := redis.NewClient(&redis.Options{
						Addr:     addr,
						Password: cfg.Storage.Redis.Password,
						DB:       cfg.Storage.Redis.DB,
					})
					if err := rdb.Ping(ctx).Err(); err != nil {
						logger.Printf("redis unavailable, caches disabled: %v", err)
					} else {
						p.Cache = rdb
						classifier.Cache = rdb
						summarizer.Cache = rdb
					}
				}
				p.Classifier = classifier
				p.Summarizer = summarizer
			}

			_, err = p.Run(ctx, manifest)
			return err
		},
	}
	cmd.Flags().StringVar(&manifestPath, "manifest", "", "manifest JSON path (overrides ingest.manifest_path)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report chunk stats without writing")
	cmd.Flags().BoolVar(&clear, "clear", false, "empty the knowledge base before ingesting (the server rebuilds its index from the store at startup)")
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return cmd
}
