package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shubhsaxena/catalog-search/internal/distributor"
	"github.com/shubhsaxena/catalog-search/internal/kafka"
	"github.com/shubhsaxena/catalog-search/internal/models"
	"github.com/shubhsaxena/catalog-search/internal/store"
)

type pullOptions struct {
	query    string
	vendor   string
	pages    int
	pageSize int
	publish  bool
}

// sink receives one page of distributor records.
type sink interface {
	write(ctx context.Context, recs []models.ProductRecord) (int, error)
	close() error
}

type storeSink struct{ db *store.DB }

func (s storeSink) write(ctx context.Context, recs []models.ProductRecord) (int, error) {
	return s.db.UpsertProducts(ctx, recs)
}

func (s storeSink) close() error { return s.db.Close() }

type topicSink struct{ producer *kafka.Producer }

func (s topicSink) write(ctx context.Context, recs []models.ProductRecord) (int, error) {
	events := changeEvents(recs, time.Now().UTC())
	if len(events) == 0 {
		return 0, nil
	}
	if err := s.producer.PublishBatch(ctx, events); err != nil {
		return 0, err
	}
	return len(events), nil
}

func (s topicSink) close() error { return s.producer.Close() }

func newPullCmd(opts *globalOptions) *cobra.Command {
	po := &pullOptions{}
	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Seed the mirror from the distributor catalog",
		Example: `  catalog-sync pull --query laptop --pages 5
  catalog-sync pull --query monitor --vendor dell --publish`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if po.query == "" {
				return fmt.Errorf("--query is required")
			}
			if po.pages < 1 {
				return fmt.Errorf("--pages must be at least 1")
			}
			e, err := opts.load()
			if err != nil {
				return err
			}
			defer e.logger.Sync()

			var out sink
			if po.publish {
				if len(e.cfg.Kafka.Brokers) == 0 {
					return fmt.Errorf("--publish needs kafka brokers in the config")
				}
				out = topicSink{producer: kafka.NewProducer(e.cfg.Kafka, e.logger)}
			} else {
				db, err := store.Open(e.cfg.Database, e.logger)
				if err != nil {
					return fmt.Errorf("opening product mirror: %w", err)
				}
				if err := db.EnsureSchema(cmd.Context()); err != nil {
					db.Close()
					return fmt.Errorf("creating schema: %w", err)
				}
				out = storeSink{db: db}
			}
			defer out.close()

			if po.pageSize <= 0 {
				po.pageSize = e.cfg.Search.KeywordPageSize
			}
			dist := distributor.NewClient(e.cfg.Distributor, e.logger)
			written, err := pull(cmd.Context(), dist, out, po, e.logger)
			if err != nil {
				return err
			}
			cmd.Printf("pulled %d products\n", written)
			return nil
		},
	}
	cmd.Flags().StringVarP(&po.query, "query", "q", "", "catalog search keywords")
	cmd.Flags().StringVar(&po.vendor, "vendor", "", "restrict to one vendor")
	cmd.Flags().IntVar(&po.pages, "pages", 1, "number of catalog pages to fetch")
	cmd.Flags().IntVar(&po.pageSize, "page-size", 0, "records per page (default from config)")
	cmd.Flags().BoolVar(&po.publish, "publish", false, "publish change events instead of writing the mirror")
	return cmd
}

type catalogSearcher interface {
	Search(ctx context.Context, p distributor.SearchParams) (*distributor.CatalogPage, error)
}

func pull(ctx context.Context, src catalogSearcher, out sink, po *pullOptions, logger *zap.Logger) (int, error) {
	written := 0
	for page := 1; page <= po.pages; page++ {
		res, err := src.Search(ctx, distributor.SearchParams{
			Query:    po.query,
			Vendor:   po.vendor,
			Page:     page,
			PageSize: po.pageSize,
		})
		if err != nil {
			return written, fmt.Errorf("fetching page %d: %w", page, err)
		}
		if res.EmptyPage || len(res.Records) == 0 {
			break
		}
		n, err := out.write(ctx, res.Records)
		if err != nil {
			return written, fmt.Errorf("writing page %d: %w", page, err)
		}
		written += n
		logger.Info("catalog page pulled",
			zap.Int("page", page),
			zap.Int("records", len(res.Records)),
			zap.Int("written", n),
		)
		if page*po.pageSize >= res.Total {
			break
		}
	}
	return written, nil
}

func changeEvents(recs []models.ProductRecord, now time.Time) []*models.ChangeEvent {
	events := make([]*models.ChangeEvent, 0, len(recs))
	for i := range recs {
		if recs[i].PartNumber == "" {
			continue
		}
		rec := recs[i]
		events = append(events, &models.ChangeEvent{
			ID:         uuid.NewString(),
			Type:       models.ChangeUpsert,
			PartNumber: rec.PartNumber,
			Product:    &rec,
			Source:     "catalog-sync",
			Timestamp:  now,
		})
	}
	return events
}
