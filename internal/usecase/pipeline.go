package usecase

import (
	"context"
	"fmt"

	"GoPredict/internal/domain/models"
	"GoPredict/internal/service/merge"
	"GoPredict/internal/service/upstream"

	"golang.org/x/sync/errgroup"
)

// Fetcher performs one upstream GET per url key.
type Fetcher interface {
	Fetch(ctx context.Context, key string) (*upstream.Payload, error)
}

// Pipeline produces the full record list of one dataset.
type Pipeline struct {
	Dataset models.DatasetKey
	// NotifyKind names the notification kind; empty disables scanning.
	NotifyKind string
	Load       func(ctx context.Context) ([]models.Record, error)
}

// DailyPipeline fetches predictions and opportunities together and merges
// them. The dataset is only produced when both fetches succeed.
func DailyPipeline(f Fetcher, predictionsKey, opportunitiesKey string) *Pipeline {
	return &Pipeline{
		Dataset:    models.DatasetDailyPredictions,
		NotifyKind: models.DatasetDailyPredictions.Kind(),
		Load: func(ctx context.Context) ([]models.Record, error) {
			var predictions, opportunities []models.Record
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				rs, err := fetchRecords(gctx, f, predictionsKey)
				predictions = rs
				return err
			})
			g.Go(func() error {
				rs, err := fetchRecords(gctx, f, opportunitiesKey)
				if err != nil {
					return fmt.Errorf("%w: %s: %w", models.ErrMergeIncomplete, opportunitiesKey, err)
				}
				opportunities = rs
				return nil
			})
			if err := g.Wait(); err != nil {
				return nil, err
			}
			return merge.Merge(predictions, opportunities), nil
		},
	}
}

// IntradayPipeline fetches and flattens the intraday feed.
func IntradayPipeline(f Fetcher, key string) *Pipeline {
	return &Pipeline{
		Dataset:    models.DatasetIntradayPredictions,
		NotifyKind: models.DatasetIntradayPredictions.Kind(),
		Load: func(ctx context.Context) ([]models.Record, error) {
			p, err := f.Fetch(ctx, key)
			if err != nil {
				return nil, err
			}
			return upstream.DecodeIntraday(p)
		},
	}
}

// TradebookPipeline fetches the tradebook. Tradebook rows raise no
// notifications.
func TradebookPipeline(f Fetcher, key string) *Pipeline {
	return &Pipeline{
		Dataset: models.DatasetTradebook,
		Load: func(ctx context.Context) ([]models.Record, error) {
			return fetchRecords(ctx, f, key)
		},
	}
}

func fetchRecords(ctx context.Context, f Fetcher, key string) ([]models.Record, error) {
	p, err := f.Fetch(ctx, key)
	if err != nil {
		return nil, err
	}
	return upstream.DecodeRecords(p)
}
