package planner

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	api "github.com/fleetdeck/fleetdeck/api/v1"
	"github.com/fleetdeck/fleetdeck/internal/store"
	"github.com/fleetdeck/fleetdeck/internal/store/model"
)

// PoolSource fetches the records backing a variable pool.
type PoolSource interface {
	CollectionRecords(ctx context.Context, collectionID uuid.UUID) (model.DataRecordList, error)
}

type storePoolSource struct {
	store store.Store
}

func NewStorePoolSource(s store.Store) PoolSource {
	return &storePoolSource{store: s}
}

func (p *storePoolSource) CollectionRecords(ctx context.Context, collectionID uuid.UUID) (model.DataRecordList, error) {
	return p.store.Data().ListRecords(ctx, store.NewRecordQueryFilter().ByCollectionID(collectionID))
}

// resolvePools draws each configured pool once per assignment and merges the
// values into the assignment context under "pools.<name>". Draws advance a
// per-pool cursor across assignments: sequential pools hand out successive
// windows in collection order, random pools successive windows of one seeded
// shuffle. Exhausted pools wrap around.
func (p *Planner) resolvePools(ctx context.Context, campaign *model.Campaign, assignments []Assignment) error {
	if campaign.DataConfig == nil || len(campaign.DataConfig.Data.Pools) == 0 {
		return nil
	}

	type poolState struct {
		config api.PoolConfig
		values []any
		cursor int
	}

	pools := make([]*poolState, 0, len(campaign.DataConfig.Data.Pools))
	for _, cfg := range campaign.DataConfig.Data.Pools {
		collectionID, err := uuid.Parse(cfg.CollectionID)
		if err != nil {
			return fmt.Errorf("pool %q: invalid collection id %q", cfg.Name, cfg.CollectionID)
		}

		records, err := p.pools.CollectionRecords(ctx, collectionID)
		if err != nil {
			return fmt.Errorf("pool %q: %w", cfg.Name, err)
		}
		if len(records) == 0 {
			return fmt.Errorf("pool %q: collection %s has no records", cfg.Name, cfg.CollectionID)
		}

		values := make([]any, 0, len(records))
		for _, record := range records {
			values = append(values, record.Field(cfg.Field))
		}

		if cfg.Mode == api.PoolModeRandom {
			rng := rand.New(rand.NewSource(campaignSeed(campaign.ID, cfg.Name)))
			rng.Shuffle(len(values), func(a, b int) {
				values[a], values[b] = values[b], values[a]
			})
		}

		pools = append(pools, &poolState{config: cfg, values: values})
	}

	for i := range assignments {
		if assignments[i].Context == nil {
			assignments[i].Context = make(map[string]any)
		}
		for _, pool := range pools {
			count := pool.config.Count
			if count < 1 {
				count = 1
			}

			drawn := make([]any, 0, count)
			for n := 0; n < count; n++ {
				drawn = append(drawn, pool.values[pool.cursor%len(pool.values)])
				pool.cursor++
			}

			key := "pools." + pool.config.Name
			if count == 1 {
				assignments[i].Context[key] = drawn[0]
			} else {
				assignments[i].Context[key] = drawn
			}
		}
	}

	return nil
}
