package planner

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"

	"github.com/google/uuid"

	api "github.com/fleetdeck/fleetdeck/api/v1"
	"github.com/fleetdeck/fleetdeck/internal/store/model"
)

// Assignment is one planned job: a device, the ordered records it will
// iterate, and the initial chain context (pool draws).
type Assignment struct {
	DeviceID  uuid.UUID
	RecordIDs []uuid.UUID
	Context   map[string]any
}

// PlanInput carries everything allocation needs. Records are the primary
// collection in stored order, before filtering. Devices are the campaign's
// enrollment, in enrollment order.
type PlanInput struct {
	Campaign *model.Campaign
	Records  model.DataRecordList
	Devices  []uuid.UUID
}

type PlanResult struct {
	Assignments       []Assignment
	NothingToDispatch bool
	Reason            string
}

type Planner struct {
	pools PoolSource
}

func New(pools PoolSource) *Planner {
	return &Planner{pools: pools}
}

// Plan decides record allocation once, up front. Devices never contend for
// records at runtime; they only contend for whole jobs.
func (p *Planner) Plan(ctx context.Context, input PlanInput) (*PlanResult, error) {
	campaign := input.Campaign

	if len(input.Devices) == 0 {
		return &PlanResult{NothingToDispatch: true, Reason: "no enrolled devices"}, nil
	}

	hasData := campaignHasData(campaign)
	eligible := eligibleRecords(campaign, input.Records)
	if hasData && len(eligible) == 0 {
		return &PlanResult{NothingToDispatch: true, Reason: "no eligible records"}, nil
	}

	shares, err := p.distribute(campaign, eligible, input.Devices)
	if err != nil {
		return nil, err
	}

	assignments := expandShares(campaign, shares, hasData)
	if len(assignments) == 0 {
		return &PlanResult{NothingToDispatch: true, Reason: "no records assigned to any device"}, nil
	}

	if err := p.resolvePools(ctx, campaign, assignments); err != nil {
		return nil, err
	}

	return &PlanResult{Assignments: assignments}, nil
}

func campaignHasData(campaign *model.Campaign) bool {
	return campaign.DataConfig != nil && campaign.DataConfig.Data.Primary.CollectionID != ""
}

func eligibleRecords(campaign *model.Campaign, records model.DataRecordList) model.DataRecordList {
	var filter api.RecordFilter
	if campaign.RecordFilter != nil {
		filter = campaign.RecordFilter.Data
	}

	eligible := make(model.DataRecordList, 0, len(records))
	for _, record := range records {
		if filter.ExcludeUsed && record.Used {
			continue
		}
		if !matchesEquals(record, filter.Equals) {
			continue
		}
		eligible = append(eligible, record)
		if filter.Limit > 0 && len(eligible) == filter.Limit {
			break
		}
	}
	return eligible
}

func matchesEquals(record model.DataRecord, equals map[string]string) bool {
	for field, want := range equals {
		got := record.Field(field)
		if got == nil || fmt.Sprint(got) != want {
			return false
		}
	}
	return true
}

// deviceShare is the per-device record set before batching.
type deviceShare struct {
	deviceID uuid.UUID
	records  []uuid.UUID
}

func (p *Planner) distribute(campaign *model.Campaign, records model.DataRecordList, devices []uuid.UUID) ([]deviceShare, error) {
	shares := make([]deviceShare, len(devices))
	for i, id := range devices {
		shares[i] = deviceShare{deviceID: id}
	}

	switch api.StringToDeviceStrategy(campaign.DeviceStrategy) {
	case api.DeviceStrategyManual:
		if campaign.DeviceRecordAssignments == nil {
			return nil, fmt.Errorf("manual strategy requires device record assignments")
		}
		assignments := campaign.DeviceRecordAssignments.Data
		for i := range shares {
			for _, raw := range assignments[shares[i].deviceID.String()] {
				recordID, err := uuid.Parse(raw)
				if err != nil {
					return nil, fmt.Errorf("manual assignment for device %s: invalid record id %q", shares[i].deviceID, raw)
				}
				shares[i].records = append(shares[i].records, recordID)
			}
		}

	case api.DeviceStrategyRandom:
		shuffled := make([]uuid.UUID, 0, len(records))
		for _, record := range records {
			shuffled = append(shuffled, record.ID)
		}
		rng := rand.New(rand.NewSource(campaignSeed(campaign.ID, "")))
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})

		// contiguous near-equal slices: the first len%n devices take one extra
		base := len(shuffled) / len(devices)
		extra := len(shuffled) % len(devices)
		offset := 0
		for i := range shares {
			size := base
			if i < extra {
				size++
			}
			shares[i].records = shuffled[offset : offset+size]
			offset += size
		}

	default: // round robin
		for i, record := range records {
			share := &shares[i%len(shares)]
			share.records = append(share.records, record.ID)
		}
	}

	return shares, nil
}

// expandShares applies per-record repeats and splits parallel campaigns into
// batch-sized assignments. Sequential campaigns keep one assignment per
// device and iterate records inside the job.
func expandShares(campaign *model.Campaign, shares []deviceShare, hasData bool) []Assignment {
	repeat := campaign.RepeatPerRecord
	if repeat < 1 {
		repeat = 1
	}
	batchSize := campaign.RecordsPerBatch
	if batchSize < 1 {
		batchSize = 1
	}
	parallel := api.StringToExecutionMode(campaign.ExecutionMode) == api.ExecutionModeParallel

	assignments := make([]Assignment, 0, len(shares))
	for _, share := range shares {
		if hasData && len(share.records) == 0 {
			continue
		}

		expanded := make([]uuid.UUID, 0, len(share.records)*repeat)
		for _, recordID := range share.records {
			for n := 0; n < repeat; n++ {
				expanded = append(expanded, recordID)
			}
		}

		if parallel && len(expanded) > 0 {
			for start := 0; start < len(expanded); start += batchSize {
				end := start + batchSize
				if end > len(expanded) {
					end = len(expanded)
				}
				assignments = append(assignments, Assignment{
					DeviceID:  share.deviceID,
					RecordIDs: expanded[start:end],
				})
			}
			continue
		}

		assignments = append(assignments, Assignment{
			DeviceID:  share.deviceID,
			RecordIDs: expanded,
		})
	}
	return assignments
}

// campaignSeed derives a stable per-campaign seed so planning the same
// campaign twice allocates identically.
func campaignSeed(id uuid.UUID, salt string) int64 {
	h := fnv.New64a()
	h.Write([]byte(id.String()))
	if salt != "" {
		h.Write([]byte(salt))
	}
	return int64(h.Sum64())
}
