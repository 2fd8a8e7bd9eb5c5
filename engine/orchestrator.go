package engine

import (
	"context"
	"errors"
	"time"

	"outreachly/models"
	"outreachly/store"

	"github.com/sirupsen/logrus"
)

// Orchestrator fans a sequence out over a filtered prospect set, creating
// one execution record per prospect not already covered.
type Orchestrator struct {
	records   Persistence
	sequences SequenceSource
	prospects ProspectSource

	log *logrus.Entry
	now func() time.Time
}

func NewOrchestrator(records Persistence, sequences SequenceSource, prospects ProspectSource, log *logrus.Entry) *Orchestrator {
	return &Orchestrator{
		records:   records,
		sequences: sequences,
		prospects: prospects,
		log:       log,
		now:       time.Now,
	}
}

// EnrollmentResult reports what a batch run did. Prospects already
// covered by a non-cancelled execution are counted, not duplicated.
type EnrollmentResult struct {
	SequenceID uint   `json:"sequence_id"`
	Matched    int    `json:"matched"`
	CreatedIDs []uint `json:"created_ids"`
	Created    int    `json:"created"`
	Duplicates int    `json:"duplicates"`
	Failed     int    `json:"failed"`
}

// Enroll creates execution records for every prospect matching the
// filter. Per-prospect failures are isolated; only a missing or inactive
// sequence aborts the run.
func (o *Orchestrator) Enroll(ctx context.Context, sequenceID uint, filter models.ProspectFilter) (*EnrollmentResult, error) {
	seq, err := o.sequences.Get(ctx, sequenceID)
	if err != nil {
		return nil, err
	}
	if !seq.IsActive {
		return nil, ErrSequenceInactive
	}

	now := o.now()
	prospects, err := o.prospects.Match(ctx, filter, now)
	if err != nil {
		return nil, err
	}

	result := &EnrollmentResult{
		SequenceID: sequenceID,
		Matched:    len(prospects),
		CreatedIDs: []uint{},
	}

	for i := range prospects {
		rec, err := o.records.Create(ctx, sequenceID, prospects[i].ID, now)
		switch {
		case err == nil:
			result.CreatedIDs = append(result.CreatedIDs, rec.ID)
			result.Created++
		case errors.Is(err, store.ErrDuplicateExecution):
			result.Duplicates++
			o.log.WithFields(logrus.Fields{
				"sequence_id": sequenceID,
				"prospect_id": prospects[i].ID,
			}).Debug("prospect already enrolled, skipping")
		default:
			result.Failed++
			o.log.WithError(err).WithFields(logrus.Fields{
				"sequence_id": sequenceID,
				"prospect_id": prospects[i].ID,
			}).Error("failed to enroll prospect")
		}
	}

	o.log.WithFields(logrus.Fields{
		"sequence_id": sequenceID,
		"matched":     result.Matched,
		"created":     result.Created,
		"duplicates":  result.Duplicates,
		"failed":      result.Failed,
	}).Info("batch enrollment finished")

	return result, nil
}
