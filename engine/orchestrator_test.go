package engine

import (
	"context"
	"fmt"
	"testing"

	"outreachly/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnrollCreatesOneExecutionPerProspect(t *testing.T) {
	h := newHarness(t, twoStepSequence())
	for i := uint(1); i <= 5; i++ {
		h.addProspect(i, fmt.Sprintf("p%d@acme.test", i))
	}

	orch := NewOrchestrator(h.records, h.sequences, h.prospects, h.exec.log)
	result, err := orch.Enroll(context.Background(), 1, models.ProspectFilter{})
	require.NoError(t, err)

	assert.Equal(t, 5, result.Matched)
	assert.Equal(t, 5, result.Created)
	assert.Len(t, result.CreatedIDs, 5)
	assert.Zero(t, result.Duplicates)
	assert.Zero(t, result.Failed)
}

func TestEnrollSkipsAlreadyEnrolledProspects(t *testing.T) {
	h := newHarness(t, twoStepSequence())
	for i := uint(1); i <= 5; i++ {
		h.addProspect(i, fmt.Sprintf("p%d@acme.test", i))
	}
	h.enroll(t, 1, 3)

	orch := NewOrchestrator(h.records, h.sequences, h.prospects, h.exec.log)
	result, err := orch.Enroll(context.Background(), 1, models.ProspectFilter{})
	require.NoError(t, err)

	assert.Equal(t, 5, result.Matched)
	assert.Equal(t, 4, result.Created)
	assert.Equal(t, 1, result.Duplicates)
	assert.Zero(t, result.Failed)
}

func TestEnrollAgainAfterCancellation(t *testing.T) {
	h := newHarness(t, twoStepSequence())
	h.addProspect(1, "p1@acme.test")
	rec := h.enroll(t, 1, 1)
	_, err := h.records.Cancel(context.Background(), rec.ID)
	require.NoError(t, err)

	orch := NewOrchestrator(h.records, h.sequences, h.prospects, h.exec.log)
	result, err := orch.Enroll(context.Background(), 1, models.ProspectFilter{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Created)
	assert.Zero(t, result.Duplicates)
}

func TestEnrollRejectsInactiveSequence(t *testing.T) {
	seq := twoStepSequence()
	seq.IsActive = false
	h := newHarness(t, seq)
	h.addProspect(1, "p1@acme.test")

	orch := NewOrchestrator(h.records, h.sequences, h.prospects, h.exec.log)
	_, err := orch.Enroll(context.Background(), 1, models.ProspectFilter{})
	assert.ErrorIs(t, err, ErrSequenceInactive)
}

func TestEnrollSkipsUncontactableProspects(t *testing.T) {
	h := newHarness(t, twoStepSequence())
	h.addProspect(1, "p1@acme.test")
	p := h.addProspect(2, "p2@acme.test")
	p.IsDoNotContact = true

	orch := NewOrchestrator(h.records, h.sequences, h.prospects, h.exec.log)
	result, err := orch.Enroll(context.Background(), 1, models.ProspectFilter{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Matched)
	assert.Equal(t, 1, result.Created)
}
