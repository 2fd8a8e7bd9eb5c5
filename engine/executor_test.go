package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"outreachly/config"
	"outreachly/models"
	"outreachly/store"
	"outreachly/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakePersistence mirrors the store's CAS semantics in memory.
type fakePersistence struct {
	mu     sync.Mutex
	recs   map[uint]*models.ExecutionRecord
	nextID uint
}

func newFakePersistence() *fakePersistence {
	return &fakePersistence{recs: make(map[uint]*models.ExecutionRecord)}
}

func cloneRecord(r *models.ExecutionRecord) *models.ExecutionRecord {
	c := *r
	c.CompletedSteps = append([]models.CompletedStep(nil), r.CompletedSteps...)
	if r.NextMessageDueAt != nil {
		c.NextMessageDueAt = utils.Pointer(*r.NextMessageDueAt)
	}
	if r.CompletedAt != nil {
		c.CompletedAt = utils.Pointer(*r.CompletedAt)
	}
	return &c
}

func (f *fakePersistence) Create(ctx context.Context, sequenceID, prospectID uint, now time.Time) (*models.ExecutionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, r := range f.recs {
		if r.SequenceID == sequenceID && r.ProspectID == prospectID && r.Status != models.ExecutionCancelled {
			return nil, store.ErrDuplicateExecution
		}
	}

	f.nextID++
	rec := &models.ExecutionRecord{
		Model:            gorm.Model{ID: f.nextID},
		SequenceID:       sequenceID,
		ProspectID:       prospectID,
		Status:           models.ExecutionActive,
		StartedAt:        now,
		NextMessageDueAt: utils.Pointer(now),
		CompletedSteps:   []models.CompletedStep{},
	}
	f.recs[rec.ID] = rec
	return cloneRecord(rec), nil
}

func (f *fakePersistence) Get(ctx context.Context, id uint) (*models.ExecutionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.recs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (f *fakePersistence) Due(ctx context.Context, now time.Time, limit int) ([]models.ExecutionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var due []models.ExecutionRecord
	for _, r := range f.recs {
		if r.Status == models.ExecutionActive && r.NextMessageDueAt != nil && !r.NextMessageDueAt.After(now) {
			due = append(due, *cloneRecord(r))
			if len(due) == limit {
				break
			}
		}
	}
	return due, nil
}

func (f *fakePersistence) ConditionalUpdate(ctx context.Context, rec *models.ExecutionRecord, expectedVersion int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	cur, ok := f.recs[rec.ID]
	if !ok {
		return store.ErrNotFound
	}
	if cur.Version != expectedVersion {
		return store.ErrVersionConflict
	}
	rec.Version = expectedVersion + 1
	f.recs[rec.ID] = cloneRecord(rec)
	return nil
}

func (f *fakePersistence) Cancel(ctx context.Context, id uint) (*models.ExecutionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.recs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !rec.Terminal() {
		rec.Status = models.ExecutionCancelled
		rec.Version++
	}
	return cloneRecord(rec), nil
}

// markResponded flips the last completed step like the store does on an
// inbound reply, bumping the version.
func (f *fakePersistence) markResponded(id uint, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec := f.recs[id]
	if len(rec.CompletedSteps) == 0 {
		return
	}
	last := &rec.CompletedSteps[len(rec.CompletedSteps)-1]
	last.Response = models.StepResponse{Received: true, ReceivedAt: utils.Pointer(at)}
	rec.Version++
}

type fakeSequences struct {
	seqs map[uint]*models.SequenceDefinition
}

func (f *fakeSequences) Get(ctx context.Context, id uint) (*models.SequenceDefinition, error) {
	seq, ok := f.seqs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return seq, nil
}

type fakeProspects struct {
	mu        sync.Mutex
	prospects map[uint]*models.Prospect
	touched   []uint
}

func (f *fakeProspects) Get(ctx context.Context, id uint) (*models.Prospect, error) {
	p, ok := f.prospects[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return p, nil
}

func (f *fakeProspects) Match(ctx context.Context, filter models.ProspectFilter, now time.Time) ([]models.Prospect, error) {
	var out []models.Prospect
	for _, p := range f.prospects {
		if p.Contactable() {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeProspects) TouchLastContact(ctx context.Context, id uint, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched = append(f.touched, id)
	return nil
}

type fakeEngagement struct {
	events map[uint][]models.EngagementEvent
}

func (f *fakeEngagement) EventsFor(ctx context.Context, prospectID uint) ([]models.EngagementEvent, error) {
	return f.events[prospectID], nil
}

type fakeDeliveries struct {
	mu         sync.Mutex
	deliveries []models.Delivery
}

func (f *fakeDeliveries) RecordDelivery(ctx context.Context, d *models.Delivery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deliveries = append(f.deliveries, *d)
	return nil
}

type fakeGenerator struct {
	calls int
	fail  bool
}

func (f *fakeGenerator) Generate(ctx context.Context, step *models.SequenceStep, prospect *models.Prospect) (string, error) {
	f.calls++
	if f.fail {
		return "", errors.New("generator down")
	}
	return fmt.Sprintf("Hi %s", prospect.FirstName), nil
}

func TestGenerationFailureRetriesLater(t *testing.T) {
	h := newHarness(t, twoStepSequence())
	h.addProspect(100, "ada@acme.test")
	rec := h.enroll(t, 1, 100)
	h.generator.fail = true

	advanced, err := h.exec.Process(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.False(t, advanced)
	assert.Empty(t, h.sender.sent)

	got, _ := h.records.Get(context.Background(), rec.ID)
	assert.Equal(t, 1, got.RetryCount)
	assert.Contains(t, got.LastError, "generator down")
}

type sentMessage struct {
	ProspectID     uint
	Subject        string
	Content        string
	IdempotencyKey string
}

type fakeSender struct {
	mu         sync.Mutex
	sent       []sentMessage
	failNext   int
	beforeSend func()
}

func (f *fakeSender) Send(ctx context.Context, prospect *models.Prospect, subject, content, idempotencyKey string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failNext > 0 {
		f.failNext--
		return "", errors.New("smtp unavailable")
	}
	if f.beforeSend != nil {
		f.beforeSend()
	}
	f.sent = append(f.sent, sentMessage{
		ProspectID:     prospect.ID,
		Subject:        subject,
		Content:        content,
		IdempotencyKey: idempotencyKey,
	})
	return "msg-" + idempotencyKey, nil
}

type harness struct {
	exec       *Executor
	records    *fakePersistence
	sequences  *fakeSequences
	prospects  *fakeProspects
	engagement *fakeEngagement
	deliveries *fakeDeliveries
	generator  *fakeGenerator
	sender     *fakeSender
	now        time.Time
}

func twoStepSequence() *models.SequenceDefinition {
	return &models.SequenceDefinition{
		Model:    gorm.Model{ID: 1},
		Name:     "Intro",
		IsActive: true,
		Steps: []models.SequenceStep{
			{Model: gorm.Model{ID: 10}, StepNumber: 0, MessageType: models.MessageTypeInitial, Tone: models.ToneFriendly, DelayDays: 0, Template: "hello"},
			{Model: gorm.Model{ID: 11}, StepNumber: 1, MessageType: models.MessageTypeFollowup, Tone: models.ToneFriendly, DelayDays: 3, Template: "following up"},
		},
	}
}

func newHarness(t *testing.T, seq *models.SequenceDefinition) *harness {
	t.Helper()

	h := &harness{
		records:    newFakePersistence(),
		sequences:  &fakeSequences{seqs: map[uint]*models.SequenceDefinition{seq.ID: seq}},
		prospects:  &fakeProspects{prospects: map[uint]*models.Prospect{}},
		engagement: &fakeEngagement{events: map[uint][]models.EngagementEvent{}},
		deliveries: &fakeDeliveries{},
		generator:  &fakeGenerator{},
		sender:     &fakeSender{},
		now:        time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}

	h.exec = NewExecutor(
		h.records, h.sequences, h.prospects, h.engagement, h.deliveries,
		h.generator, h.sender, NewLocalLocker(),
		config.EngineConfig{
			WorkerCount:      2,
			DueBatchSize:     50,
			ConditionRetry:   time.Hour,
			MaxStepRetries:   3,
			RetryBackoffBase: 15 * time.Minute,
			RetryBackoffMax:  24 * time.Hour,
		},
		utils.NewLogger("executor-test"),
	)
	h.exec.now = func() time.Time { return h.now }
	return h
}

func (h *harness) addProspect(id uint, email string) *models.Prospect {
	p := &models.Prospect{
		Model:     gorm.Model{ID: id},
		Email:     email,
		FirstName: "Ada",
		LastName:  "Lovelace",
		Company:   "Acme",
		Status:    "new",
	}
	h.prospects.prospects[id] = p
	return p
}

func (h *harness) enroll(t *testing.T, sequenceID, prospectID uint) *models.ExecutionRecord {
	t.Helper()
	rec, err := h.records.Create(context.Background(), sequenceID, prospectID, h.now)
	require.NoError(t, err)
	return rec
}

func TestProcessAdvancesDueStep(t *testing.T) {
	h := newHarness(t, twoStepSequence())
	h.addProspect(100, "ada@acme.test")
	rec := h.enroll(t, 1, 100)

	advanced, err := h.exec.Process(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.True(t, advanced)

	got, err := h.records.Get(context.Background(), rec.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, got.CurrentStepIndex)
	assert.Equal(t, models.ExecutionActive, got.Status)
	require.Len(t, got.CompletedSteps, got.CurrentStepIndex)
	assert.Equal(t, uint(10), got.CompletedSteps[0].StepID)
	assert.NotEmpty(t, got.CompletedSteps[0].MessageID)
	assert.Empty(t, got.AttemptID)

	require.NotNil(t, got.NextMessageDueAt)
	assert.Equal(t, h.now.AddDate(0, 0, 3), *got.NextMessageDueAt)

	require.Len(t, h.sender.sent, 1)
	assert.Equal(t, uint(100), h.sender.sent[0].ProspectID)
	require.Len(t, h.deliveries.deliveries, 1)
	assert.Equal(t, rec.ID, h.deliveries.deliveries[0].ExecutionID)
	assert.Equal(t, []uint{100}, h.prospects.touched)
}

func TestProcessCompletesSequenceOnLastStep(t *testing.T) {
	seq := twoStepSequence()
	seq.Steps = seq.Steps[:1]
	h := newHarness(t, seq)
	h.addProspect(100, "ada@acme.test")
	rec := h.enroll(t, 1, 100)

	advanced, err := h.exec.Process(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.True(t, advanced)

	got, _ := h.records.Get(context.Background(), rec.ID)
	assert.Equal(t, models.ExecutionCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)
	assert.Nil(t, got.NextMessageDueAt)
	assert.Len(t, got.CompletedSteps, 1)
}

func TestResponseGateDefersUntilReply(t *testing.T) {
	seq := twoStepSequence()
	seq.Steps[1].Conditions = &models.StepConditions{RequiresPreviousResponse: true}
	h := newHarness(t, seq)
	h.addProspect(100, "ada@acme.test")
	rec := h.enroll(t, 1, 100)

	advanced, err := h.exec.Process(context.Background(), rec.ID)
	require.NoError(t, err)
	require.True(t, advanced)

	// Make the follow-up due with no reply yet.
	h.now = h.now.AddDate(0, 0, 3)

	advanced, err = h.exec.Process(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.False(t, advanced)
	assert.Len(t, h.sender.sent, 1)

	got, _ := h.records.Get(context.Background(), rec.ID)
	assert.Equal(t, 1, got.CurrentStepIndex)
	require.NotNil(t, got.NextMessageDueAt)
	assert.Equal(t, h.now.Add(time.Hour), *got.NextMessageDueAt)

	// The reply arrives; the next check sends the follow-up.
	h.records.markResponded(rec.ID, h.now)
	h.now = h.now.Add(time.Hour)

	advanced, err = h.exec.Process(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.True(t, advanced)
	assert.Len(t, h.sender.sent, 2)
}

func TestEngagementGateDefersBelowThreshold(t *testing.T) {
	seq := twoStepSequence()
	seq.Steps[0].Conditions = &models.StepConditions{MinimumEngagementScore: utils.Pointer(0.5)}
	h := newHarness(t, seq)
	h.addProspect(100, "ada@acme.test")
	rec := h.enroll(t, 1, 100)

	advanced, err := h.exec.Process(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.False(t, advanced)
	assert.Empty(t, h.sender.sent)

	// A fresh meeting maxes the score and clears the gate.
	h.engagement.events[100] = []models.EngagementEvent{
		{ProspectID: 100, Type: models.EngagementMeeting, OccurredAt: h.now},
	}
	h.now = h.now.Add(time.Hour)

	advanced, err = h.exec.Process(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.True(t, advanced)
	assert.Len(t, h.sender.sent, 1)
}

func TestSendFailureRetriesWithBackoff(t *testing.T) {
	h := newHarness(t, twoStepSequence())
	h.addProspect(100, "ada@acme.test")
	rec := h.enroll(t, 1, 100)
	h.sender.failNext = 1

	advanced, err := h.exec.Process(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.False(t, advanced)

	got, _ := h.records.Get(context.Background(), rec.ID)
	assert.Equal(t, 1, got.RetryCount)
	assert.Contains(t, got.LastError, "smtp unavailable")
	assert.NotEmpty(t, got.AttemptID)
	require.NotNil(t, got.NextMessageDueAt)
	assert.Equal(t, h.now.Add(15*time.Minute), *got.NextMessageDueAt)

	// Second failure doubles the delay.
	h.sender.failNext = 1
	h.now = got.NextMessageDueAt.Add(time.Minute)

	_, err = h.exec.Process(context.Background(), rec.ID)
	require.NoError(t, err)

	got, _ = h.records.Get(context.Background(), rec.ID)
	assert.Equal(t, 2, got.RetryCount)
	assert.Equal(t, h.now.Add(30*time.Minute), *got.NextMessageDueAt)
}

func TestExhaustedRetriesStallTheRecord(t *testing.T) {
	h := newHarness(t, twoStepSequence())
	h.addProspect(100, "ada@acme.test")
	rec := h.enroll(t, 1, 100)

	for i := 0; i < 3; i++ {
		h.sender.failNext = 1
		_, err := h.exec.Process(context.Background(), rec.ID)
		require.NoError(t, err)

		got, _ := h.records.Get(context.Background(), rec.ID)
		if got.NextMessageDueAt != nil {
			h.now = got.NextMessageDueAt.Add(time.Minute)
		}
	}

	got, _ := h.records.Get(context.Background(), rec.ID)
	assert.True(t, got.Stalled())
	assert.Equal(t, models.ExecutionActive, got.Status)
	assert.Nil(t, got.NextMessageDueAt)
	assert.Equal(t, 0, got.CurrentStepIndex)
}

func TestIdempotencyKeyStableAcrossRetries(t *testing.T) {
	h := newHarness(t, twoStepSequence())
	h.addProspect(100, "ada@acme.test")
	rec := h.enroll(t, 1, 100)
	h.sender.failNext = 1

	_, err := h.exec.Process(context.Background(), rec.ID)
	require.NoError(t, err)

	afterFailure, _ := h.records.Get(context.Background(), rec.ID)
	attemptID := afterFailure.AttemptID
	require.NotEmpty(t, attemptID)

	h.now = afterFailure.NextMessageDueAt.Add(time.Minute)
	advanced, err := h.exec.Process(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.True(t, advanced)

	require.Len(t, h.sender.sent, 1)
	assert.Equal(t, attemptID, h.sender.sent[0].IdempotencyKey)

	got, _ := h.records.Get(context.Background(), rec.ID)
	assert.Equal(t, "msg-"+attemptID, got.CompletedSteps[0].MessageID)
	assert.Equal(t, 0, got.RetryCount)
	assert.Empty(t, got.LastError)
}

func TestMidFlightCancelDiscardsResult(t *testing.T) {
	h := newHarness(t, twoStepSequence())
	h.addProspect(100, "ada@acme.test")
	rec := h.enroll(t, 1, 100)

	// Cancellation lands between the send and the completion write.
	h.sender.beforeSend = func() {
		_, err := h.records.Cancel(context.Background(), rec.ID)
		require.NoError(t, err)
	}

	advanced, err := h.exec.Process(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.False(t, advanced)

	got, _ := h.records.Get(context.Background(), rec.ID)
	assert.Equal(t, models.ExecutionCancelled, got.Status)
	assert.Equal(t, 0, got.CurrentStepIndex)
	assert.Empty(t, got.CompletedSteps)
}

func TestVersionConflictReappliesCompletionOnce(t *testing.T) {
	h := newHarness(t, twoStepSequence())
	h.addProspect(100, "ada@acme.test")
	rec := h.enroll(t, 1, 100)

	// A concurrent writer (a reply marking, not a cancel) bumps the
	// version between the send and the completion write.
	h.sender.beforeSend = func() {
		h.records.mu.Lock()
		h.records.recs[rec.ID].Version++
		h.records.mu.Unlock()
	}

	advanced, err := h.exec.Process(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.True(t, advanced)

	got, _ := h.records.Get(context.Background(), rec.ID)
	assert.Equal(t, 1, got.CurrentStepIndex)
	require.Len(t, got.CompletedSteps, 1)
	assert.Len(t, h.sender.sent, 1)
}

func TestPausedRecordIsSkipped(t *testing.T) {
	h := newHarness(t, twoStepSequence())
	h.addProspect(100, "ada@acme.test")
	rec := h.enroll(t, 1, 100)

	h.records.mu.Lock()
	h.records.recs[rec.ID].Status = models.ExecutionPaused
	h.records.recs[rec.ID].Version++
	h.records.mu.Unlock()

	advanced, err := h.exec.Process(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.False(t, advanced)
	assert.Empty(t, h.sender.sent)
}

func TestUncontactableProspectIsCancelled(t *testing.T) {
	h := newHarness(t, twoStepSequence())
	p := h.addProspect(100, "ada@acme.test")
	p.IsUnsubscribed = true
	rec := h.enroll(t, 1, 100)

	advanced, err := h.exec.Process(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.False(t, advanced)

	got, _ := h.records.Get(context.Background(), rec.ID)
	assert.Equal(t, models.ExecutionCancelled, got.Status)
	assert.Empty(t, h.sender.sent)
}

func TestProcessDueAdvancesBatch(t *testing.T) {
	h := newHarness(t, twoStepSequence())
	for i := uint(1); i <= 5; i++ {
		h.addProspect(100+i, fmt.Sprintf("p%d@acme.test", i))
		h.enroll(t, 1, 100+i)
	}

	advanced := h.exec.ProcessDue(context.Background())
	assert.Equal(t, 5, advanced)
	assert.Len(t, h.sender.sent, 5)
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	base := 15 * time.Minute
	max := 2 * time.Hour

	assert.Equal(t, 15*time.Minute, backoff(base, max, 1))
	assert.Equal(t, 30*time.Minute, backoff(base, max, 2))
	assert.Equal(t, time.Hour, backoff(base, max, 3))
	assert.Equal(t, 2*time.Hour, backoff(base, max, 4))
	assert.Equal(t, 2*time.Hour, backoff(base, max, 10))
}
