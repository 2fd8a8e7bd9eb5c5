package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSequence() *SequenceDefinition {
	return &SequenceDefinition{
		Name: "Intro",
		Steps: []SequenceStep{
			{MessageType: MessageTypeInitial, Tone: ToneFriendly, DelayDays: 0, Template: "hello"},
			{MessageType: MessageTypeFollowup, Tone: ToneFriendly, DelayDays: 3, Template: "still there?"},
		},
	}
}

func TestValidateAcceptsWellFormedSequence(t *testing.T) {
	seq := validSequence()
	require.NoError(t, seq.Validate())

	assert.Equal(t, 0, seq.Steps[0].StepNumber)
	assert.Equal(t, 1, seq.Steps[1].StepNumber)
}

func TestValidateRequiresNameAndSteps(t *testing.T) {
	seq := validSequence()
	seq.Name = ""
	assert.Error(t, seq.Validate())

	seq = validSequence()
	seq.Steps = nil
	err := seq.Validate()
	require.Error(t, err)

	var invalid *InvalidSequenceError
	assert.ErrorAs(t, err, &invalid)
}

func TestValidateRejectsUnknownMessageTypeAndTone(t *testing.T) {
	seq := validSequence()
	seq.Steps[1].MessageType = "carrier_pigeon"
	assert.Error(t, seq.Validate())

	seq = validSequence()
	seq.Steps[1].Tone = "sarcastic"
	assert.Error(t, seq.Validate())
}

func TestValidateRejectsEmptyTemplateAndNegativeDelay(t *testing.T) {
	seq := validSequence()
	seq.Steps[0].Template = ""
	assert.Error(t, seq.Validate())

	seq = validSequence()
	seq.Steps[1].DelayDays = -1
	assert.Error(t, seq.Validate())
}

func TestValidateForcesFirstStepImmediate(t *testing.T) {
	seq := validSequence()
	seq.Steps[0].DelayDays = 5
	require.NoError(t, seq.Validate())
	assert.Equal(t, 0, seq.Steps[0].DelayDays)
}

func TestValidateClampsDelaysToWindow(t *testing.T) {
	seq := validSequence()
	seq.Steps[1].DelayDays = 0
	require.NoError(t, seq.Validate())
	assert.Equal(t, MinStepDelayDays, seq.Steps[1].DelayDays)

	seq = validSequence()
	seq.Steps[1].DelayDays = 30
	require.NoError(t, seq.Validate())
	assert.Equal(t, MaxStepDelayDays, seq.Steps[1].DelayDays)
}

func TestValidateBoundsEngagementThreshold(t *testing.T) {
	score := 1.5
	seq := validSequence()
	seq.Steps[1].Conditions = &StepConditions{MinimumEngagementScore: &score}
	assert.Error(t, seq.Validate())

	score = 0.5
	require.NoError(t, seq.Validate())
}
