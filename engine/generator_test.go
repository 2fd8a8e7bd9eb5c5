package engine

import (
	"context"
	"testing"

	"outreachly/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateGeneratorRendersProspectFields(t *testing.T) {
	g := NewTemplateGenerator()
	step := &models.SequenceStep{
		MessageType: models.MessageTypeInitial,
		Tone:        models.ToneFriendly,
		Template:    "Hi {{.FirstName}}, saw that {{.Company}} is hiring a {{.Position}}.",
	}
	prospect := &models.Prospect{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Company:   "Acme",
		Position:  "CTO",
		Email:     "ada@acme.test",
	}

	content, err := g.Generate(context.Background(), step, prospect)
	require.NoError(t, err)
	assert.Equal(t, "Hi Ada, saw that Acme is hiring a CTO.", content)
}

func TestTemplateGeneratorRejectsMalformedTemplate(t *testing.T) {
	g := NewTemplateGenerator()
	step := &models.SequenceStep{Template: "Hi {{.FirstName"}

	_, err := g.Generate(context.Background(), step, &models.Prospect{})
	assert.Error(t, err)
}

func TestTemplateGeneratorRejectsUnknownField(t *testing.T) {
	g := NewTemplateGenerator()
	step := &models.SequenceStep{Template: "Hi {{.Nickname}}"}

	_, err := g.Generate(context.Background(), step, &models.Prospect{})
	assert.Error(t, err)
}

func TestSubjectForVariesByMessageType(t *testing.T) {
	prospect := &models.Prospect{Company: "Acme"}

	assert.Equal(t, "Quick question for Acme",
		SubjectFor(&models.SequenceStep{MessageType: models.MessageTypeInitial}, prospect))
	assert.Equal(t, "Checking in",
		SubjectFor(&models.SequenceStep{MessageType: models.MessageTypeCheckIn}, prospect))
	assert.Equal(t, "A proposal for Acme",
		SubjectFor(&models.SequenceStep{MessageType: models.MessageTypeProposal}, prospect))
}

func TestSubjectForFallsBackWithoutCompany(t *testing.T) {
	subject := SubjectFor(&models.SequenceStep{MessageType: models.MessageTypeInitial}, &models.Prospect{})
	assert.Equal(t, "Quick question for your team", subject)
}
