package utils

import (
	"errors"
	"fmt"
	"testing"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/karma-runner/internal/domain/karma"
	"github.com/disgoorg/karma-runner/internal/domain/lifecycle"
	"github.com/disgoorg/karma-runner/internal/domain/runners"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captured struct {
	messages []discord.MessageCreate
}

func (c *captured) CreateMessage(m discord.MessageCreate, _ ...rest.RequestOpt) error {
	c.messages = append(c.messages, m)
	return nil
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorType
	}{
		{karma.ErrInsufficientFunds, BusinessLogicError},
		{fmt.Errorf("%w: espresso", lifecycle.ErrCategoryBlocked), BusinessLogicError},
		{fmt.Errorf("%w: %q", lifecycle.ErrUnknownDrink, "kombucha"), UserError},
		{lifecycle.ErrWrongActor, PermissionError},
		{lifecycle.ErrNotFound, NotFoundError},
		{runners.ErrAlreadyMatched, BusinessLogicError},
		{lifecycle.ErrOfferContextMissing, NotFoundError},
		{errors.New("connection refused"), SystemError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			got, msg := ClassifyError(tt.err)
			assert.Equal(t, tt.want, got)
			assert.NotEmpty(t, msg)
		})
	}
}

func TestRejectIsEphemeral(t *testing.T) {
	c := &captured{}
	require.NoError(t, EH.Reject(c, karma.ErrInsufficientFunds))

	require.Len(t, c.messages, 1)
	m := c.messages[0]
	assert.Equal(t, discord.MessageFlagEphemeral, m.Flags)
	assert.Contains(t, m.Embeds[0].Description, "enough karma")
}
