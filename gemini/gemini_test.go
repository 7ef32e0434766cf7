package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/ruteri/functions-gemini-relay/common"
	"github.com/ruteri/functions-gemini-relay/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestClient_Ask(t *testing.T) {
	gen := &MockGenerator{}
	gen.On("Generate", mock.Anything, DefaultModel, "Say 'hello'.").Return("hello", nil)

	client := NewClient(gen, common.DiscardLogger())
	answer, err := client.Ask(context.Background(), "Say 'hello'.")
	require.NoError(t, err)
	assert.Equal(t, "hello", answer)
	gen.AssertExpectations(t)
}

func TestClient_AskModelOverride(t *testing.T) {
	gen := &MockGenerator{}
	gen.On("Generate", mock.Anything, "gemini-2.0-flash", mock.Anything).Return("ok", nil)

	client := NewClient(gen, nil)
	client.SetModel("")
	assert.Equal(t, DefaultModel, client.Model())
	client.SetModel("gemini-2.0-flash")

	_, err := client.Ask(context.Background(), "ping")
	require.NoError(t, err)
}

func TestClient_AskErrors(t *testing.T) {
	t.Run("api error", func(t *testing.T) {
		gen := &MockGenerator{}
		gen.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("API key not valid"))

		_, err := NewClient(gen, nil).Ask(context.Background(), "ping")
		assert.ErrorIs(t, err, interfaces.ErrNetwork)
		assert.Contains(t, err.Error(), "API key not valid")
	})

	t.Run("empty answer", func(t *testing.T) {
		gen := &MockGenerator{}
		gen.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return("  ", nil)

		_, err := NewClient(gen, nil).Ask(context.Background(), "ping")
		assert.ErrorIs(t, err, ErrEmptyResponse)
	})

	t.Run("empty prompt", func(t *testing.T) {
		gen := &MockGenerator{}
		_, err := NewClient(gen, nil).Ask(context.Background(), "")
		assert.ErrorIs(t, err, interfaces.ErrConfiguration)
		gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestNewGenAIGenerator_EmptyKey(t *testing.T) {
	_, err := NewGenAIGenerator(context.Background(), "")
	assert.ErrorIs(t, err, interfaces.ErrConfiguration)
}
