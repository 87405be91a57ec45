package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/autoapply/internal/config"
)

func TestLabelsFromConfig(t *testing.T) {
	labels, err := LabelsFromConfig(config.NewDefaultConfig().Labels())
	require.NoError(t, err)
	assert.True(t, labels.Open.Match("View details"))
	assert.True(t, labels.Primary.Match("Apply"))
	assert.False(t, labels.Primary.Match("How to apply"))
	assert.True(t, labels.Dismiss.Match("Go back"))
	assert.True(t, labels.Done.Match("Applied"))
	assert.True(t, labels.Confirmation.IsZero())

	_, err = LabelsFromConfig(config.LabelsConfig{Open: "View"})
	assert.ErrorContains(t, err, "labels.primary must not be empty")

	_, err = LabelsFromConfig(config.LabelsConfig{Open: "View", Primary: "regex:(["})
	assert.ErrorContains(t, err, "labels.primary")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "primary_action_attempted", PrimaryActionAttempted.String())
	assert.Equal(t, "unknown", State(99).String())
	assert.True(t, InlineContinuation.IsBranch())
	assert.False(t, Closed.IsBranch())
}
