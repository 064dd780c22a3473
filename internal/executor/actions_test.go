package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseKind(t *testing.T) {
	for _, k := range Kinds {
		got, err := ParseKind(string(k))
		assert.NoError(t, err)
		assert.Equal(t, k, got)
	}

	_, err := ParseKind("scroll")
	assert.Error(t, err)
	_, err = ParseKind("")
	assert.Error(t, err)
}

func TestPlanEmpty(t *testing.T) {
	assert.True(t, Plan{}.Empty())
	assert.True(t, NewPlan().Empty())
	assert.False(t, NewPlan(End()).Empty())
}

func TestActionString(t *testing.T) {
	assert.Equal(t, `type #username (text: "student")`, Type("#username", "student").String())
	assert.Equal(t, "click #submit", Click("#submit").String())
	assert.Equal(t, `click_text "Log out"`, ClickText("Log out").String())
	assert.Equal(t, "end", End().String())
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "completed", OutcomeCompleted.String())
	assert.Equal(t, "failed", OutcomeFailed.String())
	assert.Equal(t, "exhausted", OutcomeExhausted.String())
}
