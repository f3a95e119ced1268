package scenario

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/olla-run/olla/internal/config"
	"github.com/olla-run/olla/internal/core/constants"
	"github.com/olla-run/olla/internal/core/domain"
)

func TestClassifyBySuffix(t *testing.T) {
	r := NewRouter(config.RouterConfig{
		BackgroundModelSuffixes:  []string{"-background"},
		ThinkModelSuffixes:       []string{"-think"},
		LongContextTokenThreshold: 1000,
	})

	assert.Equal(t, constants.ScenarioBackground, r.Classify("gpt-4-background", 10, false))
	assert.Equal(t, constants.ScenarioThink, r.Classify("gpt-4-think", 10, false))
	assert.Equal(t, constants.ScenarioLongContext, r.Classify("gpt-4", 2000, false))
	assert.Equal(t, constants.ScenarioDefault, r.Classify("gpt-4", 10, false))
	assert.Equal(t, constants.ScenarioWebSearch, r.Classify("gpt-4", 10, true))
}

func TestIsCustomModel(t *testing.T) {
	assert.True(t, IsCustomModel(constants.CustomModelID))
	assert.False(t, IsCustomModel("gpt-4"))
}

func TestShouldFailoverOnEligibleStatus(t *testing.T) {
	p := NewPlanner(config.FailoverConfig{MaxAttempts: 3})

	assert.True(t, p.ShouldFailover(true, &domain.ProviderError{StatusCode: 429}))
	assert.False(t, p.ShouldFailover(false, &domain.ProviderError{StatusCode: 429}))
	assert.False(t, p.ShouldFailover(true, &domain.ProviderError{StatusCode: 400}))
}

func TestPlanCapsAtMaxAttempts(t *testing.T) {
	p := NewPlanner(config.FailoverConfig{MaxAttempts: 2})
	alts := []domain.Alternative{{ProviderID: "a"}, {ProviderID: "b"}, {ProviderID: "c"}}

	plan := p.Plan(alts)

	assert.Len(t, plan, 2)
}
