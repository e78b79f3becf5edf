package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndGet(t *testing.T) {
	service := NewService()

	agent := service.Create("worker-1", "key-1")
	require.NotEmpty(t, agent.ID)
	assert.Equal(t, StatusPending, agent.Status)
	assert.Equal(t, "key-1", agent.ProvisionedWithKeyID)
	assert.False(t, agent.CreatedAt.IsZero())

	got, err := service.Get(agent.ID)
	require.NoError(t, err)
	assert.Equal(t, agent.ID, got.ID)
	assert.Equal(t, "worker-1", got.Label)
}

func TestGetUnknown(t *testing.T) {
	service := NewService()

	_, err := service.Get("no-such-agent")
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestList(t *testing.T) {
	service := NewService()
	assert.Empty(t, service.List())

	service.Create("worker-1", "key-1")
	service.Create("worker-2", "key-1")
	assert.Len(t, service.List(), 2)
}

func TestDelete(t *testing.T) {
	service := NewService()
	agent := service.Create("worker-1", "key-1")

	assert.True(t, service.Delete(agent.ID))
	assert.False(t, service.Delete(agent.ID))

	_, err := service.Get(agent.ID)
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestConfigure(t *testing.T) {
	service := NewService()
	agent := service.Create("worker-1", "key-1")

	updated, err := service.Configure(agent.ID, map[string]interface{}{"model": "large"})
	require.NoError(t, err)
	assert.Equal(t, "large", updated.Config["model"])
	require.NotNil(t, updated.ConfiguredAt)

	_, err = service.Configure("no-such-agent", nil)
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestOnboard(t *testing.T) {
	service := NewService()
	agent := service.Create("worker-1", "key-1")

	onboarded, err := service.Onboard(agent.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusOnboarded, onboarded.Status)
	require.NotNil(t, onboarded.OnboardedAt)

	again, err := service.Onboard(agent.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusOnboarded, again.Status)

	_, err = service.Onboard("no-such-agent")
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestGetReturnsCopy(t *testing.T) {
	service := NewService()
	agent := service.Create("worker-1", "key-1")

	got, err := service.Get(agent.ID)
	require.NoError(t, err)
	got.Label = "mutated"

	fresh, err := service.Get(agent.ID)
	require.NoError(t, err)
	assert.Equal(t, "worker-1", fresh.Label)
}
