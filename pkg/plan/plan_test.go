package plan_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vpnlab/subkit/pkg/plan"
)

func testPlan() plan.Plan {
	return plan.Plan{
		ID:           "basic-30d",
		Name:         "Basic",
		DurationDays: 30,
		TrafficGB:    100,
		DeviceLimit:  3,
		Price:        plan.Money{Amount: 500, Currency: "USD"},
		Public:       true,
	}
}

func TestPlan_Conversions(t *testing.T) {
	t.Parallel()

	p := testPlan()
	assert.Equal(t, 30*24*time.Hour, p.Duration())
	assert.Equal(t, int64(100*1024*1024*1024), p.TrafficBytes())
	assert.False(t, p.HasTrial())
	assert.Equal(t, time.Duration(0), p.TrialDuration())

	unlimited := p
	unlimited.TrafficGB = plan.Unlimited
	assert.Equal(t, plan.Unlimited, unlimited.TrafficBytes())

	trial := p
	trial.TrialDays = 3
	assert.True(t, trial.HasTrial())
	assert.Equal(t, 3*24*time.Hour, trial.TrialDuration())
}

func TestNewCatalog_Static(t *testing.T) {
	t.Parallel()

	catalog, err := plan.NewCatalog(context.Background(), plan.NewStaticSource(testPlan()))
	require.NoError(t, err)

	assert.Equal(t, 1, catalog.Len())
	assert.True(t, catalog.Has("basic-30d"))

	p, err := catalog.Get("basic-30d")
	require.NoError(t, err)
	assert.Equal(t, "Basic", p.Name)

	_, err = catalog.Get("unknown")
	assert.ErrorIs(t, err, plan.ErrPlanNotFound)
}

func TestNewCatalog_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*plan.Plan)
	}{
		{"zero duration", func(p *plan.Plan) { p.DurationDays = 0 }},
		{"zero traffic", func(p *plan.Plan) { p.TrafficGB = 0 }},
		{"zero devices", func(p *plan.Plan) { p.DeviceLimit = 0 }},
		{"negative trial", func(p *plan.Plan) { p.TrialDays = -1 }},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := testPlan()
			tt.mutate(&p)

			_, err := plan.NewCatalog(context.Background(), plan.NewStaticSource(p))
			assert.ErrorIs(t, err, plan.ErrInvalidPlanConfiguration)
		})
	}
}

func TestNewFileSource_JSON(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "plans.json")
	payload := `{"plans":[{"id":"basic-30d","name":"Basic","duration_days":30,` +
		`"traffic_gb":100,"device_limit":3,"price":{"amount":500,"currency":"USD"},"public":true}]}`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o600))

	catalog, err := plan.NewCatalog(context.Background(), plan.NewFileSource(path))
	require.NoError(t, err)

	p, err := catalog.Get("basic-30d")
	require.NoError(t, err)
	assert.Equal(t, 30, p.DurationDays)
	assert.Equal(t, int64(500), p.Price.Amount)
}

func TestNewFileSource_YAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "plans.yaml")
	payload := `plans:
  - id: unlimited-90d
    name: Unlimited
    duration_days: 90
    traffic_gb: -1
    device_limit: -1
    price:
      amount: 1200
      currency: USD
    trial_days: 3
    public: true
`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o600))

	catalog, err := plan.NewCatalog(context.Background(), plan.NewFileSource(path))
	require.NoError(t, err)

	p, err := catalog.Get("unlimited-90d")
	require.NoError(t, err)
	assert.Equal(t, plan.Unlimited, p.TrafficGB)
	assert.True(t, p.HasTrial())
}

func TestNewFileSource_UnsupportedFormat(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "plans.toml")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	_, err := plan.NewCatalog(context.Background(), plan.NewFileSource(path))
	assert.ErrorIs(t, err, plan.ErrFailedToLoadPlans)
}
