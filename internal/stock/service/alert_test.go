package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sokoflow/sokoflow-backend/pkg/errors"
	"github.com/sokoflow/sokoflow-backend/pkg/messaging"
	"github.com/sokoflow/sokoflow-backend/pkg/testutil"
)

func newAlertService() (*AlertService, *fakeAlertStore, *fakeVariantStore, *testutil.MockPublisher) {
	alerts := newFakeAlertStore()
	variants := newFakeVariantStore()
	publisher := testutil.NewMockPublisher()
	svc := NewAlertService(alerts, variants, publisher, testLogger())
	return svc, alerts, variants, publisher
}

func TestSetAlert(t *testing.T) {
	svc, alerts, variants, _ := newAlertService()
	variants.add("v1", "SKU-1", 12, "10")

	cfg, err := svc.SetAlert(context.Background(), "v1", 10)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Threshold)
	assert.Contains(t, alerts.configs, "v1")
}

func TestSetAlert_RejectsThresholdBelowOne(t *testing.T) {
	svc, _, variants, _ := newAlertService()
	variants.add("v1", "SKU-1", 12, "10")

	_, err := svc.SetAlert(context.Background(), "v1", 0)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestSetAlert_UnknownVariant(t *testing.T) {
	svc, _, _, _ := newAlertService()

	_, err := svc.SetAlert(context.Background(), "missing", 5)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestEvaluate_ThresholdCrossingCreatesExactlyOneAlert(t *testing.T) {
	svc, alerts, variants, publisher := newAlertService()
	variants.add("v1", "SKU-1", 12, "10")

	_, err := svc.SetAlert(context.Background(), "v1", 10)
	require.NoError(t, err)

	// Stock drops from 12 to 9: crossing at-or-below threshold.
	svc.Evaluate(context.Background(), "v1", 9)

	active, err := alerts.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, 9, active[0].StockAtTrigger)
	publisher.AssertEventPublished(t, messaging.EventAlertTriggered)

	// A further drop while the alert is active does not duplicate it.
	svc.Evaluate(context.Background(), "v1", 7)

	active, err = alerts.ListActive(context.Background())
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestEvaluate_RisingStockDoesNotAutoResolve(t *testing.T) {
	svc, alerts, variants, _ := newAlertService()
	variants.add("v1", "SKU-1", 12, "10")

	_, err := svc.SetAlert(context.Background(), "v1", 10)
	require.NoError(t, err)

	svc.Evaluate(context.Background(), "v1", 9)
	svc.Evaluate(context.Background(), "v1", 14)

	active, err := alerts.ListActive(context.Background())
	require.NoError(t, err)
	assert.Len(t, active, 1, "resolution is an explicit administrative action")
}

func TestEvaluate_NoConfigIsNoOp(t *testing.T) {
	svc, alerts, _, publisher := newAlertService()

	svc.Evaluate(context.Background(), "v1", 0)

	active, err := alerts.ListActive(context.Background())
	require.NoError(t, err)
	assert.Empty(t, active)
	publisher.AssertNoEventsPublished(t)
}

func TestEvaluate_AboveThresholdIsNoOp(t *testing.T) {
	svc, alerts, variants, _ := newAlertService()
	variants.add("v1", "SKU-1", 50, "10")

	_, err := svc.SetAlert(context.Background(), "v1", 10)
	require.NoError(t, err)

	svc.Evaluate(context.Background(), "v1", 11)

	active, err := alerts.ListActive(context.Background())
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestResolveAlert_Idempotent(t *testing.T) {
	svc, alerts, variants, publisher := newAlertService()
	variants.add("v1", "SKU-1", 12, "10")

	_, err := svc.SetAlert(context.Background(), "v1", 10)
	require.NoError(t, err)
	svc.Evaluate(context.Background(), "v1", 9)

	require.NoError(t, svc.ResolveAlert(context.Background(), "v1"))
	publisher.AssertEventPublished(t, messaging.EventAlertResolved)

	// Second resolution: no error, no new alert, no duplicate event.
	eventsBefore := len(publisher.PublishedEvents)
	require.NoError(t, svc.ResolveAlert(context.Background(), "v1"))
	assert.Len(t, publisher.PublishedEvents, eventsBefore)

	active, err := alerts.ListActive(context.Background())
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestResolveThenCrossAgain_TriggersFreshAlert(t *testing.T) {
	svc, alerts, variants, _ := newAlertService()
	variants.add("v1", "SKU-1", 12, "10")

	_, err := svc.SetAlert(context.Background(), "v1", 10)
	require.NoError(t, err)

	svc.Evaluate(context.Background(), "v1", 9)
	require.NoError(t, svc.ResolveAlert(context.Background(), "v1"))

	// The threshold configuration survives resolution.
	svc.Evaluate(context.Background(), "v1", 8)

	active, err := alerts.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, 8, active[0].StockAtTrigger)

	stats, err := svc.AlertStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalTriggered)
	assert.Equal(t, 1, stats.ActiveCount)
	assert.Equal(t, 1, stats.ResolvedCount)
}

func TestDisableAlert_RemovesConfiguration(t *testing.T) {
	svc, alerts, variants, _ := newAlertService()
	variants.add("v1", "SKU-1", 12, "10")

	_, err := svc.SetAlert(context.Background(), "v1", 10)
	require.NoError(t, err)

	require.NoError(t, svc.DisableAlert(context.Background(), "v1"))
	assert.NotContains(t, alerts.configs, "v1")

	// No configuration, no evaluation.
	svc.Evaluate(context.Background(), "v1", 1)
	active, err := alerts.ListActive(context.Background())
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestDisableAlert_UnknownConfig(t *testing.T) {
	svc, _, _, _ := newAlertService()

	err := svc.DisableAlert(context.Background(), "v1")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}
