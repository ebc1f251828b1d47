package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FilipeAphrody/sentinel-identity/internal/domain"
	"github.com/FilipeAphrody/sentinel-identity/internal/metrics"
)

func TestAuditRecord_OriginAndSnapshots(t *testing.T) {
	f := newFixture(t)
	ctx := domain.WithOrigin(context.Background(), testOrigin)

	f.audit.Record(ctx, AuditRecord{
		Actor: "admin@x.com", Action: domain.ActionLockAccount, EntityType: domain.EntityAccount, EntityID: "acc-1",
		Before: map[string]interface{}{"is_account_locked": false},
		After:  map[string]interface{}{"is_account_locked": true},
	})

	entries, err := f.audit.ByEntity(ctx, domain.EntityAccount, "acc-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, domain.AuditSuccess, e.Status)
	assert.Empty(t, e.ErrorMessage)
	assert.Equal(t, "203.0.113.7", e.ClientIP)
	assert.Equal(t, testOrigin.UserAgent, e.UserAgent)
	assert.JSONEq(t, `{"is_account_locked":false}`, string(e.Before))
	assert.JSONEq(t, `{"is_account_locked":true}`, string(e.After))
	assert.True(t, f.clock.Now().Equal(e.Timestamp))
}

func TestAuditRecord_ExplicitOriginWins(t *testing.T) {
	f := newFixture(t)
	ctx := domain.WithOrigin(context.Background(), testOrigin)
	explicit := domain.Origin{RemoteAddr: "192.0.2.1:80"}

	f.audit.Record(ctx, AuditRecord{Actor: "a@x.com", Action: domain.ActionLogout, Origin: &explicit, Failure: "boom"})

	entries, err := f.audit.ByActor(ctx, "a@x.com")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "192.0.2.1", entries[0].ClientIP)
	assert.Equal(t, domain.AuditFailed, entries[0].Status)
	assert.Equal(t, "boom", entries[0].ErrorMessage)
}

func TestAuditRecord_UnserializableSnapshotKeepsEntry(t *testing.T) {
	f := newFixture(t)

	f.audit.Record(context.Background(), AuditRecord{
		Actor: "a@x.com", Action: domain.ActionLogin,
		Before: map[string]interface{}{"fn": func() {}},
		After:  map[string]interface{}{"ok": true},
	})

	entries, err := f.audit.ByActor(context.Background(), "a@x.com")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].Before)
	assert.JSONEq(t, `{"ok":true}`, string(entries[0].After))
	assert.Equal(t, "unknown", entries[0].ClientIP)
}

func TestAuditRecord_StoreFailureIsCounted(t *testing.T) {
	f := newFixtureWithAudit(t, failingAuditRepo{})
	before := testutil.ToFloat64(metrics.AuditWriteFailuresTotal)

	assert.NotPanics(t, func() {
		f.audit.Record(context.Background(), AuditRecord{Actor: "a@x.com", Action: domain.ActionLogin})
	})
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.AuditWriteFailuresTotal))
}

func TestAuditByActor_MixedCaseUnknownLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	outcome, err := f.auth.Login(ctx, "Ghost@X.com", "Whatever1!", testOrigin)
	require.NoError(t, err)
	requireFailure(t, outcome, domain.ErrInvalidCredentials)

	entries, err := f.audit.ByActor(ctx, "ghost@x.com")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ghost@x.com", entries[0].ActorEmail)
	assert.Equal(t, domain.AuditFailed, entries[0].Status)
}

func TestAuditQueries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := f.clock.Now()

	for i := 0; i < 4; i++ {
		f.audit.Record(ctx, AuditRecord{Actor: "a@x.com", Action: domain.ActionLogin})
		f.clock.Advance(time.Minute)
	}
	f.audit.Record(ctx, AuditRecord{Actor: "b@x.com", Action: domain.ActionLogout})

	recent, err := f.audit.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "b@x.com", recent[0].ActorEmail)
	assert.True(t, recent[0].Timestamp.After(recent[1].Timestamp))

	byActor, err := f.audit.ByActor(ctx, "A@x.com")
	require.NoError(t, err)
	assert.Len(t, byActor, 4)

	window, err := f.audit.ByTimeRange(ctx, start.Add(time.Minute), start.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Len(t, window, 2)

	none, err := f.audit.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}
