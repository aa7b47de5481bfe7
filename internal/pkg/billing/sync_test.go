package billing

import (
	"context"
	"testing"

	"github.com/ManuelReschke/AlbumFox/app/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedCustomer(t *testing.T, repo *memRepo, userID, customerID string) {
	t.Helper()
	require.NoError(t, repo.MergeSnapshot(context.Background(), userID, SnapshotUpdate{
		CustomerID: strPtr(customerID),
		SyncedAt:   fixedNow,
	}))
}

func TestSyncPrefersFirstEntitlingSubscription(t *testing.T) {
	repo := newMemRepo()
	proc := newFakeProcessor()
	seedCustomer(t, repo, "user-1", "cus_1")

	canceled := activeSub("sub_a", "user-1", "price_premium_monthly")
	canceled.Status = "canceled"
	trialing := activeSub("sub_c", "user-1", "price_premium_monthly")
	trialing.Status = "trialing"
	proc.lists["cus_1"] = []Subscription{canceled, activeSub("sub_b", "user-1", "price_pro_monthly"), trialing}

	result := newTestReconciler(repo, proc).Sync(context.Background(), "user-1")

	require.True(t, result.Success)
	assert.Equal(t, "sub_b", result.Snapshot.SubscriptionID)
	assert.Equal(t, models.BillingStatusActive, result.Snapshot.Status)
	assert.Equal(t, models.PlanTypePro, result.Snapshot.PlanType)
	assert.Equal(t, []int{syncPageSize}, proc.listLimits)

	stored, _ := repo.snapshot("user-1")
	assert.Equal(t, *result.Snapshot, stored)
}

func TestSyncFallsBackToCanceledSubscription(t *testing.T) {
	repo := newMemRepo()
	proc := newFakeProcessor()
	seedCustomer(t, repo, "user-1", "cus_1")

	incomplete := activeSub("sub_x", "user-1", "price_pro_monthly")
	incomplete.Status = "incomplete_expired"
	canceled := activeSub("sub_y", "user-1", "price_premium_monthly")
	canceled.Status = "canceled"
	proc.lists["cus_1"] = []Subscription{incomplete, canceled}

	result := newTestReconciler(repo, proc).Sync(context.Background(), "user-1")

	require.True(t, result.Success)
	assert.Equal(t, "sub_y", result.Snapshot.SubscriptionID)
	assert.Equal(t, models.BillingStatusCanceled, result.Snapshot.Status)
	assert.Equal(t, models.PlanTypeBasic, result.Snapshot.PlanType)
	assert.False(t, HasActiveSubscription(result.Snapshot.Status))
}

func TestSyncWithoutSubscriptions(t *testing.T) {
	for name, subs := range map[string][]Subscription{
		"empty list":      nil,
		"only incomplete": {{ID: "sub_x", Status: "incomplete", Metadata: map[string]string{MetadataUserIDKey: "user-1"}}},
	} {
		t.Run(name, func(t *testing.T) {
			repo := newMemRepo()
			proc := newFakeProcessor()
			r := newTestReconciler(repo, proc)
			ctx := context.Background()
			require.NoError(t, r.ApplySnapshot(ctx, "user-1", activeSub("sub_old", "user-1", "price_pro_monthly")))
			proc.lists["cus_1"] = subs

			result := r.Sync(ctx, "user-1")

			require.True(t, result.Success)
			assert.Equal(t, models.BillingStatusNone, result.Snapshot.Status)
			assert.Equal(t, models.PlanTypeBasic, result.Snapshot.PlanType)
			assert.Empty(t, result.Snapshot.SubscriptionID)
			assert.Empty(t, result.Snapshot.PriceID)
			assert.Nil(t, result.Snapshot.CurrentPeriodEndMs)
			assert.Equal(t, "cus_1", result.Snapshot.CustomerID)
			assert.Empty(t, proc.metadataUpdates)

			stored, ok := repo.snapshot("user-1")
			require.True(t, ok)
			assert.Equal(t, *result.Snapshot, stored)
		})
	}
}

func TestSyncIsAuthoritativeOverStoredState(t *testing.T) {
	repo := newMemRepo()
	proc := newFakeProcessor()
	r := newTestReconciler(repo, proc)
	ctx := context.Background()

	require.NoError(t, r.ApplySnapshot(ctx, "user-1", activeSub("sub_new", "user-1", "price_premium_monthly")))
	old := activeSub("sub_old", "user-1", "price_pro_monthly")
	old.Status = "canceled"
	proc.lists["cus_1"] = []Subscription{old}

	result := r.Sync(ctx, "user-1")

	require.True(t, result.Success)
	assert.Equal(t, "sub_old", result.Snapshot.SubscriptionID)
	assert.Equal(t, models.BillingStatusCanceled, result.Snapshot.Status)
}

func TestSyncBackfillsUserMetadata(t *testing.T) {
	repo := newMemRepo()
	proc := newFakeProcessor()
	seedCustomer(t, repo, "user-1", "cus_1")
	proc.lists["cus_1"] = []Subscription{activeSub("sub_1", "", "price_pro_monthly")}

	result := newTestReconciler(repo, proc).Sync(context.Background(), "user-1")

	require.True(t, result.Success)
	assert.Equal(t, map[string]string{MetadataUserIDKey: "user-1"}, proc.metadataUpdates["sub_1"])
}

func TestSyncIgnoresBackfillFailure(t *testing.T) {
	repo := newMemRepo()
	proc := newFakeProcessor()
	proc.updateErr = errProcessorDown
	seedCustomer(t, repo, "user-1", "cus_1")
	proc.lists["cus_1"] = []Subscription{activeSub("sub_1", "someone-else", "price_pro_monthly")}

	result := newTestReconciler(repo, proc).Sync(context.Background(), "user-1")

	assert.True(t, result.Success)
	assert.Equal(t, models.BillingStatusActive, result.Snapshot.Status)
}

func TestSyncListFailureReturnsStaleState(t *testing.T) {
	repo := newMemRepo()
	proc := newFakeProcessor()
	r := newTestReconciler(repo, proc)
	ctx := context.Background()

	require.NoError(t, r.ApplySnapshot(ctx, "user-1", activeSub("sub_1", "user-1", "price_pro_monthly")))
	writes := repo.writeCount()
	proc.listErr = errProcessorDown

	result := r.Sync(ctx, "user-1")

	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Message)
	assert.Equal(t, models.BillingStatusActive, result.Snapshot.Status)
	assert.Equal(t, writes, repo.writeCount())
}

func TestSyncWithoutCustomer(t *testing.T) {
	repo := newMemRepo()
	proc := newFakeProcessor()

	result := newTestReconciler(repo, proc).Sync(context.Background(), "user-1")

	assert.False(t, result.Success)
	assert.Equal(t, models.BillingStatusNone, result.Snapshot.Status)
	assert.Empty(t, proc.listLimits)
	assert.Zero(t, repo.writeCount())
}

func TestSelectSubscription(t *testing.T) {
	sub, kind := selectSubscription(nil)
	assert.Nil(t, sub)
	assert.Equal(t, selectedNone, kind)

	subs := []Subscription{{ID: "a", Status: "canceled"}, {ID: "b", Status: "past_due"}}
	sub, kind = selectSubscription(subs)
	require.NotNil(t, sub)
	assert.Equal(t, "b", sub.ID)
	assert.Equal(t, selectedEntitling, kind)
}
