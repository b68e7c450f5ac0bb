package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scho1ar-go/internal/domain/cloudaccount"
	"github.com/scho1ar-go/pkg/apperrors"
	"github.com/scho1ar-go/pkg/database/databasetest"
	"github.com/scho1ar-go/pkg/pagination"
)

func newRepo(t *testing.T) *CloudAccountRepository {
	return NewCloudAccountRepository(databasetest.New(t, &cloudaccount.CloudAccount{}))
}

func seed(t *testing.T, r *CloudAccountRepository, orgID, name, accountID string) *cloudaccount.CloudAccount {
	t.Helper()
	a := cloudaccount.New(orgID, "user_1", cloudaccount.CreateRequest{
		Name:      name,
		Provider:  cloudaccount.ProviderAWS,
		AccountID: accountID,
	})
	require.NoError(t, r.Insert(context.Background(), a))
	return a
}

func TestInsertRejectsDuplicateAccountInOrganization(t *testing.T) {
	r := newRepo(t)
	seed(t, r, "org_1", "prod", "123456789012")

	dup := cloudaccount.New("org_1", "user_1", cloudaccount.CreateRequest{
		Name: "prod again", Provider: cloudaccount.ProviderAWS, AccountID: "123456789012",
	})
	err := r.Insert(context.Background(), dup)

	var conflict *apperrors.ConflictError
	assert.ErrorAs(t, err, &conflict)

	// The same account may be connected by another organization.
	seed(t, r, "org_2", "prod", "123456789012")
}

func TestGetIsOrganizationScoped(t *testing.T) {
	r := newRepo(t)
	a := seed(t, r, "org_1", "prod", "123456789012")

	got, err := r.Get(context.Background(), "org_1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, "prod", got.Name)

	_, err = r.Get(context.Background(), "org_2", a.ID)
	var notFound *apperrors.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestDelete(t *testing.T) {
	r := newRepo(t)
	a := seed(t, r, "org_1", "prod", "123456789012")

	err := r.Delete(context.Background(), "org_2", a.ID)
	assert.Equal(t, 404, apperrors.HTTPStatus(err))

	require.NoError(t, r.Delete(context.Background(), "org_1", a.ID))
	_, err = r.Get(context.Background(), "org_1", a.ID)
	assert.Error(t, err)
}

func TestListSortsAndSearches(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	for i, name := range []string{"charlie", "alpha", "bravo"} {
		seed(t, r, "org_1", name, fmt.Sprintf("10000000000%d", i))
	}
	seed(t, r, "org_2", "alpha-other", "999999999999")

	res, err := pagination.List[cloudaccount.CloudAccount, Scope](ctx,
		pagination.Request{Page: 1, Limit: 10, SortBy: "name", SortOrder: pagination.Asc},
		SortColumns, Scope{OrganizationID: "org_1"}, r)
	require.NoError(t, err)
	require.Len(t, res.Items, 3)
	assert.Equal(t, "alpha", res.Items[0].Name)
	assert.Equal(t, "charlie", res.Items[2].Name)

	res, err = pagination.List[cloudaccount.CloudAccount, Scope](ctx,
		pagination.Request{Page: 1, Limit: 10, Search: "ALPH"},
		SortColumns, Scope{OrganizationID: "org_1"}, r)
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, int64(1), res.Total)

	res, err = pagination.List[cloudaccount.CloudAccount, Scope](ctx,
		pagination.Request{Page: 1, Limit: 10, Search: "'; DROP TABLE cloud_accounts; --"},
		SortColumns, Scope{OrganizationID: "org_1"}, r)
	require.NoError(t, err)
	assert.Empty(t, res.Items)

	_, err = r.Get(ctx, "org_1", "anything")
	var notFound *apperrors.NotFoundError
	assert.ErrorAs(t, err, &notFound, "table must still exist")
}

func TestRecordSyncAndListSyncable(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	ok := seed(t, r, "org_1", "ok", "111111111111")
	bad := seed(t, r, "org_1", "bad", "222222222222")

	now := time.Now().UTC()
	require.NoError(t, r.RecordSync(ctx, ok.ID, cloudaccount.SyncResult{Status: cloudaccount.StatusConnected, SyncedAt: now}))
	require.NoError(t, r.RecordSync(ctx, bad.ID, cloudaccount.SyncResult{
		Status: cloudaccount.StatusError, LastError: "Unable to assume role", SyncedAt: now,
	}))

	got, err := r.GetByID(ctx, bad.ID)
	require.NoError(t, err)
	assert.Equal(t, cloudaccount.StatusError, got.Status)
	assert.Equal(t, "Unable to assume role", got.LastError)
	require.NotNil(t, got.LastSyncAt)

	syncable, err := r.ListSyncable(ctx)
	require.NoError(t, err)
	require.Len(t, syncable, 1)
	assert.Equal(t, ok.ID, syncable[0].ID)
}

func TestUpdateWritesOnlyGivenColumns(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	a := seed(t, r, "org_1", "prod", "123456789012")

	// A sync finishing after the caller loaded the row must survive the edit.
	synced := time.Now().UTC()
	require.NoError(t, r.RecordSync(ctx, a.ID, cloudaccount.SyncResult{Status: cloudaccount.StatusConnected, SyncedAt: synced}))

	name := "production"
	got, err := r.Update(ctx, "org_1", a.ID, cloudaccount.UpdateRequest{Name: &name}.Changes())
	require.NoError(t, err)
	assert.Equal(t, "production", got.Name)
	assert.Equal(t, cloudaccount.StatusConnected, got.Status)
	require.NotNil(t, got.LastSyncAt)
	assert.Equal(t, "123456789012", got.AccountID)

	role := "arn:aws:iam::123456789012:role/reader"
	got, err = r.Update(ctx, "org_1", a.ID, cloudaccount.UpdateRequest{RoleARN: &role}.Changes())
	require.NoError(t, err)
	assert.Equal(t, role, got.RoleARN)
	assert.Equal(t, "production", got.Name)
}

func TestUpdateDoesNotRecreateDeletedAccount(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	a := seed(t, r, "org_1", "prod", "123456789012")
	require.NoError(t, r.Delete(ctx, "org_1", a.ID))

	name := "revived"
	_, err := r.Update(ctx, "org_1", a.ID, cloudaccount.UpdateRequest{Name: &name}.Changes())
	var notFound *apperrors.NotFoundError
	require.ErrorAs(t, err, &notFound)

	_, err = r.GetByID(ctx, a.ID)
	assert.ErrorAs(t, err, &notFound)
}

func TestUpdateIsOrganizationScoped(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	a := seed(t, r, "org_1", "prod", "123456789012")

	name := "hijacked"
	_, err := r.Update(ctx, "org_2", a.ID, cloudaccount.UpdateRequest{Name: &name}.Changes())
	assert.Equal(t, 404, apperrors.HTTPStatus(err))

	got, err := r.Get(ctx, "org_1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, "prod", got.Name)
}
