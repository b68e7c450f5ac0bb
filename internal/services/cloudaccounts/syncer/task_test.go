package syncer

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scho1ar-go/internal/domain/cloudaccount"
	"github.com/scho1ar-go/internal/domain/job"
	"github.com/scho1ar-go/internal/services/cloudaccounts/repository"
	"github.com/scho1ar-go/internal/services/jobs/worker"
	"github.com/scho1ar-go/pkg/database/databasetest"
	"github.com/scho1ar-go/pkg/logger"
)

type fakeIdentity struct {
	calls   atomic.Int32
	account string
	errs    []error
}

func (f *fakeIdentity) CallerAccount(context.Context, *cloudaccount.CloudAccount) (string, error) {
	n := int(f.calls.Add(1)) - 1
	if n < len(f.errs) && f.errs[n] != nil {
		return "", f.errs[n]
	}
	return f.account, nil
}

type progressLog struct {
	steps []int
}

func (p *progressLog) Advance(_ context.Context, progress int, _ string) {
	p.steps = append(p.steps, progress)
}

var syncedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func setup(t *testing.T, identity IdentityChecker) (*Syncer, *repository.CloudAccountRepository, *cloudaccount.CloudAccount) {
	repo := repository.NewCloudAccountRepository(databasetest.New(t, &cloudaccount.CloudAccount{}))
	a := cloudaccount.New("org_1", "user_1", cloudaccount.CreateRequest{
		Name:      "prod",
		Provider:  cloudaccount.ProviderAWS,
		AccountID: "123456789012",
		RoleARN:   "arn:aws:iam::123456789012:role/readonly",
	})
	require.NoError(t, repo.Insert(context.Background(), a))

	s := New(repo, identity, logger.NewNop())
	s.retry.InitialDelay = time.Millisecond
	s.retry.MaxDelay = time.Millisecond
	s.now = func() time.Time { return syncedAt }
	return s, repo, a
}

func descriptor(a *cloudaccount.CloudAccount) job.Descriptor {
	return job.Descriptor{ID: "job_1", OrganizationID: a.OrganizationID, Kind: job.KindCloudAccountSync, ResourceID: a.ID}
}

func TestRun_Connected(t *testing.T) {
	identity := &fakeIdentity{account: "123456789012"}
	s, repo, a := setup(t, identity)
	progress := &progressLog{}

	msg, err := s.Run(context.Background(), descriptor(a), progress)
	require.NoError(t, err)
	assert.Equal(t, "Account synced", msg)
	assert.Equal(t, []int{10, 40, 80}, progress.steps)

	got, err := repo.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, cloudaccount.StatusConnected, got.Status)
	assert.Empty(t, got.LastError)
	require.NotNil(t, got.LastSyncAt)
	assert.True(t, syncedAt.Equal(*got.LastSyncAt))
}

func TestRun_RetriesThrottling(t *testing.T) {
	identity := &fakeIdentity{
		account: "123456789012",
		errs:    []error{awserr.New("Throttling", "Rate exceeded", nil)},
	}
	s, _, a := setup(t, identity)

	_, err := s.Run(context.Background(), descriptor(a), &progressLog{})
	require.NoError(t, err)
	assert.Equal(t, int32(2), identity.calls.Load())
}

func TestRun_AccessDeniedIsRecorded(t *testing.T) {
	identity := &fakeIdentity{errs: []error{awserr.New("AccessDenied", "User is not authorized to perform sts:AssumeRole on arn:aws:iam::123456789012:role/readonly", nil)}}
	s, repo, a := setup(t, identity)

	_, err := s.Run(context.Background(), descriptor(a), &progressLog{})

	var failure *worker.Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "Access denied while assuming the account role", failure.Message)
	assert.Equal(t, int32(1), identity.calls.Load(), "access denied is not retried")

	got, err := repo.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, cloudaccount.StatusError, got.Status)
	assert.Equal(t, failure.Message, got.LastError)
	assert.NotContains(t, got.LastError, "arn:")
}

func TestRun_AccountMismatch(t *testing.T) {
	s, repo, a := setup(t, &fakeIdentity{account: "999999999999"})

	_, err := s.Run(context.Background(), descriptor(a), &progressLog{})
	var failure *worker.Failure
	require.ErrorAs(t, err, &failure)

	got, err := repo.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, cloudaccount.StatusError, got.Status)
}

func TestRun_DeletedAccount(t *testing.T) {
	identity := &fakeIdentity{account: "123456789012"}
	s, repo, a := setup(t, identity)
	require.NoError(t, repo.Delete(context.Background(), a.OrganizationID, a.ID))

	_, err := s.Run(context.Background(), descriptor(a), &progressLog{})
	var failure *worker.Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "Cloud account no longer exists", failure.Message)
	assert.Zero(t, identity.calls.Load())
}
