// Package syncer implements the cloud_account.sync background job.
package syncer

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"

	"github.com/scho1ar-go/internal/domain/cloudaccount"
	"github.com/scho1ar-go/internal/domain/job"
	"github.com/scho1ar-go/internal/services/jobs/worker"
	"github.com/scho1ar-go/pkg/apperrors"
	"github.com/scho1ar-go/pkg/logger"
	"github.com/scho1ar-go/pkg/resilience"
)

type AccountStore interface {
	GetByID(ctx context.Context, id string) (*cloudaccount.CloudAccount, error)
	RecordSync(ctx context.Context, id string, result cloudaccount.SyncResult) error
}

type Syncer struct {
	accounts AccountStore
	identity IdentityChecker
	retry    resilience.RetryConfig
	logger   logger.Logger
	now      func() time.Time
}

func New(accounts AccountStore, identity IdentityChecker, log logger.Logger) *Syncer {
	retry := resilience.DefaultRetryConfig()
	retry.ShouldRetry = retryable
	return &Syncer{
		accounts: accounts,
		identity: identity,
		retry:    retry,
		logger:   log.Named("syncer"),
		now:      time.Now,
	}
}

// Run is the worker.Task for job.KindCloudAccountSync.
func (s *Syncer) Run(ctx context.Context, d job.Descriptor, r worker.Reporter) (string, error) {
	r.Advance(ctx, 10, "Loading account")
	a, err := s.accounts.GetByID(ctx, d.ResourceID)
	if err != nil {
		var notFound *apperrors.NotFoundError
		if errors.As(err, &notFound) {
			return "", worker.Fail("Cloud account no longer exists", err)
		}
		return "", err
	}
	if !a.Provider.Supported() {
		return "", worker.Fail("Provider "+string(a.Provider)+" is not supported yet", nil)
	}

	r.Advance(ctx, 40, "Verifying credentials")
	callerAccount, err := resilience.Retry(ctx, s.retry, func(ctx context.Context) (string, error) {
		return s.identity.CallerAccount(ctx, a)
	})
	if err == nil && callerAccount != a.AccountID {
		err = worker.Fail("Credentials belong to account "+callerAccount, nil)
	}

	r.Advance(ctx, 80, "Recording result")
	result := cloudaccount.SyncResult{Status: cloudaccount.StatusConnected, SyncedAt: s.now().UTC()}
	if err != nil {
		var failure *worker.Failure
		if !errors.As(err, &failure) {
			failure = worker.Fail(describe(err), err)
			err = failure
		}
		result.Status = cloudaccount.StatusError
		result.LastError = failure.Message
	}
	if recordErr := s.accounts.RecordSync(ctx, a.ID, result); recordErr != nil {
		return "", recordErr
	}
	if err != nil {
		s.logger.Warn("cloud account sync failed", "account_id", a.ID, "organization_id", a.OrganizationID, "error", err)
		return "", err
	}
	return "Account synced", nil
}

func retryable(err error) bool {
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return false
	}
	if request.IsErrorThrottle(err) || request.IsErrorRetryable(err) {
		return true
	}
	return aerr.Code() == request.ErrCodeRequestError
}

// describe turns an AWS failure into a message safe to store on the job.
func describe(err error) string {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case "AccessDenied", "AccessDeniedException":
			return "Access denied while assuming the account role"
		case "InvalidClientTokenId", "ExpiredToken", "SignatureDoesNotMatch":
			return "AWS rejected the platform credentials"
		case request.ErrCodeRequestError:
			return "AWS could not be reached"
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "Timed out verifying credentials"
	}
	return "Unable to verify AWS credentials"
}
