package service

import (
	"context"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go/aws/arn"

	"github.com/scho1ar-go/internal/domain/cloudaccount"
	"github.com/scho1ar-go/internal/domain/job"
	"github.com/scho1ar-go/internal/services/cloudaccounts/repository"
	"github.com/scho1ar-go/pkg/apperrors"
	"github.com/scho1ar-go/pkg/audit"
	"github.com/scho1ar-go/pkg/auth/principal"
	"github.com/scho1ar-go/pkg/logger"
	"github.com/scho1ar-go/pkg/pagination"
)

const resourceName = "cloud-accounts"

var awsAccountID = regexp.MustCompile(`^[0-9]{12}$`)

type Store interface {
	pagination.Store[cloudaccount.CloudAccount, repository.Scope]
	Insert(ctx context.Context, a *cloudaccount.CloudAccount) error
	Get(ctx context.Context, organizationID, id string) (*cloudaccount.CloudAccount, error)
	Update(ctx context.Context, organizationID, id string, changes map[string]interface{}) (*cloudaccount.CloudAccount, error)
	Delete(ctx context.Context, organizationID, id string) error
}

// JobCreator starts background jobs.
type JobCreator interface {
	Create(ctx context.Context, organizationID string, kind job.Kind, resourceID, createdBy string) (*job.Job, error)
}

type CloudAccountService struct {
	store  Store
	jobs   JobCreator
	audit  audit.Sink
	logger logger.Logger
}

func NewCloudAccountService(store Store, jobs JobCreator, sink audit.Sink, log logger.Logger) *CloudAccountService {
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &CloudAccountService{
		store:  store,
		jobs:   jobs,
		audit:  sink,
		logger: log.Named("cloud-accounts"),
	}
}

func (s *CloudAccountService) List(ctx context.Context, req pagination.Request, scope repository.Scope) (*pagination.Result[cloudaccount.CloudAccount], error) {
	return pagination.List[cloudaccount.CloudAccount, repository.Scope](ctx, req, repository.SortColumns, scope, s.store)
}

func (s *CloudAccountService) Get(ctx context.Context, organizationID, id string) (*cloudaccount.CloudAccount, error) {
	return s.store.Get(ctx, organizationID, id)
}

func (s *CloudAccountService) Create(ctx context.Context, p *principal.Principal, req cloudaccount.CreateRequest) (*cloudaccount.CloudAccount, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.AccountID = strings.TrimSpace(req.AccountID)
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	a := cloudaccount.New(p.OrganizationID, p.SubjectID, req)
	if err := s.store.Insert(ctx, a); err != nil {
		return nil, err
	}

	s.logger.Info("cloud account connected", "account_id", a.ID, "organization_id", a.OrganizationID, "provider", string(a.Provider))
	s.audit.Emit(ctx, audit.Event{
		Action:         audit.ActionResourceCreated,
		SubjectID:      p.SubjectID,
		OrganizationID: p.OrganizationID,
		Resource:       resourceName + "/" + a.ID,
	})
	return a, nil
}

func (s *CloudAccountService) Update(ctx context.Context, organizationID, id string, req cloudaccount.UpdateRequest) (*cloudaccount.CloudAccount, error) {
	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		if trimmed == "" {
			return nil, apperrors.NewValidationError("name", "must not be blank")
		}
		req.Name = &trimmed
	}
	if req.RoleARN != nil && *req.RoleARN != "" {
		if err := validateRoleARN(*req.RoleARN); err != nil {
			return nil, err
		}
	}

	return s.store.Update(ctx, organizationID, id, req.Changes())
}

func (s *CloudAccountService) Delete(ctx context.Context, p *principal.Principal, id string) error {
	if err := s.store.Delete(ctx, p.OrganizationID, id); err != nil {
		return err
	}

	s.logger.Info("cloud account removed", "account_id", id, "organization_id", p.OrganizationID)
	s.audit.Emit(ctx, audit.Event{
		Action:         audit.ActionResourceDeleted,
		SubjectID:      p.SubjectID,
		OrganizationID: p.OrganizationID,
		Resource:       resourceName + "/" + id,
	})
	return nil
}

// Sync queues a sync job for the account and returns it still pending.
func (s *CloudAccountService) Sync(ctx context.Context, p *principal.Principal, id string) (*job.Job, error) {
	a, err := s.store.Get(ctx, p.OrganizationID, id)
	if err != nil {
		return nil, err
	}
	if !a.Provider.Supported() {
		return nil, unsupported(a.Provider)
	}
	return s.jobs.Create(ctx, a.OrganizationID, job.KindCloudAccountSync, a.ID, p.SubjectID)
}

func validateCreate(req cloudaccount.CreateRequest) error {
	if req.Name == "" {
		return apperrors.NewValidationError("name", "must not be blank")
	}
	if !req.Provider.Supported() {
		return unsupported(req.Provider)
	}
	if !awsAccountID.MatchString(req.AccountID) {
		return apperrors.NewValidationError("accountId", "must be a 12 digit AWS account id")
	}
	if req.RoleARN != "" {
		return validateRoleARN(req.RoleARN)
	}
	return nil
}

func validateRoleARN(s string) error {
	parsed, err := arn.Parse(s)
	if err != nil || parsed.Service != "iam" || !strings.HasPrefix(parsed.Resource, "role/") {
		return apperrors.NewValidationError("roleArn", "must be an IAM role ARN")
	}
	return nil
}

func unsupported(p cloudaccount.Provider) error {
	return apperrors.Business("UNSUPPORTED_PROVIDER", "Provider "+string(p)+" is not supported yet")
}
