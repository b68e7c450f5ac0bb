package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/scho1ar-go/internal/domain/cloudaccount"
	"github.com/scho1ar-go/pkg/apperrors"
	"github.com/scho1ar-go/pkg/database"
	"github.com/scho1ar-go/pkg/pagination"
	"github.com/scho1ar-go/pkg/repository"
)

type Scope struct {
	OrganizationID string
	Provider       cloudaccount.Provider
	Status         cloudaccount.Status
}

var SortColumns = pagination.NewSortColumns("createdAt", map[string]string{
	"name":      "name",
	"provider":  "provider",
	"status":    "status",
	"createdAt": "created_at",
	"updatedAt": "updated_at",
})

type CloudAccountRepository struct {
	db *database.DB
}

func NewCloudAccountRepository(db *database.DB) *CloudAccountRepository {
	return &CloudAccountRepository{db: db}
}

func (r *CloudAccountRepository) Insert(ctx context.Context, a *cloudaccount.CloudAccount) error {
	if err := r.db.WithContext(ctx).Create(a).Error; err != nil {
		if database.IsDuplicate(err) {
			return apperrors.Conflict("cloud account", "account "+a.AccountID+" is already connected")
		}
		return apperrors.Storage("insert cloud account", err)
	}
	return nil
}

// Get returns the account only if it belongs to organizationID.
func (r *CloudAccountRepository) Get(ctx context.Context, organizationID, id string) (*cloudaccount.CloudAccount, error) {
	var a cloudaccount.CloudAccount
	err := r.db.WithContext(ctx).
		Where("id = ? AND organization_id = ?", id, organizationID).
		First(&a).Error
	if err != nil {
		if database.IsNotFound(err) {
			return nil, apperrors.NotFound("cloud account", id)
		}
		return nil, apperrors.Storage("get cloud account", err)
	}
	return &a, nil
}

// Update writes only the given columns of an account in organizationID and
// returns the stored row. A missing account is never recreated.
func (r *CloudAccountRepository) Update(ctx context.Context, organizationID, id string, changes map[string]interface{}) (*cloudaccount.CloudAccount, error) {
	fields := make(map[string]interface{}, len(changes)+1)
	for column, value := range changes {
		fields[column] = value
	}
	fields["updated_at"] = time.Now().UTC()

	res := r.db.WithContext(ctx).
		Model(&cloudaccount.CloudAccount{}).
		Where("id = ? AND organization_id = ?", id, organizationID).
		Updates(fields)
	if res.Error != nil {
		return nil, apperrors.Storage("update cloud account", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperrors.NotFound("cloud account", id)
	}
	return r.Get(ctx, organizationID, id)
}

func (r *CloudAccountRepository) Delete(ctx context.Context, organizationID, id string) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND organization_id = ?", id, organizationID).
		Delete(&cloudaccount.CloudAccount{})
	if res.Error != nil {
		return apperrors.Storage("delete cloud account", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.NotFound("cloud account", id)
	}
	return nil
}

func (r *CloudAccountRepository) FetchPage(ctx context.Context, b pagination.Bounds, c pagination.Criteria[Scope]) ([]cloudaccount.CloudAccount, error) {
	var accounts []cloudaccount.CloudAccount
	err := r.db.WithContext(ctx).
		Scopes(r.filter(c), repository.Page(b)).
		Find(&accounts).Error
	if err != nil {
		return nil, apperrors.Storage("list cloud accounts", err)
	}
	return accounts, nil
}

func (r *CloudAccountRepository) Count(ctx context.Context, c pagination.Criteria[Scope]) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&cloudaccount.CloudAccount{}).
		Scopes(r.filter(c)).
		Count(&total).Error
	if err != nil {
		return 0, apperrors.Storage("count cloud accounts", err)
	}
	return total, nil
}

func (r *CloudAccountRepository) filter(c pagination.Criteria[Scope]) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		db = db.Where("organization_id = ?", c.Scope.OrganizationID)
		if c.Scope.Provider != "" {
			db = db.Where("provider = ?", c.Scope.Provider)
		}
		if c.Scope.Status != "" {
			db = db.Where("status = ?", c.Scope.Status)
		}
		return db.Scopes(repository.Search(c.Search, "name", "account_id"))
	}
}

// RecordSync stores the result of a sync run. The account may have been
// deleted meanwhile; that is not an error.
func (r *CloudAccountRepository) RecordSync(ctx context.Context, id string, result cloudaccount.SyncResult) error {
	err := r.db.WithContext(ctx).
		Model(&cloudaccount.CloudAccount{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       result.Status,
			"last_error":   result.LastError,
			"last_sync_at": result.SyncedAt,
			"updated_at":   time.Now().UTC(),
		}).Error
	if err != nil {
		return apperrors.Storage("record cloud account sync", err)
	}
	return nil
}

// GetByID loads an account regardless of organization. Only the job
// executor uses it, with ids taken from stored jobs.
func (r *CloudAccountRepository) GetByID(ctx context.Context, id string) (*cloudaccount.CloudAccount, error) {
	var a cloudaccount.CloudAccount
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, apperrors.NotFound("cloud account", id)
		}
		return nil, apperrors.Storage("get cloud account", err)
	}
	return &a, nil
}

// ListSyncable returns accounts the scheduler should refresh.
func (r *CloudAccountRepository) ListSyncable(ctx context.Context) ([]cloudaccount.CloudAccount, error) {
	var accounts []cloudaccount.CloudAccount
	err := r.db.WithContext(ctx).
		Where("provider = ? AND status IN ?", cloudaccount.ProviderAWS,
			[]cloudaccount.Status{cloudaccount.StatusPending, cloudaccount.StatusConnected}).
		Order("created_at").
		Find(&accounts).Error
	if err != nil {
		return nil, apperrors.Storage("list syncable cloud accounts", err)
	}
	return accounts, nil
}
