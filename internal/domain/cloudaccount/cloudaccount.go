package cloudaccount

import (
	"time"

	"github.com/google/uuid"
)

type Provider string

const (
	ProviderAWS   Provider = "aws"
	ProviderAzure Provider = "azure"
	ProviderGCP   Provider = "gcp"
)

// Supported reports whether accounts of this provider can be connected.
// Azure and GCP are recognized but not yet connectable.
func (p Provider) Supported() bool {
	return p == ProviderAWS
}

type Status string

const (
	StatusPending      Status = "pending"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
	StatusDisconnected Status = "disconnected"
)

type CloudAccount struct {
	ID             string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OrganizationID string     `json:"organizationId" gorm:"not null;uniqueIndex:idx_cloud_accounts_org_account"`
	Name           string     `json:"name" gorm:"not null"`
	Provider       Provider   `json:"provider" gorm:"type:varchar(16);not null"`
	AccountID      string     `json:"accountId" gorm:"not null;uniqueIndex:idx_cloud_accounts_org_account"`
	RoleARN        string     `json:"roleArn,omitempty" gorm:"column:role_arn"`
	ExternalID     string     `json:"-"`
	Region         string     `json:"region,omitempty"`
	Status         Status     `json:"status" gorm:"type:varchar(16);not null;index"`
	LastSyncAt     *time.Time `json:"lastSyncAt,omitempty"`
	LastError      string     `json:"lastError,omitempty"`
	CreatedBy      string     `json:"createdBy"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

func (CloudAccount) TableName() string {
	return "cloud_accounts"
}

type CreateRequest struct {
	Name       string   `json:"name" binding:"required,min=1,max=100"`
	Provider   Provider `json:"provider" binding:"required,oneof=aws azure gcp"`
	AccountID  string   `json:"accountId" binding:"required,min=1,max=64"`
	RoleARN    string   `json:"roleArn" binding:"omitempty,max=2048"`
	ExternalID string   `json:"externalId" binding:"omitempty,min=2,max=1224"`
	Region     string   `json:"region" binding:"omitempty,max=32"`
}

type UpdateRequest struct {
	Name       *string `json:"name" binding:"omitempty,min=1,max=100"`
	RoleARN    *string `json:"roleArn" binding:"omitempty,max=2048"`
	ExternalID *string `json:"externalId" binding:"omitempty,min=2,max=1224"`
	Region     *string `json:"region" binding:"omitempty,max=32"`
}

func New(organizationID, createdBy string, req CreateRequest) *CloudAccount {
	now := time.Now().UTC()
	return &CloudAccount{
		ID:             uuid.NewString(),
		OrganizationID: organizationID,
		Name:           req.Name,
		Provider:       req.Provider,
		AccountID:      req.AccountID,
		RoleARN:        req.RoleARN,
		ExternalID:     req.ExternalID,
		Region:         req.Region,
		Status:         StatusPending,
		CreatedBy:      createdBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Changes returns the columns set in req with their new values. Sync
// state is never part of an update.
func (req UpdateRequest) Changes() map[string]interface{} {
	changes := make(map[string]interface{}, 4)
	if req.Name != nil {
		changes["name"] = *req.Name
	}
	if req.RoleARN != nil {
		changes["role_arn"] = *req.RoleARN
	}
	if req.ExternalID != nil {
		changes["external_id"] = *req.ExternalID
	}
	if req.Region != nil {
		changes["region"] = *req.Region
	}
	return changes
}

// SyncResult is what a sync run records on the account.
type SyncResult struct {
	Status    Status
	LastError string
	SyncedAt  time.Time
}
