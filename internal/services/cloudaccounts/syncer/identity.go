package syncer

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials/stscreds"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sts"

	"github.com/scho1ar-go/internal/domain/cloudaccount"
)

const roleSessionName = "scho1ar-sync"

// IdentityChecker resolves the AWS account that the stored credentials of a
// cloud account actually reach.
type IdentityChecker interface {
	CallerAccount(ctx context.Context, a *cloudaccount.CloudAccount) (string, error)
}

type STSConfig struct {
	Region   string
	Endpoint string
}

// STSChecker asks STS who we are, assuming the account role first when one
// is configured.
type STSChecker struct {
	sess   *session.Session
	region string
}

func NewSTSChecker(cfg STSConfig) (*STSChecker, error) {
	awsCfg := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return &STSChecker{sess: sess, region: cfg.Region}, nil
}

func (c *STSChecker) CallerAccount(ctx context.Context, a *cloudaccount.CloudAccount) (string, error) {
	region := c.region
	if a.Region != "" {
		region = a.Region
	}
	cfg := aws.NewConfig().WithRegion(region)

	if a.RoleARN != "" {
		cfg = cfg.WithCredentials(stscreds.NewCredentials(c.sess, a.RoleARN, func(p *stscreds.AssumeRoleProvider) {
			p.RoleSessionName = roleSessionName
			if a.ExternalID != "" {
				p.ExternalID = aws.String(a.ExternalID)
			}
		}))
	}

	out, err := sts.New(c.sess, cfg).GetCallerIdentityWithContext(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", err
	}
	return aws.StringValue(out.Account), nil
}
