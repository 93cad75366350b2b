package tunnel

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// CredentialChecker verifies that a shared-config profile yields usable
// credentials and returns the caller identity.
type CredentialChecker interface {
	CheckCredentials(ctx context.Context, profile, region string) (string, error)
}

// STSChecker calls STS GetCallerIdentity with the named profile.
type STSChecker struct {
	Timeout time.Duration
}

func (c STSChecker) CheckCredentials(ctx context.Context, profile, region string) (string, error) {
	timeout := c.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := []func(*awsconfig.LoadOptions) error{}
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	// STS is global; a region is still required to resolve the endpoint.
	if awsCfg.Region == "" {
		awsCfg.Region = "us-east-1"
	}

	out, err := sts.NewFromConfig(awsCfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("GetCallerIdentity failed: %w", err)
	}
	return aws.ToString(out.Arn), nil
}
