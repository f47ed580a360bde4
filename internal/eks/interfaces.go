package eks

import (
	"context"

	awseks "github.com/aws/aws-sdk-go-v2/service/eks"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// STSAPI defines the STS operations used to assume the cluster role.
type STSAPI interface {
	AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
}

// EKSAPI defines the EKS operations used to manage cluster access.
type EKSAPI interface {
	DescribeCluster(ctx context.Context, params *awseks.DescribeClusterInput, optFns ...func(*awseks.Options)) (*awseks.DescribeClusterOutput, error)
	ListAccessEntries(ctx context.Context, params *awseks.ListAccessEntriesInput, optFns ...func(*awseks.Options)) (*awseks.ListAccessEntriesOutput, error)
	CreateAccessEntry(ctx context.Context, params *awseks.CreateAccessEntryInput, optFns ...func(*awseks.Options)) (*awseks.CreateAccessEntryOutput, error)
	UpdateAccessEntry(ctx context.Context, params *awseks.UpdateAccessEntryInput, optFns ...func(*awseks.Options)) (*awseks.UpdateAccessEntryOutput, error)
	AssociateAccessPolicy(ctx context.Context, params *awseks.AssociateAccessPolicyInput, optFns ...func(*awseks.Options)) (*awseks.AssociateAccessPolicyOutput, error)
}
