// Package eks grants an assumed IAM role admin access to an EKS cluster
// and builds a kubeconfig for it.
package eks

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awseks "github.com/aws/aws-sdk-go-v2/service/eks"
	ekstypes "github.com/aws/aws-sdk-go-v2/service/eks/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog/log"
)

const (
	// AdminPolicyARN is the access policy associated with the assumed role.
	AdminPolicyARN = "arn:aws:eks::aws:cluster-access-policy/AmazonEKSAdminPolicy"
	// AdminGroup is the Kubernetes group given to a new access entry.
	AdminGroup = "masters"

	sessionPrefix = "EksAssumeRole-"
)

// Options identifies the cluster and the role used to reach it.
type Options struct {
	ClusterName string
	Region      string
	RoleARN     string
}

// ClusterManager holds an EKS client authenticated as the assumed role
// and the cluster description fetched at construction.
type ClusterManager struct {
	opts      Options
	stsClient STSAPI
	newEKS    func(aws.Credentials) EKSAPI
	eksClient EKSAPI
	cluster   *ekstypes.Cluster
}

// NewClusterManager assumes the role, builds an EKS client with the
// assumed credentials and describes the cluster.
func NewClusterManager(ctx context.Context, cfg aws.Config, opts Options) (*ClusterManager, error) {
	if opts.Region == "" {
		opts.Region = cfg.Region
	}
	base := cfg.Copy()
	base.Region = opts.Region

	newEKS := func(creds aws.Credentials) EKSAPI {
		c := base.Copy()
		c.Credentials = credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken)
		return awseks.NewFromConfig(c)
	}
	return newClusterManager(ctx, sts.NewFromConfig(base), newEKS, opts)
}

func newClusterManager(ctx context.Context, stsClient STSAPI, newEKS func(aws.Credentials) EKSAPI, opts Options) (*ClusterManager, error) {
	m := &ClusterManager{
		opts:      opts,
		stsClient: stsClient,
		newEKS:    newEKS,
	}

	creds, err := m.assumeRole(ctx)
	if err != nil {
		return nil, err
	}
	m.eksClient = newEKS(creds)

	cluster, err := m.describeCluster(ctx)
	if err != nil {
		return nil, err
	}
	m.cluster = cluster

	return m, nil
}

// Cluster returns the description fetched at construction.
func (m *ClusterManager) Cluster() *ekstypes.Cluster {
	return m.cluster
}

func (m *ClusterManager) assumeRole(ctx context.Context) (aws.Credentials, error) {
	output, err := m.stsClient.AssumeRole(ctx, &sts.AssumeRoleInput{
		RoleArn:         aws.String(m.opts.RoleARN),
		RoleSessionName: aws.String(sessionPrefix + m.opts.ClusterName),
	})
	if err != nil {
		return aws.Credentials{}, fmt.Errorf("assume role %s: %w", m.opts.RoleARN, err)
	}
	if output.Credentials == nil {
		return aws.Credentials{}, fmt.Errorf("assume role %s: no credentials returned", m.opts.RoleARN)
	}

	return aws.Credentials{
		AccessKeyID:     aws.ToString(output.Credentials.AccessKeyId),
		SecretAccessKey: aws.ToString(output.Credentials.SecretAccessKey),
		SessionToken:    aws.ToString(output.Credentials.SessionToken),
		Source:          "AssumeRole",
	}, nil
}

func (m *ClusterManager) describeCluster(ctx context.Context) (*ekstypes.Cluster, error) {
	output, err := m.eksClient.DescribeCluster(ctx, &awseks.DescribeClusterInput{
		Name: aws.String(m.opts.ClusterName),
	})
	if err != nil {
		return nil, fmt.Errorf("describe cluster %s: %w", m.opts.ClusterName, err)
	}

	if output.Cluster == nil {
		return nil, fmt.Errorf("describe cluster %s: no cluster data", m.opts.ClusterName)
	}
	if aws.ToString(output.Cluster.Endpoint) == "" {
		return nil, fmt.Errorf("describe cluster %s: empty api server endpoint", m.opts.ClusterName)
	}
	if output.Cluster.CertificateAuthority == nil || aws.ToString(output.Cluster.CertificateAuthority.Data) == "" {
		return nil, fmt.Errorf("describe cluster %s: empty certificate authority data", m.opts.ClusterName)
	}

	return output.Cluster, nil
}

// HasAccessEntry reports whether the role already has an access entry.
// An entry matches when it is contained in the role ARN.
func (m *ClusterManager) HasAccessEntry(ctx context.Context) (bool, error) {
	paginator := awseks.NewListAccessEntriesPaginator(m.eksClient, &awseks.ListAccessEntriesInput{
		ClusterName: aws.String(m.opts.ClusterName),
	})

	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return false, fmt.Errorf("list access entries: %w", err)
		}
		for _, entry := range output.AccessEntries {
			if entry != "" && strings.Contains(m.opts.RoleARN, entry) {
				return true, nil
			}
		}
	}
	return false, nil
}

// EnsureAccessEntry creates the access entry and associates the admin
// policy when the role has none. It returns true if anything changed.
func (m *ClusterManager) EnsureAccessEntry(ctx context.Context) (bool, error) {
	found, err := m.HasAccessEntry(ctx)
	if err != nil {
		return false, err
	}
	if found {
		log.Debug().Str("cluster", m.opts.ClusterName).Msg("access entry present")
		return false, nil
	}

	_, err = m.eksClient.CreateAccessEntry(ctx, &awseks.CreateAccessEntryInput{
		ClusterName:      aws.String(m.opts.ClusterName),
		PrincipalArn:     aws.String(m.opts.RoleARN),
		KubernetesGroups: []string{AdminGroup},
	})
	if err != nil && !isAlreadyExists(err) {
		return false, fmt.Errorf("create access entry: %w", err)
	}

	if _, err := m.eksClient.UpdateAccessEntry(ctx, &awseks.UpdateAccessEntryInput{
		ClusterName:  aws.String(m.opts.ClusterName),
		PrincipalArn: aws.String(m.opts.RoleARN),
	}); err != nil {
		return false, fmt.Errorf("update access entry: %w", err)
	}

	if _, err := m.eksClient.AssociateAccessPolicy(ctx, &awseks.AssociateAccessPolicyInput{
		ClusterName:  aws.String(m.opts.ClusterName),
		PrincipalArn: aws.String(m.opts.RoleARN),
		PolicyArn:    aws.String(AdminPolicyARN),
		AccessScope:  &ekstypes.AccessScope{Type: ekstypes.AccessScopeTypeCluster},
	}); err != nil {
		return false, fmt.Errorf("associate access policy: %w", err)
	}

	log.Info().
		Str("cluster", m.opts.ClusterName).
		Str("role", m.opts.RoleARN).
		Msg("access entry created")
	return true, nil
}

func isAlreadyExists(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "ResourceInUseException"
	}
	return false
}

func decodeCA(data string) ([]byte, error) {
	ca, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode certificate authority: %w", err)
	}
	return ca, nil
}
