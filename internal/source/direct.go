package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	ekstypes "github.com/aws/aws-sdk-go-v2/service/eks/types"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbtypes "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/rs/zerolog/log"

	"github.com/yairfalse/awsutils/pkg/inventory"
)

// Direct scans a single account and region through the service APIs and
// renders the results in the same shape AWS Config returns.
type Direct struct {
	region    string
	accountID string

	// AWS clients (interfaces for testability)
	ec2Client EC2API
	elbClient ELBAPI
	rdsClient RDSAPI
	eksClient EKSAPI
}

// NewDirect creates a direct source for the account behind cfg.
func NewDirect(ctx context.Context, cfg aws.Config) (*Direct, error) {
	accountID, err := getAccountID(ctx, sts.NewFromConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("get account id: %w", err)
	}

	return &Direct{
		region:    cfg.Region,
		accountID: accountID,
		ec2Client: ec2.NewFromConfig(cfg),
		elbClient: elasticloadbalancingv2.NewFromConfig(cfg),
		rdsClient: rds.NewFromConfig(cfg),
		eksClient: eks.NewFromConfig(cfg),
	}, nil
}

func getAccountID(ctx context.Context, client STSAPI) (string, error) {
	output, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", err
	}
	return aws.ToString(output.Account), nil
}

// Name returns the source identifier.
func (d *Direct) Name() string {
	return "direct"
}

type scanner struct {
	name string
	fn   func(context.Context) ([]inventory.Record, error)
}

func (d *Direct) scanners() []scanner {
	return []scanner{
		{"network_interface", d.scanNetworkInterfaces},
		{"eip", d.scanElasticIPs},
		{"elb", d.scanLoadBalancers},
		{"rds", d.scanDBInstances},
		{"eks", d.scanEKSClusters},
	}
}

// Records runs every scanner concurrently. A failing scanner is logged and
// contributes nothing; results keep scanner order. Records fails when ctx is
// done or when no scanner succeeded.
func (d *Direct) Records(ctx context.Context) ([]string, error) {
	scanners := d.scanners()
	results := make([][]inventory.Record, len(scanners))
	errs := make([]error, len(scanners))

	var wg sync.WaitGroup
	for i, s := range scanners {
		wg.Add(1)
		go func(i int, s scanner) {
			defer wg.Done()
			recs, err := s.fn(ctx)
			if err != nil {
				errs[i] = fmt.Errorf("scan %s: %w", s.name, err)
				log.Warn().Err(err).Str("scanner", s.name).Msg("scan failed")
				return
			}
			results[i] = recs
			log.Debug().Str("scanner", s.name).Int("count", len(recs)).Msg("scan complete")
		}(i, s)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("direct scan: %w", err)
	}
	if allFailed(errs) {
		return nil, fmt.Errorf("direct scan: every scanner failed: %w", errors.Join(errs...))
	}

	var out []string
	for _, recs := range results {
		for _, r := range recs {
			data, err := json.Marshal(r)
			if err != nil {
				return nil, fmt.Errorf("encode record %s: %w", r.ResourceID, err)
			}
			out = append(out, string(data))
		}
	}
	return out, nil
}

func allFailed(errs []error) bool {
	for _, err := range errs {
		if err == nil {
			return false
		}
	}
	return len(errs) > 0
}

// helper to create record with common fields
func (d *Direct) newRecord(id, typ, name string, configuration map[string]any) inventory.Record {
	return inventory.Record{
		AccountID:     d.accountID,
		ResourceID:    id,
		ResourceName:  name,
		ResourceType:  typ,
		AWSRegion:     d.region,
		Configuration: configuration,
	}
}

// scanNetworkInterfaces scans network interfaces that carry a public IP.
func (d *Direct) scanNetworkInterfaces(ctx context.Context) ([]inventory.Record, error) {
	paginator := ec2.NewDescribeNetworkInterfacesPaginator(d.ec2Client, &ec2.DescribeNetworkInterfacesInput{})

	var records []inventory.Record
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe network interfaces: %w", err)
		}

		for _, eni := range output.NetworkInterfaces {
			if eni.Association == nil || eni.Association.PublicIp == nil {
				continue
			}
			records = append(records, d.convertNetworkInterface(eni))
		}
	}

	return records, nil
}

func (d *Direct) convertNetworkInterface(eni ec2types.NetworkInterface) inventory.Record {
	id := aws.ToString(eni.NetworkInterfaceId)
	return d.newRecord(id, inventory.TypeNetworkInterface, aws.ToString(eni.Description), map[string]any{
		"networkInterfaceId": id,
		"association": map[string]any{
			"publicIp":      aws.ToString(eni.Association.PublicIp),
			"publicDnsName": aws.ToString(eni.Association.PublicDnsName),
		},
	})
}

// scanElasticIPs scans Elastic IPs (no pagination needed).
func (d *Direct) scanElasticIPs(ctx context.Context) ([]inventory.Record, error) {
	output, err := d.ec2Client.DescribeAddresses(ctx, &ec2.DescribeAddressesInput{})
	if err != nil {
		return nil, fmt.Errorf("describe addresses: %w", err)
	}

	records := make([]inventory.Record, 0, len(output.Addresses))
	for _, addr := range output.Addresses {
		records = append(records, d.convertElasticIP(addr))
	}
	return records, nil
}

func (d *Direct) convertElasticIP(addr ec2types.Address) inventory.Record {
	configuration := map[string]any{
		"allocationId": aws.ToString(addr.AllocationId),
		"publicIp":     addr.PublicIp,
	}
	if addr.NetworkInterfaceId != nil {
		configuration["networkInterfaceId"] = aws.ToString(addr.NetworkInterfaceId)
	}
	return d.newRecord(aws.ToString(addr.AllocationId), inventory.TypeElasticIP, extractNameTag(addr.Tags), configuration)
}

// scanLoadBalancers scans internet-facing load balancers.
func (d *Direct) scanLoadBalancers(ctx context.Context) ([]inventory.Record, error) {
	paginator := elasticloadbalancingv2.NewDescribeLoadBalancersPaginator(d.elbClient, &elasticloadbalancingv2.DescribeLoadBalancersInput{})

	var records []inventory.Record
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe load balancers: %w", err)
		}

		for _, lb := range output.LoadBalancers {
			if lb.Scheme != elbtypes.LoadBalancerSchemeEnumInternetFacing {
				continue
			}
			records = append(records, d.convertLoadBalancer(lb))
		}
	}

	return records, nil
}

func (d *Direct) convertLoadBalancer(lb elbtypes.LoadBalancer) inventory.Record {
	return d.newRecord(aws.ToString(lb.LoadBalancerArn), inventory.TypeLoadBalancer, aws.ToString(lb.LoadBalancerName), map[string]any{
		"dNSName": aws.ToString(lb.DNSName),
		"scheme":  string(lb.Scheme),
		"type":    string(lb.Type),
	})
}

// scanDBInstances scans publicly accessible RDS instances.
func (d *Direct) scanDBInstances(ctx context.Context) ([]inventory.Record, error) {
	paginator := rds.NewDescribeDBInstancesPaginator(d.rdsClient, &rds.DescribeDBInstancesInput{})

	var records []inventory.Record
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe db instances: %w", err)
		}

		for _, instance := range output.DBInstances {
			if !aws.ToBool(instance.PubliclyAccessible) {
				continue
			}
			records = append(records, d.convertDBInstance(instance))
		}
	}

	return records, nil
}

func (d *Direct) convertDBInstance(instance rdstypes.DBInstance) inventory.Record {
	configuration := map[string]any{
		"publiclyAccessible": true,
		"engine":             aws.ToString(instance.Engine),
	}
	if instance.Endpoint != nil {
		configuration["endpoint"] = map[string]any{
			"address": aws.ToString(instance.Endpoint.Address),
			"port":    aws.ToInt32(instance.Endpoint.Port),
		}
	}
	id := aws.ToString(instance.DBInstanceIdentifier)
	return d.newRecord(aws.ToString(instance.DbiResourceId), inventory.TypeDBInstance, id, configuration)
}

// scanEKSClusters scans EKS clusters.
func (d *Direct) scanEKSClusters(ctx context.Context) ([]inventory.Record, error) {
	paginator := eks.NewListClustersPaginator(d.eksClient, &eks.ListClustersInput{})

	var records []inventory.Record
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list eks clusters: %w", err)
		}

		for _, name := range output.Clusters {
			desc, err := d.eksClient.DescribeCluster(ctx, &eks.DescribeClusterInput{Name: aws.String(name)})
			if err != nil {
				return nil, fmt.Errorf("describe eks cluster %s: %w", name, err)
			}
			if desc.Cluster == nil {
				continue
			}
			records = append(records, d.convertEKSCluster(desc.Cluster))
		}
	}

	return records, nil
}

func (d *Direct) convertEKSCluster(cluster *ekstypes.Cluster) inventory.Record {
	configuration := map[string]any{
		"name":     aws.ToString(cluster.Name),
		"endpoint": aws.ToString(cluster.Endpoint),
		"status":   string(cluster.Status),
	}
	if vpc := cluster.ResourcesVpcConfig; vpc != nil {
		configuration["resourcesVpcConfig"] = map[string]any{
			"endpointPrivateAccess": vpc.EndpointPrivateAccess,
			"endpointPublicAccess":  vpc.EndpointPublicAccess,
			"publicAccessCidrs":     vpc.PublicAccessCidrs,
		}
	}
	name := aws.ToString(cluster.Name)
	return d.newRecord(name, inventory.TypeEKSCluster, name, configuration)
}

func extractNameTag(tags []ec2types.Tag) string {
	for _, tag := range tags {
		if aws.ToString(tag.Key) == "Name" {
			return aws.ToString(tag.Value)
		}
	}
	return ""
}
