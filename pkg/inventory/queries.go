package inventory

// DefaultQueries returns the AWS Config queries for publicly reachable
// network interfaces, Elastic IPs, load balancers, databases and EKS clusters.
func DefaultQueries() []Query {
	return []Query{
		{
			Name: "EC2",
			Expression: `SELECT accountId, resourceId, resourceName, resourceType,
       configuration.association.publicIp, groups.groupId,
       groups.groupName, availabilityZone, awsRegion
WHERE resourceType = 'AWS::EC2::NetworkInterface'
AND configuration.association.publicIp > '0.0.0.0'`,
		},
		{
			Name: "EIP",
			Expression: `SELECT accountId, resourceId, resourceName, resourceType,
       configuration.publicIp, configuration.networkInterfaceId,
       availabilityZone, awsRegion
WHERE resourceType = 'AWS::EC2::EIP'`,
		},
		{
			Name: "ELB",
			Expression: `SELECT accountId, resourceId, resourceName, resourceType,
       configuration.dNSName, configuration.securityGroups,
       availabilityZone, awsRegion
WHERE resourceType = 'AWS::ElasticLoadBalancingV2::LoadBalancer'
AND configuration.scheme = 'internet-facing'`,
		},
		{
			Name: "DB",
			Expression: `SELECT accountId, resourceId, resourceName, resourceType,
       configuration.endpoint.address,
       configuration.vpcSecurityGroups.vpcSecurityGroupId,
       availabilityZone, awsRegion
WHERE resourceType = 'AWS::RDS::DBInstance'
AND configuration.publiclyAccessible = true`,
		},
		{
			Name: "EKS",
			Expression: `SELECT accountId, resourceId, resourceName, resourceType,
       awsRegion, configuration.ResourcesVpcConfig.EndpointPublicAccess,
       configuration.ResourcesVpcConfig.EndpointPrivateAccess,
       configuration.ResourcesVpcConfig.PublicAccessCidrs,
       configuration.Endpoint
WHERE resourceType = 'AWS::EKS::Cluster'
AND configurationItemStatus != 'ResourceDeleted'`,
		},
	}
}
