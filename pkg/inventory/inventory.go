// Package inventory defines the public data model for awsutils.
package inventory

// AWS Config resource types recognised by the public IP formatter.
const (
	TypeNetworkInterface = "AWS::EC2::NetworkInterface"
	TypeElasticIP        = "AWS::EC2::EIP"
	TypeDBInstance       = "AWS::RDS::DBInstance"
	TypeLoadBalancer     = "AWS::ElasticLoadBalancingV2::LoadBalancer"
	TypeEKSCluster       = "AWS::EKS::Cluster"
)

// Record is one AWS Config item as returned by an inventory query.
// Configuration is left raw because its shape depends on ResourceType.
type Record struct {
	AccountID     string         `json:"accountId"`
	ResourceID    string         `json:"resourceId"`
	ResourceName  string         `json:"resourceName"`
	ResourceType  string         `json:"resourceType"`
	AWSRegion     string         `json:"awsRegion"`
	Configuration map[string]any `json:"configuration,omitempty"`
}

// Base holds the fields common to every exposure.
type Base struct {
	AccountID    string `json:"accountId" yaml:"accountId"`
	ResourceID   string `json:"resourceId" yaml:"resourceId"`
	ResourceName string `json:"resourceName" yaml:"resourceName"`
	Region       string `json:"region" yaml:"region"`
	ResourceType string `json:"resourceType" yaml:"resourceType"`
}

// Address is set on exposures whose public IP is known from inventory.
type Address struct {
	PublicIP *string `json:"publicIp" yaml:"publicIp"`
}

// Attachment is set on Elastic IP exposures. The interface key is always
// present, null when the address is not associated.
type Attachment struct {
	NetworkInterfaceID *string `json:"networkInterfaceId" yaml:"networkInterfaceId"`
}

// ClusterAccess carries the EKS endpoint access settings.
type ClusterAccess struct {
	EndpointPrivateAccess *bool    `json:"eksEndpointPrivateAccess" yaml:"eksEndpointPrivateAccess"`
	EndpointPublicAccess  *bool    `json:"eksEndpointPublicAccess" yaml:"eksEndpointPublicAccess"`
	PublicAccessCidrs     []string `json:"eksPublicAccessCidrs" yaml:"eksPublicAccessCidrs"`
}

// Resolution is set on exposures reached through a DNS name.
type Resolution struct {
	ResolvedIPs []string `json:"resolvedIps" yaml:"resolvedIps"`
	FQDN        string   `json:"fqdn" yaml:"fqdn"`
}

// Exposure is a formatted, publicly reachable resource.
// Exactly one of Address or Resolution is set; Attachment only for Elastic
// IPs and ClusterAccess only for EKS. Both encodings flatten the embedded
// parts into one object.
type Exposure struct {
	Base           `yaml:",inline"`
	*Address       `yaml:",inline"`
	*Attachment    `yaml:",inline"`
	*ClusterAccess `yaml:",inline"`
	*Resolution    `yaml:",inline"`
}

// PublicIPs returns every IP this exposure is reachable on.
func (e Exposure) PublicIPs() []string {
	if e.Address != nil && e.Address.PublicIP != nil {
		return []string{*e.Address.PublicIP}
	}
	if e.Resolution != nil {
		return e.Resolution.ResolvedIPs
	}
	return nil
}

// Query is a named AWS Config advanced query.
type Query struct {
	Name       string `json:"name" yaml:"name" toml:"name"`
	Expression string `json:"expression" yaml:"expression" toml:"expression"`
}
