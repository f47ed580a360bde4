package publicip

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/yairfalse/awsutils/pkg/inventory"
)

// ErrMissingConfiguration is reported for a recognised record with no configuration object.
var ErrMissingConfiguration = errors.New("record has no configuration")

type kind int

const (
	kindIgnored kind = iota
	kindDirect
	kindPending
	kindDropped
)

// rawRecord mirrors an AWS Config item. Configuration is decoded per resource type.
type rawRecord struct {
	AccountID     string          `json:"accountId"`
	ResourceID    string          `json:"resourceId"`
	ResourceName  string          `json:"resourceName"`
	ResourceType  string          `json:"resourceType"`
	AWSRegion     string          `json:"awsRegion"`
	Configuration json.RawMessage `json:"configuration"`
}

// Configuration shapes. encoding/json matches keys case-insensitively, so
// both the Config item spelling and the API spelling decode.
type (
	networkInterfaceConfig struct {
		Association *struct {
			PublicIP *string `json:"publicIp"`
		} `json:"association"`
	}

	elasticIPConfig struct {
		PublicIP           *string `json:"publicIp"`
		NetworkInterfaceID *string `json:"networkInterfaceId"`
	}

	dbInstanceConfig struct {
		Endpoint *struct {
			Address string `json:"address"`
		} `json:"endpoint"`
	}

	loadBalancerConfig struct {
		DNSName string `json:"dNSName"`
	}

	eksClusterConfig struct {
		Endpoint           string `json:"endpoint"`
		ResourcesVpcConfig *struct {
			EndpointPrivateAccess *bool    `json:"endpointPrivateAccess"`
			EndpointPublicAccess  *bool    `json:"endpointPublicAccess"`
			PublicAccessCidrs     []string `json:"publicAccessCidrs"`
		} `json:"resourcesVpcConfig"`
	}
)

// classified is the result of looking at one record.
type classified struct {
	kind     kind
	exposure inventory.Exposure
	hostname string
	typ      string
	id       string
}

// classify decodes one record and decides whether it is emitted now,
// waits for DNS, is dropped, or is not an exposure at all.
func classify(entry string) (classified, error) {
	var rec rawRecord
	if err := json.Unmarshal([]byte(entry), &rec); err != nil {
		return classified{}, fmt.Errorf("decode record: %w", err)
	}

	c := classified{
		typ: rec.ResourceType,
		id:  rec.ResourceID,
		exposure: inventory.Exposure{Base: inventory.Base{
			AccountID:    rec.AccountID,
			ResourceID:   rec.ResourceID,
			ResourceName: rec.ResourceName,
			Region:       rec.AWSRegion,
			ResourceType: rec.ResourceType,
		}},
	}

	switch {
	case strings.Contains(rec.ResourceType, inventory.TypeNetworkInterface):
		var cfg networkInterfaceConfig
		if err := decodeConfiguration(rec.Configuration, &cfg); err != nil {
			return c, err
		}
		addr := &inventory.Address{}
		if cfg.Association != nil {
			addr.PublicIP = cfg.Association.PublicIP
		}
		c.exposure.Address = addr
		c.kind = kindDirect

	case strings.Contains(rec.ResourceType, inventory.TypeElasticIP):
		var cfg elasticIPConfig
		if err := decodeConfiguration(rec.Configuration, &cfg); err != nil {
			return c, err
		}
		c.exposure.Address = &inventory.Address{PublicIP: cfg.PublicIP}
		c.exposure.Attachment = &inventory.Attachment{NetworkInterfaceID: cfg.NetworkInterfaceID}
		c.kind = kindDirect

	case strings.Contains(rec.ResourceType, inventory.TypeDBInstance):
		var cfg dbInstanceConfig
		if err := decodeConfiguration(rec.Configuration, &cfg); err != nil {
			return c, err
		}
		if cfg.Endpoint != nil {
			c.hostname = cfg.Endpoint.Address
		}
		c.kind = pendingOrDropped(c.hostname)

	case strings.Contains(rec.ResourceType, inventory.TypeLoadBalancer):
		var cfg loadBalancerConfig
		if err := decodeConfiguration(rec.Configuration, &cfg); err != nil {
			return c, err
		}
		c.hostname = cfg.DNSName
		c.kind = pendingOrDropped(c.hostname)

	case strings.Contains(rec.ResourceType, inventory.TypeEKSCluster):
		var cfg eksClusterConfig
		if err := decodeConfiguration(rec.Configuration, &cfg); err != nil {
			return c, err
		}
		c.hostname = strings.TrimPrefix(cfg.Endpoint, "https://")
		c.kind = pendingOrDropped(c.hostname)
		if c.kind == kindPending {
			access := &inventory.ClusterAccess{}
			if vpc := cfg.ResourcesVpcConfig; vpc != nil {
				access.EndpointPrivateAccess = vpc.EndpointPrivateAccess
				access.EndpointPublicAccess = vpc.EndpointPublicAccess
				access.PublicAccessCidrs = vpc.PublicAccessCidrs
			}
			c.exposure.ClusterAccess = access
		}

	default:
		c.kind = kindIgnored
	}

	return c, nil
}

func pendingOrDropped(hostname string) kind {
	if hostname == "" {
		return kindDropped
	}
	return kindPending
}

func decodeConfiguration(raw json.RawMessage, v any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ErrMissingConfiguration
	}
	if trimmed[0] != '{' {
		return fmt.Errorf("%w: got %.20s", ErrMissingConfiguration, trimmed)
	}
	if err := json.Unmarshal(trimmed, v); err != nil {
		return fmt.Errorf("decode configuration: %w", err)
	}
	return nil
}
