package publicip

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/yairfalse/awsutils/internal/resolver"
	"github.com/yairfalse/awsutils/pkg/inventory"
)

const (
	eniRecord = `{"accountId":"111111111111","resourceId":"eni-1","resourceName":"web","resourceType":"AWS::EC2::NetworkInterface","awsRegion":"us-east-1","configuration":{"association":{"publicIp":"1.2.3.4"}}}`
	eipRecord = `{"accountId":"111111111111","resourceId":"eipalloc-1","resourceType":"AWS::EC2::EIP","awsRegion":"us-east-1","configuration":{"publicIp":"5.6.7.8","networkInterfaceId":"eni-9"}}`
	rdsRecord = `{"accountId":"222222222222","resourceId":"db-1","resourceName":"orders","resourceType":"AWS::RDS::DBInstance","awsRegion":"eu-west-1","configuration":{"endpoint":{"address":"db.example.com"}}}`
	elbRecord = `{"accountId":"222222222222","resourceId":"arn:aws:elasticloadbalancing:lb/app/web/1","resourceType":"AWS::ElasticLoadBalancingV2::LoadBalancer","awsRegion":"eu-west-1","configuration":{"dNSName":"web-1.elb.amazonaws.com"}}`
	eksRecord = `{"accountId":"333333333333","resourceId":"prod","resourceName":"prod","resourceType":"AWS::EKS::Cluster","awsRegion":"us-west-2","configuration":{"Endpoint":"https://abc.eks.amazonaws.com","ResourcesVpcConfig":{"EndpointPrivateAccess":true,"EndpointPublicAccess":true,"PublicAccessCidrs":["0.0.0.0/0"]}}}`
)

func newTestFormatter(t *testing.T, r Resolver, opts ...Option) *Formatter {
	t.Helper()
	f, err := New(r, opts...)
	require.NoError(t, err)
	return f
}

func TestFormat_NetworkInterface(t *testing.T) {
	r := &resolver.Static{}
	f := newTestFormatter(t, r)

	result := f.Format(context.Background(), []string{eniRecord})

	require.Len(t, result.Records, 1)
	rec := result.Records[0]
	require.NotNil(t, rec.Address)
	require.NotNil(t, rec.Address.PublicIP)
	assert.Equal(t, "1.2.3.4", *rec.Address.PublicIP)
	assert.Equal(t, "eni-1", rec.ResourceID)
	assert.Equal(t, "us-east-1", rec.Region)
	assert.Nil(t, rec.Resolution)
	assert.Equal(t, int64(0), r.Calls(), "no resolution batch should run")
}

func TestFormat_NetworkInterface_NoAssociation(t *testing.T) {
	f := newTestFormatter(t, &resolver.Static{})
	raw := `{"resourceId":"eni-2","resourceType":"AWS::EC2::NetworkInterface","configuration":{}}`

	result := f.Format(context.Background(), []string{raw})

	require.Len(t, result.Records, 1)
	require.NotNil(t, result.Records[0].Address)
	assert.Nil(t, result.Records[0].Address.PublicIP)

	out, err := json.Marshal(result.Records[0])
	require.NoError(t, err)
	assert.Contains(t, string(out), `"publicIp":null`)
}

func TestFormat_ElasticIP(t *testing.T) {
	f := newTestFormatter(t, &resolver.Static{})

	result := f.Format(context.Background(), []string{eipRecord})

	require.Len(t, result.Records, 1)
	addr := result.Records[0].Address
	require.NotNil(t, addr)
	assert.Equal(t, "5.6.7.8", *addr.PublicIP)
	require.NotNil(t, result.Records[0].Attachment)
	assert.Equal(t, "eni-9", *result.Records[0].Attachment.NetworkInterfaceID)
}

func TestFormat_ElasticIPUnattached(t *testing.T) {
	f := newTestFormatter(t, &resolver.Static{})
	raw := `{"resourceId":"eipalloc-2","resourceType":"AWS::EC2::EIP","configuration":{"publicIp":"9.8.7.6"}}`

	result := f.Format(context.Background(), []string{raw})

	require.Len(t, result.Records, 1)
	out, err := json.Marshal(result.Records[0])
	require.NoError(t, err)
	assert.Contains(t, string(out), `"networkInterfaceId":null`)
	assert.Contains(t, string(out), `"publicIp":"9.8.7.6"`)
}

func TestFormat_NetworkInterfaceHasNoAttachmentKey(t *testing.T) {
	f := newTestFormatter(t, &resolver.Static{})

	result := f.Format(context.Background(), []string{eniRecord})

	require.Len(t, result.Records, 1)
	out, err := json.Marshal(result.Records[0])
	require.NoError(t, err)
	assert.NotContains(t, string(out), "networkInterfaceId")
}

func TestFormat_RDSResolved(t *testing.T) {
	r := &resolver.Static{Answers: map[string][]string{"db.example.com": {"10.0.0.5"}}}
	f := newTestFormatter(t, r)

	result := f.Format(context.Background(), []string{rdsRecord})

	require.Len(t, result.Records, 1)
	res := result.Records[0].Resolution
	require.NotNil(t, res)
	assert.Equal(t, "db.example.com", res.FQDN)
	assert.Equal(t, []string{"10.0.0.5"}, res.ResolvedIPs)
	assert.Equal(t, "orders", result.Records[0].ResourceName)
}

func TestFormat_RDSWithoutEndpointDropped(t *testing.T) {
	r := &resolver.Static{}
	f := newTestFormatter(t, r)
	raw := `{"resourceId":"db-2","resourceType":"AWS::RDS::DBInstance","configuration":{"dBInstanceStatus":"creating"}}`

	result := f.Format(context.Background(), []string{raw})

	assert.Empty(t, result.Records)
	assert.Empty(t, result.Skipped)
	assert.Equal(t, int64(0), r.Calls())
}

func TestFormat_EKSResolutionFails(t *testing.T) {
	r := &resolver.Static{Errors: map[string]error{"abc.eks.amazonaws.com": errors.New("servfail")}}
	f := newTestFormatter(t, r)

	result := f.Format(context.Background(), []string{eksRecord})

	require.Len(t, result.Records, 1)
	rec := result.Records[0]
	require.NotNil(t, rec.Resolution)
	assert.Equal(t, "abc.eks.amazonaws.com", rec.Resolution.FQDN)
	assert.NotNil(t, rec.Resolution.ResolvedIPs)
	assert.Empty(t, rec.Resolution.ResolvedIPs)

	require.NotNil(t, rec.ClusterAccess)
	assert.True(t, *rec.ClusterAccess.EndpointPrivateAccess)
	assert.True(t, *rec.ClusterAccess.EndpointPublicAccess)
	assert.Equal(t, []string{"0.0.0.0/0"}, rec.ClusterAccess.PublicAccessCidrs)

	out, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"resolvedIps":[]`)
	assert.Contains(t, string(out), `"eksEndpointPublicAccess":true`)
}

func TestFormat_EKSLowerCaseKeys(t *testing.T) {
	r := &resolver.Static{Answers: map[string][]string{"xyz.eks.amazonaws.com": {"3.3.3.3"}}}
	f := newTestFormatter(t, r)
	raw := `{"resourceId":"dev","resourceType":"AWS::EKS::Cluster","configuration":{"endpoint":"https://xyz.eks.amazonaws.com","resourcesVpcConfig":{"endpointPublicAccess":false}}}`

	result := f.Format(context.Background(), []string{raw})

	require.Len(t, result.Records, 1)
	rec := result.Records[0]
	assert.Equal(t, []string{"3.3.3.3"}, rec.Resolution.ResolvedIPs)
	require.NotNil(t, rec.ClusterAccess)
	assert.False(t, *rec.ClusterAccess.EndpointPublicAccess)
	assert.Nil(t, rec.ClusterAccess.EndpointPrivateAccess)
}

func TestFormat_EKSWithoutEndpointDropped(t *testing.T) {
	f := newTestFormatter(t, &resolver.Static{})
	raw := `{"resourceId":"new","resourceType":"AWS::EKS::Cluster","configuration":{"ResourcesVpcConfig":{"EndpointPublicAccess":true}}}`

	result := f.Format(context.Background(), []string{raw})

	assert.Empty(t, result.Records)
}

func TestFormat_DirectBeforeResolvedRegardlessOfTiming(t *testing.T) {
	r := &resolver.Static{
		Answers: map[string][]string{"web-1.elb.amazonaws.com": {"9.9.9.9", "8.8.8.8"}},
		Delays:  map[string]time.Duration{"web-1.elb.amazonaws.com": 20 * time.Millisecond},
	}
	f := newTestFormatter(t, r)

	// ELB first in input, EIP second.
	result := f.Format(context.Background(), []string{elbRecord, eipRecord})

	require.Len(t, result.Records, 2)
	assert.Equal(t, inventory.TypeElasticIP, result.Records[0].ResourceType)
	assert.Equal(t, inventory.TypeLoadBalancer, result.Records[1].ResourceType)
	assert.Equal(t, []string{"8.8.8.8", "9.9.9.9"}, result.Records[1].Resolution.ResolvedIPs)
}

func TestFormat_ResolvedKeepEnqueueOrder(t *testing.T) {
	r := &resolver.Static{
		Answers: map[string][]string{
			"db.example.com":          {"10.0.0.5"},
			"web-1.elb.amazonaws.com": {"9.9.9.9"},
			"abc.eks.amazonaws.com":   {"7.7.7.7"},
		},
		// First enqueued finishes last.
		Delays: map[string]time.Duration{
			"db.example.com":          30 * time.Millisecond,
			"web-1.elb.amazonaws.com": 10 * time.Millisecond,
		},
	}
	f := newTestFormatter(t, r)

	result := f.Format(context.Background(), []string{rdsRecord, eniRecord, elbRecord, eipRecord, eksRecord})

	require.Len(t, result.Records, 5)
	got := make([]string, 0, len(result.Records))
	for _, rec := range result.Records {
		got = append(got, rec.ResourceID)
	}
	assert.Equal(t, []string{
		"eni-1",
		"eipalloc-1",
		"db-1",
		"arn:aws:elasticloadbalancing:lb/app/web/1",
		"prod",
	}, got)

	assert.Equal(t, []string{"10.0.0.5"}, result.Records[2].Resolution.ResolvedIPs)
	assert.Equal(t, []string{"9.9.9.9"}, result.Records[3].Resolution.ResolvedIPs)
	assert.Equal(t, []string{"7.7.7.7"}, result.Records[4].Resolution.ResolvedIPs)
}

func TestFormat_FailureIsolation(t *testing.T) {
	r := &resolver.Static{
		Answers: map[string][]string{"web-1.elb.amazonaws.com": {"9.9.9.9"}},
		Errors:  map[string]error{"db.example.com": errors.New("nxdomain")},
	}
	f := newTestFormatter(t, r)

	result := f.Format(context.Background(), []string{rdsRecord, elbRecord})

	require.Len(t, result.Records, 2)
	assert.Empty(t, result.Records[0].Resolution.ResolvedIPs)
	assert.Equal(t, []string{"9.9.9.9"}, result.Records[1].Resolution.ResolvedIPs)
}

func TestFormat_SkipsMalformedRecords(t *testing.T) {
	f := newTestFormatter(t, &resolver.Static{})
	raw := []string{
		`{not json`,
		`{"resourceId":"eni-3","resourceType":"AWS::EC2::NetworkInterface"}`,
		`{"resourceId":"eni-4","resourceType":"AWS::EC2::NetworkInterface","configuration":"oops"}`,
		eniRecord,
	}

	result := f.Format(context.Background(), raw)

	require.Len(t, result.Records, 1)
	assert.Equal(t, "eni-1", result.Records[0].ResourceID)

	require.Len(t, result.Skipped, 3)
	assert.Equal(t, 0, result.Skipped[0].Index)
	assert.Equal(t, 1, result.Skipped[1].Index)
	assert.Equal(t, "eni-3", result.Skipped[1].ResourceID)
	assert.ErrorIs(t, result.Skipped[1].Err, ErrMissingConfiguration)
	assert.ErrorIs(t, result.Skipped[2].Err, ErrMissingConfiguration)
}

func TestFormat_IgnoresUnknownTypes(t *testing.T) {
	f := newTestFormatter(t, &resolver.Static{})
	raw := `{"resourceId":"bucket","resourceType":"AWS::S3::Bucket","configuration":{"name":"bucket"}}`

	result := f.Format(context.Background(), []string{raw})

	assert.Empty(t, result.Records)
	assert.Empty(t, result.Skipped)
}

func TestFormat_EmptyInput(t *testing.T) {
	f := newTestFormatter(t, &resolver.Static{})

	result := f.Format(context.Background(), nil)

	assert.NotNil(t, result.Records)
	assert.Empty(t, result.Records)
}

func TestFormat_Idempotent(t *testing.T) {
	r := &resolver.Static{Answers: map[string][]string{
		"db.example.com":          {"10.0.0.6", "10.0.0.5"},
		"web-1.elb.amazonaws.com": {"9.9.9.9"},
		"abc.eks.amazonaws.com":   {"7.7.7.7"},
	}}
	f := newTestFormatter(t, r)
	input := []string{eksRecord, rdsRecord, eniRecord, elbRecord, eipRecord}

	first, err := json.Marshal(f.Format(context.Background(), input).Records)
	require.NoError(t, err)
	second, err := json.Marshal(f.Format(context.Background(), input).Records)
	require.NoError(t, err)

	assert.JSONEq(t, string(first), string(second))
}

func TestFormat_OutputBound(t *testing.T) {
	f := newTestFormatter(t, &resolver.Static{})
	input := []string{
		eniRecord,
		`{"resourceId":"db-x","resourceType":"AWS::RDS::DBInstance","configuration":{}}`,
		`{"resourceId":"lb-x","resourceType":"AWS::ElasticLoadBalancingV2::LoadBalancer","configuration":{"dNSName":""}}`,
		`{"resourceId":"fn","resourceType":"AWS::Lambda::Function","configuration":{}}`,
		rdsRecord,
	}

	result := f.Format(context.Background(), input)

	// one direct + one enqueued
	assert.Len(t, result.Records, 2)
	for _, rec := range result.Records {
		assert.NotEmpty(t, rec.ResourceID)
	}
}

func TestFormat_BatchTimeout(t *testing.T) {
	r := &resolver.Static{
		Answers: map[string][]string{
			"db.example.com":          {"10.0.0.5"},
			"web-1.elb.amazonaws.com": {"9.9.9.9"},
		},
		Delays: map[string]time.Duration{"db.example.com": time.Second},
	}
	f := newTestFormatter(t, r, WithTimeout(50*time.Millisecond))

	start := time.Now()
	result := f.Format(context.Background(), []string{rdsRecord, elbRecord})

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	require.Len(t, result.Records, 2)
	assert.Empty(t, result.Records[0].Resolution.ResolvedIPs)
	assert.Equal(t, []string{"9.9.9.9"}, result.Records[1].Resolution.ResolvedIPs)
}

func TestFormat_ConcurrencyOne(t *testing.T) {
	r := &resolver.Static{Answers: map[string][]string{
		"db.example.com":          {"10.0.0.5"},
		"web-1.elb.amazonaws.com": {"9.9.9.9"},
	}}
	f := newTestFormatter(t, r, WithConcurrency(1))

	result := f.Format(context.Background(), []string{rdsRecord, elbRecord})

	require.Len(t, result.Records, 2)
	assert.Equal(t, int64(2), r.Calls())
}

func TestFormat_Metrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	r := &resolver.Static{
		Answers: map[string][]string{"db.example.com": {"10.0.0.5"}},
		Errors:  map[string]error{"web-1.elb.amazonaws.com": errors.New("nxdomain")},
	}
	f := newTestFormatter(t, r, WithMeterProvider(provider))

	f.Format(context.Background(), []string{rdsRecord, elbRecord, eniRecord, `{bad`})

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	sums := map[string]metricdata.Sum[int64]{}
	for _, m := range rm.ScopeMetrics[0].Metrics {
		if s, ok := m.Data.(metricdata.Sum[int64]); ok {
			sums[m.Name] = s
		}
	}

	lookups, ok := sums["awsutils_dns_lookups_total"]
	require.True(t, ok)
	byResult := map[string]int64{}
	for _, dp := range lookups.DataPoints {
		v, _ := dp.Attributes.Value(attribute.Key("result"))
		byResult[v.AsString()] += dp.Value
	}
	assert.Equal(t, int64(1), byResult["ok"])
	assert.Equal(t, int64(1), byResult["error"])

	records, ok := sums["awsutils_records_total"]
	require.True(t, ok)
	byOutcome := map[string]int64{}
	for _, dp := range records.DataPoints {
		v, _ := dp.Attributes.Value(attribute.Key("outcome"))
		byOutcome[v.AsString()] += dp.Value
	}
	assert.Equal(t, int64(1), byOutcome[outcomeDirect])
	assert.Equal(t, int64(2), byOutcome[outcomeResolved])
	assert.Equal(t, int64(1), byOutcome[outcomeSkipped])
}
