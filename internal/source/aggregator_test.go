package source

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/configservice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/awsutils/pkg/inventory"
)

func TestAggregator_Records(t *testing.T) {
	var calls []string
	client := &mockConfigClient{
		SelectAggregateResourceConfigFunc: func(ctx context.Context, params *configservice.SelectAggregateResourceConfigInput, optFns ...func(*configservice.Options)) (*configservice.SelectAggregateResourceConfigOutput, error) {
			assert.Equal(t, "org-aggregator", aws.ToString(params.ConfigurationAggregatorName))
			expr := aws.ToString(params.Expression)
			calls = append(calls, expr+"|"+aws.ToString(params.NextToken))

			switch {
			case expr == "q1" && params.NextToken == nil:
				return &configservice.SelectAggregateResourceConfigOutput{
					Results:   []string{`{"resourceId":"a"}`},
					NextToken: aws.String("page2"),
				}, nil
			case expr == "q1":
				return &configservice.SelectAggregateResourceConfigOutput{
					Results: []string{`{"resourceId":"b"}`},
				}, nil
			default:
				return &configservice.SelectAggregateResourceConfigOutput{
					Results:   []string{`{"resourceId":"c"}`},
					NextToken: aws.String(""),
				}, nil
			}
		},
	}

	agg := newAggregator(client, "org-aggregator", []inventory.Query{
		{Name: "first", Expression: "q1"},
		{Name: "second", Expression: "q2"},
	})

	records, err := agg.Records(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{`{"resourceId":"a"}`, `{"resourceId":"b"}`, `{"resourceId":"c"}`}, records)
	assert.Equal(t, []string{"q1|", "q1|page2", "q2|"}, calls)
	assert.Equal(t, "aggregator", agg.Name())
}

func TestAggregator_RecordsError(t *testing.T) {
	client := &mockConfigClient{
		SelectAggregateResourceConfigFunc: func(ctx context.Context, params *configservice.SelectAggregateResourceConfigInput, optFns ...func(*configservice.Options)) (*configservice.SelectAggregateResourceConfigOutput, error) {
			return nil, errors.New("access denied")
		},
	}

	agg := newAggregator(client, "org-aggregator", []inventory.Query{{Name: "EC2", Expression: "SELECT 1"}})
	_, err := agg.Records(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EC2")
	assert.Contains(t, err.Error(), "access denied")
}

func TestAggregator_NoQueries(t *testing.T) {
	agg := newAggregator(&mockConfigClient{}, "org-aggregator", nil)
	records, err := agg.Records(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}
