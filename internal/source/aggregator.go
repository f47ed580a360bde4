package source

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/configservice"
	"github.com/rs/zerolog/log"

	"github.com/yairfalse/awsutils/pkg/inventory"
)

// Aggregator runs advanced queries against an AWS Config aggregator.
type Aggregator struct {
	client     ConfigServiceAPI
	aggregator string
	queries    []inventory.Query
}

// NewAggregator creates an aggregator source from an AWS config.
func NewAggregator(cfg aws.Config, aggregator string, queries []inventory.Query) *Aggregator {
	return newAggregator(configservice.NewFromConfig(cfg), aggregator, queries)
}

func newAggregator(client ConfigServiceAPI, aggregator string, queries []inventory.Query) *Aggregator {
	return &Aggregator{
		client:     client,
		aggregator: aggregator,
		queries:    queries,
	}
}

// Name returns the source identifier.
func (a *Aggregator) Name() string {
	return "aggregator"
}

// Records runs every query in order and concatenates the results.
func (a *Aggregator) Records(ctx context.Context) ([]string, error) {
	var records []string
	for _, q := range a.queries {
		results, err := a.query(ctx, q)
		if err != nil {
			return nil, err
		}
		log.Debug().
			Str("aggregator", a.aggregator).
			Str("query", q.Name).
			Int("count", len(results)).
			Msg("config query complete")
		records = append(records, results...)
	}
	return records, nil
}

func (a *Aggregator) query(ctx context.Context, q inventory.Query) ([]string, error) {
	var results []string
	var nextToken *string

	for {
		output, err := a.client.SelectAggregateResourceConfig(ctx, &configservice.SelectAggregateResourceConfigInput{
			ConfigurationAggregatorName: aws.String(a.aggregator),
			Expression:                  aws.String(q.Expression),
			NextToken:                   nextToken,
		})
		if err != nil {
			return nil, fmt.Errorf("select aggregate resource config %s: %w", q.Name, err)
		}

		results = append(results, output.Results...)

		if aws.ToString(output.NextToken) == "" {
			break
		}
		nextToken = output.NextToken
	}

	return results, nil
}
