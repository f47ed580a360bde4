// Package cost reports per-account spend from Cost Explorer and splits
// accounts into those that look unused and those that need a review.
package cost

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	cetypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultThreshold is the spend below which an account is proposed for deletion.
	DefaultThreshold = 1.0
	// DefaultWindow is how far back spend is summed.
	DefaultWindow = 30 * 24 * time.Hour

	dateLayout = "2006-01-02"
	metricName = "UnblendedCost"
)

// Account is an organization member account.
type Account struct {
	ID     string `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Email  string `json:"email" yaml:"email"`
	Status string `json:"status" yaml:"status"`
}

// AccountCost is the spend of one account over the window.
type AccountCost struct {
	Account   string                 `json:"account" yaml:"account"`
	Name      string                 `json:"name,omitempty" yaml:"name,omitempty"`
	TotalCost float64                `json:"totalCost" yaml:"totalCost"`
	Results   []cetypes.ResultByTime `json:"results,omitempty" yaml:"results,omitempty"`
}

// Summary splits accounts by spend.
type Summary struct {
	Start  string        `json:"start" yaml:"start"`
	End    string        `json:"end" yaml:"end"`
	Delete []AccountCost `json:"delete" yaml:"delete"`
	Review []AccountCost `json:"review" yaml:"review"`
}

// Reporter queries Organizations and Cost Explorer.
type Reporter struct {
	orgClient OrganizationsAPI
	ceClient  CostExplorerAPI
	threshold float64
	window    time.Duration
	now       func() time.Time
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithThreshold sets the delete threshold.
func WithThreshold(threshold float64) Option {
	return func(r *Reporter) { r.threshold = threshold }
}

// WithWindow sets how far back spend is summed.
func WithWindow(window time.Duration) Option {
	return func(r *Reporter) {
		if window > 0 {
			r.window = window
		}
	}
}

// NewReporter creates a reporter from an AWS config.
func NewReporter(cfg aws.Config, opts ...Option) *Reporter {
	return newReporter(organizations.NewFromConfig(cfg), costexplorer.NewFromConfig(cfg), opts...)
}

func newReporter(org OrganizationsAPI, ce CostExplorerAPI, opts ...Option) *Reporter {
	r := &Reporter{
		orgClient: org,
		ceClient:  ce,
		threshold: DefaultThreshold,
		window:    DefaultWindow,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ListAccounts returns every account directly under parentID.
func (r *Reporter) ListAccounts(ctx context.Context, parentID string) ([]Account, error) {
	paginator := organizations.NewListAccountsForParentPaginator(r.orgClient, &organizations.ListAccountsForParentInput{
		ParentId: aws.String(parentID),
	})

	var accounts []Account
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list accounts for parent %s: %w", parentID, err)
		}
		for _, a := range output.Accounts {
			accounts = append(accounts, Account{
				ID:     aws.ToString(a.Id),
				Name:   aws.ToString(a.Name),
				Email:  aws.ToString(a.Email),
				Status: string(a.Status),
			})
		}
	}
	return accounts, nil
}

// BuildQuery returns a monthly unblended cost query grouped by linked account,
// and by service when byService is set. An empty accountID means all accounts.
func BuildQuery(start, end time.Time, accountID string, byService bool) *costexplorer.GetCostAndUsageInput {
	groupBy := []cetypes.GroupDefinition{
		{Type: cetypes.GroupDefinitionTypeDimension, Key: aws.String(string(cetypes.DimensionLinkedAccount))},
	}
	if byService {
		groupBy = append(groupBy, cetypes.GroupDefinition{
			Type: cetypes.GroupDefinitionTypeDimension,
			Key:  aws.String(string(cetypes.DimensionService)),
		})
	}

	input := &costexplorer.GetCostAndUsageInput{
		TimePeriod: &cetypes.DateInterval{
			Start: aws.String(start.Format(dateLayout)),
			End:   aws.String(end.Format(dateLayout)),
		},
		Granularity: cetypes.GranularityMonthly,
		Metrics:     []string{metricName},
		GroupBy:     groupBy,
	}
	if accountID != "" {
		input.Filter = &cetypes.Expression{
			Dimensions: &cetypes.DimensionValues{
				Key:    cetypes.DimensionLinkedAccount,
				Values: []string{accountID},
			},
		}
	}
	return input
}

// FetchCosts runs the query and follows NextPageToken until exhausted.
func (r *Reporter) FetchCosts(ctx context.Context, input *costexplorer.GetCostAndUsageInput) ([]cetypes.ResultByTime, error) {
	params := *input
	params.NextPageToken = nil

	var results []cetypes.ResultByTime
	for {
		output, err := r.ceClient.GetCostAndUsage(ctx, &params)
		if err != nil {
			return nil, fmt.Errorf("get cost and usage: %w", err)
		}
		results = append(results, output.ResultsByTime...)

		if aws.ToString(output.NextPageToken) == "" {
			break
		}
		params.NextPageToken = output.NextPageToken
	}
	return results, nil
}

// Total sums the unblended cost of every group. Groups without a
// parsable amount are logged and skipped.
func Total(results []cetypes.ResultByTime) float64 {
	var total float64
	for _, period := range results {
		for _, group := range period.Groups {
			m, ok := group.Metrics[metricName]
			if !ok || m.Amount == nil {
				log.Warn().Strs("keys", group.Keys).Msg("cost group has no amount")
				continue
			}
			amount, err := strconv.ParseFloat(aws.ToString(m.Amount), 64)
			if err != nil {
				log.Warn().Err(err).Strs("keys", group.Keys).Msg("cost amount not a number")
				continue
			}
			total += amount
		}
	}
	return total
}

// Summarize fetches spend for each account over the window and splits
// them at the threshold. Accounts keep their input order in each list.
func (r *Reporter) Summarize(ctx context.Context, accounts []Account, byService bool) (*Summary, error) {
	end := r.now().UTC()
	start := end.Add(-r.window)

	summary := &Summary{
		Start:  start.Format(dateLayout),
		End:    end.Format(dateLayout),
		Delete: []AccountCost{},
		Review: []AccountCost{},
	}

	for _, account := range accounts {
		results, err := r.FetchCosts(ctx, BuildQuery(start, end, account.ID, byService))
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", account.ID, err)
		}

		ac := AccountCost{
			Account:   account.ID,
			Name:      account.Name,
			TotalCost: Total(results),
			Results:   results,
		}
		log.Debug().
			Str("account", ac.Account).
			Float64("total", ac.TotalCost).
			Msg("account cost")

		if ac.TotalCost < r.threshold {
			summary.Delete = append(summary.Delete, ac)
		} else {
			summary.Review = append(summary.Review, ac)
		}
	}

	return summary, nil
}
