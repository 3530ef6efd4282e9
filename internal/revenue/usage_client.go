package revenue

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/royaltyworks-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/royaltyworks-backend/pkg/errors"
)

const defaultUsageBillingTimeout = 10 * time.Second

// HTTPUsageClient reads usage-based royalties from the external billing API.
type HTTPUsageClient struct {
	baseURL *url.URL
	token   string
	client  *http.Client
}

// NewHTTPUsageClient builds the billing client from config. The base URL is
// required so a misconfigured deployment fails at startup instead of mid-run.
func NewHTTPUsageClient(cfg config.UsageBillingConfig) (*HTTPUsageClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("usage billing base url required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing usage billing base url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultUsageBillingTimeout
	}
	return &HTTPUsageClient{
		baseURL: base,
		token:   cfg.APIToken,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

type usageRoyaltiesResponse struct {
	Royalties []struct {
		CreatorID         uuid.UUID `json:"creator_id"`
		UsageRevenueCents int64     `json:"usage_revenue_cents"`
		ShareBps          int64     `json:"share_bps"`
	} `json:"royalties"`
}

// UsageBasedRoyalties fetches the usage royalties reported for one license in
// the period.
func (c *HTTPUsageClient) UsageBasedRoyalties(ctx context.Context, licenseID uuid.UUID, periodStart, periodEnd time.Time) ([]UsageRoyalty, error) {
	endpoint := c.baseURL.JoinPath("v1", "licenses", licenseID.String(), "usage-royalties")
	query := endpoint.Query()
	query.Set("period_start", periodStart.UTC().Format(time.RFC3339))
	query.Set("period_end", periodEnd.UTC().Format(time.RFC3339))
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "building usage billing request")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "calling usage billing")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("usage billing returned status %d", resp.StatusCode))
	}

	var payload usageRoyaltiesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding usage billing response")
	}

	out := make([]UsageRoyalty, len(payload.Royalties))
	for i, r := range payload.Royalties {
		out[i] = UsageRoyalty{
			CreatorID:         r.CreatorID,
			UsageRevenueCents: r.UsageRevenueCents,
			ShareBps:          r.ShareBps,
		}
	}
	return out, nil
}
