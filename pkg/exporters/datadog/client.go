package datadog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV1"
)

const submitOperation = "v1.MetricsApi.SubmitMetrics"

// Series is one gauge submission
type Series struct {
	Metric string
	Value  float64
	Tags   []string
	Host   string
	Time   time.Time
}

// Response is the backend acknowledgment
type Response struct {
	Status string
}

// Client submits series to the metrics backend
type Client interface {
	Submit(ctx context.Context, s Series) (Response, error)
}

// APIClient submits series through the Datadog v1 metrics API
type APIClient struct {
	apiKey string
	site   string
	config *datadog.Configuration
	api    *datadogV1.MetricsApi
}

// NewAPIClient creates a client for the given site (e.g. datadoghq.eu).
// A nil httpClient uses a client with a 10s timeout.
func NewAPIClient(apiKey, site string, httpClient *http.Client) *APIClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	cfg := datadog.NewConfiguration()
	cfg.HTTPClient = httpClient
	return &APIClient{
		apiKey: apiKey,
		site:   site,
		config: cfg,
		api:    datadogV1.NewMetricsApi(datadog.NewAPIClient(cfg)),
	}
}

// WithEndpoint sends every request to the given base URL instead of the site
func (c *APIClient) WithEndpoint(endpoint string) *APIClient {
	servers := datadog.ServerConfigurations{{URL: endpoint}}
	c.config.Servers = servers
	if c.config.OperationServers == nil {
		c.config.OperationServers = map[string]datadog.ServerConfigurations{}
	}
	c.config.OperationServers[submitOperation] = servers
	return c
}

// Submit posts a single gauge point
func (c *APIClient) Submit(ctx context.Context, s Series) (Response, error) {
	ts := s.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	ctx = context.WithValue(ctx, datadog.ContextAPIKeys, map[string]datadog.APIKey{
		"apiKeyAuth": {Key: c.apiKey},
	})
	ctx = context.WithValue(ctx, datadog.ContextServerVariables, map[string]string{
		"site": c.site,
	})

	series := datadogV1.NewSeries(s.Metric, [][]*float64{
		{datadog.PtrFloat64(float64(ts.Unix())), datadog.PtrFloat64(s.Value)},
	})
	series.SetType("gauge")
	if len(s.Tags) > 0 {
		series.SetTags(s.Tags)
	}
	if s.Host != "" {
		series.SetHost(s.Host)
	}

	body := *datadogV1.NewMetricsPayload([]datadogV1.Series{*series})
	accepted, _, err := c.api.SubmitMetrics(ctx, body)
	if err != nil {
		var apiErr datadog.GenericOpenAPIError
		if errors.As(err, &apiErr) && len(apiErr.Body()) > 0 {
			return Response{}, fmt.Errorf("%w: %s", err, apiErr.Body())
		}
		return Response{}, err
	}
	return Response{Status: accepted.GetStatus()}, nil
}
