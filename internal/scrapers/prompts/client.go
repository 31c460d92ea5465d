package prompts

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"promptshelf/internal/components/telemetry"
	"promptshelf/lib/restyutil"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("scrapers/prompts")

const (
	DefaultHost            = "https://hardcover.app"
	DefaultGraphqlEndpoint = "https://api.hardcover.app/v1/graphql"

	report_client_graphql_query = "client.graphql-query"
)

type ClientOptions struct {
	// Host is the base url of the server rendered site, ex. https://hardcover.app
	Host            string
	GraphqlEndpoint string
	// Token is the bearer credential, it is attached to every request as-is
	// (a missing "Bearer " prefix is added).
	Token   string
	Timeout time.Duration
	// RequestsPerSecond limits the outgoing request rate, <= 0 disables the limiter.
	RequestsPerSecond float64
	// DisableCloudflareBypass leaves the default transport untouched, tests
	// talking to httptest servers set this.
	DisableCloudflareBypass bool
	// Dump receives every http exchange with credentials redacted, it may be nil.
	Dump restyutil.InstrumentOutput
}

type Client struct {
	http            *resty.Client
	tel             telemetry.API
	host            string
	graphqlEndpoint string
	authorization   string
}

func NewClient(opts ClientOptions, tel telemetry.API) *Client {
	tel = telemetry.NewScopedAPI("prompts_scraper", tel)

	if opts.Host == "" {
		opts.Host = DefaultHost
	}
	if opts.GraphqlEndpoint == "" {
		opts.GraphqlEndpoint = DefaultGraphqlEndpoint
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	httpClient := resty.New()
	httpClient.SetTimeout(opts.Timeout)
	httpClient.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36")
	if !opts.DisableCloudflareBypass {
		httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	}

	if opts.RequestsPerSecond > 0 {
		// burst >= 1 so that no request is ever dropped, only delayed
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		rateLimiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
		httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return rateLimiter.Wait(req.Context())
		})
	}
	telemetry.InstrumentResty(httpClient, tel)
	restyutil.InstrumentClient(httpClient, tracer, opts.Dump)

	return &Client{
		http:            httpClient,
		tel:             tel,
		host:            strings.TrimSuffix(opts.Host, "/"),
		graphqlEndpoint: opts.GraphqlEndpoint,
		authorization:   authorizationHeader(opts.Token),
	}
}

func authorizationHeader(token string) string {
	token = strings.TrimSpace(token)
	if token == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		return token
	}
	return "Bearer " + token
}

// authorized returns a request with the credential attached, or ErrCredentialMissing
// in which case no request must be issued.
func (c *Client) authorized(ctx context.Context) (*resty.Request, error) {
	if c.authorization == "" {
		return nil, ErrCredentialMissing
	}
	return c.http.R().
		SetContext(ctx).
		SetHeader("authorization", c.authorization), nil
}

type graphqlRequest struct {
	Name     string `json:"operationName"`
	Query    string `json:"query"`
	Variable any    `json:"variables"`
}

type graphqlError struct {
	Message string `json:"message"`
}

type graphqlResponse[T any] struct {
	Data   *T             `json:"data"`
	Errors []graphqlError `json:"errors"`
}

func graphqlQuery[O any](
	ctx context.Context,
	client *Client,
	name,
	query string,
	variables any,
) (O, error) {
	ctx, span := tracer.Start(ctx, fmt.Sprintf("graphql:%s", name))
	defer span.End()
	span.SetAttributes(attribute.String("custom.name", name))

	var out O
	client.tel.ReportDebug(report_client_graphql_query, name, variables)

	req, err := client.authorized(ctx)
	if err != nil {
		span.SetStatus(codes.Error, "no credential")
		return out, err
	}

	body, err := json.Marshal(graphqlRequest{
		Name:     name,
		Query:    query,
		Variable: variables,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to serialize json query")
		return out, fmt.Errorf("%w: json marshal: %w", ErrDecode, err)
	}

	res, err := req.
		SetHeader("content-type", "application/json").
		SetBody(body).
		Post(client.graphqlEndpoint)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch")
		return out, fmt.Errorf("%w: %s: %w", ErrNetwork, name, err)
	}
	if res.IsError() {
		err = fmt.Errorf("%w: %s: unexpected status %s", ErrNetwork, name, res.Status())
		span.SetStatus(codes.Error, err.Error())
		return out, err
	}

	var parsed graphqlResponse[O]
	err = json.Unmarshal(res.Body(), &parsed)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse json response")
		return out, fmt.Errorf("%w: %s: unmarshal json: %w", ErrDecode, name, err)
	}
	if len(parsed.Errors) > 0 {
		// authorization failures come back as 200 with an errors array
		err = fmt.Errorf("%w: %s: graphql: %s", ErrNetwork, name, parsed.Errors[0].Message)
		span.SetStatus(codes.Error, err.Error())
		return out, err
	}
	if parsed.Data == nil {
		err = fmt.Errorf("%w: %s: response has no data", ErrSchema, name)
		span.SetStatus(codes.Error, err.Error())
		return out, err
	}

	return *parsed.Data, nil
}
