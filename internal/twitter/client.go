package twitter

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"influradar/pkg/logx"
)

const (
	defaultBaseURL = "https://api.twitter.com/2"
	defaultBackoff = 15 * time.Minute

	// followingPageSize is the max the API allows per following page.
	followingPageSize = "1000"

	// usersBatchSize is the max ids accepted by the bulk lookup endpoint.
	usersBatchSize = 100
)

type Config struct {
	BearerToken string

	// BaseURL overrides the API endpoint (tests).
	BaseURL string

	// Backoff is the wait between attempts when the API answers 429.
	Backoff time.Duration

	// RatePerSec paces outbound requests. Defaults to 5.
	RatePerSec int

	// Timeout bounds a single HTTP round trip.
	Timeout time.Duration
}

// Client talks to the user-directory API: profile lookups and paginated
// following-lists. It retries rate-limited requests with a fixed backoff
// and keeps no state between calls beyond pacing.
type Client struct {
	http    *resty.Client
	backoff time.Duration
	limiter *rate.Limiter
	log     logx.Logger
}

func New(cfg Config, log logx.Logger) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 5
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	hc := resty.New().
		SetBaseURL(base).
		SetAuthToken(cfg.BearerToken).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &Client{
		http:    hc,
		backoff: backoff,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		log:     log,
	}
}

// GetUserByUsername resolves a single profile by handle.
func (c *Client) GetUserByUsername(ctx context.Context, username string) (User, error) {
	const op = "get user by username"
	var out userResponse
	resp, err := c.doWithRetry(ctx, op, func(ctx context.Context) (*resty.Response, error) {
		return c.http.R().
			SetContext(ctx).
			SetPathParam("username", strings.TrimPrefix(username, "@")).
			SetResult(&out).
			Get("/users/by/username/{username}")
	})
	if err != nil {
		return User{}, err
	}
	if err := checkPayload(op, resp, out.Errors); err != nil {
		return User{}, err
	}
	return out.Data, nil
}

// GetUserByID resolves a single profile by numeric id.
func (c *Client) GetUserByID(ctx context.Context, id string) (User, error) {
	const op = "get user by id"
	var out userResponse
	resp, err := c.doWithRetry(ctx, op, func(ctx context.Context) (*resty.Response, error) {
		return c.http.R().
			SetContext(ctx).
			SetPathParam("id", id).
			SetResult(&out).
			Get("/users/{id}")
	})
	if err != nil {
		return User{}, err
	}
	if err := checkPayload(op, resp, out.Errors); err != nil {
		return User{}, err
	}
	return out.Data, nil
}

// GetUsers resolves each handle independently and fails on the first
// lookup the API rejects.
func (c *Client) GetUsers(ctx context.Context, usernames []string) ([]User, error) {
	users := make([]User, 0, len(usernames))
	for _, un := range usernames {
		u, err := c.GetUserByUsername(ctx, un)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

// GetUsersByIDs resolves profiles via the bulk endpoint, chunked to the
// API's batch limit.
func (c *Client) GetUsersByIDs(ctx context.Context, ids []string) ([]User, error) {
	const op = "get users by ids"
	users := make([]User, 0, len(ids))
	for start := 0; start < len(ids); start += usersBatchSize {
		end := start + usersBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		var out usersResponse
		resp, err := c.doWithRetry(ctx, op, func(ctx context.Context) (*resty.Response, error) {
			return c.http.R().
				SetContext(ctx).
				SetQueryParam("ids", strings.Join(chunk, ",")).
				SetResult(&out).
				Get("/users")
		})
		if err != nil {
			return nil, err
		}
		if err := checkPayload(op, resp, out.Errors); err != nil {
			return nil, err
		}
		users = append(users, out.Data...)
	}
	return users, nil
}

// GetFollowingIDs fetches the complete list of account ids userID
// follows, walking pagination tokens until the API reports no further
// page. Each page is retried independently under the rate-limit policy.
func (c *Client) GetFollowingIDs(ctx context.Context, userID string) ([]string, error) {
	const op = "get following"
	var ids []string
	token := ""
	for {
		var page followingPage
		resp, err := c.doWithRetry(ctx, op, func(ctx context.Context) (*resty.Response, error) {
			req := c.http.R().
				SetContext(ctx).
				SetPathParam("id", userID).
				SetQueryParam("max_results", followingPageSize).
				SetResult(&page)
			if token != "" {
				req.SetQueryParam("pagination_token", token)
			}
			return req.Get("/users/{id}/following")
		})
		if err != nil {
			return nil, err
		}
		if err := checkPayload(op, resp, page.Errors); err != nil {
			return nil, err
		}

		for _, u := range page.Data {
			ids = append(ids, u.ID)
		}

		if page.Meta.NextToken == "" {
			return ids, nil
		}
		token = page.Meta.NextToken
	}
}

func checkPayload(op string, resp *resty.Response, errs []apiError) error {
	if resp.IsError() {
		return &RequestError{Op: op, Status: resp.StatusCode(), Detail: strings.TrimSpace(string(resp.Body()))}
	}
	if len(errs) != 0 {
		return &RequestError{Op: op, Detail: firstErrorDetail(errs)}
	}
	return nil
}

// maxAttempts bounds consecutive tries of one logical request under
// rate limiting.
const maxAttempts = 10

// doWithRetry runs one logical request, waiting out 429 responses up to
// maxAttempts consecutive tries. The backoff applies per request, so a
// long paginated fetch may legitimately pause multiple times.
func (c *Client) doWithRetry(ctx context.Context, op string, attempt func(ctx context.Context) (*resty.Response, error)) (*resty.Response, error) {
	for i := 1; ; i++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &RequestError{Op: op, Err: err}
		}

		resp, err := attempt(ctx)
		if err != nil {
			return nil, &RequestError{Op: op, Err: err}
		}
		if resp.StatusCode() != http.StatusTooManyRequests {
			return resp, nil
		}
		if i >= maxAttempts {
			return nil, &RequestError{Op: op, Status: resp.StatusCode(), Detail: "rate limit retry budget exhausted"}
		}

		c.log.Warn("rate limited; backing off",
			logx.String("op", op),
			logx.Int("attempt", i),
			logx.Duration("backoff", c.backoff))
		select {
		case <-ctx.Done():
			return nil, &RequestError{Op: op, Err: ctx.Err()}
		case <-time.After(c.backoff):
		}
	}
}
