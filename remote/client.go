package remote

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/juju/ratelimit"
)

// The fixed API version sent with every request. Block and rich text shapes
// in this package follow this version of the API.
const apiVersion = "2022-06-28"

// Client is the request channel to the Notion blocks API. Every operation is
// funneled through a single paced dispatch queue, see request() for the
// ordering and retry guarantees.
type Client interface {
	AppendBlockChildren(ctx context.Context, parentID string, children []Block) (ChildList, error)
	DeleteBlock(ctx context.Context, blockID string) error
	GetBlockChildren(ctx context.Context, parentID string, pageSize int) (ChildList, error)
}

type client struct {
	httpClient    *http.Client
	baseUrl       string
	token         string
	retryFallback time.Duration

	// dispatch serializes outbound requests so they leave in submission
	// order, while the bucket enforces the minimum spacing between any two
	// consecutive dispatches.
	dispatch sync.Mutex
	bucket   *ratelimit.Bucket
}

type ClientOption func(c *client)

// New returns a new HTTP request client that is used for making authenticated
// and rate limit aware requests to the Notion API.
func New(token string, opts ...ClientOption) Client {
	c := &client{
		baseUrl: "https://api.notion.com/v1",
		token:   token,
		httpClient: &http.Client{
			Timeout: time.Second * 30,
		},
		retryFallback: time.Second,
		bucket:        ratelimit.NewBucket(time.Millisecond*350, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithBaseURL overrides the API endpoint requests are made against.
func WithBaseURL(base string) ClientOption {
	return func(c *client) {
		c.baseUrl = strings.TrimSuffix(base, "/")
	}
}

// WithHttpClient sets the underlying HTTP client instance to use when making
// requests to the Notion API.
func WithHttpClient(httpClient *http.Client) ClientOption {
	return func(c *client) {
		c.httpClient = httpClient
	}
}

// WithSpacing sets the minimum amount of time between two consecutive
// dispatched requests.
func WithSpacing(d time.Duration) ClientOption {
	return func(c *client) {
		c.bucket = ratelimit.NewBucket(d, 1)
	}
}

// WithRetryFallback sets the wait applied to a rate limited request whose
// response did not carry a Retry-After header.
func WithRetryFallback(d time.Duration) ClientOption {
	return func(c *client) {
		c.retryFallback = d
	}
}

type appendBody struct {
	Children []Block `json:"children"`
}

// AppendBlockChildren appends the given block trees as new children of the
// referenced parent block and returns the listing of created top-level
// blocks in the same order they were submitted.
func (c *client) AppendBlockChildren(ctx context.Context, parentID string, children []Block) (ChildList, error) {
	var out ChildList
	res, err := c.request(ctx, http.MethodPatch, "/blocks/"+parentID+"/children", appendBody{Children: children})
	if err != nil {
		return out, err
	}
	defer res.Body.Close()

	if res.HasError() {
		return out, res.Error()
	}
	err = res.BindJSON(&out)
	return out, err
}

// DeleteBlock archives the referenced block.
func (c *client) DeleteBlock(ctx context.Context, blockID string) error {
	res, err := c.request(ctx, http.MethodDelete, "/blocks/"+blockID, nil)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	return res.Error()
}

// GetBlockChildren returns the first page of children of the referenced
// block, up to pageSize entries.
func (c *client) GetBlockChildren(ctx context.Context, parentID string, pageSize int) (ChildList, error) {
	var out ChildList
	res, err := c.get(ctx, "/blocks/"+parentID+"/children", map[string]string{
		"page_size": strconv.Itoa(pageSize),
	})
	if err != nil {
		return out, err
	}
	defer res.Body.Close()

	if res.HasError() {
		return out, res.Error()
	}
	err = res.BindJSON(&out)
	return out, err
}
