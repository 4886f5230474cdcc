package qbits

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Client buckets returned by the grouped clients endpoints.
const (
	BucketAll     = "all_plant"
	BucketNormal  = "normal_plant"
	BucketAlarm   = "alarm_plant"
	BucketOffline = "offline_plant"
)

// Buckets lists the grouped client buckets in display order.
var Buckets = []string{BucketAll, BucketNormal, BucketAlarm, BucketOffline}

// Grouped clients endpoints.
const (
	PathAdminGroupedClients = "/client/grouped-clients"
	PathFrontGroupedClients = "/frontend/grouped-clients"
)

const maxBucketPages = 200

// GroupedQuery selects the grouped clients endpoint and its first page.
type GroupedQuery struct {
	Path    string
	Search  string
	PerPage int
}

// Bucket is every page of one grouped clients bucket.
type Bucket struct {
	Records []map[string]any
	Total   int
	Pages   int
	// Partial is set when a follow-up page failed and the crawl stopped early.
	Partial bool
}

// GroupedClients fetches the first page of every bucket, then follows each
// bucket's next_page_url concurrently until exhausted.
func (c *Client) GroupedClients(ctx context.Context, token string, q GroupedQuery) (map[string]Bucket, error) {
	if token == "" {
		return nil, ErrNoToken
	}
	path := q.Path
	if path == "" {
		path = PathAdminGroupedClients
	}
	perPage := q.PerPage
	if perPage <= 0 {
		perPage = 200
	}
	query := url.Values{}
	query.Set("search", q.Search)
	query.Set("per_page", strconv.Itoa(perPage))
	query.Set("page_all", "1")
	query.Set("page_normal", "1")
	query.Set("page_alarm", "1")
	query.Set("page_offline", "1")

	const endpoint = "grouped_clients"
	first, err := c.get(ctx, endpoint, token, path, query)
	if err != nil {
		return nil, err
	}

	results := make([]Bucket, len(Buckets))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range Buckets {
		g.Go(func() error {
			bucket, err := c.crawlBucket(gctx, endpoint, token, name, first)
			if err != nil {
				return err
			}
			results[i] = bucket
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]Bucket, len(Buckets))
	for i, name := range Buckets {
		out[name] = results[i]
	}
	return out, nil
}

func (c *Client) crawlBucket(ctx context.Context, endpoint, token, name string, first any) (Bucket, error) {
	var bucket Bucket
	seen := map[string]struct{}{}
	page := first
	for {
		node, ok := lookup(page, "data."+name)
		if !ok {
			return bucket, nil
		}
		records, _ := asRecords(mustLookup(node, "data"), false)
		bucket.Records = append(bucket.Records, records...)
		bucket.Pages++
		if total, ok := firstInt(node, []string{"total"}); ok {
			bucket.Total = total
		}

		next := firstString(node, []string{"next_page_url"})
		if next == "" {
			return bucket, nil
		}
		if _, dup := seen[next]; dup || bucket.Pages >= maxBucketPages || !c.sameHost(next) {
			c.logger.Warn("bucket crawl stopped",
				zap.String("bucket", name),
				zap.Int("pages", bucket.Pages),
				zap.Bool("repeated", dup),
			)
			bucket.Partial = true
			return bucket, nil
		}
		seen[next] = struct{}{}

		nextPage, err := c.do(ctx, request{endpoint: endpoint, method: http.MethodGet, url: c.resolve(next), token: token})
		if err != nil {
			if errors.Is(err, ErrUnauthorized) || ctx.Err() != nil {
				return bucket, fmt.Errorf("qbits: crawl %s: %w", name, err)
			}
			c.logger.Warn("bucket page failed", zap.String("bucket", name), zap.Int("pages", bucket.Pages), zap.Error(err))
			bucket.Partial = true
			return bucket, nil
		}
		page = nextPage
	}
}

func mustLookup(node any, path string) any {
	v, _ := lookup(node, path)
	return v
}

// resolve makes a possibly relative pagination link absolute against the API host.
func (c *Client) resolve(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return link
	}
	return c.baseURL.ResolveReference(u).String()
}

// Totals are the plant counts shown above the user tables.
type Totals struct {
	All     int `json:"total_all_plant"`
	Normal  int `json:"total_normal_plant"`
	Alarm   int `json:"total_alarm_plant"`
	Offline int `json:"total_offline_plant"`
}

// InverterTotals fetches the plant counts per status.
func (c *Client) InverterTotals(ctx context.Context, token string) (Totals, error) {
	if token == "" {
		return Totals{}, ErrNoToken
	}
	payload, err := c.get(ctx, "inverter_totals", token, "/client/inverter/totals", nil)
	if err != nil {
		return Totals{}, err
	}
	data, ok := lookup(payload, "data")
	if !ok {
		return Totals{}, fmt.Errorf("%w: inverter_totals", ErrUnexpectedShape)
	}
	var totals Totals
	totals.All, _ = firstInt(data, []string{"total_all_plant"})
	totals.Normal, _ = firstInt(data, []string{"total_normal_plant"})
	totals.Alarm, _ = firstInt(data, []string{"total_alarm_plant"})
	totals.Offline, _ = firstInt(data, []string{"total_offline_plant"})
	return totals, nil
}

// DealerQuery is one page request of the dealer listing.
type DealerQuery struct {
	Page      int
	PerPage   int
	Search    string
	SortBy    string
	SortOrder string
}

// DealerPage is one page of dealers.
type DealerPage struct {
	Records  []map[string]any
	LastPage int
	Total    int
	Shape    string
}

var dealerShapes = []listShape{
	{path: ""},
	{path: "data.clients", lastPage: []string{"meta.last_page", "last_page"}, total: []string{"meta.total", "total"}},
	{path: "data.data", lastPage: []string{"data.last_page"}, total: []string{"data.total"}},
	{path: "items", lastPage: []string{"meta.last_page"}, total: []string{"meta.total"}},
}

// Dealers fetches one page of the company/dealer listing.
func (c *Client) Dealers(ctx context.Context, token string, q DealerQuery) (DealerPage, error) {
	if token == "" {
		return DealerPage{}, ErrNoToken
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PerPage <= 0 {
		q.PerPage = 100
	}
	query := url.Values{}
	query.Set("page", strconv.Itoa(q.Page))
	query.Set("per_page", strconv.Itoa(q.PerPage))
	if q.SortBy != "" {
		query.Set("sort_by", q.SortBy)
		query.Set("sort_order", q.SortOrder)
	}
	if q.Search != "" {
		query.Set("search", q.Search)
	}

	const endpoint = "dealers"
	payload, err := c.get(ctx, endpoint, token, "/dealer/index", query)
	if err != nil {
		return DealerPage{}, err
	}
	res, err := c.decodeList(endpoint, payload, dealerShapes)
	if err != nil {
		return DealerPage{}, err
	}
	page := DealerPage{Records: res.Records, LastPage: res.LastPage, Total: res.Total, Shape: res.Shape}
	if page.LastPage < 1 {
		page.LastPage = 1
	}
	if page.Total == 0 {
		page.Total = len(page.Records)
	}
	return page, nil
}

// AllDealers walks every dealer page.
func (c *Client) AllDealers(ctx context.Context, token string, perPage int) ([]map[string]any, error) {
	var out []map[string]any
	for page := 1; page <= maxBucketPages; page++ {
		res, err := c.Dealers(ctx, token, DealerQuery{Page: page, PerPage: perPage})
		if err != nil {
			return nil, err
		}
		out = append(out, res.Records...)
		if page >= res.LastPage || len(res.Records) == 0 {
			break
		}
	}
	return out, nil
}
