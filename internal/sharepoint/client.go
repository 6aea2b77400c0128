// Package sharepoint reads a SharePoint document library through Microsoft
// Graph.
package sharepoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"orgdash/internal/cache"
	"orgdash/internal/metrics"
	"orgdash/internal/models"
)

const requestTimeout = 15 * time.Second

type Options struct {
	TenantID          string
	ClientID          string
	ClientSecret      string
	SiteID            string
	GraphBaseURL      string
	LoginBaseURL      string
	RequestsPerSecond float64
}

type Client struct {
	opts    Options
	http    *http.Client
	tokens  *tokenSource
	limiter *RateLimiter
	logger  *slog.Logger
}

// NewClient builds a Graph client. The access token is shared through store
// under tokenKey; store may be nil.
func NewClient(ctx context.Context, opts Options, store cache.Store, tokenKey string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	opts.GraphBaseURL = strings.TrimRight(opts.GraphBaseURL, "/")
	opts.LoginBaseURL = strings.TrimRight(opts.LoginBaseURL, "/")
	return &Client{
		opts:    opts,
		http:    &http.Client{Timeout: requestTimeout},
		tokens:  newTokenSource(ctx, opts, store, tokenKey, logger),
		limiter: NewRateLimiter(opts.RequestsPerSecond, 0),
		logger:  logger,
	}
}

func (c *Client) SiteInfo(ctx context.Context) (models.SiteInfo, error) {
	var site struct {
		ID                   string    `json:"id"`
		DisplayName          string    `json:"displayName"`
		Name                 string    `json:"name"`
		LastModifiedDateTime time.Time `json:"lastModifiedDateTime"`
	}
	if err := c.get(ctx, "site", "/sites/"+c.opts.SiteID, &site); err != nil {
		return models.SiteInfo{}, err
	}
	name := site.DisplayName
	if name == "" {
		name = site.Name
	}
	return models.SiteInfo{ID: site.ID, Name: name, LastModified: site.LastModifiedDateTime}, nil
}

func (c *Client) RootEndpoint() string {
	return "/sites/" + c.opts.SiteID + "/drive/root/children"
}

func (c *Client) FolderEndpoint(folderID string) string {
	return "/sites/" + c.opts.SiteID + "/drive/items/" + folderID + "/children"
}

// ListChildren fetches one page of a folder listing. endpoint is either a
// relative path or a next link returned by a previous page.
func (c *Client) ListChildren(ctx context.Context, endpoint string) (models.Page, error) {
	var resp struct {
		Value    []graphItem `json:"value"`
		NextLink string      `json:"@odata.nextLink"`
	}
	if err := c.get(ctx, "children", endpoint, &resp); err != nil {
		return models.Page{}, err
	}
	page := models.Page{Items: make([]models.DriveItem, 0, len(resp.Value))}
	for _, it := range resp.Value {
		page.Items = append(page.Items, models.DriveItem{
			ID:         it.ID,
			Name:       it.Name,
			Size:       it.Size,
			ModifiedAt: it.LastModifiedDateTime,
			ParentID:   it.ParentReference.ID,
			IsFolder:   it.Folder != nil,
			IsFile:     it.File != nil,
		})
	}
	if resp.NextLink != "" {
		page.NextLink = strings.TrimPrefix(resp.NextLink, c.opts.GraphBaseURL)
	}
	return page, nil
}

// GetItemMetadata returns the details of a single file. Folders and other
// non-file items are reported as ErrNotFound.
func (c *Client) GetItemMetadata(ctx context.Context, itemID string) (models.DocumentDetail, error) {
	var it graphItem
	if err := c.get(ctx, "item", "/sites/"+c.opts.SiteID+"/drive/items/"+itemID, &it); err != nil {
		return models.DocumentDetail{}, err
	}
	if it.File == nil {
		return models.DocumentDetail{}, fmt.Errorf("%w: item %s is not a file", ErrNotFound, itemID)
	}
	return it.detail(), nil
}

// GetItemsMetadata fetches ids one by one and drops the ones that fail. An
// auth failure aborts the batch.
func (c *Client) GetItemsMetadata(ctx context.Context, ids []string) (models.BatchResult, error) {
	out := models.BatchResult{Documents: make([]models.DocumentDetail, 0, len(ids))}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		d, err := c.GetItemMetadata(ctx, id)
		if err != nil {
			if IsAuth(err) {
				return out, err
			}
			c.logger.Warn("skip item metadata", "item_id", id, "error", err)
			continue
		}
		out.Documents = append(out.Documents, d)
	}
	out.ProcessedCount = len(out.Documents)
	return out, nil
}

func (c *Client) get(ctx context.Context, endpoint, pathOrURL string, out any) (err error) {
	defer func() {
		outcome := "ok"
		switch {
		case err == nil:
		case IsAuth(err):
			outcome = "auth"
		case IsNotFound(err):
			outcome = "not_found"
		case IsTransient(err):
			outcome = "transient"
		default:
			outcome = "error"
		}
		metrics.RemoteRequests.WithLabelValues(endpoint, outcome).Inc()
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	tok, err := c.tokens.Token()
	if err != nil {
		if !errors.Is(err, ErrAuth) {
			err = fmt.Errorf("%w: %v", ErrAuth, err)
		}
		return err
	}

	url := pathOrURL
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = c.opts.GraphBaseURL + url
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", endpoint, err)
	}
	tok.SetAuthHeader(req)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s request failed: %v", ErrTransient, endpoint, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		if resp.StatusCode == http.StatusTooManyRequests {
			retryAfter, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
			c.limiter.RecordRateLimitError(retryAfter)
		}
		if resp.StatusCode == http.StatusUnauthorized {
			c.logger.Warn("access token rejected, dropping cached token", "endpoint", endpoint)
			c.tokens.invalidate(context.WithoutCancel(ctx))
		}
		return statusError(endpoint, resp.StatusCode, truncate(string(body), 200))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}

type identity struct {
	User struct {
		DisplayName string `json:"displayName"`
	} `json:"user"`
}

type graphItem struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	Size                 int64     `json:"size"`
	WebURL               string    `json:"webUrl"`
	DownloadURL          string    `json:"@microsoft.graph.downloadUrl"`
	CreatedDateTime      time.Time `json:"createdDateTime"`
	LastModifiedDateTime time.Time `json:"lastModifiedDateTime"`
	Folder               *struct {
		ChildCount int `json:"childCount"`
	} `json:"folder"`
	File *struct {
		MimeType string `json:"mimeType"`
	} `json:"file"`
	ParentReference struct {
		ID   string `json:"id"`
		Path string `json:"path"`
	} `json:"parentReference"`
	CreatedBy      identity `json:"createdBy"`
	LastModifiedBy identity `json:"lastModifiedBy"`
}

func (it graphItem) detail() models.DocumentDetail {
	d := models.DocumentDetail{
		ID:          it.ID,
		Name:        it.Name,
		Size:        it.Size,
		ModifiedAt:  it.LastModifiedDateTime,
		ParentID:    it.ParentReference.ID,
		FolderPath:  folderPath(it.ParentReference.Path),
		Extension:   strings.TrimPrefix(path.Ext(it.Name), "."),
		CreatedAt:   it.CreatedDateTime,
		URL:         it.WebURL,
		DownloadURL: it.DownloadURL,
		ModifiedBy:  orUnknown(it.LastModifiedBy.User.DisplayName),
		CreatedBy:   orUnknown(it.CreatedBy.User.DisplayName),
	}
	if it.File != nil {
		d.MimeType = it.File.MimeType
	}
	return d
}

// folderPath turns "/drive/root:/A/B" into "/A/B".
func folderPath(p string) string {
	if i := strings.Index(p, "root:"); i >= 0 {
		p = p[i+len("root:"):]
	}
	if p == "" {
		return "/"
	}
	return p
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
