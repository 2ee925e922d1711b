package gallery

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/hashicorp/go-version"

	"github.com/oshokin/modsync/internal/domain/module"
	"github.com/oshokin/modsync/internal/logger"
)

const (
	// defaultTimeout is used when no timeout option is given.
	defaultTimeout = 30 * time.Second
	// maxFeedPages bounds how many rel="next" links are followed.
	maxFeedPages = 20
	// maxPackageSize bounds a downloaded package.
	maxPackageSize = 512 << 20
)

var (
	// ErrModuleNotFound is returned when the feed has no stable version of a module.
	ErrModuleNotFound = errors.New("module not found in repository")
	// ErrBadHTTPStatus is returned for any response other than 200 OK.
	ErrBadHTTPStatus = errors.New("unexpected http status")
	// ErrPackageTooLarge is returned when a package exceeds the download limit.
	ErrPackageTooLarge = errors.New("package exceeds size limit")

	errBaseURLRequired = errors.New("repository base url must be provided")
	errNameRequired    = errors.New("module name must be provided")
)

// Client queries a NuGet v2 feed such as the PowerShell Gallery.
type Client struct {
	// baseURL is the feed root, e.g. https://www.powershellgallery.com/api/v2.
	baseURL *url.URL
	// httpClient performs the requests.
	httpClient *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithTimeout sets the timeout of every request.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// NewClient creates a client for the feed at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errBaseURLRequired
	}

	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse repository url: %w", err)
	}

	client := &Client{
		baseURL:    parsed,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// BaseURL returns the feed root as a string.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// FindLatest returns the highest stable version of the module in the feed.
func (c *Client) FindLatest(ctx context.Context, name string) (*module.Remote, error) {
	return c.Find(ctx, name, "")
}

// Find returns the entry of the module with the exact version, or the
// highest stable version when ver is empty.
func (c *Client) Find(ctx context.Context, name, ver string) (*module.Remote, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errNameRequired
	}

	var wanted *version.Version

	if ver != "" {
		parsed, err := version.NewVersion(ver)
		if err != nil {
			return nil, fmt.Errorf("parse version %q: %w", ver, err)
		}

		wanted = parsed
	}

	var (
		found   *module.Remote
		pageURL = c.findPackagesByIDURL(name)
		visited = make(map[string]struct{}, maxFeedPages)
	)

	for pageURL != "" && len(visited) < maxFeedPages {
		if _, ok := visited[pageURL]; ok {
			break
		}

		visited[pageURL] = struct{}{}

		page, err := c.fetchFeed(ctx, pageURL)
		if err != nil {
			return nil, err
		}

		for i := range page.Entries {
			candidate := c.toRemote(ctx, &page.Entries[i], name, wanted != nil)
			if candidate == nil {
				continue
			}

			if wanted != nil {
				if candidate.Version.Equal(wanted) {
					return candidate, nil
				}

				continue
			}

			if found == nil || candidate.Version.GreaterThan(found.Version) {
				found = candidate
			}
		}

		pageURL = page.next()
	}

	if found == nil {
		if wanted != nil {
			return nil, fmt.Errorf("%s %s: %w", name, ver, ErrModuleNotFound)
		}

		return nil, fmt.Errorf("%s: %w", name, ErrModuleNotFound)
	}

	return found, nil
}

// Download fetches the package archive of the remote module.
func (c *Client) Download(ctx context.Context, remote *module.Remote) ([]byte, error) {
	if remote == nil || remote.Version == nil {
		return nil, errNameRequired
	}

	downloadURL := remote.DownloadURL
	if downloadURL == "" {
		downloadURL = c.packageURL(remote.Name, remote.Version.Original())
	}

	response, err := c.get(ctx, downloadURL)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(response.Body, maxPackageSize+1))
	if err != nil {
		return nil, fmt.Errorf("read package %s: %w", remote.Name, err)
	}

	if len(data) > maxPackageSize {
		return nil, fmt.Errorf("%s: %w", remote.Name, ErrPackageTooLarge)
	}

	logger.DebugKV(ctx, "Downloaded package", "url", downloadURL, "bytes", len(data))

	return data, nil
}

// toRemote converts an entry matching name; other entries yield nil.
// Prerelease entries are skipped unless allowPrerelease is set.
func (c *Client) toRemote(ctx context.Context, e *entry, name string, allowPrerelease bool) *module.Remote {
	if !strings.EqualFold(e.name(), name) || (e.prerelease() && !allowPrerelease) {
		return nil
	}

	parsed, err := version.NewVersion(e.rawVersion())
	if err != nil {
		logger.DebugKV(ctx, "Skipping unparsable version", "module", name, "version", e.rawVersion())
		return nil
	}

	if parsed.Prerelease() != "" && !allowPrerelease {
		return nil
	}

	return &module.Remote{
		Name:          e.name(),
		Version:       parsed,
		DownloadURL:   e.Content.Src,
		PackageHash:   strings.TrimSpace(e.Properties.PackageHash),
		HashAlgorithm: strings.TrimSpace(e.Properties.PackageHashAlgorithm),
	}
}

func (c *Client) fetchFeed(ctx context.Context, pageURL string) (*feed, error) {
	response, err := c.get(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	var page feed
	if err = xml.NewDecoder(response.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode feed %s: %w", pageURL, err)
	}

	return &page, nil
}

func (c *Client) get(ctx context.Context, target string) (*http.Response, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, err
	}

	request.Header.Set("Accept", "application/atom+xml, application/xml, application/octet-stream")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, err
	}

	if response.StatusCode != http.StatusOK {
		_ = response.Body.Close()

		return nil, fmt.Errorf("%s, %s: %w", target, response.Status, ErrBadHTTPStatus)
	}

	return response, nil
}

// findPackagesByIDURL builds {base}/FindPackagesById()?id='name'.
func (c *Client) findPackagesByIDURL(name string) string {
	target := *c.baseURL
	target.Path = path.Join(target.Path, "FindPackagesById()")

	query := url.Values{}
	query.Set("id", "'"+strings.ReplaceAll(name, "'", "''")+"'")
	target.RawQuery = query.Encode()

	return target.String()
}

// packageURL builds {base}/package/{name}/{version}.
func (c *Client) packageURL(name, ver string) string {
	target := *c.baseURL
	target.Path = path.Join(target.Path, "package", name, ver)

	return target.String()
}
