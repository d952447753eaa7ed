package fetcher

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// MaxImageSize caps downloaded cover images (5MB)
const MaxImageSize = 5 * 1024 * 1024

// Cover is a downloaded cover image
type Cover struct {
	SourceURL string
	Data      []byte
	MediaType string
}

// Ext returns the file extension for the cover's media type
func (c Cover) Ext() string {
	switch c.MediaType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	}
	if exts, _ := mime.ExtensionsByType(c.MediaType); len(exts) > 0 {
		return exts[0]
	}
	return ".img"
}

// Fetcher downloads cover images
type Fetcher struct {
	client *http.Client
}

// New creates a Fetcher with a 30s timeout
func New() *Fetcher {
	return &Fetcher{client: &http.Client{Timeout: 30 * time.Second}}
}

// FetchCover retrieves a cover image. rawURL may point at the image itself
// or at a book page carrying an og:image (or twitter:image) meta tag.
func (f *Fetcher) FetchCover(ctx context.Context, rawURL string) (*Cover, error) {
	u, err := normalizeURL(rawURL)
	if err != nil {
		return nil, err
	}

	data, mediaType, err := f.get(ctx, u.String(), MaxImageSize)
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(mediaType, "image/") {
		return &Cover{SourceURL: u.String(), Data: data, MediaType: mediaType}, nil
	}
	if mediaType != "text/html" {
		return nil, fmt.Errorf("unsupported content type: %s", mediaType)
	}

	imgURL := extractImageURL(string(data))
	if imgURL == "" {
		return nil, fmt.Errorf("no cover image found on page")
	}
	ref, err := u.Parse(imgURL)
	if err != nil {
		return nil, fmt.Errorf("invalid image URL %q: %w", imgURL, err)
	}

	data, mediaType, err = f.get(ctx, ref.String(), MaxImageSize)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(mediaType, "image/") {
		return nil, fmt.Errorf("cover URL is not an image: %s", mediaType)
	}
	return &Cover{SourceURL: ref.String(), Data: data, MediaType: mediaType}, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string, limit int64) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "drift/1.0 (cover lookup)")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	// Read one byte past the limit to detect oversize bodies
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, "", fmt.Errorf("response exceeds %d bytes", limit)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType, _, _ = mime.ParseMediaType(http.DetectContentType(body))
	}
	return body, mediaType, nil
}

// IsURL checks if a string looks like a URL
func IsURL(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "http://") ||
		strings.HasPrefix(s, "https://") ||
		strings.HasPrefix(s, "www.")
}

func normalizeURL(rawURL string) (*url.URL, error) {
	rawURL = strings.TrimSpace(rawURL)
	if strings.HasPrefix(rawURL, "www.") {
		rawURL = "https://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid URL: missing host")
	}
	return u, nil
}

// extractImageURL returns the page's preferred cover image reference:
// og:image, then twitter:image, then <link rel="image_src">
func extractImageURL(htmlContent string) string {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return ""
	}

	found := map[string]string{}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "meta":
				key := strings.ToLower(attr(n, "property"))
				if key == "" {
					key = strings.ToLower(attr(n, "name"))
				}
				if content := attr(n, "content"); content != "" {
					if _, ok := found[key]; !ok {
						found[key] = content
					}
				}
			case "link":
				if strings.EqualFold(attr(n, "rel"), "image_src") {
					if _, ok := found["image_src"]; !ok {
						found["image_src"] = attr(n, "href")
					}
				}
			case "body":
				// meta tags live in <head>
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	for _, key := range []string{"og:image", "og:image:url", "twitter:image", "image_src"} {
		if v := strings.TrimSpace(found[key]); v != "" {
			return v
		}
	}
	return ""
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

// SaveCover writes a cover into dir as "<id><ext>", replacing any previous
// cover of that quote, and returns the file name
func SaveCover(dir string, id int, c *Cover) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create covers dir: %w", err)
	}
	if err := RemoveCover(dir, id); err != nil {
		return "", err
	}
	name := fmt.Sprintf("%d%s", id, c.Ext())
	if err := os.WriteFile(filepath.Join(dir, name), c.Data, 0644); err != nil {
		return "", fmt.Errorf("write cover: %w", err)
	}
	return name, nil
}

// RemoveCover deletes every stored cover file of a quote
func RemoveCover(dir string, id int) error {
	matches, err := filepath.Glob(filepath.Join(dir, fmt.Sprintf("%d.*", id)))
	if err != nil {
		return fmt.Errorf("glob covers: %w", err)
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove cover: %w", err)
		}
	}
	return nil
}

// PendingDir is where fetched covers wait before being kept
const PendingDir = "pending"

// PromotePending moves the pending cover of a quote into dir and returns
// its file name
func PromotePending(dir string, id int) (string, error) {
	pending := filepath.Join(dir, PendingDir)
	matches, err := filepath.Glob(filepath.Join(pending, fmt.Sprintf("%d.*", id)))
	if err != nil {
		return "", fmt.Errorf("glob pending: %w", err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no pending cover for quote %d: %w", id, os.ErrNotExist)
	}
	if err := RemoveCover(dir, id); err != nil {
		return "", err
	}
	name := filepath.Base(matches[0])
	if err := os.Rename(matches[0], filepath.Join(dir, name)); err != nil {
		return "", fmt.Errorf("keep cover: %w", err)
	}
	return name, nil
}
