// Package page loads a watch page and exposes the parts the extractor
// needs: the inline script contents, the rendered metadata and the
// video id from the page address.
package page

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	// Placeholders used when the page does not render the element.
	// Metadata extraction failure must never block transcript delivery.
	TitleUnavailable       = "Title unavailable"
	DescriptionUnavailable = "Description unavailable"
)

var (
	ErrNoVideoID      = errors.New("no video id in page address")
	ErrConfigNotFound = errors.New("could not find the API config in the page scripts")
)

var (
	videoPathRe = regexp.MustCompile(`(?:youtube\.com/(?:watch\?v=|embed/|v/|shorts/)|youtu\.be/)([a-zA-Z0-9_-]{11})`)
	apiKeyRe    = regexp.MustCompile(`"INNERTUBE_API_KEY":"([^"]+)"`)
	clientVerRe = regexp.MustCompile(`"INNERTUBE_CLIENT_VERSION":"([^"]+)"`)
)

const configMarker = "INNERTUBE_API_KEY"

// Document is one loaded watch page.
type Document struct {
	URL     string
	VideoID string
	Scripts []string

	title       string
	description string
}

// ParseVideoID pulls the 11-character video id out of a page address.
// It accepts watch, embed, shorts and short-link forms.
func ParseVideoID(rawURL string) (string, error) {
	if m := videoPathRe.FindStringSubmatch(rawURL); len(m) > 1 {
		return m[1], nil
	}
	u, err := url.Parse(rawURL)
	if err == nil {
		if v := u.Query().Get("v"); v != "" {
			return v, nil
		}
	}
	return "", ErrNoVideoID
}

// Load fetches the page and parses out scripts and metadata. A missing
// title or description degrades to a placeholder rather than an error.
func Load(ctx context.Context, client *http.Client, userAgent, rawURL string) (*Document, error) {
	videoID, err := ParseVideoID(rawURL)
	if err != nil {
		return nil, err
	}

	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("page request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("page request failed: status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("page document unparseable: %w", err)
	}
	return FromGoquery(rawURL, videoID, doc), nil
}

// FromGoquery builds a Document from an already-parsed page tree.
func FromGoquery(rawURL, videoID string, doc *goquery.Document) *Document {
	d := &Document{URL: rawURL, VideoID: videoID}

	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if text := s.Text(); text != "" {
			d.Scripts = append(d.Scripts, text)
		}
	})

	if v, ok := doc.Find(`meta[name="title"]`).Attr("content"); ok && strings.TrimSpace(v) != "" {
		d.title = strings.TrimSpace(v)
	} else if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
		d.title = t
	}
	if v, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok && strings.TrimSpace(v) != "" {
		d.description = strings.TrimSpace(v)
	}
	return d
}

func (d *Document) Title() string {
	if d.title == "" {
		return TitleUnavailable
	}
	return d.title
}

func (d *Document) Description() string {
	if d.description == "" {
		return DescriptionUnavailable
	}
	return d.description
}

// InnertubeConfig scans the inline scripts for the config marker and
// extracts the API key and client version from the first block that
// carries it. Both values must be present; there is no retry.
func (d *Document) InnertubeConfig() (apiKey, clientVersion string, err error) {
	for _, script := range d.Scripts {
		if !strings.Contains(script, configMarker) {
			continue
		}
		key := firstGroup(apiKeyRe, script)
		ver := firstGroup(clientVerRe, script)
		if key != "" && ver != "" {
			return key, ver, nil
		}
	}
	return "", "", ErrConfigNotFound
}

func firstGroup(re *regexp.Regexp, s string) string {
	if m := re.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return ""
}
