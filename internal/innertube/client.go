// Package innertube talks to the watch page's backing video-info endpoint
// using credentials scraped from the page itself.
package innertube

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://www.youtube.com"

// Config is the pair of tokens embedded in the watch page's inline scripts.
// It is transient: re-extracted on every fetch and never persisted.
type Config struct {
	APIKey        string
	ClientVersion string
}

// CaptionTrack is one entry of the player response's caption track list.
type CaptionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"`
	VssID        string `json:"vssId"`
}

type playerRequest struct {
	Context struct {
		Client struct {
			ClientName    string `json:"clientName"`
			ClientVersion string `json:"clientVersion"`
			HL            string `json:"hl"`
			GL            string `json:"gl"`
		} `json:"client"`
	} `json:"context"`
	VideoID string `json:"videoId"`
}

type playerResponse struct {
	Captions struct {
		PlayerCaptionsTracklistRenderer struct {
			CaptionTracks []CaptionTrack `json:"captionTracks"`
		} `json:"playerCaptionsTracklistRenderer"`
	} `json:"captions"`
	PlayabilityStatus struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	} `json:"playabilityStatus"`
}

type Client struct {
	BaseURL string
	HL      string
	GL      string

	http    *http.Client
	limiter *rate.Limiter
}

func NewClient(hl, gl string) *Client {
	if hl == "" {
		hl = "en"
	}
	if gl == "" {
		gl = "US"
	}
	return &Client{
		BaseURL: defaultBaseURL,
		HL:      hl,
		GL:      gl,
		http:    &http.Client{Timeout: 30 * time.Second},
		// One request per second is plenty for an interactive panel.
		limiter: rate.NewLimiter(rate.Limit(1), 3),
	}
}

// FetchCaptionTracks posts the minimal client-identity payload to the player
// endpoint and returns the caption track list. No retries: a non-success
// status or a trackless response is terminal for this attempt.
func (c *Client) FetchCaptionTracks(ctx context.Context, cfg Config, videoID string) ([]CaptionTrack, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var req playerRequest
	req.Context.Client.ClientName = "WEB"
	req.Context.Client.ClientVersion = cfg.ClientVersion
	req.Context.Client.HL = c.HL
	req.Context.Client.GL = c.GL
	req.VideoID = videoID

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/youtubei/v1/player?key=%s", strings.TrimRight(c.BaseURL, "/"), cfg.APIKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("player endpoint request failed: status %d", resp.StatusCode)
	}

	var decoded playerResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("player endpoint returned unreadable JSON: %w", err)
	}

	tracks := decoded.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks
	if len(tracks) == 0 {
		if reason := strings.TrimSpace(decoded.PlayabilityStatus.Reason); reason != "" {
			return nil, errors.New(reason)
		}
		return nil, errors.New("no caption tracks found (captions may be disabled)")
	}
	return tracks, nil
}

// SelectTrack applies the fixed tie-break: exact "en" match, then the first
// track whose code starts with "en", then the first track the host listed.
func SelectTrack(tracks []CaptionTrack) (CaptionTrack, bool) {
	if len(tracks) == 0 {
		return CaptionTrack{}, false
	}
	for _, t := range tracks {
		if t.LanguageCode == "en" {
			return t, true
		}
	}
	for _, t := range tracks {
		if strings.HasPrefix(t.LanguageCode, "en") {
			return t, true
		}
	}
	return tracks[0], true
}

// Download fetches the chosen track's raw timed-text markup.
func (c *Client) Download(ctx context.Context, track CaptionTrack) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, track.BaseURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("caption file request failed: status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(string(raw)) == "" {
		return "", errors.New("downloaded caption file was empty")
	}
	return string(raw), nil
}
