// Package extract composes config extraction, caption fetching and
// timed-text parsing into the single operation the relay serves.
package extract

import (
	"context"
	"errors"

	"github.com/tubechat/tubechat/internal/innertube"
	"github.com/tubechat/tubechat/internal/page"
	"github.com/tubechat/tubechat/internal/timedtext"
)

// Result is the fully populated success payload of one extraction.
// An extraction either returns a Result with every field set or a
// single error; it never produces a partial value.
type Result struct {
	Transcript  string
	Title       string
	Description string
}

type Orchestrator struct {
	client *innertube.Client
}

func NewOrchestrator(client *innertube.Client) *Orchestrator {
	return &Orchestrator{client: client}
}

// Extract runs the whole pipeline against a loaded page document.
// Every fatal step short-circuits with a descriptive error; metadata
// comes from the document and degrades to placeholders on its own.
func (o *Orchestrator) Extract(ctx context.Context, doc *page.Document) (*Result, error) {
	if doc.VideoID == "" {
		return nil, page.ErrNoVideoID
	}

	apiKey, clientVersion, err := doc.InnertubeConfig()
	if err != nil {
		return nil, err
	}
	cfg := innertube.Config{APIKey: apiKey, ClientVersion: clientVersion}

	tracks, err := o.client.FetchCaptionTracks(ctx, cfg, doc.VideoID)
	if err != nil {
		return nil, err
	}

	track, ok := innertube.SelectTrack(tracks)
	if !ok {
		return nil, errors.New("could not find a suitable caption track")
	}

	raw, err := o.client.Download(ctx, track)
	if err != nil {
		return nil, err
	}

	transcript, err := timedtext.Parse(raw)
	if err != nil {
		return nil, errors.New("fetched caption data but failed to parse it")
	}

	return &Result{
		Transcript:  transcript,
		Title:       doc.Title(),
		Description: doc.Description(),
	}, nil
}
