package scraper

import (
	"context"
	"fmt"
	"time"

	"civitai-scraper/internal/database/models"
	"civitai-scraper/internal/prompts"
	"civitai-scraper/pkg/types"

	"github.com/sirupsen/logrus"
)

const (
	pageDelay     = time.Second
	downloadDelay = 100 * time.Millisecond
)

// Catalog records every processed image. Failures are logged and never stop a run.
type Catalog interface {
	SaveImage(image *models.Image) error
}

type Options struct {
	BaseURL         string
	Token           string
	Username        string
	SFWPromptsFile  string
	NSFWPromptsFile string
	// StopAtExisting ends the run at the first image already on disk and
	// merges the corpora into the existing files.
	StopAtExisting bool
}

// RunContext is the mutable state of one run.
type RunContext struct {
	Stats     types.RunStats
	SFW       *prompts.Corpus
	NSFW      *prompts.Corpus
	Truncated bool
	Stopped   bool
}

func NewRunContext() *RunContext {
	return &RunContext{
		SFW:  prompts.NewCorpus("sfw"),
		NSFW: prompts.NewCorpus("nsfw"),
	}
}

func (rc *RunContext) corpus(nsfw bool) *prompts.Corpus {
	if nsfw {
		return rc.NSFW
	}
	return rc.SFW
}

type RunResult struct {
	Stats     types.RunStats
	SFWLines  int
	NSFWLines int
	Truncated bool
	Duration  time.Duration
}

// Harvester walks the paginated image listing of one user, downloads every
// image into its classification directory and writes the prompt corpora.
type Harvester struct {
	client     *Client
	downloader *Downloader
	cleaner    *prompts.Cleaner
	catalog    Catalog
	opts       Options
	logger     *logrus.Logger

	pageDelay     time.Duration
	downloadDelay time.Duration
	sleep         func(ctx context.Context, d time.Duration) error
}

// NewHarvester wires a run. catalog may be nil.
func NewHarvester(client *Client, downloader *Downloader, cleaner *prompts.Cleaner, catalog Catalog, opts Options, logger *logrus.Logger) *Harvester {
	return &Harvester{
		client:        client,
		downloader:    downloader,
		cleaner:       cleaner,
		catalog:       catalog,
		opts:          opts,
		logger:        logger,
		pageDelay:     pageDelay,
		downloadDelay: downloadDelay,
		sleep:         sleepContext,
	}
}

// Run harvests every page and writes both corpora. A failed page fetch ends
// pagination early but the corpora are still written; filesystem errors
// abort the run.
func (h *Harvester) Run(ctx context.Context) (*RunResult, error) {
	start := time.Now()
	run := NewRunContext()

	if err := h.Harvest(ctx, run); err != nil {
		return nil, err
	}

	sfwLines, nsfwLines, err := h.WriteCorpora(run)
	if err != nil {
		return nil, err
	}

	result := &RunResult{
		Stats:     run.Stats,
		SFWLines:  sfwLines,
		NSFWLines: nsfwLines,
		Truncated: run.Truncated,
		Duration:  time.Since(start),
	}
	h.logger.Infof("Run finished in %s: %s", result.Duration.Round(time.Millisecond), run.Stats)
	return result, nil
}

// Harvest fills run from the listing, following metadata.nextPage until it is absent.
func (h *Harvester) Harvest(ctx context.Context, run *RunContext) error {
	pageURL := BuildInitialURL(h.opts.BaseURL, h.opts.Token, h.opts.Username)

	for pageURL != "" {
		page, err := h.client.FetchPage(ctx, pageURL)
		if err != nil {
			h.logger.Warnf("Stopping pagination after %d pages: %v", run.Stats.Pages, err)
			run.Truncated = true
			return nil
		}
		run.Stats.Pages++

		h.logger.WithFields(logrus.Fields{
			"page":         run.Stats.Pages,
			"items":        len(page.Items),
			"current_page": page.Metadata.CurrentPage,
			"total_pages":  page.Metadata.TotalPages,
			"total_items":  page.Metadata.TotalItems,
			"next_cursor":  page.Metadata.NextCursor,
		}).Debug("Page metadata")

		for _, item := range page.Items {
			stop, err := h.processItem(ctx, run, item)
			if err != nil {
				return err
			}
			if stop {
				return nil
			}
		}

		pageURL = page.Metadata.NextPage
		if pageURL == "" {
			break
		}
		if err := h.sleep(ctx, h.pageDelay); err != nil {
			run.Truncated = true
			return nil
		}
	}
	return nil
}

// processItem handles one listing item and reports whether the run should stop.
func (h *Harvester) processItem(ctx context.Context, run *RunContext, item types.ImageItem) (bool, error) {
	nsfw := IsNSFW(item)
	filename := Filename(item)

	run.Stats.TotalFetched++
	if nsfw {
		run.Stats.NSFW++
	} else {
		run.Stats.SFW++
	}

	outcome, err := h.downloader.EnsureDownloaded(ctx, item.URL, filename, nsfw)
	if err != nil {
		return true, fmt.Errorf("failed to store %s: %w", filename, err)
	}

	switch outcome {
	case OutcomeDownloaded:
		run.Stats.Downloaded++
	case OutcomeSkipped:
		run.Stats.Skipped++
	default:
		run.Stats.Failed++
	}

	positive, negative := item.Prompt()
	run.corpus(nsfw).Add(positive, negative)

	h.record(item, filename, nsfw)

	if outcome == OutcomeSkipped {
		if h.opts.StopAtExisting {
			h.logger.Infof("Found existing image %s, stopping incremental run", filename)
			run.Stopped = true
			return true, nil
		}
		return false, nil
	}

	if err := h.sleep(ctx, h.downloadDelay); err != nil {
		run.Truncated = true
		return true, nil
	}
	return false, nil
}

func (h *Harvester) record(item types.ImageItem, filename string, nsfw bool) {
	if h.catalog == nil {
		return
	}
	if err := h.catalog.SaveImage(NewCatalogImage(item, filename, nsfw)); err != nil {
		h.logger.WithFields(logrus.Fields{"image_id": item.ID}).Warnf("Failed to record image in catalog: %v", err)
	}
}

// WriteCorpora writes both prompt files and returns their line counts.
func (h *Harvester) WriteCorpora(run *RunContext) (int, int, error) {
	merge := h.opts.StopAtExisting

	sfwLines, err := run.SFW.WriteFile(h.opts.SFWPromptsFile, h.cleaner, merge)
	if err != nil {
		return 0, 0, err
	}
	h.logger.Infof("Saved %d SFW prompts to %s", sfwLines, h.opts.SFWPromptsFile)

	nsfwLines, err := run.NSFW.WriteFile(h.opts.NSFWPromptsFile, h.cleaner, merge)
	if err != nil {
		return 0, 0, err
	}
	h.logger.Infof("Saved %d NSFW prompts to %s", nsfwLines, h.opts.NSFWPromptsFile)

	return sfwLines, nsfwLines, nil
}

// NewCatalogImage maps a listing item onto a catalog row.
func NewCatalogImage(item types.ImageItem, filename string, nsfw bool) *models.Image {
	image := &models.Image{
		ID:             item.ID,
		Filename:       filename,
		URL:            item.URL,
		Hash:           item.Hash,
		Width:          item.Width,
		Height:         item.Height,
		PostID:         item.PostID,
		Username:       item.Username,
		NSFW:           nsfw,
		NSFWLevel:      string(item.NSFWLevel),
		LikeCount:      item.Stats.LikeCount,
		HeartCount:     item.Stats.HeartCount,
		CommentCount:   item.Stats.CommentCount,
		LaughCount:     item.Stats.LaughCount,
		CryCount:       item.Stats.CryCount,
		DislikeCount:   item.Stats.DislikeCount,
		ImageCreatedAt: item.CreatedAt,
		ScrapedAt:      time.Now().UTC(),
		Loras:          models.LoraList{},
	}

	if meta := item.Meta; meta != nil {
		image.Prompt = meta.Prompt
		image.NegativePrompt = meta.NegativePrompt
		image.Model = meta.Model
		image.Sampler = meta.Sampler
		image.Steps = int(meta.Steps.Int64())
		image.CFGScale = meta.CFGScale.Float64()
		image.Seed = meta.Seed.String()
		for _, lora := range prompts.ExtractLoras(meta.Prompt) {
			image.Loras = append(image.Loras, models.Lora{Name: lora.Name, Weight: lora.Weight})
		}
	}
	return image
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
