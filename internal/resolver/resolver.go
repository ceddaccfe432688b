package resolver

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/grabfrom/core/internal/errors"
	"github.com/grabfrom/core/internal/fetch"
	"github.com/grabfrom/core/internal/logger"
	"github.com/grabfrom/core/internal/task"
)

const defaultResolveTimeout = 30 * time.Second

// Format is one selectable download option for a piece of media.
type Format struct {
	FormatID     string  `json:"format_id"`
	Ext          string  `json:"ext"`
	Resolution   string  `json:"resolution"` // e.g. "1920x1080" or "audio only"
	QualityLabel string  `json:"quality_label"`
	Filesize     int64   `json:"filesize,omitempty"`
	FilesizeStr  string  `json:"filesize_str,omitempty"`
	VCodec       string  `json:"vcodec,omitempty"`
	ACodec       string  `json:"acodec,omitempty"`
	FPS          float64 `json:"fps,omitempty"`
	HasVideo     bool    `json:"has_video"`
	HasAudio     bool    `json:"has_audio"`
}

// Media is the resolved description of a URL: enough metadata for the UI
// to show a preview and a format picker before a task is submitted.
type Media struct {
	URL         string   `json:"url"`
	Platform    Platform `json:"platform"`
	MediaID     string   `json:"media_id,omitempty"`
	Title       string   `json:"title"`
	Thumbnail   string   `json:"thumbnail,omitempty"`
	Duration    int      `json:"duration"`
	DurationStr string   `json:"duration_str,omitempty"`
	Uploader    string   `json:"uploader,omitempty"`
	Formats     []Format `json:"formats"`
}

// Resolver turns a raw URL into resolved Media by dispatching to the
// matcher registry and probing the URL through the fetch engine.
type Resolver struct {
	registry *Registry
	prober   fetch.Prober
	timeout  time.Duration
	log      *logger.Logger
}

// New creates a Resolver with the built-in matcher registry.
func New(prober fetch.Prober, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = defaultResolveTimeout
	}
	return &Resolver{
		registry: DefaultRegistry(),
		prober:   prober,
		timeout:  timeout,
		log:      logger.Default().WithComponent("resolver"),
	}
}

// Registry exposes the matcher registry so callers can validate URLs
// without triggering a probe.
func (r *Resolver) Registry() *Registry {
	return r.registry
}

// Resolve validates the URL, probes it for metadata, and converts the
// probe result into Media. Transient probe failures are retried.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (*Media, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, apperrors.InvalidRequest("url is required")
	}

	match := r.registry.Match(rawURL)
	if !match.Valid {
		r.log.Warn(ctx, "rejected URL", map[string]interface{}{
			"url":    rawURL,
			"reason": match.Error,
		})
		return nil, apperrors.UnsupportedURL(rawURL).WithDetails(map[string]any{
			"reason": match.Error,
		})
	}

	// Probe the canonical form when the matcher produced one; short links
	// and generic URLs are probed as given.
	probeURL := match.Canonical
	if probeURL == "" {
		probeURL = match.URL
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	info, err := apperrors.RetryWithResult(ctx, apperrors.ResolverRetryConfig(),
		func(ctx context.Context) (*fetch.MediaInfo, error) {
			return r.prober.Probe(ctx, probeURL)
		})
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, apperrors.ExternalTimeout("media probe").WithCause(err)
		}
		r.log.Error(ctx, "probe failed", err, map[string]interface{}{
			"url":      probeURL,
			"platform": string(match.Platform),
		})
		return nil, err
	}

	media := r.convert(match, info)
	r.log.Info(ctx, "resolved media", map[string]interface{}{
		"url":         rawURL,
		"platform":    string(media.Platform),
		"formats":     len(media.Formats),
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return media, nil
}

// convert builds Media from a match and its probe result.
func (r *Resolver) convert(match MatchResult, info *fetch.MediaInfo) *Media {
	platform := match.Platform
	if platform == PlatformGeneric && info.Extractor != "" {
		platform = NormalizePlatform(info.Extractor)
	}

	media := &Media{
		URL:       match.URL,
		Platform:  platform,
		MediaID:   match.MediaID,
		Title:     info.Title,
		Thumbnail: info.Thumbnail,
		Duration:  int(info.Duration),
		Uploader:  info.Uploader,
		Formats:   convertFormats(info.Formats),
	}
	if media.Duration > 0 {
		media.DurationStr = task.FormatDuration(media.Duration)
	}
	return media
}

// convertFormats filters, labels, deduplicates, and orders the raw probe
// formats. Video formats come first sorted by height descending; audio-only
// formats follow. Formats with neither a labeled video track nor an audio
// track are dropped.
func convertFormats(raw []fetch.FormatInfo) []Format {
	formats := make([]Format, 0, len(raw))
	seen := make(map[string]struct{})

	for _, f := range raw {
		hasVideo := f.HasVideo()
		hasAudio := f.HasAudio()

		var resolution, label string
		switch {
		case hasVideo && f.Height > 0:
			if f.Width > 0 {
				resolution = fmt.Sprintf("%dx%d", f.Width, f.Height)
			} else {
				resolution = fmt.Sprintf("?x%d", f.Height)
			}
			label = fmt.Sprintf("%dp", f.Height)

		case hasAudio && !hasVideo:
			resolution = "audio only"
			if f.ABR >= 128 {
				label = "HQ"
			} else {
				label = "Audio"
			}

		default:
			continue
		}

		// One entry per quality/container/track combination.
		key := fmt.Sprintf("%s_%s_%t_%t", label, f.Ext, hasVideo, hasAudio)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		out := Format{
			FormatID:     f.FormatID,
			Ext:          f.Ext,
			Resolution:   resolution,
			QualityLabel: label,
			Filesize:     f.Size(),
			FPS:          f.FPS,
			HasVideo:     hasVideo,
			HasAudio:     hasAudio,
		}
		if hasVideo {
			out.VCodec = f.VCodec
		}
		if hasAudio {
			out.ACodec = f.ACodec
		}
		if out.Filesize > 0 {
			out.FilesizeStr = task.FormatSize(out.Filesize)
		}
		formats = append(formats, out)
	}

	sort.SliceStable(formats, func(i, j int) bool {
		vi, hi := formatSortKey(formats[i])
		vj, hj := formatSortKey(formats[j])
		if vi != vj {
			return vi > vj
		}
		return hi > hj
	})
	return formats
}

// formatSortKey ranks a format for display ordering.
func formatSortKey(f Format) (video, height int) {
	if !f.HasVideo {
		return 0, 0
	}
	parts := strings.SplitN(f.Resolution, "x", 2)
	if len(parts) == 2 {
		if h, err := strconv.Atoi(parts[1]); err == nil {
			return 1, h
		}
	}
	return 0, 0
}
