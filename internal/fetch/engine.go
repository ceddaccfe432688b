// Package fetch defines the fetch engine boundary: the contract a worker
// drives to retrieve streams and produce the final media file, and the
// yt-dlp/ffmpeg implementation behind it.
package fetch

import (
	"context"
	"strings"

	"github.com/grabfrom/core/internal/task"
)

// Hooks are the callbacks a worker hands to an engine run. Both are invoked
// from the engine's goroutine; implementations must not block.
type Hooks struct {
	// OnProgress receives raw byte-counter ticks. total <= 0 means the
	// total size is unknown.
	OnProgress func(downloaded, total int64)
	// OnStage fires before each phase of the run begins.
	OnStage func(stage task.Stage)
}

// ResumeMarker carries what a paused run needs to continue: the planned
// destination (whose partial files the engine picks up) and the byte count
// at pause time, for display until fresh ticks arrive.
type ResumeMarker struct {
	Path            string `json:"path"`
	BytesDownloaded int64  `json:"bytes_downloaded"`
}

// Request describes one engine run.
type Request struct {
	URL          string
	FormatID     string
	OutputFormat string
	IncludeAudio bool
	HasAudio     bool
	HasVideo     bool
	// Destination is the planned final path, extension included.
	Destination string
	// Resume, when set, continues a previously paused run.
	Resume *ResumeMarker
}

// Result is a successful engine run.
type Result struct {
	OutputPath string
	FinalSize  int64
}

// Engine performs the actual stream retrieval and muxing/extraction.
// Cancellation is cooperative through ctx; the engine observes it between
// progress ticks and between phases.
type Engine interface {
	Run(ctx context.Context, req Request, hooks Hooks) (*Result, error)
}

// MediaInfo is the subset of a probe result this core consumes, matching
// the extractor's JSON output.
type MediaInfo struct {
	Title      string       `json:"title"`
	Thumbnail  string       `json:"thumbnail"`
	Duration   float64      `json:"duration"`
	Uploader   string       `json:"uploader"`
	WebpageURL string       `json:"webpage_url"`
	Extractor  string       `json:"extractor_key"`
	Formats    []FormatInfo `json:"formats"`
}

// FormatInfo is one available stream as reported by a probe.
type FormatInfo struct {
	FormatID       string  `json:"format_id"`
	Ext            string  `json:"ext"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	FPS            float64 `json:"fps"`
	VCodec         string  `json:"vcodec"`
	ACodec         string  `json:"acodec"`
	ABR            float64 `json:"abr"`
	TBR            float64 `json:"tbr"`
	Filesize       int64   `json:"filesize"`
	FilesizeApprox int64   `json:"filesize_approx"`
	FormatNote     string  `json:"format_note"`
}

// HasVideo reports whether the stream carries a video track.
func (f FormatInfo) HasVideo() bool {
	return f.VCodec != "" && f.VCodec != "none"
}

// HasAudio reports whether the stream carries an audio track.
func (f FormatInfo) HasAudio() bool {
	return f.ACodec != "" && f.ACodec != "none"
}

// Size returns the best known stream size, preferring the exact value.
func (f FormatInfo) Size() int64 {
	if f.Filesize > 0 {
		return f.Filesize
	}
	return f.FilesizeApprox
}

// Prober exposes metadata extraction without downloading. The media
// resolver sits on top of this.
type Prober interface {
	Probe(ctx context.Context, url string) (*MediaInfo, error)
}

// StagePlan returns the ordered stages a request will pass through.
func StagePlan(req Request) []task.Stage {
	if audioOnlyFormat(req.OutputFormat) {
		return []task.Stage{task.StageDownloadingAudio, task.StageExtractingAudio}
	}
	if req.HasVideo && !req.HasAudio && req.IncludeAudio {
		return []task.Stage{task.StageDownloadingVideo, task.StageDownloadingAudio, task.StageMerging}
	}
	if needsRemux(req) {
		return []task.Stage{task.StageDownloadingVideo, task.StageProcessing}
	}
	return []task.Stage{task.StageDownloadingVideo}
}

func audioOnlyFormat(format string) bool {
	switch strings.ToLower(format) {
	case "mp3", "m4a", "flac", "opus", "wav":
		return true
	}
	return false
}

// needsRemux reports whether the downloaded container must be rewritten to
// match the requested output format.
func needsRemux(req Request) bool {
	return strings.ToLower(req.OutputFormat) == "mp4"
}
