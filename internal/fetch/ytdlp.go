package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"

	"github.com/grabfrom/core/internal/logger"
	"github.com/grabfrom/core/internal/task"
)

// progressFuncInterval is how often the wrapper polls yt-dlp's progress.
const progressFuncInterval = 500 * time.Millisecond

// YTDLPEngine retrieves streams through the yt-dlp binary and runs ffmpeg
// directly for the merge, extract, and remux phases so each phase maps to
// one stage transition.
type YTDLPEngine struct {
	ffmpegPath string
	log        *logger.Logger
}

// NewYTDLPEngine returns an engine using the given ffmpeg binary
// ("ffmpeg" resolves via PATH).
func NewYTDLPEngine(ffmpegPath string) *YTDLPEngine {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &YTDLPEngine{
		ffmpegPath: ffmpegPath,
		log:        logger.Default().WithComponent("fetch"),
	}
}

// EnsureInstalled provisions a managed yt-dlp binary when the host has
// none. Safe to call on every startup; it is a no-op once installed.
func EnsureInstalled(ctx context.Context) error {
	_, err := ytdlp.Install(ctx, nil)
	return err
}

// Run executes the full phase sequence for a request. Cancellation via ctx
// is observed between progress ticks and between phases.
func (e *YTDLPEngine) Run(ctx context.Context, req Request, hooks Hooks) (*Result, error) {
	if audioOnlyFormat(req.OutputFormat) {
		return e.runAudioExtract(ctx, req, hooks)
	}
	if req.HasVideo && !req.HasAudio && req.IncludeAudio {
		return e.runSplitMerge(ctx, req, hooks)
	}
	return e.runSingle(ctx, req, hooks)
}

// runSingle downloads one (possibly muxed) stream and remuxes the
// container when the requested output format demands it.
func (e *YTDLPEngine) runSingle(ctx context.Context, req Request, hooks Hooks) (*Result, error) {
	stage(hooks, task.StageDownloadingVideo)

	format := req.FormatID
	if format == "" || format == "best" {
		if req.IncludeAudio {
			format = "best"
		} else {
			format = "bestvideo/best"
		}
	}

	produced, err := e.download(ctx, req, destStem(req.Destination), format, hooks)
	if err != nil {
		return nil, err
	}

	final := produced
	wantExt := "." + strings.ToLower(req.OutputFormat)
	if req.OutputFormat != "" && !strings.EqualFold(filepath.Ext(produced), wantExt) && needsRemux(req) {
		stage(hooks, task.StageProcessing)
		if err := e.remux(ctx, produced, req.Destination); err != nil {
			return nil, err
		}
		os.Remove(produced)
		final = req.Destination
	}

	return resultFor(final)
}

// runSplitMerge fetches a video-only stream plus best audio, then muxes
// them into the requested container.
func (e *YTDLPEngine) runSplitMerge(ctx context.Context, req Request, hooks Hooks) (*Result, error) {
	stem := destStem(req.Destination)

	stage(hooks, task.StageDownloadingVideo)
	video, err := e.download(ctx, req, stem+".video", req.FormatID, hooks)
	if err != nil {
		return nil, err
	}

	stage(hooks, task.StageDownloadingAudio)
	audioFormat := "bestaudio/best"
	if strings.EqualFold(req.OutputFormat, "mp4") {
		audioFormat = "bestaudio[ext=m4a]/bestaudio/best"
	}
	audio, err := e.download(ctx, req, stem+".audio", audioFormat, hooks)
	if err != nil {
		return nil, err
	}

	stage(hooks, task.StageMerging)
	if err := e.merge(ctx, video, audio, req.Destination); err != nil {
		return nil, err
	}
	os.Remove(video)
	os.Remove(audio)

	return resultFor(req.Destination)
}

// runAudioExtract fetches the best audio stream and transcodes it into the
// requested audio container.
func (e *YTDLPEngine) runAudioExtract(ctx context.Context, req Request, hooks Hooks) (*Result, error) {
	stem := destStem(req.Destination)

	stage(hooks, task.StageDownloadingAudio)
	format := req.FormatID
	if format == "" || format == "best" {
		format = "bestaudio/best"
	}
	raw, err := e.download(ctx, req, stem+".source", format, hooks)
	if err != nil {
		return nil, err
	}

	stage(hooks, task.StageExtractingAudio)
	if err := e.extractAudio(ctx, raw, req.Destination, req.OutputFormat); err != nil {
		return nil, err
	}
	os.Remove(raw)

	return resultFor(req.Destination)
}

// download runs one yt-dlp invocation writing to stem.%(ext)s and returns
// the produced file path.
func (e *YTDLPEngine) download(ctx context.Context, req Request, stem, format string, hooks Hooks) (string, error) {
	dl := ytdlp.New().
		NoPlaylist().
		Output(stem + ".%(ext)s")

	if req.Resume != nil {
		dl = dl.Continue()
	} else {
		dl = dl.ForceOverwrites()
	}
	if format != "" {
		dl = dl.Format(format)
	}
	if e.ffmpegPath != "ffmpeg" {
		dl = dl.FFmpegLocation(e.ffmpegPath)
	}

	dl.ProgressFunc(progressFuncInterval, func(update ytdlp.ProgressUpdate) {
		if hooks.OnProgress != nil {
			hooks.OnProgress(int64(update.DownloadedBytes), int64(update.TotalBytes))
		}
	})

	result, err := dl.Run(ctx, req.URL)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", classifyRunError(err)
	}

	if path := extractedFilename(result); path != "" {
		return path, nil
	}
	if path := newestMatch(stem); path != "" {
		return path, nil
	}
	return "", FetchFailed(ErrKindUnknown, "downloaded file not found on disk")
}

// extractedFilename pulls the produced path out of a run result.
func extractedFilename(result *ytdlp.Result) string {
	info, err := result.GetExtractedInfo()
	if err != nil || len(info) == 0 {
		return ""
	}
	if info[0].Filename != nil {
		return *info[0].Filename
	}
	return ""
}

// newestMatch finds the most recent non-partial file matching stem.*.
func newestMatch(stem string) string {
	matches, err := filepath.Glob(stem + ".*")
	if err != nil || len(matches) == 0 {
		return ""
	}

	var candidates []string
	for _, m := range matches {
		ext := strings.ToLower(filepath.Ext(m))
		if ext == ".part" || ext == ".ytdl" {
			continue
		}
		candidates = append(candidates, m)
	}
	if len(candidates) == 0 {
		return ""
	}

	sort.Slice(candidates, func(i, j int) bool {
		fi, err1 := os.Stat(candidates[i])
		fj, err2 := os.Stat(candidates[j])
		if err1 != nil || err2 != nil {
			return false
		}
		return fi.ModTime().After(fj.ModTime())
	})
	return candidates[0]
}

// merge muxes a video and an audio stream into dst without re-encoding.
func (e *YTDLPEngine) merge(ctx context.Context, video, audio, dst string) error {
	args := []string{"-y", "-i", video, "-i", audio, "-c", "copy", dst}
	if strings.EqualFold(filepath.Ext(dst), ".mp4") {
		args = []string{"-y", "-i", video, "-i", audio, "-c", "copy", "-movflags", "+faststart", dst}
	}
	return e.ffmpeg(ctx, args)
}

// remux rewrites the container of src into dst.
func (e *YTDLPEngine) remux(ctx context.Context, src, dst string) error {
	return e.ffmpeg(ctx, []string{"-y", "-i", src, "-c", "copy", dst})
}

// extractAudio transcodes src into an audio-only file.
func (e *YTDLPEngine) extractAudio(ctx context.Context, src, dst, format string) error {
	var codecArgs []string
	switch strings.ToLower(format) {
	case "mp3":
		codecArgs = []string{"-acodec", "libmp3lame", "-b:a", "192k"}
	case "flac":
		codecArgs = []string{"-acodec", "flac"}
	case "opus":
		codecArgs = []string{"-acodec", "libopus", "-b:a", "192k"}
	case "wav":
		codecArgs = []string{"-acodec", "pcm_s16le"}
	default: // m4a
		codecArgs = []string{"-acodec", "aac", "-b:a", "192k"}
	}

	args := append([]string{"-y", "-i", src, "-vn"}, codecArgs...)
	args = append(args, dst)
	return e.ffmpeg(ctx, args)
}

// ffmpeg runs one ffmpeg command, honoring ctx cancellation.
func (e *YTDLPEngine) ffmpeg(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		detail := strings.TrimSpace(string(out))
		if len(detail) > 500 {
			detail = detail[len(detail)-500:]
		}
		e.log.Error(ctx, "ffmpeg failed", err, map[string]interface{}{
			"args": strings.Join(args, " "),
		})
		return FetchFailed(ErrKindProcessing, fmt.Sprintf("ffmpeg: %s", detail))
	}
	return nil
}

// Probe extracts metadata and the available format list without
// downloading anything.
func (e *YTDLPEngine) Probe(ctx context.Context, url string) (*MediaInfo, error) {
	dl := ytdlp.New().
		SkipDownload().
		NoPlaylist().
		DumpSingleJSON()

	result, err := dl.Run(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classifyProbeError(err)
	}

	var info MediaInfo
	if err := json.Unmarshal([]byte(result.Stdout), &info); err != nil {
		return nil, classifyProbeError(fmt.Errorf("parse probe output: %w", err))
	}
	return &info, nil
}

func stage(hooks Hooks, s task.Stage) {
	if hooks.OnStage != nil {
		hooks.OnStage(s)
	}
}

// destStem strips the extension off a destination path.
func destStem(dest string) string {
	return strings.TrimSuffix(dest, filepath.Ext(dest))
}

func resultFor(path string) (*Result, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, FetchFailed(ErrKindUnknown, fmt.Sprintf("output file missing: %v", err))
	}
	return &Result{OutputPath: path, FinalSize: fi.Size()}, nil
}
