package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"voice-companion/internal/domain/model"
)

var _ Transcoder = (*FFmpegTranscoder)(nil)

// FFmpegTranscoder pipes the recording through an ffmpeg binary.
type FFmpegTranscoder struct {
	Path string
}

func NewFFmpegTranscoder(path string) *FFmpegTranscoder {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpegTranscoder{Path: path}
}

func (f *FFmpegTranscoder) Name() string { return "ffmpeg" }

// demuxer names where ffmpeg's differ from the upload hint
var ffmpegDemuxers = map[string]string{
	"m4a": "mov",
	"mp4": "mov",
}

func (f *FFmpegTranscoder) Transcode(ctx context.Context, raw []byte, format string) ([]byte, error) {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if d, ok := ffmpegDemuxers[format]; ok {
		args = append(args, "-f", d)
	} else if format != "" {
		args = append(args, "-f", format)
	}
	args = append(args,
		"-i", "pipe:0",
		"-vn",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(model.PCMSampleRate),
		"-ac", strconv.Itoa(model.PCMChannels),
		"pipe:1",
	)
	cmd := exec.CommandContext(ctx, f.Path, args...)
	cmd.Stdin = bytes.NewReader(raw)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return nil, fmt.Errorf("ffmpeg: %v: %s", err, msg)
	}
	return stdout.Bytes(), nil
}
