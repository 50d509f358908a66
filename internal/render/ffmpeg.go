package render

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"storyreel/internal/services"
)

// Layer is one clip drawn over the canvas. ImagePath selects a still image
// with a slow zoom; otherwise a grey placeholder shows the text in TextFile.
type Layer struct {
	Start     float64
	Duration  float64
	ImagePath string
	TextFile  string
}

// Composition describes one ffmpeg render.
type Composition struct {
	AudioPath    string
	CaptionsPath string
	OutputPath   string
	Duration     float64
	Layers       []Layer
}

// Settings are the fixed encoding parameters.
type Settings struct {
	Width               int
	Height              int
	FPS                 int
	Preset              string
	VideoBitrate        string
	ZoomFactor          float64
	FontPath            string
	PlaceholderFontSize int
}

// Composer renders a composition to its output file.
type Composer interface {
	Compose(ctx context.Context, c Composition) error
}

// FFmpeg composes videos with the ffmpeg binary.
type FFmpeg struct {
	Binary   string
	Settings Settings
}

// NewFFmpeg constructs an ffmpeg composer.
func NewFFmpeg(binary string, settings Settings) *FFmpeg {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	return &FFmpeg{Binary: binary, Settings: settings}
}

// Compose runs ffmpeg and returns its output on failure.
func (f *FFmpeg) Compose(ctx context.Context, c Composition) error {
	cmd := exec.CommandContext(ctx, f.Binary, ComposeArgs(c, f.Settings)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return services.Wrap(services.ErrExternalTool, "render", "ffmpeg compose", tail(string(out), 2000), err)
	}
	return nil
}

// ComposeArgs builds the ffmpeg argument list for c.
//
// Input 0 is the narration. Each image layer adds one still-image input that
// zoompan expands into exactly the layer's frames; placeholders are generated
// in the graph. Layers are shifted to their start and overlaid in clip order on
// a black canvas, captions are burned last, and the output is cut to the
// narration length.
func ComposeArgs(c Composition, s Settings) []string {
	size := fmt.Sprintf("%dx%d", s.Width, s.Height)
	args := []string{"-y", "-hide_banner", "-loglevel", "error", "-i", c.AudioPath}
	graph := []string{fmt.Sprintf("color=c=black:s=%s:r=%d:d=%s[base]", size, s.FPS, secs(c.Duration))}
	prev := "base"
	input := 1
	for i, layer := range c.Layers {
		frames := frameCount(layer.Duration, s.FPS)
		if frames < 1 {
			continue
		}
		label := fmt.Sprintf("l%d", i)
		shift := fmt.Sprintf("setpts=PTS-STARTPTS+%s/TB", secs(layer.Start))
		if layer.ImagePath != "" {
			args = append(args, "-i", layer.ImagePath)
			graph = append(graph, fmt.Sprintf(
				"[%d:v]scale=%d:%d,setsar=1,zoompan=z='1+%s*on/%d':x='iw/2-(iw/zoom/2)':y='ih/2-(ih/zoom/2)':d=%d:s=%s:fps=%d,%s[%s]",
				input, s.Width, s.Height, num(math.Round((s.ZoomFactor-1)*1e4)/1e4), frames, frames, size, s.FPS, shift, label))
			input++
		} else {
			graph = append(graph, fmt.Sprintf(
				"color=c=0x323232:s=%s:r=%d:d=%s,drawtext=fontfile=%s:textfile=%s:fontsize=%d:fontcolor=white:x=(w-text_w)/2:y=(h-text_h)/2,%s[%s]",
				size, s.FPS, secs(layer.Duration), escapeFilterPath(s.FontPath), escapeFilterPath(layer.TextFile), s.PlaceholderFontSize, shift, label))
		}
		next := fmt.Sprintf("v%d", i)
		graph = append(graph, fmt.Sprintf("[%s][%s]overlay=eof_action=pass:enable='between(t,%s,%s)'[%s]",
			prev, label, secs(layer.Start), secs(layer.Start+layer.Duration), next))
		prev = next
	}
	if c.CaptionsPath != "" {
		subtitles := "subtitles=filename=" + escapeFilterPath(c.CaptionsPath)
		if s.FontPath != "" {
			subtitles += ":fontsdir=" + escapeFilterPath(filepath.Dir(s.FontPath))
		}
		graph = append(graph, fmt.Sprintf("[%s]%s[captioned]", prev, subtitles))
		prev = "captioned"
	}
	graph = append(graph, fmt.Sprintf("[%s]format=yuv420p[out]", prev))

	args = append(args,
		"-filter_complex", strings.Join(graph, ";"),
		"-map", "[out]",
		"-map", "0:a",
		"-c:v", "libx264",
		"-preset", s.Preset,
		"-b:v", s.VideoBitrate,
		"-r", strconv.Itoa(s.FPS),
		"-c:a", "aac",
		"-t", secs(c.Duration),
		"-movflags", "+faststart",
		c.OutputPath,
	)
	return args
}

func frameCount(duration float64, fps int) int {
	if duration <= 0 || fps <= 0 {
		return 0
	}
	return int(math.Round(duration * float64(fps)))
}

func secs(v float64) string {
	if v < 0 {
		v = 0
	}
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// escapeFilterPath escapes a path for use as an unquoted filter option value.
func escapeFilterPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "\\\\")
	for _, ch := range []string{":", "'", ",", ";", "[", "]"} {
		p = strings.ReplaceAll(p, ch, "\\"+ch)
	}
	return p
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
