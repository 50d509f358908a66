package render

import (
	"fmt"
	"math"
	"strings"
	"time"

	"storyreel/internal/alignment"
)

// CaptionStyle controls the burned-in word captions.
type CaptionStyle struct {
	FontName string
	FontSize int
	Outline  int
	// Width and Height are the canvas size the ASS script is authored for.
	Width  int
	Height int
	// BandHeight is the height of the bottom caption band. Words are centred
	// inside it.
	BandHeight int
	Fade       time.Duration
}

// DefaultCaptionStyle is white bold text with a black outline, centred in a
// 240px band at the bottom of a square canvas.
func DefaultCaptionStyle() CaptionStyle {
	return CaptionStyle{
		FontName:   "DejaVu Sans",
		FontSize:   60,
		Outline:    3,
		Width:      1080,
		Height:     1080,
		BandHeight: 240,
		Fade:       100 * time.Millisecond,
	}
}

// Captions renders one dialogue event per word. Words with no positive
// duration are dropped.
func Captions(words []alignment.WordTimestamp, style CaptionStyle) string {
	var b strings.Builder
	b.WriteString(assHeader(style))
	b.WriteString("\n\n[Events]\n")
	b.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")
	x := style.Width / 2
	y := style.Height - style.BandHeight/2
	fade := int(style.Fade / time.Millisecond)
	for _, w := range words {
		text := sanitizeASS(w.Word)
		if text == "" || w.End <= w.Start {
			continue
		}
		fmt.Fprintf(&b, "Dialogue: 0,%s,%s,Caption,,0,0,0,,{\\an5\\pos(%d,%d)\\fad(%d,0)}%s\n",
			assTime(seconds(w.Start)), assTime(seconds(w.End)), x, y, fade, text)
	}
	return b.String()
}

func assHeader(style CaptionStyle) string {
	return fmt.Sprintf(strings.TrimSpace(`
[Script Info]
ScriptType: v4.00+
PlayResX: %d
PlayResY: %d
WrapStyle: 0
ScaledBorderAndShadow: yes

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: Caption,%s,%d,&H00FFFFFF,&H00FFFFFF,&H00000000,&H00000000,-1,0,0,0,100,100,0,0,1,%d,0,5,0,0,0,1
`), style.Width, style.Height, style.FontName, style.FontSize, style.Outline)
}

func assTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hs := int(d / time.Hour)
	d -= time.Duration(hs) * time.Hour
	ms := int(d / time.Minute)
	d -= time.Duration(ms) * time.Minute
	s := int(d / time.Second)
	d -= time.Duration(s) * time.Second
	cs := int(d / (10 * time.Millisecond))
	return fmt.Sprintf("%d:%02d:%02d.%02d", hs, ms, s, cs)
}

func sanitizeASS(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "{", "(")
	s = strings.ReplaceAll(s, "}", ")")
	return strings.TrimSpace(s)
}

func seconds(v float64) time.Duration {
	return time.Duration(math.Round(v*1000)) * time.Millisecond
}
