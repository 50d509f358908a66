package script

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"

	"storyreel/internal/services/storybank"
)

// ClipPrompt is the image prompt pair for one clip.
type ClipPrompt struct {
	ImagePrompt    string `json:"image_prompt" jsonschema_description:"Detailed 150 to 250 word image generation prompt for the scene"`
	NegativePrompt string `json:"image_negative_prompt" jsonschema_description:"Comma separated list of things to exclude from the image"`
}

// FallbackNegativePrompt accompanies a clip whose image prompt fell back to
// its narration text.
const FallbackNegativePrompt = "blurry, low quality, shaky, irrelevant content"

var (
	scriptSchema = responseSchema[Script]()
	clipSchema   = responseSchema[ClipPrompt]()
)

func responseSchema[T any]() string {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	data, err := json.Marshal(reflector.Reflect(v))
	if err != nil {
		return "{}"
	}
	return string(data)
}

// ScriptSystemPrompt frames the story writer.
func ScriptSystemPrompt(plan Plan, inspiration *storybank.Story) string {
	var b strings.Builder
	b.WriteString("You are a viral short-form storyteller. You write narration for vertical videos on TikTok, YouTube Shorts and Instagram Reels.\n\n")
	fmt.Fprintf(&b, "TASK:\nWrite a %d-second story told over %d clips. Each clip carries 4 seconds of voiceover, exactly %d words. ",
		plan.DurationSeconds, plan.ClipCount, plan.WordsPerClip)
	fmt.Fprintf(&b, "The whole script must be exactly %d words. Never exceed it.\n\n", plan.TotalWords())
	b.WriteString("FORMAT:\nReturn only a JSON object, no markdown, matching this JSON schema:\n")
	b.WriteString(scriptSchema)
	fmt.Fprintf(&b, "\nhashtags holds 10 lowercase tags without the # symbol. clip_texts holds %d strings of %d words each.\n\n",
		plan.ClipCount, plan.WordsPerClip)
	if inspiration != nil && inspiration.Complete() {
		b.WriteString("INSPIRATION EXAMPLE:\n")
		fmt.Fprintf(&b, "Title: %s\nStory: %s\nMoral: %s\n\n", inspiration.Title, inspiration.Story, inspiration.Moral)
	}
	b.WriteString("STORY RULES:\n")
	b.WriteString("- Present tense, opening on an emotional hook\n")
	b.WriteString("- Concrete names, places and unusual details\n")
	b.WriteString("- Every clip is a visually distinct scene with people, actions and settings\n")
	b.WriteString("- Tension builds clip by clip toward a surprising or ironic payoff\n")
	b.WriteString("- No politics, religion, promotion, jargon or overused tropes\n")
	b.WriteString("- Plain punctuation only: no *, ~, # or other special characters\n")
	return b.String()
}

// ScriptUserPrompt asks for the script itself.
func ScriptUserPrompt(plan Plan) string {
	return fmt.Sprintf(
		"Create a %d-second story-based video script built for sharing. "+
			"The story uses %d sequential images with %d words of narration each. "+
			"Build steadily and land a strong emotional or ironic payoff.",
		plan.DurationSeconds, plan.ClipCount, plan.WordsPerClip)
}

// ClipSystemPrompt frames the image prompt engineer with the full story context.
func ClipSystemPrompt(s Script) string {
	var b strings.Builder
	b.WriteString("You write prompts for FLUX.1-dev, an open text-to-image model. Prompts are cinematic, detailed and tuned for social media.\n\n")
	b.WriteString("FORMAT:\nReturn only a JSON object matching this JSON schema:\n")
	b.WriteString(clipSchema)
	b.WriteString("\n\nPROMPT STRUCTURE: subject, action, environment, lighting, camera angle, composition, technical specs, mood.\n\n")
	b.WriteString("STORY CONTEXT:\n")
	fmt.Fprintf(&b, "- Title: %q\n- Description: %q\n- Full Script: %q\n\n", s.Title, s.Description, s.FullText())
	b.WriteString("CONSISTENCY: keep characters, palette, time of day, environment and style consistent across scenes.\n")
	b.WriteString("COMPOSITION: square 1:1 frame, one strong focal point, bold contrast, little clutter.\n")
	b.WriteString("ANCHORS: name a cinema camera, a lens (85mm f/1.4 or 24-70mm f/2.8), a lighting setup and a color grade.\n")
	b.WriteString("NEGATIVE PROMPT: exclude blur, low resolution, bad anatomy, extra limbs, watermarks, logos, text, clutter and oversaturation.\n")
	return b.String()
}

// ClipUserPrompt asks for the image prompt of one scene.
func ClipUserPrompt(scene string, idx, total int) string {
	return fmt.Sprintf(
		"Generate an image prompt for this scene:\nScene: %q\nScene Position: %d of %d\nNarrative Flow: %s\n\n"+
			"Focus on one powerful visual moment, keep continuity with the rest of the story, "+
			"give exact camera and lighting details, and write 150 to 250 words.",
		scene, idx+1, total, NarrativePosition(idx, total))
}
