package generator

import (
	"fmt"
	"time"
)

const (
	DefaultModel  = "gemini-2.5-flash"
	DefaultPacing = 2 * time.Second

	// QuotaExceededMessage はバッチ結果でクォータ超過を伝える正規化済みメッセージです。
	QuotaExceededMessage = "API quota exceeded. Please try again later or upgrade your plan."

	cacheKeySourceImage = "source_image:"
	pingPrompt          = "Say OK if you can hear me"
)

// describePrompt は元画像から絵本向けの人物描写を得るための指示です。
const describePrompt = `
Describe the subject in the image for a fairy tale illustration.
Cartoon style, soft colors, storybook illustration.
Do NOT include name or story.
`

// illustrationTemplate には人物描写を 1 つだけ埋め込みます。
const illustrationTemplate = `
storybook illustration of a fantasy character,
inspired by: %s,
cute cartoon style, pastel colors,
hand drawn, NOT realistic, safe for children
`

// mergePrompt はテンプレート画像（1枚目）に被写体写真（2枚目）を差し込むための指示です。
const mergePrompt = `You are analyzing two images:
1. A template illustration: a finished storybook scene with a main character, background elements and any text.
2. A real photo of a subject.

Your task:
- Analyze the template image: describe the scene, composition, colors, style, position of the main character, background elements and text placement.
- Analyze the subject photo: describe the subject's appearance, hair color, clothing, pose and expression.
- Create a detailed prompt for generating a new image that places the subject from the photo into the template scene, keeping the artistic style, composition and all other elements exactly as in the template, with the subject replacing the original character in the same position and pose.

The output should be a detailed image generation prompt that will recreate the entire scene with the new subject seamlessly integrated.`

// BuildIllustrationPrompt は人物描写をそのまま埋め込んだ画像生成プロンプトを返します。
func BuildIllustrationPrompt(description string) string {
	return fmt.Sprintf(illustrationTemplate, description)
}
