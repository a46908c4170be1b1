// Package prompt assembles the system and user messages sent to the
// extraction model. Building a prompt is deterministic.
package prompt

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/flyspark015/nexacat/internal/domain"
)

// MaxContentChars bounds the page content sent to the model.
const MaxContentChars = 15000

// maxListedImages bounds the candidate image list in the user message.
const maxListedImages = 20

const contract = `You are a product data extraction engine for an e-commerce catalog.
Extract the single product the page is about and reply with ONE JSON object, no prose, using exactly these keys:

{
  "title": "string, the product name without store name",
  "description": "string, full description, markdown allowed",
  "shortDescription": "string, one sentence under 160 characters",
  "specifications": {"name": "value"},
  "tags": ["lowercase keyword"],
  "suggestedCategory": "string, a short catalog category name",
  "imageUrls": ["absolute URL of a photo of THIS product"],
  "videoUrl": "absolute URL or null",
  "stockStatus": "in-stock | out-of-stock | preorder",
  "price": "price as printed on the page, or empty",
  "currency": "ISO 4217 code, or empty"
}

Rules:
- Use only information present in the input. Never invent specifications, prices or URLs.
- Images: include an image ONLY if you are certain it shows this exact product. When unsure, leave it out. An empty imageUrls array is acceptable.
- Ignore related products, recommended items, "customers also bought", recently viewed, bundles, ads, reviews, logos, icons and navigation.
- Copy image URLs exactly as given; prefer the largest variant of each photo.
- Omit a key rather than guessing its value.`

const visionContract = contract + `
- The input is a set of product photos and optional text supplied by an administrator instead of a web page.`

// Content is the processed page the prompt is built from.
type Content struct {
	URL            string
	CleanedHTML    string
	StructuredData []byte
	Metadata       domain.ProductMeta
	Images         []domain.ExtractedImage
}

// Prompt is a system/user message pair.
type Prompt struct {
	System string
	User   string
}

// Build returns the prompt for the HTML extraction path. Non-blank
// instructions are appended after the base contract so they take precedence.
func Build(c Content, instructions string) Prompt {
	var b strings.Builder
	if c.URL != "" {
		fmt.Fprintf(&b, "SOURCE URL: %s\n\n", c.URL)
	}

	var meta []string
	for _, kv := range [][2]string{
		{"Title", c.Metadata.Title},
		{"Description", c.Metadata.Description},
		{"Price", c.Metadata.Price},
		{"Currency", c.Metadata.Currency},
		{"Brand", c.Metadata.Brand},
		{"Availability", c.Metadata.Availability},
	} {
		if kv[1] != "" {
			meta = append(meta, fmt.Sprintf("- %s: %s", kv[0], kv[1]))
		}
	}
	if len(meta) > 0 {
		b.WriteString("PAGE METADATA:\n" + strings.Join(meta, "\n") + "\n\n")
	}

	if len(c.Images) > 0 {
		b.WriteString("CANDIDATE IMAGES (best first):\n")
		for i, img := range c.Images {
			if i == maxListedImages {
				break
			}
			fmt.Fprintf(&b, "%d. %s [%s, %s quality]", i+1, img.URL, img.Type, img.Quality)
			if img.Alt != "" {
				fmt.Fprintf(&b, " alt=%q", img.Alt)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("PAGE CONTENT (cleaned HTML):\n")
	b.WriteString(Truncate(c.CleanedHTML, MaxContentChars))
	b.WriteString("\n")

	if len(c.StructuredData) > 0 {
		b.WriteString("\nSTRUCTURED DATA (JSON-LD):\n")
		b.Write(c.StructuredData)
		b.WriteString("\n")
	}

	return Prompt{System: withInstructions(contract, instructions), User: b.String()}
}

// BuildVision returns the prompt for extraction from uploaded images and text.
func BuildVision(text string, imageCount int, instructions string) Prompt {
	var b strings.Builder
	if imageCount > 0 {
		fmt.Fprintf(&b, "%d product image(s) are attached. Identify the product from them and leave imageUrls empty; the uploaded images are kept as the product images.\n\n", imageCount)
	}
	text = strings.TrimSpace(text)
	if text != "" {
		b.WriteString("PRODUCT TEXT:\n")
		b.WriteString(Truncate(text, MaxContentChars))
		b.WriteString("\n")
	}
	if b.Len() == 0 {
		b.WriteString("No product text was supplied.\n")
	}
	return Prompt{System: withInstructions(visionContract, instructions), User: b.String()}
}

func withInstructions(base, instructions string) string {
	instructions = strings.TrimSpace(instructions)
	if instructions == "" {
		return base
	}
	return base + "\n\n## HIGHEST PRIORITY INSTRUCTIONS\nThese override any rule above when they conflict:\n" + instructions
}

// Truncate cuts s to limit characters and appends a marker with the original length.
func Truncate(s string, limit int) string {
	n := utf8.RuneCountInString(s)
	if n <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + fmt.Sprintf("\n[CONTENT TRUNCATED: original length %d characters]", n)
}
