package refine

import (
	"fmt"
	"strings"

	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/domain"
)

// Input carries the original entry text into the cascade.
type Input struct {
	FeedName string
	Title    string
	Summary  string
	Content  string
}

const exampleJSON = `{
  "title": "وزیر آفریقای جنوبی اتهامات بی‌اساس را رد کرد",
  "summary": "وزیر پلیس ادعاهای نادرست را تکذیب کرد.",
  "full_explanation": "وزیر پلیس آفریقای جنوبی اظهارات مطرح شده درباره وقایع اخیر را نادرست خواند و اطلاعات دقیقی ارائه کرد... (1500–2000 characters)",
  "category": "جهان",
  "tags": ["آفریقای جنوبی", "سیاست", "خبر بین‌المللی", "وزیر پلیس"]
}`

// BuildPrompt renders the instruction shared by every provider.
func BuildPrompt(in Input) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are processing a news article from %s. ", in.FeedName)
	b.WriteString("Using the title, summary and scraped content below, do the following: ")
	fmt.Fprintf(&b, "1. Translate the title to Persian if it is in another language, or rewrite it if it is already Persian, as a concise and accurate title (max %d characters). ", domain.TitleMax)
	fmt.Fprintf(&b, "2. Translate or rewrite the summary the same way as a concise Persian summary (max %d characters). ", domain.SummaryMax)
	b.WriteString("3. Condense the scraped content into a complete, coherent Persian explanation relevant to the title and summary. ")
	b.WriteString("   - When translating a person or place name, keep the original name in parentheses, e.g., رئیس جمهور ترامپ (`Trump`). ")
	b.WriteString("   - The explanation must be 1500–2000 characters long unless the content is insufficient, in which case use all relevant content. ")
	b.WriteString("   - End the explanation naturally, never mid-sentence, and keep every critical detail. ")
	b.WriteString("   - Drop irrelevant parts such as advertisements and navigation menus. ")
	fmt.Fprintf(&b, "4. Assign one Persian category from this list: %s, based on the content. ", strings.Join(domain.Categories, ", "))
	fmt.Fprintf(&b, "5. Generate %d-%d relevant Persian tags (e.g., 'هسته‌ای', 'اقتصاد جهانی'). ", domain.TagsMin, domain.TagsMax)
	b.WriteString("Return a valid JSON object with keys: title (string), summary (string), full_explanation (string), category (string), tags (array of strings). ")
	b.WriteString("The response must be plain JSON enclosed in {}, without markdown code blocks (e.g., ```json). ")
	b.WriteString("Example JSON format:\n")
	b.WriteString(exampleJSON)
	fmt.Fprintf(&b, "\n\nOriginal Title: %s\n", in.Title)
	fmt.Fprintf(&b, "Original Summary: %s\n", in.Summary)
	fmt.Fprintf(&b, "Scraped Content: %s\n\n", in.Content)
	b.WriteString("Output only the JSON object, no additional text or markdown.")

	return b.String()
}
