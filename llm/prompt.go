package llm

import (
	"fmt"
	"strings"
)

// ResponseKey is the single top-level key wrapping the product list.
const ResponseKey = "products"

// Field is one entry of the extraction schema stated in the prompt.
type Field struct {
	Name        string
	Description string
}

// ProductFields is the schema the extraction service is asked to fill.
var ProductFields = []Field{
	{"name", "Product name/title (required)"},
	{"price", "Current price (required, just the number, no currency symbol)"},
	{"original_price", "Original/list price if available (just the number, no currency symbol)"},
	{"discount_percentage", "Discount percentage shown on the listing, if any (just the number)"},
	{"description", "Brief product description if available"},
	{"rating", "Star rating if available (e.g., 4.5)"},
	{"reviews_count", "Number of reviews if available"},
	{"seller", "Store or seller name"},
	{"category", "Product category"},
	{"url", "Full URL to the product detail page"},
	{"image_url", "URL of product image"},
	{"availability", "Stock status info if available"},
	{"features", "List of key features or specifications"},
}

// PromptInput is everything BuildPrompt needs.
type PromptInput struct {
	Category  string
	SourceURL string
	Fragment  string
	MaxItems  int
}

const exampleResponse = `{
  "products": [
    {
      "name": "Product Name",
      "price": 29.99,
      "original_price": 39.99,
      "discount_percentage": 25,
      "description": "Brief description",
      "rating": 4.5,
      "reviews_count": 203,
      "seller": "Store Name",
      "category": "phones",
      "url": "https://example.com/product",
      "image_url": "https://example.com/image.jpg",
      "availability": "In Stock",
      "features": ["Feature 1", "Feature 2"]
    }
  ]
}`

// BuildPrompt renders the extraction instruction for one fragment.
func BuildPrompt(in PromptInput) string {
	var b strings.Builder

	b.WriteString("Extract product information from the following HTML snippets of e-commerce product listings.\n")
	fmt.Fprintf(&b, "The search was for products in the category: %s\n", in.Category)
	fmt.Fprintf(&b, "Page URL: %s\n\n", in.SourceURL)

	b.WriteString("For each product, extract the following fields:\n")
	for _, f := range ProductFields {
		fmt.Fprintf(&b, "- %s: %s\n", f.Name, f.Description)
	}

	b.WriteString("\nOnly include products that have BOTH a name and a price.\n")
	fmt.Fprintf(&b, "Return the result as a single JSON object with one key %q whose value is a list of product objects.\n", ResponseKey)
	b.WriteString("Do NOT wrap the JSON in markdown or code blocks. Ensure the JSON is valid and properly closed.\n")
	fmt.Fprintf(&b, "If there are many products, only include up to %d.\n\n", in.MaxItems)

	b.WriteString("Example format:\n")
	b.WriteString(exampleResponse)
	b.WriteString("\n\nHTML content:\n")
	b.WriteString(in.Fragment)
	b.WriteString("\n")

	return b.String()
}
