package llm

import (
	"strings"
	"testing"
)

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt(PromptInput{
		Category:  "phones",
		SourceURL: "https://shop.example/catalog/?q=phones",
		Fragment:  `<article class="prd">Phone</article>`,
		MaxItems:  5,
	})

	wants := []string{
		"category: phones",
		"Page URL: https://shop.example/catalog/?q=phones",
		"BOTH a name and a price",
		`one key "products"`,
		"Do NOT wrap the JSON in markdown",
		"only include up to 5",
		`<article class="prd">Phone</article>`,
	}
	for _, w := range wants {
		if !strings.Contains(prompt, w) {
			t.Errorf("prompt missing %q", w)
		}
	}

	for _, f := range ProductFields {
		if !strings.Contains(prompt, "- "+f.Name+":") {
			t.Errorf("prompt missing field %q", f.Name)
		}
	}

	if !strings.HasSuffix(strings.TrimSpace(prompt), `<article class="prd">Phone</article>`) {
		t.Error("fragment should close the prompt")
	}
}
