package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/use-agent/dealscout/models"
)

// DecodeResponse parses the service's text into raw items. The text may be
// wrapped in a code fence. Anything other than a JSON object carrying the
// ResponseKey list is reported as LLM_MALFORMED_RESPONSE.
//
// List entries that are not JSON objects come back as nil items so the
// validator can report them alongside every other rejection.
func DecodeResponse(text string) ([]models.RawItem, error) {
	body := StripCodeFence(text)
	if body == "" {
		return nil, models.NewScrapeError(models.ErrCodeLLMMalformed, "empty response", nil)
	}

	var envelope map[string]json.RawMessage
	if err := decodeNumbers(body, &envelope); err != nil {
		return nil, models.NewScrapeError(models.ErrCodeLLMMalformed, "response is not a JSON object", err)
	}

	raw, ok := envelope[ResponseKey]
	if !ok {
		return nil, models.NewScrapeError(models.ErrCodeLLMMalformed,
			fmt.Sprintf("response has no %q key", ResponseKey), nil)
	}

	var entries []any
	if err := decodeNumbers(string(raw), &entries); err != nil {
		return nil, models.NewScrapeError(models.ErrCodeLLMMalformed,
			fmt.Sprintf("%q is not a list", ResponseKey), err)
	}

	items := make([]models.RawItem, 0, len(entries))
	for _, e := range entries {
		obj, _ := e.(map[string]any)
		items = append(items, models.RawItem(obj))
	}
	return items, nil
}

// decodeNumbers unmarshals keeping numbers as json.Number, so the validator
// sees exactly what the service sent. s must hold exactly one JSON value.
func decodeNumbers(s string, v any) error {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("unexpected data after JSON value")
	}
	return nil
}
