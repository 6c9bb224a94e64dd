package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// jsonInstruction is appended to every structured prompt.
const jsonInstruction = "\n\nRespond with valid JSON only, no other text."

// GenerateStructured asks p for a JSON object and decodes it into
// T. validate, when non-nil, checks the decoded value. Every
// failure is returned as a *ProviderError; the zero T accompanies
// it.
func GenerateStructured[T any](
	ctx context.Context, p Provider, req Request, validate func(*T) error,
) (T, error) {
	var zero T
	name := p.Name()

	req.Prompt += jsonInstruction
	resp, err := p.Generate(ctx, req)
	if err != nil {
		return zero, asProviderError(name, err)
	}
	if strings.TrimSpace(resp.Text) == "" {
		return zero, NewError(name, KindEmpty, 0, errors.New("empty response"))
	}

	raw := ExtractJSON(resp.Text)
	if raw == "" {
		return zero, NewError(name, KindParse, 0,
			fmt.Errorf("no JSON object in response: %q", preview(resp.Text)))
	}

	var out T
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return zero, NewError(name, KindParse, 0,
			fmt.Errorf("decode response: %w", err))
	}
	if validate != nil {
		if err := validate(&out); err != nil {
			return zero, NewError(name, KindShape, 0, err)
		}
	}
	return out, nil
}

func preview(s string) string {
	r := []rune(s)
	if len(r) > 200 {
		return string(r[:200]) + "..."
	}
	return s
}
