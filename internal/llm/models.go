package llm

import "fmt"

// DefaultModel replaces deprecated or empty model ids.
const DefaultModel = "gpt-4o"

var deprecatedModels = map[string]bool{
	"gpt-4-vision-preview": true,
	"gpt-4-32k":            true,
	"gpt-3.5-turbo-0301":   true,
	"gpt-4-0314":           true,
	"text-davinci-003":     true,
}

// Price is USD per million tokens.
type Price struct {
	Input  float64
	Output float64
}

var prices = map[string]Price{
	"gpt-4o":        {Input: 2.50, Output: 10.00},
	"gpt-4o-mini":   {Input: 0.15, Output: 0.60},
	"gpt-4-turbo":   {Input: 10.00, Output: 30.00},
	"gpt-4":         {Input: 30.00, Output: 60.00},
	"gpt-3.5-turbo": {Input: 0.50, Output: 1.50},
}

// ResolveModel substitutes DefaultModel for deprecated or empty ids. The
// returned warning is empty when the model was kept.
func ResolveModel(model string) (string, string) {
	switch {
	case model == "":
		return DefaultModel, ""
	case deprecatedModels[model]:
		return DefaultModel, fmt.Sprintf("model %q is deprecated, used %s instead", model, DefaultModel)
	default:
		return model, ""
	}
}

// PriceFor returns the price of model, falling back to the DefaultModel tier.
func PriceFor(model string) Price {
	if p, ok := prices[model]; ok {
		return p
	}
	return prices[DefaultModel]
}

// Cost estimates the USD cost of one call.
func Cost(model string, promptTokens, completionTokens int) float64 {
	p := PriceFor(model)
	return (float64(promptTokens)*p.Input + float64(completionTokens)*p.Output) / 1_000_000
}
