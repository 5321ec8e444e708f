package prompts

import "strconv"

// Lora is a model-weight annotation found in a raw prompt.
type Lora struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
}

// ExtractLoras returns the annotations of prompt in order of appearance.
// Weights that do not parse as a number (e.g. "1.2.3") are skipped.
func ExtractLoras(prompt string) []Lora {
	var loras []Lora
	for _, match := range loraPattern.FindAllStringSubmatch(prompt, -1) {
		weight, err := strconv.ParseFloat(match[2], 64)
		if err != nil {
			continue
		}
		loras = append(loras, Lora{Name: match[1], Weight: weight})
	}
	return loras
}
