package providers

import "strings"

// elevenLabsStrategy meters character-billed speech synthesis. The response
// is an opaque audio payload, so recognition is by method path alone and the
// billable quantity is the input text length.
type elevenLabsStrategy struct{}

func (elevenLabsStrategy) Provider() string {
	return ProviderElevenLabs
}

func (elevenLabsStrategy) CanHandle(path []string, _ map[string]any) bool {
	for _, segment := range path {
		lowered := strings.ToLower(segment)
		if strings.Contains(lowered, "texttospeech") || strings.Contains(lowered, "speech") {
			return true
		}
	}
	return false
}

func (s elevenLabsStrategy) Extract(path []string, shape map[string]any, args []any) *Usage {
	if !s.CanHandle(path, shape) {
		return nil
	}

	// TextToSpeech calls take either (voiceID, request) or (request); the
	// text lives in whichever argument is the request struct.
	request := argShape(args, 1)
	if request == nil {
		request = argShape(args, 0)
	}
	text := stringField(request, "text")
	if text == "" {
		return nil
	}

	model := stringField(request, "model_id")
	if model == "" {
		model = DefaultModel(ProviderElevenLabs)
	}

	return &Usage{
		Provider:   ProviderElevenLabs,
		Model:      model,
		InputUnits: Float(float64(len(text))),
	}
}
