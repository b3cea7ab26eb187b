package types

// VoiceParams selects the synthesized voice for a persona.
type VoiceParams struct {
	Voice string  `json:"voice"`
	Speed float64 `json:"speed"`
}

// Persona is a named tutor personality bundle.
type Persona struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Tone         string      `json:"tone"`
	Catchphrases []string    `json:"catchphrases"`
	Style        string      `json:"style"`
	Voice        VoiceParams `json:"voice"`
}
