package translate

import (
	"errors"
	"unicode"
)

// Language is an ISO 639-1 code as the translation endpoint expects it.
type Language string

const (
	English Language = "en"
	Russian Language = "ru"
)

func (l Language) String() string { return string(l) }

// ErrUnknownLanguage is returned when text has no letters the detector
// recognises.
var ErrUnknownLanguage = errors.New("translate: unable to recognise language")

// Detector guesses the language of a text from its script. Cyrillic
// letters vote for Russian, Latin letters for English.
type Detector struct{}

// NewDetector returns a Detector.
func NewDetector() *Detector { return &Detector{} }

// Detect returns the language with the most letters in text. Ties go to
// Russian since any Cyrillic letter rules English out of the source text.
func (d *Detector) Detect(text string) (Language, error) {
	var cyrillic, latin int
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Cyrillic, r):
			cyrillic++
		case unicode.Is(unicode.Latin, r):
			latin++
		}
	}
	switch {
	case cyrillic == 0 && latin == 0:
		return "", ErrUnknownLanguage
	case cyrillic >= latin:
		return Russian, nil
	default:
		return English, nil
	}
}

// Direction picks the pair for translating text written in detected:
// text not already in target goes to target, otherwise to alternative.
func Direction(detected, target, alternative Language) (from, to Language) {
	if detected != target {
		return detected, target
	}
	return detected, alternative
}
