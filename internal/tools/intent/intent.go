// Package intent canonicalises the free-form intention strings the model
// passes to the detect_intent tool. Model output is noisy ("agendar una
// sita", "kiero informes"), so matching combines Double Metaphone phonetic
// codes with Jaro-Winkler similarity: an alias that shares a phonetic code
// with the input is accepted at a lower similarity threshold than a purely
// fuzzy match.
package intent

import (
	"context"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/atelic-ai/voceria/pkg/types"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option configures a Detector.
type Option func(*Detector)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for an alias that
// already matched phonetically. Default 0.70.
func WithPhoneticThreshold(v float64) Option {
	return func(d *Detector) { d.phoneticThreshold = v }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score when no phonetic
// overlap exists. Default 0.85.
func WithFuzzyThreshold(v float64) Option {
	return func(d *Detector) { d.fuzzyThreshold = v }
}

// Detector maps noisy intention strings onto conversation modes. Read-only
// after construction, safe for concurrent use.
type Detector struct {
	aliases map[types.ConversationMode][]string

	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New builds a Detector over the default alias table.
func New(opts ...Option) *Detector {
	d := &Detector{
		aliases: map[types.ConversationMode][]string{
			types.ModeCaptureLead: {"informes", "información", "ventas", "contacto", "cotización", "precio"},
			types.ModeCreateAppt:  {"agendar cita", "hacer cita", "nueva cita", "reservar", "agendar"},
			types.ModeEditAppt:    {"cambiar cita", "mover cita", "modificar cita", "reagendar"},
			types.ModeDeleteAppt:  {"cancelar cita", "eliminar cita", "borrar cita", "cancelar"},
		},
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect returns the best-matching mode for the given intention text.
// When nothing clears the thresholds, matched is false and mode is ModeNone.
func (d *Detector) Detect(intention string) (mode types.ConversationMode, confidence float64, matched bool) {
	input := strings.ToLower(strings.TrimSpace(intention))
	if input == "" {
		return types.ModeNone, 0, false
	}

	// The model sometimes passes the mode name itself.
	if m := types.ConversationMode(input); m.IsValid() && m != types.ModeNone {
		return m, 1, true
	}

	inputTokens := strings.Fields(input)
	inputCodes := phoneticCodes(inputTokens)

	type candidate struct {
		mode     types.ConversationMode
		score    float64
		phonetic bool
	}
	var best candidate

	for m, aliases := range d.aliases {
		for _, alias := range aliases {
			aliasTokens := strings.Fields(alias)
			phonetic := codesOverlap(inputCodes, phoneticCodes(aliasTokens))
			score := bestSimilarity(inputTokens, aliasTokens, input, alias)

			if phonetic {
				if score >= d.phoneticThreshold && (!best.phonetic || score > best.score) {
					best = candidate{mode: m, score: score, phonetic: true}
				}
			} else if !best.phonetic && score >= d.fuzzyThreshold && score > best.score {
				best = candidate{mode: m, score: score}
			}
		}
	}

	if best.mode == types.ModeNone {
		return types.ModeNone, 0, false
	}
	return best.mode, best.score, true
}

// Definition describes the detect_intent tool.
func (d *Detector) Definition() types.ToolDefinition {
	return types.ToolDefinition{
		Name:        "detect_intent",
		Description: "Detectar la intención general del usuario (pregunta informativa, solicitud de cita, etc.).",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"intention": map[string]any{
					"type":        "string",
					"description": "La intención detectada en palabras del usuario.",
				},
			},
			"required": []any{"intention"},
		},
	}
}

// Handle executes a detect_intent call. The canonical mode is reported under
// intent_detected; unmatched intentions come back verbatim so the model can
// still reason about them.
func (d *Detector) Handle(_ context.Context, args map[string]any) types.ToolResult {
	intention, _ := args["intention"].(string)
	mode, confidence, matched := d.Detect(intention)
	if !matched {
		return types.ToolResult{"intent_detected": intention}
	}
	return types.ToolResult{
		"intent_detected": string(mode),
		"confidence":      confidence,
	}
}

func phoneticCodes(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestSimilarity takes the highest Jaro-Winkler score across full strings,
// space-stripped strings and aligned tokens. Token alignment averages each
// alias token's best input-token score, so one shared word ("cita") cannot
// carry a multi-word alias by itself.
func bestSimilarity(inputTokens, aliasTokens []string, inputFull, aliasFull string) float64 {
	score := matchr.JaroWinkler(inputFull, aliasFull, false)

	if len(inputTokens) > 1 || len(aliasTokens) > 1 {
		concat1 := strings.Join(inputTokens, "")
		concat2 := strings.Join(aliasTokens, "")
		if s := matchr.JaroWinkler(concat1, concat2, false); s > score {
			score = s
		}
	}

	var sum float64
	for _, at := range aliasTokens {
		var bestTok float64
		for _, it := range inputTokens {
			if s := matchr.JaroWinkler(it, at, false); s > bestTok {
				bestTok = s
			}
		}
		sum += bestTok
	}
	if avg := sum / float64(len(aliasTokens)); avg > score {
		score = avg
	}
	return score
}
