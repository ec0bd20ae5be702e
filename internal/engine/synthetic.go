package engine

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
	"time"

	"github.com/atelic-ai/voceria/pkg/types"
)

// Synthetic responses cover turns whose completion was purely a tool call:
// instead of a second model round-trip, a canned Spanish phrase keyed by
// (tool, status) is filled from the result and spoken directly.

const (
	syntheticDone      = "Listo, está hecho. ¿Hay algo más en lo que pueda ayudarle?"
	syntheticError     = "Hubo un problema al procesar su solicitud. ¿Podemos intentar de nuevo?"
	syntheticProcessed = "He procesado su solicitud."
)

// maxPrettySlots bounds how many time options are read aloud in one breath.
const maxPrettySlots = 3

var syntheticTemplates = map[string]map[string][]string{
	"process_appointment_request": {
		"SLOT_LIST": {
			"Para el {pretty_date}, tengo disponible: {available_pretty}. ¿Alguna de estas horas le funciona?",
			"Le encontré espacio el {pretty_date} a las: {available_pretty}. ¿Le acomoda alguna?",
			"Tengo estos horarios para el {pretty_date}: {available_pretty}. ¿Le conviene alguno?",
		},
		"SLOT_FOUND_LATER": {
			"Busqué para el {requested_date_iso} y no había espacio. El siguiente disponible es el {suggested_date_iso}. ¿Le parece bien?",
			"No hay lugar el día solicitado. Tengo disponible el {suggested_date_iso} a las {available_pretty}. ¿Lo tomamos?",
			"No encontré espacio para entonces. El próximo hueco es el {suggested_date_iso}: {available_pretty}. ¿Está bien?",
		},
		"NO_SLOT": {
			"Lo siento, no encontré horarios disponibles en los próximos meses.",
			"Disculpe, no hay espacios libres para las fechas consultadas.",
			"La agenda está completa para esas fechas. ¿Probamos con otro período?",
		},
		"NO_MORE_LATE": {
			"No hay horarios más tarde ese día. ¿Quiere que busque en otro día?",
			"Ese fue el último horario del día. ¿Buscamos en otra fecha?",
		},
		"NO_MORE_EARLY": {
			"No hay horarios más temprano ese día. ¿Quiere que busque en otro día?",
			"Ese es el primer horario disponible del día. ¿Busco en otra fecha?",
		},
		"NEED_EXACT_DATE": {
			"¿Podría indicarme la fecha con mayor precisión?",
			"Para buscar disponibilidad necesito una fecha exacta. ¿Cuál prefiere?",
		},
		"OUT_OF_RANGE": {
			"Atendemos de nueve treinta a dos de la tarde. ¿Busco dentro de ese rango?",
			"Las consultas son de nueve y media de la mañana a dos de la tarde. ¿Le parece?",
		},
	},
	"create_calendar_event": {
		"success": {
			"Perfecto, su cita quedó agendada. ¿Le puedo ayudar con algo más?",
			"Listo, ya está registrada su cita. ¿Necesita algo más?",
			"Su cita ha sido creada exitosamente. ¿Puedo ayudarle con algo más?",
		},
		"error": {
			"Hubo un problema al crear la cita. Permítame intentar nuevamente.",
			"Disculpe, no se pudo crear la cita. Permítame otro momento.",
		},
		"validation_error": {
			"Disculpe, hubo un error con la fecha. Permítame corregirlo.",
			"No pude validar la información. Permítame intentar nuevamente.",
		},
	},
	"search_calendar_event_by_phone": {
		"found": {
			"Encontré su cita para el {pretty_date}. ¿Desea modificarla o cancelarla?",
			"Tiene una cita agendada el {pretty_date}. ¿Qué desea hacer?",
		},
		"not_found": {
			"No encontré citas con ese número. ¿Desea agendar una nueva?",
			"No hay citas registradas con ese teléfono. ¿Quiere hacer una?",
		},
		"multiple": {
			"Encontré varias citas con ese número. ¿Cuál necesita consultar?",
			"Hay más de una cita. ¿Me puede indicar la fecha?",
		},
	},
	"edit_calendar_event": {
		"success": {
			"Su cita ha sido modificada correctamente.",
			"Listo, cambié su cita como solicitó.",
		},
		"error": {
			"No pude modificar la cita. ¿Intentamos de nuevo?",
			"Hubo un error al cambiar la cita. ¿Reintentamos?",
		},
	},
	"delete_calendar_event": {
		"success": {
			"Su cita ha sido cancelada.",
			"Listo, cancelé su cita.",
		},
		"error": {
			"No pude cancelar la cita. ¿Intentamos de nuevo?",
			"Hubo un problema al cancelar. ¿Otro intento?",
		},
	},
	"registrar_lead": {
		"success": {
			"Listo, registré sus datos. Un especialista se pondrá en contacto muy pronto.",
			"Perfecto, sus datos quedaron registrados. ¿Le puedo ayudar con algo más?",
		},
		"error": {
			"No pude guardar sus datos. ¿Me los puede repetir por favor?",
		},
	},
	"get_cancun_weather": {
		"default": {
			"El clima en Cancún está {description}, con {temperature} grados.",
			"Actualmente en Cancún: {description}, temperatura de {temperature} grados.",
		},
	},
}

var slotPattern = regexp.MustCompile(`\{(\w+)\}`)

// pickTemplate is swapped in tests to make the random choice deterministic.
var pickTemplate = func(options []string) string {
	return options[rand.IntN(len(options))]
}

// SyntheticResponse builds the spoken reply for a tool-only turn.
func SyntheticResponse(toolName string, result types.ToolResult) string {
	byStatus, ok := syntheticTemplates[toolName]
	if !ok {
		if result.IsError() {
			return syntheticError
		}
		return syntheticDone
	}

	status := "default"
	if s, ok := result["status"].(string); ok && s != "" {
		status = s
	} else if result.IsError() {
		status = "error"
	}

	options := byStatus[status]
	if len(options) == 0 {
		options = byStatus["default"]
	}
	if len(options) == 0 {
		if result.IsError() {
			return syntheticError
		}
		return syntheticDone
	}

	tmpl := pickTemplate(options)
	return fillTemplate(tmpl, formatData(result))
}

// fillTemplate substitutes {slot} markers from data, leaving unknown slots
// in place so a mismatched template still reads as text.
func fillTemplate(tmpl string, data map[string]string) string {
	return slotPattern.ReplaceAllStringFunc(tmpl, func(m string) string {
		key := m[1 : len(m)-1]
		if v, ok := data[key]; ok {
			return v
		}
		return m
	})
}

// formatData flattens the result into template slot values: slot lists are
// capped and joined for speech, ISO dates become spoken Spanish dates.
func formatData(result types.ToolResult) map[string]string {
	data := make(map[string]string, len(result))
	for k, v := range result {
		data[k] = fmt.Sprint(v)
	}

	if slots, ok := result["available_pretty"].([]string); ok {
		data["available_pretty"] = joinSlots(slots)
	} else if raw, ok := result["available_pretty"].([]any); ok {
		slots := make([]string, 0, len(raw))
		for _, s := range raw {
			slots = append(slots, fmt.Sprint(s))
		}
		data["available_pretty"] = joinSlots(slots)
	}

	for _, key := range []string{"date_iso", "suggested_date_iso", "requested_date_iso"} {
		iso, ok := result[key].(string)
		if !ok {
			continue
		}
		if t, err := time.Parse("2006-01-02", iso[:min(len(iso), 10)]); err == nil {
			pretty := fmt.Sprintf("%s %d de %s",
				spanishDays[t.Weekday()], t.Day(), spanishMonths[t.Month()])
			data[key] = pretty
			if key == "date_iso" {
				data["pretty_date"] = pretty
			}
		}
	}
	if _, ok := data["pretty_date"]; !ok {
		if p, ok := result["pretty_date"].(string); ok {
			data["pretty_date"] = p
		}
	}
	return data
}

// joinSlots caps and joins the readable time options with "o".
func joinSlots(slots []string) string {
	if len(slots) > maxPrettySlots {
		slots = slots[:maxPrettySlots]
	}
	return strings.Join(slots, " o ")
}
