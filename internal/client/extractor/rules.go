package extractor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Field names a ParsedAppointment field filled by rules
type Field string

// Extracted fields
const (
	FieldName    Field = "name"
	FieldPhone   Field = "phone"
	FieldService Field = "service"
	FieldClinic  Field = "clinic"
	FieldDate    Field = "date"
	FieldTime    Field = "time"
)

// Rule extracts one field. Transform receives the submatches of Pattern and
// returns the field value; an empty result means the rule did not match.
type Rule struct {
	Pattern   *regexp.Regexp
	Transform func(match []string) string
	Field     Field
}

// Apply runs the rule against text
func (r Rule) Apply(text string) string {
	m := r.Pattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	if r.Transform == nil {
		return firstGroup(m)
	}
	return r.Transform(m)
}

// DefaultPhrases are Portuguese confirmation phrases, matched case-insensitively
var DefaultPhrases = []string{
	"agendamento confirmado",
	"agendamento realizado",
	"consulta confirmada",
	"consulta agendada",
	"consulta marcada",
	"horário confirmado",
	"horario confirmado",
	"agendado com sucesso",
	"agendada com sucesso",
	"confirmamos seu agendamento",
	"confirmamos sua consulta",
}

// Ordered rule table. The first rule per field that yields a value wins.
var defaultRules = []Rule{
	{Field: FieldName, Pattern: regexp.MustCompile(`(?i)\bnome(?:\s+do\s+paciente)?\s*[:\-]\s*([^\n.,;]+)`)},
	{Field: FieldName, Pattern: regexp.MustCompile(`(?i)\bpaciente\s*[:\-]\s*([^\n.,;]+)`)},

	{Field: FieldPhone, Pattern: regexp.MustCompile(`(?i)\b(?:telefone|tel|celular|whatsapp|contato)\s*[:\-]?\s*(\+?[\d\s().\-]{8,})`), Transform: normalizePhone},
	{Field: FieldPhone, Pattern: regexp.MustCompile(`(\+\d{2}\s?\(?\d{2}\)?\s?\d{4,5}[\s\-]?\d{4})`), Transform: normalizePhone},

	{Field: FieldService, Pattern: regexp.MustCompile(`(?i)\b(?:servi[çc]o|procedimento|especialidade)\s*[:\-]\s*([^\n.,;]+)`)},
	{Field: FieldService, Pattern: regexp.MustCompile(`(?i)\bconsulta\s+(?:de|com)\s+([\p{L}\s]+?)(?:\s+(?:na|no|em|para|às|as|dia)\s|[.,;\n]|$)`)},

	{Field: FieldClinic, Pattern: regexp.MustCompile(`(?i)\b(?:cl[íi]nica|unidade|local)\s*[:\-]\s*([^\n.,;]+)`)},
	{Field: FieldClinic, Pattern: regexp.MustCompile(`(?i)\b(?:na|no)\s+((?:cl[íi]nica|consult[óo]rio)\s+[\p{L}\s]+?)(?:\s+(?:para|às|as|no|em|dia)\s|[.,;\n]|$)`)},

	{Field: FieldDate, Pattern: regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)},
	{Field: FieldDate, Pattern: regexp.MustCompile(`\b(\d{1,2}[/.\-]\d{1,2}[/.\-]\d{4})\b`)},
	{Field: FieldDate, Pattern: regexp.MustCompile(`(?i)\b(?:data|dia)\b\s*[:\-]?\s*([^\n,;]+?)(?:\s+(?:às|as)\s|[,;\n]|$)`)},

	// Предлог должен стоять отдельным словом: "vagas 10h" не время приема
	{Field: FieldTime, Pattern: regexp.MustCompile(`(?i)(?:^|[^\p{L}])(?:às|as|hor[áa]rio\s*[:\-]?)\s*(\d{1,2})\s*[:h]\s*(\d{2})?`), Transform: normalizeTime},
	{Field: FieldTime, Pattern: regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`), Transform: normalizeTime},
	{Field: FieldTime, Pattern: regexp.MustCompile(`\b(\d{1,2})h(\d{2})?\b`), Transform: normalizeTime},
}

// DefaultRules returns a copy of the built-in rule table
func DefaultRules() []Rule {
	return append([]Rule(nil), defaultRules...)
}

func firstGroup(m []string) string {
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// normalizePhone оставляет ведущий + и цифры
func normalizePhone(m []string) string {
	raw := firstGroup(m)
	var b strings.Builder
	for i, r := range raw {
		switch {
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		}
	}
	phone := b.String()
	if len(strings.TrimPrefix(phone, "+")) < 8 {
		return ""
	}
	return phone
}

// normalizeTime приводит час и минуты к HH:MM
func normalizeTime(m []string) string {
	if len(m) < 2 {
		return ""
	}
	hour, err := strconv.Atoi(m[1])
	if err != nil || hour > 23 {
		return ""
	}
	minute := 0
	if len(m) > 2 && m[2] != "" {
		minute, err = strconv.Atoi(m[2])
		if err != nil || minute > 59 {
			return ""
		}
	}
	return fmt.Sprintf("%02d:%02d", hour, minute)
}
