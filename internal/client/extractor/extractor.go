// Package extractor classifies conversational agent text as an appointment
// confirmation and extracts appointment fields from it. Parsing is pure:
// no I/O, and the clock is injected.
package extractor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/iudanet/clinicsync/internal/models"
)

const dateLayout = "2006-01-02"

var (
	isoDate   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	localDate = regexp.MustCompile(`^(\d{1,2})[/.\-](\d{1,2})[/.\-](\d{4})$`)
)

// Extractor applies the phrase list and the rule table
type Extractor struct {
	now         func() time.Time
	phrases     []string
	rules       []Rule
	strictDates bool
}

// Option configures Extractor
type Option func(*Extractor)

// WithRules replaces the rule table
func WithRules(rules []Rule) Option {
	return func(e *Extractor) { e.rules = rules }
}

// WithPhrases replaces the confirmation phrase list
func WithPhrases(phrases []string) Option {
	return func(e *Extractor) { e.phrases = phrases }
}

// WithClock overrides the time source used for the date fallback
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) { e.now = now }
}

// WithStrictDates leaves an unparseable date empty instead of substituting
// the current date. The raw text is kept in RawDate.
func WithStrictDates() Option {
	return func(e *Extractor) { e.strictDates = true }
}

// New creates an extractor with the default phrases and rules
func New(opts ...Option) *Extractor {
	e := &Extractor{
		now:     time.Now,
		phrases: DefaultPhrases,
		rules:   defaultRules,
	}
	for _, opt := range opts {
		opt(e)
	}

	lowered := make([]string, len(e.phrases))
	for i, p := range e.phrases {
		lowered[i] = strings.ToLower(p)
	}
	e.phrases = lowered
	return e
}

var defaultExtractor = New()

// Parse uses the default extractor
func Parse(text, knownPhone string) models.ParsedAppointment {
	return defaultExtractor.Parse(text, knownPhone)
}

// IsAppointment reports whether text contains a confirmation phrase
func (e *Extractor) IsAppointment(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range e.phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Parse extracts an appointment candidate from text.
// knownPhone is used when the text carries no phone number.
// Missing fields stay empty; Parse never validates.
func (e *Extractor) Parse(text, knownPhone string) models.ParsedAppointment {
	if !e.IsAppointment(text) {
		return models.ParsedAppointment{}
	}

	fields := make(map[Field]string, 6)
	for _, rule := range e.rules {
		if _, done := fields[rule.Field]; done {
			continue
		}
		if v := rule.Apply(text); v != "" {
			fields[rule.Field] = v
		}
	}

	result := models.ParsedAppointment{
		IsAppointment: true,
		Name:          fields[FieldName],
		Phone:         fields[FieldPhone],
		Service:       fields[FieldService],
		Clinic:        fields[FieldClinic],
		Time:          fields[FieldTime],
	}
	if result.Phone == "" {
		result.Phone = knownPhone
	}
	if raw, ok := fields[FieldDate]; ok {
		result.Date, result.RawDate = e.normalizeDate(raw)
	}

	return result
}

// normalizeDate returns the canonical date and, when raw could not be
// converted, the raw text
func (e *Extractor) normalizeDate(raw string) (date, rawDate string) {
	if isoDate.MatchString(raw) {
		return raw, ""
	}

	if m := localDate.FindStringSubmatch(raw); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		converted := fmt.Sprintf("%s-%02d-%02d", m[3], month, day)
		if !e.strictDates {
			return converted, ""
		}
		if _, err := time.Parse(dateLayout, converted); err == nil {
			return converted, ""
		}
		return "", raw
	}

	if e.strictDates {
		return "", raw
	}
	// Неразобранная дата заменяется текущей; исходный текст сохраняется
	return e.now().Format(dateLayout), raw
}
