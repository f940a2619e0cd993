// Package flow implements the guided lead intake conversation: input
// formatting and validation, the step graph, the session state machine and
// the persistence orchestration around it.
package flow

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/brconnect/leadintake/internal/models"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Digit caps for progressive input masks.
const (
	MaxPhoneDigits = 11
	MaxTaxIDDigits = 14
	// maxCostDigits keeps the cents value inside int64 range.
	maxCostDigits = 15
)

// currencyPrinter renders monetary values with pt-BR separators.
var currencyPrinter = message.NewPrinter(language.BrazilianPortuguese)

// DigitsOnly strips every non-digit rune from s.
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Format maps raw input text to its display form for the given step.
// It is pure, total and idempotent: formatting already formatted text yields
// the same text, because every mask is a function of the digit content only.
func Format(step models.Step, raw string) string {
	switch step {
	case models.StepPhone:
		return formatPhone(raw)
	case models.StepTaxID:
		return formatTaxID(raw)
	case models.StepCurrentPlanCost:
		return formatCurrency(raw)
	default:
		return raw
	}
}

// IsValid reports whether text is an acceptable answer for the given step.
// Like Format it is pure and total.
func IsValid(step models.Step, text string) bool {
	switch step {
	case models.StepPhone:
		n := len(capDigits(text, MaxPhoneDigits))
		return n == 10 || n == 11
	case models.StepTaxID:
		return len(capDigits(text, MaxTaxIDDigits)) == MaxTaxIDDigits
	case models.StepCurrentPlanCost:
		return DigitsOnly(text) != ""
	default:
		return utf8.RuneCountInString(strings.TrimSpace(text)) >= 2
	}
}

// capDigits normalizes s to digits and truncates to at most max of them.
func capDigits(s string, max int) string {
	d := DigitsOnly(s)
	if len(d) > max {
		d = d[:max]
	}
	return d
}

// formatPhone builds a Brazilian phone mask: "(NN) NNNNN-NNNN". The area code
// parenthesis appears as soon as digits are typed and the hyphen is inserted
// before the last four digits once more than six digits are present.
func formatPhone(raw string) string {
	d := capDigits(raw, MaxPhoneDigits)
	switch {
	case d == "":
		return ""
	case len(d) <= 2:
		return "(" + d
	case len(d) <= 6:
		return "(" + d[:2] + ") " + d[2:]
	default:
		return "(" + d[:2] + ") " + d[2:len(d)-4] + "-" + d[len(d)-4:]
	}
}

// formatTaxID builds the CNPJ mask "NN.NNN.NNN/NNNN-NN" progressively.
func formatTaxID(raw string) string {
	d := capDigits(raw, MaxTaxIDDigits)
	var b strings.Builder
	for i, r := range d {
		switch i {
		case 2, 5:
			b.WriteByte('.')
		case 8:
			b.WriteByte('/')
		case 12:
			b.WriteByte('-')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// formatCurrency treats the digit content as integer cents and renders it as
// a pt-BR currency string, e.g. "123456" -> "R$ 1.234,56".
func formatCurrency(raw string) string {
	d := capDigits(raw, maxCostDigits)
	d = strings.TrimLeft(d, "0")
	if d == "" {
		if DigitsOnly(raw) == "" {
			return ""
		}
		d = "0"
	}
	cents, err := strconv.ParseInt(d, 10, 64)
	if err != nil {
		// Unreachable given the digit cap, but Format must stay total.
		return ""
	}
	return currencyPrinter.Sprintf("R$ %v", number.Decimal(float64(cents)/100, number.Scale(2)))
}

// CostDecimal converts raw cost input to a canonical decimal string with two
// fraction digits, e.g. "R$ 1.234,56" -> "1234.56". It is the storage form of
// the display value produced by formatCurrency.
func CostDecimal(raw string) string {
	d := capDigits(raw, maxCostDigits)
	d = strings.TrimLeft(d, "0")
	if d == "" {
		d = "0"
	}
	cents, err := strconv.ParseInt(d, 10, 64)
	if err != nil {
		return ""
	}
	return strconv.FormatInt(cents/100, 10) + "." + twoDigits(cents%100)
}

func twoDigits(n int64) string {
	if n < 10 {
		return "0" + strconv.FormatInt(n, 10)
	}
	return strconv.FormatInt(n, 10)
}
