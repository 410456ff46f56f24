package services

import (
	"errors"
	"strings"
	"unicode"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

var errNotAnAmount = errors.New("not a monetary amount")

var currencySymbols = []string{"R$", "US$", "BRL", "USD", "EUR", "$", "€"}

// parseAmount accepts "12", "12.50", "12,50", "1.234,56", "1,234.56" and
// currency prefixed forms such as "R$ 5,00". Negative amounts are rejected.
func parseAmount(v string) (decimal.Decimal, error) {
	s := strings.TrimSpace(v)
	for _, sym := range currencySymbols {
		s = strings.TrimPrefix(s, sym)
		s = strings.TrimSuffix(s, sym)
	}
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	if s == "" {
		return decimal.Zero, errNotAnAmount
	}
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '.' && r != ',' {
			return decimal.Zero, errNotAnAmount
		}
	}

	lastComma, lastDot := strings.LastIndexByte(s, ','), strings.LastIndexByte(s, '.')
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") == 1 && len(s)-lastComma-1 <= 2 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastDot >= 0 && strings.Count(s, ".") > 1:
		s = strings.ReplaceAll(s, ".", "")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errNotAnAmount
	}
	return d, nil
}

// parseMoney converts an amount to minor units of currency.
func parseMoney(v, currency string) (*money.Money, error) {
	d, err := parseAmount(v)
	if err != nil {
		return nil, err
	}
	cur := money.GetCurrency(currency)
	if cur == nil {
		return nil, errors.New("unknown currency " + currency)
	}
	minor := d.Shift(int32(cur.Fraction)).Round(0).IntPart()
	return money.New(minor, cur.Code), nil
}

// PhonePolicy normalizes phone numbers to digits with country and area code.
type PhonePolicy struct {
	CountryCode string
	AreaCode    string
}

// Normalize returns "" when v does not hold enough digits to be a phone number.
func (p PhonePolicy) Normalize(v string) string {
	var b strings.Builder
	for _, r := range v {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	international := strings.HasPrefix(digits, "00")
	digits = strings.TrimLeft(digits, "0")
	if len(digits) < 8 {
		return ""
	}
	if international {
		// country code follows the dialing prefix
		return digits
	}

	switch {
	case len(digits) <= 9:
		if p.AreaCode == "" {
			return digits
		}
		return p.CountryCode + p.AreaCode + digits
	case len(digits) <= 11:
		return p.CountryCode + digits
	default:
		return digits
	}
}

var streetAbbreviations = map[string]string{
	"r":    "rua",
	"av":   "avenida",
	"trav": "travessa",
	"tv":   "travessa",
	"al":   "alameda",
	"pca":  "praca",
	"rod":  "rodovia",
	"st":   "street",
	"ave":  "avenue",
}

// normalizeStreet folds case, diacritics, punctuation and common abbreviations.
func normalizeStreet(v string) string {
	tokens := tokenize(v)
	for i, t := range tokens {
		if full, ok := streetAbbreviations[t]; ok {
			tokens[i] = full
		}
	}
	return strings.Join(tokens, " ")
}

func normalizeKey(v string) string {
	return strings.Join(tokenize(v), " ")
}
