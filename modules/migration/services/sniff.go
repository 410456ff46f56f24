package services

import (
	"strings"
	"unicode"

	"github.com/iota-uz/legacy-migrator/modules/migration/domain"
	"github.com/iota-uz/legacy-migrator/pkg/constants"
)

// contentProfile summarizes a bounded sample of one column.
type contentProfile struct {
	nonEmpty int
	phone    int
	currency int
	email    int
	alpha    int
}

func profileColumn(values []string) contentProfile {
	var p contentProfile
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		p.nonEmpty++
		if looksLikePhone(v) {
			p.phone++
		}
		if _, err := parseAmount(v); err == nil {
			p.currency++
		}
		if looksLikeEmail(v) {
			p.email++
		}
		if looksAlphabetic(v) {
			p.alpha++
		}
	}
	return p
}

func (p contentProfile) share(n int) float64 {
	if p.nonEmpty == 0 {
		return 0
	}
	return float64(n) / float64(p.nonEmpty)
}

// score returns how well the sample matches the value kind, in [0,1].
func (p contentProfile) score(kind domain.ValueKind) float64 {
	switch kind {
	case domain.KindPhone:
		return p.share(p.phone)
	case domain.KindCurrency:
		// phone numbers parse as amounts too
		return p.share(max(p.currency-p.phone, 0))
	case domain.KindEmail:
		return p.share(p.email)
	case domain.KindText, domain.KindFreeForm:
		return p.share(p.alpha)
	default:
		return 0
	}
}

func looksLikePhone(v string) bool {
	digits := 0
	for _, r := range v {
		switch {
		case unicode.IsDigit(r):
			digits++
		case strings.ContainsRune("+()-. ", r):
		default:
			return false
		}
	}
	return digits >= 8 && digits <= 13
}

func looksLikeEmail(v string) bool {
	if strings.Count(v, "@") != 1 {
		return false
	}
	return constants.Validate.Var(v, "email") == nil
}

func looksAlphabetic(v string) bool {
	letters, total := 0, 0
	for _, r := range v {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if unicode.IsLetter(r) {
			letters++
		}
	}
	return letters > 0 && letters*2 >= total
}
