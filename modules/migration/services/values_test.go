package services

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	cases := map[string]string{
		"12":         "12",
		"12.50":      "12.5",
		"12,50":      "12.5",
		"1.234,56":   "1234.56",
		"1,234.56":   "1234.56",
		"R$ 5,00":    "5",
		"1.000.000":  "1000000",
		"US$ 1,5":    "1.5",
		"7,000":      "7000",
		" € 3.10 ":   "3.1",
		"R$1.250,9":  "1250.9",
		"12345,6789": "123456789",
	}
	for in, want := range cases {
		t.Run(in, func(t *testing.T) {
			got, err := parseAmount(in)
			require.NoError(t, err)
			require.Equal(t, want, got.String())
		})
	}

	for _, bad := range []string{"", "abc", "-5", "R$", "12a"} {
		_, err := parseAmount(bad)
		require.ErrorIs(t, err, errNotAnAmount, bad)
	}
}

func TestParseMoney(t *testing.T) {
	m, err := parseMoney("R$ 5,50", "BRL")
	require.NoError(t, err)
	require.Equal(t, int64(550), m.Amount())
	require.Equal(t, "BRL", m.Currency().Code)

	_, err = parseMoney("5", "XXX-NOT-A-CURRENCY")
	require.Error(t, err)
}

func TestPhonePolicy_Normalize(t *testing.T) {
	br := PhonePolicy{CountryCode: "55", AreaCode: "85"}
	cases := map[string]string{
		"85999990000":       "5585999990000",
		"(85) 99999-0000":   "5585999990000",
		"085 99999-0000":    "5585999990000",
		"99999-0000":        "5585999990000",
		"3222-1111":         "558532221111",
		"+55 85 99999-0000": "5585999990000",
		"0055 85 3222 1111": "558532221111",
		"1234":              "",
		"0012":              "",
		"00 55 1234":        "",
		"":                  "",
	}
	for in, want := range cases {
		require.Equal(t, want, br.Normalize(in), in)
	}

	noArea := PhonePolicy{CountryCode: "55"}
	require.Equal(t, "999990000", noArea.Normalize("99999-0000"))
}

func TestNormalizeStreet(t *testing.T) {
	require.Equal(t, "avenida santos dumont", normalizeStreet("Av. Santos Dumont"))
	require.Equal(t, "rua jose bonifacio", normalizeStreet("R. José Bonifácio"))
	require.Equal(t, normalizeStreet("Rua das Flores"), normalizeStreet("R. das flores"))
}
