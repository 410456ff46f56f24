package services

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/legacy-migrator/modules/migration/domain"
)

func TestParseTable_Basic(t *testing.T) {
	table, err := ParseTable("clientes.csv", []byte("Nome,Telefone,Bairro\nMaria Silva, 85999990000 ,Centro\n"), ParseOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"Nome", "Telefone", "Bairro"}, table.Headers())
	require.Equal(t, "utf-8", table.Encoding())
	require.Equal(t, 1, table.RowCount())

	row := table.Rows()[0]
	require.Equal(t, 0, row.Index)
	require.Equal(t, 2, row.Line)
	v, ok := row.Get("Telefone")
	require.True(t, ok)
	require.Equal(t, "85999990000", v)
}

func TestParseTable_SemicolonAndBOM(t *testing.T) {
	content := append([]byte{0xEF, 0xBB, 0xBF}, []byte("Nome;Taxa\nAna;5,00\n")...)
	table, err := ParseTable("taxas.csv", content, ParseOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"Nome", "Taxa"}, table.Headers())
	v, _ := table.Rows()[0].Get("Taxa")
	require.Equal(t, "5,00", v)
}

func TestParseTable_Windows1252(t *testing.T) {
	table, err := ParseTable("legacy.csv", []byte("Nome,Bairro\nJos\xe9,Cear\xe1\n"), ParseOptions{})
	require.NoError(t, err)
	require.Equal(t, "windows-1252", table.Encoding())
	v, _ := table.Rows()[0].Get("Nome")
	require.Equal(t, "José", v)
}

func TestParseTable_RejectsMismatchedRows(t *testing.T) {
	content := "Nome,Telefone\nAna,8599\nBruno\nCarla,8598\n"
	table, err := ParseTable("clientes.csv", []byte(content), ParseOptions{})
	require.NoError(t, err)
	require.Equal(t, 2, table.RowCount())
	require.Len(t, table.Rejected(), 1)

	rej := table.Rejected()[0]
	require.Equal(t, 1, rej.Index)
	require.Equal(t, 3, rej.Line)
	require.Contains(t, rej.Reason, "expected 2 fields")

	require.Equal(t, 2, table.Rows()[1].Index)
}

func TestParseTable_MalformedInput(t *testing.T) {
	cases := map[string][]byte{
		"empty":            []byte("   \n"),
		"duplicate header": []byte("Nome,Nome\nA,B\n"),
		"blank header":     []byte("Nome,,Telefone\nA,B,C\n"),
		"binary":           {0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x00, 0x00, 0x0D},
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseTable("bad.csv", content, ParseOptions{})
			require.Error(t, err)
			require.True(t, errors.Is(err, domain.ErrMalformedInput))
			var mie *domain.MalformedInputError
			require.ErrorAs(t, err, &mie)
			require.Equal(t, "bad.csv", mie.File)
		})
	}
}

func TestParseTable_ExplicitComma(t *testing.T) {
	table, err := ParseTable("tabs.tsv", []byte("Nome\tTelefone\nAna\t8599\n"), ParseOptions{Comma: '\t'})
	require.NoError(t, err)
	require.Equal(t, []string{"Nome", "Telefone"}, table.Headers())
}
