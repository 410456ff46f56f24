package services

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/legacy-migrator/modules/migration/domain"
)

const (
	clientesCSV  = "Nome,Telefone,Bairro\nMaria Silva,85999990000,Centro\n"
	enderecosCSV = "Rua,Numero,Bairro\n"
)

func mustParse(t *testing.T, name, content string) domain.RawTable {
	t.Helper()
	table, err := ParseTable(name, []byte(content), ParseOptions{})
	require.NoError(t, err)
	return table
}

func scenarioFiles() []domain.SourceFile {
	return []domain.SourceFile{
		{Name: "clientes.csv", Content: []byte(clientesCSV)},
		{Name: "enderecos.csv", Content: []byte(enderecosCSV)},
	}
}
