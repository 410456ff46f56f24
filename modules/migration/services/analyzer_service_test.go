package services

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/legacy-migrator/modules/migration/domain"
)

func TestAnalyzer_SuggestsScenarioMapping(t *testing.T) {
	svc := NewAnalyzerService(DefaultAnalyzerOptions())
	result, tables, err := svc.AnalyzeFiles(context.Background(), scenarioFiles())
	require.NoError(t, err)
	require.Len(t, tables, 2)
	require.Empty(t, result.FileErrors)

	expect := []struct {
		file, header, field string
		valueMapped         bool
	}{
		{"clientes.csv", "Nome", domain.FieldCustomerName, false},
		{"clientes.csv", "Telefone", domain.FieldCustomerPhone, false},
		{"clientes.csv", "Bairro", domain.FieldAddressNeighborhood, true},
		{"enderecos.csv", "Rua", domain.FieldAddressStreet, false},
		{"enderecos.csv", "Bairro", domain.FieldAddressNeighborhood, true},
	}
	for _, e := range expect {
		sug, ok := result.Suggestion(e.file, e.header)
		require.True(t, ok, "%s/%s", e.file, e.header)
		require.Equal(t, e.field, sug.Field, "%s/%s", e.file, e.header)
		require.Equal(t, e.valueMapped, sug.RequiresValueMapping)
		require.GreaterOrEqual(t, sug.Confidence, 0.5)
		require.LessOrEqual(t, sug.Confidence, 1.0)
	}

	sample, ok := result.ValueSample(domain.FieldAddressNeighborhood)
	require.True(t, ok)
	require.Equal(t, []string{"Centro"}, sample.Values)
	require.Len(t, sample.Columns, 2)
	require.False(t, sample.Truncated)
}

func TestAnalyzer_Deterministic(t *testing.T) {
	svc := NewAnalyzerService(AnalyzerOptions{Workers: 4})
	files := append(scenarioFiles(), domain.SourceFile{
		Name:    "taxas.csv",
		Content: []byte("Bairro,Taxa de entrega\nCentro,\"5,00\"\nAldeota,\"7,50\"\n"),
	})

	first, _, err := svc.AnalyzeFiles(context.Background(), files)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, _, err := svc.AnalyzeFiles(context.Background(), files)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}

	sug, ok := first.Suggestion("taxas.csv", "Taxa de entrega")
	require.True(t, ok)
	require.Equal(t, domain.FieldDeliveryFeePrice, sug.Field)
}

func TestAnalyzer_SingleValuedFieldClaimedOnce(t *testing.T) {
	svc := NewAnalyzerService(DefaultAnalyzerOptions())
	table := mustParse(t, "dup.csv", "Telefone,Celular\n85999990000,85988880000\n")
	result, err := svc.Analyze(context.Background(), []domain.RawTable{table})
	require.NoError(t, err)

	// equal scores fall back to header order
	winner, _ := result.Suggestion("dup.csv", "Celular")
	loser, _ := result.Suggestion("dup.csv", "Telefone")
	require.Equal(t, domain.FieldCustomerPhone, winner.Field)
	require.Empty(t, loser.Field)
	require.NotEmpty(t, loser.Candidates)
}

func TestAnalyzer_UnknownHeaderHasNoSuggestion(t *testing.T) {
	svc := NewAnalyzerService(DefaultAnalyzerOptions())
	table := mustParse(t, "misc.csv", "Xyzzy\nfoo\n")
	result, err := svc.Analyze(context.Background(), []domain.RawTable{table})
	require.NoError(t, err)
	sug, ok := result.Suggestion("misc.csv", "Xyzzy")
	require.True(t, ok)
	require.Empty(t, sug.Field)
	require.Zero(t, sug.Confidence)
}

func TestAnalyzer_ValueSamplesTruncate(t *testing.T) {
	var b strings.Builder
	b.WriteString("Bairro\n")
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&b, "Bairro %d\n", i)
	}
	svc := NewAnalyzerService(AnalyzerOptions{MaxDistinctValues: 3})
	table := mustParse(t, "bairros.csv", b.String())
	result, err := svc.Analyze(context.Background(), []domain.RawTable{table})
	require.NoError(t, err)

	sample, ok := result.ValueSample(domain.FieldAddressNeighborhood)
	require.True(t, ok)
	require.Equal(t, []string{"Bairro 0", "Bairro 1", "Bairro 2"}, sample.Values)
	require.True(t, sample.Truncated)
}

func TestAnalyzer_FileErrorsDoNotAbort(t *testing.T) {
	svc := NewAnalyzerService(DefaultAnalyzerOptions())
	files := append(scenarioFiles(),
		domain.SourceFile{Name: "empty.csv", Content: nil},
		domain.SourceFile{Name: "clientes.csv", Content: []byte(clientesCSV)},
	)
	result, tables, err := svc.AnalyzeFiles(context.Background(), files)
	require.NoError(t, err)
	require.Len(t, tables, 2)
	require.Len(t, result.FileErrors, 2)
	require.Equal(t, "empty.csv", result.FileErrors[0].File)
	require.Equal(t, domain.ErrMalformedInput.Code, result.FileErrors[0].Code)
	require.Contains(t, result.FileErrors[1].Message, "duplicate file name")
}

func TestHeaderScore(t *testing.T) {
	syn := normalizedSynonyms[domain.FieldCustomerPhone]
	require.Equal(t, 1.0, headerScore(tokenize("Telefone"), syn))
	require.Equal(t, 1.0, headerScore(tokenize("TELEFONE "), syn))
	require.Equal(t, fuzzyScore, headerScore(tokenize("Telefoen"), syn))
	require.Zero(t, headerScore(tokenize("Bairro"), syn))
}
