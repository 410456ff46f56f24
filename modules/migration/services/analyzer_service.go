package services

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/iota-uz/legacy-migrator/modules/migration/domain"
	"github.com/iota-uz/legacy-migrator/pkg/composables"
	"github.com/iota-uz/legacy-migrator/pkg/serrors"
)

const (
	headerWeight  = 0.7
	contentWeight = 0.3
	fuzzyScore    = 0.75
	fuzzyMaxEdits = 2
	fuzzyMinLen   = 5
)

var tracer = otel.Tracer("github.com/iota-uz/legacy-migrator/modules/migration/services")

type AnalyzerOptions struct {
	SampleSize        int
	MinConfidence     float64
	MaxDistinctValues int
	// Workers bounds concurrent file analysis, defaults to runtime.NumCPU().
	Workers int
}

func DefaultAnalyzerOptions() AnalyzerOptions {
	return AnalyzerOptions{
		SampleSize:        50,
		MinConfidence:     0.5,
		MaxDistinctValues: 1000,
	}
}

func (o AnalyzerOptions) normalized() AnalyzerOptions {
	d := DefaultAnalyzerOptions()
	if o.SampleSize <= 0 {
		o.SampleSize = d.SampleSize
	}
	if o.MinConfidence <= 0 || o.MinConfidence > 1 {
		o.MinConfidence = d.MinConfidence
	}
	if o.MaxDistinctValues <= 0 {
		o.MaxDistinctValues = d.MaxDistinctValues
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	return o
}

// AnalyzerService proposes column and value mappings. It never touches the
// store and is safe for concurrent use.
type AnalyzerService struct {
	opts AnalyzerOptions
}

func NewAnalyzerService(opts AnalyzerOptions) *AnalyzerService {
	return &AnalyzerService{opts: opts.normalized()}
}

// AnalyzeFiles parses every file and analyzes those that parse. Files that fail
// to parse are listed in FileErrors.
func (s *AnalyzerService) AnalyzeFiles(ctx context.Context, files []domain.SourceFile) (*domain.AnalysisResult, []domain.RawTable, error) {
	tables, fileErrors, err := s.ParseFiles(ctx, files)
	if err != nil {
		return nil, nil, err
	}
	result, err := s.Analyze(ctx, tables)
	if err != nil {
		return nil, nil, err
	}
	result.FileErrors = fileErrors
	return result, tables, nil
}

// ParseFiles parses files concurrently. The returned tables keep input order.
func (s *AnalyzerService) ParseFiles(ctx context.Context, files []domain.SourceFile) ([]domain.RawTable, []domain.FileError, error) {
	parsed := make([]domain.RawTable, len(files))
	errs := make([]error, len(files))
	seen := make(map[string]struct{}, len(files))
	for i, f := range files {
		if _, dup := seen[f.Name]; dup {
			errs[i] = &domain.MalformedInputError{File: f.Name, Reason: "duplicate file name"}
		}
		seen[f.Name] = struct{}{}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i, f := range files {
		if errs[i] != nil {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			parsed[i], errs[i] = ParseTable(f.Name, f.Content, ParseOptions{})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var (
		tables     []domain.RawTable
		fileErrors []domain.FileError
	)
	for i, err := range errs {
		if err != nil {
			fileErrors = append(fileErrors, domain.FileError{
				File:    files[i].Name,
				Code:    serrors.Code(err),
				Message: err.Error(),
			})
			continue
		}
		tables = append(tables, parsed[i])
	}
	return tables, fileErrors, nil
}

// Analyze scores every column of every table. Identical input always yields
// identical suggestions.
func (s *AnalyzerService) Analyze(ctx context.Context, tables []domain.RawTable) (*domain.AnalysisResult, error) {
	ctx, span := tracer.Start(ctx, "migration.analyze")
	defer span.End()
	span.SetAttributes(attribute.Int("migration.files", len(tables)))

	start := time.Now()
	logger := composables.UseLogger(ctx).WithField("component", "migration.analyzer")

	perFile := make([][]domain.ColumnSuggestion, len(tables))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i, table := range tables {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			perFile[i] = s.analyzeTable(table)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}

	result := &domain.AnalysisResult{
		Files:        make([]domain.FileSummary, 0, len(tables)),
		Suggestions:  make([]domain.ColumnSuggestion, 0),
		ValueSamples: make([]domain.ValueSample, 0),
	}
	for i, table := range tables {
		result.Files = append(result.Files, domain.FileSummary{
			File:     table.FileName(),
			Encoding: table.Encoding(),
			Headers:  table.Headers(),
			Rows:     table.RowCount(),
			Rejected: table.Rejected(),
		})
		result.Suggestions = append(result.Suggestions, perFile[i]...)
	}
	result.ValueSamples = s.collectValueSamples(tables, result.Suggestions)

	analyzeDuration.Observe(time.Since(start).Seconds())
	logger.WithField("files", len(tables)).
		WithField("columns", len(result.Suggestions)).
		Debug("analysis finished")
	return result, nil
}

type scoredPair struct {
	column int
	cand   domain.ScoredCandidate
	field  domain.FieldCandidate
}

func (s *AnalyzerService) analyzeTable(table domain.RawTable) []domain.ColumnSuggestion {
	headers := table.Headers()
	rows := table.Rows()
	if len(rows) > s.opts.SampleSize {
		rows = rows[:s.opts.SampleSize]
	}

	suggestions := make([]domain.ColumnSuggestion, len(headers))
	var eligible []scoredPair
	for col, header := range headers {
		sample := make([]string, 0, len(rows))
		for _, row := range rows {
			v, _ := row.Get(header)
			sample = append(sample, v)
		}
		profile := profileColumn(sample)

		candidates := scoreCandidates(header, profile)
		suggestions[col] = domain.ColumnSuggestion{
			File:       table.FileName(),
			Header:     header,
			Candidates: candidates,
		}
		for _, c := range candidates {
			if c.Score < s.opts.MinConfidence {
				continue
			}
			field, _ := domain.LookupField(c.Field)
			eligible = append(eligible, scoredPair{column: col, cand: c, field: field})
		}
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if a.cand.Score != b.cand.Score {
			return a.cand.Score > b.cand.Score
		}
		if a.field.Priority != b.field.Priority {
			return a.field.Priority < b.field.Priority
		}
		return headers[a.column] < headers[b.column]
	})

	claimed := make(map[string]bool)
	for _, p := range eligible {
		sug := &suggestions[p.column]
		if sug.Field != "" {
			continue
		}
		if !p.field.MultiValued && claimed[p.field.Key] {
			continue
		}
		claimed[p.field.Key] = true
		sug.Field = p.field.Key
		sug.Confidence = p.cand.Score
		sug.RequiresValueMapping = p.field.RequiresValueMapping
	}
	return suggestions
}

// scoreCandidates returns every field with a non-zero header score, best first.
func scoreCandidates(header string, profile contentProfile) []domain.ScoredCandidate {
	tokens := tokenize(header)
	var out []domain.ScoredCandidate
	for _, field := range domain.Catalog() {
		h := headerScore(tokens, normalizedSynonyms[field.Key])
		if h == 0 {
			continue
		}
		c := profile.score(field.Kind)
		out = append(out, domain.ScoredCandidate{
			Field:        field.Key,
			Score:        round4(headerWeight*h + contentWeight*c),
			HeaderScore:  round4(h),
			ContentScore: round4(c),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// headerScore is 1 for an exact synonym, otherwise the best token overlap, with
// near-miss spellings floored at fuzzyScore.
func headerScore(tokens []string, synonyms [][]string) float64 {
	if len(tokens) == 0 {
		return 0
	}
	joined := strings.Join(tokens, " ")
	best := 0.0
	for _, syn := range synonyms {
		synJoined := strings.Join(syn, " ")
		if synJoined == joined {
			return 1
		}
		if j := jaccard(tokens, syn); j > best {
			best = j
		}
		if best < fuzzyScore && len(joined) >= fuzzyMinLen && len(synJoined) >= fuzzyMinLen &&
			fuzzy.LevenshteinDistance(joined, synJoined) <= fuzzyMaxEdits {
			best = fuzzyScore
		}
	}
	return best
}

func jaccard(a, b []string) float64 {
	set := make(map[string]uint8, len(a)+len(b))
	for _, t := range a {
		set[t] |= 1
	}
	for _, t := range b {
		set[t] |= 2
	}
	inter := 0
	for _, v := range set {
		if v == 3 {
			inter++
		}
	}
	if len(set) == 0 {
		return 0
	}
	return float64(inter) / float64(len(set))
}

func round4(f float64) float64 {
	return math.Round(f*10000) / 10000
}

func (s *AnalyzerService) collectValueSamples(tables []domain.RawTable, suggestions []domain.ColumnSuggestion) []domain.ValueSample {
	columnsByField := make(map[string][]domain.ColumnRef)
	for _, sug := range suggestions {
		if sug.Field == "" || !sug.RequiresValueMapping {
			continue
		}
		columnsByField[sug.Field] = append(columnsByField[sug.Field], domain.ColumnRef{File: sug.File, Header: sug.Header})
	}

	fields := make([]string, 0, len(columnsByField))
	for f := range columnsByField {
		fields = append(fields, f)
	}
	domain.SortFieldKeys(fields)

	byFile := make(map[string]domain.RawTable, len(tables))
	for _, t := range tables {
		byFile[t.FileName()] = t
	}

	samples := make([]domain.ValueSample, 0, len(fields))
	for _, field := range fields {
		sample := domain.ValueSample{Field: field, Columns: columnsByField[field], Values: []string{}}
		seen := make(map[string]struct{})
	columns:
		for _, ref := range sample.Columns {
			for _, row := range byFile[ref.File].Rows() {
				v, _ := row.Get(ref.Header)
				if v == "" {
					continue
				}
				if _, ok := seen[v]; ok {
					continue
				}
				if len(sample.Values) == s.opts.MaxDistinctValues {
					sample.Truncated = true
					break columns
				}
				seen[v] = struct{}{}
				sample.Values = append(sample.Values, v)
			}
		}
		samples = append(samples, sample)
	}
	return samples
}
