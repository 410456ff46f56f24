package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/iota-uz/legacy-migrator/modules/migration/domain"
	"github.com/iota-uz/legacy-migrator/modules/migration/presentation/controllers/dtos"
	"github.com/iota-uz/legacy-migrator/pkg/constants"
)

var sourceExtensions = map[string]bool{".csv": true, ".txt": true, ".tsv": true}

// loadSourceFiles reads the given files. Directories contribute their
// .csv/.tsv/.txt entries, non-recursively, in name order.
func loadSourceFiles(paths []string) ([]domain.SourceFile, error) {
	if len(paths) == 0 {
		return nil, withCode(exitUsage, fmt.Errorf("at least one input file or directory is required"))
	}
	var files []domain.SourceFile
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, withCode(exitUsage, fmt.Errorf("stat %s: %w", p, err))
		}
		if !info.IsDir() {
			f, err := readSourceFile(p)
			if err != nil {
				return nil, err
			}
			files = append(files, f)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, withCode(exitUsage, fmt.Errorf("read dir %s: %w", p, err))
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if !e.IsDir() && sourceExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)
		for _, name := range names {
			f, err := readSourceFile(filepath.Join(p, name))
			if err != nil {
				return nil, err
			}
			files = append(files, f)
		}
	}
	if len(files) == 0 {
		return nil, withCode(exitUsage, fmt.Errorf("no input files found in %s", strings.Join(paths, ", ")))
	}
	return files, nil
}

func readSourceFile(path string) (domain.SourceFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return domain.SourceFile{}, withCode(exitUsage, fmt.Errorf("read %s: %w", path, err))
	}
	return domain.SourceFile{Name: filepath.Base(path), Content: b}, nil
}

func readMappingFile(path string) (*dtos.MappingRequest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, withCode(exitUsage, fmt.Errorf("read %s: %w", path, err))
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	var req dtos.MappingRequest
	if err := dec.Decode(&req); err != nil {
		return nil, withCode(exitValidation, fmt.Errorf("decode %s: %w", path, err))
	}
	if err := constants.Validate.Struct(&req); err != nil {
		return nil, withCode(exitValidation, fmt.Errorf("%s: %w", path, err))
	}
	return &req, nil
}

func writeMappingFile(path string, req *dtos.MappingRequest) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(req); err != nil {
		return withCode(exitDB, fmt.Errorf("yaml encode: %w", err))
	}
	if err := enc.Close(); err != nil {
		return withCode(exitDB, fmt.Errorf("yaml encode: %w", err))
	}
	return writeFile(path, buf.Bytes())
}

func writeFile(path string, b []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return withCode(exitDB, fmt.Errorf("mkdir %s: %w", dir, err))
		}
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return withCode(exitDB, fmt.Errorf("write %s: %w", path, err))
	}
	return nil
}
