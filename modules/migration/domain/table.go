package domain

// Row is one data row of a parsed file. Index is the zero based position among
// the data rows of the file, Line the 1-based physical line it started on.
type Row struct {
	Index  int
	Line   int
	values map[string]string
}

func NewRow(index, line int, values map[string]string) Row {
	cp := make(map[string]string, len(values))
	for k, v := range values {
		cp[k] = v
	}
	return Row{Index: index, Line: line, values: cp}
}

// Get returns the raw value stored under header.
func (r Row) Get(header string) (string, bool) {
	v, ok := r.values[header]
	return v, ok
}

// Values returns a copy of the header to value map.
func (r Row) Values() map[string]string {
	cp := make(map[string]string, len(r.values))
	for k, v := range r.values {
		cp[k] = v
	}
	return cp
}

// RejectedRow is a row refused by the parser. It never reaches the analyzer or executor.
type RejectedRow struct {
	Index  int      `json:"index"`
	Line   int      `json:"line"`
	Reason string   `json:"reason"`
	Fields []string `json:"fields,omitempty"`
}

// RawTable is one parsed file. It is immutable once built.
type RawTable struct {
	fileName string
	encoding string
	headers  []string
	rows     []Row
	rejected []RejectedRow
}

type TableOption func(*RawTable)

func WithEncoding(encoding string) TableOption {
	return func(t *RawTable) {
		t.encoding = encoding
	}
}

func WithRejected(rejected []RejectedRow) TableOption {
	return func(t *RawTable) {
		t.rejected = append([]RejectedRow(nil), rejected...)
	}
}

func NewRawTable(fileName string, headers []string, rows []Row, opts ...TableOption) RawTable {
	t := RawTable{
		fileName: fileName,
		encoding: "utf-8",
		headers:  append([]string(nil), headers...),
		rows:     append([]Row(nil), rows...),
	}
	for _, opt := range opts {
		opt(&t)
	}
	return t
}

func (t RawTable) FileName() string {
	return t.fileName
}

func (t RawTable) Encoding() string {
	return t.encoding
}

func (t RawTable) Headers() []string {
	return append([]string(nil), t.headers...)
}

func (t RawTable) Rows() []Row {
	return append([]Row(nil), t.rows...)
}

func (t RawTable) RowCount() int {
	return len(t.rows)
}

func (t RawTable) Rejected() []RejectedRow {
	return append([]RejectedRow(nil), t.rejected...)
}

// SourceFile is an uploaded file as supplied by the caller.
type SourceFile struct {
	Name    string
	Content []byte
}
