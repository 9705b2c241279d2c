package formatter

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/artpar/schemaql/domain/query"
	"github.com/artpar/schemaql/domain/schema"
	"github.com/artpar/schemaql/domain/value"
)

// TableFormatter formats output as aligned text tables.
type TableFormatter struct{}

// NewTableFormatter creates a new table formatter.
func NewTableFormatter() *TableFormatter {
	return &TableFormatter{}
}

// Name returns the formatter name.
func (f *TableFormatter) Name() string {
	return "table"
}

// Description returns the formatter description.
func (f *TableFormatter) Description() string {
	return "Aligned text table output"
}

// FormatResults prints one titled table per result.
func (f *TableFormatter) FormatResults(w io.Writer, resp *query.BatchResponse, opts FormatOptions) error {
	for i, res := range resp.Results {
		if i > 0 {
			fmt.Fprintln(w)
		}
		if err := f.formatResult(w, res, opts); err != nil {
			return err
		}
	}
	return nil
}

func (f *TableFormatter) formatResult(w io.Writer, res query.Result, opts FormatOptions) error {
	title := res.Schema + "." + res.Namespace
	if res.DataSource != "" {
		title += " (" + res.DataSource + ")"
	}
	fmt.Fprintf(w, "# %s\n", title)

	if len(res.Data) == 0 {
		fmt.Fprintln(w, "No records found.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	columns := columnsOf(res, opts.Columns)

	if !opts.NoHeader {
		headers := make([]string, len(columns))
		for i, col := range columns {
			headers[i] = strings.ToUpper(col)
			if res.DataTypes != nil {
				if typ, ok := res.DataTypes.Get(col); ok && typ != "" {
					headers[i] += " (" + typ + ")"
				}
			}
		}
		fmt.Fprintln(tw, strings.Join(headers, "\t"))
	}

	for _, row := range res.Data {
		values := make([]string, len(columns))
		for i, col := range columns {
			values[i] = f.formatValue(row, col, opts.MaxWidth)
		}
		fmt.Fprintln(tw, strings.Join(values, "\t"))
	}

	return tw.Flush()
}

// FormatSchema lists every namespace with its fields.
func (f *TableFormatter) FormatSchema(w io.Writer, s *schema.Schema, opts FormatOptions) error {
	fmt.Fprintf(w, "Schema:\t%s\n", s.Name)
	fmt.Fprintf(w, "Source:\t%s (%s)\n", s.Source.Name, s.Source.Type)
	if s.Source.GlobalKey != "" {
		fmt.Fprintf(w, "Global key:\t%s\n", s.Source.GlobalKey)
	}

	for _, ns := range s.Namespaces {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "# %s", ns.Name)
		if ns.Cacheable {
			fmt.Fprintf(w, " (cached %ds, key %s)", ns.CacheTTL, ns.CacheKeyPattern)
		}
		fmt.Fprintln(w)

		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		if !opts.NoHeader {
			fmt.Fprintln(tw, "FIELD\tTYPE\tFLAGS")
		}
		for _, fd := range ns.Fields {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", fd.Name, orDash(fd.Type), orDash(fieldFlags(fd)))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// FormatError formats an error message.
func (f *TableFormatter) FormatError(w io.Writer, err error) error {
	fmt.Fprintf(w, "Error: %s\n", err.Error())
	return nil
}

func fieldFlags(fd *schema.Field) string {
	var flags []string
	if fd.Required {
		flags = append(flags, "required")
	}
	if fd.Computed {
		flags = append(flags, "computed")
	}
	if fd.Sensitive {
		flags = append(flags, "sensitive")
	}
	if fd.JSONPath != "" {
		flags = append(flags, "path="+fd.JSONPath)
	}
	return strings.Join(flags, ",")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// formatValue renders a cell. Absent and null cells print as "-".
func (f *TableFormatter) formatValue(row value.Row, col string, maxWidth int) string {
	v, ok := row[col]
	if !ok || v.IsNull() {
		return "-"
	}

	str := v.String()
	if b, ok := v.AsBool(); ok {
		str = "no"
		if b {
			str = "yes"
		}
	}

	if maxWidth > 3 && len(str) > maxWidth {
		str = str[:maxWidth-3] + "..."
	}
	return str
}

func init() {
	Register(NewTableFormatter())
}
