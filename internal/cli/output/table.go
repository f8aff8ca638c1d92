package output

import (
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"
	"text/tabwriter"
)

// Table represents tabular data.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Tabular is implemented by values with their own table layout.
type Tabular interface {
	Table(wide bool) *Table
}

// AddRow adds a row to the table.
func (t *Table) AddRow(cells ...string) {
	t.Rows = append(t.Rows, cells)
}

// Render renders the table to the writer.
func (t *Table) Render(w io.Writer, noHeaders bool) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if !noHeaders && len(t.Headers) > 0 {
		fmt.Fprintln(tw, strings.Join(t.Headers, "\t"))
	}
	for _, row := range t.Rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// TableFormatter formats data as an aligned text table.
type TableFormatter struct {
	Wide      bool
	NoHeaders bool
}

// Format renders *Table and Tabular values directly. Structs and maps
// become FIELD/VALUE tables; anything else is printed with %v.
func (f *TableFormatter) Format(w io.Writer, data any) error {
	switch v := data.(type) {
	case nil:
		return nil
	case *Table:
		return v.Render(w, f.NoHeaders)
	case Tabular:
		return v.Table(f.Wide).Render(w, f.NoHeaders)
	}

	rv := reflect.ValueOf(data)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Struct:
		return structTable(rv).Render(w, f.NoHeaders)
	case reflect.Map:
		return mapTable(rv).Render(w, f.NoHeaders)
	default:
		_, err := fmt.Fprintf(w, "%v\n", data)
		return err
	}
}

func structTable(v reflect.Value) *Table {
	t := &Table{Headers: []string{"FIELD", "VALUE"}}
	typ := v.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}
		name := field.Name
		if tag, _, _ := strings.Cut(field.Tag.Get("json"), ","); tag == "-" {
			continue
		} else if tag != "" {
			name = tag
		}
		t.AddRow(name, Cell(v.Field(i).Interface()))
	}
	return t
}

func mapTable(v reflect.Value) *Table {
	t := &Table{Headers: []string{"KEY", "VALUE"}}
	keys := v.MapKeys()
	sort.Slice(keys, func(i, j int) bool {
		return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
	})
	for _, k := range keys {
		t.AddRow(fmt.Sprint(k.Interface()), Cell(v.MapIndex(k).Interface()))
	}
	return t
}

// Cell formats one value for a table cell. Empty values print as "-".
func Cell(v any) string {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return "-"
	}
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return "-"
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.String:
		if rv.String() == "" {
			return "-"
		}
		return rv.String()
	case reflect.Float32, reflect.Float64:
		return fmt.Sprintf("%.6f", rv.Float())
	case reflect.Slice, reflect.Array:
		if rv.Len() == 0 {
			return "-"
		}
		if rv.Type().Elem().Kind() == reflect.String {
			parts := make([]string, rv.Len())
			for i := range parts {
				parts[i] = rv.Index(i).String()
			}
			return strings.Join(parts, ",")
		}
		return fmt.Sprintf("[%d items]", rv.Len())
	case reflect.Map:
		if rv.Len() == 0 {
			return "-"
		}
		return fmt.Sprintf("{%d keys}", rv.Len())
	default:
		return fmt.Sprint(rv.Interface())
	}
}
