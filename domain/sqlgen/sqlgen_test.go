package sqlgen

import (
	"reflect"
	"testing"

	"github.com/artpar/schemaql/domain/query"
	"github.com/artpar/schemaql/domain/schema"
	"github.com/artpar/schemaql/domain/value"
)

func customersNS() *schema.Namespace {
	return &schema.Namespace{
		Name: "customers",
		Fields: []*schema.Field{
			{Name: "customer_id", Type: "integer", Aliases: []string{"id"}},
			{Name: "email", Type: "string"},
			{Name: "full_name", Type: "text"},
			{Name: "phone_number", Type: "string"},
			{Name: "city", Type: "string"},
			{Name: "balance", Type: "decimal"},
			{Name: "rate", Type: "double"},
			{Name: "active", Type: "bool"},
			{Name: "born", Type: "date"},
			{Name: "updated", Type: "datetime"},
			{Name: "points", Type: "long"},
			{Name: "blob", Type: "binary"},
		},
	}
}

func TestStatement(t *testing.T) {
	tests := []struct {
		name   string
		fields []string
		args   query.Arguments
		want   string
	}{
		{
			name:   "no arguments",
			fields: []string{"customer_id", "email"},
			want:   "SELECT customer_id, email FROM customers",
		},
		{
			name:   "one argument",
			fields: []string{"email"},
			args:   query.Arguments{"customer_id": value.Int(1)},
			want:   "SELECT email FROM customers WHERE customer_id = ?",
		},
		{
			name:   "arguments in sorted order",
			fields: []string{"email"},
			args:   query.Arguments{"region": value.String("eu"), "active": value.Bool(true)},
			want:   "SELECT email FROM customers WHERE active = ? AND region = ?",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Statement("customers", tt.fields, tt.args); got != tt.want {
				t.Errorf("Statement() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBind_OrderMatchesStatement(t *testing.T) {
	args := query.Arguments{
		"id":     value.String("42"),
		"active": value.String("TRUE"),
		"other":  value.String("raw"),
	}

	got := Bind(customersNS(), args)
	want := []any{true, int64(42), "raw"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Bind() = %#v, want %#v", got, want)
	}
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		name string
		in   value.Value
		typ  schema.FieldType
		want value.Value
	}{
		{"int from string", value.String("42"), schema.TypeInteger, value.Int(42)},
		{"int from float", value.Float(7.9), schema.TypeInteger, value.Int(7)},
		{"int unparseable", value.String("abc"), schema.TypeInteger, value.String("abc")},
		{"int overflow stays raw", value.String("9999999999"), schema.TypeInteger, value.String("9999999999")},
		{"long from string", value.String("9999999999"), schema.TypeLong, value.Int(9999999999)},
		{"double from string", value.String("1.5"), schema.TypeDouble, value.Float(1.5)},
		{"double from int", value.Int(2), schema.TypeDouble, value.Float(2)},
		{"bool from string", value.String("false"), schema.TypeBoolean, value.Bool(false)},
		{"bool unparseable", value.String("yes"), schema.TypeBoolean, value.String("yes")},
		{"string from int", value.Int(5), schema.TypeString, value.String("5")},
		{"date passes through", value.String("2023-05-01"), schema.TypeDate, value.String("2023-05-01")},
		{"unknown passes through", value.Int(1), schema.TypeUnknown, value.Int(1)},
		{"null stays null", value.Null(), schema.TypeInteger, value.Null()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Coerce(tt.in, tt.typ); !got.Equal(tt.want) {
				t.Errorf("Coerce(%v, %s) = %v (%s), want %v (%s)", tt.in, tt.typ, got, got.Kind(), tt.want, tt.want.Kind())
			}
		})
	}
}

func TestPlaceholderRow(t *testing.T) {
	ns := customersNS()

	row := PlaceholderRow(ns, []string{"email", "balance"})
	if len(row) != 2 {
		t.Fatalf("row has %d fields, want 2", len(row))
	}
	if !row["email"].Equal(value.String("user@example.com")) {
		t.Errorf("email = %v, want user@example.com", row["email"])
	}
	if !row["balance"].Equal(value.Float(1234.56)) {
		t.Errorf("balance = %v, want 1234.56", row["balance"])
	}

	tests := []struct {
		field string
		want  value.Value
	}{
		{"customer_id", value.Int(123)},
		{"full_name", value.String("John Doe")},
		{"phone_number", value.String("555-123-4567")},
		{"city", value.String("Sample city")},
		{"rate", value.Float(123.45)},
		{"active", value.Bool(true)},
		{"born", value.String("2023-05-01")},
		{"updated", value.String("2023-05-01T10:30:00")},
		{"points", value.String("mock_points")},
		{"blob", value.String("mock_blob")},
		{"ghost", value.String("mock_ghost")},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			got := PlaceholderRow(ns, []string{tt.field})[tt.field]
			if !got.Equal(tt.want) {
				t.Errorf("placeholder(%s) = %v, want %v", tt.field, got, tt.want)
			}
		})
	}
}

func TestPlaceholderRow_NilNamespace(t *testing.T) {
	row := PlaceholderRow(nil, []string{"email"})
	if !row["email"].Equal(value.String("mock_email")) {
		t.Errorf("email = %v, want mock_email", row["email"])
	}
}

func TestRebind(t *testing.T) {
	got := Rebind("SELECT a FROM t WHERE b = ? AND c = ?")
	if got != "SELECT a FROM t WHERE b = $1 AND c = $2" {
		t.Errorf("Rebind() = %q", got)
	}
}
