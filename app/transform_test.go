package app_test

import (
	"testing"

	"github.com/artpar/schemaql/app"
	"github.com/artpar/schemaql/domain/schema"
	"github.com/artpar/schemaql/domain/value"
)

func TestTransformService_Derive(t *testing.T) {
	svc := app.NewTransformService()
	row := value.Row{
		"first_name": value.String("Ada"),
		"last_name":  value.String("Lovelace"),
		"balance":    value.Float(10.5),
		"email":      value.String("ada@example.com"),
	}

	tests := []struct {
		name    string
		t       *schema.Transformer
		want    value.Value
		wantErr bool
	}{
		{
			name: "concat",
			t:    &schema.Transformer{Type: "concat", Fields: []string{"first_name", "last_name"}, Separator: " "},
			want: value.String("Ada Lovelace"),
		},
		{
			name: "concat is the default kind",
			t:    &schema.Transformer{Fields: []string{"last_name", "first_name"}, Separator: ", "},
			want: value.String("Lovelace, Ada"),
		},
		{
			name: "concat renders missing as null",
			t:    &schema.Transformer{Type: "concat", Fields: []string{"first_name", "middle_name"}, Separator: "-"},
			want: value.String("Ada-null"),
		},
		{
			name: "expr string",
			t:    &schema.Transformer{Type: "expr", Fields: []string{"first_name", "last_name"}, Expression: `upper(first_name) + " " + lower(last_name)`},
			want: value.String("ADA lovelace"),
		},
		{
			name: "expr number",
			t:    &schema.Transformer{Type: "expr", Fields: []string{"balance"}, Expression: `balance * 2`},
			want: value.Float(21),
		},
		{
			name: "expr mask",
			t:    &schema.Transformer{Type: "expr", Fields: []string{"email"}, Expression: `mask(email, 11)`},
			want: value.String("****example.com"),
		},
		{
			name: "expr round",
			t:    &schema.Transformer{Type: "expr", Fields: []string{"balance"}, Expression: `round(balance / 3, 2)`},
			want: value.Float(3.5),
		},
		{
			name:    "expr wrong arity",
			t:       &schema.Transformer{Type: "expr", Fields: []string{"email"}, Expression: `upper(email, email)`},
			wantErr: true,
		},
		{
			name:    "expr compile error",
			t:       &schema.Transformer{Type: "expr", Fields: []string{"balance"}, Expression: `balance *`},
			wantErr: true,
		},
		{
			name:    "unknown kind",
			t:       &schema.Transformer{Type: "regex", Fields: []string{"email"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &schema.Field{Name: "derived", Computed: true, Transformer: tt.t}
			got, err := svc.Derive(f, row)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Derive() = %v, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Derive error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("Derive() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTransformService_CompileCache(t *testing.T) {
	svc := app.NewTransformService()

	if err := svc.Compile(`coalesce(nickname, name)`); err != nil {
		t.Fatalf("Compile error: %v", err)
	}
	got, err := svc.Eval(`coalesce(nickname, name)`, map[string]any{"nickname": nil, "name": "ada"})
	if err != nil {
		t.Fatalf("Eval error: %v", err)
	}
	if got != "ada" {
		t.Errorf("Eval = %v, want ada", got)
	}

	svc.ClearCache()
	if _, err := svc.Eval(`default(x, 3)`, map[string]any{}); err != nil {
		t.Errorf("Eval after ClearCache error: %v", err)
	}
}
