package extract

import (
	"testing"

	"github.com/mfukata/kensho/internal/model"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		name string
		cell string
		want model.Value
	}{
		{"integer", "8", model.NumericValue(8)},
		{"decimal", "8.4", model.NumericValue(8.4)},
		{"percent", "7.0%", model.NumericValue(7.0)},
		{"frame suffix", "8F", model.NumericValue(8)},
		{"range keeps first", "8-10", model.NumericValue(8)},
		{"empty", "", model.MissingValue()},
		{"dash", "-", model.MissingValue()},
		{"em dash", "—", model.MissingValue()},
		{"text", "ワイヤー復帰あり", model.TextValue("ワイヤー復帰あり")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseValue(tt.cell)
			if got.Kind != tt.want.Kind {
				t.Errorf("parseValue(%q) kind = %v, want %v", tt.cell, got.Kind, tt.want.Kind)
			}
			if got.Kind == model.ValueNumeric && got.Number != tt.want.Number {
				t.Errorf("parseValue(%q) number = %v, want %v", tt.cell, got.Number, tt.want.Number)
			}
			if got.Kind == model.ValueText && got.Text != tt.want.Text {
				t.Errorf("parseValue(%q) text = %q, want %q", tt.cell, got.Text, tt.want.Text)
			}
		})
	}
}

func TestNormalizeLabel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"空前", "空前"},
		{"空 前", "空_前"},
		{"空　前", "空_前"},
		{"  横スマ  ", "横スマ"},
	}

	for _, tt := range tests {
		if got := normalizeLabel(tt.in); got != tt.want {
			t.Errorf("normalizeLabel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSplitPassages(t *testing.T) {
	text := "最初の段落です。\n\n二番目の段落です。\n\n\n三番目。"
	passages := splitPassages(text, 500)

	if len(passages) != 1 {
		// Short paragraphs merge up to the limit
		t.Fatalf("expected 1 merged passage, got %d: %v", len(passages), passages)
	}

	long := make([]byte, 0, 1200)
	for i := 0; i < 3; i++ {
		for j := 0; j < 400; j++ {
			long = append(long, 'a')
		}
		long = append(long, '\n', '\n')
	}
	passages = splitPassages(string(long), 500)
	if len(passages) != 3 {
		t.Errorf("expected 3 passages when paragraphs exceed the limit, got %d", len(passages))
	}
}

func TestSplitDocumentName(t *testing.T) {
	entity, category := splitDocumentName("ヒカリ--frames.txt")
	if entity != "ヒカリ" || category != "frames" {
		t.Errorf("got (%q, %q), want (ヒカリ, frames)", entity, category)
	}

	entity, category = splitDocumentName("マリオ.txt")
	if entity != "マリオ" || category != "notes" {
		t.Errorf("got (%q, %q), want (マリオ, notes)", entity, category)
	}
}
