package textproc

import (
	"strings"
	"testing"
)

func TestPreprocess_Whitespace(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "collapses space runs",
			input: "the  section   179    deduction",
			want:  "the section 179 deduction",
		},
		{
			name:  "caps blank lines",
			input: "paragraph one.\n\n\n\nparagraph two.",
			want:  "paragraph one.\n\nparagraph two.",
		},
		{
			name:  "strips line indentation",
			input: "first line.\n   second line.",
			want:  "first line.\nsecond line.",
		},
		{
			name:  "trims surrounding whitespace",
			input: "  text body.  ",
			want:  "text body.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Preprocess(tt.input); got != tt.want {
				t.Errorf("Preprocess(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestPreprocess_OCRCorrections(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"I RS guidance applies", "IRS guidance applies"},
		{"Sect ion 179 property", "Section 179 property"},
		{"Sect1on 179 property", "Section 179 property"},
		{"ded uction", "ded uction"}, // split words without digit swaps pass through
		{"d3duct1on limits", "deduction limits"},
		{"t4x4ble 1ncome", "taxable income"},
		{"foreign tax cr3dit", "foreign tax credit"},
		{"Treasury r3gul4t1on", "Treasury regulation"},
		{"R3gul4t1on preamble", "Regulation preamble"}, // leading case survives the fix
		{"Treasury Regulation 1.123-4", "Treasury Regulation 1.123-4"},
		{"the section 179 limit", "the section 179 limit"}, // clean spellings pass through
		{"Ordinary income rules", "Ordinary income rules"},
	}

	for _, tt := range tests {
		if got := Preprocess(tt.input); got != tt.want {
			t.Errorf("Preprocess(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestPreprocess_CitationNormalization(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"see IRC Sec. 123 for details", "see IRC Section 123 for details"},
		{"see I.R.C. § 123 for details", "see IRC Section 123 for details"},
		{"see IRC § 61", "see IRC Section 61"},
		{"under Treas. Reg. 1.123-4", "under Treasury Regulation 1.123-4"},
		{"under Treas Reg 1.263-2", "under Treasury Regulation 1.263-2"},
	}

	for _, tt := range tests {
		if got := Preprocess(tt.input); got != tt.want {
			t.Errorf("Preprocess(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestPreprocess_ParagraphRepair(t *testing.T) {
	got := Preprocess("the deduction applies\nHowever, limits exist.")
	want := "the deduction applies. However, limits exist."
	if got != want {
		t.Errorf("Preprocess() = %q, want %q", got, want)
	}

	got = Preprocess("limits apply.Next year differs.")
	want = "limits apply. Next year differs."
	if got != want {
		t.Errorf("Preprocess() = %q, want %q", got, want)
	}
}

// Preprocessing must be idempotent: cleaning already-clean text is a no-op.
func TestPreprocess_Idempotent(t *testing.T) {
	inputs := []string{
		"Section 179 allows a deduction up to $1,160,000 for tax year 2023.",
		"see  I.R.C. § 123 and\n\n\nTreas. Reg. 1.123-4",
		"the d3duct1on applies\nHowever, t4x4ble 1ncome limits it.I RS guidance follows.",
		"scanned r3gul4t1on text citing Treas. Reg. 1.123-4 and IRC § 61.",
		"The limit under Sect1on 179 is $1,160,000.",
		"",
	}

	for _, input := range inputs {
		once := Preprocess(input)
		twice := Preprocess(once)
		if once != twice {
			t.Errorf("Preprocess not idempotent for %q:\n once: %q\ntwice: %q", input, once, twice)
		}
	}
}

func TestSections(t *testing.T) {
	text := "Section 179 Election to expense\nThe taxpayer may elect to expense property.\n" +
		"Section 280F Luxury automobiles\nLimits apply to listed property."

	sections := Sections(text)
	if len(sections) != 2 {
		t.Fatalf("Sections() returned %d sections, want 2", len(sections))
	}
	if sections[0].Number != "Section 179" {
		t.Errorf("first section number = %q, want %q", sections[0].Number, "Section 179")
	}
	if sections[0].Title != "Election to expense" {
		t.Errorf("first section title = %q, want %q", sections[0].Title, "Election to expense")
	}
	if !strings.Contains(sections[1].Content, "Limits apply") {
		t.Errorf("second section content = %q, missing body", sections[1].Content)
	}
}

func TestSections_NoStructure(t *testing.T) {
	if got := Sections("plain prose without any statutory headers."); got != nil {
		t.Errorf("Sections() = %v, want nil for unstructured text", got)
	}
}
