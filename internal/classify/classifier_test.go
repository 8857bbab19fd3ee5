package classify

import (
	"math"
	"strings"
	"testing"
	"unicode/utf8"
)

func defaultRules() []Rule {
	return []Rule{
		{Label: Free, Phrases: []string{
			"WiFi Survey", "NID/IW/CopperTest", "equipment check", "swap router",
			"ONT Swap", "STB to ONN Conversion", "Jack/FXS/Phone Check", "Blank",
			"Go-Live", "Install", "rouge ont", "onn swap", "ont dying", "stb swap",
			"Tie down", "onn",
		}},
		{Label: Billable, Phrases: []string{
			"ONT Move", "ONT in Disco", "Fiber Cut", "Broken Fiber", "Fiber Move",
		}},
	}
}

func TestClassify(t *testing.T) {
	c := New(defaultRules(), DefaultThreshold)

	tests := []struct {
		name  string
		notes string
		want  Label
	}{
		{
			name:  "bold problem statement free",
			notes: "Caller notes<br>PROBLEM STATEMENT: <b>WiFi Survey</b><br>Callback 555",
			want:  Free,
		},
		{
			name:  "statement variant billable",
			notes: "PROBLEM STATEMENT (Statement): <b>Broken Fiber at pedestal</b>",
			want:  Billable,
		},
		{
			name:  "plain statement billable",
			notes: "PROBLEM STATEMENT: ONT Move to garage<br>",
			want:  Billable,
		},
		{
			name:  "go-live punctuation ignored",
			notes: "PROBLEM STATEMENT: <b>GO-LIVE!</b>",
			want:  Free,
		},
		{
			name:  "empty notes match blank",
			notes: "",
			want:  Free,
		},
		{
			name:  "no statement falls back to full notes",
			notes: "Tech found a fiber cut behind the shed",
			want:  Billable,
		},
		{
			name:  "nothing close",
			notes: "PROBLEM STATEMENT: <b>Customer reports roof leak</b>",
			want:  Unknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.notes)
			if got.Label != tt.want {
				t.Errorf("got %s (score %.1f, phrase %q), want %s", got.Label, got.Score, got.Phrase, tt.want)
			}
			if got.Label == Unknown && !got.Ambiguous {
				t.Error("Unknown result should be marked ambiguous")
			}
		})
	}
}

func TestClassifyThreshold(t *testing.T) {
	// "wifi survy" best aligns with "wifi surv" at ~94.7
	loose := New(defaultRules(), 90)
	if got := loose.ClassifyText("WiFi Survy"); got.Label != Free {
		t.Errorf("threshold 90: got %s (score %.2f), want Free", got.Label, got.Score)
	}

	strict := New(defaultRules(), 95)
	got := strict.ClassifyText("WiFi Survy")
	if got.Label != Unknown {
		t.Errorf("threshold 95: got %s (score %.2f), want Unknown", got.Label, got.Score)
	}
	if !got.Ambiguous {
		t.Error("expected ambiguous result")
	}
}

func TestClassifyScoreMustExceedThreshold(t *testing.T) {
	c := New([]Rule{{Label: Free, Phrases: []string{"abcd"}}}, 75)
	// "abc" aligns with the prefix of "abcd"
	if got := c.ClassifyText("abc"); got.Label != Free {
		t.Errorf("got %s, want Free", got.Label)
	}

	c = New([]Rule{{Label: Free, Phrases: []string{"ab"}}}, 80)
	// best alignment of "ac" against "ab" is the clipped prefix "a", ~66.7
	if got := c.ClassifyText("ac"); got.Label != Unknown {
		t.Errorf("got %s, want Unknown", got.Label)
	}
}

func TestClassifyTieKeepsEarlierLabel(t *testing.T) {
	c := New([]Rule{
		{Label: Free, Phrases: []string{"fiber"}},
		{Label: Billable, Phrases: []string{"Fiber"}},
	}, DefaultThreshold)

	got := c.ClassifyText("fiber")
	if got.Label != Free {
		t.Errorf("got %s, want Free", got.Label)
	}
}

func TestClassifyDeterministic(t *testing.T) {
	c := New(defaultRules(), DefaultThreshold)
	first := c.Classify("PROBLEM STATEMENT: <b>ONT in disco</b>")
	for i := 0; i < 5; i++ {
		if got := c.Classify("PROBLEM STATEMENT: <b>ONT in disco</b>"); got != first {
			t.Fatalf("run %d: got %+v, want %+v", i, got, first)
		}
	}
	if first.Label != Billable {
		t.Errorf("got %s, want Billable", first.Label)
	}
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name  string
		notes string
		want  string
	}{
		{"bold", "x PROBLEM STATEMENT: <b> Fiber Cut </b> y", "Fiber Cut"},
		{"case insensitive", "problem statement: <B>onn swap</B>", "onn swap"},
		{"plain strips tags", "PROBLEM STATEMENT: Tie down <i>drop</i>", "Tie down drop"},
		{"fallback", "Just <b>some</b>   notes", "Just some notes"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Extract(tt.notes); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractCapsPlainStatement(t *testing.T) {
	long := "PROBLEM STATEMENT: "
	for i := 0; i < 30; i++ {
		long += "word "
	}
	if got := Extract(long); len(got) > maxPlainStatement {
		t.Errorf("got %d chars, want at most %d", len(got), maxPlainStatement)
	}
}

func TestExtractCapsOnCharacterBoundary(t *testing.T) {
	// "é" straddles byte 100 of the statement
	notes := "PROBLEM STATEMENT: WiFi Survey " + strings.Repeat("x", 87) + "é and more"

	got := Extract(notes)
	if !utf8.ValidString(got) {
		t.Fatalf("got invalid UTF-8 %q", got)
	}
	if n := utf8.RuneCountInString(got); n != maxPlainStatement {
		t.Errorf("got %d characters, want %d", n, maxPlainStatement)
	}
	if !strings.HasSuffix(got, "xé") {
		t.Errorf("got tail %q, want the whole final character", got[len(got)-4:])
	}

	c := New(defaultRules(), DefaultThreshold)
	if res := c.Classify(notes); res.Label != Free {
		t.Errorf("got label %s, want Free", res.Label)
	}
}

func TestPartialRatio(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"fiber cut", "the fiber cut near pole", 100},
		{"the fiber cut near pole", "fiber cut", 100},
		{"", "anything", 0},
		{"abc", "xyz", 0},
		{"onn", "on", 100},
	}

	for _, tt := range tests {
		t.Run(tt.a+"|"+tt.b, func(t *testing.T) {
			if got := PartialRatio(tt.a, tt.b); math.Abs(got-tt.want) > 0.01 {
				t.Errorf("got %.2f, want %.2f", got, tt.want)
			}
		})
	}
}

func TestRatio(t *testing.T) {
	if got := Ratio("onn", "on"); math.Abs(got-80) > 0.01 {
		t.Errorf("got %.2f, want 80", got)
	}
	if got := Ratio("", ""); got != 100 {
		t.Errorf("got %.2f, want 100", got)
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("  NID/IW/CopperTest! "); got != "nidiwcoppertest" {
		t.Errorf("got %q", got)
	}
	if got := Normalize("Go-Live"); got != "golive" {
		t.Errorf("got %q", got)
	}
}
