package intent

import "testing"

func TestDecisionConstructors(t *testing.T) {
	if d := Product(); d.Kind != ProductSearch || d.URL != "" || d.IsSummarize() {
		t.Fatalf("unexpected product decision %+v", d)
	}
	if d := Answer(); d.Kind != AnswerFromContext || d.IsSummarize() {
		t.Fatalf("unexpected answer decision %+v", d)
	}
	if d := SummarizeURL("https://x.com"); !d.IsSummarize() || d.URL != "https://x.com" {
		t.Fatalf("unexpected summarize decision %+v", d)
	}
}
