package citations

import "testing"

func TestExtractPublisher(t *testing.T) {
	cases := map[string]string{
		"https://www.theverge.com/2026/1/1/ai-news": "theverge.com",
		"https://techcrunch.com/article":             "techcrunch.com",
		"not a url":                                  "not a url",
	}
	for in, want := range cases {
		if got := ExtractPublisher(in); got != want {
			t.Errorf("ExtractPublisher(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestClampLen(t *testing.T) {
	s := clampLen("short", 10, 20)
	if len(s) < 10 {
		t.Errorf("clampLen did not pad to min length: %q", s)
	}
	long := clampLen("this sentence is going to be way too long for a citation summary field by design", 10, 20)
	if len([]rune(long)) > 20 {
		t.Errorf("clampLen did not truncate to max length: %q", long)
	}
}

func TestDomainConflict(t *testing.T) {
	a := map[string]bool{"hr_recruitment": true}
	b := map[string]bool{"research_technical": true}
	if !domainConflict(a, b) {
		t.Error("expected hr_recruitment x research_technical to conflict")
	}
	c := map[string]bool{"product_tools": true}
	if domainConflict(a, c) {
		t.Error("did not expect hr_recruitment x product_tools to conflict")
	}
}
