package llm

import "testing"

func TestParseBulletsDirectJSON(t *testing.T) {
	raw := `{"bullets": ["OpenAI released a new model with 40% faster inference.", "The model targets enterprise customers in finance and healthcare.", "Pricing starts at $20 per million tokens for the base tier."]}`
	bullets, err := ParseBullets(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bullets) != 3 {
		t.Fatalf("expected 3 bullets, got %d", len(bullets))
	}
}

func TestParseBulletsFencedJSON(t *testing.T) {
	raw := "Here is the summary:\n```json\n{\"bullets\": [\"Anthropic announced Claude improvements for coding tasks.\", \"The update improves tool-use accuracy by 15 percent overall.\", \"Rollout begins next week for all API customers globally.\", \"Pricing remains unchanged across all existing subscription tiers.\"]}\n```"
	bullets, err := ParseBullets(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bullets) != 4 {
		t.Fatalf("expected 4 bullets, got %d", len(bullets))
	}
}

func TestParseBulletsBraceMatched(t *testing.T) {
	raw := `Sure, here's the JSON you asked for: {"bullets": ["Google DeepMind published a paper on reasoning benchmarks today.", "The benchmark covers math, code, and multi-step planning tasks.", "Results show a 12 point improvement over the prior baseline model."]} Let me know if you need anything else.`
	bullets, err := ParseBullets(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bullets) != 3 {
		t.Fatalf("expected 3 bullets, got %d", len(bullets))
	}
}

func TestParseBulletsSentenceFallback(t *testing.T) {
	raw := "Understood, here is the summary: Microsoft expanded its AI copilot lineup across the Office suite. The new features target small business customers with simplified pricing. Early reviewers praised the drafting assistant but flagged occasional factual errors."
	bullets, err := ParseBullets(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bullets) < 3 {
		t.Fatalf("expected at least 3 bullets, got %d: %v", len(bullets), bullets)
	}
}

func TestParseBulletsTooFewFails(t *testing.T) {
	_, err := ParseBullets("Too short.")
	if err == nil {
		t.Fatal("expected error for unparseable short response")
	}
}

func TestStripMetaArtifacts(t *testing.T) {
	in := "Here is the title: \"Company Ships New Feature\""
	out := StripMetaArtifacts(in)
	if out != "Company Ships New Feature" {
		t.Fatalf("got %q", out)
	}
}
