package learner

import (
	"errors"
	"regexp"
	"testing"

	"github.com/dataglass/pattern-sentry/internal/pattern"
)

func TestLearnSSN(t *testing.T) {
	learned, err := Learn([]string{"123-45-6789"})
	if err != nil {
		t.Fatalf("Learn failed: %v", err)
	}
	if len(learned.Alternatives) != 0 {
		t.Errorf("Expected no alternates for a single example, got %v", learned.Alternatives)
	}

	re := regexp.MustCompile(learned.Expression)

	t.Run("matches the example", func(t *testing.T) {
		if !re.MatchString("123-45-6789") {
			t.Errorf("Expression %q should match the training example", learned.Expression)
		}
	})

	t.Run("matches same-shape values", func(t *testing.T) {
		if !re.MatchString("My SSN is 987-65-4321.") {
			t.Errorf("Expression %q should match another SSN in context", learned.Expression)
		}
	})

	t.Run("rejects different grouping", func(t *testing.T) {
		if re.MatchString("12-345-6789") {
			t.Errorf("Expression %q should not match a differently grouped number", learned.Expression)
		}
	})

	t.Run("rejects longer digit runs", func(t *testing.T) {
		if re.MatchString("1234-45-6789") {
			t.Errorf("Expression %q should not match inside longer digit runs", learned.Expression)
		}
	})
}

func TestLearnGeneralizes(t *testing.T) {
	learned, err := Learn([]string{"MRN-12345", "MRN-67890"})
	if err != nil {
		t.Fatalf("Learn failed: %v", err)
	}
	if len(learned.Alternatives) != 0 {
		t.Errorf("Same-shape examples should collapse into one expression, got alternates %v", learned.Alternatives)
	}

	re := regexp.MustCompile(learned.Expression)

	for _, text := range []string{"MRN-12345", "MRN-67890", "MRN-99999"} {
		if !re.MatchString(text) {
			t.Errorf("Expression %q should match %q", learned.Expression, text)
		}
	}
	if re.MatchString("mrn-12345") {
		t.Errorf("Expression %q should preserve letter case from the examples", learned.Expression)
	}
}

func TestLearnWidensQuantifiers(t *testing.T) {
	learned, err := Learn([]string{"AB-123", "ABCD-12345"})
	if err != nil {
		t.Fatalf("Learn failed: %v", err)
	}
	if len(learned.Alternatives) != 0 {
		t.Errorf("Compatible shapes should union, got alternates %v", learned.Alternatives)
	}

	re := regexp.MustCompile(learned.Expression)

	for _, text := range []string{"AB-123", "ABCD-12345", "ABC-1234"} {
		if !re.MatchString(text) {
			t.Errorf("Expression %q should cover %q within the widened bounds", learned.Expression, text)
		}
	}
	if re.MatchString("ABCDE-123456") {
		t.Errorf("Expression %q should stay bounded by the observed run lengths", learned.Expression)
	}
}

func TestLearnAlternates(t *testing.T) {
	learned, err := Learn([]string{
		"123-45-6789",
		"987-65-4321",
		"AB123456",
	})
	if err != nil {
		t.Fatalf("Learn failed: %v", err)
	}
	if len(learned.Alternatives) != 1 {
		t.Fatalf("Expected one alternate for the odd-shaped example, got %v", learned.Alternatives)
	}

	// The better-supported shape is the primary expression
	primary := regexp.MustCompile(learned.Expression)
	if !primary.MatchString("123-45-6789") {
		t.Errorf("Primary expression %q should cover the majority shape", learned.Expression)
	}
	if primary.MatchString("AB123456") {
		t.Errorf("Primary expression %q should not absorb the minority shape", learned.Expression)
	}

	alternate := regexp.MustCompile(learned.Alternatives[0])
	if !alternate.MatchString("AB123456") {
		t.Errorf("Alternate expression %q should cover the minority shape", learned.Alternatives[0])
	}
}

func TestLearnEmptyInput(t *testing.T) {
	for _, examples := range [][]string{nil, {}, {"", "   "}} {
		_, err := Learn(examples)
		if !errors.Is(err, pattern.ErrInvalidInput) {
			t.Errorf("Learn(%v) should fail with invalid input, got %v", examples, err)
		}
	}
}

func TestLearnDegenerateInput(t *testing.T) {
	learned, err := Learn([]string{"a1"})
	if err != nil {
		t.Fatalf("Learn failed: %v", err)
	}

	re := regexp.MustCompile(learned.Expression)
	if !re.MatchString("a1") {
		t.Errorf("Expression %q should match the literal example", learned.Expression)
	}
	if re.MatchString("b2") {
		t.Errorf("Expression %q should not generalize from a short single example", learned.Expression)
	}
}

func TestLearnLiteralPunctuation(t *testing.T) {
	learned, err := Learn([]string{"user@corp.example"})
	if err != nil {
		t.Fatalf("Learn failed: %v", err)
	}

	re := regexp.MustCompile(learned.Expression)
	if !re.MatchString("mail to dave@dept.network today") {
		t.Errorf("Expression %q should match another address of the same shape", learned.Expression)
	}
	if re.MatchString("userXcorpYexample") {
		t.Errorf("Expression %q must keep punctuation literal, not as wildcards", learned.Expression)
	}
}
