package canonicalize

import (
	"errors"
	"strings"
	"testing"
)

func TestJCS_Sorting(t *testing.T) {
	input := map[string]interface{}{
		"c": 3,
		"a": 1,
		"b": 2,
	}

	b, err := JCS(input)
	if err != nil {
		t.Fatalf("JCS failed: %v", err)
	}
	if string(b) != `{"a":1,"b":2,"c":3}` {
		t.Errorf("got %s", string(b))
	}
}

func TestJCS_RecursiveSortingAndNoHTMLEscape(t *testing.T) {
	input := map[string]interface{}{
		"z": map[string]interface{}{
			"y": "<foo>",
			"x": "bar&",
		},
		"a": 1.50,
	}

	b, err := JCS(input)
	if err != nil {
		t.Fatalf("JCS failed: %v", err)
	}
	expected := `{"a":1.5,"z":{"x":"bar&","y":"<foo>"}}`
	if string(b) != expected {
		t.Errorf("expected %s, got %s", expected, string(b))
	}
}

func TestJCS_StructTagsRespected(t *testing.T) {
	type rec struct {
		Zeta  string `json:"zeta"`
		Alpha int    `json:"alpha"`
	}
	s, err := JCSString(rec{Zeta: "z", Alpha: 2})
	if err != nil {
		t.Fatal(err)
	}
	if s != `{"alpha":2,"zeta":"z"}` {
		t.Errorf("got %s", s)
	}
}

func TestCanonicalHash_Stable(t *testing.T) {
	h1, err := CanonicalHash(map[string]any{"b": 1, "a": 2})
	if err != nil {
		t.Fatal(err)
	}
	h2, err := CanonicalHash(map[string]any{"a": 2, "b": 1})
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Errorf("hash depends on key order: %s vs %s", h1, h2)
	}
	if !strings.HasPrefix(h1, HashPrefix) {
		t.Errorf("missing prefix: %s", h1)
	}
}

func TestNormalizeText(t *testing.T) {
	// "é" as e + combining acute accent normalizes to the precomposed form.
	got, err := NormalizeText("cafe\u0301")
	if err != nil {
		t.Fatal(err)
	}
	if got != "caf\u00e9" {
		t.Errorf("expected NFC form, got %q", got)
	}

	if _, err := NormalizeText(string([]byte{0xff, 0xfe})); !errors.Is(err, ErrInvalidUTF8) {
		t.Errorf("expected ErrInvalidUTF8, got %v", err)
	}
}

func TestNormalizeText_EquivalentSpellingsShareAHash(t *testing.T) {
	decomposed, precomposed := "cafe\u0301", "caf\u00e9"
	if decomposed == precomposed {
		t.Fatal("inputs must differ as byte strings")
	}
	a, err := NormalizeText(decomposed)
	if err != nil {
		t.Fatal(err)
	}
	b, err := NormalizeText(precomposed)
	if err != nil {
		t.Fatal(err)
	}
	if HashString(a) != HashString(b) {
		t.Errorf("canonically equivalent text hashed differently: %s vs %s", HashString(a), HashString(b))
	}
}
