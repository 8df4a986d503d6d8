package conversation

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTitleFrom(t *testing.T) {
	if got := TitleFrom("short"); got != "short" {
		t.Errorf("expected short title unchanged, got %q", got)
	}
	long := strings.Repeat("ü", 100)
	got := TitleFrom(long)
	if utf8.RuneCountInString(got) != 60 {
		t.Errorf("expected 60 runes, got %d", utf8.RuneCountInString(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("expected ellipsis, got %q", got)
	}
}
