package level_test

import (
	"testing"

	"github.com/xraph/steward/level"
)

func TestOrdering(t *testing.T) {
	if level.Compare(level.Read, level.Write) != -1 {
		t.Error("expected read < write")
	}
	if level.Compare(level.Write, level.Admin) != -1 {
		t.Error("expected write < admin")
	}
	if level.Compare(level.Admin, level.Read) != 1 {
		t.Error("expected admin > read")
	}
	if level.Compare(level.Write, level.Write) != 0 {
		t.Error("expected write == write")
	}
}

func TestUnion(t *testing.T) {
	tests := []struct {
		a, b, want level.Level
	}{
		{level.Read, level.Write, level.Write},
		{level.Write, level.Read, level.Write},
		{level.Read, level.Admin, level.Admin},
		{level.Admin, level.Admin, level.Admin},
		{level.Read, level.Read, level.Read},
	}
	for _, tt := range tests {
		if got := level.Union(tt.a, tt.b); got != tt.want {
			t.Errorf("Union(%s, %s) = %s, want %s", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestSatisfies(t *testing.T) {
	if !level.Satisfies(level.Admin, level.Read) {
		t.Error("admin should satisfy read")
	}
	if !level.Satisfies(level.Write, level.Write) {
		t.Error("write should satisfy write")
	}
	if level.Satisfies(level.Read, level.Write) {
		t.Error("read should not satisfy write")
	}
	if level.Satisfies("", level.Read) {
		t.Error("invalid level should satisfy nothing")
	}
	if level.Satisfies(level.Admin, "crazy") {
		t.Error("nothing satisfies an invalid requirement")
	}
}

func TestExpand(t *testing.T) {
	got := level.Expand(level.Admin)
	want := []level.Level{level.Read, level.Write, level.Admin}
	if len(got) != len(want) {
		t.Fatalf("Expand(admin) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expand(admin) = %v, want %v", got, want)
		}
	}

	if got := level.Expand(level.Read); len(got) != 1 || got[0] != level.Read {
		t.Errorf("Expand(read) = %v, want [read]", got)
	}
	if got := level.Expand("bogus"); got != nil {
		t.Errorf("Expand(bogus) = %v, want nil", got)
	}
}

func TestParse(t *testing.T) {
	for _, s := range []string{"read", "write", "admin"} {
		l, err := level.Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", s, err)
		}
		if string(l) != s {
			t.Errorf("Parse(%q) = %q", s, l)
		}
	}

	if _, err := level.Parse("manage"); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := level.Parse(""); err == nil {
		t.Error("expected error for empty level")
	}
}

func TestZeroValueInvalid(t *testing.T) {
	var l level.Level
	if l.Valid() {
		t.Error("zero-value level should be invalid")
	}
}
