package render

import (
	"errors"
	"testing"
)

func TestValidateOrderAccepts(t *testing.T) {
	passes := []PassSpec{
		{Name: "a", Writes: []string{"x"}},
		{Name: "b", Reads: []string{"x"}, Writes: []string{"y"}},
		{Name: "c", Reads: []string{"x", "y"}, Writes: []string{"z"}},
	}
	if err := ValidateOrder(passes, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateOrderRejectsEarlyRead(t *testing.T) {
	passes := []PassSpec{
		{Name: "b", Reads: []string{"x"}},
		{Name: "a", Writes: []string{"x"}},
	}
	err := ValidateOrder(passes, nil)
	var rbw *ReadBeforeWriteError
	if !errors.As(err, &rbw) {
		t.Fatalf("expected ReadBeforeWriteError, got %v", err)
	}
	if rbw.Pass != "b" || rbw.Resource != "x" {
		t.Fatalf("error names the wrong pass or resource: %+v", rbw)
	}
}

func TestValidateOrderExternalInputs(t *testing.T) {
	passes := []PassSpec{
		{Name: "b", Reads: []string{"atlas"}},
	}
	if err := ValidateOrder(passes, nil); err == nil {
		t.Fatal("undeclared external input must fail")
	}
	if err := ValidateOrder(passes, []string{"atlas"}); err != nil {
		t.Fatalf("declared external input must pass: %v", err)
	}
}

func TestValidateOrderIgnoresHistoryReads(t *testing.T) {
	// History reads come from a previous frame; nothing in this frame needs
	// to have produced them yet.
	passes := []PassSpec{
		{Name: "temporal", HistoryReads: []string{"effects/temporal"}, Writes: []string{"effects/temporal"}},
	}
	if err := ValidateOrder(passes, nil); err != nil {
		t.Fatalf("history read must not require a same-frame producer: %v", err)
	}
}

func TestCheckReads(t *testing.T) {
	versions := map[string]uint64{
		"fresh": 10,
		"stale": 9,
	}
	lookup := func(name string) (uint64, bool) {
		v, ok := versions[name]
		return v, ok
	}

	ok := PassSpec{Name: "p", Reads: []string{"fresh"}}
	if err := CheckReads(ok, 10, lookup); err != nil {
		t.Fatalf("fresh read rejected: %v", err)
	}

	stale := PassSpec{Name: "p", Reads: []string{"stale"}}
	var rbw *ReadBeforeWriteError
	if err := CheckReads(stale, 10, lookup); !errors.As(err, &rbw) {
		t.Fatalf("stale read must fail: %v", err)
	}

	missing := PassSpec{Name: "p", Reads: []string{"never"}}
	if err := CheckReads(missing, 10, lookup); err == nil {
		t.Fatal("unknown target must fail")
	}
}
