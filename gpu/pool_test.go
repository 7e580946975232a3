package gpu

import "testing"

func TestPingPongRoles(t *testing.T) {
	a := &Target{Name: "pair/a"}
	b := &Target{Name: "pair/b"}
	p := &PingPong{a: a, b: b}

	if p.Current() != a || p.History() != b {
		t.Fatal("parity 0 must write a, read b")
	}
	p.Flip()
	if p.Current() != b || p.History() != a {
		t.Fatal("after one flip the roles must swap")
	}
	p.Flip()
	if p.Current() != a || p.Parity() != 0 {
		t.Fatal("two flips must restore the initial roles")
	}
}

func TestPingPongParitySurvivesSkippedWrites(t *testing.T) {
	a := &Target{Name: "pair/a"}
	b := &Target{Name: "pair/b"}
	p := &PingPong{a: a, b: b}

	// A skipped frame records no write and calls no Flip; Current must stay
	// put so the untouched history side is still the last accepted output.
	p.Flip()
	cur := p.Current()
	for frame := 0; frame < 3; frame++ {
		if p.Current() != cur {
			t.Fatal("parity drifted without a flip")
		}
	}
}

func TestTargetVersionTracksWrites(t *testing.T) {
	tgt := &Target{Name: "opaque"}
	if tgt.Version() != 0 {
		t.Fatal("fresh target starts unwritten")
	}
	tgt.MarkWritten(7)
	if tgt.Version() != 7 {
		t.Fatalf("version %d, want 7", tgt.Version())
	}
	tgt.MarkWritten(9)
	if tgt.Version() != 9 {
		t.Fatal("later write must advance the version")
	}
}
