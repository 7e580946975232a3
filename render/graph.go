// Package render schedules the fixed frame pipeline: geometry, material
// resolve, transparency, composite, effects, picking. Passes declare what
// they read and write; the graph enforces that a same-frame read was
// actually produced before anything consumes it.
package render

import "fmt"

// PassSpec declares a pass's data dependencies by target name. Reads must
// be written earlier in the same frame; HistoryReads come from a previous
// frame and are exempt from the same-frame check.
type PassSpec struct {
	Name         string
	Reads        []string
	HistoryReads []string
	Writes       []string
}

// ReadBeforeWriteError reports a pass consuming a target nothing produced.
type ReadBeforeWriteError struct {
	Pass     string
	Resource string
}

func (e *ReadBeforeWriteError) Error() string {
	return fmt.Sprintf("pass %q reads %q before any pass wrote it this frame", e.Pass, e.Resource)
}

// ValidateOrder statically checks a pass sequence: every same-frame read of
// every pass must be written by an earlier pass or listed as external input.
func ValidateOrder(passes []PassSpec, external []string) error {
	written := make(map[string]bool, len(external))
	for _, name := range external {
		written[name] = true
	}
	for _, p := range passes {
		for _, r := range p.Reads {
			if !written[r] {
				return &ReadBeforeWriteError{Pass: p.Name, Resource: r}
			}
		}
		for _, w := range p.Writes {
			written[w] = true
		}
	}
	return nil
}

// CheckReads is the runtime counterpart: version reports the frame a target
// was last written in. A skipped producer leaves its targets at an older
// frame, which fails this check for every downstream consumer.
func CheckReads(spec PassSpec, frame uint64, version func(name string) (uint64, bool)) error {
	for _, r := range spec.Reads {
		v, ok := version(r)
		if !ok || v < frame {
			return &ReadBeforeWriteError{Pass: spec.Name, Resource: r}
		}
	}
	return nil
}
