package driver

// Totals aggregates a batch for the CLI summary line.
type Totals struct {
	Units      int
	Changed    int
	Producers  int
	Allocators int
	Skipped    int
	Failed     int
}

func Summarize(outcomes []Outcome) Totals {
	var t Totals
	for _, o := range outcomes {
		t.Units++
		if o.Err != nil {
			t.Failed++
			continue
		}
		switch {
		case o.Result != nil:
			if o.Result.Changed {
				t.Changed++
			}
			t.Producers += o.Result.Producers()
			t.Allocators += o.Result.Allocators()
			t.Skipped += o.Result.Skipped
		case o.Discovery != nil:
			t.Producers += len(o.Discovery.Producers)
			t.Allocators += len(o.Discovery.Allocators)
			t.Skipped += o.Discovery.Skipped
		}
	}
	return t
}
