package main

import (
	"testing"

	"github.com/spf13/cobra"
)

func TestReadUIMode(t *testing.T) {
	cases := map[string]uiMode{"": uiModeAuto, "AUTO": uiModeAuto, " on ": uiModeOn, "off": uiModeOff}
	for in, want := range cases {
		got, err := readUIMode(in)
		if err != nil || got != want {
			t.Errorf("readUIMode(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := readUIMode("fancy"); err == nil {
		t.Error("readUIMode(fancy) succeeded")
	}
}

func TestUseProgressUI(t *testing.T) {
	newCmd := func(mode string) *cobra.Command {
		cmd := &cobra.Command{Use: "x"}
		cmd.Flags().String("ui", "auto", "")
		if err := cmd.Flags().Set("ui", mode); err != nil {
			t.Fatal(err)
		}
		return cmd
	}
	if on, err := useProgressUI(newCmd("on"), 1, false, false); err != nil || !on {
		t.Fatalf("--ui=on: %v, %v", on, err)
	}
	// модуль в stdout перекрывает --ui=on
	if on, _ := useProgressUI(newCmd("on"), 3, false, true); on {
		t.Fatal("--ui=on with stdout output must stay off")
	}
	if on, _ := useProgressUI(newCmd("off"), 3, false, false); on {
		t.Fatal("--ui=off enabled the UI")
	}
	if _, err := useProgressUI(newCmd("bogus"), 3, false, false); err == nil {
		t.Fatal("invalid --ui accepted")
	}
}
