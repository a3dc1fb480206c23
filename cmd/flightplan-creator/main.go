package main

import (
	"flag"
	"fmt"
	"os"

	"kerbx/internal/flightplan"
)

func main() {
	var (
		output string
		demo   bool
	)
	flag.StringVar(&output, "o", "", "File to save the flight plan to (.zst compresses)")
	flag.BoolVar(&demo, "demo", false, "Write the demo ascent profile instead of the minimal plan")

	flag.Parse()

	if output == "" {
		fmt.Fprintln(os.Stderr, "flightplan-creator: -o is required")
		flag.Usage()
		os.Exit(2)
	}

	plan := flightplan.Minimal()
	if demo {
		plan = flightplan.DemoAscent()
	}
	if err := plan.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "flightplan-creator: %v\n", err)
		os.Exit(1)
	}

	if err := flightplan.SaveFile(output, plan); err != nil {
		fmt.Fprintf(os.Stderr, "flightplan-creator: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %d-step flight plan to %s\n", plan.StepCount, output)
}
