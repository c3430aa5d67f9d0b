// Command cucumber is an example CLI wiring the spec §6.4 flag surface
// into the cucumber package's RunOptions. It registers a small set of
// illustrative steps so the binary is runnable on its own; a real suite
// vendors this main() and swaps in its own Given/When/Then registrations
// and World, following the same cobra-based flag translation: flags bound
// at construction, a RunE that builds the domain call from the
// parsed flag values.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/bddrunner/cucumber/cucumber"
)

var (
	concurrency    int
	failFast       bool
	retry          uint
	retryAfter     time.Duration
	retryTagFilter string
	colorPolicy    string
	verbosity      int
	failOnSkipped  bool
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "cucumber [feature-directories...]",
		Short:         "Run Cucumber/Gherkin feature files",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MinimumNArgs(1),
		RunE:          runCucumber,
	}

	flags := cmd.Flags()
	flags.IntVarP(&concurrency, "concurrency", "c", cucumberDefaultConcurrency, "max concurrent scenarios (0 = serial)")
	flags.BoolVar(&failFast, "fail-fast", false, "stop scheduling after the first non-retried failure")
	flags.UintVar(&retry, "retry", 0, "default retry count for scenarios matching --retry-tag-filter")
	flags.DurationVar(&retryAfter, "retry-after", 0, "default retry delay (e.g. 300ms, 2s, 1m5s)")
	flags.StringVar(&retryTagFilter, "retry-tag-filter", "", "tag expression gating which scenarios receive the CLI retry defaults")
	flags.StringVar(&colorPolicy, "color", "auto", "coloring policy for textual writers: auto|always|never")
	flags.CountVarP(&verbosity, "verbose", "v", "increase verbosity (-v, -vv, -vvv)")
	flags.BoolVar(&failOnSkipped, "fail-on-skipped", false, "treat an unmatched step as a failure instead of a skip")

	return cmd
}

// cucumberDefaultConcurrency mirrors scheduler.DefaultConcurrency without
// importing the scheduler package here, keeping this command's dependency
// surface limited to the cucumber package's public API.
const cucumberDefaultConcurrency = 64

func runCucumber(cmd *cobra.Command, args []string) error {
	suite := exampleSuite()
	// A real suite would build its own code-level RunOptions here and merge
	// it with the CLI one via cucumber.MergeRunOptions(code, cli), passing
	// cli last so its flags always win over any code-level defaults. This
	// example has no code-level defaults to merge against, so the flags
	// apply directly.
	return suite.Run(cmd.Context(), args,
		cucumber.WithConcurrency(concurrency),
		cucumber.WithFailFast(failFast),
		cucumber.WithRetry(retry),
		cucumber.WithRetryAfter(retryAfter),
		cucumber.WithRetryTagFilter(retryTagFilter),
		cucumber.WithColor(colorPolicy),
		cucumber.WithVerbosity(verbosity),
		cucumber.WithFailOnSkipped(failOnSkipped),
	)
}

// exampleSuite registers a minimal step vocabulary so the binary has
// something to run out of the box. A real consumer replaces this with its
// own Given/When/Then registrations.
func exampleSuite() *cucumber.Cucumber {
	c := cucumber.New()
	c.Given("a precondition", func() {})
	c.When("an action happens", func() {})
	c.Then("an outcome is observed", func() {})
	c.Then("the count is {int}", func(n int) {
		fmt.Printf("observed count: %d\n", n)
	})
	return c
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
