package command

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"cgcheck/cgroup"
	"cgcheck/check"
	"cgcheck/executor"
)

const usage = `Check whether cgroups are available and usable for resource-limited
benchmarking: runs a short-lived probe process under memory and cpuset limits
and fails if some other program moved it out of its benchmark cgroups.`

// NewApp builds the cli application for the standalone checker.
func NewApp() *cli.App {
	app := cli.NewApp()
	app.Name = "cgcheck"
	app.Usage = usage
	app.Flags = []cli.Flag{
		cli.IntFlag{
			Name:  "wait",
			Value: 1,
			Usage: "`SECONDS` to wait so no daemon interferes with cgroups unnoticed in the meantime",
		},
		cli.BoolFlag{
			Name:  "no-thread",
			Usage: "run the check on the calling thread instead of a separate one (cgrulesengd behaves differently per thread)",
		},
		cli.BoolFlag{
			Name:  "require-freezer",
			Usage: "fail when the freezer subsystem is missing or its placement cannot be verified",
		},
	}
	app.Before = func(*cli.Context) error {
		log.SetFormatter(&log.TextFormatter{DisableTimestamp: true})
		log.SetOutput(os.Stderr)
		return nil
	}
	app.Action = runCheck
	return app
}

func runCheck(ctx *cli.Context) error {
	wait := ctx.Int("wait")
	if wait < 0 {
		return fmt.Errorf("--wait must be non-negative, got %d", wait)
	}

	provider, err := cgroup.NewProvider()
	if err != nil {
		return fmt.Errorf("inspect cgroups: %w", err)
	}
	snap, err := provider.CurrentSnapshot()
	if err != nil {
		return err
	}

	checker := check.New(provider, executor.New(snap), check.Config{
		Wait:           wait,
		RequireFreezer: ctx.Bool("require-freezer"),
	})

	var outcome check.Outcome
	if ctx.Bool("no-thread") {
		outcome, err = checker.Run()
	} else {
		outcome, err = check.RunInThread(checker)
	}
	if err != nil {
		return err
	}

	// The exit-code decision lives here and only here.
	switch outcome.Kind {
	case check.OutcomePassed:
		log.Info("cgroups are usable, probe stayed in its benchmark cgroups")
		return nil
	case check.OutcomeUnusable:
		return fmt.Errorf("cgroups unusable: required subsystems missing: %v", outcome.Missing)
	default:
		return fmt.Errorf("cgroup placement deviated for %d subsystem(s)", len(outcome.Deviations))
	}
}
