/*
Package runner replays scripts of fact changes against a session.

A Script is a list of steps: entering flows, setting and retracting facts,
and checking expectations about active nodes and derived values. The Runner
executes the steps in order and reports each result through a Reporter, as
human-readable text or JSON lines.

# Usage

	r := runner.New(runner.WithReporter(runner.NewTextReporter(os.Stdout)))
	summary, err := r.Run(ctx, session, script)
	if err != nil {
		log.Fatal(err)
	}
	if summary.Failed > 0 {
		os.Exit(1)
	}
*/
package runner
