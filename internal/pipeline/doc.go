// Package pipeline assembles the router and its consumers from configuration.
//
// It registers one sink driver per consumers.sinks entry and, when enabled,
// the live aggregator, then runs them together:
//
//	p, err := pipeline.New(pipeline.Deps{Config: cfg, Writers: writers, Logger: log})
//	if err != nil {
//	    return err
//	}
//	go p.Run(ctx)
//	api.New(api.Deps{Publisher: p.Router(), State: p.Live(), ...})
//
// A consumer that fails (retries exhausted, forced disconnection) is logged
// and removed. Run keeps serving the remaining consumers and returns only
// when ctx is cancelled.
package pipeline
