// Package metrics aggregates completed benchmark trials.
//
// A [Collector] receives one [bench.TrialResult] per trial, either directly
// through [Collector.RecordTrial] or by being passed to [bench.Run] as an
// observer, and keeps the trial durations in an HDR histogram:
//
//	collector := metrics.NewCollector()
//	res, err := bench.Run(ctx, cfg, bench.Options{Observer: collector, ...})
//	stats := collector.Stats(res.Duration)
//
// [Stats] carries duration percentiles, total and minimum step counts, and
// the stepping throughput in steps per second. The collector is safe for
// concurrent use so the dashboard and progress reporter can read it while
// trials run.
package metrics
