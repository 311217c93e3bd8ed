/*
Package schedule provides cron-driven bandwidth plans for stream
limiters.

A Planner holds named plans, each binding cron expressions to refill
rates for one target. When a rule fires, the planner calls SetRate on
the target; stream.Reader and stream.Writer apply the new rate on their
owner's next call.

	planner := schedule.New()
	planner.Add("nightly-backup", writer,
		schedule.Rule{Spec: "0 0 23 * * *", Rate: 50 * 1024 * 1024}, // off-peak
		schedule.Rule{Spec: "0 0 7 * * *", Rate: 5 * 1024 * 1024},   // business hours
	)
	planner.Start()
	defer planner.Stop()

Cron expressions use six fields with a leading seconds field, plus the
usual descriptors (@daily, @hourly, @every 10m).
*/
package schedule
