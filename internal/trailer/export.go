package trailer

// Export assembles the encoder plan from jobs and the results of the pass
// that validated them. Callers must only export when AllValid(results).
func Export(jobs []Job, results []Result, p Parsed) Plan {
	plan := Plan{
		Source:    make([]string, len(jobs)),
		Target:    make([]string, len(jobs)),
		Jump:      make([]int64, len(jobs)),
		StartTime: p.Start.Int64(),
		Duration:  p.Duration.Int64(),
		NumClips:  p.NumClips.Int64(),
	}
	if p.End != nil {
		end := p.End.Int64()
		plan.EndTime = &end
	}

	for i, job := range jobs {
		plan.Source[i] = job.SourcePath
		plan.Target[i] = job.TargetPath
	}
	for _, r := range results {
		if r.Index >= 0 && r.Index < len(jobs) {
			plan.Jump[r.Index] = r.Jump
		}
	}
	return plan
}
