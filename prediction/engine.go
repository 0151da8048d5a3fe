package prediction

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"race-prediction-api/models"
)

// Critical velocity is expressed in km per second; these bounds bracket the
// physiologically plausible range (~13.9 min/km down to ~3.0 min/km).
const (
	cvMin = 0.0008
	cvMax = 0.0055
)

// Engine produces race-time projections by blending a per-user critical
// velocity profile, a cohort similarity signal and a globally trained Riegel
// exponent, in that order of preference.
type Engine struct {
	meta *Meta
	now  func() time.Time
}

func NewEngine(meta *Meta) *Engine {
	return &Engine{meta: meta, now: time.Now}
}

type tsbInfo struct {
	ATL               float64
	CTL               float64
	TSB               float64
	ReadinessModifier float64
}

type cvProfile struct {
	cv            *float64
	dPrime        float64
	r2            *float64
	distanceCount int
	stable        bool
}

// Predict computes a single-mode projection. The race_day mode simulates a
// taper on top of the current-fitness critical velocity; it never improves the
// projection by more than 3% over current fitness.
func (e *Engine) Predict(req Request) Response {
	now := e.now().UTC()
	profile := structuralCV(req.UserHistory, now)
	tsb := computeTSB(req.UserHistory, now)
	currentFactor := clamp(tsb.ReadinessModifier, 0.97, 1.03)

	var (
		times      models.RaceTimes
		source     models.ModelSource
		modeFactor = 1.0
	)

	baseCV := profile.cv
	if baseCV != nil {
		source = models.SourcePersonalized
	} else if cohortCV := topSimilarCV(req, req.CohortHistory, 14); cohortCV != nil {
		trigger := clipCV(req.DistanceKM / math.Max(req.DurationSeconds, 1e-6))
		blended := clipCV(0.6**cohortCV + 0.4*trigger)
		baseCV = &blended
		source = models.SourceCohortBlend
	}

	if baseCV != nil {
		currentCV := clipCV(*baseCV * currentFactor)
		selectedCV := currentCV
		modeFactor = currentFactor

		if req.Mode == ModeRaceDay {
			taper := clamp(simulateRaceDayTaper(tsb), 1.0, 1.03)
			raceDayCV := clipCV(*baseCV * taper)
			selectedCV = math.Min(raceDayCV, currentCV*1.03)
			modeFactor = selectedCV / math.Max(*baseCV, 1e-6)
		}

		times = projectCurveFromCV(selectedCV, profile.dPrime)
	} else {
		source = models.SourceGlobal
		baseTime, baseDist := req.DurationSeconds, req.DistanceKM
		if latest := latestValidRun(req.UserHistory); latest != nil {
			baseTime, baseDist = latest.DurationSeconds, latest.DistanceKM
		}

		exponent := e.meta.Exponent()
		if personal, count := personalizedExponent(req.UserHistory); personal != nil && count >= 2 {
			exponent = *personal
		}
		times = riegelCurve(baseTime, baseDist, exponent)
	}

	times = enforceGuarantees(times)
	allowBreakthrough := req.Mode == ModeRaceDay && tsb.TSB > 0
	times = applyRecentPBFloor(times, req.UserHistory, now, allowBreakthrough)
	times = enforceGuarantees(times)

	// A tapered projection may not fall behind 97% of current fitness.
	if req.Mode == ModeRaceDay && baseCV != nil {
		current := enforceGuarantees(projectCurveFromCV(clipCV(*baseCV*currentFactor), profile.dPrime))
		times = floorAgainst(times, current, 0.97)
	}

	return Response{
		PredictedMarathonTime:     times.Marathon,
		PredictedTimes:            times,
		PredictionStd:             predictionStd(req.UserHistory, req.CohortHistory, profile.r2, times),
		ReadinessAdjustmentFactor: roundTo(modeFactor, 3),
		Confidence:                roundTo(confidence(len(req.UserHistory), profile.distanceCount, profile.r2, profile.stable), 3),
		ModelSource:               source,
		ModelVersion:              e.meta.Version(),
	}
}

func cvFromSample(s RunSample) float64 {
	return s.DistanceKM / math.Max(s.DurationSeconds, 1e-6)
}

func clipCV(cv float64) float64 {
	return clamp(cv, cvMin, cvMax)
}

func validSample(s RunSample) bool {
	return s.DistanceKM > 0 && s.DurationSeconds > 0
}

func raceDistanceList() []float64 {
	return []float64{DistFiveK, DistTenK, DistHalfMarathon, DistTwentyFiveK, DistMarathon}
}

func isRecentRaceEffort(run RunSample, now time.Time, recencyDays int) bool {
	if run.Date == nil || int(now.Sub(run.Date.UTC()).Hours()/24) > recencyDays {
		return false
	}
	for _, d := range raceDistanceList() {
		if math.Abs(run.DistanceKM-d) <= math.Max(0.6, d*0.05) {
			return true
		}
	}
	return false
}

func bestImpliedCV(history []RunSample, now time.Time, recencyDays int, raceOnly bool) *float64 {
	var best *float64
	for _, run := range history {
		if !validSample(run) || run.Date == nil {
			continue
		}
		if int(now.Sub(run.Date.UTC()).Hours()/24) > recencyDays {
			continue
		}
		if raceOnly && !isRecentRaceEffort(run, now, recencyDays) {
			continue
		}
		cv := cvFromSample(run)
		if best == nil || cv > *best {
			value := cv
			best = &value
		}
	}
	if best == nil {
		return nil
	}
	clipped := clipCV(*best)
	return &clipped
}

// structuralCV fits a critical-velocity line (distance on duration) over the
// last 90 days, weighting recent runs more, then caps it with the best recent
// race-implied CV so the fit cannot outrun demonstrated performances.
func structuralCV(history []RunSample, now time.Time) cvProfile {
	var recent []RunSample
	for _, run := range history {
		if !validSample(run) || run.Date == nil {
			continue
		}
		if int(now.Sub(run.Date.UTC()).Hours()/24) <= 90 {
			recent = append(recent, run)
		}
	}
	if len(recent) == 0 {
		return cvProfile{}
	}

	distinct := map[float64]RunSample{}
	for _, run := range recent {
		key := roundTo(run.DistanceKM, 2)
		if existing, ok := distinct[key]; !ok || run.DurationSeconds < existing.DurationSeconds {
			distinct[key] = run
		}
	}
	distanceCount := len(distinct)
	bestRace60 := bestImpliedCV(recent, now, 60, true)

	if distanceCount < 3 {
		if bestRace60 == nil {
			return cvProfile{distanceCount: distanceCount}
		}
		cv := clipCV(*bestRace60)
		return cvProfile{cv: &cv, distanceCount: distanceCount, stable: true}
	}

	times := make([]float64, len(recent))
	distances := make([]float64, len(recent))
	weights := make([]float64, len(recent))
	for i, run := range recent {
		times[i] = run.DurationSeconds
		distances[i] = run.DistanceKM
		ageDays := math.Max(0, now.Sub(run.Date.UTC()).Hours()/24)
		weights[i] = clamp(math.Pow(0.5, ageDays/21.0), 0.05, 1.0)
	}

	intercept, slope, ok := huberFit(times, distances, weights)
	if !ok || slope <= 0 {
		return cvProfile{distanceCount: distanceCount}
	}

	predicted := make([]float64, len(times))
	for i, t := range times {
		predicted[i] = intercept + slope*t
	}
	r2 := weightedR2(distances, predicted, weights)

	cv := clipCV(slope)
	if bestRace60 != nil {
		cv = math.Min(cv, clipCV(*bestRace60*1.02))
	}

	return cvProfile{
		cv:            &cv,
		dPrime:        math.Max(0, intercept),
		r2:            r2,
		distanceCount: distanceCount,
		stable:        true,
	}
}

func sampleTrainingLoad(run RunSample) float64 {
	durationMinutes := run.DurationSeconds / 60
	grade := run.ElevationGain / math.Max(run.DistanceKM, 0.1)
	intensity := clamp(1+grade/800, 0.85, 1.3)
	return durationMinutes * intensity
}

// computeTSB rolls acute (7-day) and chronic (42-day) training loads over the
// dated history and maps the balance onto a readiness modifier.
func computeTSB(history []RunSample, now time.Time) tsbInfo {
	dailyLoad := map[time.Time]float64{}
	for _, run := range history {
		if run.Date == nil {
			continue
		}
		day := run.Date.UTC().Truncate(24 * time.Hour)
		dailyLoad[day] += sampleTrainingLoad(run)
	}
	if len(dailyLoad) == 0 {
		return tsbInfo{ReadinessModifier: 1.0}
	}

	var first, last time.Time
	for day := range dailyLoad {
		if first.IsZero() || day.Before(first) {
			first = day
		}
		if day.After(last) {
			last = day
		}
	}

	atlDecay := math.Exp(-1.0 / 7)
	ctlDecay := math.Exp(-1.0 / 42)
	var atl, ctl float64
	for day := first; !day.After(last); day = day.Add(24 * time.Hour) {
		load := dailyLoad[day]
		atl = atl*atlDecay + load*(1-atlDecay)
		ctl = ctl*ctlDecay + load*(1-ctlDecay)
	}

	tsb := ctl - atl
	readiness := 1.0
	switch {
	case tsb < -15:
		readiness = clamp(1-(math.Abs(tsb)-15)*0.004, 0.95, 1.0)
	case tsb > 5:
		readiness = clamp(1+(tsb-5)*0.002, 1.0, 1.04)
	}
	readiness = clamp(readiness, 0.97, 1.03)

	return tsbInfo{ATL: atl, CTL: ctl, TSB: tsb, ReadinessModifier: readiness}
}

// simulateRaceDayTaper returns the race-day CV modifier implied by shedding
// acute fatigue while holding chronic fitness.
func simulateRaceDayTaper(t tsbInfo) float64 {
	reduction := 0.4
	if t.ATL > math.Max(t.CTL, 1.0) {
		reduction = 0.5
	} else if t.ATL < math.Max(0.5*t.CTL, 1.0) {
		reduction = 0.3
	}

	taperedATL := math.Max(0, t.ATL*(1-reduction))
	simulatedTSB := clamp(t.CTL-taperedATL, 5.0, 15.0)
	return clamp(1.01+((simulatedTSB-5.0)/10.0)*0.03, 1.01, 1.04)
}

func riegelProject(baseTimeSeconds, baseDistanceKM, targetDistanceKM, exponent float64) float64 {
	return baseTimeSeconds * math.Pow(targetDistanceKM/math.Max(baseDistanceKM, 0.1), exponent)
}

func riegelCurve(baseTime, baseDist, exponent float64) models.RaceTimes {
	project := func(d float64) float64 {
		return roundTo(math.Max(300, riegelProject(baseTime, baseDist, d, exponent)), 2)
	}
	return models.RaceTimes{
		FiveK:        project(DistFiveK),
		TenK:         project(DistTenK),
		HalfMarathon: project(DistHalfMarathon),
		TwentyFiveK:  project(DistTwentyFiveK),
		Marathon:     project(DistMarathon),
	}
}

// personalizedExponent fits a log-log endurance curve over the user's best
// efforts per distance.
func personalizedExponent(history []RunSample) (*float64, int) {
	distinct := map[float64]RunSample{}
	for _, run := range history {
		if !validSample(run) {
			continue
		}
		key := roundTo(run.DistanceKM, 2)
		if existing, ok := distinct[key]; !ok || run.DurationSeconds < existing.DurationSeconds {
			distinct[key] = run
		}
	}
	if len(distinct) < 2 {
		return nil, len(distinct)
	}

	logD := make([]float64, 0, len(distinct))
	logT := make([]float64, 0, len(distinct))
	for _, run := range distinct {
		logD = append(logD, math.Log(run.DistanceKM))
		logT = append(logT, math.Log(run.DurationSeconds))
	}

	_, slope := stat.LinearRegression(logD, logT, nil, false)
	if math.IsNaN(slope) || math.IsInf(slope, 0) {
		return nil, len(distinct)
	}
	exponent := math.Max(1.0, slope)
	return &exponent, len(distinct)
}

// projectCurveFromCV resolves the short distances directly from the CV model
// (with an anaerobic distance credit below the half marathon) and extends to
// the long distances with a Riegel projection off the 10K.
func projectCurveFromCV(cv, dPrime float64) models.RaceTimes {
	safeCV := clipCV(cv)
	shortTime := func(distanceKM float64) float64 {
		if dPrime > 0 {
			return math.Max(300, math.Max(distanceKM-dPrime, 1e-6)/safeCV)
		}
		return math.Max(300, distanceKM/safeCV)
	}

	fiveK := shortTime(DistFiveK)
	tenK := shortTime(DistTenK)
	return models.RaceTimes{
		FiveK:        roundTo(fiveK, 2),
		TenK:         roundTo(tenK, 2),
		HalfMarathon: roundTo(riegelProject(tenK, DistTenK, DistHalfMarathon, 1.06), 2),
		TwentyFiveK:  roundTo(riegelProject(tenK, DistTenK, DistTwentyFiveK, 1.06), 2),
		Marathon:     roundTo(riegelProject(tenK, DistTenK, DistMarathon, 1.06), 2),
	}
}

func timesToSlice(t models.RaceTimes) [5]float64 {
	return [5]float64{t.FiveK, t.TenK, t.HalfMarathon, t.TwentyFiveK, t.Marathon}
}

func timesFromSlice(v [5]float64) models.RaceTimes {
	return models.RaceTimes{FiveK: v[0], TenK: v[1], HalfMarathon: v[2], TwentyFiveK: v[3], Marathon: v[4]}
}

// enforcePaceMonotonicity guarantees per-km pace never gets faster as the
// distance grows.
func enforcePaceMonotonicity(times models.RaceTimes) models.RaceTimes {
	values := timesToSlice(times)
	dists := raceDistanceList()

	lastPace := math.Inf(-1)
	for i := range values {
		pace := values[i] / dists[i]
		if pace < lastPace {
			minTime := lastPace * dists[i]
			values[i] = roundTo(minTime, 2)
			if values[i]/dists[i] < lastPace {
				values[i] = roundTo(minTime+0.01, 2)
			}
		}
		lastPace = values[i] / dists[i]
	}
	return timesFromSlice(values)
}

func enforceGuarantees(times models.RaceTimes) models.RaceTimes {
	times.TenK = roundTo(math.Max(times.TenK, times.FiveK*1.95), 2)
	times.HalfMarathon = roundTo(math.Max(times.HalfMarathon, times.TenK*2.0), 2)
	times.Marathon = roundTo(math.Max(times.Marathon, times.HalfMarathon*2.02), 2)
	return enforcePaceMonotonicity(times)
}

func recentDistancePB(history []RunSample, now time.Time, targetKM float64, recencyDays int, tolerance float64) *float64 {
	var best *float64
	for _, run := range history {
		if run.Date == nil || math.Abs(run.DistanceKM-targetKM) > tolerance {
			continue
		}
		if int(now.Sub(run.Date.UTC()).Hours()/24) > recencyDays {
			continue
		}
		if best == nil || run.DurationSeconds < *best {
			value := run.DurationSeconds
			best = &value
		}
	}
	return best
}

func recentRaceSupport(history []RunSample, now time.Time, distanceKM, predictedTime float64) bool {
	candidateCV := distanceKM / math.Max(predictedTime, 1e-6)
	for _, run := range history {
		if run.Date == nil || int(now.Sub(run.Date.UTC()).Hours()/24) > 60 {
			continue
		}
		if !isRecentRaceEffort(run, now, 60) {
			continue
		}
		if cvFromSample(run) >= candidateCV*0.99 {
			return true
		}
	}
	return false
}

// applyRecentPBFloor keeps projections from undercutting 98% of a distance PB
// set in the last year, unless a recent race effort (or a positive race-day
// balance) supports the breakthrough.
func applyRecentPBFloor(times models.RaceTimes, history []RunSample, now time.Time, allowBreakthrough bool) models.RaceTimes {
	values := timesToSlice(times)
	dists := raceDistanceList()

	for i := range values {
		pb := recentDistancePB(history, now, dists[i], 365, 1.0)
		if pb == nil {
			continue
		}
		floor := 0.98 * *pb
		if values[i] < floor && !(allowBreakthrough || recentRaceSupport(history, now, dists[i], values[i])) {
			values[i] = roundTo(floor, 2)
		}
	}
	return timesFromSlice(values)
}

func floorAgainst(times, reference models.RaceTimes, factor float64) models.RaceTimes {
	values := timesToSlice(times)
	refs := timesToSlice(reference)
	for i := range values {
		values[i] = roundTo(math.Max(values[i], refs[i]*factor), 2)
	}
	return timesFromSlice(values)
}

// topSimilarCV weights the cohort's implied CVs by similarity to the trigger
// run in scaled (distance, duration, pace, elevation) space, keeping the top k.
func topSimilarCV(req Request, cohort []RunSample, k int) *float64 {
	if len(cohort) == 0 {
		return nil
	}

	target := []float64{req.DistanceKM, req.DurationSeconds, req.AvgPace, req.ElevationGain}
	scales := []float64{12.0, 4800.0, 1.6, 260.0}
	scaledTarget := make([]float64, len(target))
	for i := range target {
		scaledTarget[i] = target[i] / scales[i]
	}

	type candidate struct {
		similarity float64
		cv         float64
	}
	candidates := make([]candidate, 0, len(cohort))
	scaled := make([]float64, len(target))
	for _, run := range cohort {
		if !validSample(run) {
			continue
		}
		vector := []float64{run.DistanceKM, run.DurationSeconds, run.AvgPace, run.ElevationGain}
		for i := range vector {
			scaled[i] = vector[i] / scales[i]
		}
		distance := floats.Distance(scaledTarget, scaled, 2)
		candidates = append(candidates, candidate{similarity: 1 / (1 + distance), cv: cvFromSample(run)})
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].similarity > candidates[j].similarity })
	if len(candidates) > k {
		candidates = candidates[:k]
	}

	var total, weighted float64
	for _, c := range candidates {
		total += c.similarity
		weighted += c.similarity * c.cv
	}
	if total <= 0 {
		return nil
	}
	result := weighted / total
	return &result
}

func predictionStd(userHistory, cohortHistory []RunSample, r2 *float64, times models.RaceTimes) models.RaceTimes {
	paceVariability := 0.18
	if len(userHistory) >= 2 {
		paces := make([]float64, len(userHistory))
		for i, run := range userHistory {
			paces[i] = run.AvgPace
		}
		if mean := stat.Mean(paces, nil); mean > 0 {
			paceVariability = stat.PopStdDev(paces, nil) / mean
		}
	}

	regressionUncertainty := 0.2
	if r2 != nil && !math.IsNaN(*r2) && !math.IsInf(*r2, 0) {
		regressionUncertainty = clamp(1-math.Max(0, *r2), 0.05, 0.5)
	}

	cohortDispersion := 0.12
	if len(cohortHistory) >= 2 {
		cvs := make([]float64, len(cohortHistory))
		for i, run := range cohortHistory {
			cvs[i] = cvFromSample(run)
		}
		if mean := stat.Mean(cvs, nil); mean > 0 {
			cohortDispersion = stat.PopStdDev(cvs, nil) / mean
		}
	}

	sparsePenalty := 1 / math.Sqrt(math.Max(1, float64(len(userHistory))))
	relativeStd := clamp(
		0.22*regressionUncertainty+0.36*paceVariability+0.22*cohortDispersion+0.2*sparsePenalty,
		0.03, 0.30,
	)

	values := timesToSlice(times)
	for i, v := range values {
		values[i] = roundTo(clamp(v*relativeStd, v*0.03, v*0.30), 2)
	}
	return timesFromSlice(values)
}

func confidence(historyLen, distanceCount int, r2 *float64, stable bool) float64 {
	richness := math.Min(0.45, float64(historyLen)*0.03)
	distanceRichness := math.Min(0.2, float64(distanceCount)*0.05)
	r2Term := 0.0
	if r2 != nil && !math.IsNaN(*r2) && !math.IsInf(*r2, 0) {
		r2Term = math.Min(0.2, math.Max(0, *r2)*0.2)
	}

	conf := 0.3 + richness + distanceRichness + r2Term
	if !stable {
		conf -= 0.08
	}
	return clamp(conf, 0.3, 0.95)
}

func latestValidRun(history []RunSample) *RunSample {
	var latest *RunSample
	var latestDate time.Time
	for i := range history {
		run := history[i]
		if !validSample(run) {
			continue
		}
		var date time.Time
		if run.Date != nil {
			date = run.Date.UTC()
		}
		if latest == nil || date.After(latestDate) {
			latest = &history[i]
			latestDate = date
		}
	}
	return latest
}
