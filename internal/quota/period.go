/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package quota

import (
	"time"

	"github.com/blnkfinance/namecard/model"
)

// PeriodStart returns the start of the quota period containing now, in
// now's location. Weekly resetDay is a weekday (0 = Sunday); monthly
// resetDay is clamped to 1-28; daily ignores it.
func PeriodStart(now time.Time, cadence model.Cadence, resetDay int) time.Time {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch cadence {
	case model.CadenceWeekly:
		day := clamp(resetDay, 0, 6)
		back := (int(now.Weekday()) - day + 7) % 7
		return midnight.AddDate(0, 0, -back)
	case model.CadenceMonthly:
		day := clamp(resetDay, 1, model.MaxMonthlyResetDay)
		start := time.Date(now.Year(), now.Month(), day, 0, 0, 0, 0, now.Location())
		if now.Before(start) {
			start = start.AddDate(0, -1, 0)
		}
		return start
	default:
		return midnight
	}
}

// NextReset returns the end of the period containing now.
func NextReset(now time.Time, cadence model.Cadence, resetDay int) time.Time {
	start := PeriodStart(now, cadence, resetDay)
	switch cadence {
	case model.CadenceWeekly:
		return start.AddDate(0, 0, 7)
	case model.CadenceMonthly:
		return start.AddDate(0, 1, 0)
	default:
		return start.AddDate(0, 0, 1)
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
