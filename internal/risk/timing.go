package risk

import (
	"time"

	"github.com/garyjia/claim-review/internal/domain/entity"
)

// TimingDetector flags weekend, holiday, off-hours and late submissions
type TimingDetector struct {
	cfg      TimingConfig
	holidays map[string]bool
}

// NewTimingDetector creates a timing detector. Unparseable holiday entries are ignored.
func NewTimingDetector(cfg TimingConfig) *TimingDetector {
	holidays := make(map[string]bool, len(cfg.Holidays))
	for _, h := range cfg.Holidays {
		if t, err := time.Parse(time.DateOnly, h); err == nil {
			holidays[t.Format(time.DateOnly)] = true
		}
	}
	return &TimingDetector{cfg: cfg, holidays: holidays}
}

func (d *TimingDetector) Name() string { return DetectorTiming }

func (d *TimingDetector) Detect(claim *entity.Claim, _ []entity.Claim) (Finding, error) {
	f := newFinding(DetectorTiming, d.cfg.Cap)
	submitted := claim.SubmittedAt
	if submitted.IsZero() {
		return f.result(), nil
	}

	day := submitted.Weekday()
	switch {
	case day == time.Saturday || day == time.Sunday:
		f.add(entity.AlertWeekendSubmission, entity.SeverityLow, d.cfg.WeekendWeight,
			"submitted on a %s", day)
	case d.holidays[submitted.Format(time.DateOnly)]:
		f.add(entity.AlertWeekendSubmission, entity.SeverityLow, d.cfg.WeekendWeight,
			"submitted on the holiday %s", submitted.Format(time.DateOnly))
	}

	if d.offHours(submitted.Hour()) {
		f.add(entity.AlertOffHoursSubmission, entity.SeverityLow, d.cfg.OffHoursWeight,
			"submitted at %s, outside %02d:00-%02d:00", submitted.Format("15:04"), d.cfg.OffHoursEnd, d.cfg.OffHoursStart)
	}

	if d.cfg.StaleDays > 0 && !claim.ExpenseDate.IsZero() {
		days := int(submitted.Sub(claim.ExpenseDate).Hours() / 24)
		if days > d.cfg.StaleDays {
			f.add(entity.AlertStaleExpense, entity.SeverityMedium, d.cfg.StaleWeight,
				"expense is %d days older than its submission (limit %d)", days, d.cfg.StaleDays)
		}
	}

	return f.result(), nil
}

// offHours handles windows that wrap midnight (start 22, end 6) and ones that do not
func (d *TimingDetector) offHours(hour int) bool {
	start, end := d.cfg.OffHoursStart, d.cfg.OffHoursEnd
	if start == end {
		return false
	}
	if start > end {
		return hour >= start || hour < end
	}
	return hour >= start && hour < end
}
