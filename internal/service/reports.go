package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/mmeshcher/branchqueue/internal/model"
	"github.com/mmeshcher/branchqueue/internal/slot"
)

// maxReportDays ограничивает диапазон отчёта.
const maxReportDays = 366

// Периоды метрик.
const (
	PeriodDay   = "day"
	PeriodWeek  = "week"
	PeriodMonth = "month"
)

// dayPrefixes перечисляет дни диапазона [from, to] в виде префиксов слотов.
func dayPrefixes(from, to slot.Moment) []string {
	start := from.Date().Time(time.UTC)
	end := to.Date().Time(time.UTC)

	var res []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		res = append(res, slot.DayPrefix(slot.FromTime(d)))
	}
	return res
}

func percent(part, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(part) * 100 / float64(total)))
}

func average(values []int) int {
	if len(values) == 0 {
		return 0
	}
	sum := 0
	for _, v := range values {
		sum += v
	}
	return int(math.Round(float64(sum) / float64(len(values))))
}

// Reports строит отчёт отделения за диапазон дат YYYY-MM-DD.
// Пустые границы означают сегодняшний день.
func (s *Service) Reports(ctx context.Context, branchID, fromText, toText string) (*model.Report, error) {
	from, to := s.today(), s.today()
	var err error
	if fromText != "" {
		if from, err = slot.ParseDate(fromText); err != nil {
			return nil, model.Invalid("from", "expected YYYY-MM-DD")
		}
	}
	if toText != "" {
		if to, err = slot.ParseDate(toText); err != nil {
			return nil, model.Invalid("to", "expected YYYY-MM-DD")
		}
	} else if fromText != "" {
		to = from
	}
	if to.Before(from) {
		return nil, model.Invalid("to", "must not precede from")
	}

	days := dayPrefixes(from, to)
	if len(days) > maxReportDays {
		return nil, model.Invalid("to", fmt.Sprintf("range exceeds %d days", maxReportDays))
	}

	branch, err := s.repo.GetBranch(ctx, branchID)
	if err != nil {
		return nil, err
	}

	list, err := s.repo.ListAppointmentsByDays(ctx, branchID, days)
	if err != nil {
		return nil, err
	}

	r := buildReport(list, branch.Windows)
	r.From = from.Time(time.UTC).Format("2006-01-02")
	r.To = to.Time(time.UTC).Format("2006-01-02")
	return r, nil
}

type windowTally struct {
	clients, completed int
	service, wait      []int
}

func buildReport(list []model.Appointment, windows []model.Window) *model.Report {
	var (
		waits, services []int
		completed       int
		hours           = make([]int, slot.DayEndHour-slot.DayStartHour+1)
		byService       = map[string]int{}
		byWindow        = map[int]*windowTally{}
	)

	for _, a := range list {
		done := a.Status == model.StatusCompleted
		if done {
			completed++
			if a.WaitDuration != nil {
				waits = append(waits, *a.WaitDuration)
			}
			if a.ServiceDuration != nil {
				services = append(services, *a.ServiceDuration)
			}
		}

		if m, err := slot.Parse(a.TimeSlot); err == nil {
			if idx := m.Hour - slot.DayStartHour; idx >= 0 && idx < len(hours) {
				hours[idx]++
			}
		}

		serviceType := a.Service.Type
		if serviceType == "" {
			serviceType = "Unknown"
		}
		byService[serviceType]++

		if a.WindowNumber == nil {
			continue
		}
		t := byWindow[*a.WindowNumber]
		if t == nil {
			t = &windowTally{}
			byWindow[*a.WindowNumber] = t
		}
		t.clients++
		if done {
			t.completed++
			if a.ServiceDuration != nil {
				t.service = append(t.service, *a.ServiceDuration)
			}
			if a.WaitDuration != nil {
				t.wait = append(t.wait, *a.WaitDuration)
			}
		}
	}

	r := &model.Report{
		Summary: model.ReportSummary{
			TotalClients:   len(list),
			AvgWaitTime:    average(waits),
			AvgServiceTime: average(services),
			CompletionRate: percent(completed, len(list)),
		},
		Windows:             make([]model.WindowReport, 0, len(windows)),
		QueueTraffic:        make([]model.HourTraffic, 0, len(hours)),
		ServiceDistribution: make([]model.ServiceShare, 0, len(byService)),
	}

	for i, n := range hours {
		r.QueueTraffic = append(r.QueueTraffic, model.HourTraffic{Hour: slot.DayStartHour + i, Clients: n})
	}

	for name, n := range byService {
		r.ServiceDistribution = append(r.ServiceDistribution, model.ServiceShare{ServiceType: name, Count: n})
	}
	sort.Slice(r.ServiceDistribution, func(i, j int) bool {
		a, b := r.ServiceDistribution[i], r.ServiceDistribution[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.ServiceType < b.ServiceType
	})

	for _, w := range windows {
		t := byWindow[w.Number]
		if t == nil {
			t = &windowTally{}
		}
		staff := w.Staff
		if staff == "" {
			staff = "Unassigned"
		}
		r.Windows = append(r.Windows, model.WindowReport{
			Number:         w.Number,
			Staff:          staff,
			ClientsServed:  t.clients,
			AvgServiceTime: average(t.service),
			AvgWaitTime:    average(t.wait),
			CompletionRate: percent(t.completed, t.clients),
		})
	}

	return r
}

// Metrics считает статусы записей за период day, week или month, заканчивающийся сегодня.
func (s *Service) Metrics(ctx context.Context, branchID, period string) (*model.Metrics, error) {
	today := s.today()
	start := today.Time(time.UTC)

	switch period {
	case "", PeriodDay:
		period = PeriodDay
	case PeriodWeek:
		start = start.AddDate(0, 0, -7)
	case PeriodMonth:
		start = start.AddDate(0, -1, 0)
	default:
		return nil, model.Invalid("period", fmt.Sprintf("unknown period %q", period))
	}

	if _, _, err := s.repo.ReminderContext(ctx, branchID); err != nil {
		return nil, err
	}

	days := dayPrefixes(slot.FromTime(start), today)
	list, err := s.repo.ListAppointmentsByDays(ctx, branchID, days)
	if err != nil {
		return nil, err
	}

	m := &model.Metrics{
		Period:            period,
		TotalAppointments: len(list),
		ChartData:         make([]model.DayMetrics, 0, len(days)),
	}

	perDay := make(map[string]*model.DayMetrics, len(days))
	for _, d := range days {
		m.ChartData = append(m.ChartData, model.DayMetrics{Date: d})
	}
	for i := range m.ChartData {
		perDay[m.ChartData[i].Date] = &m.ChartData[i]
	}

	for _, a := range list {
		switch {
		case a.Status == model.StatusCompleted:
			m.Completed++
		case a.Status == model.StatusNoShow:
			m.NoShow++
		case a.Status == model.StatusInProgress:
			m.InProgress++
		case a.Status.Pending():
			m.Waiting++
		}

		if len(a.TimeSlot) < 8 {
			continue
		}
		day := perDay[a.TimeSlot[:8]]
		if day == nil {
			continue
		}
		day.Total++
		switch a.Status {
		case model.StatusCompleted:
			day.Completed++
		case model.StatusNoShow:
			day.NoShow++
		}
	}

	return m, nil
}
