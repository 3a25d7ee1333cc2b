// Package assignment распределяет ожидающие записи по открытым окнам.
//
// Результат вычисляется по запросу. Assign не изменяет входные данные.
package assignment

import (
	"sort"

	"github.com/mmeshcher/branchqueue/internal/model"
	"github.com/mmeshcher/branchqueue/internal/slot"
)

// Result сопоставляет номерам окон их очереди и перечисляет нераспределённые записи.
type Result struct {
	// Windows содержит запись, возможно пустую, для каждого открытого окна.
	// При NoCapacity все очереди пустые.
	Windows map[int][]model.Appointment `json:"windows"`
	// Unassignable группирует записи, тип услуги которых не обслуживает ни одно окно.
	Unassignable map[string][]model.Appointment `json:"unassignable,omitempty"`
	// Unroutable содержит записи без типа услуги или с некорректным слотом.
	Unroutable []model.Appointment `json:"unroutable,omitempty"`
	// NoCapacity выставляется, когда нет ни одного активного или обслуживающего окна.
	NoCapacity bool `json:"noCapacity"`
}

type queued struct {
	appt   model.Appointment
	moment slot.Moment
	seq    int
}

// Assign вычисляет порядок обслуживания записей по окнам.
func Assign(appointments []model.Appointment, windows []model.Window) Result {
	res := Result{
		Windows:      make(map[int][]model.Appointment),
		Unassignable: make(map[string][]model.Appointment),
	}

	open := make([]model.Window, 0, len(windows))
	for _, w := range windows {
		if w.Status.Open() {
			open = append(open, w)
		}
	}
	sort.SliceStable(open, func(i, j int) bool { return open[i].Number < open[j].Number })

	if len(open) == 0 {
		for _, w := range windows {
			res.Windows[w.Number] = []model.Appointment{}
		}
		res.NoCapacity = true
		return res
	}

	capable := make(map[string][]int)
	for _, w := range open {
		res.Windows[w.Number] = []model.Appointment{}
		seen := make(map[string]struct{}, len(w.DealTypes))
		for _, dt := range w.DealTypes {
			if _, dup := seen[dt]; dup {
				continue
			}
			seen[dt] = struct{}{}
			capable[dt] = append(capable[dt], w.Number)
		}
	}

	demand := make(map[string][]queued)
	for i, a := range appointments {
		if a.Service.Type == "" {
			res.Unroutable = append(res.Unroutable, a)
			continue
		}
		m, err := slot.Parse(a.TimeSlot)
		if err != nil {
			res.Unroutable = append(res.Unroutable, a)
			continue
		}
		demand[a.Service.Type] = append(demand[a.Service.Type], queued{appt: a, moment: m, seq: i})
	}

	types := make([]string, 0, len(demand))
	for dt := range demand {
		types = append(types, dt)
	}
	sort.Strings(types)

	buckets := make(map[int][]queued, len(open))
	for _, dt := range types {
		group := demand[dt]
		targets := capable[dt]
		if len(targets) == 0 {
			for _, q := range group {
				res.Unassignable[dt] = append(res.Unassignable[dt], q.appt)
			}
			continue
		}

		sort.SliceStable(group, func(i, j int) bool {
			return group[i].moment.Before(group[j].moment)
		})

		for i, q := range group {
			n := targets[i%len(targets)]
			buckets[n] = append(buckets[n], q)
		}
	}

	// окно с несколькими типами услуг сливает их очереди по времени
	for n, bucket := range buckets {
		sort.SliceStable(bucket, func(i, j int) bool {
			if c := slot.Compare(bucket[i].moment, bucket[j].moment); c != 0 {
				return c < 0
			}
			return bucket[i].seq < bucket[j].seq
		})
		list := make([]model.Appointment, 0, len(bucket))
		for _, q := range bucket {
			list = append(list, q.appt)
		}
		res.Windows[n] = list
	}

	return res
}

// WindowAppointments возвращает очередь одного окна. Для закрытого
// или неизвестного окна очередь пустая.
func WindowAppointments(appointments []model.Appointment, windows []model.Window, number int) []model.Appointment {
	res := Assign(appointments, windows)
	if list, ok := res.Windows[number]; ok {
		return list
	}
	return []model.Appointment{}
}
