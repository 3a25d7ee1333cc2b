// Package slot реализует канонический формат временного слота "DD/MM/YY/HH/MM".
//
// Поля слота задают местное время отделения. Слоты сравниваются по полям
// и переводятся в time.Time только при известном часовом поясе.
package slot

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mmeshcher/branchqueue/internal/model"
)

// Сетка бронирования на день.
const (
	DayStartHour = 9
	DayEndHour   = 18
	StepMinutes  = 5
)

// ErrInvalidFormat возвращается для текста, не являющегося ни слотом, ни датой.
var ErrInvalidFormat = fmt.Errorf("%w: invalid time slot format", model.ErrValidation)

// fallbackLayouts используются, если текст не в пятипольном формате.
var fallbackLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Moment задаёт слот с точностью до минуты.
type Moment struct {
	Year   int
	Month  time.Month
	Day    int
	Hour   int
	Minute int
}

// Parse разбирает слот. Пятипольный формат основной, остальные строки
// разбираются по общим форматам дат.
func Parse(text string) (Moment, error) {
	text = strings.TrimSpace(text)

	if parts := strings.Split(text, "/"); len(parts) == 5 {
		return parseFields(parts)
	}

	for _, layout := range fallbackLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return FromTime(t), nil
		}
	}

	return Moment{}, ErrInvalidFormat
}

func parseFields(parts []string) (Moment, error) {
	var v [5]int
	for i, p := range parts {
		if p == "" || len(p) > 2 {
			return Moment{}, ErrInvalidFormat
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return Moment{}, ErrInvalidFormat
		}
		v[i] = n
	}

	m := Moment{
		Day:    v[0],
		Month:  time.Month(v[1]),
		Year:   2000 + v[2],
		Hour:   v[3],
		Minute: v[4],
	}
	if !m.valid() {
		return Moment{}, ErrInvalidFormat
	}
	return m, nil
}

func (m Moment) valid() bool {
	if m.Month < time.January || m.Month > time.December {
		return false
	}
	if m.Hour > 23 || m.Minute > 59 || m.Day < 1 {
		return false
	}
	// отклоняет 31/04 и 29/02 в невисокосные годы
	t := time.Date(m.Year, m.Month, m.Day, 0, 0, 0, 0, time.UTC)
	return t.Day() == m.Day && t.Month() == m.Month
}

// Format кодирует момент в формате "DD/MM/YY/HH/MM".
func Format(m Moment) string {
	return fmt.Sprintf("%02d/%02d/%02d/%02d/%02d", m.Day, int(m.Month), m.Year%100, m.Hour, m.Minute)
}

// String реализует fmt.Stringer.
func (m Moment) String() string {
	return Format(m)
}

// Display возвращает момент в виде для сообщений клиенту: "HH:MM on DD/MM/YYYY".
func (m Moment) Display() string {
	return fmt.Sprintf("%02d:%02d on %02d/%02d/%d", m.Hour, m.Minute, m.Day, int(m.Month), m.Year)
}

// DayPrefix возвращает день момента в формате "DD/MM/YY".
func DayPrefix(m Moment) string {
	return fmt.Sprintf("%02d/%02d/%02d", m.Day, int(m.Month), m.Year%100)
}

// FromTime берёт поля местного времени t с точностью до минуты.
func FromTime(t time.Time) Moment {
	return Moment{
		Year:   t.Year(),
		Month:  t.Month(),
		Day:    t.Day(),
		Hour:   t.Hour(),
		Minute: t.Minute(),
	}
}

// Time переводит момент в часовой пояс loc.
func (m Moment) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.Date(m.Year, m.Month, m.Day, m.Hour, m.Minute, 0, 0, loc)
}

// Date возвращает полночь того же дня.
func (m Moment) Date() Moment {
	return Moment{Year: m.Year, Month: m.Month, Day: m.Day}
}

// Compare возвращает -1, 0 или +1 в зависимости от порядка a и b.
func Compare(a, b Moment) int {
	ka, kb := a.key(), b.key()
	switch {
	case ka < kb:
		return -1
	case ka > kb:
		return 1
	}
	return 0
}

// Before сообщает, что m раньше other.
func (m Moment) Before(other Moment) bool {
	return Compare(m, other) < 0
}

func (m Moment) key() int64 {
	return int64(m.Year)*100000000 + int64(m.Month)*1000000 + int64(m.Day)*10000 + int64(m.Hour)*100 + int64(m.Minute)
}

// EnumerateDay перечисляет слоты дня в [startHour, endHour) с шагом step.
func EnumerateDay(day Moment, startHour, endHour, stepMinutes int) []Moment {
	if stepMinutes <= 0 || endHour <= startHour {
		return nil
	}

	res := make([]Moment, 0, (endHour-startHour)*60/stepMinutes)
	for minutes := startHour * 60; minutes < endHour*60; minutes += stepMinutes {
		m := day.Date()
		m.Hour = minutes / 60
		m.Minute = minutes % 60
		res = append(res, m)
	}
	return res
}

// BookableDay вызывает EnumerateDay для стандартной сетки 09:00-18:00.
func BookableDay(day Moment) []Moment {
	return EnumerateDay(day, DayStartHour, DayEndHour, StepMinutes)
}

// ParseDate разбирает дату "YYYY-MM-DD" в полночь этого дня.
func ParseDate(text string) (Moment, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(text))
	if err != nil {
		return Moment{}, ErrInvalidFormat
	}
	return FromTime(t), nil
}
