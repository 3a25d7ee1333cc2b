// Package model содержит доменные сущности сервиса электронной очереди.
package model

import "time"

// Типы клиентов, доступные при бронировании.
const (
	EntityIndividual = "Individual"
	EntityLegal      = "Legal Entity"
)

// EntityTypes перечисляет поддерживаемые типы клиентов в порядке отображения.
var EntityTypes = []string{EntityIndividual, EntityLegal}

// AppointmentStatus описывает этап жизненного цикла записи.
type AppointmentStatus string

const (
	StatusScheduled  AppointmentStatus = "scheduled"
	StatusWaiting    AppointmentStatus = "waiting"
	StatusCheckedIn  AppointmentStatus = "checked-in"
	StatusInProgress AppointmentStatus = "in-progress"
	StatusCompleted  AppointmentStatus = "completed"
	StatusNoShow     AppointmentStatus = "no-show"
	StatusCancelled  AppointmentStatus = "cancelled"
)

// Terminal сообщает, что дальнейшие переходы из статуса запрещены.
func (s AppointmentStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusNoShow, StatusCancelled:
		return true
	}
	return false
}

// Active сообщает, что запись всё ещё занимает свой слот.
func (s AppointmentStatus) Active() bool {
	switch s {
	case StatusScheduled, StatusWaiting, StatusCheckedIn, StatusInProgress:
		return true
	}
	return false
}

// Pending сообщает, что запись ждёт назначения в окно.
func (s AppointmentStatus) Pending() bool {
	return s == StatusWaiting || s == StatusCheckedIn
}

// Valid сообщает, что статус известен.
func (s AppointmentStatus) Valid() bool {
	return s.Active() || s.Terminal()
}

// Service описывает услугу, выбранную клиентом.
type Service struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Customer содержит контактные данные, введённые при бронировании.
type Customer struct {
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
	CompanyName string `json:"companyName,omitempty"`
}

// Appointment описывает запись на визит в отделение.
type Appointment struct {
	ID               string            `json:"id"`
	BranchID         string            `json:"branchId"`
	EntityType       string            `json:"entityType"`
	Service          Service           `json:"service"`
	Customer         Customer          `json:"userInfo"`
	TimeSlot         string            `json:"timeSlot"`
	AccessCode       string            `json:"-"`
	Status           AppointmentStatus `json:"status"`
	CheckinTime      *time.Time        `json:"checkinTime,omitempty"`
	ServiceStartTime *time.Time        `json:"serviceStartTime,omitempty"`
	CompletionTime   *time.Time        `json:"completionTime,omitempty"`
	WaitDuration     *int              `json:"waitDuration,omitempty"`
	ServiceDuration  *int              `json:"serviceDuration,omitempty"`
	WindowNumber     *int              `json:"windowNumber,omitempty"`
	NotificationSent bool              `json:"notificationSent"`
	NotificationTime *time.Time        `json:"notificationTime,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
}

// WindowStatus описывает, открыто ли окно обслуживания.
type WindowStatus string

const (
	WindowActive   WindowStatus = "active"
	WindowInactive WindowStatus = "inactive"
	WindowServing  WindowStatus = "serving"
)

// Valid сообщает, что статус окна известен.
func (s WindowStatus) Valid() bool {
	return s == WindowActive || s == WindowInactive || s == WindowServing
}

// Open сообщает, что окно участвует в распределении очереди.
func (s WindowStatus) Open() bool {
	return s == WindowActive || s == WindowServing
}

// Window описывает окно обслуживания в отделении.
type Window struct {
	BranchID           string       `json:"branchId"`
	Number             int          `json:"number"`
	DealTypes          []string     `json:"dealTypes"`
	Status             WindowStatus `json:"status"`
	CurrentAppointment *string      `json:"currentAppointment,omitempty"`
	Staff              string       `json:"staff,omitempty"`
	PasswordHash       []byte       `json:"-"`
	LastLogin          *time.Time   `json:"lastLogin,omitempty"`
}

// Branch описывает отделение банка.
type Branch struct {
	ID                  string   `json:"id"`
	BankID              string   `json:"bankId"`
	Name                string   `json:"name"`
	Address             string   `json:"address"`
	Windows             []Window `json:"windows,omitempty"`
	PasswordHash        []byte   `json:"-"`
	CheckinPasswordHash []byte   `json:"-"`
}

// Deal описывает услугу банка для одного типа клиентов.
type Deal struct {
	EntityType string `json:"entityType"`
	Name       string `json:"name"`
}

// Bank владеет отделениями и каталогом услуг.
type Bank struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Logo     string   `json:"logo,omitempty"`
	Deals    []Deal   `json:"deals"`
	Branches []Branch `json:"branches,omitempty"`
}

// DealsFor возвращает названия услуг, доступных типу клиента.
func (b *Bank) DealsFor(entityType string) []string {
	var res []string
	for _, d := range b.Deals {
		if d.EntityType == entityType {
			res = append(res, d.Name)
		}
	}
	return res
}

// Notification содержит сообщение для каналов доставки.
type Notification struct {
	CustomerName    string
	CustomerEmail   string
	CustomerPhone   string
	BankName        string
	BranchName      string
	WindowNumber    int
	Message         string
	AppointmentType string
	AppointmentTime string
	AccessCode      string
}
