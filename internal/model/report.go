package model

// ReportSummary содержит сводные показатели отделения за период.
type ReportSummary struct {
	TotalClients   int `json:"totalClients"`
	AvgWaitTime    int `json:"avgWaitTime"`
	AvgServiceTime int `json:"avgServiceTime"`
	CompletionRate int `json:"completionRate"`
}

// WindowReport содержит показатели одного окна.
type WindowReport struct {
	Number         int    `json:"number"`
	Staff          string `json:"staff"`
	ClientsServed  int    `json:"clientsServed"`
	AvgServiceTime int    `json:"avgServiceTime"`
	AvgWaitTime    int    `json:"avgWaitTime"`
	CompletionRate int    `json:"completionRate"`
}

// HourTraffic содержит число записей на час дня.
type HourTraffic struct {
	Hour    int `json:"hour"`
	Clients int `json:"clients"`
}

// ServiceShare содержит число записей на тип услуги.
type ServiceShare struct {
	ServiceType string `json:"serviceType"`
	Count       int    `json:"count"`
}

// Report агрегирует записи отделения за диапазон дат.
type Report struct {
	From                string         `json:"from"`
	To                  string         `json:"to"`
	Summary             ReportSummary  `json:"summary"`
	Windows             []WindowReport `json:"windowsTable"`
	QueueTraffic        []HourTraffic  `json:"queueTraffic"`
	ServiceDistribution []ServiceShare `json:"serviceDistribution"`
}

// DayMetrics содержит счётчики за один день.
type DayMetrics struct {
	Date      string `json:"date"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
	NoShow    int    `json:"noShow"`
}

// Metrics содержит счётчики статусов за период.
type Metrics struct {
	Period            string       `json:"period"`
	TotalAppointments int          `json:"totalAppointments"`
	Completed         int          `json:"completed"`
	NoShow            int          `json:"noShow"`
	InProgress        int          `json:"inProgress"`
	Waiting           int          `json:"waiting"`
	ChartData         []DayMetrics `json:"chartData"`
}
