package model

// DashboardStats are locker counts for the dashboard. Occupied includes
// overdue lockers; Overdue counts active rentals past their expected date.
type DashboardStats struct {
	Total     int `json:"total"`
	Available int `json:"available"`
	Occupied  int `json:"occupied"`
	Overdue   int `json:"overdue"`
}
