package storage

// HistoryFilter narrows ListHistory. Zero values mean no constraint.
type HistoryFilter struct {
	UserID       int64
	MedicationID int64
	Date         string
	Limit        int
	Offset       int
}
