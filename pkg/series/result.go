package series

// Status tags a forecast Result.
type Status string

const (
	// StatusOK means at least one row was produced.
	StatusOK Status = "ok"
	// StatusEmpty means the request was valid but no dates survived the
	// join and range filter.
	StatusEmpty Status = "empty"
)

// Result is the outcome of a forecast request. A zero-row outcome is a
// success variant, distinct from an error.
type Result struct {
	Status Status        `json:"status"`
	Rows   []ForecastRow `json:"rows"`
}

// NewResult tags rows as ok or empty.
func NewResult(rows []ForecastRow) Result {
	if len(rows) == 0 {
		return Result{Status: StatusEmpty, Rows: []ForecastRow{}}
	}
	return Result{Status: StatusOK, Rows: rows}
}

// Empty reports whether the result carries no rows.
func (r Result) Empty() bool { return r.Status == StatusEmpty }
