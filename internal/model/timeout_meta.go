package model

// TimeoutMeta is the persisted max-hold deadline for a position, keyed by
// ticket. Survives process restart; cleared by TimeoutScanner.Disarm or when
// the timeout fires, not by the TP1 or close paths.
type TimeoutMeta struct {
	Ticket           int64  `json:"ticket"`
	OpenTSUTC        string `json:"open_ts_utc"`
	PreTP1MaxHoldMin int    `json:"pre_tp1_max_hold_min"`
}
