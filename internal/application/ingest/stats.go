package ingest

// Stats is the per-pass outcome of reconciling a slice of snapshot rows.
type Stats struct {
	RecordsSeen        int `json:"records_seen"`
	Created            int `json:"created"`
	Updated            int `json:"updated"`
	Unchanged          int `json:"unchanged"`
	Skipped            int `json:"skipped"`
	SkippedByStaleness int `json:"skipped_by_staleness"`
	Errors             int `json:"errors"`
}

// Add accumulates other into s.
func (s *Stats) Add(other Stats) {
	s.RecordsSeen += other.RecordsSeen
	s.Created += other.Created
	s.Updated += other.Updated
	s.Unchanged += other.Unchanged
	s.Skipped += other.Skipped
	s.SkippedByStaleness += other.SkippedByStaleness
	s.Errors += other.Errors
}

// RelationStats counts edge writes of one reconciliation.
type RelationStats struct {
	ObjectsTouched int   `json:"objects_touched"`
	EdgesDeleted   int64 `json:"edges_deleted"`
	EdgesInserted  int64 `json:"edges_inserted"`
	Unresolved     int   `json:"unresolved"`
}

// Add accumulates other into s.
func (s *RelationStats) Add(other RelationStats) {
	s.ObjectsTouched += other.ObjectsTouched
	s.EdgesDeleted += other.EdgesDeleted
	s.EdgesInserted += other.EdgesInserted
	s.Unresolved += other.Unresolved
}

// RowError records a row that could not be built.
type RowError struct {
	RegistrationNumber string `json:"registration_number"`
	Message            string `json:"message"`
}

// SnapshotReport is the outcome of one (category, snapshot) pair.
type SnapshotReport struct {
	SnapshotID int64         `json:"snapshot_id"`
	Category   string        `json:"category"`
	SourceURI  string        `json:"source_uri"`
	Mode       string        `json:"mode"`
	Years      []int         `json:"years,omitempty"`
	Stats      Stats         `json:"stats"`
	Relations  RelationStats `json:"relations"`
	RowErrors  []RowError    `json:"row_errors,omitempty"`
	Marked     bool          `json:"marked"`
	Skipped    bool          `json:"skipped"`
	Error      string        `json:"error,omitempty"`
}
