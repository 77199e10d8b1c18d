package v1

import "time"

type CollectionCreateRequest struct {
	Name string `json:"name" validate:"required,max=100,collection_name"`
	// Records are inserted in list order; position is assigned from it.
	Records []map[string]any `json:"records,omitempty"`
}

type Collection struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	RecordCount int       `json:"record_count"`
	CreatedAt   time.Time `json:"created_at"`
}

type DataRecordView struct {
	ID       string         `json:"id"`
	Position int            `json:"position"`
	Fields   map[string]any `json:"fields,omitempty"`
	Used     bool           `json:"used"`
}
