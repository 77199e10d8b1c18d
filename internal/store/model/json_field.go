package model

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

// JSONField wraps any serializable type so it can be stored in a jsonb
// column (json TEXT under sqlite) while staying typed in Go.
type JSONField[T any] struct {
	Data T
}

func MakeJSONField[T any](data T) *JSONField[T] {
	return &JSONField[T]{Data: data}
}

func (f JSONField[T]) Value() (driver.Value, error) {
	return json.Marshal(f.Data)
}

func (f *JSONField[T]) Scan(value any) error {
	if value == nil {
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported type for JSONField: %T", value)
	}
	return json.Unmarshal(b, &f.Data)
}

func (f JSONField[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Data)
}

func (f *JSONField[T]) UnmarshalJSON(b []byte) error {
	return json.Unmarshal(b, &f.Data)
}

func (JSONField[T]) GormDataType() string {
	return "jsonb"
}

func (JSONField[T]) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	switch db.Dialector.Name() {
	case "postgres":
		return "jsonb"
	default:
		return "json"
	}
}

func (f JSONField[T]) GormValue(ctx context.Context, db *gorm.DB) clause.Expr {
	b, err := json.Marshal(f.Data)
	if err != nil {
		_ = db.AddError(errors.New("failed to marshal JSONField"))
		return clause.Expr{}
	}
	return clause.Expr{SQL: "?", Vars: []any{string(b)}}
}
