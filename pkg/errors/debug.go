package errors

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// ErrorDump is the log-friendly view of an error chain. The SQL fields are
// filled from the first driver error found in the chain.
type ErrorDump struct {
	TopMessage string   `json:"top_message"`
	Code       Code     `json:"code,omitempty"`
	Retryable  bool     `json:"retryable,omitempty"`
	Step       string   `json:"step,omitempty"`
	Chain      []string `json:"chain,omitempty"`

	SQLState     string `json:"sql_state,omitempty"`
	SQLNumber    uint16 `json:"sql_number,omitempty"`
	SQLMessage   string `json:"sql_message,omitempty"`
	PGConstraint string `json:"pg_constraint,omitempty"`
	PGTable      string `json:"pg_table,omitempty"`
	PGColumn     string `json:"pg_column,omitempty"`
	PGDetail     string `json:"pg_detail,omitempty"`
}

// Dump flattens err for logging.
func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{TopMessage: err.Error()}
	if te := As(err); te != nil {
		d.Code = te.Code()
		d.Retryable = te.Retryable()
		if details, ok := te.Details().(map[string]any); ok {
			d.Step, _ = details["step"].(string)
		}
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	var (
		pgxErr *pgconn.PgError
		pqErr  *pq.Error
		myErr  *mysql.MySQLError
	)
	switch {
	case errors.As(err, &pgxErr):
		d.SQLState, d.SQLMessage = pgxErr.Code, pgxErr.Message
		d.PGConstraint, d.PGTable, d.PGColumn, d.PGDetail = pgxErr.ConstraintName, pgxErr.TableName, pgxErr.ColumnName, pgxErr.Detail
	case errors.As(err, &pqErr):
		d.SQLState, d.SQLMessage = string(pqErr.Code), pqErr.Message
		d.PGConstraint, d.PGTable, d.PGColumn, d.PGDetail = pqErr.Constraint, pqErr.Table, pqErr.Column, pqErr.Detail
	case errors.As(err, &myErr):
		d.SQLState = string(myErr.SQLState[:])
		d.SQLNumber, d.SQLMessage = myErr.Number, myErr.Message
	}
	return d
}

// Fields returns the non-empty parts of the dump keyed for structured logs.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{
		"error":       d.TopMessage,
		"error_code":  d.Code,
		"error_chain": d.Chain,
		"retryable":   d.Retryable,
	}
	optional := map[string]string{
		"step":          d.Step,
		"sql_state":     d.SQLState,
		"sql_message":   d.SQLMessage,
		"pg_constraint": d.PGConstraint,
		"pg_table":      d.PGTable,
		"pg_column":     d.PGColumn,
		"pg_detail":     d.PGDetail,
	}
	for k, v := range optional {
		if v != "" {
			fields[k] = v
		}
	}
	if d.SQLNumber != 0 {
		fields["sql_number"] = d.SQLNumber
	}
	return fields
}
