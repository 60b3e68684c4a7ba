package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// Fielder is implemented by errors that carry structured context worth
// logging, such as the saga step and region of a publish failure.
type Fielder interface {
	LogFields() map[string]any
}

// PGDetail is the Postgres diagnostic block of an error, whichever driver
// produced it.
type PGDetail struct {
	Code       string `json:"pg_code,omitempty"`
	Constraint string `json:"pg_constraint,omitempty"`
	Table      string `json:"pg_table,omitempty"`
	Column     string `json:"pg_column,omitempty"`
	Detail     string `json:"pg_detail,omitempty"`
	Message    string `json:"pg_message,omitempty"`
}

// ErrorDump flattens an error chain for logging.
type ErrorDump struct {
	TopMessage string         `json:"top_message"`
	Code       Code           `json:"code,omitempty"`
	Chain      []string       `json:"chain,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
	PG         *PGDetail      `json:"pg,omitempty"`
}

// Dump walks err and everything it wraps, including joined errors.
func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{TopMessage: err.Error()}
	if te := As(err); te != nil {
		d.Code = te.Code()
	}

	walk(err, func(e error) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
		if f, ok := e.(Fielder); ok {
			if d.Context == nil {
				d.Context = map[string]any{}
			}
			for k, v := range f.LogFields() {
				if _, seen := d.Context[k]; !seen {
					d.Context[k] = v
				}
			}
		}
	})
	d.PG = pgDetailOf(err)
	return d
}

// Fields renders the dump as flat log fields, omitting empty values.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{"error": d.TopMessage}
	if d.Code != "" {
		fields["error_code"] = d.Code
	}
	if len(d.Chain) > 1 {
		fields["error_chain"] = d.Chain
	}
	for k, v := range d.Context {
		fields[k] = v
	}
	if pg := d.PG; pg != nil {
		for k, v := range map[string]string{
			"pg_code":       pg.Code,
			"pg_constraint": pg.Constraint,
			"pg_table":      pg.Table,
			"pg_column":     pg.Column,
			"pg_detail":     pg.Detail,
			"pg_message":    pg.Message,
		} {
			if v != "" {
				fields[k] = v
			}
		}
	}
	return fields
}

func walk(err error, visit func(error)) {
	if err == nil {
		return
	}
	visit(err)
	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		for _, inner := range u.Unwrap() {
			walk(inner, visit)
		}
	case interface{ Unwrap() error }:
		walk(u.Unwrap(), visit)
	}
}

func pgDetailOf(err error) *PGDetail {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return &PGDetail{
			Code:       pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Column:     pgxErr.ColumnName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
		}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &PGDetail{
			Code:       string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}
	}
	return nil
}
