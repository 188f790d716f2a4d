// Package pg_gateway implements the gateway row-store and remote-procedure
// contracts on Postgres via the pgx stdlib driver.
package pg_gateway

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"economicgoose/internal/gateway"
)

type Gateway struct {
	db *sql.DB
}

func New(db *sql.DB) *Gateway { return &Gateway{db: db} }

var (
	_ gateway.RowStore        = (*Gateway)(nil)
	_ gateway.ProcedureCaller = (*Gateway)(nil)
)

const uniqueViolation = "23505"

func (g *Gateway) Select(ctx context.Context, q gateway.Query, dest any) error {
	query, args := buildSelect(q)
	rows, err := g.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	records, err := scanAll(rows)
	if err != nil {
		return err
	}
	return decodeInto(records, dest)
}

func (g *Gateway) SelectOne(ctx context.Context, q gateway.Query, dest any) error {
	q.Limit = 1
	query, args := buildSelect(q)
	rows, err := g.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	records, err := scanAll(rows)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return gateway.ErrNotFound
	}
	return decodeInto(records[0], dest)
}

func (g *Gateway) Insert(ctx context.Context, table string, row any) error {
	fields, err := toFields(row)
	if err != nil {
		return err
	}
	cols := sortedKeys(fields)

	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = toArg(fields[c])
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	_, err = g.db.ExecContext(ctx, query, args...)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return gateway.ErrDuplicate
	}
	return err
}

func (g *Gateway) Update(ctx context.Context, table string, id string, fields map[string]any) error {
	cols := sortedKeys(fields)

	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, c := range cols {
		sets[i] = fmt.Sprintf("%s = $%d", c, i+1)
		args = append(args, toArg(fields[c]))
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d",
		table, strings.Join(sets, ", "), len(cols)+1)
	_, err := g.db.ExecContext(ctx, query, args...)
	return err
}

// Call invokes a SQL function that takes one jsonb argument and returns jsonb.
func (g *Gateway) Call(ctx context.Context, name string, args map[string]any) (json.RawMessage, error) {
	payload, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s($1::jsonb)", name)

	var out []byte
	if err := g.db.QueryRowContext(ctx, query, string(payload)).Scan(&out); err != nil {
		return nil, err
	}
	return json.RawMessage(out), nil
}

// ---------------------------------------------------------------------------
//  helpers
// ---------------------------------------------------------------------------

func buildSelect(q gateway.Query) (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT * FROM ")
	b.WriteString(q.Table)

	var (
		conds []string
		args  []any
	)
	next := func() string { return fmt.Sprintf("$%d", len(args)) }

	for _, col := range sortedKeys(q.Eq) {
		args = append(args, toArg(q.Eq[col]))
		conds = append(conds, fmt.Sprintf("%s = %s", col, next()))
	}
	inCols := make([]string, 0, len(q.In))
	for col := range q.In {
		inCols = append(inCols, col)
	}
	sort.Strings(inCols)
	for _, col := range inCols {
		ph := make([]string, 0, len(q.In[col]))
		for _, v := range q.In[col] {
			args = append(args, v)
			ph = append(ph, next())
		}
		conds = append(conds, fmt.Sprintf("%s IN (%s)", col, strings.Join(ph, ", ")))
	}
	if len(conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}
	if q.OrderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(q.OrderBy)
		if q.Descending {
			b.WriteString(" DESC")
		}
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.Limit)
	}
	return b.String(), args
}

// scanAll reads every row into a generic column map so the caller can decode
// it into whatever struct shape it expects.
func scanAll(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rec := make(map[string]any, len(cols))
		for i, c := range cols {
			rec[c] = normalize(vals[i])
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// normalize keeps jsonb columns as raw JSON and renders other byte slices
// as text, so the JSON re-encode in decodeInto round-trips cleanly.
func normalize(v any) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	if json.Valid(b) {
		return json.RawMessage(append([]byte(nil), b...))
	}
	return string(b)
}

func decodeInto(src, dest any) error {
	raw, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

func toFields(row any) (map[string]any, error) {
	if m, ok := row.(map[string]any); ok {
		return m, nil
	}
	raw, err := json.Marshal(row)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// toArg turns nested JSON values into text so they land in jsonb columns.
func toArg(v any) any {
	switch v.(type) {
	case map[string]any, []any:
		raw, _ := json.Marshal(v)
		return string(raw)
	default:
		return v
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
