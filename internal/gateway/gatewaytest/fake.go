// Package gatewaytest provides an in-memory gateway.Remote for tests: seeded
// tables, scripted remote procedures, and hand-driven change events.
package gatewaytest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"economicgoose/internal/gateway"
)

type ProcFunc func(args map[string]any) (json.RawMessage, error)

// Call is one recorded remote-procedure invocation.
type Call struct {
	Name string
	Args map[string]any
}

type Fake struct {
	mu      sync.Mutex
	tables  map[string][]map[string]any
	uniques map[string][]string
	procs   map[string]ProcFunc
	subs    map[*fakeSub]struct{}
	calls   []Call
}

func New() *Fake {
	return &Fake{
		tables:  make(map[string][]map[string]any),
		uniques: make(map[string][]string),
		procs:   make(map[string]ProcFunc),
		subs:    make(map[*fakeSub]struct{}),
	}
}

// Remote bundles the fake behind the production-facing interfaces.
func (f *Fake) Remote() gateway.Remote {
	return gateway.Remote{Rows: f, Procs: f, Feed: f}
}

var (
	_ gateway.RowStore        = (*Fake)(nil)
	_ gateway.ProcedureCaller = (*Fake)(nil)
	_ gateway.ChangeFeed      = (*Fake)(nil)
)

// ---------------------------------------------------------------------------
//  test-side controls
// ---------------------------------------------------------------------------

func (f *Fake) Seed(table string, rows ...map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[table] = append(f.tables[table], rows...)
}

// Unique declares a uniqueness constraint; violating inserts return
// gateway.ErrDuplicate like the real backend does.
func (f *Fake) Unique(table string, columns ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uniques[table] = columns
}

func (f *Fake) Handle(name string, fn ProcFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.procs[name] = fn
}

// Calls returns the remote procedures invoked so far, optionally filtered by
// name.
func (f *Fake) Calls(name string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.calls {
		if name == "" || c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Emit delivers a change event to every matching open subscription.
func (f *Fake) Emit(typ gateway.ChangeType, table string, newRow, oldRow map[string]any) {
	ev := gateway.ChangeEvent{Type: typ, Table: table}
	if newRow != nil {
		ev.New, _ = json.Marshal(newRow)
	}
	if oldRow != nil {
		ev.Old, _ = json.Marshal(oldRow)
	}

	f.mu.Lock()
	subs := make([]*fakeSub, 0, len(f.subs))
	for s := range f.subs {
		subs = append(subs, s)
	}
	f.mu.Unlock()

	for _, s := range subs {
		s.deliver(ev)
	}
}

// SetConnected pushes a connection-status flip to every subscription on the
// table.
func (f *Fake) SetConnected(table string, connected bool) {
	f.mu.Lock()
	subs := make([]*fakeSub, 0, len(f.subs))
	for s := range f.subs {
		if s.sub.Table == table {
			subs = append(subs, s)
		}
	}
	f.mu.Unlock()
	for _, s := range subs {
		s.report(connected)
	}
}

// OpenFeeds counts live subscriptions, optionally restricted to one table.
func (f *Fake) OpenFeeds(table string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for s := range f.subs {
		if table == "" || s.sub.Table == table {
			n++
		}
	}
	return n
}

// Rows returns a deep copy of a table's current content.
func (f *Fake) Rows(table string) []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, 0, len(f.tables[table]))
	for _, r := range f.tables[table] {
		out = append(out, copyRow(r))
	}
	return out
}

// ---------------------------------------------------------------------------
//  gateway.RowStore
// ---------------------------------------------------------------------------

func (f *Fake) Select(_ context.Context, q gateway.Query, dest any) error {
	f.mu.Lock()
	rows := f.query(q)
	f.mu.Unlock()
	return decodeInto(rows, dest)
}

func (f *Fake) SelectOne(_ context.Context, q gateway.Query, dest any) error {
	f.mu.Lock()
	rows := f.query(q)
	f.mu.Unlock()
	if len(rows) == 0 {
		return gateway.ErrNotFound
	}
	return decodeInto(rows[0], dest)
}

func (f *Fake) Insert(_ context.Context, table string, row any) error {
	fields, err := toFields(row)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if cols := f.uniques[table]; len(cols) > 0 {
		for _, existing := range f.tables[table] {
			same := true
			for _, c := range cols {
				if fmt.Sprint(existing[c]) != fmt.Sprint(fields[c]) {
					same = false
					break
				}
			}
			if same {
				return gateway.ErrDuplicate
			}
		}
	}
	f.tables[table] = append(f.tables[table], fields)
	return nil
}

func (f *Fake) Update(_ context.Context, table string, id string, fields map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.tables[table] {
		if fmt.Sprint(row["id"]) == id {
			for k, v := range fields {
				row[k] = v
			}
			return nil
		}
	}
	return gateway.ErrNotFound
}

func (f *Fake) query(q gateway.Query) []map[string]any {
	var out []map[string]any
	for _, row := range f.tables[q.Table] {
		if matchesQuery(q, row) {
			out = append(out, copyRow(row))
		}
	}
	if q.OrderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			a, b := fmt.Sprint(out[i][q.OrderBy]), fmt.Sprint(out[j][q.OrderBy])
			if q.Descending {
				return a > b
			}
			return a < b
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

func matchesQuery(q gateway.Query, row map[string]any) bool {
	for col, want := range q.Eq {
		if fmt.Sprint(row[col]) != fmt.Sprint(want) {
			return false
		}
	}
	for col, wants := range q.In {
		hit := false
		for _, w := range wants {
			if fmt.Sprint(row[col]) == w {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
//  gateway.ProcedureCaller
// ---------------------------------------------------------------------------

func (f *Fake) Call(_ context.Context, name string, args map[string]any) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Name: name, Args: args})
	fn, ok := f.procs[name]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("gatewaytest: no handler for procedure %q", name)
	}
	return fn(args)
}

// ---------------------------------------------------------------------------
//  gateway.ChangeFeed
// ---------------------------------------------------------------------------

type fakeSub struct {
	owner  *Fake
	sub    gateway.Subscription
	events chan gateway.ChangeEvent
	status chan bool
	done   chan struct{}
	once   sync.Once
}

func (f *Fake) Subscribe(_ context.Context, sub gateway.Subscription) (*gateway.FeedHandle, error) {
	s := &fakeSub{
		owner:  f,
		sub:    sub,
		events: make(chan gateway.ChangeEvent, 64),
		status: make(chan bool, 8),
		done:   make(chan struct{}),
	}
	f.mu.Lock()
	f.subs[s] = struct{}{}
	f.mu.Unlock()

	s.report(true) // subscription confirmation
	return gateway.NewFeedHandle(s.events, s.status, s.close), nil
}

func (s *fakeSub) deliver(ev gateway.ChangeEvent) {
	if !s.sub.Matches(ev) {
		return
	}
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *fakeSub) report(connected bool) {
	select {
	case s.status <- connected:
	case <-s.done:
	default:
	}
}

func (s *fakeSub) close() {
	s.once.Do(func() {
		close(s.done)
		s.owner.mu.Lock()
		delete(s.owner.subs, s)
		s.owner.mu.Unlock()
		close(s.events)
		close(s.status)
	})
}

// ---------------------------------------------------------------------------
//  helpers
// ---------------------------------------------------------------------------

func copyRow(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

func toFields(row any) (map[string]any, error) {
	if m, ok := row.(map[string]any); ok {
		return copyRow(m), nil
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

func decodeInto(src, dest any) error {
	raw, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}
