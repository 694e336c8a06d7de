package supabase

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
)

type row = map[string]any

// fakeRest is a small in-memory PostgREST: eq filters, the or filter used by
// ListProjects, foreign key checks and the cascades of the canvas schema.
type fakeRest struct {
	mu     sync.Mutex
	tables map[string][]row
	rpc    func(name string, body []byte) (int, string)
	calls  []string
}

func newFakeRest(t *testing.T) (*fakeRest, *httptest.Server) {
	t.Helper()
	f := &fakeRest{tables: make(map[string][]row)}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

var parents = map[string][][2]string{
	"canvas_elements":    {{"project_id", "canvas_projects"}},
	"canvas_connections": {{"project_id", "canvas_projects"}, {"source_id", "canvas_elements"}, {"target_id", "canvas_elements"}},
	"canvas_history":     {{"project_id", "canvas_projects"}},
	"canvas_tasks":       {{"project_id", "canvas_projects"}},
	"canvas_shares":      {{"project_id", "canvas_projects"}},
}

func (f *fakeRest) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	name := parts[len(parts)-1]
	f.calls = append(f.calls, r.Method+" "+name)

	if len(parts) >= 2 && parts[len(parts)-2] == "rpc" {
		body, _ := io.ReadAll(r.Body)
		status, out := http.StatusNotFound, `{"code":"PGRST202","message":"Could not find the function"}`
		if f.rpc != nil {
			status, out = f.rpc(name, body)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(out))
		return
	}

	match := f.filter(r.URL.Query())
	switch r.Method {
	case http.MethodGet:
		out := []row{}
		for _, rw := range f.tables[name] {
			if match(rw) {
				out = append(out, rw)
			}
		}
		f.reply(w, http.StatusOK, out)
	case http.MethodPost:
		var body any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			f.fail(w, http.StatusBadRequest, "PGRST102", err.Error())
			return
		}
		rows := []row{}
		switch b := body.(type) {
		case map[string]any:
			rows = append(rows, b)
		case []any:
			for _, v := range b {
				rows = append(rows, v.(map[string]any))
			}
		}
		for _, rw := range rows {
			if !f.parentsExist(name, rw) {
				f.fail(w, http.StatusConflict, "23503", "insert violates foreign key constraint")
				return
			}
		}
		f.tables[name] = append(f.tables[name], rows...)
		f.reply(w, http.StatusCreated, rows)
	case http.MethodPatch:
		var cols map[string]any
		if err := json.NewDecoder(r.Body).Decode(&cols); err != nil {
			f.fail(w, http.StatusBadRequest, "PGRST102", err.Error())
			return
		}
		out := []row{}
		for _, rw := range f.tables[name] {
			if !match(rw) {
				continue
			}
			for k, v := range cols {
				rw[k] = v
			}
			out = append(out, rw)
		}
		f.reply(w, http.StatusOK, out)
	case http.MethodDelete:
		kept := []row{}
		for _, rw := range f.tables[name] {
			if match(rw) {
				f.cascade(name, rw["id"])
				continue
			}
			kept = append(kept, rw)
		}
		f.tables[name] = kept
		w.WriteHeader(http.StatusNoContent)
	default:
		f.fail(w, http.StatusMethodNotAllowed, "PGRST000", r.Method)
	}
}

func (f *fakeRest) filter(q url.Values) func(row) bool {
	var preds []func(row) bool
	for key, vals := range q {
		val := vals[0]
		switch key {
		case "select", "order", "limit", "offset", "columns":
			continue
		case "or":
			var alts []func(row) bool
			for _, term := range strings.Split(strings.Trim(val, "()"), ",") {
				alts = append(alts, predicate(term))
			}
			preds = append(preds, func(rw row) bool {
				for _, p := range alts {
					if p(rw) {
						return true
					}
				}
				return false
			})
		default:
			preds = append(preds, predicate(key+"."+val))
		}
	}
	return func(rw row) bool {
		for _, p := range preds {
			if !p(rw) {
				return false
			}
		}
		return true
	}
}

// predicate understands "col.eq.value" and "col.cs.{value}".
func predicate(term string) func(row) bool {
	parts := strings.SplitN(term, ".", 3)
	if len(parts) != 3 {
		return func(row) bool { return false }
	}
	col, op, val := parts[0], parts[1], parts[2]
	switch op {
	case "eq":
		return func(rw row) bool { s, ok := rw[col].(string); return ok && s == val }
	case "cs":
		want := strings.Trim(val, "{}")
		return func(rw row) bool {
			list, _ := rw[col].([]any)
			for _, v := range list {
				if v == want {
					return true
				}
			}
			return false
		}
	}
	return func(row) bool { return false }
}

func (f *fakeRest) parentsExist(table string, rw row) bool {
	for _, ref := range parents[table] {
		id, _ := rw[ref[0]].(string)
		found := false
		for _, p := range f.tables[ref[1]] {
			if p["id"] == id {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (f *fakeRest) cascade(table string, id any) {
	switch table {
	case "canvas_projects":
		for child := range parents {
			kept := []row{}
			for _, rw := range f.tables[child] {
				if rw["project_id"] != id {
					kept = append(kept, rw)
				}
			}
			f.tables[child] = kept
		}
	case "canvas_elements":
		kept := []row{}
		for _, rw := range f.tables["canvas_connections"] {
			if rw["source_id"] != id && rw["target_id"] != id {
				kept = append(kept, rw)
			}
		}
		f.tables["canvas_connections"] = kept
		for _, rw := range f.tables["canvas_tasks"] {
			if rw["element_id"] == id {
				rw["element_id"] = nil
			}
		}
	}
}

func (f *fakeRest) reply(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeRest) fail(w http.ResponseWriter, status int, code, msg string) {
	f.reply(w, status, map[string]string{"code": code, "message": msg})
}

func (f *fakeRest) count(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}
