// Implements the subcommands.

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/maruel/idb"
	dberrors "github.com/maruel/idb/internal/errors"
	"github.com/maruel/idb/internal/storage"
	"github.com/maruel/idb/internal/validation"
)

// usageError is a malformed command line.
type usageError struct {
	msg string
}

func (e *usageError) Error() string {
	return e.msg
}

type command struct {
	name string
	args string
	help string
	run  func(e *env, ctx context.Context, args []string) error
}

var commands = []*command{
	{"tables", "", "List the tables", (*env).tables},
	{"create", "<table>", "Create a table", (*env).create},
	{"drop", "<table>", "Drop a table and its rows", (*env).drop},
	{"insert", "<table> <json>...", "Insert rows; a JSON array inserts each element", (*env).insert},
	{"query", "<table> [-where k=v]... [id...]", "Print the selected rows", (*env).query},
	{"update", "<table> [-where k=v]... <json> [id...]", "Merge fields into the selected rows", (*env).update},
	{"delete", "<table> [-where k=v]... [-all] [id...]", "Delete the selected rows", (*env).delete},
	{"watch", "<table>", "Print the rows each time the table is saved", (*env).watch},
	{"schema", "[table|catalog]", "Print the JSON schema of a document", (*env).schema},
	{"history", "<table> [-n N] [-show REV]", "Print the commits of a table, or its rows at REV", (*env).history},
}

// env is what commands operate on.
type env struct {
	db            *idb.Database
	out           io.Writer
	watchInterval time.Duration
}

func (e *env) run(ctx context.Context, args []string) error {
	for _, c := range commands {
		if c.name == args[0] {
			return c.run(e, ctx, args[1:])
		}
	}
	return &usageError{msg: fmt.Sprintf("unknown command %q", args[0])}
}

func (e *env) print(v any) error {
	enc := json.NewEncoder(e.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (e *env) tables(_ context.Context, args []string) error {
	if len(args) != 0 {
		return &usageError{msg: "tables takes no argument"}
	}
	return e.print(e.db.ListTables())
}

func (e *env) create(_ context.Context, args []string) error {
	name, err := tableArg("create", args)
	if err != nil {
		return err
	}
	if _, err := e.db.CreateTable(name); err != nil {
		return err
	}
	return e.print(e.db.ListTables())
}

func (e *env) drop(_ context.Context, args []string) error {
	name, err := tableArg("drop", args)
	if err != nil {
		return err
	}
	if err := e.db.DropTable(name); err != nil {
		return err
	}
	return e.print(e.db.ListTables())
}

func (e *env) insert(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return &usageError{msg: "insert requires a table and at least one row"}
	}
	t, err := e.db.Table(args[0])
	if err != nil {
		return err
	}
	rows, err := parseRows(args[1:])
	if err != nil {
		return err
	}
	if err := t.Insert(rows...); err != nil {
		return err
	}
	return e.save(ctx, t)
}

func (e *env) query(ctx context.Context, args []string) error {
	t, sel, err := e.selection("query", args, 0)
	if err != nil {
		return err
	}
	c, err := sel.criteria()
	if err != nil {
		return err
	}
	rows, err := t.Query(ctx, c)
	if err != nil {
		return err
	}
	return e.print(rows)
}

func (e *env) update(ctx context.Context, args []string) error {
	t, sel, err := e.selection("update", args, 1)
	if err != nil {
		return err
	}
	v, err := decodeJSON(sel.rest[0])
	if err != nil {
		return err
	}
	fields, err := validation.Object(0, v)
	if err != nil {
		return err
	}
	if _, ok := fields[idb.IDField]; ok {
		return dberrors.Validation(fmt.Sprintf("Expected update to not set reserved field %q, got one.", idb.IDField))
	}
	sel.rest = sel.rest[1:]
	c, err := sel.criteria()
	if err != nil {
		return err
	}
	fn := func(*idb.Row) (map[string]any, error) {
		return maps.Clone(fields), nil
	}
	if err := t.Update(fn, c); err != nil {
		return err
	}
	return e.save(ctx, t)
}

func (e *env) delete(ctx context.Context, args []string) error {
	t, sel, err := e.selection("delete", args, 0)
	if err != nil {
		return err
	}
	if !sel.all && len(sel.where) == 0 && len(sel.rest) == 0 {
		return dberrors.Validation("Expected -where, -all or ids to select the rows to delete, got none.")
	}
	c, err := sel.criteria()
	if err != nil {
		return err
	}
	if err := t.Delete(c); err != nil {
		return err
	}
	return e.save(ctx, t)
}

func (e *env) watch(ctx context.Context, args []string) error {
	name, err := tableArg("watch", args)
	if err != nil {
		return err
	}
	t, err := e.db.Table(name)
	if err != nil {
		return err
	}
	w, err := storage.WatchTable(t.Path(), e.watchInterval)
	if err != nil {
		return dberrors.Storage("failed to watch table", err).WithDetail("table", name)
	}
	printRows := func() {
		rows, err := t.Query(ctx, idb.All())
		if err != nil {
			if dberrors.CodeOf(err) != dberrors.ErrTableNotFound {
				slog.WarnContext(ctx, "Failed to read table", "table", name, "err", err)
			}
			return
		}
		if err := e.print(rows); err != nil {
			slog.WarnContext(ctx, "Failed to print rows", "err", err)
		}
	}
	printRows()
	slog.InfoContext(ctx, "Watching table", "table", name, "path", t.Path())
	return w.Run(ctx, printRows)
}

func (e *env) schema(_ context.Context, args []string) error {
	kind := "table"
	switch len(args) {
	case 0:
	case 1:
		kind = args[0]
	default:
		return &usageError{msg: "schema takes at most one argument"}
	}
	var data []byte
	var err error
	switch kind {
	case "table":
		data, err = storage.TableSchema()
	case "catalog":
		data, err = storage.CatalogSchema()
	default:
		return &usageError{msg: fmt.Sprintf("unknown schema %q, expected table or catalog", kind)}
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(e.out, "%s\n", data)
	return err
}

func (e *env) history(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return &usageError{msg: "history requires a table"}
	}
	name := args[0]
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	n := fs.Int("n", 20, "Maximum number of commits")
	show := fs.String("show", "", "Print the rows at this revision")
	if err := fs.Parse(args[1:]); err != nil {
		return &usageError{msg: err.Error()}
	}
	if fs.NArg() != 0 {
		return &usageError{msg: fmt.Sprintf("unexpected arguments: %v", fs.Args())}
	}
	if *show != "" {
		rows, err := e.db.TableAt(ctx, name, *show)
		if err != nil {
			return err
		}
		return e.print(rows)
	}
	commits, err := e.db.History(ctx, name, *n)
	if err != nil {
		return err
	}
	return e.print(commits)
}

// save saves the table and prints a summary.
func (e *env) save(ctx context.Context, t *idb.Table) error {
	ops := t.Pending()
	if err := t.Save(ctx); err != nil {
		return err
	}
	return e.print(map[string]any{"table": t.Name(), "operations": ops})
}

// selection is the parsed row selection of query, update and delete.
type selection struct {
	where []string
	all   bool
	// rest holds the positional arguments after the flags.
	rest []string
}

// selection parses "<table> [flags] args...", requiring at least minArgs
// positional arguments after the flags.
func (e *env) selection(cmd string, args []string, minArgs int) (*idb.Table, *selection, error) {
	if len(args) == 0 {
		return nil, nil, &usageError{msg: cmd + " requires a table"}
	}
	sel := &selection{}
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Func("where", "Select rows whose field equals a value, as key=value", func(s string) error {
		if !strings.Contains(s, "=") {
			return fmt.Errorf("expected key=value, got %q", s)
		}
		sel.where = append(sel.where, s)
		return nil
	})
	if cmd == "delete" {
		fs.BoolVar(&sel.all, "all", false, "Delete every row")
	}
	if err := fs.Parse(args[1:]); err != nil {
		return nil, nil, &usageError{msg: err.Error()}
	}
	sel.rest = fs.Args()
	if len(sel.rest) < minArgs {
		return nil, nil, &usageError{msg: fmt.Sprintf("%s requires %d more argument(s)", cmd, minArgs-len(sel.rest))}
	}
	t, err := e.db.Table(args[0])
	if err != nil {
		return nil, nil, err
	}
	return t, sel, nil
}

// criteria converts the selection. Ids and -where are exclusive; no
// selection at all selects every row.
func (s *selection) criteria() (idb.Criteria, error) {
	ids, err := parseIDs(s.rest)
	if err != nil {
		return nil, err
	}
	if len(ids) != 0 && (len(s.where) != 0 || s.all) {
		return nil, dberrors.Validation("Expected either ids or -where/-all, got both.")
	}
	if len(ids) != 0 {
		return ids, nil
	}
	if len(s.where) == 0 {
		return idb.All(), nil
	}
	preds := make([]idb.Where, len(s.where))
	for i, kv := range s.where {
		k, v, _ := strings.Cut(kv, "=")
		preds[i] = idb.Equals(k, parseValue(v))
	}
	return idb.Where(func(r *idb.Row) bool {
		for _, p := range preds {
			if !p(r) {
				return false
			}
		}
		return true
	}), nil
}

func tableArg(cmd string, args []string) (string, error) {
	if len(args) != 1 {
		return "", &usageError{msg: cmd + " requires exactly one table"}
	}
	return args[0], nil
}

func parseIDs(args []string) (idb.IDs, error) {
	var ids idb.IDs
	for _, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil || id < 1 {
			return nil, dberrors.Validation(fmt.Sprintf("Expected id to be a positive integer, got %q.", a))
		}
		ids = append(ids, idb.RowID(id))
	}
	return ids, nil
}

// parseRows decodes each argument as a JSON object, or an array of objects.
func parseRows(args []string) ([]map[string]any, error) {
	var rows []map[string]any
	for _, a := range args {
		v, err := decodeJSON(a)
		if err != nil {
			return nil, err
		}
		items, ok := v.([]any)
		if !ok {
			items = []any{v}
		}
		for _, item := range items {
			row, err := validation.Object(len(rows), item)
			if err != nil {
				return nil, err
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func decodeJSON(s string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, dberrors.Validation(fmt.Sprintf("Expected valid JSON, got %q.", s)).Wrap(err)
	}
	return v, nil
}

// parseValue interprets v as JSON when it parses, so numbers, booleans and
// null compare with their decoded values, and as a plain string otherwise.
func parseValue(v string) any {
	var out any
	if err := json.Unmarshal([]byte(v), &out); err != nil {
		return v
	}
	return out
}
