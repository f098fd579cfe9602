// Package render turns table changes into dataplane Lua scripts using
// text/template files.
package render

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"

	sprig "github.com/go-task/slim-sprig/v3"
	"github.com/natefinch/atomic"

	"github.com/psaab/gtctl/pkg/aggregate"
	"github.com/psaab/gtctl/pkg/lpm"
)

// Error reports a template that failed to load, execute or be written.
type Error struct {
	Template string
	Output   string
	Err      error
}

func (e *Error) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("render '%s': %v", e.Template, e.Err)
	}
	return fmt.Sprintf("render '%s' to '%s': %v", e.Template, e.Output, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Vars are the table-level values every script template can use.
type Vars struct {
	Proto            string
	Kind             string
	Table            string
	TableConstructor string
	ParamsFunction   string
	// Params is the estimated table size; set only when replacing.
	Params *lpm.Params
}

// ChunkData is what a replace or update template executes against.
type ChunkData struct {
	Vars
	Insert []aggregate.Entry
	Remove []aggregate.Entry
	Chunk  int
	Chunks int
	First  bool
	Last   bool
}

// ExpandPath substitutes {proto} and {kind} in s.
func ExpandPath(s, proto, kind string) string {
	return strings.NewReplacer("{proto}", proto, "{kind}", kind).Replace(s)
}

// chunkPath substitutes {i}; without it, chunks after the first get a
// numeric suffix so they do not overwrite each other.
func chunkPath(pattern string, i int) string {
	if strings.Contains(pattern, "{i}") {
		return strings.ReplaceAll(pattern, "{i}", strconv.Itoa(i))
	}
	if i == 0 {
		return pattern
	}
	return pattern + "." + strconv.Itoa(i)
}

// Renderer executes templates, caching them by input path.
type Renderer struct {
	cache map[string]*template.Template
}

// New returns a Renderer.
func New() *Renderer {
	return &Renderer{cache: make(map[string]*template.Template)}
}

func (r *Renderer) load(input string) (*template.Template, error) {
	if t, ok := r.cache[input]; ok {
		return t, nil
	}
	data, err := os.ReadFile(input)
	if err != nil {
		return nil, &Error{Template: input, Err: err}
	}
	t, err := template.New(filepath.Base(input)).
		Funcs(sprig.TxtFuncMap()).
		Option("missingkey=error").
		Parse(string(data))
	if err != nil {
		return nil, &Error{Template: input, Err: err}
	}
	r.cache[input] = t
	return t, nil
}

func (r *Renderer) execute(input, output string, data any) error {
	t, err := r.load(input)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return &Error{Template: input, Output: output, Err: err}
	}
	if err := atomic.WriteFile(output, &buf); err != nil {
		return &Error{Template: input, Output: output, Err: err}
	}
	return nil
}

// Parameters renders the table introspection script and returns its path.
// output may contain {proto} and {kind}.
func (r *Renderer) Parameters(input, output string, vars Vars) (string, error) {
	path := ExpandPath(output, vars.Proto, vars.Kind)
	if err := r.execute(input, path, vars); err != nil {
		return "", err
	}
	slog.Debug("rendered parameters script", "script", path, "table", vars.Table)
	return path, nil
}

// Changes renders c into as many scripts as needed to keep at most
// maxRanges ranges per script. Removals come before insertions. No
// script is produced when c is empty.
func (r *Renderer) Changes(input, output string, maxRanges int, vars Vars, c aggregate.Changes) ([]string, error) {
	if maxRanges <= 0 {
		return nil, &Error{Template: input, Err: fmt.Errorf("max ranges per file must be positive, got %d", maxRanges)}
	}
	chunks := split(c, maxRanges)
	pattern := ExpandPath(output, vars.Proto, vars.Kind)

	paths := make([]string, 0, len(chunks))
	for i, ch := range chunks {
		path := chunkPath(pattern, i)
		data := ChunkData{
			Vars:   vars,
			Insert: ch.Insert,
			Remove: ch.Remove,
			Chunk:  i,
			Chunks: len(chunks),
			First:  i == 0,
			Last:   i == len(chunks)-1,
		}
		if err := r.execute(input, path, data); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func split(c aggregate.Changes, max int) []aggregate.Changes {
	var chunks []aggregate.Changes
	var cur aggregate.Changes
	flush := func() {
		if !cur.Empty() {
			chunks = append(chunks, cur)
			cur = aggregate.Changes{}
		}
	}
	for _, e := range c.Remove {
		cur.Remove = append(cur.Remove, e)
		if cur.Len() == max {
			flush()
		}
	}
	for _, e := range c.Insert {
		cur.Insert = append(cur.Insert, e)
		if cur.Len() == max {
			flush()
		}
	}
	flush()
	return chunks
}
