package lpm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/psaab/gtctl/pkg/aggregate"
)

// ErrEmptyResponse is returned when the dataplane reports no tables.
var ErrEmptyResponse = errors.New("dyncfg returned an empty response")

// ParseError reports a line of a parameters response that could not be
// understood.
type ParseError struct {
	Line string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to parse int in dyncfg response %q: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("dyncfg returned an unexpected line: %s", e.Line)
}

func (e *ParseError) Unwrap() error { return e.Err }

// CurrentParams holds the params of every table replica the dataplane
// reported, ordered by the replica ID.
type CurrentParams []Params

// Sender sends a rendered script to the dataplane.
type Sender interface {
	Send(ctx context.Context, script string) (string, error)
}

var paramsLine = regexp.MustCompile(`^\s*(\d+):\s*(\d+),\s*(\d+)\s*$`)

// ReadCurrent sends the parameters script and parses the reply.
func ReadCurrent(ctx context.Context, s Sender, family aggregate.Family, script string) (CurrentParams, error) {
	resp, err := s.Send(ctx, script)
	if err != nil {
		return nil, fmt.Errorf("dyncfg error: %w", err)
	}
	cur, err := ParseCurrent(resp)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	for i := range cur {
		cur[i].Family = family
	}
	return cur, nil
}

// ParseCurrent parses lines of the form "<id>: <rules>, <tbl8s>".
// Blank lines are skipped; anything else is an error.
func ParseCurrent(resp string) (CurrentParams, error) {
	type row struct {
		id     uint64
		params Params
	}
	var rows []row

	for _, line := range strings.Split(resp, "\n") {
		line = strings.TrimSuffix(line, "\r")
		m := paramsLine.FindStringSubmatch(line)
		if m == nil {
			if strings.TrimSpace(line) == "" {
				continue
			}
			return nil, &ParseError{Line: line}
		}
		id, err := strconv.ParseUint(m[1], 10, 64)
		if err != nil {
			return nil, &ParseError{Line: line, Err: err}
		}
		rules, err := strconv.Atoi(m[2])
		if err != nil {
			return nil, &ParseError{Line: line, Err: err}
		}
		tbl8s, err := strconv.Atoi(m[3])
		if err != nil {
			return nil, &ParseError{Line: line, Err: err}
		}
		rows = append(rows, row{id: id, params: Params{NumRules: rules, NumTbl8s: tbl8s}})
	}

	if len(rows) == 0 {
		return nil, ErrEmptyResponse
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].id < rows[j].id })

	cur := make(CurrentParams, len(rows))
	for i, r := range rows {
		cur[i] = r.params
	}
	return cur, nil
}
