package main

import (
	"bytes"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runner struct {
	t    *testing.T
	base string
}

func (r runner) run(stdin string, args ...string) (string, error) {
	var out bytes.Buffer
	app := newApp(&out, strings.NewReader(stdin))
	err := app.Run(append([]string{"tablectl", "--base-path", r.base}, args...))
	return out.String(), err
}

func (r runner) mustRun(stdin string, args ...string) string {
	r.t.Helper()
	out, err := r.run(stdin, args...)
	require.NoError(r.t, err, strings.Join(args, " "))
	return out
}

var instantPattern = regexp.MustCompile(`\d{17}`)

func TestTablectl_Lifecycle(t *testing.T) {
	r := runner{t: t, base: t.TempDir()}

	assert.Contains(t, r.mustRun("", "init"), "initialized table default")
	_, err := r.run("", "init")
	assert.Error(t, err)

	out := r.mustRun(`{"key":"a","partition":"p1","value":"1"}
{"key":"b","partition":"p1","value":"2"}
`, "write")
	assert.Contains(t, out, "2 written, 0 deleted")
	first := instantPattern.FindString(out)
	require.NotEmpty(t, first)

	out = r.mustRun("", "timeline", "show")
	assert.Contains(t, out, first)
	assert.Contains(t, out, "delta_commit")

	out = r.mustRun("", "compaction", "schedule", "--force")
	require.Contains(t, out, "scheduled compaction")
	compaction := instantPattern.FindString(out)

	out = r.mustRun("", "compaction", "pending")
	assert.Contains(t, out, compaction)
	assert.Contains(t, out, "requested")

	out = r.mustRun("", "fsview", "latest", "--merge=false")
	assert.Contains(t, out, "LogSizeScheduled")
	assert.Contains(t, out, compaction)

	out = r.mustRun("", "compaction", "run")
	assert.Contains(t, out, "completed compaction "+compaction)
	assert.Contains(t, r.mustRun("", "compaction", "run"), "no pending compactions")

	out = r.mustRun("", "fsview", "all", "--base-only")
	assert.Contains(t, out, "BaseFileSize")
	assert.NotContains(t, out, "NumLogFiles")
	assert.Contains(t, out, compaction)

	out = r.mustRun("", "timeline", "show", "--sort-by", "instant", "--desc", "--limit", "1")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], compaction)
	assert.Contains(t, lines[1], "commit")
}

func TestTablectl_DeleteAndCancel(t *testing.T) {
	r := runner{t: t, base: t.TempDir()}
	r.mustRun("", "init")
	r.mustRun(`{"key":"a","partition":"p1","value":"1"}`, "write")
	out := r.mustRun(`{"key":"a","partition":"p1"}`, "write", "--delete")
	assert.Contains(t, out, "0 written, 1 deleted")

	out = r.mustRun("", "compaction", "schedule", "--force")
	compaction := instantPattern.FindString(out)
	require.NotEmpty(t, compaction)

	_, err := r.run("", "compaction", "cancel")
	assert.Error(t, err)
	assert.Contains(t, r.mustRun("", "compaction", "cancel", compaction), "cancelled")
	assert.Contains(t, r.mustRun("", "compaction", "run"), "no pending compactions")
}

func TestTablectl_Errors(t *testing.T) {
	var out bytes.Buffer
	err := newApp(&out, strings.NewReader("")).Run([]string{"tablectl", "timeline", "show"})
	assert.Error(t, err)

	r := runner{t: t, base: t.TempDir()}
	_, err = r.run("", "timeline", "show")
	assert.Error(t, err, "table was never initialized")

	r.mustRun("", "init")
	_, err = r.run("{not json", "write")
	assert.Error(t, err)
	_, err = r.run("", "fsview", "all", "--sort-by", "nope")
	assert.Error(t, err)
}
