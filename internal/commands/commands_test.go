package commands_test

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argent-dev/argent/internal/commands"
	"github.com/argent-dev/argent/internal/model"
	"github.com/argent-dev/argent/internal/report"
	"github.com/argent-dev/argent/internal/runlog"
)

func runArgent(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := commands.NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

func gitOutput(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	require.NoError(t, err)
	return strings.TrimSpace(string(out))
}

// stage copies testdata statements into dir/import.
func stage(t *testing.T, dir string, names ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "import"), 0o755))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join("..", "..", "testdata", name))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "import", name), data, 0o644))
	}
}

func exported(t *testing.T, dir, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "exports", "*-"+suffix))
	require.NoError(t, err)
	require.Len(t, matches, 1, "expected one %s export", suffix)
	return matches[0]
}

func readExport(t *testing.T, path string) []model.CardTransaction {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	txns, err := report.ReadRecords(f)
	require.NoError(t, err)
	return txns
}

func groupsByDescription(txns []model.CardTransaction) map[string]string {
	m := make(map[string]string)
	for _, txn := range txns {
		g, _ := txn.Group()
		m[txn.Description] = g
	}
	return m
}

func TestVersion(t *testing.T) {
	out, err := runArgent(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "dev (commit: none")
}

func TestInit_CreatesStructure(t *testing.T) {
	requireGit(t)
	dir := t.TempDir()
	out, err := runArgent(t, "init", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Initialized argent project")

	for _, d := range []string{"import", filepath.Join("import", "processed"), "exports", "logs"} {
		info, err := os.Stat(filepath.Join(dir, d))
		require.NoError(t, err, "directory %s should exist", d)
		assert.True(t, info.IsDir(), "%s should be a directory", d)
	}

	data, err := os.ReadFile(filepath.Join(dir, "argent.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "encoding: cp932")

	data, err = os.ReadFile(filepath.Join(dir, ".gitignore"))
	require.NoError(t, err)
	assert.Equal(t, "import/\n.env\n", string(data))
}

func TestInit_GitCommit(t *testing.T) {
	requireGit(t)
	dir := t.TempDir()
	_, err := runArgent(t, "init", dir)
	require.NoError(t, err)

	assert.Equal(t, "init: Initialize argent project", gitOutput(t, dir, "log", "--format=%s", "-1"))
	assert.Equal(t, "Argent <argent@localhost>", gitOutput(t, dir, "log", "--format=%an <%ae>", "-1"))
}

func TestIngest_ImportDir(t *testing.T) {
	dir := t.TempDir()
	stage(t, dir, "card_2023_01.csv", "card_2023_02.csv")

	out, err := runArgent(t, "ingest", "--repo", dir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Ingested 6 records from 2 sources into 3 groups")

	txns := readExport(t, exported(t, dir, "transactions.csv"))
	require.Len(t, txns, 6)
	assert.Equal(t, "2023/01/15", txns[0].Date)
	assert.Equal(t, "ABCストア1号店", txns[0].Description)
	assert.Equal(t, "2023/02/10", txns[5].Date)
	assert.Equal(t, int64(2), txns[5].Num)

	assert.Equal(t, map[string]string{
		"ABCストア1号店":     "ABCストア",
		"ABCストア2号店":     "ABCストア",
		"ABCストア3号店":     "ABCストア",
		"ガソリンスタンドENEOS": "ガソリンスタンドENEOS",
		"XYZマート":        "XYZマート",
	}, groupsByDescription(txns))

	// Read sources move to processed.
	for _, name := range []string{"card_2023_01.csv", "card_2023_02.csv"} {
		_, err := os.Stat(filepath.Join(dir, "import", name))
		assert.True(t, os.IsNotExist(err), "%s should have left import/", name)
		_, err = os.Stat(filepath.Join(dir, "import", "processed", name))
		assert.NoError(t, err, "%s should be in processed/", name)
	}

	entries, err := runlog.Read(filepath.Join(dir, "logs", "ingest-log.csv"))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, filepath.Join(dir, "import", "card_2023_01.csv"), entries[0].Source)
	assert.Equal(t, 4, entries[0].Parsed)
	assert.Equal(t, 4, entries[0].Skipped)
	assert.Equal(t, 2, entries[1].Parsed)
	assert.Equal(t, 1, entries[1].Skipped)
	assert.Equal(t, entries[0].RunID, entries[1].RunID)
	for _, e := range entries {
		assert.Equal(t, runlog.StatusOK, e.Status)
	}
}

func TestIngest_StatementLinesShareGroup(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "lines.txt")
	lines := "2023／０１／１５,ＡＢＣストア　１号店,1000,1,1,1000,\n" +
		"2023/01/16,ABCストア2号店,-500,1,1,-500,refund\n"
	require.NoError(t, os.WriteFile(src, []byte(lines), 0o644))

	out, err := runArgent(t, "ingest", "--repo", dir, "--encoding", "utf-8", src)
	require.NoError(t, err, out)

	txns := readExport(t, exported(t, dir, "transactions.csv"))
	require.Len(t, txns, 2)
	for _, txn := range txns {
		g, ok := txn.Group()
		require.True(t, ok)
		assert.Equal(t, "ABCストア", g)
	}
	assert.Equal(t, "2023/01/15", txns[0].Date)
	assert.Equal(t, "ABCストア1号店", txns[0].Description)

	// Explicit sources are left in place.
	_, err = os.Stat(src)
	assert.NoError(t, err)
}

func TestIngest_MissingSourceFails(t *testing.T) {
	dir := t.TempDir()
	stage(t, dir, "card_2023_02.csv")
	good := filepath.Join(dir, "import", "card_2023_02.csv")
	missing := filepath.Join(dir, "import", "missing.csv")

	_, err := runArgent(t, "ingest", "--repo", dir, missing, good)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.csv")

	matches, _ := filepath.Glob(filepath.Join(dir, "exports", "*"))
	assert.Empty(t, matches, "a failed run writes no exports")

	entries, err := runlog.Read(filepath.Join(dir, "logs", "ingest-log.csv"))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, runlog.StatusUnavailable, entries[0].Status)
	assert.NotEmpty(t, entries[0].Error)
	assert.Equal(t, runlog.StatusOK, entries[1].Status)
}

func TestIngest_KeepGoing(t *testing.T) {
	dir := t.TempDir()
	stage(t, dir, "card_2023_02.csv")
	good := filepath.Join(dir, "import", "card_2023_02.csv")
	missing := filepath.Join(dir, "import", "missing.csv")

	out, err := runArgent(t, "ingest", "--repo", dir, "--keep-going", missing, good)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Ingested 2 records from 2 sources into 2 groups")
}

func TestIngest_OutDir(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "elsewhere")
	stage(t, dir, "card_2023_02.csv")

	_, err := runArgent(t, "ingest", "--repo", dir, "--out", outDir)
	require.NoError(t, err)

	matches, err := filepath.Glob(filepath.Join(outDir, "*-groups.csv"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestIngest_Sort(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "lines.txt")
	lines := "2023/01/20,XYZマート,300,,,300,\n" +
		"2023/01/05,ABCストア1号店,900,,,900,\n" +
		"2023/01/20,ABCストア2号店,-100,,,-100,\n"
	require.NoError(t, os.WriteFile(src, []byte(lines), 0o644))

	_, err := runArgent(t, "ingest", "--repo", dir, "--encoding", "utf-8", "--sort", src)
	require.NoError(t, err)

	txns := readExport(t, exported(t, dir, "transactions.csv"))
	require.Len(t, txns, 3)
	assert.Equal(t, "ABCストア1号店", txns[0].Description)
	assert.Equal(t, "ABCストア2号店", txns[1].Description)
	assert.Equal(t, "XYZマート", txns[2].Description)
	g, _ := txns[1].Group()
	assert.Equal(t, "ABCストア", g)
}

func TestIngest_EnvFileEncoding(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "lines.txt")
	require.NoError(t, os.WriteFile(src, []byte("2023/01/16,ABCストア2号店,-500,1,1,-500,\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("ARGENT_ENCODING=utf-8\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("ARGENT_ENCODING") })

	out, err := runArgent(t, "ingest", "--repo", dir, src)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Ingested 1 records from 1 sources into 1 groups")
}

func TestIngest_NoSources(t *testing.T) {
	dir := t.TempDir()
	out, err := runArgent(t, "ingest", "--repo", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "No statement files to ingest")
}

func TestIngest_UnknownEncoding(t *testing.T) {
	dir := t.TempDir()
	stage(t, dir, "card_2023_02.csv")
	_, err := runArgent(t, "ingest", "--repo", dir, "--encoding", "klingon")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown encoding")
}

func TestIngest_UnknownFormat(t *testing.T) {
	dir := t.TempDir()
	stage(t, dir, "card_2023_02.csv")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "argent.yaml"), []byte("statement:\n  format: visa\n"), 0o644))

	_, err := runArgent(t, "ingest", "--repo", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown statement format "visa"`)
}

func TestIngest_CommitsRun(t *testing.T) {
	requireGit(t)
	dir := t.TempDir()
	_, err := runArgent(t, "init", dir)
	require.NoError(t, err)
	stage(t, dir, "card_2023_01.csv")

	out, err := runArgent(t, "ingest", "--repo", dir)
	require.NoError(t, err, out)

	assert.True(t, strings.HasPrefix(
		gitOutput(t, dir, "log", "--format=%s", "-1"),
		"ingest: 4 records from 1 sources (run ",
	))
	files := strings.Split(gitOutput(t, dir, "show", "--name-only", "--format=", "HEAD"), "\n")
	assert.Len(t, files, 3)
	assert.Contains(t, files, "logs/ingest-log.csv")
	assert.Empty(t, gitOutput(t, dir, "status", "--porcelain"))
}

func TestGroups(t *testing.T) {
	dir := t.TempDir()
	stage(t, dir, "card_2023_01.csv")
	_, err := runArgent(t, "ingest", "--repo", dir)
	require.NoError(t, err)

	out, err := runArgent(t, "groups", exported(t, dir, "transactions.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, report.SummaryHeader, lines[0])
	assert.Equal(t, "ガソリンスタンドENEOS,1,5400,5400,0.5455", lines[1])
	assert.Equal(t, "XYZマート,1,12000,4000,0.4040", lines[2])
	assert.Equal(t, "ABCストア,2,500,500,0.0505", lines[3])
}

func TestGroups_MissingFile(t *testing.T) {
	_, err := runArgent(t, "groups", filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opening export")
}
