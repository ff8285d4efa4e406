package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParse_ValidDocument(t *testing.T) {
	data := []byte(`
events:
  - year: "2024"
    school: "ShuShu University"
    begin: "2024-01-01"
    end: "2024-01-02"
    description: "ShuShu College"
    url: "https://www.shushu.edu.cn/"
  - school: Other
    begin: 2024-03-01 09:00
`)
	events, skipped, err := Parse(data)
	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, events, 2)

	assert.Equal(t, "2024", events[0].Year)
	assert.Equal(t, "ShuShu University", events[0].School)
	assert.Equal(t, "2024-01-01", events[0].Begin)
	assert.Equal(t, "2024-01-02", events[0].End)
	assert.Equal(t, "ShuShu College", events[0].Description)
	assert.Equal(t, "https://www.shushu.edu.cn/", events[0].URL)

	assert.Equal(t, "Other", events[1].School)
	assert.Equal(t, "2024-03-01 09:00", events[1].Begin)
	assert.Empty(t, events[1].End)
	assert.Empty(t, events[1].Year)
}

func TestParse_NonStringScalarsKeepText(t *testing.T) {
	events, _, err := Parse([]byte("events:\n  - year: 2025\n    begin: 2025-06-01\n    end: 2025-06-30\n    school: null\n"))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "2025", events[0].Year)
	assert.Equal(t, "2025-06-01", events[0].Begin)
	assert.Equal(t, "2025-06-30", events[0].End)
	assert.Empty(t, events[0].School)
}

func TestParse_Rejections(t *testing.T) {
	cases := []struct {
		name string
		data string
		want error
	}{
		{"empty", "", ErrEmptyFile},
		{"whitespace", "  \n\t\n", ErrEmptyFile},
		{"comment only", "# nothing here\n", ErrNotMapping},
		{"scalar", "just a string\n", ErrNotMapping},
		{"sequence", "- a\n- b\n", ErrNotMapping},
		{"no events key", "school: A\n", ErrNoEventsKey},
		{"events is mapping", "events:\n  school: A\n", ErrEventsNotList},
		{"events is null", "events:\n", ErrEventsNotList},
		{"syntax", "events: [unclosed\n", ErrSyntax},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			events, _, err := Parse([]byte(tc.data))
			assert.ErrorIs(t, err, tc.want)
			assert.Empty(t, events)
		})
	}
}

func TestParse_EmptyListIsValid(t *testing.T) {
	events, skipped, err := Parse([]byte("events: []\n"))
	require.NoError(t, err)
	assert.Zero(t, skipped)
	assert.Empty(t, events)
}

func TestParse_SkipsUnusableEntries(t *testing.T) {
	data := []byte(`
events:
  - "not a mapping"
  - school: {nested: true}
  - school: Kept
`)
	events, skipped, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, 2, skipped)
	require.Len(t, events, 1)
	assert.Equal(t, "Kept", events[0].School)
}

func TestParse_Aliases(t *testing.T) {
	data := []byte(`
common: &list
  - school: Aliased
events: *list
`)
	events, _, err := Parse(data)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Aliased", events[0].School)
}

func TestLoad_MissingRoot(t *testing.T) {
	res := Load(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.ErrorIs(t, res.RootErr, ErrNotDirectory)
	assert.NotNil(t, res.Events)
	assert.Empty(t, res.Events)
}

func TestLoad_RootIsFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "file.yaml", "events: []\n")
	res := Load(path)
	assert.ErrorIs(t, res.RootErr, ErrNotDirectory)
	assert.Empty(t, res.Events)
}

func TestLoad_MergesInTraversalOrder(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a/one.yaml", "events:\n  - school: A1\n  - school: A2\n")
	writeFile(t, root, "a/two.yml", "events:\n  - school: A3\n")
	writeFile(t, root, "b/three.yaml", "events:\n  - school: B1\n")
	writeFile(t, root, "b/notes.txt", "events:\n  - school: ignored\n")

	res := Load(root)
	require.NoError(t, res.RootErr)
	require.Len(t, res.Files, 3)

	var schools []string
	for _, ev := range res.Events {
		schools = append(schools, ev.School)
	}
	assert.Equal(t, []string{"A1", "A2", "A3", "B1"}, schools)
	assert.Equal(t, filepath.Join(root, "a/one.yaml"), res.Events[0].Source)
}

func TestLoad_BadFilesDoNotAbort(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "1-empty.yaml", "")
	writeFile(t, root, "2-broken.yaml", "events: [unclosed\n")
	writeFile(t, root, "3-list.yaml", "- school: X\n")
	writeFile(t, root, "4-nokey.yaml", "school: X\n")
	writeFile(t, root, "5-good.yaml", "events:\n  - school: Good\n    begin: 2024-01-01\n    end: 2024-01-02\n")
	writeFile(t, root, "6-empty-list.yaml", "events: []\n")

	res := Load(root)
	require.Len(t, res.Events, 1)
	assert.Equal(t, "Good", res.Events[0].School)

	require.Len(t, res.Files, 6)
	assert.Equal(t, 2, res.Accepted())
	assert.Equal(t, 4, res.Rejected())

	assert.ErrorIs(t, res.Files[0].Err, ErrEmptyFile)
	assert.True(t, res.Files[0].Warning())
	assert.ErrorIs(t, res.Files[1].Err, ErrSyntax)
	assert.False(t, res.Files[1].Warning())
	assert.ErrorIs(t, res.Files[2].Err, ErrNotMapping)
	assert.ErrorIs(t, res.Files[3].Err, ErrNoEventsKey)
	assert.NoError(t, res.Files[4].Err)
	assert.Equal(t, 1, res.Files[4].Events)
	assert.NoError(t, res.Files[5].Err)
}

func TestLoad_CountEqualsSumOfValidLists(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "x/a.yaml", "events:\n  - school: A\n  - school: B\n  - school: C\n")
	writeFile(t, root, "y/b.yaml", "events:\n  - school: D\n")
	writeFile(t, root, "y/c.yaml", "not: valid\n")

	res := Load(root)
	sum := 0
	for _, f := range res.Files {
		sum += f.Events
	}
	assert.Equal(t, 4, sum)
	assert.Len(t, res.Events, sum)
}

func TestIsSourceFile(t *testing.T) {
	assert.True(t, IsSourceFile("a.yaml"))
	assert.True(t, IsSourceFile("a.YML"))
	assert.False(t, IsSourceFile("a.json"))
	assert.False(t, IsSourceFile("yaml"))
}
