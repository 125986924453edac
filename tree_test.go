package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// a Github serving tree listings from `routes`, keyed by request path and query.
// requests for anything else are a 404.
type tree_server struct {
	*httptest.Server
	routes      map[string]string
	request_log []string
}

func new_tree_server(t *testing.T) *tree_server {
	t.Helper()
	ts := &tree_server{routes: map[string]string{}}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.RequestURI()
		ts.request_log = append(ts.request_log, key)
		body, present := ts.routes[key]
		if !present {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"message": "Not Found"}`))
			return
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)
	return ts
}

// adds a route returning `tree` as json.
func (ts *tree_server) add(t *testing.T, request_uri string, tree GithubTree) {
	t.Helper()
	b, err := json.Marshal(tree)
	require.NoError(t, err)
	ts.routes[request_uri] = string(b)
}

func blob(path string) GithubTreeEntry {
	return GithubTreeEntry{Path: path, Type: "blob", Mode: "100644"}
}

func subtree(path, url string) GithubTreeEntry {
	return GithubTreeEntry{Path: path, Type: "tree", Mode: "040000", URL: url}
}

func paths(entry_list []GithubTreeEntry) []string {
	acc := []string{}
	for _, entry := range entry_list {
		acc = append(acc, entry.Path)
	}
	return acc
}

func Test_first_segment(t *testing.T) {
	cases := map[string]string{
		"":            "",
		"a":           "a",
		"a/":          "a",
		"a/b":         "a",
		"a/b/c.js":    "a",
		"1.2.3/x.js":  "1.2.3",
		"/leading":    "",
		"README.md":   "README.md",
		"dist/a.map":  "dist",
		"dist/a/b/c/": "dist",
	}
	for given, expected := range cases {
		assert.Equal(t, expected, first_segment(given), given)
	}
}

func Test_complete_prefix_groups(t *testing.T) {
	var cases = []struct {
		given            []string
		expected         []string
		expected_members []string
	}{
		{[]string{}, []string{}, []string{}},

		// one group that may have been cut short, nothing is provably complete
		{[]string{"a/1"}, []string{}, []string{}},
		{[]string{"a", "a/1", "a/2"}, []string{}, []string{}},

		// 'a' is followed by 'b', so 'a' is complete
		{[]string{"a/1", "a/2", "b/1"}, []string{"a/1", "a/2"}, []string{"a"}},

		{
			[]string{"a", "a/1", "b", "b/1", "b/2/x", "c.js", "d", "d/1"},
			[]string{"a", "a/1", "b", "b/1", "b/2/x", "c.js"},
			[]string{"a", "b", "c.js"},
		},
	}
	for _, c := range cases {
		given := []GithubTreeEntry{}
		for _, path := range c.given {
			given = append(given, blob(path))
		}
		actual, complete := complete_prefix_groups(given)
		assert.Equal(t, c.expected, paths(actual), c.given)
		assert.Len(t, complete, len(c.expected_members), c.given)
		for _, prefix := range c.expected_members {
			assert.True(t, complete[prefix], prefix)
		}
	}
}

func Test_recursive_tree_url(t *testing.T) {
	cases := map[string]string{
		"https://api.github.com/repos/a/b/git/trees/abc":             "https://api.github.com/repos/a/b/git/trees/abc?recursive=1",
		"https://api.github.com/repos/a/b/git/trees/abc?foo=bar":     "https://api.github.com/repos/a/b/git/trees/abc?foo=bar&recursive=1",
		"https://api.github.com/repos/a/b/git/trees/abc?recursive=0": "https://api.github.com/repos/a/b/git/trees/abc?recursive=1",
	}
	for given, expected := range cases {
		actual, err := recursive_tree_url(given)
		require.NoError(t, err)
		assert.Equal(t, expected, actual)
	}
}

// a complete recursive listing is returned exactly as given.
func Test_github_tree__not_truncated(t *testing.T) {
	test_state(t)
	ts := new_tree_server(t)
	full := GithubTree{
		SHA: "root",
		URL: ts.URL + "/trees/root",
		EntryList: []GithubTreeEntry{
			subtree("a", ts.URL+"/trees/a"),
			blob("a/1"),
			blob("b.js"),
		},
	}
	ts.add(t, "/trees/root?recursive=1", full)

	actual, err := github_tree(ts.URL+"/trees/root", true)
	require.NoError(t, err)
	assert.Equal(t, full, actual)
	assert.Equal(t, []string{"/trees/root?recursive=1"}, ts.request_log)
}

// a 'truncated' field that is absent is the same as false.
func Test_github_tree__truncated_absent(t *testing.T) {
	test_state(t)
	ts := new_tree_server(t)
	ts.routes["/trees/root?recursive=1"] = `{"sha": "root", "tree": [{"path": "a.js", "type": "blob"}]}`

	actual, err := github_tree(ts.URL+"/trees/root", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.js"}, paths(actual.EntryList))
	assert.False(t, actual.Truncated)
	assert.Len(t, ts.request_log, 1)
}

// a non-recursive listing is a single request, returned as-is.
func Test_github_tree__not_recursive(t *testing.T) {
	test_state(t)
	ts := new_tree_server(t)
	top_level := GithubTree{
		SHA:       "root",
		EntryList: []GithubTreeEntry{subtree("a", ts.URL+"/trees/a"), blob("b.js")},
		Truncated: true,
	}
	ts.add(t, "/trees/root", top_level)

	actual, err := github_tree(ts.URL+"/trees/root", false)
	require.NoError(t, err)
	assert.Equal(t, top_level, actual)
	assert.Equal(t, []string{"/trees/root"}, ts.request_log)
}

// a truncated listing is completed using the top-level listing and per-subtree listings.
// the result is the same as if Github had never truncated anything.
func Test_github_tree__truncated(t *testing.T) {
	test_state(t)
	ts := new_tree_server(t)

	full := []GithubTreeEntry{
		subtree("a", ts.URL+"/trees/a"),
		blob("a/1"),
		blob("a/2"),
		subtree("b", ts.URL+"/trees/b"),
		blob("b/1"),
		subtree("b/c", ts.URL+"/trees/bc"),
		blob("b/c/x"),
		blob("d"),
	}

	// cut short part way through 'b'
	ts.add(t, "/trees/root?recursive=1", GithubTree{SHA: "root", EntryList: full[:5], Truncated: true})
	ts.add(t, "/trees/root", GithubTree{
		SHA:       "root",
		URL:       ts.URL + "/trees/root",
		EntryList: []GithubTreeEntry{subtree("a", ts.URL+"/trees/a"), subtree("b", ts.URL+"/trees/b"), blob("d")},
	})
	ts.add(t, "/trees/b?recursive=1", GithubTree{
		SHA:       "b",
		EntryList: []GithubTreeEntry{blob("1"), subtree("c", ts.URL+"/trees/bc"), blob("c/x")},
	})

	actual, err := github_tree(ts.URL+"/trees/root", true)
	require.NoError(t, err)

	assert.Equal(t, paths(full), paths(actual.EntryList))
	assert.False(t, actual.Truncated)
	assert.Equal(t, "root", actual.SHA)
	assert.Equal(t, ts.URL+"/trees/root", actual.URL)

	// 'a' was complete and never fetched again
	assert.Equal(t, []string{"/trees/root?recursive=1", "/trees/root", "/trees/b?recursive=1"}, ts.request_log)
}

// subtrees that are themselves truncated are completed the same way,
// sub-entry paths are prefixed with the path of each parent.
func Test_github_tree__truncated_nested(t *testing.T) {
	test_state(t)
	ts := new_tree_server(t)

	// nothing is provably complete at the root
	ts.add(t, "/trees/root?recursive=1", GithubTree{EntryList: []GithubTreeEntry{subtree("a", ts.URL+"/trees/a"), blob("a/1")}, Truncated: true})
	ts.add(t, "/trees/root", GithubTree{EntryList: []GithubTreeEntry{subtree("a", ts.URL+"/trees/a")}})

	ts.add(t, "/trees/a?recursive=1", GithubTree{EntryList: []GithubTreeEntry{blob("1"), subtree("b", ts.URL+"/trees/ab")}, Truncated: true})
	ts.add(t, "/trees/a", GithubTree{EntryList: []GithubTreeEntry{blob("1"), subtree("b", ts.URL+"/trees/ab")}})

	ts.add(t, "/trees/ab?recursive=1", GithubTree{EntryList: []GithubTreeEntry{blob("x"), blob("y")}})

	actual, err := github_tree(ts.URL+"/trees/root", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "a/1", "a/b", "a/b/x", "a/b/y"}, paths(actual.EntryList))
}

// a fallback listing without a 'tree' field is an error naming the url and the payload.
func Test_github_tree__fallback_missing_tree(t *testing.T) {
	test_state(t)
	ts := new_tree_server(t)
	ts.add(t, "/trees/root?recursive=1", GithubTree{EntryList: []GithubTreeEntry{blob("a/1"), blob("b/1")}, Truncated: true})
	ts.routes["/trees/root"] = `{"sha": "root", "truncated": false}`

	actual, err := github_tree(ts.URL+"/trees/root", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected field 'tree' not found")
	assert.Contains(t, err.Error(), ts.URL+"/trees/root")
	assert.Contains(t, err.Error(), `{"sha": "root", "truncated": false}`)
	assert.Equal(t, GithubTree{}, actual)
	assert.Len(t, ts.request_log, 2)
}

// a failing subtree aborts the whole listing.
func Test_github_tree__subtree_error(t *testing.T) {
	test_state(t)
	ts := new_tree_server(t)
	ts.add(t, "/trees/root?recursive=1", GithubTree{EntryList: []GithubTreeEntry{blob("a/1"), blob("b/1")}, Truncated: true})
	ts.add(t, "/trees/root", GithubTree{EntryList: []GithubTreeEntry{subtree("a", ts.URL+"/trees/a"), subtree("b", ts.URL+"/trees/b")}})
	// no route for '/trees/b?recursive=1'

	_, err := github_tree(ts.URL+"/trees/root", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to resolve subtree 'b'")
	assert.Contains(t, err.Error(), "404")
}
