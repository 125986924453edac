package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

// an entry in a Github git tree listing.
// a 'blob' is a file, a 'tree' is a directory whose own listing lives at `URL`.
type GithubTreeEntry struct {
	Path string `json:"path"`
	Mode string `json:"mode"`
	Type string `json:"type"` // "blob" or "tree"
	SHA  string `json:"sha"`
	Size int64  `json:"size,omitempty"`
	URL  string `json:"url,omitempty"`
}

// a Github git tree listing.
// entries are ordered by path, so entries sharing a first path segment are contiguous.
type GithubTree struct {
	SHA       string            `json:"sha"`
	URL       string            `json:"url"`
	EntryList []GithubTreeEntry `json:"tree"`
	Truncated bool              `json:"truncated"`
}

// "foo/bar/baz.js" => "foo"
func first_segment(path string) string {
	prefix, _, _ := strings.Cut(path, "/")
	return prefix
}

// adds `?recursive=1` to the tree url, preserving any existing query.
func recursive_tree_url(tree_url string) (string, error) {
	u, err := url.Parse(tree_url)
	if err != nil {
		return "", fmt.Errorf("failed to parse tree url '%s': %w", tree_url, err)
	}
	q := u.Query()
	q.Set("recursive", "1")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// fetches and parses a single tree listing.
// a listing missing the 'tree' field can't be trusted and is an error.
func fetch_tree(tree_url string) (GithubTree, error) {
	empty_response := GithubTree{}

	resp, err := github_request(tree_url)
	if err != nil {
		return empty_response, err
	}

	if resp.StatusCode != http.StatusOK {
		return empty_response, fmt.Errorf("unexpected response fetching tree '%s': %d: %s", tree_url, resp.StatusCode, resp.Text)
	}

	if !gjson.Get(resp.Text, "tree").Exists() {
		return empty_response, fmt.Errorf("expected field 'tree' not found in response from '%s': %s", tree_url, resp.Text)
	}

	var tree GithubTree
	err = json.Unmarshal([]byte(resp.Text), &tree)
	if err != nil {
		return empty_response, fmt.Errorf("failed to parse tree listing from '%s' as JSON: %w", tree_url, err)
	}
	return tree, nil
}

// splits a truncated listing into the entries whose first path segment is provably complete
// and the set of those segments.
// a group is complete once a different first segment follows it, so the last group never is.
//
//	[a/1, a/2, b/1] => [a/1, a/2], {a}
//	[a/1]           => [], {}
func complete_prefix_groups(entry_list []GithubTreeEntry) ([]GithubTreeEntry, map[string]bool) {
	complete := map[string]bool{}
	if len(entry_list) == 0 {
		return []GithubTreeEntry{}, complete
	}

	// index of the first entry in the last group
	last_group_start := 0
	for i := 1; i < len(entry_list); i++ {
		if first_segment(entry_list[i].Path) != first_segment(entry_list[i-1].Path) {
			complete[first_segment(entry_list[i-1].Path)] = true
			last_group_start = i
		}
	}

	kept := make([]GithubTreeEntry, last_group_start)
	copy(kept, entry_list[:last_group_start])
	return kept, complete
}

// returns the tree listing at `tree_url`.
// when `recursive` is true, the listing includes every entry below `tree_url` with paths
// relative to it, even when Github truncates the recursive listing.
// Github truncates recursive listings somewhere past 100k entries, in which case the complete
// portion is kept and everything else is listed one subtree at a time.
func github_tree(tree_url string, recursive bool) (GithubTree, error) {
	empty_response := GithubTree{}

	if !recursive {
		return fetch_tree(tree_url)
	}

	full_url, err := recursive_tree_url(tree_url)
	if err != nil {
		return empty_response, err
	}

	tree, err := fetch_tree(full_url)
	if err != nil {
		return empty_response, err
	}

	if !tree.Truncated {
		return tree, nil
	}

	entry_list, complete := complete_prefix_groups(tree.EntryList)
	slog.Info("tree listing truncated, fetching remainder", "url", tree_url, "complete-entries", len(entry_list), "complete-prefixes", len(complete))

	top_level, err := fetch_tree(tree_url)
	if err != nil {
		return empty_response, err
	}

	for _, entry := range top_level.EntryList {
		if complete[entry.Path] {
			continue
		}
		entry_list = append(entry_list, entry)
		if entry.Type != "tree" {
			continue
		}

		subtree, err := github_tree(entry.URL, true)
		if err != nil {
			return empty_response, fmt.Errorf("failed to resolve subtree '%s': %w", entry.Path, err)
		}
		for _, sub_entry := range subtree.EntryList {
			sub_entry.Path = entry.Path + "/" + sub_entry.Path
			entry_list = append(entry_list, sub_entry)
		}
	}

	top_level.EntryList = entry_list
	top_level.Truncated = false
	return top_level, nil
}
