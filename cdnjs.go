package main

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

// a single version of a library and the files available for it.
type Asset struct {
	Version string   `json:"version"`
	Files   []string `json:"files"`
}

// what we'll render out
type Library struct {
	Name          string
	Description   string
	Version       string
	Homepage      string
	Keywords      []string
	License       string
	Author        string
	RepositoryURL string
	GithubRepo    string // "user/repo", empty when not hosted on Github
	Stars         int
	Assets        []Asset
	LatestURL     string
	LatestSize    int64
	LatestBanner  string
}

//go:embed schema/libraries.schema.json
var libraries_schema_json string

// ensures the cdnjs library listing looks the way we expect before anything is done with it.
func validate_library_list(json_blob string) error {
	schema, err := jsonschema.CompileString("libraries.schema.json", libraries_schema_json)
	if err != nil {
		return fmt.Errorf("failed to compile library listing schema: %w", err)
	}

	var doc any
	err = json.Unmarshal([]byte(json_blob), &doc)
	if err != nil {
		return fmt.Errorf("failed to parse library listing as JSON: %w", err)
	}

	err = schema.Validate(doc)
	if err != nil {
		return fmt.Errorf("library listing failed validation: %w", err)
	}
	return nil
}

func cdnjs_download(url string) (ResponseWrapper, error) {
	resp, err := download(url, nil)
	if err != nil {
		return resp, err
	}
	if resp.StatusCode != http.StatusOK {
		return ResponseWrapper{}, fmt.Errorf("unexpected response from cdnjs '%s': %d", url, resp.StatusCode)
	}
	return resp, nil
}

// fetches the full listing of libraries from cdnjs.
func fetch_library_list() ([]gjson.Result, error) {
	list_url := STATE.Config.CdnjsURL + "/libraries?fields=" + STATE.Config.Fields
	resp, err := cdnjs_download(list_url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch library listing: %w", err)
	}

	err = validate_library_list(resp.Text)
	if err != nil {
		return nil, err
	}

	return gjson.Get(resp.Text, "results").Array(), nil
}

// reads a field that may be a plain string or an object with a `key` string field.
// "Jane" => "Jane", {"name": "Jane"} => "Jane"
func string_or_field(val gjson.Result, key string) string {
	if val.IsObject() {
		return val.Get(key).String()
	}
	if val.Type == gjson.String {
		return val.String()
	}
	return ""
}

// converts a single cdnjs library listing result into a `Library`.
// nothing is fetched.
func library_from_result(item gjson.Result) Library {
	keywords := []string{} // null keywords happen
	for _, keyword := range item.Get("keywords").Array() {
		if keyword.Type == gjson.String {
			keywords = append(keywords, keyword.String())
		}
	}

	lib := Library{
		Name:          item.Get("name").String(),
		Description:   item.Get("description").String(),
		Version:       item.Get("version").String(),
		Homepage:      item.Get("homepage").String(),
		Keywords:      keywords,
		License:       string_or_field(item.Get("license"), "name"),
		Author:        string_or_field(item.Get("author"), "name"),
		RepositoryURL: string_or_field(item.Get("repository"), "url"),
		LatestURL:     item.Get("latest").String(),
	}

	user_name, repo_name, ok := github_repo_from_url(lib.RepositoryURL)
	if ok {
		lib.GithubRepo = user_name + "/" + repo_name
	}
	return lib
}

// library names become filenames, anything that could escape the output directory is rejected.
func valid_library_name(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}

// fetches the list of versions and their files for a library from cdnjs.
func fetch_cdnjs_assets(name string) ([]Asset, error) {
	assets_url := STATE.Config.CdnjsURL + "/libraries/" + url.PathEscape(name) + "?fields=assets"
	resp, err := cdnjs_download(assets_url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch assets using '%s': %w", assets_url, err)
	}

	val := gjson.Get(resp.Text, "assets")
	if !val.Exists() || !val.IsArray() {
		return nil, fmt.Errorf("expected field 'assets' not found using '%s'", assets_url)
	}

	asset_list := []Asset{}
	err = json.Unmarshal([]byte(val.Raw), &asset_list)
	if err != nil {
		return nil, fmt.Errorf("failed to parse assets using '%s': %w", assets_url, err)
	}
	return asset_list, nil
}

// groups the files in a library's tree listing by version.
// "1.2.3/dist/foo.min.js" => Asset{"1.2.3", ["dist/foo.min.js"]}
// files outside of a version directory are ignored.
func assets_from_tree(entry_list []GithubTreeEntry) []Asset {
	asset_list := []Asset{}
	idx := map[string]int{}
	for _, entry := range entry_list {
		if entry.Type != "blob" {
			continue
		}
		version, file, found := strings.Cut(entry.Path, "/")
		if !found || file == "" {
			continue
		}
		i, present := idx[version]
		if !present {
			i = len(asset_list)
			idx[version] = i
			asset_list = append(asset_list, Asset{Version: version, Files: []string{}})
		}
		asset_list[i].Files = append(asset_list[i].Files, file)
	}
	return asset_list
}

// fetches the list of versions and their files for a library from a Github mirror of cdnjs.
func fetch_github_assets(name string) ([]Asset, error) {
	config := STATE.Config
	tree_url := config.GithubURL + fmt.Sprintf("/repos/%s/git/trees/%s:%s/%s", config.AssetsRepo, config.AssetsRef, config.AssetsPath, url.PathEscape(name))
	tree, err := github_tree(tree_url, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	return assets_from_tree(tree.EntryList), nil
}

func fetch_assets(name string) ([]Asset, error) {
	if STATE.Config.AssetsSource == ASSETS_FROM_GITHUB {
		return fetch_github_assets(name)
	}
	return fetch_cdnjs_assets(name)
}

// builds a complete `Library` from a cdnjs library listing result,
// fetching its assets, star count and optionally probing its latest file.
func parse_library(item gjson.Result) (Library, error) {
	empty_response := Library{}

	lib := library_from_result(item)
	if !valid_library_name(lib.Name) {
		return empty_response, fmt.Errorf("bad library name: %q", lib.Name)
	}

	slog.Info("processing library", "library", lib.Name)

	asset_list, err := fetch_assets(lib.Name)
	if err != nil {
		return empty_response, err
	}
	lib.Assets = asset_list

	if lib.GithubRepo != "" {
		user_name, repo_name, _ := strings.Cut(lib.GithubRepo, "/")
		slog.Debug("fetching star count", "library", lib.Name, "repo", lib.GithubRepo)
		lib.Stars, err = github_stars(user_name, repo_name)
		if err != nil {
			return empty_response, err
		}
	}

	if STATE.Config.ProbeLatest && lib.LatestURL != "" {
		latest, err := probe_latest(lib.LatestURL)
		if err != nil {
			slog.Warn("failed to probe latest file, ignoring", "library", lib.Name, "url", lib.LatestURL, "error", err)
		} else {
			lib.LatestSize = latest.Size
			lib.LatestBanner = latest.Banner
		}
	}

	return lib, nil
}

// parses many cdnjs library listing results in to a list of `Library` structs.
// results that fail to parse are excluded from the final list.
// `limit` caps the number of results looked at, 0 for no limit.
func parse_library_list(item_list []gjson.Result, limit int) []Library {
	library_list := []Library{}
	for i, item := range item_list {
		if limit > 0 && i == limit {
			break
		}

		lib, err := parse_library(item)
		if err != nil {
			slog.Warn("skipping library", "library", item.Get("name").String(), "error", err)
			continue
		}
		library_list = append(library_list, lib)
	}
	return library_list
}

// most stars first, libraries with the same number of stars keep their original order.
func sort_libraries(library_list []Library) {
	slices.SortStableFunc(library_list, func(a, b Library) int {
		return b.Stars - a.Stars
	})
}
