package main

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// added to every rate limit wait, the reset time isn't exact.
const RATE_LIMIT_MARGIN = 10 * time.Second

// returns the time the rate limit resets, if `resp` says we were rate limited.
// Github signals this with a 403 (sometimes a 429) and a unix timestamp in `X-RateLimit-Reset`.
// a 403 without a reset time is a plain 'forbidden' and is not retried.
func throttled(resp ResponseWrapper) (time.Time, bool) {
	if resp.StatusCode != http.StatusForbidden && resp.StatusCode != http.StatusTooManyRequests {
		return time.Time{}, false
	}
	reset_header := resp.Header.Get("X-RateLimit-Reset")
	if reset_header == "" {
		return time.Time{}, false
	}
	reset, err := strconv.ParseFloat(strings.TrimSpace(reset_header), 64)
	if err != nil {
		slog.Warn("unparseable rate limit reset time", "x-ratelimit-reset", reset_header, "error", err)
		return time.Time{}, false
	}
	sec, frac := math.Modf(reset)
	return time.Unix(int64(sec), int64(frac*1e9)), true
}

// how long to wait for a rate limit resetting at `reset`, as seen at `now`.
// never negative, a reset time already in the past waits just the margin.
func wait_duration(reset, now time.Time) time.Duration {
	return max(reset.Sub(now), 0) + RATE_LIMIT_MARGIN
}

// blocks until the rate limit reported in `resp` has reset.
func wait(url string, resp ResponseWrapper, reset time.Time) {
	duration := wait_duration(reset, STATE.Now())
	slog.Info("Github returned HTTP "+strconv.Itoa(resp.StatusCode)+", sleeping until reset (plus ten seconds)",
		"url", url, "sleep", duration, "reset", reset.UTC().Format(time.RFC3339))
	STATE.Sleep(duration)
}

func github_headers() map[string]string {
	return map[string]string{
		"Accept":               "application/vnd.github+json",
		"Authorization":        "Bearer " + STATE.GithubToken,
		"X-GitHub-Api-Version": "2022-11-28",
	}
}

// makes an authenticated request against the Github REST API.
// when rate limited it sleeps until the limit resets and tries the identical request again, indefinitely.
// the returned response is never a rate limited one.
// transport errors are returned as-is and not retried.
func github_request(url string) (ResponseWrapper, error) {
	headers := github_headers()
	for {
		resp, err := download(url, headers)
		if err != nil {
			return ResponseWrapper{}, err
		}
		reset, limited := throttled(resp)
		if !limited {
			return resp, nil
		}
		wait(url, resp, reset)
	}
}

// "https://github.com/jquery/jquery.git" => "jquery", "jquery"
var scheme_pattern = regexp.MustCompile(`^\w+://`)

// returns the user and repository name from a Github repository URL.
// anything not hosted on github.com is not a match.
func github_repo_from_url(repo_url string) (string, string, bool) {
	if !strings.Contains(repo_url, "github.com/") {
		return "", "", false
	}
	stripped := scheme_pattern.ReplaceAllString(repo_url, "")
	stripped = strings.TrimRight(stripped, "/")
	parts := strings.Split(stripped, "/")
	if len(parts) < 3 {
		// just "github.com/foo"
		return "", "", false
	}
	user_name, repo_name := parts[len(parts)-2], parts[len(parts)-1]
	repo_name = strings.TrimSuffix(repo_name, ".git")
	if user_name == "" || repo_name == "" {
		return "", "", false
	}
	return user_name, repo_name, true
}

// number of Github stars a repository has.
// a repository that can't be found has no stars.
func github_stars(user_name, repo_name string) (int, error) {
	url := STATE.Config.GithubURL + fmt.Sprintf("/repos/%s/%s", user_name, repo_name)
	resp, err := github_request(url)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch repository '%s/%s': %w", user_name, repo_name, err)
	}
	if resp.StatusCode != http.StatusOK {
		slog.Debug("non-200 response fetching repository, assuming no stars", "repo", user_name+"/"+repo_name, "status", resp.StatusCode)
	}
	return int(gjson.Get(resp.Text, "stargazers_count").Int()), nil
}
