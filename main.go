package main

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/lmittmann/tint"
	flag "github.com/spf13/pflag"
)

type State struct {
	Config      Config
	GithubToken string
	Client      *http.Client
	Now         func() time.Time
	Sleep       func(time.Duration)
}

func NewState() *State {
	return &State{
		Config: DefaultConfig(),
		Client: &http.Client{},
		Now:    time.Now,
		Sleep:  time.Sleep,
	}
}

// -- globals

var STATE *State

// --- bootstrap

func init_logging(verbosity int) {
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      log_level(verbosity),
		TimeFormat: time.RFC3339,
	})))
}

func init_state(args Args) *State {
	state := NewState()
	state.Config = args.Config

	token, err := read_token(args.TokenFile)
	die(err != nil, "failed to read Github token", "error", err)
	state.GithubToken = token

	client, err := new_client(state.Config.CacheDir)
	die(err != nil, "failed to create http client", "error", err)
	state.Client = client

	return state
}

func main() {
	args, err := parse_args(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	init_logging(args.Verbosity)
	die(err != nil, "bad arguments", "error", err)

	STATE = init_state(args)

	slog.Info("fetching library listing", "url", STATE.Config.CdnjsURL)
	item_list, err := fetch_library_list()
	die(err != nil, "failed to fetch library listing", "error", err)
	slog.Info("found libraries", "num", len(item_list))

	library_list := parse_library_list(item_list, STATE.Config.Limit)
	slog.Info("libraries parsed", "viable", len(library_list))

	sort_libraries(library_list)

	err = render_catalogue(library_list, args.OutputPath)
	die(err != nil, "failed to render catalogue", "error", err)
}
