package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	flag "github.com/spf13/pflag"
)

const TOKEN_ENVVAR = "CDNJS_CATALOGUE_GITHUB_TOKEN"

const (
	ASSETS_FROM_CDNJS  = "cdnjs"
	ASSETS_FROM_GITHUB = "github"
)

// everything that can be set in a config file.
type Config struct {
	CdnjsURL      string `toml:"cdnjs_url"`
	GithubURL     string `toml:"github_url"`
	Fields        string `toml:"fields"`
	IndexTemplate string `toml:"index_template"`
	ModalTemplate string `toml:"modal_template"`
	CacheDir      string `toml:"cache_dir"`
	AssetsSource  string `toml:"assets_source"`
	AssetsRepo    string `toml:"assets_repo"`
	AssetsRef     string `toml:"assets_ref"`
	AssetsPath    string `toml:"assets_path"`
	Limit         int    `toml:"limit"`
	ProbeLatest   bool   `toml:"probe_latest"`
}

func DefaultConfig() Config {
	return Config{
		CdnjsURL:     "https://api.cdnjs.com",
		GithubURL:    "https://api.github.com",
		Fields:       "version,description,homepage,keywords,license,repository,author,latest",
		AssetsSource: ASSETS_FROM_CDNJS,
		AssetsRepo:   "cdnjs/cdnjs",
		AssetsRef:    "master",
		AssetsPath:   "ajax/libs",
	}
}

// what was given on the command line.
type Args struct {
	Verbosity  int
	TokenFile  string
	ConfigFile string
	OutputPath string
	Config     Config
}

// parses `arg_list` (without the program name) into `Args`.
// values from a --config file are applied first and explicitly given flags override them.
func parse_args(arg_list []string) (Args, error) {
	args := Args{}
	config := DefaultConfig()

	flags := flag.NewFlagSet("cdnjs-catalogue", flag.ContinueOnError)
	flags.CountVarP(&args.Verbosity, "verbose", "v", "increase logging verbosity, repeatable")
	flags.StringVar(&args.TokenFile, "token", "", "file containing a Github personal access token with 'public_repo' permission (or set "+TOKEN_ENVVAR+")")
	flags.StringVar(&args.ConfigFile, "config", "", "path to a TOML config file")

	// these mirror the config file and are only applied when given
	cache_dir := flags.String("cache-dir", "", "cache HTTP 200 responses in this directory (development only)")
	assets_source := flags.String("assets-source", "", "where to list library assets from: 'cdnjs' or 'github'")
	index_template := flags.String("index-template", "", "template file for index.html, overriding the built-in one")
	modal_template := flags.String("modal-template", "", "template file for each library modal, overriding the built-in one")
	limit := flags.Int("limit", 0, "process only the first N libraries, 0 for all")
	probe_latest := flags.Bool("probe-latest", false, "probe each library's latest file for its size and banner")

	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: cdnjs-catalogue [flags] <outputpath>\n")
		flags.PrintDefaults()
	}

	err := flags.Parse(arg_list)
	if err != nil {
		return args, err
	}

	if flags.NArg() != 1 {
		return args, errors.New("expected exactly one output path")
	}
	args.OutputPath = flags.Arg(0)

	if args.ConfigFile != "" {
		config, err = read_config(args.ConfigFile, config)
		if err != nil {
			return args, err
		}
	}

	if flags.Changed("cache-dir") {
		config.CacheDir = *cache_dir
	}
	if flags.Changed("assets-source") {
		config.AssetsSource = *assets_source
	}
	if flags.Changed("index-template") {
		config.IndexTemplate = *index_template
	}
	if flags.Changed("modal-template") {
		config.ModalTemplate = *modal_template
	}
	if flags.Changed("limit") {
		config.Limit = *limit
	}
	if flags.Changed("probe-latest") {
		config.ProbeLatest = *probe_latest
	}

	err = validate_config(config)
	if err != nil {
		return args, err
	}
	args.Config = config
	return args, nil
}

// reads a TOML config file over the top of `config`.
func read_config(path string, config Config) (Config, error) {
	md, err := toml.DecodeFile(path, &config)
	if err != nil {
		return config, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}
	for _, key := range md.Undecoded() {
		slog.Warn("unknown key in config file, ignoring", "config", path, "key", key.String())
	}
	return config, nil
}

func validate_config(config Config) error {
	if config.AssetsSource != ASSETS_FROM_CDNJS && config.AssetsSource != ASSETS_FROM_GITHUB {
		return fmt.Errorf("unsupported assets source '%s', expected '%s' or '%s'", config.AssetsSource, ASSETS_FROM_CDNJS, ASSETS_FROM_GITHUB)
	}
	if config.AssetsSource == ASSETS_FROM_GITHUB && strings.Count(config.AssetsRepo, "/") != 1 {
		return fmt.Errorf("assets repository must look like 'owner/repo', not '%s'", config.AssetsRepo)
	}
	if config.Limit < 0 {
		return errors.New("limit cannot be negative")
	}
	return nil
}

// the Github token, read from `token_file` if given, otherwise from the environment.
func read_token(token_file string) (string, error) {
	if token_file != "" {
		if !path_exists(token_file) {
			return "", fmt.Errorf("token file not found: %s", token_file)
		}
		return slurp(token_file)
	}
	token, present := os.LookupEnv(TOKEN_ENVVAR)
	if !present || trim(token) == "" {
		return "", fmt.Errorf("a Github token is required, use --token or set %s", TOKEN_ENVVAR)
	}
	return trim(token), nil
}

// warning by default, each -v lowers the level by one step to a floor of debug.
func log_level(verbosity int) slog.Level {
	level := slog.LevelWarn - slog.Level(4*verbosity)
	return max(level, slog.LevelDebug)
}
