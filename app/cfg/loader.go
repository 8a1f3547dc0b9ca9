package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

const (
	CommandInitDB   = "init-db"
	CommandRunDaily = "run-daily"
	CommandTrends   = "trends"
	CommandSelect   = "selection"
	CommandPropose  = "propose"
	CommandPromote  = "promote"
	CommandServe    = "serve"
)

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	DBPath        string `long:"db" env:"DB_PATH" default:"displacement_watch.db" description:"SQLite database file"`
	QueryPackPath string `long:"query-pack" env:"QUERY_PACK" default:"config/query_pack.yaml" description:"Active query pack (YAML or JSON)"`
	OutputDir     string `long:"output-dir" env:"OUTPUT_DIR" default:"out" description:"Directory for proposals and exports"`

	UserAgent     string `long:"user-agent" env:"USER_AGENT" default:"DisplacementWatch/1.0" description:"User agent string for HTTP requests"`
	FeedTimeout   int    `long:"feed-timeout" env:"FEED_TIMEOUT" default:"20" description:"Per-feed fetch timeout in seconds"`
	GDELTEndpoint string `long:"gdelt-endpoint" env:"GDELT_ENDPOINT" default:"https://api.gdeltproject.org/api/v2/doc/doc" description:"GDELT DOC API endpoint"`

	Debug bool `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

type runDailyOpts struct {
	SinceHours int  `long:"since-hours" env:"SINCE_HOURS" default:"24" description:"Selection window in hours"`
	MaxGDELT   int  `long:"max-gdelt" env:"MAX_GDELT" default:"100" description:"Maximum GDELT records per run"`
	Refine     bool `long:"refine" env:"REFINE" description:"Write a query pack proposal after the run"`
}

type selectionOpts struct {
	Date   string `long:"date" description:"Selection date (YYYY-MM-DD), latest when empty"`
	Format string `long:"format" default:"json" choice:"json" choice:"rss" description:"Output format"`
}

type promoteOpts struct {
	Args struct {
		Source string `positional-arg-name:"proposal" description:"Proposed query pack file"`
	} `positional-args:"yes" required:"yes"`
}

type serveOpts struct {
	Port              string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	BaseURL           string `long:"base-url" env:"BASE_URL" description:"Public base URL for the service"`
	APIAccessKey      string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`
	SchedulerInterval int    `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"86400" description:"Daily run interval in seconds"`
	RunOnStart        bool   `long:"run-on-start" env:"RUN_ON_START" description:"Run the pipeline once at startup"`

	runDailyOpts
}

type noOpts struct{}

// Load parses global options, the subcommand and its options from args and
// the environment. It returns nil, nil when help was requested.
func Load(args []string) (*Cfg, error) {
	var (
		raw       rawCfg
		runDaily  runDailyOpts
		selection selectionOpts
		promote   promoteOpts
		serve     serveOpts
	)

	parser := flags.NewParser(&raw, flags.Default)
	commands := []struct {
		name, short string
		data        any
	}{
		{CommandInitDB, "Create or migrate the database", &noOpts{}},
		{CommandRunDaily, "Collect, store and select the day's items", &runDaily},
		{CommandTrends, "Print rolling trend counts", &noOpts{}},
		{CommandSelect, "Print a day's selected items", &selection},
		{CommandPropose, "Propose the next query pack version", &noOpts{}},
		{CommandPromote, "Replace the active query pack with a proposal", &promote},
		{CommandServe, "Run the scheduler and HTTP API", &serve},
	}
	for _, c := range commands {
		if _, err := parser.AddCommand(c.name, c.short, c.short, c.data); err != nil {
			return nil, fmt.Errorf("failed to register command %s: %w", c.name, err)
		}
	}

	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:        raw.DBPath,
		QueryPackPath: raw.QueryPackPath,
		OutputDir:     raw.OutputDir,
		UserAgent:     raw.UserAgent,
		FeedTimeout:   time.Duration(raw.FeedTimeout) * time.Second,
		GDELTEndpoint: raw.GDELTEndpoint,
		Debug:         raw.Debug,
		Version:       GetVersion(),
		RunDaily: RunDailyCfg{
			SinceHours: runDaily.SinceHours,
			MaxGDELT:   runDaily.MaxGDELT,
			Refine:     runDaily.Refine,
		},
		Selection: SelectionCfg{
			Date:   selection.Date,
			Format: selection.Format,
		},
		Promote: PromoteCfg{
			Source: promote.Args.Source,
		},
		Serve: ServeCfg{
			Port:              serve.Port,
			BaseURL:           serve.BaseURL,
			APIAccessKey:      serve.APIAccessKey,
			SchedulerInterval: time.Duration(serve.SchedulerInterval) * time.Second,
			RunOnStart:        serve.RunOnStart,
			RunDaily: RunDailyCfg{
				SinceHours: serve.SinceHours,
				MaxGDELT:   serve.MaxGDELT,
				Refine:     serve.Refine,
			},
		},
	}

	if parser.Active != nil {
		cfg.Command = parser.Active.Name
	}

	return cfg, nil
}
