package cfg

import "time"

type Cfg struct {
	// Active subcommand
	Command string

	// Storage and query pack
	DBPath        string
	QueryPackPath string
	OutputDir     string

	// Collection
	UserAgent     string
	FeedTimeout   time.Duration
	GDELTEndpoint string

	// Application metadata
	Debug   bool
	Version string

	RunDaily  RunDailyCfg
	Selection SelectionCfg
	Promote   PromoteCfg
	Serve     ServeCfg
}

type RunDailyCfg struct {
	SinceHours int
	MaxGDELT   int
	Refine     bool
}

type SelectionCfg struct {
	Date   string
	Format string
}

type PromoteCfg struct {
	Source string
}

type ServeCfg struct {
	Port              string
	BaseURL           string
	APIAccessKey      string
	SchedulerInterval time.Duration
	RunOnStart        bool
	RunDaily          RunDailyCfg
}
