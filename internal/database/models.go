package database

// RunReport holds metadata about a pipeline run.
type RunReport struct {
	ID             int64
	PeriodID       string
	GeneratedAt    *string
	SourceCount    int
	EventCount     int
	UniqueCount    int
	DuplicateCount int
	SelectedCount  int
	SkippedSources []string
}

// SourceRun records what one source produced in one run.
type SourceRun struct {
	PeriodID   string
	Slug       string
	Adapter    string
	EventCount int
	Error      string
}

// SourcePerformance aggregates SourceRun rows for one source.
type SourcePerformance struct {
	Slug        string
	Runs        int
	TotalEvents int
	EmptyRuns   int
	LastAdapter string
	LastError   string
}

// PortfolioInfo is the listing row of an archived portfolio.
type PortfolioInfo struct {
	PeriodID       string
	TotalSelected  int
	WeeksScheduled int
	GeneratedAt    *string
}

// RegistrySource counts registry entries per source.
type RegistrySource struct {
	Source string
	Count  int
}

// RegistryStats summarizes the registry.
type RegistryStats struct {
	Total    int
	Oldest   string
	Newest   string
	BySource []RegistrySource
}

// Stats contains aggregate database statistics.
type Stats struct {
	RegistryEntries int
	Candidates      int
	Periods         int
	Portfolios      int
	RunReports      int
	BusyDays        int
}
