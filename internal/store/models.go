package store

import "time"

type Mode string

const (
	ModeExport Mode = "export"
	ModeImport Mode = "import"
)

type Run struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Mode      Mode      `json:"mode"`
	User      string    `json:"user"`
	File      string    `json:"file"`
	DryRun    bool      `json:"dry_run"`
}

type Operation struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	Action    string    `json:"action"`
	Subreddit string    `json:"subreddit"`
	Outcome   string    `json:"outcome"`
	Error     string    `json:"error"`
	OrderIdx  int       `json:"order_idx"`
	CreatedAt time.Time `json:"created_at"`
}
