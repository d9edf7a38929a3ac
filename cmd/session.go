package cmd

import (
	"context"
	"os"

	"resub/internal/reconcile"
	"resub/internal/reddit"
	"resub/internal/snapshot"
	"resub/internal/store"

	"github.com/rs/zerolog/log"
)

func login(ctx context.Context) (*reddit.Client, error) {
	if flagUser != "" {
		cfg.Reddit.Username = flagUser
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return reddit.Login(ctx, reddit.Credentials{
		ClientID:     cfg.Reddit.ClientID,
		ClientSecret: cfg.Reddit.ClientSecret,
		Username:     cfg.Reddit.Username,
		Password:     cfg.Reddit.Password,
		UserAgent:    cfg.Reddit.UserAgent,
	},
		reddit.WithBaseURL(cfg.Reddit.APIURL),
		reddit.WithTokenURL(cfg.Reddit.TokenURL),
		reddit.WithTimeout(cfg.Timeout),
	)
}

// snapshotFile names the snapshot after the account Reddit reports, not
// the one typed on the command line.
func snapshotFile(user string) string {
	if flagFile != "" {
		return flagFile
	}
	return snapshot.DefaultFilename(user)
}

func reconcilerOptions(dryRun bool, observe func(reconcile.Op)) []reconcile.Option {
	return []reconcile.Option{
		reconcile.WithDelay(cfg.Delay),
		reconcile.WithRetries(cfg.Retries),
		reconcile.WithBackoff(cfg.Backoff),
		reconcile.WithDryRun(dryRun),
		reconcile.WithObserver(observe),
	}
}

// recorder writes a run and its operations to the history database when
// the working directory has one. Without it every method is a no-op.
type recorder struct {
	st  *store.Store
	run *store.Run
	n   int
}

func startRecording(mode store.Mode, user, file string, dryRun bool) *recorder {
	dir, err := os.Getwd()
	if err != nil || !store.Exists(dir) {
		return &recorder{}
	}
	return startRecordingIn(dir, mode, user, file, dryRun)
}

func startRecordingIn(dir string, mode store.Mode, user, file string, dryRun bool) *recorder {
	st, err := store.New(dir)
	if err != nil {
		log.Warn().Err(err).Msg("history disabled")
		return &recorder{}
	}
	run, err := st.CreateRun(mode, user, file, dryRun)
	if err != nil {
		log.Warn().Err(err).Msg("history disabled")
		st.Close()
		return &recorder{}
	}
	log.Debug().Str("run_id", run.ID).Msg("recording run")
	return &recorder{st: st, run: run}
}

func (r *recorder) record(op reconcile.Op) {
	if r.st == nil {
		return
	}
	errText := ""
	if op.Err != nil {
		errText = op.Err.Error()
	}
	if _, err := r.st.AddOperation(r.run.ID, string(op.Action), op.Name, string(op.Outcome), errText, r.n); err != nil {
		log.Warn().Err(err).Str("run_id", r.run.ID).Msg("could not record operation")
	}
	r.n++
}

func (r *recorder) runID() string {
	if r.run == nil {
		return ""
	}
	return r.run.ID
}

func (r *recorder) close() {
	if r.st != nil {
		r.st.Close()
	}
}
