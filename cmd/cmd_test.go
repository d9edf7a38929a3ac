package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"resub/internal/config"
	"resub/internal/reconcile"
	"resub/internal/snapshot"
	"resub/internal/store"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReddit serves just enough of the Reddit API for one account.
type fakeReddit struct {
	mu      sync.Mutex
	subs    map[string]bool
	missing map[string]bool
	changes int
}

func (f *fakeReddit) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	switch r.URL.Path {
	case "/api/v1/access_token":
		fmt.Fprint(w, `{"access_token":"tok","token_type":"bearer","expires_in":3600}`)
	case "/api/v1/me":
		fmt.Fprint(w, `{"name":"spez"}`)
	case "/subreddits/mine/subscriber":
		type child struct {
			Data struct {
				DisplayName string `json:"display_name"`
			} `json:"data"`
		}
		var children []child
		for name := range f.subs {
			var c child
			c.Data.DisplayName = name
			children = append(children, c)
		}
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"after": "", "children": children}})
	case "/api/subscribe":
		f.changes++
		r.ParseForm()
		name := r.Form.Get("sr_name")
		if f.missing[name] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Form.Get("action") == "sub" {
			f.subs[name] = true
		} else {
			delete(f.subs, name)
		}
		fmt.Fprint(w, `{}`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeReddit) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.changes
}

func (f *fakeReddit) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for n := range f.subs {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func setup(t *testing.T, f *fakeReddit) string {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	t.Chdir(dir)

	c := &config.Config{Retries: 1, Timeout: 5 * time.Second}
	c.Reddit.ClientID = "client"
	c.Reddit.Username = "spez"
	c.Reddit.Password = "hunter2"
	c.Reddit.UserAgent = "resub-test"
	c.Reddit.APIURL = srv.URL
	c.Reddit.TokenURL = srv.URL + "/api/v1/access_token"
	cfg = c

	flagUser, flagFile = "", ""
	t.Cleanup(func() { flagUser, flagFile = "", "" })
	return dir
}

func TestRootFlags(t *testing.T) {
	t.Cleanup(func() { flagUser, flagFile, flagImport, flagDebug = "", "", false, false })

	err := rootCmd.ParseFlags([]string{"-i", "-u", "spez", "-f", "old.subs", "-d"})
	require.NoError(t, err)

	assert.True(t, flagImport)
	assert.True(t, flagDebug)
	assert.Equal(t, "spez", flagUser)
	assert.Equal(t, "old.subs", flagFile)
}

func TestSnapshotFile(t *testing.T) {
	t.Cleanup(func() { flagFile = "" })

	flagFile = ""
	assert.Equal(t, "spez.subs", snapshotFile("spez"))
	flagFile = "mine.json"
	assert.Equal(t, "mine.json", snapshotFile("spez"))
}

func TestExportWritesSnapshot(t *testing.T) {
	f := &fakeReddit{subs: map[string]bool{"pics": true, "AskReddit": true, "news": true}}
	dir := setup(t, f)

	require.NoError(t, runExport(context.Background(), false))

	data, err := os.ReadFile(filepath.Join(dir, "spez.subs"))
	require.NoError(t, err)
	assert.Equal(t, "[\n  \"AskReddit\",\n  \"news\",\n  \"pics\"\n]\n", string(data))
}

func TestImportReconciles(t *testing.T) {
	f := &fakeReddit{
		subs:    map[string]bool{"news": true, "funny": true},
		missing: map[string]bool{"funny": true},
	}
	dir := setup(t, f)
	require.NoError(t, snapshot.Save(filepath.Join(dir, "spez.subs"), mapset.NewSet("pics", "news")))

	require.NoError(t, runImport(context.Background(), false))

	// funny reported not found on unsubscribe, pics still got subscribed
	assert.Equal(t, []string{"funny", "news", "pics"}, f.names())
}

func TestImportDryRun(t *testing.T) {
	f := &fakeReddit{subs: map[string]bool{"news": true, "funny": true}}
	dir := setup(t, f)
	require.NoError(t, snapshot.Save(filepath.Join(dir, "spez.subs"), mapset.NewSet("pics", "news")))

	require.NoError(t, runImport(context.Background(), true))
	assert.Equal(t, []string{"funny", "news"}, f.names())
}

func TestImportMalformedSnapshot(t *testing.T) {
	inputs := map[string]string{
		"object":   `{"pics": 1}`,
		"null":     `null`,
		"number":   `42`,
		"string":   `"pics"`,
		"trailing": `["pics"] garbage`,
	}
	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			f := &fakeReddit{subs: map[string]bool{"news": true, "funny": true}}
			dir := setup(t, f)
			bad := filepath.Join(dir, "bad.subs")
			require.NoError(t, os.WriteFile(bad, []byte(in), 0644))
			flagFile = bad

			err := runImport(context.Background(), false)
			assert.ErrorIs(t, err, snapshot.ErrMalformed)
			assert.Zero(t, f.calls())
			assert.Equal(t, []string{"funny", "news"}, f.names())
		})
	}
}

func TestImportMissingSnapshot(t *testing.T) {
	f := &fakeReddit{subs: map[string]bool{"news": true}}
	setup(t, f)

	err := runImport(context.Background(), false)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestImportRecordsHistory(t *testing.T) {
	f := &fakeReddit{subs: map[string]bool{"news": true}}
	dir := setup(t, f)
	require.NoError(t, snapshot.Save(filepath.Join(dir, "spez.subs"), mapset.NewSet("pics")))

	st, err := store.New(dir)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	require.NoError(t, runImport(context.Background(), false))

	st, err = store.New(dir)
	require.NoError(t, err)
	defer st.Close()

	runs, err := st.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, store.ModeImport, runs[0].Mode)

	var buf bytes.Buffer
	require.NoError(t, printRun(&buf, st, runs[0].ID[:8]))
	assert.Contains(t, buf.String(), "[subscribe] r/pics subscribed")
	assert.Contains(t, buf.String(), "[unsubscribe] r/news unsubscribed")

	buf.Reset()
	require.NoError(t, printHistory(&buf, st, 10))
	assert.Contains(t, buf.String(), "spez.subs (2 ops)")
}

func TestExportRecordsHistory(t *testing.T) {
	f := &fakeReddit{subs: map[string]bool{"pics": true, "news": true}}
	dir := setup(t, f)

	st, err := store.New(dir)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	require.NoError(t, runExport(context.Background(), false))

	st, err = store.New(dir)
	require.NoError(t, err)
	defer st.Close()

	runs, err := st.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, store.ModeExport, runs[0].Mode)

	ops, err := st.GetOperations(runs[0].ID)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	for _, op := range ops {
		assert.Equal(t, string(reconcile.ActionExport), op.Action)
		assert.Equal(t, string(reconcile.OutcomeSaved), op.Outcome)
	}

	var buf bytes.Buffer
	require.NoError(t, printRun(&buf, st, runs[0].ID))
	assert.Contains(t, buf.String(), "[export] r/news saved")
	assert.Zero(t, f.calls())
}

func TestPrintRunEmptyID(t *testing.T) {
	st, err := store.New(t.TempDir())
	require.NoError(t, err)
	defer st.Close()

	_, err = st.CreateRun(store.ModeExport, "spez", "spez.subs", false)
	require.NoError(t, err)

	err = printRun(&bytes.Buffer{}, st, "")
	assert.EqualError(t, err, "run id is empty")
}

func TestPrintRunUnknown(t *testing.T) {
	st, err := store.New(t.TempDir())
	require.NoError(t, err)
	defer st.Close()

	err = printRun(&bytes.Buffer{}, st, "deadbeef")
	assert.EqualError(t, err, `run "deadbeef" not found`)
}

func TestPrintSummary(t *testing.T) {
	res := &reconcile.Result{
		Plan: reconcile.Reconcile(mapset.NewSet("pics", "secret"), mapset.NewSet("funny")),
		Ops: []reconcile.Op{
			{Action: reconcile.ActionSubscribe, Name: "pics", Outcome: reconcile.OutcomeSubscribed},
			{Action: reconcile.ActionSubscribe, Name: "secret", Outcome: reconcile.OutcomeSkippedForbidden},
			{Action: reconcile.ActionUnsubscribe, Name: "funny", Outcome: reconcile.OutcomeUnsubscribed},
		},
	}

	var buf bytes.Buffer
	printSummary(&buf, res, "")
	assert.Contains(t, buf.String(), "r/secret (skipped_forbidden)")
	assert.Contains(t, buf.String(), "Subscribed 1, unsubscribed 1, skipped 1\n")

	buf.Reset()
	printSummary(&buf, &reconcile.Result{Plan: reconcile.Reconcile(mapset.NewSet("a"), mapset.NewSet("a"))}, "")
	assert.Equal(t, "Already up to date\n", buf.String())
}

func TestRecorderWithoutHistory(t *testing.T) {
	t.Chdir(t.TempDir())

	rec := startRecording(store.ModeImport, "spez", "spez.subs", false)
	rec.record(reconcile.Op{Action: reconcile.ActionSubscribe, Name: "pics"})
	assert.Empty(t, rec.runID())
	rec.close()
}
