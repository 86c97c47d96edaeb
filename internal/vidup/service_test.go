package vidup_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"

	"vidup/internal/ledger"
	"vidup/internal/testutil"
	"vidup/internal/vidup"
)

type fixture struct {
	svc     *vidup.UploadService
	fsmgr   *testutil.MockFilesystemManager
	ledger  *ledger.Synchronized
	staging vidup.StagingArea
	db      vidup.Database
	clock   *testutil.StubClock
}

// newFixture wires an UploadService on in-memory collaborators. Ledger,
// Staging, BackOff and the optional deps are kept when set; opts get a
// destination if none is given.
func newFixture(t *testing.T, deps vidup.Deps, opts vidup.Options) *fixture {
	t.Helper()
	f := &fixture{
		fsmgr: testutil.NewMockFilesystemManager(),
		db:    testutil.NewTestDatabase(t),
		clock: testutil.FixedClock(),
	}
	f.ledger = ledger.NewSynchronized(testutil.NewTestLedger(t, f.clock))
	f.staging = testutil.NewTestStagingArea(f.fsmgr)

	if deps.Ledger == nil {
		deps.Ledger = f.ledger
	}
	deps.Database = f.db
	if deps.Staging == nil {
		deps.Staging = f.staging
	} else {
		f.staging = deps.Staging
	}
	deps.Filesystem = f.fsmgr
	deps.Hasher = testutil.NewTestHasher(f.fsmgr)
	deps.Clock = f.clock
	deps.IDGen = testutil.NewStubIDGenerator()
	deps.Sleep = f.clock.Sleep
	if deps.BackOff == nil {
		deps.BackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	}
	if opts.Destination.ChatID == "" {
		opts.Destination = vidup.Destination{ChatID: "@archive"}
	}
	f.svc = vidup.NewUploadService(deps, opts)
	return f
}

func (f *fixture) resolve(t *testing.T, path string) *vidup.Path {
	t.Helper()
	p, err := f.fsmgr.Resolve(path)
	if err != nil {
		t.Fatalf("Resolve(%s) error = %v", path, err)
	}
	return p
}

func (f *fixture) stage(t *testing.T, path string) {
	t.Helper()
	if _, err := f.svc.StageFiles(f.resolve(t, path), false); err != nil {
		t.Fatalf("StageFiles(%s) error = %v", path, err)
	}
}

func mp4Only(path string) bool {
	return strings.HasSuffix(path, ".mp4")
}

func TestUploadService_StageFiles(t *testing.T) {
	t.Run("stages a single file regardless of extension", func(t *testing.T) {
		f := newFixture(t, vidup.Deps{VideoFilter: mp4Only}, vidup.Options{})
		f.fsmgr.AddFile("/videos/clip.bin", []byte("raw"))

		res, err := f.svc.StageFiles(f.resolve(t, "/videos/clip.bin"), false)
		if err != nil {
			t.Fatalf("StageFiles() error = %v", err)
		}
		if res.Staged != 1 {
			t.Errorf("Staged = %d, want 1", res.Staged)
		}
	})

	t.Run("directory stages only videos", func(t *testing.T) {
		f := newFixture(t, vidup.Deps{VideoFilter: mp4Only}, vidup.Options{})
		f.fsmgr.AddFile("/videos/a.mp4", []byte("a"))
		f.fsmgr.AddFile("/videos/b.mp4", []byte("b"))
		f.fsmgr.AddFile("/videos/readme.txt", []byte("text"))
		f.fsmgr.AddFile("/videos/sub/c.mp4", []byte("c"))

		res, err := f.svc.StageFiles(f.resolve(t, "/videos"), false)
		if err != nil {
			t.Fatalf("StageFiles() error = %v", err)
		}
		if res.Staged != 2 {
			t.Errorf("Staged = %d, want 2", res.Staged)
		}
		items, _ := f.staging.List()
		if len(items) != 2 || items[0].Path != "/videos/a.mp4" || items[1].Path != "/videos/b.mp4" {
			t.Errorf("staged = %+v", items)
		}
	})

	t.Run("recursive includes subdirectories", func(t *testing.T) {
		f := newFixture(t, vidup.Deps{VideoFilter: mp4Only}, vidup.Options{})
		f.fsmgr.AddFile("/videos/a.mp4", []byte("a"))
		f.fsmgr.AddFile("/videos/sub/c.mp4", []byte("c"))

		res, err := f.svc.StageFiles(f.resolve(t, "/videos"), true)
		if err != nil {
			t.Fatalf("StageFiles() error = %v", err)
		}
		if res.Staged != 2 {
			t.Errorf("Staged = %d, want 2", res.Staged)
		}
	})

	t.Run("skips ignored files", func(t *testing.T) {
		f := newFixture(t, vidup.Deps{}, vidup.Options{})
		f.fsmgr.AddFile("/videos/a.mp4", []byte("a"))
		f.fsmgr.AddFile("/videos/tmp.mp4", []byte("tmp"))
		f.fsmgr.SetIgnored("/videos/tmp.mp4")

		res, _ := f.svc.StageFiles(f.resolve(t, "/videos"), false)
		if res.Staged != 1 || res.Ignored != 1 {
			t.Errorf("result = %+v, want 1 staged 1 ignored", res)
		}
	})

	t.Run("skips content already in the ledger under any name", func(t *testing.T) {
		f := newFixture(t, vidup.Deps{}, vidup.Options{})
		f.fsmgr.AddFile("/videos/renamed.mp4", []byte("known"))
		if err := f.ledger.AddUpload(testutil.HashOf([]byte("known")), "original.mp4", "/old/original.mp4", 5); err != nil {
			t.Fatal(err)
		}

		res, _ := f.svc.StageFiles(f.resolve(t, "/videos/renamed.mp4"), false)
		if res.AlreadyUploaded != 1 || res.Staged != 0 {
			t.Errorf("result = %+v, want already uploaded", res)
		}
	})

	t.Run("skips duplicates of uploaded content", func(t *testing.T) {
		f := newFixture(t, vidup.Deps{}, vidup.Options{})
		f.fsmgr.AddFile("/videos/reencode.mp4", []byte("reencode"))
		orig := testutil.HashOf([]byte("original"))
		f.ledger.AddUpload(orig, "original.mp4", "/old/original.mp4", 8)
		f.ledger.AddDuplicate(orig, testutil.HashOf([]byte("reencode")))

		res, _ := f.svc.StageFiles(f.resolve(t, "/videos/reencode.mp4"), false)
		if res.AlreadyUploaded != 1 {
			t.Errorf("result = %+v, want duplicate skipped", res)
		}
	})

	t.Run("same content staged once", func(t *testing.T) {
		f := newFixture(t, vidup.Deps{}, vidup.Options{})
		f.fsmgr.AddFile("/videos/a.mp4", []byte("same"))
		f.fsmgr.AddFile("/videos/copy.mp4", []byte("same"))

		res, _ := f.svc.StageFiles(f.resolve(t, "/videos"), false)
		if res.Staged != 1 || res.AlreadyStaged != 1 {
			t.Errorf("result = %+v, want 1 staged 1 already staged", res)
		}
	})
}

func TestUploadService_UploadAll(t *testing.T) {
	t.Run("uploads staged files and records them", func(t *testing.T) {
		bot := testutil.NewFakeTransport(vidup.ModeBot, 1<<20)
		f := newFixture(t, vidup.Deps{Transports: []vidup.Transport{bot}}, vidup.Options{Mode: vidup.ModeBot})
		f.fsmgr.AddFile("/videos/a.mp4", []byte("alpha"))
		f.stage(t, "/videos/a.mp4")

		summary, err := f.svc.UploadAll(context.Background())
		if err != nil {
			t.Fatalf("UploadAll() error = %v", err)
		}
		if summary.Uploaded != 1 || summary.Bytes != 5 {
			t.Errorf("summary = %+v", summary)
		}

		calls := bot.Calls()
		if len(calls) != 1 {
			t.Fatalf("calls = %d, want 1", len(calls))
		}
		if calls[0].Path != "/videos/a.mp4" || calls[0].Dest.ChatID != "@archive" || calls[0].Opts.Caption != "a.mp4" {
			t.Errorf("call = %+v", calls[0])
		}

		hash := testutil.HashOf([]byte("alpha"))
		rec, ok := f.ledger.GetUploadInfo(hash)
		if !ok {
			t.Fatal("upload not recorded in ledger")
		}
		if rec.Filename != "a.mp4" || rec.SourcePath != "/videos/a.mp4" || rec.FileSize != 5 {
			t.Errorf("record = %+v", rec)
		}
		if !rec.UploadedAt.Equal(f.clock.Now()) {
			t.Errorf("UploadedAt = %v, want %v", rec.UploadedAt, f.clock.Now())
		}

		if n, _ := f.staging.Count(); n != 0 {
			t.Errorf("staging count = %d, want 0", n)
		}

		attempts, _ := f.db.FindAttemptsByHash(hash)
		if len(attempts) != 1 || attempts[0].Status != vidup.AttemptSuccess || attempts[0].RemoteRef != "bot:@archive/1" {
			t.Errorf("attempts = %+v", attempts)
		}
	})

	t.Run("empty queue is a no-op", func(t *testing.T) {
		bot := testutil.NewFakeTransport(vidup.ModeBot, 1<<20)
		f := newFixture(t, vidup.Deps{Transports: []vidup.Transport{bot}}, vidup.Options{})

		summary, err := f.svc.UploadAll(context.Background())
		if err != nil || summary.Uploaded != 0 || len(bot.Calls()) != 0 {
			t.Errorf("UploadAll() = %+v, %v", summary, err)
		}
	})

	t.Run("skips content uploaded after staging", func(t *testing.T) {
		bot := testutil.NewFakeTransport(vidup.ModeBot, 1<<20)
		f := newFixture(t, vidup.Deps{Transports: []vidup.Transport{bot}}, vidup.Options{})
		f.fsmgr.AddFile("/videos/a.mp4", []byte("alpha"))
		f.stage(t, "/videos/a.mp4")
		f.ledger.AddUpload(testutil.HashOf([]byte("alpha")), "a.mp4", "/elsewhere/a.mp4", 5)

		summary, _ := f.svc.UploadAll(context.Background())
		if summary.Skipped != 1 || len(bot.Calls()) != 0 {
			t.Errorf("summary = %+v, calls = %d", summary, len(bot.Calls()))
		}
		if n, _ := f.staging.Count(); n != 0 {
			t.Errorf("skipped upload still staged")
		}
	})

	t.Run("re-hashes a file changed since staging", func(t *testing.T) {
		bot := testutil.NewFakeTransport(vidup.ModeBot, 1<<20)
		f := newFixture(t, vidup.Deps{Transports: []vidup.Transport{bot}}, vidup.Options{})
		f.fsmgr.AddFile("/videos/a.mp4", []byte("draft"))
		f.stage(t, "/videos/a.mp4")
		f.fsmgr.AddFile("/videos/a.mp4", []byte("final cut"))

		if _, err := f.svc.UploadAll(context.Background()); err != nil {
			t.Fatalf("UploadAll() error = %v", err)
		}
		if !f.ledger.IsUploaded(testutil.HashOf([]byte("final cut"))) {
			t.Error("new content not recorded")
		}
		if f.ledger.IsUploaded(testutil.HashOf([]byte("draft"))) {
			t.Error("stale hash recorded")
		}
		if n, _ := f.staging.Count(); n != 0 {
			t.Errorf("staging count = %d, want 0", n)
		}
	})

	t.Run("retries transient failures", func(t *testing.T) {
		bot := testutil.NewFakeTransport(vidup.ModeBot, 1<<20)
		bot.FailNext(errors.New("connection reset"), errors.New("connection reset"))
		f := newFixture(t, vidup.Deps{Transports: []vidup.Transport{bot}}, vidup.Options{MaxRetries: 3})
		f.fsmgr.AddFile("/videos/a.mp4", []byte("alpha"))
		f.stage(t, "/videos/a.mp4")

		summary, _ := f.svc.UploadAll(context.Background())
		if summary.Uploaded != 1 {
			t.Errorf("summary = %+v, want uploaded after retries", summary)
		}
		if got := len(bot.Calls()); got != 3 {
			t.Errorf("calls = %d, want 3", got)
		}
	})

	t.Run("gives up after max retries and keeps the file staged", func(t *testing.T) {
		bot := testutil.NewFakeTransport(vidup.ModeBot, 1<<20)
		boom := errors.New("connection reset")
		bot.FailNext(boom, boom, boom)
		f := newFixture(t, vidup.Deps{Transports: []vidup.Transport{bot}}, vidup.Options{MaxRetries: 2})
		f.fsmgr.AddFile("/videos/a.mp4", []byte("alpha"))
		f.stage(t, "/videos/a.mp4")

		summary, err := f.svc.UploadAll(context.Background())
		if err != nil {
			t.Fatalf("UploadAll() error = %v", err)
		}
		if summary.Failed != 1 || len(summary.Failures) != 1 || !errors.Is(summary.Failures[0].Err, boom) {
			t.Errorf("summary = %+v", summary)
		}
		if got := len(bot.Calls()); got != 3 {
			t.Errorf("calls = %d, want 3", got)
		}
		if n, _ := f.staging.Count(); n != 1 {
			t.Errorf("staging count = %d, want 1", n)
		}
		if f.ledger.Len() != 0 {
			t.Error("failed upload recorded in ledger")
		}
		attempts, _ := f.db.FindAttemptsByHash(testutil.HashOf([]byte("alpha")))
		if len(attempts) != 1 || attempts[0].Status != vidup.AttemptFailed || attempts[0].Error == "" {
			t.Errorf("attempts = %+v", attempts)
		}
	})

	t.Run("waits out flood waits", func(t *testing.T) {
		bot := testutil.NewFakeTransport(vidup.ModeBot, 1<<20)
		bot.FailNext(testutil.FloodWait(vidup.ModeBot, 17))
		f := newFixture(t, vidup.Deps{Transports: []vidup.Transport{bot}}, vidup.Options{})
		f.fsmgr.AddFile("/videos/a.mp4", []byte("alpha"))
		f.stage(t, "/videos/a.mp4")

		summary, _ := f.svc.UploadAll(context.Background())
		if summary.Uploaded != 1 {
			t.Fatalf("summary = %+v", summary)
		}
		slept := f.clock.Slept()
		if len(slept) != 1 || slept[0] != 17*time.Second {
			t.Errorf("sleeps = %v, want [17s]", slept)
		}
		rec, _ := f.ledger.GetUploadInfo(testutil.HashOf([]byte("alpha")))
		if want := testutil.FixedClock().Now().Add(17 * time.Second); !rec.UploadedAt.Equal(want) {
			t.Errorf("UploadedAt = %v, want %v after the wait", rec.UploadedAt, want)
		}
	})

	t.Run("interrupted flood wait fails the item", func(t *testing.T) {
		bot := testutil.NewFakeTransport(vidup.ModeBot, 1<<20)
		bot.FailNext(testutil.FloodWait(vidup.ModeBot, 30))
		f := newFixture(t, vidup.Deps{Transports: []vidup.Transport{bot}}, vidup.Options{MaxRetries: 3})
		f.clock.OnWait(func(time.Duration) error { return context.DeadlineExceeded })
		f.fsmgr.AddFile("/videos/a.mp4", []byte("alpha"))
		f.stage(t, "/videos/a.mp4")

		summary, _ := f.svc.UploadAll(context.Background())
		if summary.Uploaded != 0 || summary.Failed != 1 {
			t.Fatalf("summary = %+v, want one failure", summary)
		}
		if got := len(bot.Calls()); got != 1 {
			t.Errorf("calls = %d, want 1 (no retry after the wait was cut short)", got)
		}
		if n, _ := f.staging.Count(); n != 1 {
			t.Errorf("staging count = %d, want 1", n)
		}
	})

	t.Run("does not retry permanent errors", func(t *testing.T) {
		bot := testutil.NewFakeTransport(vidup.ModeBot, 1<<20)
		bot.FailNext(&vidup.TransportError{Mode: vidup.ModeBot, Permanent: true, Err: errors.New("CHAT_WRITE_FORBIDDEN")})
		f := newFixture(t, vidup.Deps{Transports: []vidup.Transport{bot}}, vidup.Options{MaxRetries: 5})
		f.fsmgr.AddFile("/videos/a.mp4", []byte("alpha"))
		f.stage(t, "/videos/a.mp4")

		summary, _ := f.svc.UploadAll(context.Background())
		if summary.Failed != 1 || len(bot.Calls()) != 1 {
			t.Errorf("summary = %+v, calls = %d", summary, len(bot.Calls()))
		}
	})

	t.Run("waits the configured delay between uploads", func(t *testing.T) {
		bot := testutil.NewFakeTransport(vidup.ModeBot, 1<<20)
		f := newFixture(t, vidup.Deps{Transports: []vidup.Transport{bot}}, vidup.Options{Delay: 3 * time.Second})
		f.fsmgr.AddFile("/videos/a.mp4", []byte("a"))
		f.fsmgr.AddFile("/videos/b.mp4", []byte("b"))
		f.svc.StageFiles(f.resolve(t, "/videos"), false)

		f.svc.UploadAll(context.Background())
		slept := f.clock.Slept()
		if len(slept) != 2 || slept[0] != 3*time.Second {
			t.Errorf("sleeps = %v, want two 3s delays", slept)
		}
	})

	t.Run("parallel workers upload everything once", func(t *testing.T) {
		bot := testutil.NewFakeTransport(vidup.ModeBot, 1<<20)
		f := newFixture(t, vidup.Deps{Transports: []vidup.Transport{bot}}, vidup.Options{Workers: 4})
		for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
			f.fsmgr.AddFile("/videos/"+name+".mp4", []byte("content "+name))
		}
		f.svc.StageFiles(f.resolve(t, "/videos"), false)

		summary, err := f.svc.UploadAll(context.Background())
		if err != nil {
			t.Fatalf("UploadAll() error = %v", err)
		}
		if summary.Uploaded != 6 || len(bot.Calls()) != 6 || f.ledger.Len() != 6 {
			t.Errorf("summary = %+v, calls = %d, ledger = %d", summary, len(bot.Calls()), f.ledger.Len())
		}
	})

	t.Run("cancelled context stops the run", func(t *testing.T) {
		bot := testutil.NewFakeTransport(vidup.ModeBot, 1<<20)
		f := newFixture(t, vidup.Deps{Transports: []vidup.Transport{bot}}, vidup.Options{})
		f.fsmgr.AddFile("/videos/a.mp4", []byte("a"))
		f.stage(t, "/videos/a.mp4")

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := f.svc.UploadAll(ctx)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("UploadAll() error = %v, want context.Canceled", err)
		}
		if n, _ := f.staging.Count(); n != 1 {
			t.Errorf("staging count = %d, want 1", n)
		}
	})
}

func TestUploadService_TransportSelection(t *testing.T) {
	tests := []struct {
		name     string
		mode     vidup.TransportMode
		bot      bool
		user     bool
		size     int
		wantMode vidup.TransportMode
		wantErr  error
	}{
		{name: "auto small file uses bot", mode: vidup.ModeAuto, bot: true, user: true, size: 10, wantMode: vidup.ModeBot},
		{name: "auto large file uses user", mode: vidup.ModeAuto, bot: true, user: true, size: 100, wantMode: vidup.ModeUser},
		{name: "auto with user only", mode: vidup.ModeAuto, user: true, size: 10, wantMode: vidup.ModeUser},
		{name: "forced user", mode: vidup.ModeUser, bot: true, user: true, size: 10, wantMode: vidup.ModeUser},
		{name: "forced bot missing", mode: vidup.ModeBot, user: true, size: 10, wantErr: vidup.ErrNoTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bot := testutil.NewFakeTransport(vidup.ModeBot, 50)
			user := testutil.NewFakeTransport(vidup.ModeUser, 1000)
			var ts []vidup.Transport
			if tt.bot {
				ts = append(ts, bot)
			}
			if tt.user {
				ts = append(ts, user)
			}
			f := newFixture(t, vidup.Deps{Transports: ts}, vidup.Options{Mode: tt.mode})
			f.fsmgr.AddFile("/videos/a.mp4", []byte(strings.Repeat("x", tt.size)))
			f.stage(t, "/videos/a.mp4")

			summary, _ := f.svc.UploadAll(context.Background())
			if tt.wantErr != nil {
				if summary.Failed != 1 || !errors.Is(summary.Failures[0].Err, tt.wantErr) {
					t.Errorf("summary = %+v, want %v", summary, tt.wantErr)
				}
				return
			}
			if summary.Uploaded != 1 {
				t.Fatalf("summary = %+v", summary)
			}
			var used *testutil.FakeTransport
			if tt.wantMode == vidup.ModeBot {
				used = bot
			} else {
				used = user
			}
			if len(used.Calls()) != 1 {
				t.Errorf("%s transport calls = %d, want 1", tt.wantMode, len(used.Calls()))
			}
		})
	}
}

func TestUploadService_Split(t *testing.T) {
	t.Run("uploads parts with numbered captions and removes them", func(t *testing.T) {
		splitDir := t.TempDir()
		bot := testutil.NewFakeTransport(vidup.ModeBot, 10)
		splitter := &testutil.FakeSplitter{Parts: 3}
		f := newFixture(t, vidup.Deps{Transports: []vidup.Transport{bot}, Splitter: splitter},
			vidup.Options{Mode: vidup.ModeBot, SplitDir: splitDir})
		f.fsmgr.AddFile("/videos/movie.mp4", []byte(strings.Repeat("m", 25)))
		f.stage(t, "/videos/movie.mp4")

		summary, err := f.svc.UploadAll(context.Background())
		if err != nil || summary.Uploaded != 1 {
			t.Fatalf("UploadAll() = %+v, %v", summary, err)
		}

		calls := bot.Calls()
		if len(calls) != 3 {
			t.Fatalf("calls = %d, want 3", len(calls))
		}
		for i, c := range calls {
			wantCaption := "movie.mp4 (part " + string(rune('1'+i)) + "/3)"
			if c.Opts.Caption != wantCaption {
				t.Errorf("caption[%d] = %q, want %q", i, c.Opts.Caption, wantCaption)
			}
			if !strings.Contains(c.Opts.FileName, ".vidup-part-") {
				t.Errorf("part file name = %q", c.Opts.FileName)
			}
		}

		entries, _ := os.ReadDir(splitDir)
		if len(entries) != 0 {
			t.Errorf("split dir still has %d files", len(entries))
		}

		rec, ok := f.ledger.GetUploadInfo(testutil.HashOf([]byte(strings.Repeat("m", 25))))
		if !ok || rec.Filename != "movie.mp4" || rec.FileSize != 25 {
			t.Errorf("ledger record = %+v, %v; want the source file", rec, ok)
		}

		attempts, _ := f.db.FindAttemptsByHash(rec.Hash)
		if len(attempts) != 1 || attempts[0].RemoteRef != "bot:@archive/1,2,3" {
			t.Errorf("attempts = %+v", attempts)
		}
	})

	t.Run("oversize without splitter fails", func(t *testing.T) {
		bot := testutil.NewFakeTransport(vidup.ModeBot, 10)
		f := newFixture(t, vidup.Deps{Transports: []vidup.Transport{bot}}, vidup.Options{Mode: vidup.ModeBot})
		f.fsmgr.AddFile("/videos/movie.mp4", []byte(strings.Repeat("m", 25)))
		f.stage(t, "/videos/movie.mp4")

		summary, _ := f.svc.UploadAll(context.Background())
		if summary.Failed != 1 || !errors.Is(summary.Failures[0].Err, vidup.ErrFileTooLarge) {
			t.Errorf("summary = %+v, want ErrFileTooLarge", summary)
		}
		if len(bot.Calls()) != 0 {
			t.Error("oversize file was sent")
		}
	})

	t.Run("insufficient disk space", func(t *testing.T) {
		bot := testutil.NewFakeTransport(vidup.ModeBot, 10)
		splitter := &testutil.FakeSplitter{Parts: 3}
		f := newFixture(t, vidup.Deps{Transports: []vidup.Transport{bot}, Splitter: splitter},
			vidup.Options{Mode: vidup.ModeBot, SplitDir: t.TempDir()})
		f.fsmgr.SetFreeSpace(5, nil)
		f.fsmgr.AddFile("/videos/movie.mp4", []byte(strings.Repeat("m", 25)))
		f.stage(t, "/videos/movie.mp4")

		summary, _ := f.svc.UploadAll(context.Background())
		if summary.Failed != 1 || !errors.Is(summary.Failures[0].Err, vidup.ErrInsufficientSpace) {
			t.Errorf("summary = %+v, want ErrInsufficientSpace", summary)
		}
		if len(splitter.Calls()) != 0 {
			t.Error("splitter ran without disk space")
		}
	})

	t.Run("auto mode prefers user over splitting for bot", func(t *testing.T) {
		bot := testutil.NewFakeTransport(vidup.ModeBot, 10)
		user := testutil.NewFakeTransport(vidup.ModeUser, 100)
		splitter := &testutil.FakeSplitter{Parts: 3}
		f := newFixture(t, vidup.Deps{Transports: []vidup.Transport{bot, user}, Splitter: splitter},
			vidup.Options{Mode: vidup.ModeAuto, SplitDir: t.TempDir()})
		f.fsmgr.AddFile("/videos/movie.mp4", []byte(strings.Repeat("m", 25)))
		f.stage(t, "/videos/movie.mp4")

		f.svc.UploadAll(context.Background())
		if len(user.Calls()) != 1 || len(splitter.Calls()) != 0 {
			t.Errorf("user calls = %d, splits = %d", len(user.Calls()), len(splitter.Calls()))
		}
	})
}

func TestUploadService_CaptionTemplate(t *testing.T) {
	bot := testutil.NewFakeTransport(vidup.ModeBot, 1<<20)
	f := newFixture(t, vidup.Deps{Transports: []vidup.Transport{bot}},
		vidup.Options{CaptionTemplate: "#archive {filename} [{size}] {part}/{parts}"})
	f.fsmgr.AddFile("/videos/a.mp4", []byte("alpha"))
	f.stage(t, "/videos/a.mp4")

	f.svc.UploadAll(context.Background())
	calls := bot.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d", len(calls))
	}
	if want := "#archive a.mp4 [5 B] 1/1"; calls[0].Opts.Caption != want {
		t.Errorf("caption = %q, want %q", calls[0].Opts.Caption, want)
	}
}

// countingBackOff never waits and counts how often a retry interval was asked for.
type countingBackOff struct{ intervals *atomic.Int32 }

func (b countingBackOff) NextBackOff() time.Duration {
	b.intervals.Add(1)
	return 0
}

func (b countingBackOff) Reset() {}

func TestUploadService_FloodWaits(t *testing.T) {
	t.Run("do not use up retries", func(t *testing.T) {
		var intervals atomic.Int32
		bot := testutil.NewFakeTransport(vidup.ModeBot, 1<<20)
		bot.FailNext(
			testutil.FloodWait(vidup.ModeBot, 5),
			testutil.FloodWait(vidup.ModeBot, 5),
			testutil.FloodWait(vidup.ModeBot, 5),
		)
		f := newFixture(t, vidup.Deps{
			Transports: []vidup.Transport{bot},
			BackOff:    func() backoff.BackOff { return countingBackOff{intervals: &intervals} },
		}, vidup.Options{MaxRetries: 1})
		f.fsmgr.AddFile("/videos/a.mp4", []byte("alpha"))
		f.stage(t, "/videos/a.mp4")

		summary, err := f.svc.UploadAll(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if summary.Uploaded != 1 || len(bot.Calls()) != 4 {
			t.Errorf("summary = %+v, calls = %d; want uploaded after 4 calls", summary, len(bot.Calls()))
		}
		if n := intervals.Load(); n != 0 {
			t.Errorf("backoff intervals = %d, want 0 on top of flood waits", n)
		}
		if got := f.clock.Slept(); len(got) != 3 || got[0] != 5*time.Second {
			t.Errorf("sleeps = %v, want three 5s waits", got)
		}
	})

	t.Run("endless flood waits end as a failed retry", func(t *testing.T) {
		bot := testutil.NewFakeTransport(vidup.ModeBot, 1<<20)
		errs := make([]error, 30)
		for i := range errs {
			errs[i] = testutil.FloodWait(vidup.ModeBot, 1)
		}
		bot.FailNext(errs...)
		f := newFixture(t, vidup.Deps{Transports: []vidup.Transport{bot}}, vidup.Options{MaxRetries: 1})
		f.fsmgr.AddFile("/videos/a.mp4", []byte("alpha"))
		f.stage(t, "/videos/a.mp4")

		summary, _ := f.svc.UploadAll(context.Background())
		if summary.Failed != 1 {
			t.Fatalf("summary = %+v, want failed", summary)
		}
		// Two attempts, each sitting out ten waits before giving up.
		if got := len(bot.Calls()); got != 22 {
			t.Errorf("calls = %d, want 22", got)
		}
	})
}

// failingLedger accepts reads but cannot persist new uploads.
type failingLedger struct {
	vidup.UploadLedger
	err error
}

func (l *failingLedger) AddUpload(ledger.ContentHash, string, string, int64) error {
	return l.err
}

func TestUploadService_LedgerWriteFailure(t *testing.T) {
	persistErr := &ledger.PersistError{Path: "/ledger.json", Op: "write", Err: errors.New("no space left on device")}
	l := &failingLedger{
		UploadLedger: ledger.NewSynchronized(testutil.NewTestLedger(t, testutil.FixedClock())),
		err:          persistErr,
	}
	bot := testutil.NewFakeTransport(vidup.ModeBot, 1<<20)
	f := newFixture(t, vidup.Deps{Ledger: l, Transports: []vidup.Transport{bot}}, vidup.Options{})
	f.fsmgr.AddFile("/videos/a.mp4", []byte("alpha"))
	f.stage(t, "/videos/a.mp4")

	summary, err := f.svc.UploadAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if summary.Uploaded != 0 || summary.Failed != 1 {
		t.Errorf("summary = %+v, want the unrecorded upload counted as failed", summary)
	}
	if len(summary.Failures) != 1 || !errors.Is(summary.Failures[0].Err, persistErr) {
		t.Errorf("failures = %+v, want the persist error", summary.Failures)
	}
	if n, _ := f.staging.Count(); n != 1 {
		t.Errorf("staged = %d, want the file still queued", n)
	}
}
