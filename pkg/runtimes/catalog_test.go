package runtimes

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"spaces-backend/pkg/piston"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu       sync.Mutex
	runtimes []piston.Runtime
	err      error
	calls    int
}

func (f *fakeSource) Runtimes(ctx context.Context) ([]piston.Runtime, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.runtimes, nil
}

func sampleRuntimes() []piston.Runtime {
	return []piston.Runtime{
		{Language: "python", Version: "3.9.4", Aliases: []string{"py", "py3"}},
		{Language: "python", Version: "3.10.0", Aliases: []string{"py"}},
		{Language: "Python", Version: "2.7.18"},
		{Language: "go", Version: "1.16.2", Aliases: []string{"golang"}},
		{Language: "file", Version: "0.0.1"},
		{Language: "brainfuck", Version: "2.7.3", Aliases: []string{"bf"}},
	}
}

func TestCatalog_LanguagesSortedDedupedWithoutBanned(t *testing.T) {
	src := &fakeSource{runtimes: sampleRuntimes()}
	c := NewCatalog(src, DefaultBanned)

	assert.Equal(t, []string{"brainfuck", "go", "python"}, c.Languages(context.Background()))
	// 只拉取一次
	c.Languages(context.Background())
	assert.Equal(t, 1, src.calls)
}

func TestCatalog_VersionsNewestFirst(t *testing.T) {
	c := NewCatalog(&fakeSource{runtimes: sampleRuntimes()}, DefaultBanned)
	ctx := context.Background()

	assert.Equal(t, []string{"3.10.0", "3.9.4", "2.7.18"}, c.Versions(ctx, "python"))
	latest, ok := c.LatestVersion(ctx, "py")
	require.True(t, ok)
	assert.Equal(t, "3.10.0", latest)

	_, ok = c.LatestVersion(ctx, "cobol")
	assert.False(t, ok)
	assert.True(t, c.HasVersion(ctx, "python", "3.9.4"))
	assert.False(t, c.HasVersion(ctx, "python", "3.11.0"))
}

func TestCatalog_UpstreamAliases(t *testing.T) {
	c := NewCatalog(&fakeSource{runtimes: sampleRuntimes()}, nil)
	c.Languages(context.Background())

	assert.Equal(t, "python", c.Canonical("PY3"))
	assert.Equal(t, "c++", c.Canonical("cpp"))
	assert.Equal(t, "unknownlang", c.Canonical("unknownlang"))
}

func TestCatalog_UnreachableStaysEmptyAndRetries(t *testing.T) {
	src := &fakeSource{err: errors.New("connection refused")}
	c := NewCatalog(src, nil)
	ctx := context.Background()

	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	assert.Empty(t, c.Languages(ctx))
	_, ok := c.LatestVersion(ctx, "python")
	assert.False(t, ok)

	src.mu.Lock()
	src.err = nil
	src.runtimes = sampleRuntimes()
	src.mu.Unlock()

	// 冷却期内不重试
	_, ok = c.LatestVersion(ctx, "python")
	assert.False(t, ok)
	assert.Equal(t, 1, src.calls)

	clock = clock.Add(FailureCooldown)
	latest, ok := c.LatestVersion(ctx, "python")
	require.True(t, ok)
	assert.Equal(t, "3.10.0", latest)
}

func TestCatalog_RefreshKeepsCacheOnFailure(t *testing.T) {
	src := &fakeSource{runtimes: sampleRuntimes()}
	c := NewCatalog(src, nil)
	ctx := context.Background()
	require.NoError(t, c.Refresh(ctx))

	src.mu.Lock()
	src.err = errors.New("timeout")
	src.mu.Unlock()

	assert.Error(t, c.Refresh(ctx))
	assert.Contains(t, c.Languages(ctx), "python")
}

func TestCatalog_RefreshReplaces(t *testing.T) {
	src := &fakeSource{runtimes: sampleRuntimes()}
	c := NewCatalog(src, nil)
	ctx := context.Background()
	require.NoError(t, c.Refresh(ctx))

	src.mu.Lock()
	src.runtimes = []piston.Runtime{{Language: "rust", Version: "1.68.2"}}
	src.mu.Unlock()
	require.NoError(t, c.Refresh(ctx))

	assert.Equal(t, []string{"rust"}, c.Languages(ctx))
}

func TestCatalog_RuntimesView(t *testing.T) {
	c := NewCatalog(&fakeSource{runtimes: sampleRuntimes()}, DefaultBanned)
	rts := c.Runtimes(context.Background())
	require.Len(t, rts, 3)

	py := rts[2]
	assert.Equal(t, "python", py.Name)
	assert.Equal(t, "Python", py.DisplayName)
	assert.Equal(t, "3.10.0", py.LatestVersion)
	assert.Equal(t, "py", py.Extension)
	assert.Equal(t, "devicon-python-plain", py.Icon)
}

func TestMetadataDefaults(t *testing.T) {
	assert.Equal(t, "py", Extension("python"))
	assert.Equal(t, "cpp", Extension("c++"))
	assert.Equal(t, "cpp", Extension("CPP"))
	assert.Equal(t, "txt", Extension("klingon"))
	assert.Equal(t, "text", EditorMode("klingon"))
	assert.Equal(t, "fas fa-code", Icon("klingon"))
	assert.Equal(t, "", Template("klingon"))
	assert.Equal(t, "Klingon", DisplayName("klingon"))
	assert.Contains(t, Template("python"), "Hello, World!")
	assert.Equal(t, "text/x-java", EditorMode("java"))
}

func TestMetadataCoverage(t *testing.T) {
	assert.GreaterOrEqual(t, len(languages), 50)
	for name, meta := range languages {
		assert.NotEmpty(t, meta.Ext, name)
		assert.Regexp(t, `^[a-z0-9]+$`, meta.Ext, name)
		assert.NotEmpty(t, meta.Display, name)
	}
	for alias, target := range staticAliases {
		_, ok := languages[target]
		assert.True(t, ok, "alias %s points at unknown language %s", alias, target)
	}
}

func TestCompareVersions(t *testing.T) {
	assert.Equal(t, 1, CompareVersions("3.10.0", "3.9.4"))
	assert.Equal(t, -1, CompareVersions("1.16.2", "1.16.10"))
	assert.Equal(t, 0, CompareVersions("18.15.0", "18.15.0"))
	assert.Equal(t, 1, CompareVersions("1.2.1", "1.2"))
	assert.Equal(t, -1, CompareVersions("1.2", "1.2.1"))
	assert.Equal(t, 1, CompareVersions("5.0.0b", "5.0.0a"))
}

type slowFailingSource struct {
	delay   time.Duration
	fetches atomic.Int32
}

func (s *slowFailingSource) Runtimes(ctx context.Context) ([]piston.Runtime, error) {
	s.fetches.Add(1)
	time.Sleep(s.delay)
	return nil, errors.New("sandbox down")
}

func TestCatalog_OutageFetchesOncePerCooldown(t *testing.T) {
	src := &slowFailingSource{delay: 50 * time.Millisecond}
	c := NewCatalog(src, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok := c.LatestVersion(ctx, "python")
			assert.False(t, ok)
			assert.Empty(t, c.Languages(ctx))
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), src.fetches.Load())

	// 手动刷新不受冷却限制
	assert.Error(t, c.Refresh(ctx))
	assert.Equal(t, int32(2), src.fetches.Load())
}
