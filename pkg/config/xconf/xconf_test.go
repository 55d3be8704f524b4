package xconf

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type daemonConf struct {
	Address string `koanf:"address"`
}

type testConf struct {
	Name    string        `koanf:"name"`
	Rate    float64       `koanf:"rate"`
	Timeout time.Duration `koanf:"timeout"`
	Daemon  daemonConf    `koanf:"daemon"`
	Paths   []string      `koanf:"paths"`
}

func TestDecode_YAMLKeepsDefaults(t *testing.T) {
	cfg := testConf{Name: "default", Rate: 1, Daemon: daemonConf{Address: "127.0.0.1:2000"}}
	data := []byte("name: orders\ntimeout: 2s\npaths:\n  - /health\n")

	require.NoError(t, Decode(data, FormatYAML, &cfg))
	assert.Equal(t, "orders", cfg.Name)
	assert.InDelta(t, 1.0, cfg.Rate, 0)
	assert.Equal(t, 2*time.Second, cfg.Timeout)
	assert.Equal(t, "127.0.0.1:2000", cfg.Daemon.Address)
	assert.Equal(t, []string{"/health"}, cfg.Paths)
}

func TestDecode_JSONSubtree(t *testing.T) {
	var cfg testConf
	data := []byte(`{"xray":{"name":"api","daemon":{"address":"10.0.0.1:2000"}}}`)

	require.NoError(t, Decode(data, FormatJSON, &cfg, WithPath("xray"), nil))
	assert.Equal(t, "api", cfg.Name)
	assert.Equal(t, "10.0.0.1:2000", cfg.Daemon.Address)
}

func TestDecode_Errors(t *testing.T) {
	var cfg testConf
	assert.ErrorIs(t, Decode(nil, "toml", &cfg), ErrUnsupportedFormat)
	assert.ErrorIs(t, Decode([]byte("{"), FormatJSON, &cfg), ErrParseFailed)
	assert.ErrorIs(t, Decode([]byte("rate:\n  a: 1\n"), FormatYAML, &cfg), ErrUnmarshalFailed)
	assert.NoError(t, Decode(nil, FormatYAML, &cfg), "空数据合法")
}

func TestDecodeFile(t *testing.T) {
	dir := t.TempDir()
	var cfg testConf

	assert.ErrorIs(t, DecodeFile("", &cfg), ErrEmptyPath)
	assert.ErrorIs(t, DecodeFile(filepath.Join(dir, "x.ini"), &cfg), ErrUnsupportedFormat)
	assert.ErrorIs(t, DecodeFile(filepath.Join(dir, "missing.yml"), &cfg), ErrLoadFailed)

	path := filepath.Join(dir, "conf.yml")
	require.NoError(t, os.WriteFile(path, []byte("name: from-file\n"), 0o600))
	require.NoError(t, DecodeFile(path, &cfg))
	assert.Equal(t, "from-file", cfg.Name)
}

func TestFormatFromPath(t *testing.T) {
	f, err := FormatFromPath("/etc/a.YAML")
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, f)
	f, err = FormatFromPath("a.json")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)
}

func loadTestConf(path string) (testConf, error) {
	var c testConf
	err := DecodeFile(path, &c)
	return c, err
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: v1\n"), 0o600))

	got := make(chan testConf, 4)
	w, err := Watch(path, loadTestConf, func(c testConf, err error) {
		if err != nil {
			return
		}
		select {
		case got <- c:
		default:
		}
	}, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, path, w.Path())

	w.StartAsync()
	w.StartAsync() // 重复启动无副作用
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("name: v2\n"), 0o600))
	select {
	case c := <-got:
		assert.Equal(t, "v2", c.Name)
	case <-time.After(3 * time.Second):
		t.Fatal("未收到重载回调")
	}

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}

func TestWatch_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conf.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: v1\n"), 0o600))

	var mu sync.Mutex
	calls := 0
	w, err := Watch(path, loadTestConf, func(testConf, error) {
		mu.Lock()
		calls++
		mu.Unlock()
	}, WithDebounce(10*time.Millisecond))
	require.NoError(t, err)
	w.StartAsync()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x: 1\n"), 0o600))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, w.Stop())

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, calls)
}

func TestWatch_Validation(t *testing.T) {
	_, err := Watch("", loadTestConf, nil)
	assert.ErrorIs(t, err, ErrEmptyPath)

	_, err = Watch[testConf]("conf.yaml", nil, nil)
	assert.Error(t, err)

	_, err = Watch(filepath.Join(t.TempDir(), "missing", "conf.yaml"), loadTestConf, nil)
	assert.Error(t, err)
}

func TestWatch_StopWithoutStart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf.yaml")
	w, err := Watch(path, loadTestConf, nil)
	require.NoError(t, err)
	require.NoError(t, w.Stop())
	w.StartAsync() // 已停止，不再启动
}
