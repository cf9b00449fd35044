package platform

import (
	"context"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchAndOSNames(t *testing.T) {
	assert.Equal(t, "x86_64", archName("amd64"))
	assert.Equal(t, "aarch64", archName("arm64"))
	assert.Equal(t, "x86", archName("386"))
	assert.Equal(t, "powerpc64", archName("ppc64"))
	assert.Equal(t, "powerpc64", archName("ppc64le"))
	assert.Equal(t, "loongarch64", archName("loong64"))
	assert.Equal(t, "mips", archName("mips"))
	assert.Equal(t, "mips", archName("mipsle"))
	assert.Equal(t, "mips64", archName("mips64le"))
	assert.Equal(t, "riscv64", archName("riscv64"))

	assert.Equal(t, "macos", osName("darwin"))
	assert.Equal(t, "linux", osName("linux"))

	assert.NotEmpty(t, Arch())
	assert.NotEmpty(t, OS())
}

func TestUserAgent(t *testing.T) {
	assert.Equal(t, "OVERLAY/0.1.0 COREOVERLAY/0.1.0 DHT/Kademlia WAZERO/"+RuntimeVersion(), UserAgent())
}

func TestModuleVersion(t *testing.T) {
	info := &debug.BuildInfo{Deps: []*debug.Module{
		{Path: "github.com/flynn/noise", Version: "v1.1.0"},
		{Path: RuntimeModule, Version: "v1.9.0"},
	}}
	assert.Equal(t, "1.9.0", moduleVersion(info, RuntimeModule))

	info.Deps[1].Replace = &debug.Module{Path: RuntimeModule, Version: "v1.9.1"}
	assert.Equal(t, "1.9.1", moduleVersion(info, RuntimeModule))

	assert.Equal(t, "unknown", moduleVersion(&debug.BuildInfo{}, RuntimeModule))
}

func TestWorkDir(t *testing.T) {
	env := map[string]string{"HOME": "/home/alice", "APPDATA": `C:\Users\alice\AppData`}
	getenv := func(k string) string { return env[k] }

	dir, err := workDir("linux", getenv)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/home/alice", ".compute-dht"), dir)

	dir, err = workDir("windows", getenv)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(`C:\Users\alice\AppData`, "compute-dht"), dir)

	_, err = workDir("linux", func(string) string { return "" })
	assert.ErrorIs(t, err, ErrNoHomeDir)
}

func TestExecCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("依赖 sh")
	}
	ctx := context.Background()

	out, err := ExecCommand(ctx, Command{Name: "sh", Args: []string{"-c", "echo $GREETING"}, Env: map[string]string{"GREETING": "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "hi\n", out)

	dir := t.TempDir()
	out, err = ExecCommand(ctx, Command{Name: "pwd", Dir: dir})
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Base(dir))

	_, err = ExecCommand(ctx, Command{Name: "sh", Args: []string{"-c", "echo boom >&2; exit 3"}})
	require.ErrorIs(t, err, ErrCommandFailed)
	assert.Contains(t, err.Error(), "boom")
}
