// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/indextts-installer/internal/execx"
	"github.com/jeranaias/indextts-installer/internal/platform"
)

// =============================================================================
// FAKES
// =============================================================================

type fakeResponse struct {
	res execx.Result
	err error
}

// fakeRunner answers by command name. Unknown tools are not found.
type fakeRunner struct {
	mu        sync.Mutex
	responses map[string]fakeResponse
	calls     []string
}

func (f *fakeRunner) Run(_ context.Context, cmd execx.Command) (execx.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cmd.String())
	if r, ok := f.responses[cmd.Name]; ok {
		return r.res, r.err
	}
	return execx.Result{}, fmt.Errorf("%w: %s", execx.ErrToolNotFound, cmd.Name)
}

func (f *fakeRunner) Start(execx.Command) (int, error) { return 0, errors.New("not supported") }

func ok(stdout string) fakeResponse {
	return fakeResponse{res: execx.Result{Stdout: stdout}}
}

type fakeHost struct {
	err error
}

func (h fakeHost) OS(context.Context) (string, string, error) {
	if h.err != nil {
		return "", "", h.err
	}
	return "ubuntu", "22.04", nil
}

func (h fakeHost) CPU(context.Context) (string, int, error) {
	if h.err != nil {
		return "", 0, h.err
	}
	return "  AMD Ryzen 9 7950X  ", 32, nil
}

func (h fakeHost) Memory(context.Context) (uint64, uint64, error) {
	if h.err != nil {
		return 0, 0, h.err
	}
	return 64 << 30, 40 << 30, nil
}

func (h fakeHost) Disks(context.Context) (uint64, uint64, error) {
	if h.err != nil {
		return 0, 0, h.err
	}
	return 2 << 40, 1 << 40, nil
}

// =============================================================================
// SYSTEM INFO
// =============================================================================

func TestSystemInfo_FullHost(t *testing.T) {
	runner := &fakeRunner{responses: map[string]fakeResponse{
		"lspci":      ok("01:00.0 VGA compatible controller: NVIDIA Corporation AD102 [GeForce RTX 4090] (rev a1)\n"),
		"python3":    ok("Python 3.11.4\n"),
		"git":        ok("git version 2.43.0\n"),
		"nvidia-smi": ok("GPU 0: NVIDIA GeForce RTX 4090\n"),
	}}

	p := NewProber(runner, platform.For("linux")).WithHost(fakeHost{})
	info, err := p.SystemInfo(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "ubuntu", info.OS)
	assert.Equal(t, "22.04", info.OSVersion)
	assert.Equal(t, "AMD Ryzen 9 7950X", info.CPUName)
	assert.Equal(t, 32, info.CPUCores)
	assert.Equal(t, uint64(64<<30), info.TotalMemory)
	assert.Equal(t, uint64(1<<40), info.AvailableDiskSpace)
	assert.Equal(t, []string{"NVIDIA Corporation AD102 [GeForce RTX 4090] (rev a1)"}, info.GPUInfo)
	require.NotNil(t, info.PythonVersion)
	assert.Equal(t, "Python 3.11.4", *info.PythonVersion)
	require.NotNil(t, info.GitVersion)
	assert.Equal(t, "git version 2.43.0", *info.GitVersion)
	assert.True(t, info.CUDAAvailable)
}

func TestSystemInfo_BareHostDegrades(t *testing.T) {
	runner := &fakeRunner{}

	p := NewProber(runner, platform.For("linux")).WithHost(fakeHost{err: errors.New("denied")})
	info, err := p.SystemInfo(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Unknown, info.OS)
	assert.Equal(t, Unknown, info.OSVersion)
	assert.Equal(t, Unknown, info.CPUName)
	assert.Zero(t, info.CPUCores)
	assert.Zero(t, info.TotalMemory)
	assert.Equal(t, []string{platform.UnknownGPU}, info.GPUInfo)
	assert.Nil(t, info.PythonVersion)
	assert.Nil(t, info.GitVersion)
	assert.False(t, info.CUDAAvailable)
}

func TestSystemInfo_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewProber(&fakeRunner{}, platform.For("linux")).WithHost(fakeHost{}).SystemInfo(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSystemInfo_JSONShape(t *testing.T) {
	p := NewProber(&fakeRunner{}, platform.For("linux")).WithHost(fakeHost{})
	info, err := p.SystemInfo(context.Background())
	require.NoError(t, err)

	data, err := json.Marshal(info)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	for _, key := range []string{
		"os", "os_version", "cpu_name", "cpu_cores", "total_memory", "available_memory",
		"total_disk_space", "available_disk_space", "gpu_info", "python_version",
		"git_version", "cuda_available",
	} {
		assert.Contains(t, m, key)
	}
	assert.Nil(t, m["python_version"])
}

// =============================================================================
// SUB-PROBES
// =============================================================================

func TestGPUNames(t *testing.T) {
	tests := []struct {
		name string
		resp *fakeResponse
		want []string
	}{
		{"tool missing", nil, []string{platform.UnknownGPU}},
		{"no adapters", &fakeResponse{res: execx.Result{Stdout: "00:1f.3 Audio device: Intel\n"}}, []string{platform.UnknownGPU}},
		{"tool fails", &fakeResponse{err: &execx.ExitError{Tool: "lspci", Code: 1}}, []string{platform.UnknownGPU}},
		{
			"two adapters",
			&fakeResponse{res: execx.Result{Stdout: "00:02.0 VGA compatible controller: Intel UHD 770\n01:00.0 3D controller: NVIDIA A100\n"}},
			[]string{"Intel UHD 770", "NVIDIA A100"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{responses: map[string]fakeResponse{}}
			if tt.resp != nil {
				runner.responses["lspci"] = *tt.resp
			}
			got := NewProber(runner, platform.For("linux")).GPUNames(context.Background())
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPythonVersion_CandidateOrder(t *testing.T) {
	tests := []struct {
		name      string
		responses map[string]fakeResponse
		want      string
	}{
		{"python3 first", map[string]fakeResponse{"python3": ok("Python 3.12.1\n"), "python": ok("Python 2.7.18\n")}, "Python 3.12.1"},
		{"falls back to python", map[string]fakeResponse{"python": ok("Python 3.10.0\n")}, "Python 3.10.0"},
		{
			"non-zero exit with output still counts",
			map[string]fakeResponse{"python3": {res: execx.Result{Stdout: "Python 3.9.0\n", ExitCode: 1}, err: &execx.ExitError{Tool: "python3", Code: 1}}},
			"Python 3.9.0",
		},
		{"empty stdout skipped", map[string]fakeResponse{"python3": ok("\n"), "python": ok("Python 3.8.10")}, "Python 3.8.10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{responses: tt.responses}
			got := NewProber(runner, platform.For("linux")).PythonVersion(context.Background())
			require.NotNil(t, got)
			if *got != tt.want {
				t.Errorf("PythonVersion() = %q, want %q", *got, tt.want)
			}
		})
	}
}

func TestPythonVersion_WindowsPrefersPython(t *testing.T) {
	runner := &fakeRunner{responses: map[string]fakeResponse{
		"python":  ok("Python 3.11.0"),
		"python3": ok("Python 3.99.0"),
	}}
	got := NewProber(runner, platform.For("windows")).PythonVersion(context.Background())
	require.NotNil(t, got)
	assert.Equal(t, "Python 3.11.0", *got)
}

func TestCUDAAvailable(t *testing.T) {
	tests := []struct {
		name string
		resp *fakeResponse
		want bool
	}{
		{"missing", nil, false},
		{"exit non-zero", &fakeResponse{err: &execx.ExitError{Tool: "nvidia-smi", Code: 9}}, false},
		{"runs", &fakeResponse{res: execx.Result{Stdout: "ok"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{responses: map[string]fakeResponse{}}
			if tt.resp != nil {
				runner.responses["nvidia-smi"] = *tt.resp
			}
			got := NewProber(runner, platform.For("linux")).CUDAAvailable(context.Background())
			if got != tt.want {
				t.Errorf("CUDAAvailable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWithGit_UsesConfiguredBinary(t *testing.T) {
	runner := &fakeRunner{responses: map[string]fakeResponse{"/opt/git/bin/git": ok("git version 2.40.1")}}

	p := NewProber(runner, platform.For("linux")).WithHost(fakeHost{}).WithGit("/opt/git/bin/git")
	info, err := p.SystemInfo(context.Background())
	require.NoError(t, err)
	require.NotNil(t, info.GitVersion)
	assert.Equal(t, "git version 2.40.1", *info.GitVersion)
}
