package main

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"tracegate/pkg/tracer"
)

// policyFile is the on-disk shape of a sandbox policy: the same knobs
// Config exposes, laid flat for a human to edit.
type policyFile struct {
	AllowedSyscalls   []int `toml:"allowed_syscalls"`
	TraceeReadFD      int   `toml:"tracee_read_fd"`
	TraceeWriteFD     int   `toml:"tracee_write_fd"`
	ForkserverReadFD  int   `toml:"forkserver_read_fd"`
	ForkserverWriteFD int   `toml:"forkserver_write_fd"`
	WriteMaxBytes     int   `toml:"write_max_bytes"`
}

// loadPolicy decodes path and runs it through the exact validation path a
// live Supervisor would use, so "policy OK" here means what it says.
func loadPolicy(path string) (*tracer.Config, error) {
	var pf policyFile
	if _, err := toml.DecodeFile(path, &pf); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	cfg := tracer.NewConfig()
	if err := cfg.SetAllowedSyscalls(pf.AllowedSyscalls); err != nil {
		return nil, err
	}
	if err := cfg.SetTraceePipeFDs(pf.TraceeReadFD, pf.TraceeWriteFD); err != nil {
		return nil, err
	}
	if err := cfg.SetForkserverPipeFDs(pf.ForkserverReadFD, pf.ForkserverWriteFD); err != nil {
		return nil, err
	}
	cfg.SetWriteMaxBytes(pf.WriteMaxBytes)

	return cfg, nil
}
