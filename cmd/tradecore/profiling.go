package main

import (
	"github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"

	"tradecore/internal/errors"
	"tradecore/internal/ops"
)

type emptyLogger struct{}

func (emptyLogger) Infof(_ string, _ ...interface{})  {}
func (emptyLogger) Debugf(_ string, _ ...interface{}) {}
func (emptyLogger) Errorf(_ string, _ ...interface{}) {}

func startProfiler(cfg ops.ProfilingConfig) (func(), error) {
	addr := cfg.ServerAddress
	if addr == "" {
		addr = "http://localhost:4040"
	}
	name := cfg.ApplicationName
	if name == "" {
		name = "tradecore"
	}
	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: name,
		ServerAddress:   addr,
		Logger:          emptyLogger{},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "pyroscope start")
	}
	logs.Infof("pyroscope: profiling %s to %s", name, addr)
	return func() { _ = profiler.Stop() }, nil
}
