// Command iris is the Iris driver: it reads a setup document, constructs
// a Manager, pre-loads any dependency shared libraries named on the
// command line, starts every graph, and blocks until a module requests
// shutdown over the well-known exit-flag subscription.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"plugin"
	"strings"

	"github.com/iris-run/iris/internal/admin"
	"github.com/iris-run/iris/internal/graph"
	"github.com/iris-run/iris/internal/logger"
	"github.com/iris-run/iris/internal/manager"
	"github.com/iris-run/iris/internal/telemetry"
)

const usage = `usage: iris <setup-doc-path> [<dependency-path>...]

setup-doc-path      path to the JSON setup document
dependency-path     directory walked recursively; every dynamic library
                    found is pre-loaded before module_path is scanned
`

type setupDocument struct {
	GraphConfigPath   string `json:"graph_config_path"`
	ModulePath        string `json:"module_path"`
	LogOutputPath     string `json:"log_output_path"`
	LogUseStdout      bool   `json:"log_use_stdout"`
	LogMode           string `json:"log_mode"`
	LogEnable         bool   `json:"log_enable"`
	GraphTimingEnable bool   `json:"graph_timing_enable"`

	AdminListenAddr string `json:"admin_listen_addr"`

	TelemetryNATSURL            string `json:"telemetry_nats_url"`
	TelemetryRedisHost          string `json:"telemetry_redis_host"`
	TelemetryRedisPort          string `json:"telemetry_redis_port"`
	TelemetryRedisPassword      string `json:"telemetry_redis_password"`
	TelemetryRedisDB            int    `json:"telemetry_redis_db"`
	TelemetryHousekeepingEnable bool   `json:"telemetry_housekeeping_enable"`
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Print(usage)
		return 0
	}

	doc, err := readSetupDocument(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "iris: %v\n", err)
		return -1
	}
	if doc.GraphConfigPath == "" || doc.ModulePath == "" {
		fmt.Fprintln(os.Stderr, "iris: setup document missing required graph_config_path or module_path")
		return -1
	}

	logFile, err := logger.Initialize(logger.Options{
		OutputPath: doc.LogOutputPath,
		UseStdout:  doc.LogUseStdout,
		Mode:       logger.Mode(doc.LogMode),
		Enable:     doc.LogEnable,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "iris: logger: %v\n", err)
		return -1
	}
	if logFile != nil {
		defer logFile.Close()
	}

	for _, depPath := range args[1:] {
		preloadDependencies(depPath)
	}

	m := manager.New(logger.Component("manager"))
	if err := m.Initialize(doc.ModulePath, doc.GraphConfigPath, doc.GraphTimingEnable); err != nil {
		logger.Log.Error().Err(err).Msg("iris: manager initialization failed")
		return 1
	}

	m.EnableTelemetry(telemetry.Config{
		NATSURL:            doc.TelemetryNATSURL,
		RedisHost:          doc.TelemetryRedisHost,
		RedisPort:          doc.TelemetryRedisPort,
		RedisPassword:      doc.TelemetryRedisPassword,
		RedisDB:            doc.TelemetryRedisDB,
		HousekeepingEnable: doc.TelemetryHousekeepingEnable,
	})

	if doc.AdminListenAddr != "" {
		srv := admin.NewServer(m, logger.Component("admin"))
		go func() {
			if err := srv.Run(doc.AdminListenAddr); err != nil {
				logger.Log.Warn().Err(err).Msg("iris: admin server stopped")
			}
		}()
	}

	m.Start()
	if err := m.Run(); err != nil {
		// Canonical policy (spec's ModuleInitError and CyclicGraph) is to log
		// Fatal and exit 1 — a graph failing after Start has already begun
		// ticking must not look like the clean, exit-flag-driven shutdown
		// Run also returns from.
		if errors.Is(err, graph.ErrCyclicGraph) {
			logger.Log.Error().Err(err).Msg("iris: fatal — cyclic module dependency")
		} else {
			logger.Log.Error().Err(err).Msg("iris: fatal — graph terminated with an error")
		}
		return 1
	}
	return 0
}

func readSetupDocument(path string) (setupDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return setupDocument{}, fmt.Errorf("read setup document: %w", err)
	}
	var doc setupDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return setupDocument{}, fmt.Errorf("parse setup document: %w", err)
	}
	return doc, nil
}

// preloadDependencies walks depPath and opens every dynamic library it
// finds, so modules loaded afterward can resolve symbols against shared
// dependencies already mapped into the process. Failures are logged, not
// fatal — mirrors the Loader's own open-and-skip policy.
func preloadDependencies(depPath string) {
	_ = filepath.WalkDir(depPath, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(p, ".so") && !strings.HasSuffix(p, ".dll") && !strings.HasSuffix(p, ".dylib") {
			return nil
		}
		if _, err := plugin.Open(p); err != nil {
			logger.Log.Warn().Err(err).Str("path", p).Msg("iris: failed to pre-load dependency")
		}
		return nil
	})
}
