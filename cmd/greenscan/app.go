package main

import (
	"fmt"

	"greenscan/internal/config"
	"greenscan/internal/matcher"
	"greenscan/internal/metrics"
	"greenscan/internal/orchestrator"
	"greenscan/internal/pipeline"
	"greenscan/internal/rules"
	"greenscan/internal/store"
	"greenscan/internal/syntax"
	"greenscan/internal/workspace"
)

// loadCatalog loads the configured catalog. Reload logs skipped entries.
func loadCatalog(cfg *config.Config) (*rules.Catalog, error) {
	c, err := rules.LoadCatalog(cfg.Rules.Path, cfg.Rules.Disabled)
	if err != nil {
		return nil, err
	}
	metrics.RulesLoaded.Set(float64(c.Len()))
	return c, nil
}

func newRegistry(cfg *config.Config) *syntax.Registry {
	providers := []syntax.Provider{&syntax.GoProvider{Types: cfg.Parser.GoTypes}}
	if len(cfg.Parser.Command) > 0 {
		providers = append(providers, &syntax.ExternalProvider{
			Command:    cfg.Parser.Command,
			Extensions: cfg.Parser.Extensions,
			Timeout:    cfg.Parser.Timeout,
		})
	}
	return syntax.NewRegistry(providers...)
}

func newOrchestrator(cfg *config.Config) (*orchestrator.Orchestrator, error) {
	if !cfg.Toolchain.Enabled {
		return nil, nil
	}
	tc := cfg.Toolchain
	return orchestrator.New(orchestrator.Config{
		Compile:        tc.Compile,
		Run:            tc.Run,
		Agent:          tc.AgentJar,
		AgentConfig:    tc.AgentConfig,
		CompileTimeout: tc.CompileTimeout,
		RunTimeout:     tc.RunTimeout,
		RunIDPattern:   tc.RunIDPattern,
	}, nil)
}

func newWorkspaces(cfg *config.Config) *workspace.Manager {
	return &workspace.Manager{Base: cfg.Workspace.Base, Keep: cfg.Workspace.Keep}
}

// newPipeline wires a pipeline from settings around an existing catalog.
func newPipeline(cfg *config.Config, catalog *rules.Catalog, trace bool) (*pipeline.Pipeline, error) {
	orch, err := newOrchestrator(cfg)
	if err != nil {
		return nil, err
	}
	return pipeline.New(pipeline.Options{
		Registry:       newRegistry(cfg),
		Catalog:        catalog,
		Matcher:        &matcher.Matcher{Workers: cfg.Matcher.Workers, Trace: trace || cfg.Matcher.Trace},
		Workspaces:     newWorkspaces(cfg),
		Orchestrator:   orch,
		DynamicFor:     cfg.DynamicFor,
		ResultRoot:     cfg.Toolchain.ResultRoot,
		ResultSuffixes: cfg.Toolchain.ResultSuffixes,
	})
}

func openStore(cfg *config.Config) (*store.Store, error) {
	if cfg.Store.Path == "" {
		return nil, fmt.Errorf("store.path is not set")
	}
	return store.Open(cfg.Store.Path)
}
