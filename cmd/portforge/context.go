package main

import (
	"strings"
	"sync"

	"portforge/internal/checkpoint"
	"portforge/internal/config"
	"portforge/internal/facts"
	"portforge/internal/symbolgraph"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) openStore() (*checkpoint.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return checkpoint.Open(cfg)
}

func (c *commandContext) loadGraph() (*symbolgraph.Graph, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	records, err := facts.Load(cfg.Paths.FactsFile, facts.Filter{
		Include: cfg.Facts.Include,
		Exclude: cfg.Facts.Exclude,
	})
	if err != nil {
		return nil, err
	}
	return symbolgraph.Build(records)
}
