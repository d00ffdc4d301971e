package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"podforge/internal/api"
	"podforge/internal/config"
)

// clientAnnotations marks commands that only need the daemon address, so
// an incomplete config does not block them when --addr is given.
var clientAnnotations = map[string]string{"skipConfigLoad": "true"}

type globalFlags struct {
	config string
	addr   string
	token  string
	json   bool
}

type commandContext struct {
	flags *globalFlags

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags}
}

func (c *commandContext) configPath() string {
	return strings.TrimSpace(c.flags.config)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
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

func (c *commandContext) jsonOutput() bool {
	return c.flags.json
}

// client resolves the daemon address and token. The config file is only
// consulted for whatever the flags and environment leave unset.
func (c *commandContext) client() (*api.Client, error) {
	addr := strings.TrimSpace(c.flags.addr)
	if addr == "" {
		addr = strings.TrimSpace(os.Getenv("PODFORGE_ADDR"))
	}
	token := strings.TrimSpace(c.flags.token)
	if token == "" {
		token = strings.TrimSpace(os.Getenv("PODFORGE_API_TOKEN"))
	}
	if addr == "" || token == "" {
		cfg, err := c.ensureConfig()
		if err != nil && addr == "" {
			return nil, fmt.Errorf("resolve daemon address (pass --addr or fix the config): %w", err)
		}
		if cfg != nil {
			if addr == "" {
				addr = cfg.API.Bind
			}
			if token == "" {
				token = cfg.API.Token
			}
		}
	}
	return api.NewClient(addr, token), nil
}

// wrapClientError turns connection failures into an actionable hint.
func wrapClientError(err error, client *api.Client) error {
	if err == nil {
		return nil
	}
	var opErr *net.OpError
	if errors.Is(err, syscall.ECONNREFUSED) || errors.As(err, &opErr) {
		return fmt.Errorf("connect to daemon at %s: %w; start it with `podforge start`", client.BaseURL(), err)
	}
	return err
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
