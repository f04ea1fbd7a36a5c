package cli

import (
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/beacon/pkg/platform"
)

// Command represents a CLI command
type Command struct {
	Name        string
	Usage       string
	Description string
	Run         func(args []string) error
	Subcommands map[string]*Command
	Flags       *flag.FlagSet
}

// App carries what the commands share: a way to reach the store, where to
// print results and the operator log.
type App struct {
	Open func() (*platform.Platform, error)
	Out  io.Writer
	Log  *logrus.Logger
}

// NewRootCommand creates the root command
func NewRootCommand(app *App) *Command {
	if app.Out == nil {
		app.Out = os.Stdout
	}
	if app.Log == nil {
		app.Log = logrus.New()
	}

	root := &Command{
		Name:        "beacon",
		Description: "Beacon - event analytics operator CLI",
		Subcommands: make(map[string]*Command),
		Flags:       flag.NewFlagSet("beacon", flag.ContinueOnError),
	}

	for _, cmd := range []*Command{
		newHealthCommand(app),
		newDashboardCommand(app),
		newUserCommand(app),
		newEventCommand(app),
		newGenerateCommand(app),
		newAggregateCommand(app),
		newCleanupCommand(app),
		newFlushCommand(app),
	} {
		root.Subcommands[cmd.Name] = cmd
	}

	return root
}

// Execute runs the command against os.Args
func (c *Command) Execute() error {
	return c.ExecuteArgs(os.Args[1:])
}

// ExecuteArgs dispatches args[0] to the matching subcommand
func (c *Command) ExecuteArgs(args []string) error {
	if len(args) == 0 {
		return c.usage()
	}

	switch strings.ToLower(args[0]) {
	case "-h", "--help", "help":
		return c.usage()
	}

	if subcmd, ok := c.Subcommands[args[0]]; ok {
		return subcmd.Run(args[1:])
	}

	return fmt.Errorf("unknown command: %s", args[0])
}

// usage prints the command usage
func (c *Command) usage() error {
	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Printf("Usage: %s <command> [args]\n\n", c.Name)
	fmt.Printf("Commands:\n")
	for _, name := range names {
		cmd := c.Subcommands[name]
		fmt.Printf("  %-28s %s\n", strings.TrimSpace(name+" "+cmd.Usage), cmd.Description)
	}
	return nil
}
