// Package commands implements the rta device commands shared by one-shot
// invocations and the interactive shell.
package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/georgejecook/roku-test-automation/pkg/ecp"
	"github.com/georgejecook/roku-test-automation/pkg/interaction"
	"github.com/georgejecook/roku-test-automation/pkg/model"
	"github.com/georgejecook/roku-test-automation/pkg/wire"
)

// Command errors.
var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrUsage          = errors.New("usage")
)

// Env is what commands run against. ODC and ECP are called lazily so a
// command only connects to the protocol it uses.
type Env struct {
	Out io.Writer
	ODC func(ctx context.Context) (*interaction.Client, error)
	ECP func() (*ecp.Client, error)

	// ObserveTimeout bounds observe commands. Zero uses the client default.
	ObserveTimeout time.Duration
}

// Command is one rta command.
type Command struct {
	Name    string
	Args    string
	Summary string
	MinArgs int
	MaxArgs int // -1 for no limit
	Run     func(ctx context.Context, env *Env, args []string) error
}

// Usage returns the one-line usage of c.
func (c *Command) Usage() string {
	if c.Args == "" {
		return c.Name
	}
	return c.Name + " " + c.Args
}

var commands []*Command

func init() {
	commands = []*Command{
		{Name: "get", Args: "<base> <path> [path...]", Summary: "Read values at key paths", MinArgs: 2, MaxArgs: -1, Run: runGet},
		{Name: "set", Args: "<base> <path> <value>", Summary: "Write a JSON value at a key path", MinArgs: 3, MaxArgs: 3, Run: runSet},
		{Name: "observe", Args: "<base> <path> [value]", Summary: "Wait for a field to change (or to equal value)", MinArgs: 2, MaxArgs: 3, Run: runObserve},
		{Name: "observe-match", Args: "<base> <path> <match-base> <match-path> <value>", Summary: "Wait for a field to change once another field equals value", MinArgs: 5, MaxArgs: 5, Run: runObserveMatch},
		{Name: "call", Args: "<base> <path> <func> [param...]", Summary: "Call a function on a node", MinArgs: 3, MaxArgs: -1, Run: runCall},
		{Name: "focused", Summary: "Show the focused node", MaxArgs: 0, Run: runFocused},
		{Name: "has-focus", Args: "<base> <path>", Summary: "Report whether a node has focus", MinArgs: 2, MaxArgs: 2, Run: runHasFocus},
		{Name: "in-focus-chain", Args: "<base> <path>", Summary: "Report whether a node is on the focus chain", MinArgs: 2, MaxArgs: 2, Run: runInFocusChain},
		{Name: "registry-read", Args: "[section[/key]...]", Summary: "Read registry sections (all when none given)", MaxArgs: -1, Run: runRegistryRead},
		{Name: "registry-write", Args: "<section> <key> <value>", Summary: "Write a registry value", MinArgs: 3, MaxArgs: 3, Run: runRegistryWrite},
		{Name: "registry-unset", Args: "<section> <key>", Summary: "Remove a registry key", MinArgs: 2, MaxArgs: 2, Run: runRegistryUnset},
		{Name: "registry-delete", Args: "<section>...", Summary: "Delete registry sections", MinArgs: 1, MaxArgs: -1, Run: runRegistryDelete},
		{Name: "registry-clear", Summary: "Delete the entire registry", MaxArgs: 0, Run: runRegistryClear},
		{Name: "key", Args: "<key>...", Summary: "Press remote keys (home, up, ok, ...)", MinArgs: 1, MaxArgs: -1, Run: runKey},
		{Name: "text", Args: "<text>...", Summary: "Type text", MinArgs: 1, MaxArgs: -1, Run: runText},
		{Name: "launch", Args: "[channel] [param=value...]", Summary: "Launch a channel and verify it started", MaxArgs: -1, Run: runLaunch},
		{Name: "active-app", Summary: "Show the foreground application", MaxArgs: 0, Run: runActiveApp},
	}
}

// All returns every command in help order.
func All() []*Command {
	return commands
}

// Lookup returns the command with the given name.
func Lookup(name string) (*Command, bool) {
	for _, c := range commands {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// Run runs the named command.
func Run(ctx context.Context, env *Env, name string, args []string) error {
	c, ok := Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	if len(args) < c.MinArgs || (c.MaxArgs >= 0 && len(args) > c.MaxArgs) {
		return fmt.Errorf("%w: %s", ErrUsage, c.Usage())
	}
	return c.Run(ctx, env, args)
}

// ParseValue parses s as JSON. Anything that is not valid JSON is taken as
// a plain string.
func ParseValue(s string) model.Value {
	v, err := model.ParseJSON(s)
	if err != nil {
		return model.String(s)
	}
	return v
}

func formatValue(v model.Value) string {
	data, err := json.Marshal(v)
	if err != nil {
		return v.String()
	}
	return string(data)
}

func runGet(ctx context.Context, env *Env, args []string) error {
	client, err := env.ODC(ctx)
	if err != nil {
		return err
	}
	base := model.Base(args[0])
	paths := args[1:]

	if len(paths) == 1 {
		res, err := client.GetValue(ctx, base, paths[0])
		if err != nil {
			return err
		}
		if !res.Found {
			fmt.Fprintln(env.Out, "not found")
			return nil
		}
		fmt.Fprintln(env.Out, formatValue(res.Value))
		return nil
	}

	requests := make(map[string]wire.KeyPathArgs, len(paths))
	for _, p := range paths {
		requests[p] = wire.KeyPathArgs{Base: base, KeyPath: p}
	}
	res, err := client.GetValues(ctx, requests)
	if err != nil {
		return err
	}
	for _, p := range paths {
		r := res.Results[p]
		if !r.Found {
			fmt.Fprintf(env.Out, "%s: not found\n", p)
			continue
		}
		fmt.Fprintf(env.Out, "%s: %s\n", p, formatValue(r.Value))
	}
	return nil
}

func runSet(ctx context.Context, env *Env, args []string) error {
	client, err := env.ODC(ctx)
	if err != nil {
		return err
	}
	elapsed, err := client.SetValue(ctx, model.Base(args[0]), args[1], ParseValue(args[2]))
	if err != nil {
		return err
	}
	fmt.Fprintf(env.Out, "ok (%s)\n", elapsed)
	return nil
}

func runObserve(ctx context.Context, env *Env, args []string) error {
	opts := interaction.ObserveOptions{Base: model.Base(args[0]), KeyPath: args[1]}
	if len(args) == 3 {
		opts.Match = wire.LiteralMatch(ParseValue(args[2]))
	}
	return observe(ctx, env, opts)
}

func runObserveMatch(ctx context.Context, env *Env, args []string) error {
	return observe(ctx, env, interaction.ObserveOptions{
		Base:    model.Base(args[0]),
		KeyPath: args[1],
		Match:   wire.FieldMatch(model.Base(args[2]), args[3], ParseValue(args[4])),
	})
}

func observe(ctx context.Context, env *Env, opts interaction.ObserveOptions) error {
	client, err := env.ODC(ctx)
	if err != nil {
		return err
	}
	opts.RetryTimeout = env.ObserveTimeout
	res, err := client.ObserveField(ctx, opts)
	if err != nil {
		return err
	}
	if res.ObserverFired {
		fmt.Fprintf(env.Out, "fired: %s (%s)\n", formatValue(res.Value), res.TimeTaken)
	} else {
		fmt.Fprintf(env.Out, "already matched: %s\n", formatValue(res.Value))
	}
	return nil
}

func runCall(ctx context.Context, env *Env, args []string) error {
	client, err := env.ODC(ctx)
	if err != nil {
		return err
	}
	params := make([]model.Value, 0, len(args)-3)
	for _, a := range args[3:] {
		params = append(params, ParseValue(a))
	}
	res, err := client.CallFunc(ctx, model.Base(args[0]), args[1], args[2], params...)
	if err != nil {
		return err
	}
	fmt.Fprintln(env.Out, formatValue(res.Value))
	return nil
}

func runFocused(ctx context.Context, env *Env, _ []string) error {
	client, err := env.ODC(ctx)
	if err != nil {
		return err
	}
	n, err := client.GetFocusedNode(ctx)
	if err != nil {
		return err
	}
	if n == nil {
		fmt.Fprintln(env.Out, "no focused node")
		return nil
	}
	fmt.Fprintln(env.Out, formatValue(model.NodeValue(n)))
	return nil
}

func runHasFocus(ctx context.Context, env *Env, args []string) error {
	return focusQuery(ctx, env, args, (*interaction.Client).HasFocus)
}

func runInFocusChain(ctx context.Context, env *Env, args []string) error {
	return focusQuery(ctx, env, args, (*interaction.Client).IsInFocusChain)
}

func focusQuery(ctx context.Context, env *Env, args []string,
	query func(*interaction.Client, context.Context, model.Base, string) (bool, error)) error {
	client, err := env.ODC(ctx)
	if err != nil {
		return err
	}
	ok, err := query(client, ctx, model.Base(args[0]), args[1])
	if err != nil {
		return err
	}
	fmt.Fprintln(env.Out, ok)
	return nil
}

func runRegistryRead(ctx context.Context, env *Env, args []string) error {
	client, err := env.ODC(ctx)
	if err != nil {
		return err
	}

	var filter map[string][]string
	if len(args) > 0 {
		filter = make(map[string][]string)
		for _, a := range args {
			section, key, hasKey := strings.Cut(a, "/")
			if _, ok := filter[section]; !ok {
				filter[section] = []string{}
			}
			if hasKey {
				filter[section] = append(filter[section], key)
			}
		}
	}

	values, err := client.ReadRegistry(ctx, filter)
	if err != nil {
		return err
	}
	printRegistry(env.Out, values)
	return nil
}

func printRegistry(w io.Writer, values map[string]map[string]string) {
	if len(values) == 0 {
		fmt.Fprintln(w, "registry is empty")
		return
	}
	sections := make([]string, 0, len(values))
	for s := range values {
		sections = append(sections, s)
	}
	sort.Strings(sections)

	for _, s := range sections {
		fmt.Fprintf(w, "[%s]\n", s)
		keys := make([]string, 0, len(values[s]))
		for k := range values[s] {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "  %s = %s\n", k, values[s][k])
		}
	}
}

func runRegistryWrite(ctx context.Context, env *Env, args []string) error {
	value := args[2]
	return registryWrite(ctx, env, args[0], args[1], &value)
}

func runRegistryUnset(ctx context.Context, env *Env, args []string) error {
	return registryWrite(ctx, env, args[0], args[1], nil)
}

func registryWrite(ctx context.Context, env *Env, section, key string, value *string) error {
	client, err := env.ODC(ctx)
	if err != nil {
		return err
	}
	if err := client.WriteRegistry(ctx, map[string]map[string]*string{section: {key: value}}); err != nil {
		return err
	}
	fmt.Fprintln(env.Out, "ok")
	return nil
}

func runRegistryDelete(ctx context.Context, env *Env, args []string) error {
	client, err := env.ODC(ctx)
	if err != nil {
		return err
	}
	if err := client.DeleteRegistrySections(ctx, args...); err != nil {
		return err
	}
	fmt.Fprintln(env.Out, "ok")
	return nil
}

func runRegistryClear(ctx context.Context, env *Env, _ []string) error {
	client, err := env.ODC(ctx)
	if err != nil {
		return err
	}
	if err := client.DeleteEntireRegistry(ctx); err != nil {
		return err
	}
	fmt.Fprintln(env.Out, "ok")
	return nil
}

func runKey(ctx context.Context, env *Env, args []string) error {
	remote, err := env.ECP()
	if err != nil {
		return err
	}
	keys := make([]ecp.Key, len(args))
	for i, a := range args {
		keys[i] = ecp.ParseKey(a)
	}
	return remote.SendKeyPressSequence(ctx, keys, 0)
}

func runText(ctx context.Context, env *Env, args []string) error {
	remote, err := env.ECP()
	if err != nil {
		return err
	}
	return remote.SendText(ctx, strings.Join(args, " "), 0)
}

func runLaunch(ctx context.Context, env *Env, args []string) error {
	remote, err := env.ECP()
	if err != nil {
		return err
	}

	var opts ecp.LaunchOptions
	for _, a := range args {
		if k, v, ok := strings.Cut(a, "="); ok {
			if opts.Params == nil {
				opts.Params = make(map[string]string)
			}
			opts.Params[k] = v
			continue
		}
		if opts.ChannelID != "" {
			return fmt.Errorf("%w: launch [channel] [param=value...]", ErrUsage)
		}
		opts.ChannelID = a
	}

	if err := remote.SendLaunchChannel(ctx, opts); err != nil {
		return err
	}
	fmt.Fprintln(env.Out, "launched")
	return nil
}

func runActiveApp(ctx context.Context, env *Env, _ []string) error {
	remote, err := env.ECP()
	if err != nil {
		return err
	}
	active, err := remote.GetActiveApp(ctx)
	if err != nil {
		return err
	}
	if active.App != nil {
		fmt.Fprintf(env.Out, "app: %s", active.App.Title)
		if active.App.ID != "" {
			fmt.Fprintf(env.Out, " (id=%s version=%s)", active.App.ID, active.App.Version)
		}
		fmt.Fprintln(env.Out)
	}
	if active.Screensaver != nil {
		fmt.Fprintf(env.Out, "screensaver: %s (id=%s)\n", active.Screensaver.Title, active.Screensaver.ID)
	}
	return nil
}
