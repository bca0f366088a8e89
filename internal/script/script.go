// Package script loads prompt/response scripts for the clidrive command from
// YAML or TOML files and converts them into session steps and options.
package script

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/cboone/clidrive"
)

// Format is the encoding of a script file.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatOf picks the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	}
	return "", fmt.Errorf("unsupported script extension %q (want .yaml, .yml or .toml)", filepath.Ext(path))
}

// Duration is a time.Duration written as a Go duration string ("1.5s").
type Duration time.Duration

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// UnmarshalYAML parses a Go duration string from a YAML scalar.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a string", node.Line)
	}
	if err := d.UnmarshalText([]byte(node.Value)); err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	return nil
}

// ControlChars is the script form of clidrive.ControlChars.
type ControlChars struct {
	Strip   *bool  `yaml:"strip" toml:"strip"`
	Pattern string `yaml:"pattern" toml:"pattern"`
}

// Step is the script form of clidrive.Step. Patterns written as /expr/ are
// regular expressions; any other string is literal text. An input chunk
// written as <name> is the named key, such as <enter> or <ctrl-c>.
type Step struct {
	Prompt       string        `yaml:"prompt" toml:"prompt"`
	Input        []string      `yaml:"input" toml:"input"`
	Stdout       string        `yaml:"stdout" toml:"stdout"`
	Stderr       string        `yaml:"stderr" toml:"stderr"`
	Timeout      Duration      `yaml:"timeout" toml:"timeout"`
	Debug        bool          `yaml:"debug" toml:"debug"`
	ControlChars *ControlChars `yaml:"control_chars" toml:"control_chars"`
}

// Script is a command line and the steps to drive it through.
type Script struct {
	Command      string        `yaml:"command" toml:"command"`
	Timeout      Duration      `yaml:"timeout" toml:"timeout"`
	Delta        Duration      `yaml:"delta" toml:"delta"`
	Debug        bool          `yaml:"debug" toml:"debug"`
	KillOnExit   *bool         `yaml:"kill_on_exit" toml:"kill_on_exit"`
	ControlChars *ControlChars `yaml:"control_chars" toml:"control_chars"`
	Env          []string      `yaml:"env" toml:"env"`
	Dir          string        `yaml:"dir" toml:"dir"`
	PTY          bool          `yaml:"pty" toml:"pty"`
	Steps        []Step        `yaml:"steps" toml:"steps"`
}

// Load reads and decodes the script at path. It does not validate it.
func Load(path string) (*Script, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	sc, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return sc, nil
}

// Parse decodes a script. Unknown keys are an error in both formats.
func Parse(data []byte, format Format) (*Script, error) {
	var sc Script
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&sc); err != nil {
			return nil, err
		}
	case FormatTOML:
		md, err := toml.Decode(string(data), &sc)
		if err != nil {
			return nil, err
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
		}
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
	return &sc, nil
}

// Validate reports every problem with the script at once.
func (sc *Script) Validate() error {
	var errs []error
	if strings.TrimSpace(sc.Command) == "" {
		errs = append(errs, errors.New("command is required"))
	}
	if sc.Timeout < 0 {
		errs = append(errs, errors.New("timeout: must not be negative"))
	}
	if sc.Delta < 0 {
		errs = append(errs, errors.New("delta: must not be negative"))
	}
	if _, err := sc.ControlChars.resolve(true); err != nil {
		errs = append(errs, fmt.Errorf("control_chars: %w", err))
	}
	for _, env := range sc.Env {
		if !strings.Contains(env, "=") {
			errs = append(errs, fmt.Errorf("env: %q is not KEY=VALUE", env))
		}
	}

	for i, st := range sc.Steps {
		if _, err := st.build(sc.strip()); err != nil {
			errs = append(errs, fmt.Errorf("step %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// BuildSteps converts the script steps into session steps.
func (sc *Script) BuildSteps() ([]clidrive.Step, error) {
	steps := make([]clidrive.Step, 0, len(sc.Steps))
	for i, st := range sc.Steps {
		step, err := st.build(sc.strip())
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// Options converts the script settings into session options. Unset values
// keep the session defaults.
func (sc *Script) Options() ([]clidrive.Option, error) {
	var opts []clidrive.Option
	if sc.Timeout != 0 {
		opts = append(opts, clidrive.WithTimeout(time.Duration(sc.Timeout)))
	}
	if sc.Delta != 0 {
		opts = append(opts, clidrive.WithDelta(time.Duration(sc.Delta)))
	}
	if sc.Debug {
		opts = append(opts, clidrive.WithDebug(true))
	}
	if sc.KillOnExit != nil {
		opts = append(opts, clidrive.WithKillOnExit(*sc.KillOnExit))
	}
	if sc.ControlChars != nil {
		cc, err := sc.ControlChars.resolve(true)
		if err != nil {
			return nil, fmt.Errorf("control_chars: %w", err)
		}
		opts = append(opts, clidrive.WithControlChars(*cc))
	}
	if len(sc.Env) > 0 {
		opts = append(opts, clidrive.WithEnv(sc.Env...))
	}
	if sc.Dir != "" {
		opts = append(opts, clidrive.WithDir(sc.Dir))
	}
	if sc.PTY {
		opts = append(opts, clidrive.WithPTY())
	}
	return opts, nil
}

// strip is the session-wide strip setting, which steps inherit when their
// own control_chars leave it unset.
func (sc *Script) strip() bool {
	if sc.ControlChars == nil || sc.ControlChars.Strip == nil {
		return true
	}
	return *sc.ControlChars.Strip
}

func (st Step) build(strip bool) (clidrive.Step, error) {
	var errs []error
	pattern := func(field, s string) clidrive.Pattern {
		p, err := ParsePattern(s)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
		}
		return p
	}

	step := clidrive.Step{
		Prompt:  pattern("prompt", st.Prompt),
		Stdout:  pattern("stdout", st.Stdout),
		Stderr:  pattern("stderr", st.Stderr),
		Timeout: time.Duration(st.Timeout),
		Debug:   st.Debug,
	}
	if st.Timeout < 0 {
		errs = append(errs, errors.New("timeout: must not be negative"))
	}

	for _, chunk := range st.Input {
		in, err := ParseInput(chunk)
		if err != nil {
			errs = append(errs, fmt.Errorf("input: %w", err))
			continue
		}
		step.Input = append(step.Input, in)
	}

	cc, err := st.ControlChars.resolve(strip)
	if err != nil {
		errs = append(errs, fmt.Errorf("control_chars: %w", err))
	}
	step.ControlChars = cc

	return step, errors.Join(errs...)
}

// resolve converts the policy, using defaultStrip when Strip is unset. A nil
// receiver resolves to nil.
func (cc *ControlChars) resolve(defaultStrip bool) (*clidrive.ControlChars, error) {
	if cc == nil {
		return nil, nil
	}
	out := &clidrive.ControlChars{Strip: defaultStrip}
	if cc.Strip != nil {
		out.Strip = *cc.Strip
	}
	if cc.Pattern != "" {
		re, err := regexp.Compile(cc.Pattern)
		if err != nil {
			return nil, fmt.Errorf("pattern: %w", err)
		}
		out.Pattern = re
	}
	return out, nil
}

// ParsePattern converts a script pattern string. The empty string means no
// constraint and yields nil.
func ParsePattern(s string) (clidrive.Pattern, error) {
	if s == "" {
		return nil, nil
	}
	if len(s) >= 2 && strings.HasPrefix(s, "/") && strings.HasSuffix(s, "/") {
		re, err := regexp.Compile(s[1 : len(s)-1])
		if err != nil {
			return nil, err
		}
		return clidrive.MatchRegexp(re), nil
	}
	return clidrive.Text(s), nil
}

// ParseInput converts a script input chunk. "<name>" is a named key;
// anything else is sent as written.
func ParseInput(chunk string) (string, error) {
	name, ok := strings.CutPrefix(chunk, "<")
	if !ok {
		return chunk, nil
	}
	name, ok = strings.CutSuffix(name, ">")
	if !ok || name == "" {
		return chunk, nil
	}
	key, ok := clidrive.LookupKey(name)
	if !ok {
		return "", fmt.Errorf("unknown key %q", chunk)
	}
	return key, nil
}
