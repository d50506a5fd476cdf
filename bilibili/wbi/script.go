package wbi

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/robertkrimen/otto"
)

const mixinFuncName = "mixin"

// Script engines accepted by LoadMixer.
const (
	EngineOtto = "otto"
	EngineGoja = "goja"
)

// ScriptMixer derives the mixin key by calling a global `mixin(orig)`
// function defined in a user-supplied script. A fresh VM is created per
// call, so a ScriptMixer is safe for concurrent use.
type ScriptMixer struct {
	name   string
	source string
}

// NewScriptMixer reads the script at path.
func NewScriptMixer(path string) (*ScriptMixer, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mixin script: %w", err)
	}
	return NewScriptMixerSource(path, string(src)), nil
}

// NewScriptMixerSource wraps an in-memory script.
func NewScriptMixerSource(name, source string) *ScriptMixer {
	return &ScriptMixer{name: name, source: source}
}

// Mix implements Mixer.
func (m *ScriptMixer) Mix(orig string) (string, error) {
	vm := otto.New()
	if _, err := vm.Run(m.source); err != nil {
		return "", fmt.Errorf("run mixin script %s: %w", m.name, err)
	}
	fn, err := vm.Get(mixinFuncName)
	if err != nil || !fn.IsFunction() {
		return "", fmt.Errorf("mixin script %s: %s function not defined", m.name, mixinFuncName)
	}
	value, err := vm.Call(mixinFuncName, nil, orig)
	if err != nil {
		return "", fmt.Errorf("call %s: %w", mixinFuncName, err)
	}
	if !value.IsString() {
		return "", fmt.Errorf("%s did not return a string", mixinFuncName)
	}
	out, err := value.ToString()
	if err != nil {
		return "", err
	}
	return out, nil
}

// LoadMixer returns the Mixer for the given script path and engine. An empty
// path selects the built-in table.
func LoadMixer(path, engine string) (Mixer, error) {
	if strings.TrimSpace(path) == "" {
		return TableMixer{}, nil
	}
	switch strings.ToLower(strings.TrimSpace(engine)) {
	case "", EngineOtto:
		return NewScriptMixer(path)
	case EngineGoja:
		m, err := NewGojaMixer(path)
		if err != nil {
			return nil, err
		}
		if m == nil {
			return nil, errors.New("goja engine not compiled in; rebuild with -tags goja")
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown script engine %q", engine)
	}
}
