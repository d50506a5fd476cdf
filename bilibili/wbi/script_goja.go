//go:build goja

package wbi

import (
	"errors"
	"fmt"
	"os"

	"github.com/dop251/goja"
)

// GojaMixer runs the same `mixin(orig)` script contract as ScriptMixer on
// the goja engine.
type GojaMixer struct {
	name   string
	source string
}

// NewGojaMixer reads the script at path.
func NewGojaMixer(path string) (*GojaMixer, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mixin script: %w", err)
	}
	return &GojaMixer{name: path, source: string(src)}, nil
}

// Mix implements Mixer.
func (m *GojaMixer) Mix(orig string) (string, error) {
	vm := goja.New()
	_ = vm.Set("console", map[string]any{
		"log": func(...any) {},
	})
	if _, err := vm.RunScript(m.name, m.source); err != nil {
		return "", fmt.Errorf("run mixin script %s: %w", m.name, err)
	}
	fn, ok := goja.AssertFunction(vm.Get(mixinFuncName))
	if !ok {
		return "", fmt.Errorf("mixin script %s: %s function not defined", m.name, mixinFuncName)
	}
	res, err := fn(goja.Undefined(), vm.ToValue(orig))
	if err != nil {
		return "", fmt.Errorf("call %s: %w", mixinFuncName, err)
	}
	if goja.IsUndefined(res) || goja.IsNull(res) {
		return "", errors.New("mixin returned undefined/null")
	}
	out, ok := res.Export().(string)
	if !ok {
		return "", fmt.Errorf("%s did not return a string", mixinFuncName)
	}
	return out, nil
}
