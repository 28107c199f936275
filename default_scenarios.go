package dutexpect

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

// BuiltinScenarios holds the scenario files shipped with the tool.
//
//go:embed scenarios/*.yaml
var BuiltinScenarios embed.FS

// BuiltinScenario returns the YAML of the named built-in scenario (file name without extension).
func BuiltinScenario(name string) ([]byte, error) {
	data, err := BuiltinScenarios.ReadFile(path.Join("scenarios", name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("unknown built-in scenario %q (available: %s)", name, strings.Join(BuiltinScenarioNames(), ", "))
	}
	return data, nil
}

// BuiltinScenarioNames lists the built-in scenarios, sorted.
func BuiltinScenarioNames() []string {
	entries, err := fs.ReadDir(BuiltinScenarios, "scenarios")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}
