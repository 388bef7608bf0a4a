package sanity_check

import (
	"fmt"
	"io"

	"github.com/Shirosaru/Chai-pipeline/config" // Version control file
	"github.com/Shirosaru/Chai-pipeline/tools/invoker"
)

// ToolStatus is the lookup result for one external program.
type ToolStatus struct {
	Role string
	Name string
	Path string
	Err  error
}

func (s ToolStatus) Found() bool { return s.Err == nil }

// Check resolves the external programs named in cfg on PATH.
func Check(cfg *config.Config) []ToolStatus {
	tools := []ToolStatus{
		{Role: "alignment generator", Name: cfg.TGTExec},
		{Role: "a3m converter", Name: cfg.ConverterExec},
	}
	if len(cfg.Interpreter) > 0 {
		tools = append(tools, ToolStatus{Role: "interpreter", Name: cfg.Interpreter[0]})
	}
	for i := range tools {
		tools[i].Path, tools[i].Err = invoker.LookPath(tools[i].Name)
	}
	return tools
}

// Run performs a simple sanity check, printing the version number and
// whether each external tool is reachable. It returns the number of
// missing tools.
func Run(w io.Writer, cfg *config.Config) int {
	fmt.Fprintf(w, "Successfully running chai_pipeline! (%s)\n", config.Main_version)
	missing := 0
	for _, s := range Check(cfg) {
		if s.Found() {
			fmt.Fprintf(w, "\t%-20s %s\n", s.Role+":", s.Path)
		} else {
			missing++
			fmt.Fprintf(w, "\t%-20s MISSING (%s)\n", s.Role+":", s.Name)
		}
	}
	return missing
}
