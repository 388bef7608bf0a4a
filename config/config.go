package config // CLI configuration file

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
)

// DefaultPath is read when no -config flag is given.
const DefaultPath = "chai_pipeline.json"

// Config holds the external tool setup and logging options.
// Command line flags override values loaded from the file.
type Config struct {
	InputDir string `json:"input_dir"`
	LogFile  string `json:"log_file"`
	LogLevel string `json:"log_level"`

	TGTExec       string `json:"tgt_exec"`
	TGTCPUs       int    `json:"tgt_cpus"`
	TGTPackage    string `json:"tgt_package"`
	TGTDatabase   string `json:"tgt_database"`
	TGTIterations int    `json:"tgt_iterations"`

	ConverterExec string   `json:"converter_exec"`
	Interpreter   []string `json:"interpreter"`

	Report bool `json:"report"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		InputDir:      ".",
		LogLevel:      "info",
		TGTExec:       "/home2/TGT_Package/A3M_TGT_Gen.sh",
		TGTCPUs:       12,
		TGTPackage:    "jackhmm",
		TGTDatabase:   "uniref90",
		TGTIterations: 3,
		ConverterExec: "chai-lab",
		Interpreter:   []string{"python"},
		Report:        true,
	}
}

// LoadConfig loads a JSON config from path over the defaults. If path is
// empty, DefaultPath is tried; a missing default file is not an error.
func LoadConfig(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	c := Default()

	f, err := os.Open(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return c, nil
		}
		return nil, err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		return nil, err
	}
	return c, nil
}
