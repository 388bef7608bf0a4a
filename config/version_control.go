package config

// Version system:
// vMAJOR.MINOR.PATCH

// Centralized version control
const (
	// Executible
	Main_version = "v1.0.0"

	// Modular tools
	Benchmark    = "v1.0.0"
	FASTA_Split  = "v1.0.0"
	Pipeline     = "v1.0.0"
	Chai_Script  = "v1.0.0"
	MSA_Report   = "v1.0.0"
	Sanity_check = "v1.0.0"
)
