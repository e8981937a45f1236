package main

// Blank imports ensure plugin init() registration runs for the CLI binary.
import (
	_ "github.com/alexisbeaulieu97/conveyor/internal/plugins/directorysource"
	_ "github.com/alexisbeaulieu97/conveyor/internal/plugins/embed"
	_ "github.com/alexisbeaulieu97/conveyor/internal/plugins/index"
	_ "github.com/alexisbeaulieu97/conveyor/internal/plugins/textextract"
	_ "github.com/alexisbeaulieu97/conveyor/internal/plugins/tokenpartition"
)
