package script

import (
	_ "embed"
)

var (
	//go:embed script.md
	scriptPrompt string
	//go:embed ideas.md
	ideasPrompt string
)
