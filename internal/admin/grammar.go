// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 hookhost Contributors

package admin

import (
	"fmt"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

var commandLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Prefix", Pattern: `[!+]`},
	{Name: "Word", Pattern: `[^\s!+]\S*`},
	{Name: "whitespace", Pattern: `\s+`},
})

// Command is a parsed admin command line.
//
// Grammar: [prefix] namespace [subcommand [args...]]
type Command struct {
	Prefix     string   `parser:"@Prefix?"`
	Namespace  string   `parser:"@Word"`
	Subcommand string   `parser:"@Word?"`
	Args       []string `parser:"@(Word | Prefix)*"`
}

var parser *participle.Parser[Command]

func init() {
	var err error
	parser, err = participle.Build[Command](
		participle.Lexer(commandLexer),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to build admin command parser: %v", err))
	}
}

// Parse parses one command line.
func Parse(input string) (*Command, error) {
	cmd, err := parser.ParseString("", input)
	if err != nil {
		return nil, ErrParse(input, err)
	}
	return cmd, nil
}
