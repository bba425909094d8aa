package cli

import (
	"fmt"

	"github.com/alecthomas/kong"
)

// HelpPrinter prefixes kong's default help with a styled title.
func HelpPrinter(options kong.HelpOptions, ctx *kong.Context) error {
	fmt.Fprintln(ctx.Stdout, TitleStyle.Render("jumpcutter ✂"))
	return kong.DefaultHelpPrinter(options, ctx)
}
