// Command clausectl works with serialised contract templates on disk: it
// lints them, renders previews and exports, and turns Markdown clauses into
// template sections without a running API.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
