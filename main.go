// Command scrapewatch watches web pages for new text fragments.
package main

import "github.com/JakeFAU/scrapewatch/cmd"

func main() {
	cmd.Execute()
}
