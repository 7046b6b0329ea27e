// Command brandscan extracts brand design tokens from websites.
package main

import "github.com/JakeFAU/brandscan/cmd"

func main() {
	cmd.Execute()
}
