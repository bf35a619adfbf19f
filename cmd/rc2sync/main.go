// Command rc2sync is a command-line client for rc2 workspaces.
package main

func main() {
	Execute()
}
