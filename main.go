package main

import "github.com/skaphos/reposync/cmd/reposync"

// execute is a package variable so tests can stub it out.
var execute = reposync.Execute

func main() {
	execute()
}
