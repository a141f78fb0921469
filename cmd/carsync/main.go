// Command carsync keeps dealership store records and client-car links in
// sync.
package main

import "github.com/mesh-intelligence/carsync/internal/cli"

func main() {
	cli.Execute()
}
