// Command fattreesim runs fat-tree interconnect simulations.
package main

import "github.com/sarchlab/fattree/fattreesim/cmd"

func main() {
	cmd.Execute()
}
